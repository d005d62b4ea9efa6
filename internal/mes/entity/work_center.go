package entity

import "time"

// Work center technology categories.
const (
	CategoryLargeFormat = "LARGE_FORMAT"
	CategoryDigital     = "DIGITAL"
	CategoryOffset      = "OFFSET"
	CategoryCutting     = "CUTTING"
	CategoryFinishing   = "FINISHING"
)

// WorkCenter is a machine or process on the shop floor.
type WorkCenter struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	Code            string    `json:"code" gorm:"size:32;not null;uniqueIndex"`
	Name            string    `json:"name" gorm:"size:128;not null"`
	Category        string    `json:"category" gorm:"size:32;not null;index"`
	DailyCapacity   float64   `json:"daily_capacity" gorm:"type:decimal(12,4);not null;default:0"` // pieces per day
	PrintableWidth  float64   `json:"printable_width" gorm:"type:decimal(10,2);default:0"`
	PrintableHeight float64   `json:"printable_height" gorm:"type:decimal(10,2);default:0"`
	SetupMinutes    int       `json:"setup_minutes" gorm:"default:0"`
	MinutesPerUnit  float64   `json:"minutes_per_unit" gorm:"type:decimal(10,4);default:0"`
	AllowsNesting   bool      `json:"allows_nesting" gorm:"default:false"`
	SafetyMargin    float64   `json:"safety_margin" gorm:"type:decimal(10,2);default:0"` // bleed per edge
	Active          bool      `json:"active" gorm:"default:true"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (WorkCenter) TableName() string {
	return "mes_work_centers"
}
