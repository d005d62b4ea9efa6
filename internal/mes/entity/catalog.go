package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable item. Only products flagged RequiresManufacturing spawn production tasks.
type Product struct {
	ID                    string           `json:"id" gorm:"primaryKey;size:36"`
	Code                  string           `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Name                  string           `json:"name" gorm:"size:128;not null"`
	RequiresManufacturing bool             `json:"requires_manufacturing" gorm:"default:false"`
	WorkCenterID          *string          `json:"work_center_id" gorm:"size:36"`
	PrintCategory         string           `json:"print_category" gorm:"size:32"` // technology of the printing stage
	MaterialID            *string          `json:"material_id" gorm:"size:36"`    // base material consumed per piece
	PieceWidth            float64          `json:"piece_width" gorm:"type:decimal(10,2);default:0"`
	PieceHeight           float64          `json:"piece_height" gorm:"type:decimal(10,2);default:0"`
	AllowRotate           bool             `json:"allow_rotate" gorm:"default:true"`
	TaxRate               *decimal.Decimal `json:"tax_rate" gorm:"type:decimal(6,4)"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

func (Product) TableName() string {
	return "mes_products"
}

// Material is a stocked item: substrates for batching and base materials for scrap.
type Material struct {
	ID          string          `json:"id" gorm:"primaryKey;size:36"`
	Code        string          `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Name        string          `json:"name" gorm:"size:128;not null"`
	Unit        string          `json:"unit" gorm:"size:20;not null;default:sheet"`
	Quantity    float64         `json:"quantity" gorm:"type:decimal(12,4);not null;default:0"` // on hand
	UnitCost    decimal.Decimal `json:"unit_cost" gorm:"type:decimal(12,4);default:0"`
	SheetWidth  float64         `json:"sheet_width" gorm:"type:decimal(10,2);default:0"`
	SheetHeight float64         `json:"sheet_height" gorm:"type:decimal(10,2);default:0"`
	LastMovedAt *time.Time      `json:"last_moved_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Material) TableName() string {
	return "mes_materials"
}
