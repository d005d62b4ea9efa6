package entity

import "time"

// ProductionTask is one unit of manufacturing work derived from an order line.
type ProductionTask struct {
	ID           string     `json:"id" gorm:"primaryKey;size:36"`
	TaskCode     string     `json:"task_code" gorm:"size:50;not null;uniqueIndex"`
	SOID         string     `json:"so_id" gorm:"size:36;not null;index"`
	SOItemID     *string    `json:"so_item_id" gorm:"size:36"`
	ProductID    string     `json:"product_id" gorm:"size:36;not null"`
	ProductName  string     `json:"product_name" gorm:"size:128"`
	WorkCenterID string     `json:"work_center_id" gorm:"size:36;not null;index"`
	MaterialID   *string    `json:"material_id" gorm:"size:36"`
	Quantity     int        `json:"quantity" gorm:"not null"`
	ScrapQty     int        `json:"scrap_qty" gorm:"not null;default:0"`
	Status       TaskStatus `json:"status" gorm:"size:20;not null;default:PENDING_NESTING;index"`
	BatchID      *string    `json:"batch_id" gorm:"size:36;index"`
	DueDate      time.Time  `json:"due_date" gorm:"not null;index"`
	SourceTaskID *string    `json:"source_task_id" gorm:"size:36;index"` // set for scrap re-entry
	Notes        string     `json:"notes" gorm:"type:text"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	CreatedBy    string     `json:"created_by" gorm:"size:64;not null"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (ProductionTask) TableName() string {
	return "mes_production_tasks"
}

// IsReprocess reports whether the task was created by scrap re-entry.
func (t *ProductionTask) IsReprocess() bool {
	return t.SourceTaskID != nil
}
