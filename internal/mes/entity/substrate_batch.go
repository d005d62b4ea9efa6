package entity

import "time"

// SubstrateBatch is one physical sheet shared by several tasks ("pliego").
type SubstrateBatch struct {
	ID              string      `json:"id" gorm:"primaryKey;size:36"`
	BatchCode       string      `json:"batch_code" gorm:"size:50;not null;uniqueIndex"`
	MaterialID      string      `json:"material_id" gorm:"size:36;not null;index"`
	OperatorID      string      `json:"operator_id" gorm:"size:64;not null"`
	Status          BatchStatus `json:"status" gorm:"size:20;not null;default:BATCHED;index"`
	EstimatedSheets int         `json:"estimated_sheets" gorm:"not null;default:0"`
	UsedMaterialID  *string     `json:"used_material_id" gorm:"size:36"`
	UsedQuantity    float64     `json:"used_quantity" gorm:"type:decimal(12,4);default:0"`
	PrintedAt       *time.Time  `json:"printed_at"`
	CancelledAt     *time.Time  `json:"cancelled_at"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`

	Allocations []BatchAllocation `json:"allocations,omitempty" gorm:"foreignKey:BatchID"`
}

func (SubstrateBatch) TableName() string {
	return "mes_substrate_batches"
}

// BatchAllocation records how much of a task a batch carries.
type BatchAllocation struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	BatchID        string    `json:"batch_id" gorm:"size:36;not null;uniqueIndex:idx_mes_alloc_batch_task"`
	TaskID         string    `json:"task_id" gorm:"size:36;not null;uniqueIndex:idx_mes_alloc_batch_task;index"`
	Quantity       int       `json:"quantity" gorm:"not null"`
	PiecesPerSheet int       `json:"pieces_per_sheet" gorm:"not null;default:0"`
	CreatedAt      time.Time `json:"created_at"`
}

func (BatchAllocation) TableName() string {
	return "mes_batch_allocations"
}
