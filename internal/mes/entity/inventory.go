package entity

import "time"

// Inventory transaction types.
const (
	TxTypeBatchPrintOut = "BATCH_PRINT_OUT" // substrate consumed by a printed sheet
	TxTypeScrapOut      = "SCRAP_OUT"       // extra material lost to scrap
	TxTypeAdjust        = "ADJUST"
)

// Inventory transaction reference types.
const (
	RefTypeBatch = "BATCH"
	RefTypeTask  = "TASK"
)

// InventoryTransaction is an append-only stock movement.
type InventoryTransaction struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	MaterialID      string    `json:"material_id" gorm:"size:36;not null;index"`
	MaterialCode    string    `json:"material_code" gorm:"size:64"`
	TransactionType string    `json:"transaction_type" gorm:"size:20;not null"`
	Quantity        float64   `json:"quantity" gorm:"type:decimal(12,4);not null"` // positive in, negative out
	ReferenceType   string    `json:"reference_type" gorm:"size:20;not null"`
	ReferenceID     string    `json:"reference_id" gorm:"size:36;not null;index"`
	ReferenceCode   string    `json:"reference_code" gorm:"size:50"`
	Notes           string    `json:"notes" gorm:"type:text"`
	CreatedBy       string    `json:"created_by" gorm:"size:64;not null"`
	CreatedAt       time.Time `json:"created_at"`
}

func (InventoryTransaction) TableName() string {
	return "mes_inventory_transactions"
}
