package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Audited entity types.
const (
	AuditOrder  = "ORDER"
	AuditDesign = "DESIGN"
	AuditTask   = "TASK"
	AuditBatch  = "BATCH"
)

// StatusChange is an append-only audit record of one state transition.
type StatusChange struct {
	ID         string         `json:"id" gorm:"primaryKey;size:36"`
	EntityType string         `json:"entity_type" gorm:"size:20;not null;index:idx_mes_status_changes_entity"`
	EntityID   string         `json:"entity_id" gorm:"size:36;not null;index:idx_mes_status_changes_entity"`
	FromStatus string         `json:"from_status" gorm:"size:20"`
	ToStatus   string         `json:"to_status" gorm:"size:20;not null"`
	OperatorID string         `json:"operator_id" gorm:"size:64"`
	Meta       datatypes.JSON `json:"meta"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (StatusChange) TableName() string {
	return "mes_status_changes"
}
