package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsRepository reads tenant configuration.
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) GetBillingRate(ctx context.Context, tenantID string) (*entity.BillingRate, error) {
	var rate entity.BillingRate
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&rate).Error; err != nil {
		return nil, translate(err)
	}
	return &rate, nil
}

// SeedBillingRate inserts the rate unless the tenant already has one.
func (r *SettingsRepository) SeedBillingRate(ctx context.Context, rate *entity.BillingRate) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rate).Error
}

// AuditRepository appends status changes.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Record(ctx context.Context, change *entity.StatusChange) error {
	return r.db.WithContext(ctx).Create(change).Error
}

func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]entity.StatusChange, error) {
	var changes []entity.StatusChange
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&changes).Error
	return changes, err
}
