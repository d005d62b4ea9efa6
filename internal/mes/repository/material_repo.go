package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// MaterialRepository persists stock records and the movement log.
type MaterialRepository struct {
	db *gorm.DB
}

func NewMaterialRepository(db *gorm.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

func (r *MaterialRepository) FindByID(ctx context.Context, id string) (*entity.Material, error) {
	var m entity.Material
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// LockByID reads the material with a row lock so that concurrent consumers cannot
// both pass the same availability check.
func (r *MaterialRepository) LockByID(ctx context.Context, id string) (*entity.Material, error) {
	var m entity.Material
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// Decrement lowers on-hand stock. The caller has already checked availability under lock.
func (r *MaterialRepository) Decrement(ctx context.Context, id string, qty float64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entity.Material{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"quantity":      gorm.Expr("quantity - ?", qty),
			"last_moved_at": at,
		}).Error
}

func (r *MaterialRepository) CreateTransaction(ctx context.Context, tx *entity.InventoryTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *MaterialRepository) ListTransactions(ctx context.Context, materialID string, page, size int) ([]entity.InventoryTransaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.InventoryTransaction{})
	if materialID != "" {
		query = query.Where("material_id = ?", materialID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page, size = normalizePage(page, size)
	var txs []entity.InventoryTransaction
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&txs).Error
	return txs, total, err
}
