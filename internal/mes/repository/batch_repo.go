package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BatchRepository persists substrate batches and their allocations.
type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts the batch and its allocations.
func (r *BatchRepository) Create(ctx context.Context, batch *entity.SubstrateBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *BatchRepository) FindByID(ctx context.Context, id string) (*entity.SubstrateBatch, error) {
	var batch entity.SubstrateBatch
	err := r.db.WithContext(ctx).
		Preload("Allocations").
		Where("id = ?", id).
		First(&batch).Error
	if err != nil {
		return nil, translate(err)
	}
	return &batch, nil
}

// LockByID reads the batch and its allocations with a row lock on the batch.
func (r *BatchRepository) LockByID(ctx context.Context, id string) (*entity.SubstrateBatch, error) {
	var batch entity.SubstrateBatch
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&batch).Error; err != nil {
		return nil, translate(err)
	}
	if err := r.db.WithContext(ctx).Where("batch_id = ?", id).Find(&batch.Allocations).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// Save updates the batch header only.
func (r *BatchRepository) Save(ctx context.Context, batch *entity.SubstrateBatch) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(batch).Error
}

func (r *BatchRepository) CreateAllocation(ctx context.Context, alloc *entity.BatchAllocation) error {
	return r.db.WithContext(ctx).Create(alloc).Error
}

type BatchListParams struct {
	Status     string
	MaterialID string
	Page       int
	Size       int
}

func (r *BatchRepository) List(ctx context.Context, params BatchListParams) ([]entity.SubstrateBatch, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.SubstrateBatch{})
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.MaterialID != "" {
		query = query.Where("material_id = ?", params.MaterialID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page, size := normalizePage(params.Page, params.Size)
	var batches []entity.SubstrateBatch
	err := query.Preload("Allocations").Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).Find(&batches).Error
	return batches, total, err
}
