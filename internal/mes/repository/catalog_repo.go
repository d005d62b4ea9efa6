package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// WorkCenterRepository reads the work center registry.
type WorkCenterRepository struct {
	db *gorm.DB
}

func NewWorkCenterRepository(db *gorm.DB) *WorkCenterRepository {
	return &WorkCenterRepository{db: db}
}

func (r *WorkCenterRepository) FindByID(ctx context.Context, id string) (*entity.WorkCenter, error) {
	var wc entity.WorkCenter
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&wc).Error; err != nil {
		return nil, translate(err)
	}
	return &wc, nil
}

// ListActiveByCategory returns active work centers of one technology category.
func (r *WorkCenterRepository) ListActiveByCategory(ctx context.Context, category string) ([]entity.WorkCenter, error) {
	var wcs []entity.WorkCenter
	err := r.db.WithContext(ctx).
		Where("category = ? AND active = ?", category, true).
		Order("code ASC").
		Find(&wcs).Error
	return wcs, err
}

func (r *WorkCenterRepository) List(ctx context.Context) ([]entity.WorkCenter, error) {
	var wcs []entity.WorkCenter
	err := r.db.WithContext(ctx).Order("code ASC").Find(&wcs).Error
	return wcs, err
}

// ProductRepository reads the product catalog.
type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) FindByID(ctx context.Context, id string) (*entity.Product, error) {
	var p entity.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// FindByIDs returns the products keyed by id.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*entity.Product, error) {
	out := make(map[string]*entity.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []entity.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}
