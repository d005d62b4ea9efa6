package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository persists sales orders and their lines.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order together with its lines.
func (r *OrderRepository) Create(ctx context.Context, order *entity.SalesOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.SalesOrder, error) {
	var order entity.SalesOrder
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *OrderRepository) FindByTrackingToken(ctx context.Context, token string) (*entity.SalesOrder, error) {
	var order entity.SalesOrder
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("tracking_token = ?", token).
		First(&order).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// LockIDs takes row locks on the given orders in id order.
func (r *OrderRepository) LockIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var locked []string
	return forUpdate(r.db.WithContext(ctx)).
		Model(&entity.SalesOrder{}).
		Where("id IN ?", ids).
		Order("id ASC").
		Pluck("id", &locked).Error
}

// LockByID reads the order with a row lock; callers must be inside a transaction.
func (r *OrderRepository) LockByID(ctx context.Context, id string) (*entity.SalesOrder, error) {
	var order entity.SalesOrder
	err := forUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, translate(err)
	}
	if err := r.db.WithContext(ctx).Where("so_id = ?", id).Order("created_at ASC").Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// Save updates the order header only.
func (r *OrderRepository) Save(ctx context.Context, order *entity.SalesOrder) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(order).Error
}

// SaveItem inserts or updates one order line.
func (r *OrderRepository) SaveItem(ctx context.Context, item *entity.SOItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// AdvanceStatus moves the order to `to` only if it is currently in one of `from`.
// The returned flag is false when another caller already moved it.
func (r *OrderRepository) AdvanceStatus(ctx context.Context, id string, from []entity.OrderStatus, to entity.OrderStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&entity.SalesOrder{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListIDsByStatus returns the ids among `ids` whose order is in status.
func (r *OrderRepository) ListIDsByStatus(ctx context.Context, ids []string, status entity.OrderStatus) ([]string, error) {
	var out []string
	if len(ids) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Model(&entity.SalesOrder{}).
		Where("id IN ? AND status = ?", ids, status).
		Pluck("id", &out).Error
	return out, err
}
