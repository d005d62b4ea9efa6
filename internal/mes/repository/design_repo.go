package repository

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// DesignRepository stores the append-only design revision history.
type DesignRepository struct {
	db *gorm.DB
}

func NewDesignRepository(db *gorm.DB) *DesignRepository {
	return &DesignRepository{db: db}
}

func (r *DesignRepository) CreateRevision(ctx context.Context, rev *entity.DesignRevision) error {
	return r.db.WithContext(ctx).Create(rev).Error
}

// ListRevisions returns the history of an order, oldest first.
func (r *DesignRepository) ListRevisions(ctx context.Context, soID string) ([]entity.DesignRevision, error) {
	var revs []entity.DesignRevision
	err := r.db.WithContext(ctx).
		Where("so_id = ?", soID).
		Order("created_at ASC, attempt ASC").
		Find(&revs).Error
	return revs, err
}
