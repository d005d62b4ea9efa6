package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// TimeLogRepository persists labor intervals.
type TimeLogRepository struct {
	db *gorm.DB
}

func NewTimeLogRepository(db *gorm.DB) *TimeLogRepository {
	return &TimeLogRepository{db: db}
}

// FindOpen returns the running interval for a subject and phase.
func (r *TimeLogRepository) FindOpen(ctx context.Context, subjectType entity.SubjectType, subjectID string, phase entity.Phase) (*entity.TimeLog, error) {
	var log entity.TimeLog
	err := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ? AND phase = ? AND ended_at IS NULL", subjectType, subjectID, phase).
		First(&log).Error
	if err != nil {
		return nil, translate(err)
	}
	return &log, nil
}

// CreateOpen inserts a running interval. The insert runs in its own (nested) transaction so
// that a unique violation on the open-timer index does not poison an enclosing transaction.
func (r *TimeLogRepository) CreateOpen(ctx context.Context, log *entity.TimeLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(log).Error
	})
}

// Close ends a running interval; it reports false when the interval was already closed.
func (r *TimeLogRepository) Close(ctx context.Context, id string, endedAt time.Time, minutes int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.TimeLog{}).
		Where("id = ? AND ended_at IS NULL", id).
		Updates(map[string]interface{}{"ended_at": endedAt, "minutes": minutes})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListOpen returns every running interval, oldest first.
func (r *TimeLogRepository) ListOpen(ctx context.Context) ([]entity.TimeLog, error) {
	var logs []entity.TimeLog
	err := r.db.WithContext(ctx).
		Where("ended_at IS NULL").
		Order("started_at ASC").
		Find(&logs).Error
	return logs, err
}

// ListOpenBySubjects returns running intervals of one phase keyed by subject id.
func (r *TimeLogRepository) ListOpenBySubjects(ctx context.Context, subjectType entity.SubjectType, ids []string, phase entity.Phase) (map[string]entity.TimeLog, error) {
	out := make(map[string]entity.TimeLog, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var logs []entity.TimeLog
	err := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id IN ? AND phase = ? AND ended_at IS NULL", subjectType, ids, phase).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	for _, l := range logs {
		out[l.SubjectID] = l
	}
	return out, nil
}

func (r *TimeLogRepository) ListBySubject(ctx context.Context, subjectType entity.SubjectType, subjectID string) ([]entity.TimeLog, error) {
	var logs []entity.TimeLog
	err := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", subjectType, subjectID).
		Order("started_at ASC").
		Find(&logs).Error
	return logs, err
}
