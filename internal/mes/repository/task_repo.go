package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// TaskRepository persists production tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *entity.ProductionTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *TaskRepository) FindByID(ctx context.Context, id string) (*entity.ProductionTask, error) {
	var task entity.ProductionTask
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, translate(err)
	}
	return &task, nil
}

// LockByID reads the task with a row lock; callers must be inside a transaction.
func (r *TaskRepository) LockByID(ctx context.Context, id string) (*entity.ProductionTask, error) {
	var task entity.ProductionTask
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, translate(err)
	}
	return &task, nil
}

// FindByIDs returns the tasks ordered by id, so concurrent batches update them in the same order.
// Missing ids are skipped.
func (r *TaskRepository) FindByIDs(ctx context.Context, ids []string) ([]entity.ProductionTask, error) {
	var tasks []entity.ProductionTask
	if len(ids) == 0 {
		return tasks, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&tasks).Error
	return tasks, err
}

// TransitionStatus moves a task from `from` to `to` with optional extra columns.
// It reports false, without error, when the task was not in `from`.
func (r *TaskRepository) TransitionStatus(ctx context.Context, id string, from, to entity.TaskStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&entity.ProductionTask{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkStarted records the first time work began on the task.
func (r *TaskRepository) MarkStarted(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entity.ProductionTask{}).
		Where("id = ? AND started_at IS NULL", id).
		Update("started_at", at).Error
}

func (r *TaskRepository) ListByBatch(ctx context.Context, batchID string) ([]entity.ProductionTask, error) {
	var tasks []entity.ProductionTask
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("due_date ASC, created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

func (r *TaskRepository) ListByOrder(ctx context.Context, soID string) ([]entity.ProductionTask, error) {
	var tasks []entity.ProductionTask
	err := r.db.WithContext(ctx).
		Where("so_id = ?", soID).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

// OrderProgress counts the original (non-reprocess) tasks of an order.
type OrderProgress struct {
	Outstanding int64
	Done        int64
}

// CountOrderProgress counts outstanding and done original tasks of an order.
// Scrap re-entry tasks are tracked on their own and do not hold the order open.
func (r *TaskRepository) CountOrderProgress(ctx context.Context, soID string) (OrderProgress, error) {
	var p OrderProgress
	base := r.db.WithContext(ctx).Model(&entity.ProductionTask{}).
		Where("so_id = ? AND source_task_id IS NULL", soID)
	if err := base.Session(&gorm.Session{}).
		Where("status NOT IN ?", entity.TerminalTaskStatuses).
		Count(&p.Outstanding).Error; err != nil {
		return p, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("status = ?", entity.TaskStatusDone).
		Count(&p.Done).Error; err != nil {
		return p, err
	}
	return p, nil
}

// LoadAtWorkCenter sums the quantity of every non-terminal task queued at a work center.
func (r *TaskRepository) LoadAtWorkCenter(ctx context.Context, workCenterID string) (int64, error) {
	var result struct{ Total int64 }
	err := r.db.WithContext(ctx).Model(&entity.ProductionTask{}).
		Select("COALESCE(SUM(quantity), 0) AS total").
		Where("work_center_id = ? AND status NOT IN ?", workCenterID, entity.TerminalTaskStatuses).
		Scan(&result).Error
	return result.Total, err
}

// ListQueue returns the machine queue of a work center by ascending due date.
func (r *TaskRepository) ListQueue(ctx context.Context, workCenterID string) ([]entity.ProductionTask, error) {
	var tasks []entity.ProductionTask
	err := r.db.WithContext(ctx).
		Where("work_center_id = ? AND status = ?", workCenterID, entity.TaskStatusInMachine).
		Order("due_date ASC, created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

type TaskListParams struct {
	Status       string
	WorkCenterID string
	SOID         string
	Page         int
	Size         int
}

func (r *TaskRepository) List(ctx context.Context, params TaskListParams) ([]entity.ProductionTask, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.ProductionTask{})
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.WorkCenterID != "" {
		query = query.Where("work_center_id = ?", params.WorkCenterID)
	}
	if params.SOID != "" {
		query = query.Where("so_id = ?", params.SOID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page, size := normalizePage(params.Page, params.Size)
	var tasks []entity.ProductionTask
	err := query.Order("due_date ASC, created_at ASC").Offset((page - 1) * size).Limit(size).Find(&tasks).Error
	return tasks, total, err
}
