package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/google/uuid"
)

// reprocess puts lost pieces back at the front of the pipeline as a new pending task, due
// tomorrow, at the least loaded active work center of the product's printing technology.
func (c *core) reprocess(ctx context.Context, r *repository.Repositories, original *entity.ProductionTask, lost int, operatorID string) (*entity.ProductionTask, error) {
	wcID, err := c.reprocessWorkCenter(ctx, r, original)
	if err != nil {
		return nil, err
	}
	sourceID := original.ID
	task := &entity.ProductionTask{
		ID:           uuid.New().String(),
		TaskCode:     c.newCode("TSK"),
		SOID:         original.SOID,
		ProductID:    original.ProductID,
		ProductName:  original.ProductName,
		WorkCenterID: wcID,
		MaterialID:   original.MaterialID,
		Quantity:     lost,
		Status:       entity.TaskStatusPendingNesting,
		DueDate:      startOfDay(c.now()).AddDate(0, 0, 1),
		SourceTaskID: &sourceID,
		Notes:        fmt.Sprintf("Reprocess of %s: %d pieces scrapped", original.TaskCode, lost),
		CreatedBy:    operatorID,
	}
	if err := r.Task.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create reprocess task: %w", err)
	}
	meta := map[string]interface{}{"source_task": original.TaskCode, "lost": lost}
	if err := c.audit(ctx, r, entity.AuditTask, task.ID, "", string(task.Status), operatorID, meta); err != nil {
		return nil, err
	}
	return task, nil
}

func (c *core) reprocessWorkCenter(ctx context.Context, r *repository.Repositories, original *entity.ProductionTask) (string, error) {
	product, err := r.Product.FindByID(ctx, original.ProductID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && product.PrintCategory == "") {
		return original.WorkCenterID, nil
	}
	if err != nil {
		return "", fmt.Errorf("load product: %w", err)
	}
	candidates, err := r.WorkCenter.ListActiveByCategory(ctx, product.PrintCategory)
	if err != nil {
		return "", fmt.Errorf("list work centers: %w", err)
	}

	best, bestLoad := original.WorkCenterID, int64(-1)
	for _, wc := range candidates {
		load, err := r.Task.LoadAtWorkCenter(ctx, wc.ID)
		if err != nil {
			return "", fmt.Errorf("work center load: %w", err)
		}
		if bestLoad < 0 || load < bestLoad {
			best, bestLoad = wc.ID, load
		}
	}
	return best, nil
}
