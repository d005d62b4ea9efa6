package service

import (
	"context"
	"fmt"
	"math"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/nesting"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BatchService groups pending tasks onto shared substrate sheets.
type BatchService struct {
	*core
}

type CreateBatchRequest struct {
	MaterialID string   `json:"material_id" binding:"required"`
	TaskIDs    []string `json:"task_ids" binding:"required,min=1"`
}

type MarkPrintedRequest struct {
	MaterialID   string  `json:"material_id"` // defaults to the batch substrate
	QuantityUsed float64 `json:"quantity_used" binding:"required,gt=0"`
}

func (s *BatchService) GetBatch(ctx context.Context, id string) (*entity.SubstrateBatch, error) {
	batch, err := s.repos.Batch.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("batch", id, err)
	}
	return batch, nil
}

func (s *BatchService) ListBatches(ctx context.Context, params repository.BatchListParams) ([]entity.SubstrateBatch, int64, error) {
	return s.repos.Batch.List(ctx, params)
}

// CreateBatch allocates each task's full quantity to a new sheet. No material is consumed yet.
func (s *BatchService) CreateBatch(ctx context.Context, req CreateBatchRequest, operatorID string) (*entity.SubstrateBatch, error) {
	taskIDs := dedupe(req.TaskIDs)
	if req.MaterialID == "" || len(taskIDs) == 0 {
		return nil, fmt.Errorf("%w: substrate and at least one task are required", ErrValidationFailed)
	}

	var batch *entity.SubstrateBatch
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		material, err := r.Material.FindByID(ctx, req.MaterialID)
		if err != nil {
			return notFound("material", req.MaterialID, err)
		}
		tasks, err := r.Task.FindByIDs(ctx, taskIDs)
		if err != nil {
			return fmt.Errorf("load tasks: %w", err)
		}
		if len(tasks) != len(taskIDs) {
			return fmt.Errorf("%w: %d of %d tasks exist", ErrNotFound, len(tasks), len(taskIDs))
		}

		batch = &entity.SubstrateBatch{
			ID:         uuid.New().String(),
			BatchCode:  s.newCode("PLG"),
			MaterialID: material.ID,
			OperatorID: operatorID,
			Status:     entity.BatchStatusBatched,
		}
		if err := r.Batch.Create(ctx, batch); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}

		var sheets float64
		for i := range tasks {
			alloc, err := s.allocate(ctx, r, batch, material, &tasks[i], operatorID)
			if err != nil {
				return err
			}
			sheets += float64(alloc.Quantity) / float64(alloc.PiecesPerSheet)
			batch.Allocations = append(batch.Allocations, *alloc)
		}
		batch.EstimatedSheets = estimateSheets(sheets)
		if err := r.Batch.Save(ctx, batch); err != nil {
			return fmt.Errorf("save batch: %w", err)
		}
		return s.audit(ctx, r, entity.AuditBatch, batch.ID, "", string(batch.Status), operatorID,
			map[string]interface{}{"tasks": len(tasks), "estimated_sheets": batch.EstimatedSheets})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("batch created",
		zap.String("batch_code", batch.BatchCode),
		zap.Int("tasks", len(batch.Allocations)),
		zap.Int("estimated_sheets", batch.EstimatedSheets),
		zap.String("operator", operatorID))
	return batch, nil
}

// AddToBatch allocates one more pending task to a batch that has not been printed.
func (s *BatchService) AddToBatch(ctx context.Context, batchID, taskID, operatorID string) (*entity.SubstrateBatch, error) {
	var batch *entity.SubstrateBatch
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		batch, err = r.Batch.LockByID(ctx, batchID)
		if err != nil {
			return notFound("batch", batchID, err)
		}
		if batch.Status != entity.BatchStatusBatched {
			return fmt.Errorf("%w: batch %s is %s", ErrInvalidTransition, batch.BatchCode, batch.Status)
		}
		material, err := r.Material.FindByID(ctx, batch.MaterialID)
		if err != nil {
			return notFound("material", batch.MaterialID, err)
		}
		task, err := r.Task.FindByID(ctx, taskID)
		if err != nil {
			return notFound("task", taskID, err)
		}
		alloc, err := s.allocate(ctx, r, batch, material, task, operatorID)
		if err != nil {
			return err
		}
		batch.Allocations = append(batch.Allocations, *alloc)

		var sheets float64
		for _, a := range batch.Allocations {
			if a.PiecesPerSheet > 0 {
				sheets += float64(a.Quantity) / float64(a.PiecesPerSheet)
			}
		}
		batch.EstimatedSheets = estimateSheets(sheets)
		if err := r.Batch.Save(ctx, batch); err != nil {
			return fmt.Errorf("save batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("task added to batch", zap.String("batch_code", batch.BatchCode), zap.String("task_id", taskID))
	return batch, nil
}

// allocate nests one task on the batch substrate and moves it to BATCHED. The status change is
// conditional so two operators cannot batch the same task.
func (c *core) allocate(ctx context.Context, r *repository.Repositories, batch *entity.SubstrateBatch, material *entity.Material, task *entity.ProductionTask, operatorID string) (*entity.BatchAllocation, error) {
	if task.Status != entity.TaskStatusPendingNesting {
		return nil, fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, task.TaskCode, task.Status)
	}
	wc, err := r.WorkCenter.FindByID(ctx, task.WorkCenterID)
	if err != nil {
		return nil, notFound("work center", task.WorkCenterID, err)
	}
	if !wc.AllowsNesting {
		return nil, fmt.Errorf("%w: work center %s does not nest pieces", ErrValidationFailed, wc.Code)
	}
	product, err := r.Product.FindByID(ctx, task.ProductID)
	if err != nil {
		return nil, notFound("product", task.ProductID, err)
	}
	layout := nesting.Plan(
		nesting.Dimensions{Width: product.PieceWidth, Height: product.PieceHeight},
		nesting.Dimensions{Width: material.SheetWidth, Height: material.SheetHeight},
		wc.SafetyMargin, c.spacing, product.AllowRotate, task.Quantity)
	if layout.PiecesPerSheet == 0 {
		return nil, fmt.Errorf("%w: %s does not fit on %s", ErrValidationFailed, product.Code, material.Code)
	}

	batchID := batch.ID
	ok, err := r.Task.TransitionStatus(ctx, task.ID, entity.TaskStatusPendingNesting, entity.TaskStatusBatched,
		map[string]interface{}{"batch_id": batchID})
	if err != nil {
		return nil, fmt.Errorf("batch task: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: task %s was batched concurrently", ErrInvalidTransition, task.TaskCode)
	}
	task.Status = entity.TaskStatusBatched
	task.BatchID = &batchID

	alloc := &entity.BatchAllocation{
		ID:             uuid.New().String(),
		BatchID:        batch.ID,
		TaskID:         task.ID,
		Quantity:       task.Quantity,
		PiecesPerSheet: layout.PiecesPerSheet,
	}
	if err := r.Batch.CreateAllocation(ctx, alloc); err != nil {
		return nil, fmt.Errorf("create allocation: %w", err)
	}
	err = c.audit(ctx, r, entity.AuditTask, task.ID, string(entity.TaskStatusPendingNesting), string(task.Status), operatorID,
		map[string]interface{}{"batch_code": batch.BatchCode, "pieces_per_sheet": layout.PiecesPerSheet})
	if err != nil {
		return nil, err
	}
	return alloc, nil
}

// MarkPrinted consumes the substrate and releases every batched task to its machine queue.
// It is all or nothing: with too little stock neither the batch, the tasks nor the stock change.
func (s *BatchService) MarkPrinted(ctx context.Context, batchID string, req MarkPrintedRequest, operatorID string) (*entity.SubstrateBatch, error) {
	if req.QuantityUsed <= 0 {
		return nil, fmt.Errorf("%w: quantity used must be positive", ErrValidationFailed)
	}

	eff := &effects{}
	var batch *entity.SubstrateBatch
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		batch, err = r.Batch.LockByID(ctx, batchID)
		if err != nil {
			return notFound("batch", batchID, err)
		}
		if !batch.Status.CanTransition(entity.BatchStatusPrinted) {
			return fmt.Errorf("%w: batch %s is %s", ErrInvalidTransition, batch.BatchCode, batch.Status)
		}
		// orders are locked before their tasks change, as everywhere else
		batched, err := r.Task.ListByBatch(ctx, batch.ID)
		if err != nil {
			return fmt.Errorf("list batch tasks: %w", err)
		}
		orderIDs := make([]string, 0, len(batched))
		for _, task := range batched {
			orderIDs = append(orderIDs, task.SOID)
		}
		if err := r.Order.LockIDs(ctx, dedupe(orderIDs)); err != nil {
			return fmt.Errorf("lock orders: %w", err)
		}

		materialID := req.MaterialID
		if materialID == "" {
			materialID = batch.MaterialID
		}
		material, err := r.Material.LockByID(ctx, materialID)
		if err != nil {
			return notFound("material", materialID, err)
		}
		if material.Quantity < req.QuantityUsed {
			return fmt.Errorf("%w: %s has %.4f %s on hand, %.4f requested",
				ErrInsufficientStock, material.Code, material.Quantity, material.Unit, req.QuantityUsed)
		}

		now := s.now()
		if err := r.Material.Decrement(ctx, material.ID, req.QuantityUsed, now); err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		err = r.Material.CreateTransaction(ctx, &entity.InventoryTransaction{
			ID:              uuid.New().String(),
			MaterialID:      material.ID,
			MaterialCode:    material.Code,
			TransactionType: entity.TxTypeBatchPrintOut,
			Quantity:        -req.QuantityUsed,
			ReferenceType:   entity.RefTypeBatch,
			ReferenceID:     batch.ID,
			ReferenceCode:   batch.BatchCode,
			CreatedBy:       operatorID,
		})
		if err != nil {
			return fmt.Errorf("record inventory transaction: %w", err)
		}

		from := batch.Status
		batch.Status = entity.BatchStatusPrinted
		batch.UsedMaterialID = &material.ID
		batch.UsedQuantity = req.QuantityUsed
		batch.PrintedAt = &now
		if err := r.Batch.Save(ctx, batch); err != nil {
			return fmt.Errorf("save batch: %w", err)
		}
		if err := s.audit(ctx, r, entity.AuditBatch, batch.ID, string(from), string(batch.Status), operatorID,
			map[string]interface{}{"material": material.Code, "quantity_used": req.QuantityUsed}); err != nil {
			return err
		}

		tasks, err := r.Task.ListByBatch(ctx, batch.ID)
		if err != nil {
			return fmt.Errorf("list batch tasks: %w", err)
		}
		var soIDs []string
		queues := map[string]int{}
		for _, task := range tasks {
			if task.Status != entity.TaskStatusBatched {
				continue
			}
			if err := s.releaseToMachine(ctx, r, &task, operatorID); err != nil {
				return err
			}
			soIDs = append(soIDs, task.SOID)
			queues[task.WorkCenterID]++
		}
		if err := s.startProduction(ctx, r, dedupe(soIDs), operatorID); err != nil {
			return err
		}
		for wcID, n := range queues {
			eff.notify(notify.WorkCenterChannel(wcID), "queue_updated",
				s.printer.Sprintf("Sheet %s printed, %d tasks ready", batch.BatchCode, n),
				map[string]interface{}{"batch_id": batch.ID, "tasks": n})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, eff)
	s.logger.Info("batch printed",
		zap.String("batch_code", batch.BatchCode),
		zap.Float64("quantity_used", req.QuantityUsed),
		zap.String("operator", operatorID))
	return batch, nil
}

// releaseToMachine walks a batched task through PRINTED to IN_MACHINE.
func (c *core) releaseToMachine(ctx context.Context, r *repository.Repositories, task *entity.ProductionTask, operatorID string) error {
	for _, to := range []entity.TaskStatus{entity.TaskStatusPrinted, entity.TaskStatusInMachine} {
		from := task.Status
		if !from.CanTransition(to) {
			return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, task.TaskCode, from)
		}
		ok, err := r.Task.TransitionStatus(ctx, task.ID, from, to, nil)
		if err != nil {
			return fmt.Errorf("advance task: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: task %s changed concurrently", ErrInvalidTransition, task.TaskCode)
		}
		task.Status = to
		if err := c.audit(ctx, r, entity.AuditTask, task.ID, string(from), string(to), operatorID, nil); err != nil {
			return err
		}
	}
	return nil
}

// CancelBatch dissolves an unprinted batch and returns its tasks to nesting.
func (s *BatchService) CancelBatch(ctx context.Context, batchID, operatorID string) (*entity.SubstrateBatch, error) {
	var batch *entity.SubstrateBatch
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		batch, err = r.Batch.LockByID(ctx, batchID)
		if err != nil {
			return notFound("batch", batchID, err)
		}
		if batch.Status == entity.BatchStatusCancelled {
			return fmt.Errorf("%w: batch %s is already cancelled", ErrConflictAlreadyApplied, batch.BatchCode)
		}
		if !batch.Status.CanTransition(entity.BatchStatusCancelled) {
			return fmt.Errorf("%w: batch %s is %s", ErrInvalidTransition, batch.BatchCode, batch.Status)
		}

		tasks, err := r.Task.ListByBatch(ctx, batch.ID)
		if err != nil {
			return fmt.Errorf("list batch tasks: %w", err)
		}
		for _, task := range tasks {
			if task.Status != entity.TaskStatusBatched {
				continue
			}
			ok, err := r.Task.TransitionStatus(ctx, task.ID, entity.TaskStatusBatched, entity.TaskStatusPendingNesting,
				map[string]interface{}{"batch_id": nil})
			if err != nil {
				return fmt.Errorf("release task: %w", err)
			}
			if !ok {
				return fmt.Errorf("%w: task %s changed concurrently", ErrInvalidTransition, task.TaskCode)
			}
			if err := s.audit(ctx, r, entity.AuditTask, task.ID, string(entity.TaskStatusBatched), string(entity.TaskStatusPendingNesting), operatorID,
				map[string]interface{}{"batch_code": batch.BatchCode}); err != nil {
				return err
			}
		}

		now := s.now()
		from := batch.Status
		batch.Status = entity.BatchStatusCancelled
		batch.CancelledAt = &now
		if err := r.Batch.Save(ctx, batch); err != nil {
			return fmt.Errorf("save batch: %w", err)
		}
		return s.audit(ctx, r, entity.AuditBatch, batch.ID, string(from), string(batch.Status), operatorID, nil)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("batch cancelled", zap.String("batch_code", batch.BatchCode), zap.String("operator", operatorID))
	return batch, nil
}

// Calculate is the read-only nesting preview.
func (s *BatchService) Calculate(piece, sheet nesting.Dimensions, bleed float64, spacing *float64, allowRotate bool, quantity int) nesting.Layout {
	gap := s.spacing
	if spacing != nil {
		gap = *spacing
	}
	return nesting.Plan(piece, sheet, bleed, gap, allowRotate, quantity)
}

func estimateSheets(sheets float64) int {
	return int(math.Ceil(sheets - 1e-9))
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
