package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductionService owns the production task ledger.
type ProductionService struct {
	*core
}

func (s *ProductionService) GetOrder(ctx context.Context, id string) (*entity.SalesOrder, error) {
	order, err := s.repos.Order.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("order", id, err)
	}
	return order, nil
}

// GetOrderByToken resolves a public tracking token.
func (s *ProductionService) GetOrderByToken(ctx context.Context, token string) (*entity.SalesOrder, error) {
	order, err := s.repos.Order.FindByTrackingToken(ctx, token)
	if err != nil {
		return nil, notFound("order with token", token, err)
	}
	return order, nil
}

func (s *ProductionService) GetTask(ctx context.Context, id string) (*entity.ProductionTask, error) {
	task, err := s.repos.Task.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("task", id, err)
	}
	return task, nil
}

func (s *ProductionService) ListTasks(ctx context.Context, params repository.TaskListParams) ([]entity.ProductionTask, int64, error) {
	return s.repos.Task.List(ctx, params)
}

func (s *ProductionService) ListOrderTasks(ctx context.Context, soID string) ([]entity.ProductionTask, error) {
	return s.repos.Task.ListByOrder(ctx, soID)
}

// ReleaseDirect sends a pending task straight to its machine queue. Only work centers that do
// not nest pieces on shared sheets skip batching.
func (s *ProductionService) ReleaseDirect(ctx context.Context, taskID, operatorID string) (*entity.ProductionTask, error) {
	eff := &effects{}
	var task *entity.ProductionTask
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		task, err = r.Task.LockByID(ctx, taskID)
		if err != nil {
			return notFound("task", taskID, err)
		}
		if !task.Status.CanTransition(entity.TaskStatusInMachine) {
			return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, task.TaskCode, task.Status)
		}
		wc, err := r.WorkCenter.FindByID(ctx, task.WorkCenterID)
		if err != nil {
			return notFound("work center", task.WorkCenterID, err)
		}
		if wc.AllowsNesting {
			return fmt.Errorf("%w: work center %s nests pieces, batch the task instead", ErrValidationFailed, wc.Code)
		}

		from := task.Status
		ok, err := r.Task.TransitionStatus(ctx, task.ID, from, entity.TaskStatusInMachine, nil)
		if err != nil {
			return fmt.Errorf("release task: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: task %s changed concurrently", ErrInvalidTransition, task.TaskCode)
		}
		task.Status = entity.TaskStatusInMachine
		if err := s.audit(ctx, r, entity.AuditTask, task.ID, string(from), string(task.Status), operatorID, map[string]interface{}{"release": "direct"}); err != nil {
			return err
		}
		if err := s.startProduction(ctx, r, []string{task.SOID}, operatorID); err != nil {
			return err
		}
		eff.notify(notify.WorkCenterChannel(task.WorkCenterID), "queue_updated",
			s.printer.Sprintf("Task %s released to the queue", task.TaskCode),
			map[string]interface{}{"task_id": task.ID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, eff)
	s.logger.Info("task released directly", zap.String("task_code", task.TaskCode), zap.String("operator", operatorID))
	return task, nil
}

// CancelTask cancels one non-terminal task. Cancelling the last open task of an order
// finishes the order when any of its work was done.
func (s *ProductionService) CancelTask(ctx context.Context, taskID, reason, operatorID string) (*entity.ProductionTask, error) {
	eff := &effects{}
	var task *entity.ProductionTask
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		task, err = s.lockTaskWithOrder(ctx, r, taskID)
		if err != nil {
			return err
		}
		if task.Status == entity.TaskStatusCancelled {
			return fmt.Errorf("%w: task %s is already cancelled", ErrConflictAlreadyApplied, task.TaskCode)
		}
		if err := s.cancelTask(ctx, r, task, reason, operatorID); err != nil {
			return err
		}
		_, err = s.finishOrderIfDone(ctx, r, task.SOID, operatorID, eff)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, eff)
	s.logger.Info("task cancelled", zap.String("task_code", task.TaskCode), zap.String("reason", reason))
	return task, nil
}

func (c *core) cancelTask(ctx context.Context, r *repository.Repositories, task *entity.ProductionTask, reason, operatorID string) error {
	from := task.Status
	if !from.CanTransition(entity.TaskStatusCancelled) {
		return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, task.TaskCode, from)
	}
	if log, err := r.TimeLog.FindOpen(ctx, entity.SubjectTask, task.ID, entity.PhaseProduction); err == nil {
		if _, err := c.closeTimer(ctx, r, log); err != nil {
			return err
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("find task timer: %w", err)
	}

	ok, err := r.Task.TransitionStatus(ctx, task.ID, from, entity.TaskStatusCancelled, nil)
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: task %s changed concurrently", ErrInvalidTransition, task.TaskCode)
	}
	task.Status = entity.TaskStatusCancelled
	return c.audit(ctx, r, entity.AuditTask, task.ID, string(from), string(task.Status), operatorID, map[string]interface{}{"reason": reason})
}

// CancelOrder cancels the order and every task still in progress.
func (s *ProductionService) CancelOrder(ctx context.Context, orderID, reason, operatorID string) (*entity.SalesOrder, error) {
	eff := &effects{}
	var order *entity.SalesOrder
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		order, err = r.Order.LockByID(ctx, orderID)
		if err != nil {
			return notFound("order", orderID, err)
		}
		if order.Status == entity.OrderStatusCancelled {
			return fmt.Errorf("%w: order %s is already cancelled", ErrConflictAlreadyApplied, order.SOCode)
		}
		if !order.Status.CanTransition(entity.OrderStatusCancelled) {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.SOCode, order.Status)
		}

		rate, err := s.billingRate(ctx, r)
		if err != nil {
			return err
		}
		if _, _, err := s.closeDesignTimer(ctx, r, order, rate, eff); err != nil {
			return err
		}

		tasks, err := r.Task.ListByOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		for i := range tasks {
			if tasks[i].Status.IsTerminal() {
				continue
			}
			if err := s.cancelTask(ctx, r, &tasks[i], "order cancelled", operatorID); err != nil {
				return err
			}
		}

		from := order.Status
		order.Status = entity.OrderStatusCancelled
		if err := r.Order.Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		if err := s.audit(ctx, r, entity.AuditOrder, order.ID, string(from), string(order.Status), operatorID, map[string]interface{}{"reason": reason}); err != nil {
			return err
		}
		eff.notify(notify.OrderChannel(order.TrackingToken), "order_cancelled",
			s.printer.Sprintf("Order %s was cancelled", order.SOCode), nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, eff)
	s.logger.Info("order cancelled", zap.String("so_code", order.SOCode), zap.String("operator", operatorID))
	return order, nil
}

// createTasks spawns one pending-nesting task per manufactured order line.
func (c *core) createTasks(ctx context.Context, r *repository.Repositories, order *entity.SalesOrder, operatorID string) ([]entity.ProductionTask, error) {
	var productIDs []string
	for _, item := range order.Items {
		if !item.IsDesignLabor {
			productIDs = append(productIDs, item.ProductID)
		}
	}
	products, err := r.Product.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	var tasks []entity.ProductionTask
	for _, item := range order.Items {
		if item.IsDesignLabor {
			continue
		}
		product, ok := products[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, item.ProductID)
		}
		if !product.RequiresManufacturing {
			continue
		}
		if product.WorkCenterID == nil || *product.WorkCenterID == "" {
			return nil, fmt.Errorf("%w: product %s has no work center", ErrValidationFailed, product.Code)
		}
		wc, err := r.WorkCenter.FindByID(ctx, *product.WorkCenterID)
		if err != nil {
			return nil, notFound("work center", *product.WorkCenterID, err)
		}

		qty := int(math.Ceil(item.Quantity))
		due, err := c.projectDueDate(ctx, r, wc, qty)
		if err != nil {
			return nil, err
		}
		itemID := item.ID
		task := entity.ProductionTask{
			ID:           uuid.New().String(),
			TaskCode:     c.newCode("TSK"),
			SOID:         order.ID,
			SOItemID:     &itemID,
			ProductID:    product.ID,
			ProductName:  product.Name,
			WorkCenterID: wc.ID,
			MaterialID:   product.MaterialID,
			Quantity:     qty,
			Status:       entity.TaskStatusPendingNesting,
			DueDate:      due,
			CreatedBy:    operatorID,
		}
		if err := r.Task.Create(ctx, &task); err != nil {
			return nil, fmt.Errorf("create task: %w", err)
		}
		if err := c.audit(ctx, r, entity.AuditTask, task.ID, "", string(task.Status), operatorID, map[string]interface{}{"so_code": order.SOCode}); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// projectDueDate estimates delivery from the work center load: one day when the new quantity
// fits in the daily capacity, two days otherwise. A center without a capacity is never full.
func (c *core) projectDueDate(ctx context.Context, r *repository.Repositories, wc *entity.WorkCenter, qty int) (time.Time, error) {
	load, err := r.Task.LoadAtWorkCenter(ctx, wc.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("work center load: %w", err)
	}
	days := 1
	if wc.DailyCapacity > 0 && float64(load+int64(qty)) > wc.DailyCapacity {
		days = 2
	}
	return startOfDay(c.now()).AddDate(0, 0, days), nil
}

// startProduction moves orders still in pre-press to production.
func (c *core) startProduction(ctx context.Context, r *repository.Repositories, soIDs []string, operatorID string) error {
	ids, err := r.Order.ListIDsByStatus(ctx, soIDs, entity.OrderStatusPrePress)
	if err != nil {
		return fmt.Errorf("list pre-press orders: %w", err)
	}
	for _, id := range ids {
		ok, err := r.Order.AdvanceStatus(ctx, id, []entity.OrderStatus{entity.OrderStatusPrePress}, entity.OrderStatusInProduction, nil)
		if err != nil {
			return fmt.Errorf("advance order: %w", err)
		}
		if !ok {
			continue
		}
		if err := c.audit(ctx, r, entity.AuditOrder, id, string(entity.OrderStatusPrePress), string(entity.OrderStatusInProduction), operatorID, nil); err != nil {
			return err
		}
	}
	return nil
}

// lockTaskWithOrder locks the order of a task before the task itself. Every path that
// changes both takes the order lock first.
func (c *core) lockTaskWithOrder(ctx context.Context, r *repository.Repositories, taskID string) (*entity.ProductionTask, error) {
	task, err := r.Task.FindByID(ctx, taskID)
	if err != nil {
		return nil, notFound("task", taskID, err)
	}
	if _, err := r.Order.LockByID(ctx, task.SOID); err != nil {
		return nil, notFound("order", task.SOID, err)
	}
	task, err = r.Task.LockByID(ctx, taskID)
	if err != nil {
		return nil, notFound("task", taskID, err)
	}
	return task, nil
}

// finishOrderIfDone finishes the order once none of its original tasks is outstanding and at
// least one is done. The order row is locked before counting so that two tasks finishing at
// the same moment serialize here, and the advance itself is conditional.
func (c *core) finishOrderIfDone(ctx context.Context, r *repository.Repositories, soID, operatorID string, eff *effects) (bool, error) {
	order, err := r.Order.LockByID(ctx, soID)
	if err != nil {
		return false, notFound("order", soID, err)
	}
	if order.Status.IsTerminal() {
		return false, nil
	}
	progress, err := r.Task.CountOrderProgress(ctx, soID)
	if err != nil {
		return false, fmt.Errorf("count order progress: %w", err)
	}
	if progress.Outstanding > 0 || progress.Done == 0 {
		return false, nil
	}

	now := c.now()
	from := order.Status
	ok, err := r.Order.AdvanceStatus(ctx, soID,
		[]entity.OrderStatus{entity.OrderStatusPrePress, entity.OrderStatusInProduction},
		entity.OrderStatusFinished,
		map[string]interface{}{"finished_at": now})
	if err != nil {
		return false, fmt.Errorf("finish order: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := c.audit(ctx, r, entity.AuditOrder, soID, string(from), string(entity.OrderStatusFinished), operatorID, nil); err != nil {
		return false, err
	}
	eff.notify(notify.OrderChannel(order.TrackingToken), "order_finished",
		c.printer.Sprintf("Order %s is ready", order.SOCode),
		map[string]interface{}{"so_code": order.SOCode})
	c.logger.Info("order finished", zap.String("so_code", order.SOCode))
	return true, nil
}
