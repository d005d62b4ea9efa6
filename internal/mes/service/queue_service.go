package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/notify"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// QueueService runs the machine queues of the shop floor.
type QueueService struct {
	*core
}

// RunningTimer is the live production timer of a queued task.
type RunningTimer struct {
	OperatorID     string    `json:"operator_id"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedMinutes int       `json:"elapsed_minutes"`
}

type QueueEntry struct {
	Task  entity.ProductionTask `json:"task"`
	Timer *RunningTimer         `json:"timer,omitempty"`
}

// FinishResult reports what finishing a task changed.
type FinishResult struct {
	Task          *entity.ProductionTask `json:"task"`
	Minutes       int                    `json:"minutes"`
	Reprocess     *entity.ProductionTask `json:"reprocess,omitempty"`
	OrderFinished bool                   `json:"order_finished"`
}

// ListQueue returns the tasks waiting at a machine by ascending due date, with the running
// timer of those in progress.
func (s *QueueService) ListQueue(ctx context.Context, workCenterID string) ([]QueueEntry, error) {
	if _, err := s.repos.WorkCenter.FindByID(ctx, workCenterID); err != nil {
		return nil, notFound("work center", workCenterID, err)
	}
	tasks, err := s.repos.Task.ListQueue(ctx, workCenterID)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	timers, err := s.repos.TimeLog.ListOpenBySubjects(ctx, entity.SubjectTask, ids, entity.PhaseProduction)
	if err != nil {
		return nil, fmt.Errorf("list running timers: %w", err)
	}

	now := s.now()
	entries := make([]QueueEntry, 0, len(tasks))
	for _, t := range tasks {
		entry := QueueEntry{Task: t}
		if log, ok := timers[t.ID]; ok {
			entry.Timer = &RunningTimer{
				OperatorID:     log.OperatorID,
				StartedAt:      log.StartedAt,
				ElapsedMinutes: log.ElapsedMinutes(now),
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// StartWork opens the production timer of a queued task. created is false when the task was
// already being worked on.
func (s *QueueService) StartWork(ctx context.Context, taskID, operatorID string) (*entity.TimeLog, bool, error) {
	return s.startWork(ctx, taskID, operatorID)
}

func (c *core) startWork(ctx context.Context, taskID, operatorID string) (*entity.TimeLog, bool, error) {
	var (
		log     *entity.TimeLog
		created bool
		task    *entity.ProductionTask
	)
	err := c.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		task, err = r.Task.LockByID(ctx, taskID)
		if err != nil {
			return notFound("task", taskID, err)
		}
		if task.Status != entity.TaskStatusInMachine {
			return fmt.Errorf("%w: task %s is %s, not in a machine queue", ErrInvalidTransition, task.TaskCode, task.Status)
		}
		wcID := task.WorkCenterID
		log, created, err = c.startTimer(ctx, r, TimerRequest{
			SubjectType:  entity.SubjectTask,
			SubjectID:    task.ID,
			Phase:        entity.PhaseProduction,
			WorkCenterID: &wcID,
		}, operatorID)
		if err != nil {
			return err
		}
		if task.StartedAt == nil {
			if err := r.Task.MarkStarted(ctx, task.ID, log.StartedAt); err != nil {
				return fmt.Errorf("mark task started: %w", err)
			}
			task.StartedAt = &log.StartedAt
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		c.logger.Info("work started", zap.String("task_code", task.TaskCode), zap.String("operator", operatorID))
	}
	return log, created, nil
}

// FinishWork completes a queued task in one transaction: the timer is closed, scrap consumes
// base material and re-enters as a new task, the task is done and the order finishes when it
// was the last one.
func (s *QueueService) FinishWork(ctx context.Context, taskID string, scrap int, operatorID string) (*FinishResult, error) {
	if scrap < 0 {
		return nil, fmt.Errorf("%w: scrap cannot be negative", ErrValidationFailed)
	}

	eff := &effects{}
	result := &FinishResult{}
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		task, err := s.lockTaskWithOrder(ctx, r, taskID)
		if err != nil {
			return err
		}
		if task.Status == entity.TaskStatusDone {
			return fmt.Errorf("%w: task %s is already done", ErrConflictAlreadyApplied, task.TaskCode)
		}
		if !task.Status.CanTransition(entity.TaskStatusDone) {
			return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, task.TaskCode, task.Status)
		}
		if scrap > task.Quantity {
			return fmt.Errorf("%w: scrap %d exceeds the %d pieces of task %s", ErrValidationFailed, scrap, task.Quantity, task.TaskCode)
		}
		result.Task = task

		log, err := r.TimeLog.FindOpen(ctx, entity.SubjectTask, task.ID, entity.PhaseProduction)
		switch {
		case err == nil:
			if result.Minutes, err = s.closeTimer(ctx, r, log); err != nil {
				return err
			}
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("find task timer: %w", err)
		}

		if scrap > 0 {
			if result.Reprocess, err = s.consumeScrap(ctx, r, task, scrap, operatorID, eff); err != nil {
				return err
			}
		}

		now := s.now()
		ok, err := r.Task.TransitionStatus(ctx, task.ID, entity.TaskStatusInMachine, entity.TaskStatusDone,
			map[string]interface{}{"finished_at": now, "scrap_qty": scrap})
		if err != nil {
			return fmt.Errorf("finish task: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: task %s changed concurrently", ErrInvalidTransition, task.TaskCode)
		}
		task.Status = entity.TaskStatusDone
		task.FinishedAt = &now
		task.ScrapQty = scrap
		if err := s.audit(ctx, r, entity.AuditTask, task.ID, string(entity.TaskStatusInMachine), string(task.Status), operatorID,
			map[string]interface{}{"minutes": result.Minutes, "scrap": scrap}); err != nil {
			return err
		}

		result.OrderFinished, err = s.finishOrderIfDone(ctx, r, task.SOID, operatorID, eff)
		if err != nil {
			return err
		}
		eff.notify(notify.WorkCenterChannel(task.WorkCenterID), "queue_updated",
			s.printer.Sprintf("Task %s finished", task.TaskCode),
			map[string]interface{}{"task_id": task.ID, "scrap": scrap})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, eff)
	s.logger.Info("work finished",
		zap.String("task_code", result.Task.TaskCode),
		zap.Int("minutes", result.Minutes),
		zap.Int("scrap", scrap),
		zap.Bool("order_finished", result.OrderFinished),
		zap.String("operator", operatorID))
	return result, nil
}

// consumeScrap takes the scrapped quantity of base material out of stock and re-enters the
// lost pieces.
func (c *core) consumeScrap(ctx context.Context, r *repository.Repositories, task *entity.ProductionTask, scrap int, operatorID string, eff *effects) (*entity.ProductionTask, error) {
	if task.MaterialID == nil || *task.MaterialID == "" {
		return nil, fmt.Errorf("%w: task %s has no base material to charge scrap against", ErrValidationFailed, task.TaskCode)
	}
	material, err := r.Material.LockByID(ctx, *task.MaterialID)
	if err != nil {
		return nil, notFound("material", *task.MaterialID, err)
	}
	qty := float64(scrap)
	if material.Quantity < qty {
		return nil, fmt.Errorf("%w: %s has %.4f %s on hand, scrap needs %d",
			ErrInsufficientStock, material.Code, material.Quantity, material.Unit, scrap)
	}
	now := c.now()
	if err := r.Material.Decrement(ctx, material.ID, qty, now); err != nil {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}
	err = r.Material.CreateTransaction(ctx, &entity.InventoryTransaction{
		ID:              uuid.New().String(),
		MaterialID:      material.ID,
		MaterialCode:    material.Code,
		TransactionType: entity.TxTypeScrapOut,
		Quantity:        -qty,
		ReferenceType:   entity.RefTypeTask,
		ReferenceID:     task.ID,
		ReferenceCode:   task.TaskCode,
		CreatedBy:       operatorID,
	})
	if err != nil {
		return nil, fmt.Errorf("record inventory transaction: %w", err)
	}

	re, err := c.reprocess(ctx, r, task, scrap, operatorID)
	if err != nil {
		return nil, err
	}
	if entry, ok := c.scrapEntry(task, material, scrap, now); ok {
		eff.post(entry)
	}
	eff.notify(notify.WorkCenterChannel(re.WorkCenterID), "task_created",
		c.printer.Sprintf("Reprocess task %s: %d x %s pending nesting", re.TaskCode, re.Quantity, re.ProductName),
		map[string]interface{}{"task_id": re.ID, "source_task_id": task.ID})
	c.logger.Info("scrap re-entered",
		zap.String("task_code", task.TaskCode),
		zap.String("reprocess_code", re.TaskCode),
		zap.Int("lost", scrap))
	return re, nil
}

var queueExportHeaders = []string{"#", "Task", "Product", "Quantity", "Due date", "Status", "Operator", "Elapsed (min)", "Notes"}

// ExportQueue renders a machine queue as a spreadsheet for the floor.
func (s *QueueService) ExportQueue(ctx context.Context, workCenterID string) (*excelize.File, string, error) {
	wc, err := s.repos.WorkCenter.FindByID(ctx, workCenterID)
	if err != nil {
		return nil, "", notFound("work center", workCenterID, err)
	}
	entries, err := s.ListQueue(ctx, workCenterID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "Queue"
	f.SetSheetName("Sheet1", sheet)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range queueExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	var pieces int
	for i, e := range entries {
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), i+1)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), e.Task.TaskCode)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), e.Task.ProductName)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), e.Task.Quantity)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), e.Task.DueDate.Format("2006-01-02"))
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), string(e.Task.Status))
		if e.Timer != nil {
			f.SetCellValue(sheet, fmt.Sprintf("G%d", row), e.Timer.OperatorID)
			f.SetCellValue(sheet, fmt.Sprintf("H%d", row), e.Timer.ElapsedMinutes)
		}
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), e.Task.Notes)
		pieces += e.Task.Quantity
	}

	summaryRow := len(entries) + 2
	summaryStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "Total")
	f.SetCellValue(sheet, fmt.Sprintf("B%d", summaryRow), fmt.Sprintf("%d tasks", len(entries)))
	f.SetCellValue(sheet, fmt.Sprintf("D%d", summaryRow), pieces)
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("I%d", summaryRow), summaryStyle)

	colWidths := []float64{5, 24, 28, 10, 12, 12, 16, 14, 30}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	filename := fmt.Sprintf("queue_%s_%s.xlsx", wc.Code, s.now().Format("20060102"))
	return f, filename, nil
}
