package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TimeService books labor intervals against orders and tasks.
type TimeService struct {
	*core
}

type TimerRequest struct {
	SubjectType  entity.SubjectType
	SubjectID    string
	Phase        entity.Phase
	WorkCenterID *string
}

// StopResult is returned when a timer is stopped. Charge is set for design timers only.
type StopResult struct {
	Log     *entity.TimeLog `json:"log"`
	Minutes int             `json:"minutes"`
	Charge  *DesignCharge   `json:"charge,omitempty"`
}

// OpenTimer is a running interval with its live duration.
type OpenTimer struct {
	entity.TimeLog
	ElapsedMinutes int `json:"elapsed_minutes"`
}

func validateTimer(req TimerRequest) error {
	if _, ok := entity.ParseSubjectType(string(req.SubjectType)); !ok {
		return fmt.Errorf("%w: unknown subject type %q", ErrValidationFailed, req.SubjectType)
	}
	if _, ok := entity.ParsePhase(string(req.Phase)); !ok {
		return fmt.Errorf("%w: unknown phase %q", ErrValidationFailed, req.Phase)
	}
	if req.SubjectID == "" {
		return fmt.Errorf("%w: subject id is required", ErrValidationFailed)
	}
	switch {
	case req.Phase == entity.PhaseDesign && req.SubjectType != entity.SubjectOrder:
		return fmt.Errorf("%w: design time is booked on orders", ErrValidationFailed)
	case req.Phase == entity.PhaseProduction && req.SubjectType != entity.SubjectTask:
		return fmt.Errorf("%w: production time is booked on tasks", ErrValidationFailed)
	}
	return nil
}

// StartTimer opens an interval, or returns the one already running for the subject and phase.
// created is false when an existing interval was reused.
func (s *TimeService) StartTimer(ctx context.Context, req TimerRequest, operatorID string) (*entity.TimeLog, bool, error) {
	if err := validateTimer(req); err != nil {
		return nil, false, err
	}
	if req.SubjectType == entity.SubjectTask && req.Phase == entity.PhaseProduction {
		return s.startWork(ctx, req.SubjectID, operatorID)
	}

	var (
		log     *entity.TimeLog
		created bool
	)
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		if err := s.checkSubjectOpen(ctx, r, req.SubjectType, req.SubjectID); err != nil {
			return err
		}
		var err error
		log, created, err = s.startTimer(ctx, r, req, operatorID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Info("timer started",
			zap.String("subject_type", string(req.SubjectType)),
			zap.String("subject_id", req.SubjectID),
			zap.String("phase", string(req.Phase)),
			zap.String("operator", operatorID))
	}
	return log, created, nil
}

func (c *core) checkSubjectOpen(ctx context.Context, r *repository.Repositories, st entity.SubjectType, id string) error {
	switch st {
	case entity.SubjectOrder:
		order, err := r.Order.FindByID(ctx, id)
		if err != nil {
			return notFound("order", id, err)
		}
		if order.Status.IsTerminal() {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.SOCode, order.Status)
		}
	case entity.SubjectTask:
		task, err := r.Task.FindByID(ctx, id)
		if err != nil {
			return notFound("task", id, err)
		}
		if task.Status.IsTerminal() {
			return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, task.TaskCode, task.Status)
		}
	}
	return nil
}

// startTimer reuses the open interval or inserts a new one. A concurrent insert that loses
// against the open-timer unique index re-reads the winner.
func (c *core) startTimer(ctx context.Context, r *repository.Repositories, req TimerRequest, operatorID string) (*entity.TimeLog, bool, error) {
	existing, err := r.TimeLog.FindOpen(ctx, req.SubjectType, req.SubjectID, req.Phase)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("find open timer: %w", err)
	}

	log := &entity.TimeLog{
		ID:           uuid.New().String(),
		SubjectType:  req.SubjectType,
		SubjectID:    req.SubjectID,
		Phase:        req.Phase,
		OperatorID:   operatorID,
		WorkCenterID: req.WorkCenterID,
		StartedAt:    c.now(),
	}
	if err := r.TimeLog.CreateOpen(ctx, log); err != nil {
		if repository.IsUniqueViolation(err) {
			winner, findErr := r.TimeLog.FindOpen(ctx, req.SubjectType, req.SubjectID, req.Phase)
			if findErr == nil {
				return winner, false, nil
			}
		}
		return nil, false, fmt.Errorf("create timer: %w", err)
	}
	return log, true, nil
}

// StopTimer closes the running interval. Stopping a design timer bills the order.
func (s *TimeService) StopTimer(ctx context.Context, req TimerRequest, operatorID string) (*StopResult, error) {
	if err := validateTimer(req); err != nil {
		return nil, err
	}

	eff := &effects{}
	result := &StopResult{}
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		if req.Phase == entity.PhaseDesign {
			order, err := r.Order.LockByID(ctx, req.SubjectID)
			if err != nil {
				return notFound("order", req.SubjectID, err)
			}
			rate, err := s.billingRate(ctx, r)
			if err != nil {
				return err
			}
			log, charge, err := s.closeDesignTimer(ctx, r, order, rate, eff)
			if err != nil {
				return err
			}
			if log == nil {
				return fmt.Errorf("%w: no running design timer on %s", ErrNotFound, order.SOCode)
			}
			if err := r.Order.Save(ctx, order); err != nil {
				return fmt.Errorf("save order: %w", err)
			}
			result.Log, result.Minutes, result.Charge = log, log.Minutes, charge
			return nil
		}

		log, err := r.TimeLog.FindOpen(ctx, req.SubjectType, req.SubjectID, req.Phase)
		if err != nil {
			return notFound("running timer for", req.SubjectID, err)
		}
		minutes, err := s.closeTimer(ctx, r, log)
		if err != nil {
			return err
		}
		result.Log, result.Minutes = log, minutes
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, eff)

	s.logger.Info("timer stopped",
		zap.String("subject_type", string(req.SubjectType)),
		zap.String("subject_id", req.SubjectID),
		zap.String("phase", string(req.Phase)),
		zap.Int("minutes", result.Minutes),
		zap.String("operator", operatorID))
	return result, nil
}

// ListOpenTimers returns every running interval so forgotten timers can be closed by hand.
func (s *TimeService) ListOpenTimers(ctx context.Context) ([]OpenTimer, error) {
	logs, err := s.repos.TimeLog.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open timers: %w", err)
	}
	now := s.now()
	out := make([]OpenTimer, 0, len(logs))
	for _, l := range logs {
		out = append(out, OpenTimer{TimeLog: l, ElapsedMinutes: l.ElapsedMinutes(now)})
	}
	return out, nil
}
