package service_test

import (
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTime_StartReusesRunningTimer(t *testing.T) {
	e := newTestEnv(t)
	order := e.order(5)
	req := service.TimerRequest{SubjectType: entity.SubjectOrder, SubjectID: order.ID, Phase: entity.PhaseDesign}

	first, created, err := e.svc.Time.StartTimer(e.ctx, req, operator)
	require.NoError(t, err)
	assert.True(t, created)

	e.clock.Advance(5 * time.Minute)
	second, created, err := e.svc.Time.StartTimer(e.ctx, req, "op-002")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, operator, second.OperatorID)

	// a different phase on the same subject is a separate interval
	other, created, err := e.svc.Time.StartTimer(e.ctx, service.TimerRequest{
		SubjectType: entity.SubjectOrder, SubjectID: order.ID, Phase: entity.PhasePrePress,
	}, operator)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	var open int64
	e.db.Model(&entity.TimeLog{}).Where("ended_at IS NULL").Count(&open)
	assert.Equal(t, int64(2), open)
}

func TestTime_Validation(t *testing.T) {
	e := newTestEnv(t)
	order := e.order(5)

	tests := []struct {
		name string
		req  service.TimerRequest
	}{
		{name: "unknown phase", req: service.TimerRequest{SubjectType: entity.SubjectOrder, SubjectID: order.ID, Phase: "LUNCH"}},
		{name: "unknown subject", req: service.TimerRequest{SubjectType: "INVOICE", SubjectID: order.ID, Phase: entity.PhaseDesign}},
		{name: "missing subject id", req: service.TimerRequest{SubjectType: entity.SubjectOrder, Phase: entity.PhaseDesign}},
		{name: "design on a task", req: service.TimerRequest{SubjectType: entity.SubjectTask, SubjectID: "t", Phase: entity.PhaseDesign}},
		{name: "production on an order", req: service.TimerRequest{SubjectType: entity.SubjectOrder, SubjectID: order.ID, Phase: entity.PhaseProduction}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.svc.Time.StartTimer(e.ctx, tt.req, operator)
			assert.ErrorIs(t, err, service.ErrValidationFailed)
		})
	}
}

func TestTime_StartOnMissingOrClosedSubject(t *testing.T) {
	e := newTestEnv(t)

	_, _, err := e.svc.Time.StartTimer(e.ctx, service.TimerRequest{
		SubjectType: entity.SubjectOrder, SubjectID: "missing", Phase: entity.PhaseDesign,
	}, operator)
	assert.ErrorIs(t, err, service.ErrNotFound)

	order := e.order(5)
	_, err = e.svc.Production.CancelOrder(e.ctx, order.ID, "customer walked away", operator)
	require.NoError(t, err)
	_, _, err = e.svc.Time.StartTimer(e.ctx, service.TimerRequest{
		SubjectType: entity.SubjectOrder, SubjectID: order.ID, Phase: entity.PhaseDesign,
	}, operator)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestTime_StopWithoutRunningTimer(t *testing.T) {
	e := newTestEnv(t)
	order := e.order(5)

	_, err := e.svc.Time.StopTimer(e.ctx, service.TimerRequest{
		SubjectType: entity.SubjectOrder, SubjectID: order.ID, Phase: entity.PhaseDesign,
	}, operator)
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = e.svc.Time.StopTimer(e.ctx, service.TimerRequest{
		SubjectType: entity.SubjectOrder, SubjectID: order.ID, Phase: entity.PhasePrePress,
	}, operator)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestTime_StopPrePressTimer(t *testing.T) {
	e := newTestEnv(t)
	order := e.order(5)
	req := service.TimerRequest{SubjectType: entity.SubjectOrder, SubjectID: order.ID, Phase: entity.PhasePrePress}

	_, _, err := e.svc.Time.StartTimer(e.ctx, req, operator)
	require.NoError(t, err)
	e.clock.Advance(17*time.Minute + 40*time.Second)

	res, err := e.svc.Time.StopTimer(e.ctx, req, operator)
	require.NoError(t, err)
	assert.Equal(t, 17, res.Minutes)
	assert.Nil(t, res.Charge)
	require.NotNil(t, res.Log.EndedAt)

	// stopped intervals are never reopened; a new start opens a fresh one
	again, created, err := e.svc.Time.StartTimer(e.ctx, req, operator)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, res.Log.ID, again.ID)
}

func TestTime_ListOpenTimers(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.order(1), e.order(1)

	_, _, err := e.svc.Time.StartTimer(e.ctx, service.TimerRequest{SubjectType: entity.SubjectOrder, SubjectID: a.ID, Phase: entity.PhaseDesign}, operator)
	require.NoError(t, err)
	e.clock.Advance(30 * time.Minute)
	_, _, err = e.svc.Time.StartTimer(e.ctx, service.TimerRequest{SubjectType: entity.SubjectOrder, SubjectID: b.ID, Phase: entity.PhaseDesign}, operator)
	require.NoError(t, err)
	e.clock.Advance(10 * time.Minute)

	open, err := e.svc.Time.ListOpenTimers(e.ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, a.ID, open[0].SubjectID)
	assert.Equal(t, 40, open[0].ElapsedMinutes)
	assert.Equal(t, 10, open[1].ElapsedMinutes)
}

func TestTime_OpenTimerIndexRejectsSecondInterval(t *testing.T) {
	e := newTestEnv(t)
	order := e.order(1)
	repo := repository.NewTimeLogRepository(e.db)

	newLog := func() *entity.TimeLog {
		return &entity.TimeLog{
			ID:          uuid.New().String(),
			SubjectType: entity.SubjectOrder,
			SubjectID:   order.ID,
			Phase:       entity.PhaseDesign,
			OperatorID:  operator,
			StartedAt:   start,
		}
	}
	require.NoError(t, repo.CreateOpen(e.ctx, newLog()))

	err := repo.CreateOpen(e.ctx, newLog())
	require.Error(t, err)
	assert.True(t, repository.IsUniqueViolation(err))
}
