package service_test

import (
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduction_CancelTaskClosesTimer(t *testing.T) {
	e := newTestEnv(t)
	order, task := e.approvedOrder(10)
	e.inMachine(task)
	_, _, err := e.svc.Queue.StartWork(e.ctx, task.ID, operator)
	require.NoError(t, err)
	e.clock.Advance(12 * time.Minute)

	cancelled, err := e.svc.Production.CancelTask(e.ctx, task.ID, "artwork pulled", operator)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskStatusCancelled, cancelled.Status)

	var log entity.TimeLog
	require.NoError(t, e.db.Where("subject_id = ?", task.ID).First(&log).Error)
	require.NotNil(t, log.EndedAt)
	assert.Equal(t, 12, log.Minutes)

	// nothing was produced, so the order does not finish
	assert.Equal(t, entity.OrderStatusInProduction, e.salesOrder(order.ID).Status)

	_, err = e.svc.Production.CancelTask(e.ctx, task.ID, "again", operator)
	assert.ErrorIs(t, err, service.ErrConflictAlreadyApplied)
}

func TestProduction_CancellingLastOpenTaskFinishesOrder(t *testing.T) {
	e := newTestEnv(t)
	order := testutil.SeedOrder(t, e.db,
		testutil.OrderLine{Product: e.product, Quantity: 10, UnitPrice: decimal.NewFromInt(2)},
		testutil.OrderLine{Product: e.product, Quantity: 10, UnitPrice: decimal.NewFromInt(2)},
	)
	_, err := e.svc.Design.SubmitProposal(e.ctx, order.ID, serviceProposal(), operator)
	require.NoError(t, err)
	res, err := e.svc.Design.ClientApprove(e.ctx, order.ID, "", "client")
	require.NoError(t, err)
	done, dropped := res.Tasks[0], res.Tasks[1]

	e.inMachine(done)
	_, err = e.svc.Queue.FinishWork(e.ctx, done.ID, 0, operator)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusInProduction, e.salesOrder(order.ID).Status)

	_, err = e.svc.Production.CancelTask(e.ctx, dropped.ID, "client reduced the order", operator)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusFinished, e.salesOrder(order.ID).Status)

	_, err = e.svc.Production.CancelTask(e.ctx, done.ID, "too late", operator)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestProduction_CancelOrder(t *testing.T) {
	e := newTestEnv(t)
	order, task := e.approvedOrder(10)

	cancelled, err := e.svc.Production.CancelOrder(e.ctx, order.ID, "duplicate", operator)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, entity.TaskStatusCancelled, e.task(task.ID).Status)

	_, err = e.svc.Production.CancelOrder(e.ctx, order.ID, "duplicate", operator)
	assert.ErrorIs(t, err, service.ErrConflictAlreadyApplied)

	_, err = e.svc.Design.ApproveBilling(e.ctx, order.ID, "client")
	assert.ErrorIs(t, err, service.ErrInvalidTransition)

	history, err := repository.NewAuditRepository(e.db).ListByEntity(e.ctx, entity.AuditOrder, order.ID)
	require.NoError(t, err)
	var to []string
	for _, change := range history {
		to = append(to, change.ToStatus)
	}
	assert.Contains(t, to, string(entity.OrderStatusCancelled))
}

func TestProduction_FinishedOrderCannotBeCancelled(t *testing.T) {
	e := newTestEnv(t)
	order, task := e.approvedOrder(10)
	e.inMachine(task)
	_, err := e.svc.Queue.FinishWork(e.ctx, task.ID, 0, operator)
	require.NoError(t, err)

	_, err = e.svc.Production.CancelOrder(e.ctx, order.ID, "too late", operator)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestProduction_ListTasks(t *testing.T) {
	e := newTestEnv(t)
	order, task := e.approvedOrder(10)
	e.approvedOrder(20)

	tasks, total, err := e.svc.Production.ListTasks(e.ctx, repository.TaskListParams{SOID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)

	_, total, err = e.svc.Production.ListTasks(e.ctx, repository.TaskListParams{
		WorkCenterID: e.wc.ID,
		Status:       string(entity.TaskStatusPendingNesting),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	got, err := e.svc.Production.GetOrderByToken(e.ctx, order.TrackingToken)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = e.svc.Production.GetTask(e.ctx, "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}
