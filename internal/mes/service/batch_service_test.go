package service_test

import (
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/nesting"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"github.com/bitfantasy/nimo-mes/internal/shared/notify"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_CreateEstimatesSheets(t *testing.T) {
	e := newTestEnv(t)
	_, task := e.approvedOrder(401)

	batch, err := e.svc.Batch.CreateBatch(e.ctx, service.CreateBatchRequest{
		MaterialID: e.material.ID,
		TaskIDs:    []string{task.ID, task.ID},
	}, operator)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusBatched, batch.Status)
	assert.Contains(t, batch.BatchCode, "PLG-")
	require.Len(t, batch.Allocations, 1)
	assert.Equal(t, 40, batch.Allocations[0].PiecesPerSheet)
	assert.Equal(t, 401, batch.Allocations[0].Quantity)
	assert.Equal(t, 11, batch.EstimatedSheets)

	got := e.task(task.ID)
	assert.Equal(t, entity.TaskStatusBatched, got.Status)
	require.NotNil(t, got.BatchID)
	assert.Equal(t, batch.ID, *got.BatchID)

	// batching consumes nothing until the sheet is printed
	assert.Equal(t, 10.0, testutil.Reload[entity.Material](t, e.db, e.material.ID).Quantity)
}

func TestBatch_TaskCannotBeBatchedTwice(t *testing.T) {
	e := newTestEnv(t)
	_, task := e.approvedOrder(50)
	req := service.CreateBatchRequest{MaterialID: e.material.ID, TaskIDs: []string{task.ID}}

	_, err := e.svc.Batch.CreateBatch(e.ctx, req, operator)
	require.NoError(t, err)
	_, err = e.svc.Batch.CreateBatch(e.ctx, req, operator)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)

	var batches int64
	e.db.Model(&entity.SubstrateBatch{}).Count(&batches)
	assert.Equal(t, int64(1), batches, "the failed batch is rolled back")
}

func TestBatch_CreateValidation(t *testing.T) {
	e := newTestEnv(t)
	_, task := e.approvedOrder(10)

	_, err := e.svc.Batch.CreateBatch(e.ctx, service.CreateBatchRequest{MaterialID: e.material.ID}, operator)
	assert.ErrorIs(t, err, service.ErrValidationFailed)

	_, err = e.svc.Batch.CreateBatch(e.ctx, service.CreateBatchRequest{MaterialID: "missing", TaskIDs: []string{task.ID}}, operator)
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = e.svc.Batch.CreateBatch(e.ctx, service.CreateBatchRequest{MaterialID: e.material.ID, TaskIDs: []string{task.ID, "missing"}}, operator)
	assert.ErrorIs(t, err, service.ErrNotFound)
	assert.Equal(t, entity.TaskStatusPendingNesting, e.task(task.ID).Status)
}

func TestBatch_PieceDoesNotFitOnSheet(t *testing.T) {
	e := newTestEnv(t)
	small := testutil.SeedMaterial(t, e.db, entity.Material{Code: "A4", Quantity: 100, SheetWidth: 21, SheetHeight: 29.7})
	big := testutil.SeedProduct(t, e.db, e.wc, e.material, entity.Product{
		RequiresManufacturing: true,
		PieceWidth:            50,
		PieceHeight:           70,
	})
	order := testutil.SeedOrder(t, e.db, testutil.OrderLine{Product: big, Quantity: 2, UnitPrice: decimal.NewFromInt(30)})
	_, err := e.svc.Design.SubmitProposal(e.ctx, order.ID, serviceProposal(), operator)
	require.NoError(t, err)
	res, err := e.svc.Design.ClientApprove(e.ctx, order.ID, "", "client")
	require.NoError(t, err)

	_, err = e.svc.Batch.CreateBatch(e.ctx, service.CreateBatchRequest{
		MaterialID: small.ID,
		TaskIDs:    []string{res.Tasks[0].ID},
	}, operator)
	assert.ErrorIs(t, err, service.ErrValidationFailed)
	assert.Equal(t, entity.TaskStatusPendingNesting, e.task(res.Tasks[0].ID).Status)
}

func TestBatch_MarkPrintedWithInsufficientStockChangesNothing(t *testing.T) {
	e := newTestEnv(t)
	order, task := e.approvedOrder(100)
	batch, err := e.svc.Batch.CreateBatch(e.ctx, service.CreateBatchRequest{
		MaterialID: e.material.ID,
		TaskIDs:    []string{task.ID},
	}, operator)
	require.NoError(t, err)

	_, err = e.svc.Batch.MarkPrinted(e.ctx, batch.ID, service.MarkPrintedRequest{QuantityUsed: 11}, operator)
	assert.ErrorIs(t, err, service.ErrInsufficientStock)

	assert.Equal(t, 10.0, testutil.Reload[entity.Material](t, e.db, e.material.ID).Quantity)
	assert.Equal(t, entity.BatchStatusBatched, testutil.Reload[entity.SubstrateBatch](t, e.db, batch.ID).Status)
	assert.Equal(t, entity.TaskStatusBatched, e.task(task.ID).Status)
	assert.Equal(t, entity.OrderStatusPrePress, e.salesOrder(order.ID).Status)

	var txs int64
	e.db.Model(&entity.InventoryTransaction{}).Count(&txs)
	assert.Zero(t, txs)
}

func TestBatch_MarkPrinted(t *testing.T) {
	e := newTestEnv(t)
	order, task := e.approvedOrder(100)
	batch, err := e.svc.Batch.CreateBatch(e.ctx, service.CreateBatchRequest{
		MaterialID: e.material.ID,
		TaskIDs:    []string{task.ID},
	}, operator)
	require.NoError(t, err)

	printed, err := e.svc.Batch.MarkPrinted(e.ctx, batch.ID, service.MarkPrintedRequest{QuantityUsed: 3}, operator)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusPrinted, printed.Status)
	assert.Equal(t, 3.0, printed.UsedQuantity)
	require.NotNil(t, printed.PrintedAt)

	assert.Equal(t, 7.0, testutil.Reload[entity.Material](t, e.db, e.material.ID).Quantity)
	assert.Equal(t, entity.TaskStatusInMachine, e.task(task.ID).Status)
	assert.Equal(t, entity.OrderStatusInProduction, e.salesOrder(order.ID).Status)

	var tx entity.InventoryTransaction
	require.NoError(t, e.db.Where("reference_id = ?", batch.ID).First(&tx).Error)
	assert.Equal(t, entity.TxTypeBatchPrintOut, tx.TransactionType)
	assert.Equal(t, -3.0, tx.Quantity)

	var queued []notify.Message
	for _, msg := range e.notesOn(notify.WorkCenterChannel(e.wc.ID)) {
		if msg.Event == "queue_updated" {
			queued = append(queued, msg)
		}
	}
	assert.Len(t, queued, 1)

	_, err = e.svc.Batch.MarkPrinted(e.ctx, batch.ID, service.MarkPrintedRequest{QuantityUsed: 1}, operator)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
	assert.Equal(t, 7.0, testutil.Reload[entity.Material](t, e.db, e.material.ID).Quantity)
}

func TestBatch_MarkPrintedRequiresQuantity(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.svc.Batch.MarkPrinted(e.ctx, "any", service.MarkPrintedRequest{}, operator)
	assert.ErrorIs(t, err, service.ErrValidationFailed)
}

func TestBatch_AddToBatch(t *testing.T) {
	e := newTestEnv(t)
	_, first := e.approvedOrder(30)
	_, second := e.approvedOrder(30)
	_, late := e.approvedOrder(5)

	batch, err := e.svc.Batch.CreateBatch(e.ctx, service.CreateBatchRequest{
		MaterialID: e.material.ID,
		TaskIDs:    []string{first.ID},
	}, operator)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.EstimatedSheets)

	batch, err = e.svc.Batch.AddToBatch(e.ctx, batch.ID, second.ID, operator)
	require.NoError(t, err)
	assert.Len(t, batch.Allocations, 2)
	assert.Equal(t, 2, batch.EstimatedSheets)

	_, err = e.svc.Batch.MarkPrinted(e.ctx, batch.ID, service.MarkPrintedRequest{QuantityUsed: 2}, operator)
	require.NoError(t, err)

	_, err = e.svc.Batch.AddToBatch(e.ctx, batch.ID, late.ID, operator)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
	assert.Equal(t, entity.TaskStatusPendingNesting, e.task(late.ID).Status)
}

func TestBatch_CancelReturnsTasksToNesting(t *testing.T) {
	e := newTestEnv(t)
	_, task := e.approvedOrder(20)
	batch, err := e.svc.Batch.CreateBatch(e.ctx, service.CreateBatchRequest{
		MaterialID: e.material.ID,
		TaskIDs:    []string{task.ID},
	}, operator)
	require.NoError(t, err)

	cancelled, err := e.svc.Batch.CancelBatch(e.ctx, batch.ID, operator)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusCancelled, cancelled.Status)

	got := e.task(task.ID)
	assert.Equal(t, entity.TaskStatusPendingNesting, got.Status)
	assert.Nil(t, got.BatchID)

	_, err = e.svc.Batch.CancelBatch(e.ctx, batch.ID, operator)
	assert.ErrorIs(t, err, service.ErrConflictAlreadyApplied)

	// the released task can be batched again
	_, err = e.svc.Batch.CreateBatch(e.ctx, service.CreateBatchRequest{
		MaterialID: e.material.ID,
		TaskIDs:    []string{task.ID},
	}, operator)
	assert.NoError(t, err)
}

func TestBatch_PrintedBatchCannotBeCancelled(t *testing.T) {
	e := newTestEnv(t)
	_, task := e.approvedOrder(20)
	batch := e.inMachine(task)

	_, err := e.svc.Batch.CancelBatch(e.ctx, batch.ID, operator)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestBatch_NonNestingWorkCenterReleasesDirectly(t *testing.T) {
	e := newTestEnv(t)
	cutter := testutil.SeedWorkCenter(t, e.db, entity.WorkCenter{Code: "CUT", Category: entity.CategoryCutting})
	decal := testutil.SeedProduct(t, e.db, cutter, e.material, entity.Product{RequiresManufacturing: true})
	order := testutil.SeedOrder(t, e.db, testutil.OrderLine{Product: decal, Quantity: 12, UnitPrice: decimal.NewFromInt(3)})
	_, err := e.svc.Design.SubmitProposal(e.ctx, order.ID, serviceProposal(), operator)
	require.NoError(t, err)
	res, err := e.svc.Design.ClientApprove(e.ctx, order.ID, "", "client")
	require.NoError(t, err)
	task := res.Tasks[0]

	_, err = e.svc.Batch.CreateBatch(e.ctx, service.CreateBatchRequest{MaterialID: e.material.ID, TaskIDs: []string{task.ID}}, operator)
	assert.ErrorIs(t, err, service.ErrValidationFailed)

	released, err := e.svc.Production.ReleaseDirect(e.ctx, task.ID, operator)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskStatusInMachine, released.Status)
	assert.Equal(t, entity.OrderStatusInProduction, e.salesOrder(order.ID).Status)

	_, err = e.svc.Production.ReleaseDirect(e.ctx, task.ID, operator)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestBatch_NestingWorkCenterRefusesDirectRelease(t *testing.T) {
	e := newTestEnv(t)
	_, task := e.approvedOrder(20)

	_, err := e.svc.Production.ReleaseDirect(e.ctx, task.ID, operator)
	assert.ErrorIs(t, err, service.ErrValidationFailed)
}

func TestBatch_Calculate(t *testing.T) {
	e := newTestEnv(t)
	piece := nesting.Dimensions{Width: 10, Height: 10}
	sheet := nesting.Dimensions{Width: 60, Height: 90}

	layout := e.svc.Batch.Calculate(piece, sheet, 0.5, nil, false, 401)
	assert.Equal(t, 40, layout.PiecesPerSheet)
	assert.Equal(t, 11, layout.SheetsNeeded)

	zero := 0.0
	tight := e.svc.Batch.Calculate(piece, sheet, 0, &zero, false, 1)
	assert.Equal(t, 54, tight.PiecesPerSheet)
}
