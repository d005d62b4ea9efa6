package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	artworkmocks "github.com/bitfantasy/nimo-mes/internal/shared/artwork/mocks"
	"github.com/bitfantasy/nimo-mes/internal/shared/ledger"
	ledgermocks "github.com/bitfantasy/nimo-mes/internal/shared/ledger/mocks"
	"github.com/bitfantasy/nimo-mes/internal/shared/notify"
	notifymocks "github.com/bitfantasy/nimo-mes/internal/shared/notify/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const operator = "op-001"

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type sent struct {
	channel string
	msg     notify.Message
}

// testEnv is a service stack over a private database, with recorded collaborators.
type testEnv struct {
	t     *testing.T
	ctx   context.Context
	db    *gorm.DB
	svc   *service.Services
	clock *testutil.Clock
	store *artworkmocks.MockStore

	mu      sync.Mutex
	notes   []sent
	entries []ledger.Entry

	wc       *entity.WorkCenter
	material *entity.Material
	product  *entity.Product
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctrl := gomock.NewController(t)
	e := &testEnv{
		t:     t,
		ctx:   context.Background(),
		db:    db,
		clock: testutil.NewClock(start),
		store: artworkmocks.NewMockStore(ctrl),
	}

	notifier := notifymocks.NewMockNotifier(ctrl)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, channel string, msg notify.Message) error {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.notes = append(e.notes, sent{channel: channel, msg: msg})
			return nil
		}).AnyTimes()
	poster := ledgermocks.NewMockPoster(ctrl)
	poster.EXPECT().Post(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, entry ledger.Entry) error {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.entries = append(e.entries, entry)
			return entry.Validate()
		}).AnyTimes()

	e.svc = service.NewServices(repository.NewRepositories(db), service.Options{
		Logger:   zap.NewNop(),
		Notifier: notifier,
		Poster:   poster,
		Artwork:  e.store,
		Spacing:  0.5,
		Clock:    e.clock.Now,
	})

	e.wc = testutil.SeedWorkCenter(t, db, entity.WorkCenter{
		Code:          "W",
		AllowsNesting: true,
		SafetyMargin:  0.5,
		DailyCapacity: 1000,
	})
	e.material = testutil.SeedMaterial(t, db, entity.Material{
		Code:     "S",
		Quantity: 10,
		UnitCost: decimal.NewFromFloat(2.40),
	})
	e.product = testutil.SeedProduct(t, db, e.wc, e.material, entity.Product{
		Code:                  "P",
		RequiresManufacturing: true,
	})
	return e
}

func (e *testEnv) order(qty float64) *entity.SalesOrder {
	e.t.Helper()
	return testutil.SeedOrder(e.t, e.db, testutil.OrderLine{
		Product:   e.product,
		Quantity:  qty,
		UnitPrice: decimal.NewFromInt(2),
	})
}

// approvedOrder walks a fresh order through one proposal and approval.
func (e *testEnv) approvedOrder(qty float64) (*entity.SalesOrder, entity.ProductionTask) {
	e.t.Helper()
	order := e.order(qty)
	_, err := e.svc.Design.SubmitProposal(e.ctx, order.ID, service.ProposalRequest{ImagePath: "proofs/1.png"}, operator)
	require.NoError(e.t, err)
	res, err := e.svc.Design.ClientApprove(e.ctx, order.ID, "looks good", "client")
	require.NoError(e.t, err)
	require.Len(e.t, res.Tasks, 1)
	return res.Order, res.Tasks[0]
}

// inMachine batches and prints the task so that it waits in its machine queue.
func (e *testEnv) inMachine(task entity.ProductionTask) *entity.SubstrateBatch {
	e.t.Helper()
	batch, err := e.svc.Batch.CreateBatch(e.ctx, service.CreateBatchRequest{
		MaterialID: e.material.ID,
		TaskIDs:    []string{task.ID},
	}, operator)
	require.NoError(e.t, err)
	batch, err = e.svc.Batch.MarkPrinted(e.ctx, batch.ID, service.MarkPrintedRequest{QuantityUsed: 1}, operator)
	require.NoError(e.t, err)
	return batch
}

func (e *testEnv) notesOn(channel string) []notify.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []notify.Message
	for _, n := range e.notes {
		if n.channel == channel {
			out = append(out, n.msg)
		}
	}
	return out
}

func (e *testEnv) journal() []ledger.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ledger.Entry(nil), e.entries...)
}

func (e *testEnv) task(id string) *entity.ProductionTask {
	return testutil.Reload[entity.ProductionTask](e.t, e.db, id)
}

func (e *testEnv) salesOrder(id string) *entity.SalesOrder {
	e.t.Helper()
	order, err := e.svc.Production.GetOrder(e.ctx, id)
	require.NoError(e.t, err)
	return order
}

func (e *testEnv) countTasks(soID string) int64 {
	var n int64
	e.db.Model(&entity.ProductionTask{}).Where("so_id = ?", soID).Count(&n)
	return n
}
