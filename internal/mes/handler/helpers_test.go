package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	artworkmocks "github.com/bitfantasy/nimo-mes/internal/shared/artwork/mocks"
	"github.com/bitfantasy/nimo-mes/internal/shared/ledger"
	"github.com/bitfantasy/nimo-mes/internal/shared/notify"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	mesAPI    = "/api/v1/mes"
	publicAPI = "/api/v1/public"
)

type handlerEnv struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
	hub    *notify.Hub
	store  *artworkmocks.MockStore

	wc       *entity.WorkCenter
	material *entity.Material
	product  *entity.Product

	operatorToken string
	adminToken    string
}

func setupHandlerTest(t *testing.T) *handlerEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	hub := notify.NewHub(logger)
	store := artworkmocks.NewMockStore(gomock.NewController(t))

	svc := service.NewServices(repository.NewRepositories(db), service.Options{
		Logger:   logger,
		Notifier: hub,
		Poster:   ledger.NewLogPoster(logger),
		Artwork:  store,
		Spacing:  0.5,
	})
	router := testutil.SetupRouter()
	NewHandlers(svc, hub, logger).Register(testutil.AuthGroup(router, mesAPI), router.Group(publicAPI))

	env := &handlerEnv{
		t:             t,
		db:            db,
		router:        router,
		hub:           hub,
		store:         store,
		operatorToken: testutil.GenerateTestToken("op-007", "Floor Operator", []string{"mes_operator"}),
		adminToken:    testutil.DefaultTestToken(),
	}
	env.wc = testutil.SeedWorkCenter(t, db, entity.WorkCenter{Code: "W", AllowsNesting: true, SafetyMargin: 0.5})
	env.material = testutil.SeedMaterial(t, db, entity.Material{Code: "S", Quantity: 10, UnitCost: decimal.NewFromInt(2)})
	env.product = testutil.SeedProduct(t, db, env.wc, env.material, entity.Product{Code: "P", RequiresManufacturing: true})
	return env
}

func (e *handlerEnv) order(qty float64) *entity.SalesOrder {
	e.t.Helper()
	return testutil.SeedOrder(e.t, e.db, testutil.OrderLine{Product: e.product, Quantity: qty, UnitPrice: decimal.NewFromInt(2)})
}

func (e *handlerEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	return testutil.DoRequest(e.router, method, path, body, e.operatorToken)
}

// ok asserts the status and returns the data object of the envelope.
func (e *handlerEnv) ok(w *httptest.ResponseRecorder, status int) map[string]interface{} {
	e.t.Helper()
	require.Equal(e.t, status, w.Code, w.Body.String())
	return testutil.ResponseData(w)
}

func (e *handlerEnv) code(w *httptest.ResponseRecorder) int {
	code, _ := testutil.ParseResponse(w)["code"].(float64)
	return int(code)
}

// sentOrder seeds an order with one proposal waiting for the client.
func (e *handlerEnv) sentOrder(qty float64) *entity.SalesOrder {
	e.t.Helper()
	order := e.order(qty)
	e.ok(e.do("POST", mesAPI+"/orders/"+order.ID+"/proposals", map[string]interface{}{"image_path": "proofs/1.png"}), 201)
	return order
}

// approvedTask walks an order through client approval and returns its only task id.
func (e *handlerEnv) approvedTask(qty float64) (*entity.SalesOrder, string) {
	e.t.Helper()
	order := e.sentOrder(qty)
	e.ok(testutil.DoRequest(e.router, "POST", publicAPI+"/orders/"+order.TrackingToken+"/approve", nil, ""), 200)

	data := e.ok(e.do("GET", mesAPI+"/orders/"+order.ID+"/tasks", nil), 200)
	items := data["items"].([]interface{})
	require.Len(e.t, items, 1)
	return order, items[0].(map[string]interface{})["id"].(string)
}
