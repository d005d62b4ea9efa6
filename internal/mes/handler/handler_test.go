package handler

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/mock/gomock"
)

func TestAPI_RequiresAuthentication(t *testing.T) {
	env := setupHandlerTest(t)

	w := testutil.DoRequest(env.router, "GET", mesAPI+"/tasks", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = testutil.DoRequest(env.router, "GET", mesAPI+"/tasks", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_ProductionFlow(t *testing.T) {
	env := setupHandlerTest(t)
	order, taskID := env.approvedTask(100)

	batch := env.ok(env.do("POST", mesAPI+"/batches", map[string]interface{}{
		"material_id": env.material.ID,
		"task_ids":    []string{taskID},
	}), 201)
	batchID := batch["id"].(string)
	assert.Equal(t, "BATCHED", batch["status"])
	assert.EqualValues(t, 3, batch["estimated_sheets"])

	w := env.do("POST", mesAPI+"/batches/"+batchID+"/print", map[string]interface{}{"quantity_used": 11})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 42201, env.code(w))

	printed := env.ok(env.do("POST", mesAPI+"/batches/"+batchID+"/print", map[string]interface{}{"quantity_used": 3}), 200)
	assert.Equal(t, "PRINTED", printed["status"])

	queue := env.ok(env.do("GET", mesAPI+"/work-centers/"+env.wc.ID+"/queue", nil), 200)
	require.Len(t, queue["items"], 1)

	env.ok(env.do("POST", mesAPI+"/tasks/"+taskID+"/start", nil), 201)
	env.ok(env.do("POST", mesAPI+"/tasks/"+taskID+"/start", nil), 200)

	finished := env.ok(env.do("POST", mesAPI+"/tasks/"+taskID+"/finish", map[string]interface{}{"scrap_quantity": 5}), 200)
	assert.Equal(t, true, finished["order_finished"])
	reprocess := finished["reprocess"].(map[string]interface{})
	assert.EqualValues(t, 5, reprocess["quantity"])

	got := env.ok(env.do("GET", mesAPI+"/orders/"+order.ID, nil), 200)
	assert.Equal(t, "FINISHED", got["status"])
	assert.Equal(t, 2.0, testutil.Reload[entity.Material](t, env.db, env.material.ID).Quantity)

	w = env.do("POST", mesAPI+"/tasks/"+taskID+"/finish", map[string]interface{}{"scrap_quantity": 0})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAPI_ClientApprovalIsIdempotent(t *testing.T) {
	env := setupHandlerTest(t)
	order := env.sentOrder(10)
	path := publicAPI + "/orders/" + order.TrackingToken + "/approve"

	data := env.ok(testutil.DoRequest(env.router, "POST", path, map[string]string{"comments": "ok"}, ""), 200)
	assert.Equal(t, "PRE_PRESS", data["status"])
	assert.EqualValues(t, 1, data["tasks"])

	w := testutil.DoRequest(env.router, "POST", path, nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40902, env.code(w))

	var n int64
	env.db.Model(&entity.ProductionTask{}).Where("so_id = ?", order.ID).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestAPI_ClientApproveBody(t *testing.T) {
	env := setupHandlerTest(t)
	order := env.sentOrder(10)
	path := publicAPI + "/orders/" + order.TrackingToken + "/approve"

	w := testutil.DoRawRequest(env.router, "POST", path, `{"comments": `, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, entity.DesignStatusSent, testutil.Reload[entity.SalesOrder](t, env.db, order.ID).DesignStatus)

	w = testutil.DoRawRequest(env.router, "POST", path, `{"comments": 42}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// the comment is optional
	data := env.ok(testutil.DoRawRequest(env.router, "POST", path, "", ""), 200)
	assert.Equal(t, "APPROVED", data["design_status"])
}

func TestAPI_PublicRoutes(t *testing.T) {
	env := setupHandlerTest(t)
	order := env.sentOrder(10)
	base := publicAPI + "/orders/" + order.TrackingToken

	view := env.ok(testutil.DoRequest(env.router, "GET", base, nil, ""), 200)
	assert.Equal(t, order.SOCode, view["so_code"])
	assert.Equal(t, "SENT", view["design_status"])
	assert.Len(t, view["revisions"], 1)
	assert.NotContains(t, view, "id")

	w := testutil.DoRequest(env.router, "POST", base+"/reject", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	rejected := env.ok(testutil.DoRequest(env.router, "POST", base+"/reject", map[string]string{"comments": "darker red"}, ""), 200)
	assert.Equal(t, "REJECTED", rejected["design_status"])

	env.ok(testutil.DoRequest(env.router, "POST", base+"/billing-approval", nil, ""), 200)
	w = testutil.DoRequest(env.router, "POST", base+"/billing-approval", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutil.DoRequest(env.router, "GET", publicAPI+"/orders/unknown-token", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_ClientArtworkUpload(t *testing.T) {
	env := setupHandlerTest(t)
	order := env.order(10)
	content := []byte("%PDF-1.7 logo")

	env.store.EXPECT().
		Put(gomock.Any(), gomock.Any(), gomock.Any(), int64(len(content)), gomock.Any()).
		Return("artwork/"+order.SOCode+"/logo.pdf", nil)

	w := testutil.DoUpload(env.router, publicAPI+"/orders/"+order.TrackingToken+"/artwork", "logo.pdf", content, "")
	data := env.ok(w, 201)
	assert.Equal(t, "APPROVED", data["design_status"])
	assert.Equal(t, "artwork/"+order.SOCode+"/logo.pdf", data["artwork_path"])
	assert.NotEmpty(t, data["disclaimer"])

	w = testutil.DoRequest(env.router, "POST", publicAPI+"/orders/"+order.TrackingToken+"/artwork", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_SupervisorRoutes(t *testing.T) {
	env := setupHandlerTest(t)
	order := env.order(10)
	path := mesAPI + "/orders/" + order.ID + "/cancel"

	w := env.do("POST", path, map[string]string{"reason": "duplicate"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.DoRequest(env.router, "POST", path, map[string]string{}, env.adminToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoRequest(env.router, "POST", path, map[string]string{"reason": "duplicate"}, env.adminToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CANCELLED", testutil.ResponseData(w)["status"])
}

func TestAPI_Timers(t *testing.T) {
	env := setupHandlerTest(t)
	order := env.order(10)
	body := map[string]interface{}{"subject_type": "ORDER", "subject_id": order.ID, "phase": "PRE_PRESS"}

	env.ok(env.do("POST", mesAPI+"/timers/start", body), 201)
	env.ok(env.do("POST", mesAPI+"/timers/start", body), 200)

	open := env.ok(env.do("GET", mesAPI+"/timers/open", nil), 200)
	assert.Len(t, open["items"], 1)

	stopped := env.ok(env.do("POST", mesAPI+"/timers/stop", body), 200)
	assert.NotNil(t, stopped["log"])

	w := env.do("POST", mesAPI+"/timers/stop", body)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do("POST", mesAPI+"/timers/start", map[string]interface{}{"subject_type": "ORDER", "subject_id": order.ID, "phase": "NAP"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40001, env.code(w))
}

func TestAPI_ListTasksPaginated(t *testing.T) {
	env := setupHandlerTest(t)
	env.approvedTask(10)
	env.approvedTask(20)
	env.approvedTask(30)

	data := env.ok(env.do("GET", mesAPI+"/tasks?work_center_id="+env.wc.ID+"&page_size=2", nil), 200)
	assert.Len(t, data["items"], 2)
	pagination := data["pagination"].(map[string]interface{})
	assert.EqualValues(t, 3, pagination["total"])
	assert.EqualValues(t, 2, pagination["total_pages"])
}

func TestAPI_NestingCalculate(t *testing.T) {
	env := setupHandlerTest(t)

	data := env.ok(env.do("POST", mesAPI+"/nesting/calculate", map[string]interface{}{
		"piece":    map[string]float64{"width": 10, "height": 10},
		"sheet":    map[string]float64{"width": 60, "height": 90},
		"bleed":    0.5,
		"quantity": 401,
	}), 200)
	assert.EqualValues(t, 40, data["pieces_per_sheet"])
	assert.EqualValues(t, 11, data["sheets_needed"])

	w := env.do("POST", mesAPI+"/nesting/calculate", map[string]interface{}{"bleed": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_ExportQueue(t *testing.T) {
	env := setupHandlerTest(t)
	_, taskID := env.approvedTask(10)
	batch := env.ok(env.do("POST", mesAPI+"/batches", map[string]interface{}{
		"material_id": env.material.ID,
		"task_ids":    []string{taskID},
	}), 201)
	env.ok(env.do("POST", mesAPI+"/batches/"+batch["id"].(string)+"/print", map[string]interface{}{"quantity_used": 1}), 200)

	w := env.do("GET", mesAPI+"/work-centers/"+env.wc.ID+"/queue/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "queue_W_")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Queue")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "IN_MACHINE", rows[1][5])

	w = env.do("GET", mesAPI+"/work-centers/missing/queue/export", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
