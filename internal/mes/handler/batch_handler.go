package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/nesting"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

type BatchHandler struct {
	svc *service.BatchService
}

func NewBatchHandler(svc *service.BatchService) *BatchHandler {
	return &BatchHandler{svc: svc}
}

// Create POST /batches
func (h *BatchHandler) Create(c *gin.Context) {
	var req service.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	batch, err := h.svc.CreateBatch(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, batch)
}

// List GET /batches?status=&material_id=
func (h *BatchHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	batches, total, err := h.svc.ListBatches(c.Request.Context(), repository.BatchListParams{
		Status:     c.Query("status"),
		MaterialID: c.Query("material_id"),
		Page:       page,
		Size:       pageSize,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, paginated(batches, page, pageSize, total))
}

// Get GET /batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	batch, err := h.svc.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, batch)
}

// AddTask POST /batches/:id/tasks
func (h *BatchHandler) AddTask(c *gin.Context) {
	var req struct {
		TaskID string `json:"task_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	batch, err := h.svc.AddToBatch(c.Request.Context(), c.Param("id"), req.TaskID, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, batch)
}

// MarkPrinted POST /batches/:id/print
func (h *BatchHandler) MarkPrinted(c *gin.Context) {
	var req service.MarkPrintedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	batch, err := h.svc.MarkPrinted(c.Request.Context(), c.Param("id"), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, batch)
}

// Cancel POST /batches/:id/cancel
func (h *BatchHandler) Cancel(c *gin.Context) {
	batch, err := h.svc.CancelBatch(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, batch)
}

type calculateRequest struct {
	Piece       nesting.Dimensions `json:"piece"`
	Sheet       nesting.Dimensions `json:"sheet"`
	Bleed       float64            `json:"bleed" binding:"gte=0"`
	Spacing     *float64           `json:"spacing" binding:"omitempty,gte=0"`
	AllowRotate bool               `json:"allow_rotate"`
	Quantity    int                `json:"quantity" binding:"gte=0"`
}

// Calculate POST /nesting/calculate previews a layout without touching any state.
func (h *BatchHandler) Calculate(c *gin.Context) {
	var req calculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	Success(c, h.svc.Calculate(req.Piece, req.Sheet, req.Bleed, req.Spacing, req.AllowRotate, req.Quantity))
}
