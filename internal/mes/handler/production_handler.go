package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

type ProductionHandler struct {
	svc *service.ProductionService
}

func NewProductionHandler(svc *service.ProductionService) *ProductionHandler {
	return &ProductionHandler{svc: svc}
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// GetOrder GET /orders/:id
func (h *ProductionHandler) GetOrder(c *gin.Context) {
	order, err := h.svc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}

// ListOrderTasks GET /orders/:id/tasks
func (h *ProductionHandler) ListOrderTasks(c *gin.Context) {
	tasks, err := h.svc.ListOrderTasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": tasks})
}

// CancelOrder POST /orders/:id/cancel
func (h *ProductionHandler) CancelOrder(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	order, err := h.svc.CancelOrder(c.Request.Context(), c.Param("id"), req.Reason, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}

// ListTasks GET /tasks?status=&work_center_id=&so_id=
func (h *ProductionHandler) ListTasks(c *gin.Context) {
	page, pageSize := GetPagination(c)
	tasks, total, err := h.svc.ListTasks(c.Request.Context(), repository.TaskListParams{
		Status:       c.Query("status"),
		WorkCenterID: c.Query("work_center_id"),
		SOID:         c.Query("so_id"),
		Page:         page,
		Size:         pageSize,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, paginated(tasks, page, pageSize, total))
}

// GetTask GET /tasks/:id
func (h *ProductionHandler) GetTask(c *gin.Context) {
	task, err := h.svc.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, task)
}

// ReleaseDirect POST /tasks/:id/release
func (h *ProductionHandler) ReleaseDirect(c *gin.Context) {
	task, err := h.svc.ReleaseDirect(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, task)
}

// CancelTask POST /tasks/:id/cancel
func (h *ProductionHandler) CancelTask(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	task, err := h.svc.CancelTask(c.Request.Context(), c.Param("id"), req.Reason, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, task)
}
