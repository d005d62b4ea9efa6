package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	svc *service.QueueService
}

func NewQueueHandler(svc *service.QueueService) *QueueHandler {
	return &QueueHandler{svc: svc}
}

// List GET /work-centers/:id/queue
func (h *QueueHandler) List(c *gin.Context) {
	entries, err := h.svc.ListQueue(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": entries})
}

// Export GET /work-centers/:id/queue/export
func (h *QueueHandler) Export(c *gin.Context) {
	f, filename, err := h.svc.ExportQueue(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}

// StartWork POST /tasks/:id/start
func (h *QueueHandler) StartWork(c *gin.Context) {
	log, created, err := h.svc.StartWork(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	if created {
		Created(c, log)
		return
	}
	Success(c, log)
}

// FinishWork POST /tasks/:id/finish
func (h *QueueHandler) FinishWork(c *gin.Context) {
	var req struct {
		ScrapQuantity int `json:"scrap_quantity" binding:"gte=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	res, err := h.svc.FinishWork(c.Request.Context(), c.Param("id"), req.ScrapQuantity, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, res)
}
