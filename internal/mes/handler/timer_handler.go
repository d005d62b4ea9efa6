package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

type TimerHandler struct {
	svc *service.TimeService
}

func NewTimerHandler(svc *service.TimeService) *TimerHandler {
	return &TimerHandler{svc: svc}
}

type timerRequest struct {
	SubjectType  string  `json:"subject_type" binding:"required"`
	SubjectID    string  `json:"subject_id" binding:"required"`
	Phase        string  `json:"phase" binding:"required"`
	WorkCenterID *string `json:"work_center_id"`
}

func (r timerRequest) toService() service.TimerRequest {
	return service.TimerRequest{
		SubjectType:  entity.SubjectType(r.SubjectType),
		SubjectID:    r.SubjectID,
		Phase:        entity.Phase(r.Phase),
		WorkCenterID: r.WorkCenterID,
	}
}

// Start POST /timers/start
// Returns 201 for a new interval and 200 when one was already running.
func (h *TimerHandler) Start(c *gin.Context) {
	var req timerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	log, created, err := h.svc.StartTimer(c.Request.Context(), req.toService(), GetUserID(c))
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

// Stop POST /timers/stop
func (h *TimerHandler) Stop(c *gin.Context) {
	var req timerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	res, err := h.svc.StopTimer(c.Request.Context(), req.toService(), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, res)
}

// ListOpen GET /timers/open
func (h *TimerHandler) ListOpen(c *gin.Context) {
	timers, err := h.svc.ListOpenTimers(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": timers})
}
