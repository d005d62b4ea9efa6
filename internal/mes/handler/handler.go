package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/shared/notify"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers groups the MES HTTP handlers.
type Handlers struct {
	Design     *DesignHandler
	Public     *PublicHandler
	Timer      *TimerHandler
	Batch      *BatchHandler
	Queue      *QueueHandler
	Production *ProductionHandler
	SSE        *SSEHandler
}

// NewHandlers wires every handler to its service. hub may be nil when no floor screens are served.
func NewHandlers(svc *service.Services, hub *notify.Hub, logger *zap.Logger) *Handlers {
	sse := NewSSEHandler(hub, logger)
	public := NewPublicHandler(svc.Design, svc.Production)
	public.sse = sse
	return &Handlers{
		Design:     NewDesignHandler(svc.Design),
		Public:     public,
		Timer:      NewTimerHandler(svc.Time),
		Batch:      NewBatchHandler(svc.Batch),
		Queue:      NewQueueHandler(svc.Queue),
		Production: NewProductionHandler(svc.Production),
		SSE:        sse,
	}
}

// Response is the envelope of every JSON response.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse is the data of a paginated list.
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error writes an error envelope; the HTTP status is code / 100.
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// Error codes by failure kind.
const (
	codeValidation        = 40001
	codeNotFound          = 40401
	codeInvalidTransition = 40901
	codeAlreadyApplied    = 40902
	codeInsufficientStock = 42201
)

// HandleError maps a service error onto the response envelope.
func HandleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidationFailed):
		Error(c, codeValidation, err.Error())
	case errors.Is(err, service.ErrNotFound):
		Error(c, codeNotFound, err.Error())
	case errors.Is(err, service.ErrConflictAlreadyApplied):
		Error(c, codeAlreadyApplied, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		Error(c, codeInvalidTransition, err.Error())
	case errors.Is(err, service.ErrInsufficientStock):
		Error(c, codeInsufficientStock, err.Error())
	default:
		c.Error(err)
		InternalError(c, "internal error")
	}
}

// GetUserID returns the operator identified by the JWT middleware.
func GetUserID(c *gin.Context) string {
	return c.GetString(middleware.KeyOperatorID)
}

// GetPagination reads page and page_size from the query string.
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

func paginated(items interface{}, page, pageSize int, total int64) ListResponse {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: pages,
		},
	}
}
