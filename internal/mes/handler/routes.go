package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/gin-gonic/gin"
)

// RoleSupervisor may cancel orders and record billing authorizations on behalf of clients.
const RoleSupervisor = "mes_supervisor"

// Register mounts the operator API on api (already behind JWT auth) and the client tracking
// routes on public.
func (h *Handlers) Register(api, public *gin.RouterGroup) {
	api.GET("/events", h.SSE.Stream)
	api.POST("/nesting/calculate", h.Batch.Calculate)

	orders := api.Group("/orders")
	{
		orders.GET("/:id", h.Production.GetOrder)
		orders.GET("/:id/tasks", h.Production.ListOrderTasks)
		orders.GET("/:id/revisions", h.Design.ListRevisions)
		orders.POST("/:id/proposals", h.Design.SubmitProposal)
		orders.POST("/:id/billing-approval", middleware.RequireRole(RoleSupervisor), h.Design.ApproveBilling)
		orders.POST("/:id/cancel", middleware.RequireRole(RoleSupervisor), h.Production.CancelOrder)
	}

	tasks := api.Group("/tasks")
	{
		tasks.GET("", h.Production.ListTasks)
		tasks.GET("/:id", h.Production.GetTask)
		tasks.POST("/:id/release", h.Production.ReleaseDirect)
		tasks.POST("/:id/cancel", h.Production.CancelTask)
		tasks.POST("/:id/start", h.Queue.StartWork)
		tasks.POST("/:id/finish", h.Queue.FinishWork)
	}

	batches := api.Group("/batches")
	{
		batches.GET("", h.Batch.List)
		batches.POST("", h.Batch.Create)
		batches.GET("/:id", h.Batch.Get)
		batches.POST("/:id/tasks", h.Batch.AddTask)
		batches.POST("/:id/print", h.Batch.MarkPrinted)
		batches.POST("/:id/cancel", h.Batch.Cancel)
	}

	workCenters := api.Group("/work-centers")
	{
		workCenters.GET("/:id/queue", h.Queue.List)
		workCenters.GET("/:id/queue/export", h.Queue.Export)
	}

	timers := api.Group("/timers")
	{
		timers.GET("/open", h.Timer.ListOpen)
		timers.POST("/start", h.Timer.Start)
		timers.POST("/stop", h.Timer.Stop)
	}

	tracking := public.Group("/orders/:token")
	{
		tracking.GET("", h.Public.View)
		tracking.GET("/events", h.Public.Events)
		tracking.POST("/approve", h.Public.Approve)
		tracking.POST("/reject", h.Public.Reject)
		tracking.POST("/billing-approval", h.Public.ApproveBilling)
		tracking.POST("/artwork", h.Public.SubmitArtwork)
	}
}
