package handler

import (
	"errors"
	"io"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/shared/notify"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MaxArtworkSize bounds client artwork uploads.
const MaxArtworkSize = 50 << 20

// clientActor is recorded as the actor of actions taken through a tracking link.
const clientActor = "client"

// PublicHandler serves the client tracking page. Orders are addressed by their tracking token,
// never by id.
type PublicHandler struct {
	design     *service.DesignService
	production *service.ProductionService
	sse        *SSEHandler
}

func NewPublicHandler(design *service.DesignService, production *service.ProductionService) *PublicHandler {
	return &PublicHandler{design: design, production: production}
}

// OrderView is what a client may see of an order.
type OrderView struct {
	SOCode            string                  `json:"so_code"`
	Status            entity.OrderStatus      `json:"status"`
	DesignStatus      entity.DesignStatus     `json:"design_status"`
	DesignRevisions   int                     `json:"design_revisions"`
	BillingAuthorized bool                    `json:"billing_authorized"`
	DesignMinutes     int                     `json:"design_minutes"`
	TotalAmount       decimal.Decimal         `json:"total_amount"`
	FinishedAt        *time.Time              `json:"finished_at,omitempty"`
	Revisions         []entity.DesignRevision `json:"revisions"`
}

type commentRequest struct {
	Comments string `json:"comments"`
}

// View GET /public/orders/:token
func (h *PublicHandler) View(c *gin.Context) {
	ctx := c.Request.Context()
	order, err := h.production.GetOrderByToken(ctx, c.Param("token"))
	if err != nil {
		HandleError(c, err)
		return
	}
	revs, err := h.design.ListRevisions(ctx, order.ID)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, OrderView{
		SOCode:            order.SOCode,
		Status:            order.Status,
		DesignStatus:      order.DesignStatus,
		DesignRevisions:   order.DesignRevisions,
		BillingAuthorized: order.BillingAuthorized,
		DesignMinutes:     order.DesignMinutes,
		TotalAmount:       order.TotalAmount,
		FinishedAt:        order.FinishedAt,
		Revisions:         revs,
	})
}

// Approve POST /public/orders/:token/approve
func (h *PublicHandler) Approve(c *gin.Context) {
	orderID, ok := h.resolve(c)
	if !ok {
		return
	}
	// the comment is optional, so an empty body is fine
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	res, err := h.design.ClientApprove(c.Request.Context(), orderID, req.Comments, clientActor)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"status": res.Order.Status, "design_status": res.Order.DesignStatus, "tasks": len(res.Tasks)})
}

// Reject POST /public/orders/:token/reject
func (h *PublicHandler) Reject(c *gin.Context) {
	orderID, ok := h.resolve(c)
	if !ok {
		return
	}
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	order, err := h.design.ClientReject(c.Request.Context(), orderID, req.Comments, clientActor)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"status": order.Status, "design_status": order.DesignStatus})
}

// ApproveBilling POST /public/orders/:token/billing-approval
func (h *PublicHandler) ApproveBilling(c *gin.Context) {
	orderID, ok := h.resolve(c)
	if !ok {
		return
	}
	order, err := h.design.ApproveBilling(c.Request.Context(), orderID, clientActor)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"billing_authorized": order.BillingAuthorized})
}

// SubmitArtwork POST /public/orders/:token/artwork (multipart field "file")
func (h *PublicHandler) SubmitArtwork(c *gin.Context) {
	orderID, ok := h.resolve(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "artwork file is required")
		return
	}
	if header.Size > MaxArtworkSize {
		Error(c, 41300, "artwork file is too large")
		return
	}
	file, err := header.Open()
	if err != nil {
		InternalError(c, "read upload: "+err.Error())
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	res, err := h.design.ClientSubmitOwnArtwork(c.Request.Context(), orderID, service.Upload{
		FileName:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}, clientActor)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, gin.H{
		"status":        res.Order.Status,
		"design_status": res.Order.DesignStatus,
		"artwork_path":  res.Order.ArtworkPath,
		"disclaimer":    service.OwnArtworkDisclaimer,
	})
}

// Events GET /public/orders/:token/events streams the order's notifications.
func (h *PublicHandler) Events(c *gin.Context) {
	if _, ok := h.resolve(c); !ok {
		return
	}
	if h.sse == nil || h.sse.hub == nil {
		NotFound(c, "event stream is not enabled")
		return
	}
	h.sse.serve(c, clientActor, notify.OrderChannel(c.Param("token")))
}

func (h *PublicHandler) resolve(c *gin.Context) (string, bool) {
	id, err := h.design.OrderIDByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		HandleError(c, err)
		return "", false
	}
	return id, true
}
