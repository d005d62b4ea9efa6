package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// DesignHandler serves the staff side of the artwork approval loop.
type DesignHandler struct {
	svc *service.DesignService
}

func NewDesignHandler(svc *service.DesignService) *DesignHandler {
	return &DesignHandler{svc: svc}
}

// SubmitProposal POST /orders/:id/proposals
func (h *DesignHandler) SubmitProposal(c *gin.Context) {
	var req service.ProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	order, err := h.svc.SubmitProposal(c.Request.Context(), c.Param("id"), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, order)
}

// ApproveBilling POST /orders/:id/billing-approval
// Records an authorization the client gave outside the tracking page.
func (h *DesignHandler) ApproveBilling(c *gin.Context) {
	order, err := h.svc.ApproveBilling(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}

// ListRevisions GET /orders/:id/revisions
func (h *DesignHandler) ListRevisions(c *gin.Context) {
	revs, err := h.svc.ListRevisions(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": revs})
}
