package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	"github.com/noah-isme/clearance-api/pkg/response"
)

type signatoryService interface {
	Approve(ctx context.Context, actor service.Actor, signatoryID, signature string) (*models.AggregateOutcome, error)
	Reject(ctx context.Context, actor service.Actor, signatoryID, reason string) (*models.AggregateOutcome, error)
	Reset(ctx context.Context, actor service.Actor, signatoryID string) (*models.AggregateOutcome, error)
}

// SignatoryHandler lets office staff decide on their signatory rows.
type SignatoryHandler struct {
	service signatoryService
}

// NewSignatoryHandler builds a SignatoryHandler.
func NewSignatoryHandler(svc signatoryService) *SignatoryHandler {
	return &SignatoryHandler{service: svc}
}

// Approve godoc
// @Summary Approve a signatory row
// @Tags Signatories
// @Accept json
// @Produce json
// @Param id path string true "Signatory ID"
// @Param payload body dto.ApproveSignatoryRequest false "Drawn signature"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /signatories/{id}/approve [post]
func (h *SignatoryHandler) Approve(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ApproveSignatoryRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	outcome, err := h.service.Approve(c.Request.Context(), actor, c.Param("id"), req.Signature)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, outcome.Office+" clearance approved", outcome)
}

// Reject godoc
// @Summary Reject a signatory row
// @Tags Signatories
// @Accept json
// @Produce json
// @Param id path string true "Signatory ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /signatories/{id}/reject [post]
func (h *SignatoryHandler) Reject(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.RejectRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	outcome, err := h.service.Reject(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, outcome.Office+" clearance rejected", outcome)
}

// Reset godoc
// @Summary Reset a signatory row to Pending
// @Tags Signatories
// @Produce json
// @Param id path string true "Signatory ID"
// @Success 200 {object} response.Envelope
// @Router /signatories/{id}/reset [post]
func (h *SignatoryHandler) Reset(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	outcome, err := h.service.Reset(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, outcome.Office+" clearance reset to pending", outcome)
}
