package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/response"
)

type registrarService interface {
	MarkProcessing(ctx context.Context, id string) error
	MarkReleased(ctx context.Context, id string) error
	MarkUnclaimed(ctx context.Context, id string) error
	Release(ctx context.Context, actor service.Actor, id, signature string) (*models.AggregateOutcome, error)
	Reject(ctx context.Context, actor service.Actor, id, reason string) (*models.AggregateOutcome, error)
	MoveToPending(ctx context.Context, actor service.Actor, id string) (*models.AggregateOutcome, error)
	SetPickupDate(ctx context.Context, id string, date time.Time) error
	Convert(ctx context.Context, id string) (*service.ConversionResult, error)
	DocumentRequest(ctx context.Context, id string) (*service.PipelineCheck, error)
}

// RegistrarHandler exposes the registrar's operations on clearance requests.
type RegistrarHandler struct {
	service registrarService
}

// NewRegistrarHandler builds a RegistrarHandler.
func NewRegistrarHandler(svc registrarService) *RegistrarHandler {
	return &RegistrarHandler{service: svc}
}

// MarkProcessing godoc
// @Summary Mark a clearance request as being processed
// @Tags Registrar
// @Produce json
// @Param id path string true "Clearance request ID"
// @Success 200 {object} response.Envelope
// @Router /registrar/clearances/{id}/mark-processing [post]
func (h *RegistrarHandler) MarkProcessing(c *gin.Context) {
	h.fulfillment(c, h.service.MarkProcessing, models.FulfillmentProcessing, "Request marked as processing")
}

// MarkReleased godoc
// @Summary Mark a clearance request as released
// @Tags Registrar
// @Produce json
// @Param id path string true "Clearance request ID"
// @Success 200 {object} response.Envelope
// @Router /registrar/clearances/{id}/mark-released [post]
func (h *RegistrarHandler) MarkReleased(c *gin.Context) {
	h.fulfillment(c, h.service.MarkReleased, models.FulfillmentReleased, "Request marked as released")
}

// MarkUnclaimed godoc
// @Summary Mark a clearance request as unclaimed
// @Tags Registrar
// @Produce json
// @Param id path string true "Clearance request ID"
// @Success 200 {object} response.Envelope
// @Router /registrar/clearances/{id}/mark-unclaimed [post]
func (h *RegistrarHandler) MarkUnclaimed(c *gin.Context) {
	h.fulfillment(c, h.service.MarkUnclaimed, models.FulfillmentUnclaimed, "Request marked as unclaimed")
}

func (h *RegistrarHandler) fulfillment(c *gin.Context, apply func(context.Context, string) error, status models.FulfillmentStatus, message string) {
	id := c.Param("id")
	if err := apply(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, message, dto.ActionResponse{ID: id, Status: string(status)})
}

// Release godoc
// @Summary Approve the Registrar signatory of a request
// @Tags Registrar
// @Accept json
// @Produce json
// @Param id path string true "Clearance request ID"
// @Param payload body dto.ApproveSignatoryRequest false "Drawn signature"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /registrar/clearances/{id}/release [post]
func (h *RegistrarHandler) Release(c *gin.Context) {
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

	outcome, err := h.service.Release(c.Request.Context(), actor, c.Param("id"), req.Signature)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Registrar clearance approved", outcome)
}

// Reject godoc
// @Summary Reject the Registrar signatory of a request
// @Tags Registrar
// @Accept json
// @Produce json
// @Param id path string true "Clearance request ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registrar/clearances/{id}/reject [post]
func (h *RegistrarHandler) Reject(c *gin.Context) {
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
	response.Message(c, http.StatusOK, "Registrar clearance rejected", outcome)
}

// MoveToPending godoc
// @Summary Return an approved request to pending
// @Tags Registrar
// @Produce json
// @Param id path string true "Clearance request ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registrar/clearances/{id}/move-to-pending [post]
func (h *RegistrarHandler) MoveToPending(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	outcome, err := h.service.MoveToPending(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Request moved to pending", outcome)
}

// SetPickupDate godoc
// @Summary Set the document pickup date
// @Tags Registrar
// @Accept json
// @Produce json
// @Param id path string true "Clearance request ID"
// @Param payload body dto.PickupDateRequest true "Pickup date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /registrar/clearances/{id}/pickup-date [post]
func (h *RegistrarHandler) SetPickupDate(c *gin.Context) {
	var req dto.PickupDateRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	date, err := time.Parse("2006-01-02", req.PickupDate)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "Pickup date must be formatted YYYY-MM-DD"))
		return
	}
	id := c.Param("id")
	if err := h.service.SetPickupDate(c.Request.Context(), id, date); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Pickup date set", gin.H{"id": id, "pickup_date": date.Format("2006-01-02")})
}

// Convert godoc
// @Summary Move an approved clearance into the document pipeline
// @Tags Registrar
// @Produce json
// @Param id path string true "Clearance request ID"
// @Success 200 {object} response.Envelope
// @Router /registrar/clearances/{id}/convert [post]
func (h *RegistrarHandler) Convert(c *gin.Context) {
	result, err := h.service.Convert(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, result.Message, result)
}

// DocumentRequest godoc
// @Summary Check whether a clearance already sits in the document pipeline
// @Tags Registrar
// @Produce json
// @Param id path string true "Clearance request ID"
// @Success 200 {object} response.Envelope
// @Router /registrar/clearances/{id}/document-request [get]
func (h *RegistrarHandler) DocumentRequest(c *gin.Context) {
	check, err := h.service.DocumentRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}
