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

type clearanceService interface {
	Submit(ctx context.Context, sub service.ClearanceSubmission) (*service.SubmissionResult, error)
	ReferenceCheck(ctx context.Context, reference string) (bool, string, error)
	DuplicateCheck(ctx context.Context, studentID, documentType string, documents, purposes []string) (*models.DuplicateMatch, string, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.ClearanceDetail, error)
}

type summaryService interface {
	Summary(ctx context.Context, requestID string) (*models.SignatorySummary, error)
}

// ClearanceHandler serves student clearance submissions and lookups.
type ClearanceHandler struct {
	clearances  clearanceService
	signatories summaryService
}

// NewClearanceHandler builds a ClearanceHandler.
func NewClearanceHandler(clearances clearanceService, signatories summaryService) *ClearanceHandler {
	return &ClearanceHandler{clearances: clearances, signatories: signatories}
}

// Submit godoc
// @Summary Submit a clearance request
// @Description Multipart form. documents and purposes are JSON arrays; payment_receipt is an optional JPEG or PNG.
// @Tags Clearances
// @Accept multipart/form-data
// @Produce json
// @Param document_type formData string false "Document type"
// @Param documents formData string false "JSON array of requested documents"
// @Param purposes formData string false "JSON array of purposes"
// @Param reason formData string false "Reason"
// @Param payment_method formData string false "Payment method"
// @Param payment_amount formData string false "Payment amount"
// @Param reference_number formData string false "Payment reference number"
// @Param payment_receipt formData file false "Receipt image"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /clearances [post]
func (h *ClearanceHandler) Submit(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	receipt, err := receiptFromForm(c, "payment_receipt")
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.clearances.Submit(c.Request.Context(), service.ClearanceSubmission{
		StudentID:       actor.ID,
		DocumentType:    c.PostForm("document_type"),
		Documents:       formList(c, "documents"),
		Purposes:        formList(c, "purposes"),
		Reason:          c.PostForm("reason"),
		PaymentMethod:   c.PostForm("payment_method"),
		PaymentAmount:   c.PostForm("payment_amount"),
		ReferenceNumber: c.PostForm("reference_number"),
		Receipt:         receipt,
		IP:              c.ClientIP(),
		UserAgent:       c.GetHeader("User-Agent"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, result.Message, result)
}

// ReferenceCheck godoc
// @Summary Check whether a payment reference number is still available
// @Tags Clearances
// @Produce json
// @Param reference query string true "Reference number"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /clearances/reference-check [get]
func (h *ClearanceHandler) ReferenceCheck(c *gin.Context) {
	reference := c.Query("reference")
	available, message, err := h.clearances.ReferenceCheck(c.Request.Context(), reference)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, message, dto.ReferenceCheckResponse{
		Reference: reference,
		Available: available,
		Message:   message,
	})
}

// DuplicateCheck godoc
// @Summary Look for a recent request with the same documents
// @Tags Clearances
// @Accept json
// @Produce json
// @Param payload body dto.DuplicateCheckRequest true "Requested documents"
// @Success 200 {object} response.Envelope
// @Router /clearances/duplicate-check [post]
func (h *ClearanceHandler) DuplicateCheck(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.DuplicateCheckRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	match, message, err := h.clearances.DuplicateCheck(c.Request.Context(), actor.ID, req.DocumentType, req.Documents, req.Purposes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, message, dto.DuplicateCheckResponse{
		Duplicate: match != nil,
		Match:     match,
		Message:   message,
	})
}

// Get godoc
// @Summary Get a clearance request with its signatories
// @Tags Clearances
// @Produce json
// @Param id path string true "Clearance request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clearances/{id} [get]
func (h *ClearanceHandler) Get(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.clearances.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Summary godoc
// @Summary Signatory approval summary
// @Tags Clearances
// @Produce json
// @Param id path string true "Clearance request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clearances/{id}/signatories/summary [get]
func (h *ClearanceHandler) Summary(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	// Ownership is enforced by the detail lookup.
	if _, err := h.clearances.Get(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.signatories.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, summary.Message, summary)
}
