package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/middleware"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/response"
)

const receiptField = "payment_receipt"

type receiptService interface {
	Extract(ctx context.Context, upload *service.ReceiptUpload) (*service.ReceiptReading, error)
	ValidateReference(ctx context.Context, upload *service.ReceiptUpload, reference string) (*models.ReferenceMatch, error)
	Health(ctx context.Context) models.AIHealth
}

// ReceiptHandler exposes receipt reading outside of the submission flow.
type ReceiptHandler struct {
	service receiptService
}

// NewReceiptHandler builds a ReceiptHandler.
func NewReceiptHandler(svc receiptService) *ReceiptHandler {
	return &ReceiptHandler{service: svc}
}

// Extract godoc
// @Summary Read the amount and reference number from a receipt image
// @Tags Receipts
// @Accept multipart/form-data
// @Produce json
// @Param payment_receipt formData file true "Receipt image"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /receipts/extract [post]
func (h *ReceiptHandler) Extract(c *gin.Context) {
	upload, err := receiptFromForm(c, receiptField)
	if err != nil {
		response.Error(c, err)
		return
	}
	if upload == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "No file provided"))
		return
	}
	reading, err := h.service.Extract(c.Request.Context(), upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, reading.Receipt.Cached)
	response.JSON(c, http.StatusOK, reading, nil, middleware.ExtractMeta(c))
}

// ValidateReference godoc
// @Summary Compare the typed reference number with the one printed on the receipt
// @Tags Receipts
// @Accept multipart/form-data
// @Produce json
// @Param payment_receipt formData file true "Receipt image"
// @Param reference_number formData string true "Reference number typed by the student"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /receipts/validate-reference [post]
func (h *ReceiptHandler) ValidateReference(c *gin.Context) {
	upload, err := receiptFromForm(c, receiptField)
	if err != nil {
		response.Error(c, err)
		return
	}
	match, err := h.service.ValidateReference(c.Request.Context(), upload, c.PostForm("reference_number"))
	if err != nil {
		response.Error(c, err)
		return
	}
	extracted := match.ExtractedReference
	if strings.TrimSpace(extracted) == "" {
		extracted = "Not found"
	}
	response.Message(c, http.StatusOK, match.Message, dto.ReferenceValidationResponse{
		Match:              match.Match,
		ExtractedReference: extracted,
		ProvidedReference:  match.ProvidedReference,
		Confidence:         match.Confidence,
		Unreliable:         match.Unreliable,
		Message:            match.Message,
	})
}

// AIHealth godoc
// @Summary Check connectivity to the receipt reading service
// @Tags Receipts
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /receipts/ai-health [get]
func (h *ReceiptHandler) AIHealth(c *gin.Context) {
	health := h.service.Health(c.Request.Context())
	if !health.Reachable {
		err := appErrors.Clone(appErrors.ErrServiceUnavailable, health.Message)
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, health.Message, health)
}
