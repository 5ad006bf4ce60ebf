package handler

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/response"
)

type documentService interface {
	Create(ctx context.Context, studentID string, input service.DocumentInput) (*models.DocumentRequest, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.DocumentDetail, error)
	MarkProcessing(ctx context.Context, id string) (*models.TransitionResult, error)
	Complete(ctx context.Context, id string, uploads []service.DocumentUpload) (*models.TransitionResult, error)
	MarkReleased(ctx context.Context, id string) (*models.TransitionResult, error)
	MarkUnclaimed(ctx context.Context, id string) (*models.TransitionResult, error)
	Reject(ctx context.Context, id, reason string) (*models.TransitionResult, error)
	MoveToPending(ctx context.Context, id string) (*models.TransitionResult, error)
	ClaimSlip(ctx context.Context, actor service.Actor, id string) ([]byte, string, error)
	OpenFile(ctx context.Context, fileID, token string) (*models.DocumentFile, *os.File, error)
}

// DocumentHandler exposes the document fulfillment pipeline.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler builds a DocumentHandler.
func NewDocumentHandler(svc documentService) *DocumentHandler {
	return &DocumentHandler{service: svc}
}

// Create godoc
// @Summary Request a registrar document directly
// @Tags Documents
// @Accept json
// @Produce json
// @Param payload body dto.CreateDocumentRequest true "Document request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /documents [post]
func (h *DocumentHandler) Create(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateDocumentRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	doc, err := h.service.Create(c.Request.Context(), actor.ID, service.DocumentInput{DocumentType: req.DocumentType, Purpose: req.Purpose})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// Get godoc
// @Summary Get a document request with its files
// @Tags Documents
// @Produce json
// @Param id path string true "Document request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// MarkProcessing godoc
// @Summary Start processing a document request
// @Description Linked requests only move once every clearance signatory approved.
// @Tags Documents
// @Produce json
// @Param id path string true "Document request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /documents/{id}/mark-processing [post]
func (h *DocumentHandler) MarkProcessing(c *gin.Context) {
	h.transition(c, h.service.MarkProcessing)
}

// Complete godoc
// @Summary Complete a document request with its files
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Document request ID"
// @Param files formData file true "Prepared documents"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /documents/{id}/complete [post]
func (h *DocumentHandler) Complete(c *gin.Context) {
	var headers []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil && form != nil {
		headers = append(headers, form.File["files"]...)
		headers = append(headers, form.File["files[]"]...)
	}

	uploads := make([]service.DocumentUpload, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, fmt.Sprintf("failed to read %s", header.Filename)))
			return
		}
		defer file.Close()
		uploads = append(uploads, service.DocumentUpload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Reader:      file,
		})
	}

	result, err := h.service.Complete(c.Request.Context(), c.Param("id"), uploads)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, result.Message, result)
}

// MarkReleased godoc
// @Summary Mark a completed document as released
// @Tags Documents
// @Produce json
// @Param id path string true "Document request ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/mark-released [post]
func (h *DocumentHandler) MarkReleased(c *gin.Context) {
	h.transition(c, h.service.MarkReleased)
}

// MarkUnclaimed godoc
// @Summary Mark a completed document as unclaimed
// @Tags Documents
// @Produce json
// @Param id path string true "Document request ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/mark-unclaimed [post]
func (h *DocumentHandler) MarkUnclaimed(c *gin.Context) {
	h.transition(c, h.service.MarkUnclaimed)
}

// Reject godoc
// @Summary Reject a document request
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document request ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/reject [post]
func (h *DocumentHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, result.Message, result)
}

// MoveToPending godoc
// @Summary Return a completed or released document to pending
// @Tags Documents
// @Produce json
// @Param id path string true "Document request ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/move-to-pending [post]
func (h *DocumentHandler) MoveToPending(c *gin.Context) {
	h.transition(c, h.service.MoveToPending)
}

func (h *DocumentHandler) transition(c *gin.Context, apply func(context.Context, string) (*models.TransitionResult, error)) {
	result, err := apply(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, result.Message, result)
}

// ClaimSlip godoc
// @Summary Download the claim slip PDF
// @Tags Documents
// @Produce application/pdf
// @Param id path string true "Document request ID"
// @Success 200 {file} file
// @Failure 409 {object} response.Envelope
// @Router /documents/{id}/claim-slip [get]
func (h *DocumentHandler) ClaimSlip(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	pdf, filename, err := h.service.ClaimSlip(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// Download godoc
// @Summary Download a completed document file through a signed link
// @Tags Documents
// @Produce octet-stream
// @Param fileId path string true "File ID"
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /documents/files/{fileId}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	file, handle, err := h.service.OpenFile(c.Request.Context(), c.Param("fileId"), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer handle.Close()

	if file.MimeType != "" {
		c.Header("Content-Type", file.MimeType)
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.OriginalName))
	http.ServeContent(c.Writer, c.Request, file.OriginalName, file.UploadedAt, handle)
}
