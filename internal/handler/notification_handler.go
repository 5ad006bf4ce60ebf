package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/pkg/response"
)

type notificationService interface {
	List(ctx context.Context, studentID string, page, pageSize int) ([]models.Notification, *models.Pagination, error)
	MarkRead(ctx context.Context, studentID string) (int64, error)
}

// NotificationHandler serves a student's notification inbox.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(svc notificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List godoc
// @Summary List own notifications
// @Tags Notifications
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var query dto.NotificationListQuery
	if err := bindQuery(c, &query); err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), actor.ID, query.Page, query.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// MarkRead godoc
// @Summary Mark own notifications as read
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	updated, err := h.service.MarkRead(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MarkReadResponse{Updated: updated}, nil)
}
