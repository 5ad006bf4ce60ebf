package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	"github.com/noah-isme/clearance-api/pkg/response"
)

type maintenanceService interface {
	ReconcileTransfers(ctx context.Context) (*service.ReconcileResult, error)
	RecentTransfers(ctx context.Context) ([]models.AutoTransferLog, error)
	BackfillPropertyCustodian(ctx context.Context) (*service.MaintenanceResult, error)
	SyncStatuses(ctx context.Context) (*service.MaintenanceResult, error)
	RewriteClearanceDocuments(ctx context.Context) (*service.MaintenanceResult, error)
	FlushReceiptCache(ctx context.Context) (*service.MaintenanceResult, error)
}

// MaintenanceHandler exposes administrative data repairs.
type MaintenanceHandler struct {
	service maintenanceService
}

// NewMaintenanceHandler builds a MaintenanceHandler.
func NewMaintenanceHandler(svc maintenanceService) *MaintenanceHandler {
	return &MaintenanceHandler{service: svc}
}

// ReconcileTransfers godoc
// @Summary Create document requests missing for approved clearances
// @Tags Maintenance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /maintenance/reconcile-transfers [post]
func (h *MaintenanceHandler) ReconcileTransfers(c *gin.Context) {
	result, err := h.service.ReconcileTransfers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, result.Message, result)
}

// RecentTransfers godoc
// @Summary Transfers logged in the last few minutes
// @Tags Maintenance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /maintenance/recent-transfers [get]
func (h *MaintenanceHandler) RecentTransfers(c *gin.Context) {
	logs, err := h.service.RecentTransfers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	if logs == nil {
		logs = []models.AutoTransferLog{}
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// BackfillPropertyCustodian godoc
// @Summary Add the Property Custodian signatory to older requests
// @Tags Maintenance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /maintenance/property-custodian [post]
func (h *MaintenanceHandler) BackfillPropertyCustodian(c *gin.Context) {
	h.run(c, h.service.BackfillPropertyCustodian)
}

// SyncStatuses godoc
// @Summary Copy document statuses onto their clearance requests
// @Tags Maintenance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /maintenance/sync-statuses [post]
func (h *MaintenanceHandler) SyncStatuses(c *gin.Context) {
	h.run(c, h.service.SyncStatuses)
}

// RewriteClearanceDocuments godoc
// @Summary Replace placeholder document types with the requested lists
// @Tags Maintenance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /maintenance/clearance-documents [post]
func (h *MaintenanceHandler) RewriteClearanceDocuments(c *gin.Context) {
	h.run(c, h.service.RewriteClearanceDocuments)
}

// FlushReceiptCache godoc
// @Summary Drop cached receipt readings
// @Tags Maintenance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /maintenance/receipt-cache/flush [post]
func (h *MaintenanceHandler) FlushReceiptCache(c *gin.Context) {
	h.run(c, h.service.FlushReceiptCache)
}

func (h *MaintenanceHandler) run(c *gin.Context, job func(context.Context) (*service.MaintenanceResult, error)) {
	result, err := job(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, result.Message, result)
}
