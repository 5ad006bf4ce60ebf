package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/middleware"
	"github.com/noah-isme/clearance-api/internal/models"
)

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Routes bundles the handlers mounted under the API prefix.
type Routes struct {
	Tokens        tokenValidator
	AuditLog      auditWriter
	Logger        *zap.Logger
	Auth          *AuthHandler
	Clearances    *ClearanceHandler
	Signatories   *SignatoryHandler
	Registrar     *RegistrarHandler
	Documents     *DocumentHandler
	Receipts      *ReceiptHandler
	Maintenance   *MaintenanceHandler
	Notifications *NotificationHandler
	Metrics       *MetricsHandler
}

// Register mounts every endpoint on api. Admins pass every role check.
func (r Routes) Register(api *gin.RouterGroup) {
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(r.AuditLog, r.Logger, action, resource)
	}

	api.GET("/health", r.Metrics.Health)
	api.GET("/metrics", r.Metrics.Prometheus)
	api.POST("/auth/login", r.Auth.Login)
	api.GET("/documents/files/:fileId/download", r.Documents.Download)

	authed := api.Group("", middleware.JWT(r.Tokens))
	authed.GET("/auth/me", r.Auth.Me)

	student := middleware.RequireRoles(models.RoleStudent)
	staff := middleware.RequireRoles(models.RoleStaff, models.RoleRegistrar)
	registrar := middleware.RequireRoles(models.RoleRegistrar)
	admin := middleware.RequireRoles()

	clearances := authed.Group("/clearances")
	clearances.POST("", student, r.Clearances.Submit)
	clearances.GET("/reference-check", r.Clearances.ReferenceCheck)
	clearances.POST("/duplicate-check", student, r.Clearances.DuplicateCheck)
	clearances.GET("/:id", r.Clearances.Get)
	clearances.GET("/:id/signatories/summary", r.Clearances.Summary)

	signatories := authed.Group("/signatories")
	signatories.POST("/:id/approve", staff, middleware.RequireOffice(), audit(models.AuditActionSignatoryApprove, "signatory"), r.Signatories.Approve)
	signatories.POST("/:id/reject", staff, middleware.RequireOffice(), audit(models.AuditActionSignatoryReject, "signatory"), r.Signatories.Reject)
	signatories.POST("/:id/reset", admin, audit(models.AuditActionSignatoryReset, "signatory"), r.Signatories.Reset)

	reg := authed.Group("/registrar/clearances", registrar)
	regAudit := audit(models.AuditActionRegistrarUpdate, "clearance_request")
	reg.POST("/:id/mark-processing", regAudit, r.Registrar.MarkProcessing)
	reg.POST("/:id/mark-released", regAudit, r.Registrar.MarkReleased)
	reg.POST("/:id/mark-unclaimed", regAudit, r.Registrar.MarkUnclaimed)
	reg.POST("/:id/release", regAudit, r.Registrar.Release)
	reg.POST("/:id/reject", regAudit, r.Registrar.Reject)
	reg.POST("/:id/move-to-pending", regAudit, r.Registrar.MoveToPending)
	reg.POST("/:id/pickup-date", regAudit, r.Registrar.SetPickupDate)
	reg.POST("/:id/convert", regAudit, r.Registrar.Convert)
	reg.GET("/:id/document-request", r.Registrar.DocumentRequest)

	docs := authed.Group("/documents")
	docAudit := audit(models.AuditActionDocumentTransition, "document_request")
	ownerOrRegistrar := middleware.RequireRoles(models.RoleStudent, models.RoleRegistrar)
	docs.POST("", student, r.Documents.Create)
	docs.GET("/:id", ownerOrRegistrar, r.Documents.Get)
	docs.GET("/:id/claim-slip", ownerOrRegistrar, r.Documents.ClaimSlip)
	docs.POST("/:id/mark-processing", registrar, docAudit, r.Documents.MarkProcessing)
	docs.POST("/:id/complete", registrar, docAudit, r.Documents.Complete)
	docs.POST("/:id/mark-released", registrar, docAudit, r.Documents.MarkReleased)
	docs.POST("/:id/mark-unclaimed", registrar, docAudit, r.Documents.MarkUnclaimed)
	docs.POST("/:id/reject", registrar, docAudit, r.Documents.Reject)
	docs.POST("/:id/move-to-pending", registrar, docAudit, r.Documents.MoveToPending)

	receipts := authed.Group("/receipts", middleware.WithResponseMeta())
	readers := middleware.RequireRoles(models.RoleStudent, models.RoleStaff, models.RoleRegistrar)
	receipts.POST("/extract", readers, r.Receipts.Extract)
	receipts.POST("/validate-reference", readers, r.Receipts.ValidateReference)
	receipts.GET("/ai-health", admin, r.Receipts.AIHealth)

	maint := authed.Group("/maintenance", admin)
	maintAudit := audit(models.AuditActionMaintenance, "maintenance")
	maint.POST("/reconcile-transfers", maintAudit, r.Maintenance.ReconcileTransfers)
	maint.POST("/property-custodian", maintAudit, r.Maintenance.BackfillPropertyCustodian)
	maint.POST("/sync-statuses", maintAudit, r.Maintenance.SyncStatuses)
	maint.POST("/clearance-documents", maintAudit, r.Maintenance.RewriteClearanceDocuments)
	maint.POST("/receipt-cache/flush", maintAudit, r.Maintenance.FlushReceiptCache)
	maint.GET("/recent-transfers", r.Maintenance.RecentTransfers)

	notifications := authed.Group("/notifications", student)
	notifications.GET("", r.Notifications.List)
	notifications.POST("/read", r.Notifications.MarkRead)
}
