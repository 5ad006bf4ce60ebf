package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type maintenanceClearanceStore interface {
	BackfillSignatory(ctx context.Context, office string) (int64, error)
	SyncFulfillmentFromDocuments(ctx context.Context) (int64, error)
}

type maintenanceDocumentStore interface {
	RewriteGenericDocuments(ctx context.Context) (int64, error)
}

type transferReconciler interface {
	Reconcile(ctx context.Context) (*ReconcileResult, error)
	Recent(ctx context.Context) ([]models.AutoTransferLog, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) (int, error)
}

// MaintenanceResult reports how many rows an administrative repair touched.
type MaintenanceResult struct {
	Affected int64  `json:"affected"`
	Message  string `json:"message"`
}

// MaintenanceService groups the administrative data repairs.
type MaintenanceService struct {
	clearances maintenanceClearanceStore
	documents  maintenanceDocumentStore
	transfers  transferReconciler
	cache      cacheInvalidator
	logger     *zap.Logger
}

// NewMaintenanceService constructs a MaintenanceService.
func NewMaintenanceService(clearances maintenanceClearanceStore, documents maintenanceDocumentStore, transfers transferReconciler, cache cacheInvalidator, logger *zap.Logger) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceService{clearances: clearances, documents: documents, transfers: transfers, cache: cache, logger: logger}
}

// ReconcileTransfers creates the document requests missing for approved clearances.
func (s *MaintenanceService) ReconcileTransfers(ctx context.Context) (*ReconcileResult, error) {
	return s.transfers.Reconcile(ctx)
}

// RecentTransfers lists the transfers logged in the last few minutes.
func (s *MaintenanceService) RecentTransfers(ctx context.Context) ([]models.AutoTransferLog, error) {
	return s.transfers.Recent(ctx)
}

// BackfillPropertyCustodian adds the Property Custodian row to requests created before it existed.
func (s *MaintenanceService) BackfillPropertyCustodian(ctx context.Context) (*MaintenanceResult, error) {
	added, err := s.clearances.BackfillSignatory(ctx, models.OfficePropertyCustodian)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to backfill signatories")
	}
	s.logger.Info("backfilled signatories", zap.String("office", models.OfficePropertyCustodian), zap.Int64("added", added))
	if added == 0 {
		return &MaintenanceResult{Message: "All clearance requests already have Property Custodian signatory"}, nil
	}
	return &MaintenanceResult{Affected: added, Message: fmt.Sprintf("Successfully added Property Custodian to %d clearance requests", added)}, nil
}

// SyncStatuses copies advanced document statuses onto their clearance requests.
func (s *MaintenanceService) SyncStatuses(ctx context.Context) (*MaintenanceResult, error) {
	fixed, err := s.clearances.SyncFulfillmentFromDocuments(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sync statuses")
	}
	s.logger.Info("synced fulfillment statuses", zap.Int64("fixed", fixed))
	if fixed == 0 {
		return &MaintenanceResult{Message: "No status inconsistencies found. All records are already in sync!"}, nil
	}
	return &MaintenanceResult{Affected: fixed, Message: fmt.Sprintf("Successfully updated %d records with status inconsistencies!", fixed)}, nil
}

// RewriteClearanceDocuments replaces placeholder document types with the real requested lists.
func (s *MaintenanceService) RewriteClearanceDocuments(ctx context.Context) (*MaintenanceResult, error) {
	updated, err := s.documents.RewriteGenericDocuments(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rewrite document requests")
	}
	return &MaintenanceResult{Affected: updated, Message: fmt.Sprintf("Updated %d document requests with actual documents", updated)}, nil
}

// FlushReceiptCache drops cached receipt readings.
func (s *MaintenanceService) FlushReceiptCache(ctx context.Context) (*MaintenanceResult, error) {
	if s.cache == nil {
		return &MaintenanceResult{Message: "Receipt cache is disabled"}, nil
	}
	removed, err := s.cache.Invalidate(ctx, receiptCachePrefix+"*")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to flush receipt cache")
	}
	return &MaintenanceResult{Affected: int64(removed), Message: fmt.Sprintf("Removed %d cached receipt readings", removed)}, nil
}
