package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

const (
	recentTransferWindow = 5 * time.Minute
	recentTransferLimit  = 10

	transferTriggerApproval  = "approval"
	transferTriggerReconcile = "reconcile"
	transferTriggerConvert   = "convert"
)

type transferStore interface {
	Transfer(ctx context.Context, params repository.TransferParams) (*models.TransferOutcome, error)
	ListRecent(ctx context.Context, since time.Time, limit int) ([]models.AutoTransferLog, error)
}

type pendingTransferLister interface {
	ListApprovedWithoutTransfer(ctx context.Context) ([]models.ClearanceRequest, error)
}

// ReconcileResult summarises a reconciliation sweep.
type ReconcileResult struct {
	FixedCount int    `json:"fixed_count"`
	TotalFound int    `json:"total_found"`
	Message    string `json:"message"`
}

// ConversionResult is returned when the registrar converts a clearance.
type ConversionResult struct {
	DocumentRequestID string `json:"document_request_id"`
	Created           bool   `json:"created"`
	Message           string `json:"message"`
}

// TransferService moves approved clearances into the document pipeline.
type TransferService struct {
	store      transferStore
	clearances pendingTransferLister
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewTransferService constructs a TransferService.
func NewTransferService(store transferStore, clearances pendingTransferLister, metrics *MetricsService, logger *zap.Logger) *TransferService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferService{store: store, clearances: clearances, metrics: metrics, logger: logger, now: time.Now}
}

// Bridge creates the document request for a newly approved clearance. It never fails the
// caller: errors are logged and reported as a nil outcome.
func (s *TransferService) Bridge(ctx context.Context, clearanceID string) *models.TransferOutcome {
	return s.run(ctx, clearanceID, transferTriggerApproval)
}

func (s *TransferService) run(ctx context.Context, clearanceID, trigger string) *models.TransferOutcome {
	outcome, err := s.store.Transfer(ctx, repository.TransferParams{
		ClearanceID: clearanceID,
		Reason:      repository.TransferReasonApproved,
	})
	if err != nil {
		s.metrics.RecordTransfer(trigger, "failed")
		s.logger.Warn("clearance transfer failed", zap.String("clearance_id", clearanceID), zap.String("trigger", trigger), zap.Error(err))
		return nil
	}
	s.metrics.RecordTransfer(trigger, transferResult(outcome))
	if outcome.Created {
		s.logger.Info("clearance transferred to documents",
			zap.String("clearance_id", clearanceID),
			zap.String("document_request_id", outcome.DocumentRequestID),
			zap.String("reason", repository.TransferReasonApproved))
	}
	return outcome
}

// Reconcile re-runs the bridge for every approved clearance that never got a document request.
func (s *TransferService) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	pending, err := s.clearances.ListApprovedWithoutTransfer(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to find missing transfers")
	}
	fixed := 0
	for _, req := range pending {
		if outcome := s.run(ctx, req.ID, transferTriggerReconcile); outcome != nil && outcome.Created {
			fixed++
		}
	}
	return &ReconcileResult{
		FixedCount: fixed,
		TotalFound: len(pending),
		Message:    fmt.Sprintf("Fixed %d missing transfers", fixed),
	}, nil
}

// Recent lists the transfers logged in the last five minutes.
func (s *TransferService) Recent(ctx context.Context) ([]models.AutoTransferLog, error) {
	logs, err := s.store.ListRecent(ctx, s.now().UTC().Add(-recentTransferWindow), recentTransferLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list recent transfers")
	}
	return logs, nil
}

// Convert turns a clearance into a document request on the registrar's say-so and marks
// it Converted. A Pending or Processing document request already linked is reused.
func (s *TransferService) Convert(ctx context.Context, clearanceID string) (*ConversionResult, error) {
	outcome, err := s.store.Transfer(ctx, repository.TransferParams{
		ClearanceID:   clearanceID,
		Reason:        repository.TransferReasonConverted,
		MarkConverted: true,
		ReuseStatuses: []models.DocumentStatus{models.DocumentPending, models.DocumentProcessing},
	})
	if err != nil {
		s.metrics.RecordTransfer(transferTriggerConvert, "failed")
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to convert clearance")
	}
	s.metrics.RecordTransfer(transferTriggerConvert, transferResult(outcome))

	message := "Clearance converted to document request successfully"
	if !outcome.Created {
		message = "Already in Pending Documents"
	}
	return &ConversionResult{DocumentRequestID: outcome.DocumentRequestID, Created: outcome.Created, Message: message}, nil
}

func transferResult(outcome *models.TransferOutcome) string {
	if outcome.Created {
		return "created"
	}
	return "existing"
}
