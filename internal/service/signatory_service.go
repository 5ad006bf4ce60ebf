package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

// Actor is the authenticated caller performing a workflow step.
type Actor struct {
	ID     string
	Name   string
	Role   models.UserRole
	Office string
}

// CanSignFor reports whether the actor may decide for office.
func (a Actor) CanSignFor(office string) bool {
	return a.Role == models.RoleAdmin || strings.EqualFold(a.Office, office)
}

type signatoryStore interface {
	FindSignatory(ctx context.Context, id string) (*models.Signatory, error)
	ListSignatories(ctx context.Context, requestID string) ([]models.Signatory, error)
	Decide(ctx context.Context, decision models.SignatoryDecision) (*models.AggregateOutcome, error)
}

type signatureStore interface {
	UpdateStudentSignature(ctx context.Context, studentID, signature string) error
}

type clearanceBridge interface {
	Bridge(ctx context.Context, clearanceID string) *models.TransferOutcome
}

type studentNotifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// SignatoryService applies office decisions and keeps the request aggregate in step.
type SignatoryService struct {
	store      signatoryStore
	signatures signatureStore
	bridge     clearanceBridge
	notifier   studentNotifier
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewSignatoryService constructs a SignatoryService.
func NewSignatoryService(store signatoryStore, signatures signatureStore, bridge clearanceBridge, notifier studentNotifier, metrics *MetricsService, logger *zap.Logger) *SignatoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignatoryService{store: store, signatures: signatures, bridge: bridge, notifier: notifier, metrics: metrics, logger: logger, now: time.Now}
}

// Approve marks the signatory Approved. A non-empty signature is stored on the student record.
// When this approval completes the set, the document request is created after commit.
func (s *SignatoryService) Approve(ctx context.Context, actor Actor, signatoryID, signature string) (*models.AggregateOutcome, error) {
	outcome, err := s.decide(ctx, actor, signatoryID, models.SignatoryApproved, "")
	if err != nil {
		return nil, err
	}
	if signature = strings.TrimSpace(signature); signature != "" && s.signatures != nil {
		if err := s.signatures.UpdateStudentSignature(ctx, outcome.StudentID, signature); err != nil {
			s.logger.Warn("failed to store signature", zap.String("student_id", outcome.StudentID), zap.Error(err))
		}
	}
	if outcome.BecameApproved && s.bridge != nil {
		s.bridge.Bridge(ctx, outcome.RequestID)
	}
	return outcome, nil
}

// Reject marks the signatory Rejected with a mandatory reason and notifies the student.
func (s *SignatoryService) Reject(ctx context.Context, actor Actor, signatoryID, reason string) (*models.AggregateOutcome, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Rejection reason is required")
	}
	outcome, err := s.decide(ctx, actor, signatoryID, models.SignatoryRejected, reason)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, rejectionNotice(outcome.StudentID, actor.Name, reason))
	}
	return outcome, nil
}

// Reset reopens a signatory to Pending and clears its signed state.
func (s *SignatoryService) Reset(ctx context.Context, actor Actor, signatoryID string) (*models.AggregateOutcome, error) {
	return s.decide(ctx, actor, signatoryID, models.SignatoryPending, "")
}

func (s *SignatoryService) decide(ctx context.Context, actor Actor, signatoryID string, status models.SignatoryStatus, reason string) (*models.AggregateOutcome, error) {
	sig, err := s.store.FindSignatory(ctx, signatoryID)
	if err != nil {
		return nil, mapSignatoryError(err)
	}
	if !actor.CanSignFor(sig.Office) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("Only %s staff can act on this signatory", sig.Office))
	}

	outcome, err := s.store.Decide(ctx, models.SignatoryDecision{
		SignatoryID: signatoryID,
		Status:      status,
		SignedBy:    actor.Name,
		Reason:      reason,
		SignedAt:    s.now().UTC(),
	})
	if err != nil {
		return nil, mapSignatoryError(err)
	}
	s.metrics.RecordSignatoryDecision(string(status))
	s.logger.Info("signatory decision recorded",
		zap.String("signatory_id", signatoryID),
		zap.String("request_id", outcome.RequestID),
		zap.String("office", outcome.Office),
		zap.String("status", string(status)),
		zap.String("aggregate", string(outcome.Status)))
	return outcome, nil
}

// Summary reports approval progress for a request.
func (s *SignatoryService) Summary(ctx context.Context, requestID string) (*models.SignatorySummary, error) {
	rows, err := s.store.ListSignatories(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load signatories")
	}
	return SummarizeSignatories(rows), nil
}

// SummarizeSignatories counts rows by status and picks the headline message.
func SummarizeSignatories(rows []models.Signatory) *models.SignatorySummary {
	summary := &models.SignatorySummary{PendingOffices: []string{}, RejectedOffices: []string{}}
	summary.Total = len(rows)
	for _, row := range rows {
		switch row.Status {
		case models.SignatoryApproved:
			summary.Approved++
		case models.SignatoryRejected:
			summary.Rejected++
			summary.RejectedOffices = append(summary.RejectedOffices, row.Office)
		default:
			summary.Pending++
			summary.PendingOffices = append(summary.PendingOffices, row.Office)
		}
	}
	switch {
	case summary.Total == 0:
		summary.Message = "No clearance signatories found"
	case summary.Rejected > 0:
		summary.Message = "Rejected by: " + strings.Join(summary.RejectedOffices, ", ")
	case summary.Approved == summary.Total:
		summary.AllApproved = true
		summary.Message = "All clearances approved"
	default:
		summary.Message = fmt.Sprintf("Waiting for %d office(s): %s", summary.Pending, strings.Join(summary.PendingOffices, ", "))
	}
	return summary
}

func mapSignatoryError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "Signatory not found")
	case errors.Is(err, repository.ErrRequestConverted):
		return appErrors.Clone(appErrors.ErrConflict, "Clearance request has already been converted to a document request")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update signatory")
	}
}
