package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type registrarClearanceStore interface {
	FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error)
	FindLatestSignatory(ctx context.Context, requestID, office string) (*models.Signatory, error)
	UpdateState(ctx context.Context, id string, update models.ClearanceStateUpdate) error
	SetPickupDate(ctx context.Context, id string, date time.Time) error
}

type linkedDocumentFinder interface {
	FindByClearance(ctx context.Context, studentID, clearanceID string) (*models.DocumentRequest, error)
}

type clearanceConverter interface {
	Convert(ctx context.Context, clearanceID string) (*ConversionResult, error)
}

// PipelineCheck says whether a clearance already has an open document request.
type PipelineCheck struct {
	InPending         bool                   `json:"in_pending"`
	DocumentRequestID *string                `json:"document_request_id"`
	Status            *models.DocumentStatus `json:"status,omitempty"`
}

// RegistrarService carries the registrar's direct actions on clearance requests.
type RegistrarService struct {
	store       registrarClearanceStore
	documents   linkedDocumentFinder
	signatories *SignatoryService
	converter   clearanceConverter
	notifier    studentNotifier
	logger      *zap.Logger
}

// NewRegistrarService constructs a RegistrarService.
func NewRegistrarService(store registrarClearanceStore, documents linkedDocumentFinder, signatories *SignatoryService, converter clearanceConverter, notifier studentNotifier, logger *zap.Logger) *RegistrarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrarService{store: store, documents: documents, signatories: signatories, converter: converter, notifier: notifier, logger: logger}
}

// MarkProcessing starts fulfillment of a request.
func (s *RegistrarService) MarkProcessing(ctx context.Context, id string) error {
	return s.setFulfillment(ctx, id, models.FulfillmentProcessing, models.RegistrarProcessing)
}

// MarkReleased records that the student collected the documents.
func (s *RegistrarService) MarkReleased(ctx context.Context, id string) error {
	return s.setFulfillment(ctx, id, models.FulfillmentReleased, models.RegistrarComplete)
}

// MarkUnclaimed records that the documents were never collected.
func (s *RegistrarService) MarkUnclaimed(ctx context.Context, id string) error {
	return s.setFulfillment(ctx, id, models.FulfillmentUnclaimed, models.RegistrarComplete)
}

func (s *RegistrarService) setFulfillment(ctx context.Context, id string, fulfillment models.FulfillmentStatus, registrar models.RegistrarStatus) error {
	req, err := s.findRequest(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.UpdateState(ctx, id, models.ClearanceStateUpdate{Fulfillment: &fulfillment, Registrar: &registrar}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update clearance request")
	}
	s.logger.Info("registrar updated fulfillment",
		zap.String("request_id", id),
		zap.String("fulfillment_status", string(fulfillment)),
		zap.String("registrar_status", string(registrar)))
	if s.notifier != nil {
		s.notifier.Notify(ctx, registrarNotice(req.StudentID, fulfillment))
	}
	return nil
}

// Release approves the request's Registrar signatory and recomputes the request status.
func (s *RegistrarService) Release(ctx context.Context, actor Actor, id, signature string) (*models.AggregateOutcome, error) {
	sig, err := s.registrarSignatory(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.signatories.Approve(ctx, registrarActing(actor), sig.ID, signature)
}

// Reject rejects the request's Registrar signatory with a mandatory reason.
func (s *RegistrarService) Reject(ctx context.Context, actor Actor, id, reason string) (*models.AggregateOutcome, error) {
	sig, err := s.registrarSignatory(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.signatories.Reject(ctx, registrarActing(actor), sig.ID, reason)
}

// MoveToPending rolls an approved request back by reopening its Registrar signatory.
func (s *RegistrarService) MoveToPending(ctx context.Context, actor Actor, id string) (*models.AggregateOutcome, error) {
	req, err := s.findRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != models.ClearanceApproved {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Request is not in approved status")
	}
	sig, err := s.registrarSignatory(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.signatories.Reset(ctx, registrarActing(actor), sig.ID)
}

// SetPickupDate stores the pickup date on the request and its linked document requests.
func (s *RegistrarService) SetPickupDate(ctx context.Context, id string, date time.Time) error {
	if date.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "Pickup date is required")
	}
	if err := s.store.SetPickupDate(ctx, id, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set pickup date")
	}
	return nil
}

// Convert hands the request to the document pipeline and marks it Converted.
func (s *RegistrarService) Convert(ctx context.Context, id string) (*ConversionResult, error) {
	return s.converter.Convert(ctx, id)
}

// DocumentRequest reports whether the clearance already sits in the document pipeline.
func (s *RegistrarService) DocumentRequest(ctx context.Context, id string) (*PipelineCheck, error) {
	req, err := s.findRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := s.documents.FindByClearance(ctx, req.StudentID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &PipelineCheck{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check document pipeline")
	}
	status := doc.Status
	check := &PipelineCheck{Status: &status}
	if status == models.DocumentPending || status == models.DocumentProcessing {
		docID := doc.ID
		check.InPending = true
		check.DocumentRequestID = &docID
	}
	return check, nil
}

func (s *RegistrarService) findRequest(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	req, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance request")
	}
	return req, nil
}

func (s *RegistrarService) registrarSignatory(ctx context.Context, id string) (*models.Signatory, error) {
	sig, err := s.store.FindLatestSignatory(ctx, id, models.OfficeRegistrar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Registrar signatory not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registrar signatory")
	}
	return sig, nil
}

// registrarActing lets registrar accounts sign the Registrar row regardless of the office on their profile.
func registrarActing(actor Actor) Actor {
	if actor.Role == models.RoleRegistrar {
		actor.Office = models.OfficeRegistrar
	}
	if actor.Name == "" {
		actor.Name = registrarActor
	}
	return actor
}
