package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/export"
)

type documentStore interface {
	Create(ctx context.Context, doc *models.DocumentRequest) error
	FindByID(ctx context.Context, id string) (*models.DocumentRequest, error)
	ListFiles(ctx context.Context, documentID string) ([]models.DocumentFile, error)
	FindFile(ctx context.Context, id string) (*models.DocumentFile, error)
	Transition(ctx context.Context, t models.DocumentTransition) (*models.DocumentRequest, error)
}

type signatoryCounter interface {
	CountSignatories(ctx context.Context, requestID string) (models.SignatoryCounts, error)
}

type studentFinder interface {
	FindStudentByID(ctx context.Context, id string) (*models.Student, error)
}

type fileStore interface {
	SaveStream(filename string, r io.Reader) (string, int64, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type urlSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (resourceID, relPath string, expiresAt time.Time, err error)
}

type slipRenderer interface {
	Render(slip export.ClaimSlip) ([]byte, error)
}

// DocumentUpload is one file attached when completing a document request.
type DocumentUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// DocumentInput is a student's direct request for a document.
type DocumentInput struct {
	DocumentType string `json:"document_type" validate:"required,max=120"`
	Purpose      string `json:"purpose" validate:"max=500"`
}

// DocumentServiceOptions configures file handling for the document pipeline.
type DocumentServiceOptions struct {
	MaxFileSize  int64
	DownloadPath string
	Validate     *validator.Validate
	Metrics      *MetricsService
	Logger       *zap.Logger
}

// DocumentService drives document requests from Pending to pickup.
type DocumentService struct {
	store       documentStore
	signatories signatoryCounter
	students    studentFinder
	files       fileStore
	signer      urlSigner
	slips       slipRenderer
	notifier    studentNotifier
	opts        DocumentServiceOptions
	logger      *zap.Logger
	now         func() time.Time
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(store documentStore, signatories signatoryCounter, students studentFinder, files fileStore, signer urlSigner, slips slipRenderer, notifier studentNotifier, opts DocumentServiceOptions) *DocumentService {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 20 * 1024 * 1024
	}
	if opts.DownloadPath == "" {
		opts.DownloadPath = "/api/v1/documents/files"
	}
	if opts.Validate == nil {
		opts.Validate = validator.New()
	}
	return &DocumentService{
		store:       store,
		signatories: signatories,
		students:    students,
		files:       files,
		signer:      signer,
		slips:       slips,
		notifier:    notifier,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}
}

// Create files a document request that did not come from a clearance.
func (s *DocumentService) Create(ctx context.Context, studentID string, input DocumentInput) (*models.DocumentRequest, error) {
	input.DocumentType = strings.TrimSpace(input.DocumentType)
	input.Purpose = strings.TrimSpace(input.Purpose)
	if err := s.opts.Validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && fieldErrs[0].Field() == "DocumentType" && fieldErrs[0].Tag() == "required" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "Document type is required")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document request")
	}
	doc := &models.DocumentRequest{
		StudentID:    studentID,
		DocumentType: input.DocumentType,
		Purpose:      input.Purpose,
		Status:       models.DocumentPending,
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document request")
	}
	return doc, nil
}

// Get returns a document request with its files and fresh download links.
func (s *DocumentService) Get(ctx context.Context, actor Actor, id string) (*models.DocumentDetail, error) {
	doc, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListFiles(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list document files")
	}
	if files == nil {
		files = []models.DocumentFile{}
	}
	for i := range files {
		files[i].DownloadURL = s.downloadURL(files[i])
	}
	return &models.DocumentDetail{DocumentRequest: *doc, Files: files}, nil
}

// MarkProcessing starts work on a Pending document. A document built from a clearance
// may only start once every signatory on that clearance approved.
func (s *DocumentService) MarkProcessing(ctx context.Context, id string) (*models.TransitionResult, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	message := "Document moved to processing."
	var gate models.ClearanceGate
	if doc.ClearanceRequestID != nil {
		counts, err := s.signatories.CountSignatories(ctx, *doc.ClearanceRequestID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check clearance signatories")
		}
		gate, message = clearanceGate(counts)
		if gate != models.GateApproved {
			appErr := appErrors.Clone(appErrors.ErrPreconditionFailed, message)
			appErr.Details = map[string]string{"clearance_status": string(gate)}
			return nil, appErr
		}
	}

	updated, err := s.transition(ctx, models.DocumentTransition{
		DocumentID:  id,
		From:        []models.DocumentStatus{models.DocumentPending},
		To:          models.DocumentProcessing,
		Fulfillment: models.FulfillmentProcessing,
		Registrar:   models.RegistrarProcessing,
	})
	if err != nil {
		return nil, err
	}
	return &models.TransitionResult{Document: updated, ClearanceStatus: gate, Message: message}, nil
}

// clearanceGate decides whether the signatory tallies allow fulfillment to start.
func clearanceGate(c models.SignatoryCounts) (models.ClearanceGate, string) {
	switch {
	case c.Rejected > 0:
		return models.GateRejected, "Cannot process: some clearances have been rejected."
	case c.Pending > 0:
		return models.GatePending, "Cannot process yet: some clearances are still pending."
	case c.Approved != c.Total:
		return models.GateIncomplete, "Cannot process: not all clearances are approved."
	default:
		return models.GateApproved, "All clearances approved, document is now in processing."
	}
}

// Complete stores the uploaded files and moves a Processing document to Completed.
// At least one file must be attached, now or earlier.
func (s *DocumentService) Complete(ctx context.Context, id string, uploads []DocumentUpload) (*models.TransitionResult, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocumentProcessing {
		return nil, invalidTransition(doc.Status, models.DocumentCompleted)
	}

	saved, err := s.saveUploads(id, uploads)
	if err != nil {
		return nil, err
	}
	updated, err := s.transition(ctx, models.DocumentTransition{
		DocumentID:     id,
		From:           []models.DocumentStatus{models.DocumentProcessing},
		To:             models.DocumentCompleted,
		Fulfillment:    models.FulfillmentCompleted,
		Registrar:      models.RegistrarComplete,
		StampCompleted: true,
		Files:          saved,
		RequireFiles:   true,
	})
	if err != nil {
		s.discard(saved)
		return nil, err
	}
	for i := range saved {
		saved[i].DownloadURL = s.downloadURL(saved[i])
	}
	return &models.TransitionResult{Document: updated, Message: "Document completed", Files: saved}, nil
}

func (s *DocumentService) saveUploads(id string, uploads []DocumentUpload) ([]models.DocumentFile, error) {
	saved := make([]models.DocumentFile, 0, len(uploads))
	for _, up := range uploads {
		name := filepath.Base(strings.TrimSpace(up.Filename))
		if up.Reader == nil || name == "" || name == "." || name == string(filepath.Separator) {
			continue
		}
		if up.Size > s.opts.MaxFileSize {
			s.discard(saved)
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("File %s exceeds the %dMB limit", name, s.opts.MaxFileSize/(1024*1024)))
		}
		rel := path.Join(id, fmt.Sprintf("%s_%s_%s", s.now().UTC().Format("20060102150405"), uuid.NewString()[:8], name))
		stored, size, err := s.files.SaveStream(rel, up.Reader)
		if err != nil {
			s.discard(saved)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document file")
		}
		saved = append(saved, models.DocumentFile{
			ID:           uuid.NewString(),
			OriginalName: name,
			StoragePath:  stored,
			MimeType:     up.ContentType,
			FileSize:     size,
		})
	}
	return saved, nil
}

func (s *DocumentService) discard(files []models.DocumentFile) {
	for _, f := range files {
		if err := s.files.Delete(f.StoragePath); err != nil {
			s.logger.Warn("failed to remove orphaned document file", zap.String("path", f.StoragePath), zap.Error(err))
		}
	}
}

// MarkReleased records that a Completed document was picked up.
func (s *DocumentService) MarkReleased(ctx context.Context, id string) (*models.TransitionResult, error) {
	updated, err := s.transition(ctx, models.DocumentTransition{
		DocumentID:  id,
		From:        []models.DocumentStatus{models.DocumentCompleted},
		To:          models.DocumentReleased,
		Fulfillment: models.FulfillmentReleased,
		Registrar:   models.RegistrarComplete,
	})
	if err != nil {
		return nil, err
	}
	return &models.TransitionResult{Document: updated, Message: "Document released"}, nil
}

// MarkUnclaimed records that a Completed document was never picked up.
func (s *DocumentService) MarkUnclaimed(ctx context.Context, id string) (*models.TransitionResult, error) {
	updated, err := s.transition(ctx, models.DocumentTransition{
		DocumentID:  id,
		From:        []models.DocumentStatus{models.DocumentCompleted},
		To:          models.DocumentUnclaimed,
		Fulfillment: models.FulfillmentUnclaimed,
		Registrar:   models.RegistrarComplete,
	})
	if err != nil {
		return nil, err
	}
	return &models.TransitionResult{Document: updated, Message: "Document marked as unclaimed"}, nil
}

// Reject refuses a document that has not been completed. The linked clearance keeps its status.
func (s *DocumentService) Reject(ctx context.Context, id, reason string) (*models.TransitionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Rejection reason is required")
	}
	updated, err := s.transition(ctx, models.DocumentTransition{
		DocumentID:      id,
		From:            []models.DocumentStatus{models.DocumentPending, models.DocumentProcessing},
		To:              models.DocumentRejected,
		RejectionReason: &reason,
	})
	if err != nil {
		return nil, err
	}
	return &models.TransitionResult{Document: updated, Message: "Document request rejected"}, nil
}

// MoveToPending sends a Completed or Released document back to the start of the queue.
func (s *DocumentService) MoveToPending(ctx context.Context, id string) (*models.TransitionResult, error) {
	updated, err := s.transition(ctx, models.DocumentTransition{
		DocumentID:  id,
		From:        []models.DocumentStatus{models.DocumentCompleted, models.DocumentReleased},
		To:          models.DocumentPending,
		Fulfillment: models.FulfillmentPending,
		Registrar:   models.RegistrarPending,
	})
	if err != nil {
		return nil, err
	}
	return &models.TransitionResult{Document: updated, Message: "Document request moved to pending successfully"}, nil
}

func (s *DocumentService) transition(ctx context.Context, t models.DocumentTransition) (*models.DocumentRequest, error) {
	doc, err := s.store.Transition(ctx, t)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Document request not found")
		case errors.Is(err, repository.ErrInvalidTransition):
			current := models.DocumentStatus("")
			if doc != nil {
				current = doc.Status
			}
			return nil, invalidTransition(current, t.To)
		case errors.Is(err, repository.ErrNoFiles):
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "At least one file is required to complete a document request")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document request")
		}
	}
	s.opts.Metrics.RecordDocumentTransition(string(t.To))
	s.logger.Info("document transitioned",
		zap.String("document_id", doc.ID),
		zap.String("status", string(doc.Status)),
		zap.Int("files", len(t.Files)))
	if s.notifier != nil {
		s.notifier.Notify(ctx, documentNotice(doc.StudentID, doc.Status))
	}
	return doc, nil
}

func invalidTransition(current, to models.DocumentStatus) error {
	return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("Document request is %s and cannot move to %s", current, to))
}

// ClaimSlip renders the pickup slip for a Completed or Released document.
func (s *DocumentService) ClaimSlip(ctx context.Context, actor Actor, id string) ([]byte, string, error) {
	doc, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, "", err
	}
	if doc.Status != models.DocumentCompleted && doc.Status != models.DocumentReleased {
		return nil, "", appErrors.Clone(appErrors.ErrPreconditionFailed, "Claim slip is available once the document is completed")
	}
	slip := export.ClaimSlip{
		DocumentID:   doc.ID,
		DocumentType: doc.DocumentType,
		Purpose:      doc.Purpose,
		Status:       string(doc.Status),
		PickupDate:   doc.PickupDate,
		CompletedAt:  doc.CompletedAt,
		IssuedAt:     s.now(),
	}
	if doc.ReferenceNumber != nil {
		slip.ReferenceNumber = *doc.ReferenceNumber
	}
	if s.students != nil {
		if student, err := s.students.FindStudentByID(ctx, doc.StudentID); err == nil {
			slip.StudentName, slip.StudentNo = student.FullName(), student.StudentNo
		} else {
			s.logger.Warn("claim slip without student details", zap.String("document_id", id), zap.Error(err))
		}
	}
	pdf, err := s.slips.Render(slip)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render claim slip")
	}
	return pdf, fmt.Sprintf("claim-slip-%s.pdf", doc.ID), nil
}

// OpenFile resolves a signed download token to the stored file.
func (s *DocumentService) OpenFile(ctx context.Context, fileID, token string) (*models.DocumentFile, *os.File, error) {
	resourceID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil || resourceID != fileID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "Invalid or expired download link")
	}
	file, err := s.store.FindFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "File not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load file")
	}
	if file.StoragePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "Invalid or expired download link")
	}
	handle, err := s.files.Open(file.StoragePath)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "File not found")
	}
	return file, handle, nil
}

func (s *DocumentService) downloadURL(f models.DocumentFile) string {
	if s.signer == nil {
		return ""
	}
	token, _, err := s.signer.Generate(f.ID, f.StoragePath)
	if err != nil {
		s.logger.Warn("failed to sign download link", zap.String("file_id", f.ID), zap.Error(err))
		return ""
	}
	return fmt.Sprintf("%s/%s/download?token=%s", strings.TrimSuffix(s.opts.DownloadPath, "/"), f.ID, token)
}

func (s *DocumentService) find(ctx context.Context, id string) (*models.DocumentRequest, error) {
	doc, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Document request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document request")
	}
	return doc, nil
}

// load is find plus the ownership rule for students.
func (s *DocumentService) load(ctx context.Context, actor Actor, id string) (*models.DocumentRequest, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent && doc.StudentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Document request not found")
	}
	return doc, nil
}
