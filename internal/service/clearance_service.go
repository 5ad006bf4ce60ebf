package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

const (
	defaultDocumentType  = "Registrar Documents"
	defaultPaymentMethod = "cash"
)

type clearanceStore interface {
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	Create(ctx context.Context, req *models.ClearanceRequest, signatories []models.Signatory) error
	FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error)
	ListSignatories(ctx context.Context, requestID string) ([]models.Signatory, error)
}

type studentDirectory interface {
	FindStudentByID(ctx context.Context, id string) (*models.Student, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ClearanceSubmission is a student's new clearance request as received from the form.
type ClearanceSubmission struct {
	StudentID       string
	DocumentType    string
	Documents       []string
	Purposes        []string
	Reason          string
	PaymentMethod   string
	PaymentAmount   string
	ReferenceNumber string
	Receipt         *ReceiptUpload
	IP              string
	UserAgent       string
}

// PaymentCheck is the stored outcome of the receipt review done at submission.
type PaymentCheck struct {
	Validation     models.PaymentValidation `json:"validation"`
	Receipt        *models.ExtractedReceipt `json:"receipt,omitempty"`
	ReferenceMatch *models.ReferenceMatch   `json:"reference_match,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

// SubmissionResult is returned after a request is stored.
type SubmissionResult struct {
	RequestID       string        `json:"request_id"`
	Status          string        `json:"status"`
	PaymentVerified bool          `json:"payment_verified"`
	PaymentCheck    *PaymentCheck `json:"payment_check,omitempty"`
	Message         string        `json:"message"`
}

// ClearanceServiceOptions carries the optional collaborators of the submission pipeline.
type ClearanceServiceOptions struct {
	Guard                 *ImageGuard
	Receipts              *ReceiptStore
	Extractor             *ReceiptExtractor
	Duplicates            *DuplicateDetector
	Policy                OfficePolicy
	ExpectedAmount        float64
	RequireReferenceMatch bool
	Logger                *zap.Logger
}

// ClearanceService accepts student submissions and serves request details.
type ClearanceService struct {
	store      clearanceStore
	students   studentDirectory
	opts       ClearanceServiceOptions
	logger     *zap.Logger
	now        func() time.Time
	expected   float64
	policy     OfficePolicy
	duplicates *DuplicateDetector
}

// NewClearanceService constructs a ClearanceService.
func NewClearanceService(store clearanceStore, students studentDirectory, opts ClearanceServiceOptions) *ClearanceService {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := opts.Policy
	if policy == nil {
		policy = DefaultOfficePolicy{}
	}
	expected := opts.ExpectedAmount
	if expected <= 0 {
		expected = DefaultExpectedAmount
	}
	return &ClearanceService{
		store:      store,
		students:   students,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
		expected:   expected,
		policy:     policy,
		duplicates: opts.Duplicates,
	}
}

// Submit validates the submission, stores the receipt, reviews the payment and
// creates the request with its signatory rows.
func (s *ClearanceService) Submit(ctx context.Context, sub ClearanceSubmission) (*SubmissionResult, error) {
	if strings.TrimSpace(sub.StudentID) == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Student session required")
	}
	docType := strings.TrimSpace(sub.DocumentType)
	if docType == "" {
		docType = defaultDocumentType
	}
	method := strings.TrimSpace(sub.PaymentMethod)
	if method == "" {
		method = defaultPaymentMethod
	}
	amount, err := parseSubmittedAmount(sub.PaymentAmount)
	if err != nil {
		return nil, err
	}

	reference := strings.TrimSpace(sub.ReferenceNumber)
	if reference != "" {
		if !ValidReferenceFormat(reference) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "Reference number must be 7-16 digits only")
		}
		taken, err := s.store.ReferenceExists(ctx, reference)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check reference number")
		}
		if taken {
			return nil, referenceTakenError(reference)
		}
	}

	if s.duplicates != nil {
		match, message, err := s.duplicates.Check(ctx, sub.StudentID, docType, sub.Documents, sub.Purposes)
		if err != nil {
			return nil, err
		}
		if match != nil {
			return nil, appErrors.Clone(appErrors.ErrDuplicate, message)
		}
	}

	student, err := s.students.FindStudentByID(ctx, sub.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	req := &models.ClearanceRequest{
		ID:                uuid.NewString(),
		StudentID:         sub.StudentID,
		Status:            models.ClearancePending,
		FulfillmentStatus: models.FulfillmentPending,
		RegistrarStatus:   models.RegistrarPending,
		DocumentType:      docType,
		Documents:         cleanList(sub.Documents),
		Purposes:          cleanList(sub.Purposes),
		PaymentMethod:     method,
		PaymentAmount:     amount,
	}
	if reason := strings.TrimSpace(sub.Reason); reason != "" {
		req.Reason = &reason
	}
	if reference != "" {
		req.ReferenceNumber = &reference
	}

	var check *PaymentCheck
	if sub.Receipt != nil && len(sub.Receipt.Data) > 0 {
		if s.opts.Guard == nil {
			return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "Receipt uploads are not configured")
		}
		image, err := s.opts.Guard.Prepare(sub.Receipt)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("Invalid receipt image: %s", appErrors.FromError(err).Message))
		}
		if s.opts.Receipts != nil {
			stored := s.opts.Receipts.Save(ctx, sub.StudentID, image)
			req.ReceiptURL, req.ReceiptKey, req.PaymentReceipt = stored.URL, stored.Key, stored.Inline
		}
		check = s.reviewPayment(ctx, image, reference)
		req.PaymentVerified = check.verified(s.opts.RequireReferenceMatch, reference != "")
		if raw, err := json.Marshal(check); err == nil {
			details := string(raw)
			req.PaymentDetails = &details
		}
	}

	signatories := BuildSignatories(s.policy, req.ID, student.CourseCode, s.now().UTC())
	if err := s.store.Create(ctx, req, signatories); err != nil {
		if errors.Is(err, repository.ErrReferenceTaken) {
			return nil, referenceTakenError(reference)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit clearance request")
	}

	s.audit(ctx, sub, req.ID)
	s.logger.Info("clearance request submitted",
		zap.String("request_id", req.ID),
		zap.String("student_id", req.StudentID),
		zap.Int("signatories", len(signatories)),
		zap.Bool("payment_verified", req.PaymentVerified))

	return &SubmissionResult{
		RequestID:       req.ID,
		Status:          string(req.Status),
		PaymentVerified: req.PaymentVerified,
		PaymentCheck:    check,
		Message:         "Clearance request submitted successfully",
	}, nil
}

// reviewPayment reads the receipt and compares it with the typed reference.
// Model failures are recorded on the check and never block the submission.
func (s *ClearanceService) reviewPayment(ctx context.Context, image []byte, reference string) *PaymentCheck {
	check := &PaymentCheck{Validation: models.PaymentValidation{Reason: "Receipt was not reviewed automatically"}}
	if s.opts.Extractor == nil || !s.opts.Extractor.Enabled() {
		return check
	}
	receipt, err := s.opts.Extractor.Extract(ctx, image)
	if err != nil {
		check.Error = appErrors.FromError(err).Message
		s.logger.Warn("receipt extraction failed during submission", zap.Error(err))
		return check
	}
	check.Receipt = receipt
	check.Validation = ValidatePayment(receipt.Amount, receipt.ReferenceNumber, receipt.Confidence, s.expected)
	if reference != "" {
		match := MatchReference(receipt.ReferenceNumber, reference, receipt.Confidence)
		check.ReferenceMatch = &match
	}
	return check
}

func (c *PaymentCheck) verified(requireMatch, hasReference bool) bool {
	if !c.Validation.Accepted {
		return false
	}
	if requireMatch && hasReference {
		return c.ReferenceMatch != nil && c.ReferenceMatch.Match
	}
	return true
}

// ReferenceCheck reports whether a reference number is still free to use.
func (s *ClearanceService) ReferenceCheck(ctx context.Context, reference string) (bool, string, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return false, "", appErrors.Clone(appErrors.ErrValidation, "Reference number is required")
	}
	taken, err := s.store.ReferenceExists(ctx, reference)
	if err != nil {
		return false, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check reference number")
	}
	if taken {
		return false, fmt.Sprintf("Reference number '%s' has already been used", reference), nil
	}
	return true, "Reference number is available", nil
}

// DuplicateCheck looks for an earlier request the new one would repeat.
func (s *ClearanceService) DuplicateCheck(ctx context.Context, studentID, documentType string, documents, purposes []string) (*models.DuplicateMatch, string, error) {
	if s.duplicates == nil {
		return nil, noDuplicateMessage, nil
	}
	if strings.TrimSpace(documentType) == "" {
		documentType = defaultDocumentType
	}
	return s.duplicates.Check(ctx, studentID, documentType, documents, purposes)
}

// Get returns a request with its signatories. Students may only read their own requests.
func (s *ClearanceService) Get(ctx context.Context, actor Actor, id string) (*models.ClearanceDetail, error) {
	req, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance request")
	}
	if actor.Role == models.RoleStudent && req.StudentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Request not found")
	}
	rows, err := s.store.ListSignatories(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load signatories")
	}
	if rows == nil {
		rows = []models.Signatory{}
	}
	return &models.ClearanceDetail{ClearanceRequest: *req, Signatories: rows, ReceiptView: req.ReceiptImage()}, nil
}

func (s *ClearanceService) audit(ctx context.Context, sub ClearanceSubmission, requestID string) {
	if s.students == nil {
		return
	}
	actorID, resourceID := sub.StudentID, requestID
	entry := &models.AuditLog{
		ID:         uuid.NewString(),
		ActorID:    &actorID,
		Action:     models.AuditActionClearanceSubmit,
		Resource:   "clearance_request",
		ResourceID: &resourceID,
		IPAddress:  sub.IP,
		UserAgent:  sub.UserAgent,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.students.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("request_id", requestID), zap.Error(err))
	}
}

func referenceTakenError(reference string) error {
	return appErrors.Clone(appErrors.ErrDuplicate,
		fmt.Sprintf("Reference number '%s' has already been used. Please use a different reference number.", reference))
}

func parseSubmittedAmount(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultExpectedAmount, nil
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil || amount < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "Invalid payment amount")
	}
	return amount, nil
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
