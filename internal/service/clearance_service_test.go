package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/imaging"
)

func (m *memoryClearanceStore) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	for _, req := range m.requests {
		if req.ReferenceNumber != nil && *req.ReferenceNumber == reference {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryClearanceStore) Create(ctx context.Context, req *models.ClearanceRequest, signatories []models.Signatory) error {
	if req.ReferenceNumber != nil {
		if taken, _ := m.ReferenceExists(ctx, *req.ReferenceNumber); taken {
			return repository.ErrReferenceTaken
		}
	}
	copied := *req
	m.requests[req.ID] = &copied
	for i := range signatories {
		sig := signatories[i]
		sig.RequestID = req.ID
		if sig.ID == "" {
			sig.ID = req.ID + ":" + sig.Office
		}
		m.signatories[sig.ID] = &sig
		m.order = append(m.order, sig.ID)
	}
	return nil
}

func (m *memoryClearanceStore) FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *req
	return &copied, nil
}

type stubStudentDirectory struct {
	students map[string]models.Student
	audits   []*models.AuditLog
}

func (s *stubStudentDirectory) FindStudentByID(ctx context.Context, id string) (*models.Student, error) {
	student, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

func (s *stubStudentDirectory) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.audits = append(s.audits, log)
	return nil
}

func newStudentDirectory() *stubStudentDirectory {
	return &stubStudentDirectory{students: map[string]models.Student{
		"s1": {ID: "s1", CourseCode: "BSCS"},
		"s2": {ID: "s2", CourseCode: "BSED"},
	}}
}

func TestClearanceSubmitAppliesDefaults(t *testing.T) {
	store := newMemoryClearanceStore()
	directory := newStudentDirectory()
	svc := NewClearanceService(store, directory, ClearanceServiceOptions{})

	result, err := svc.Submit(context.Background(), ClearanceSubmission{StudentID: "s2", Documents: []string{"TOR", " "}, Purposes: []string{"Employment"}})
	require.NoError(t, err)
	assert.Equal(t, "Pending", result.Status)
	assert.False(t, result.PaymentVerified)

	stored := store.requests[result.RequestID]
	require.NotNil(t, stored)
	assert.Equal(t, defaultDocumentType, stored.DocumentType)
	assert.Equal(t, defaultPaymentMethod, stored.PaymentMethod)
	assert.Equal(t, 50.00, stored.PaymentAmount)
	assert.Equal(t, []string{"TOR"}, []string(stored.Documents))
	assert.Nil(t, stored.ReferenceNumber)

	rows, err := store.ListSignatories(context.Background(), result.RequestID)
	require.NoError(t, err)
	offices := map[string]models.SignatoryStatus{}
	for _, row := range rows {
		offices[row.Office] = row.Status
	}
	assert.Equal(t, models.SignatoryApproved, offices[models.OfficeComputerLab])
	assert.Contains(t, offices, models.OfficeDeanCoEd)
	require.Len(t, directory.audits, 1)
	assert.Equal(t, models.AuditActionClearanceSubmit, directory.audits[0].Action)
}

func TestClearanceSubmitReferenceRules(t *testing.T) {
	store := newMemoryClearanceStore()
	existing := "1234567890123"
	store.requests["old"] = &models.ClearanceRequest{ID: "old", StudentID: "s1", ReferenceNumber: &existing}
	svc := NewClearanceService(store, newStudentDirectory(), ClearanceServiceOptions{})

	_, err := svc.Submit(context.Background(), ClearanceSubmission{StudentID: "s1", ReferenceNumber: "12AB"})
	require.Error(t, err)
	assert.Equal(t, "Reference number must be 7-16 digits only", appErrors.FromError(err).Message)

	_, err = svc.Submit(context.Background(), ClearanceSubmission{StudentID: "s1", ReferenceNumber: existing})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicate.Code, appErr.Code)
	assert.Equal(t, "Reference number '1234567890123' has already been used. Please use a different reference number.", appErr.Message)
}

func TestClearanceSubmitBlocksDuplicate(t *testing.T) {
	store := newMemoryClearanceStore()
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	dupStore := &stubDuplicateStore{candidates: []models.DuplicateCandidate{{
		ID: "r9", Status: models.ClearancePending, DocumentType: defaultDocumentType,
		Documents: []string{"TOR"}, Purposes: []string{"Employment"}, CreatedAt: created,
	}}}
	detector := NewDuplicateDetector(dupStore, 0, 0)
	svc := NewClearanceService(store, newStudentDirectory(), ClearanceServiceOptions{Duplicates: detector})

	_, err := svc.Submit(context.Background(), ClearanceSubmission{StudentID: "s1", Documents: []string{"TOR"}, Purposes: []string{"Employment"}})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicate.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "Request #r9")
	assert.Empty(t, store.requests)
}

func TestClearanceSubmitReviewsReceipt(t *testing.T) {
	store := newMemoryClearanceStore()
	model := &stubReceiptModel{text: goodReceiptJSON}
	svc := NewClearanceService(store, newStudentDirectory(), ClearanceServiceOptions{
		Guard:                 NewImageGuard(5*1024*1024, imaging.DefaultOptions),
		Receipts:              NewReceiptStore(nil, nil),
		Extractor:             NewReceiptExtractor(model, ReceiptExtractorOptions{}),
		RequireReferenceMatch: true,
	})

	upload := &ReceiptUpload{Filename: "r.png", ContentType: "image/png", Data: pngBytes(t, 40, 40)}
	result, err := svc.Submit(context.Background(), ClearanceSubmission{StudentID: "s1", ReferenceNumber: "1234567890123", Receipt: upload})
	require.NoError(t, err)
	assert.True(t, result.PaymentVerified)
	require.NotNil(t, result.PaymentCheck.ReferenceMatch)
	assert.True(t, result.PaymentCheck.ReferenceMatch.Match)

	stored := store.requests[result.RequestID]
	require.NotNil(t, stored.PaymentReceipt)
	assert.Nil(t, stored.ReceiptURL)
	require.NotNil(t, stored.PaymentDetails)
	var details PaymentCheck
	require.NoError(t, json.Unmarshal([]byte(*stored.PaymentDetails), &details))
	assert.True(t, details.Validation.Accepted)
}

func TestClearanceSubmitSurvivesModelFailure(t *testing.T) {
	store := newMemoryClearanceStore()
	model := &stubReceiptModel{text: "not json at all"}
	svc := NewClearanceService(store, newStudentDirectory(), ClearanceServiceOptions{
		Guard:     NewImageGuard(5*1024*1024, imaging.DefaultOptions),
		Extractor: NewReceiptExtractor(model, ReceiptExtractorOptions{}),
	})

	upload := &ReceiptUpload{Filename: "r.png", ContentType: "image/png", Data: pngBytes(t, 20, 20)}
	result, err := svc.Submit(context.Background(), ClearanceSubmission{StudentID: "s1", Receipt: upload})
	require.NoError(t, err)
	assert.False(t, result.PaymentVerified)
	assert.Contains(t, result.PaymentCheck.Error, "Invalid JSON from Gemini")
}

func TestClearanceSubmitRejectsBadReceipt(t *testing.T) {
	svc := NewClearanceService(newMemoryClearanceStore(), newStudentDirectory(), ClearanceServiceOptions{
		Guard: NewImageGuard(5*1024*1024, imaging.DefaultOptions),
	})

	upload := &ReceiptUpload{Filename: "r.gif", ContentType: "image/gif", Data: []byte("GIF89a")}
	_, err := svc.Submit(context.Background(), ClearanceSubmission{StudentID: "s1", Receipt: upload})
	require.Error(t, err)
	assert.Equal(t, "Invalid receipt image: Only JPEG and PNG images are allowed", appErrors.FromError(err).Message)
}

func TestClearanceSubmitInvalidAmount(t *testing.T) {
	svc := NewClearanceService(newMemoryClearanceStore(), newStudentDirectory(), ClearanceServiceOptions{})

	_, err := svc.Submit(context.Background(), ClearanceSubmission{StudentID: "s1", PaymentAmount: "fifty"})
	require.Error(t, err)
	assert.Equal(t, "Invalid payment amount", appErrors.FromError(err).Message)
}

func TestClearanceReferenceCheck(t *testing.T) {
	store := newMemoryClearanceStore()
	existing := "7654321"
	store.requests["old"] = &models.ClearanceRequest{ID: "old", ReferenceNumber: &existing}
	svc := NewClearanceService(store, newStudentDirectory(), ClearanceServiceOptions{})

	_, _, err := svc.ReferenceCheck(context.Background(), " ")
	require.Error(t, err)

	ok, msg, err := svc.ReferenceCheck(context.Background(), existing)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "Reference number '7654321' has already been used", msg)

	ok, msg, err = svc.ReferenceCheck(context.Background(), "1111111")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Reference number is available", msg)
}

func TestClearanceGetScopesStudents(t *testing.T) {
	store := newMemoryClearanceStore()
	store.addRequest("r1", "s1", models.OfficeLibrary)
	svc := NewClearanceService(store, newStudentDirectory(), ClearanceServiceOptions{})

	detail, err := svc.Get(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, "r1")
	require.NoError(t, err)
	assert.Len(t, detail.Signatories, 1)

	_, err = svc.Get(context.Background(), Actor{ID: "s2", Role: models.RoleStudent}, "r1")
	require.Error(t, err)
	assert.Equal(t, "Request not found", appErrors.FromError(err).Message)

	_, err = svc.Get(context.Background(), Actor{ID: "staff", Role: models.RoleStaff, Office: models.OfficeLibrary}, "r1")
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), adminActor(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
