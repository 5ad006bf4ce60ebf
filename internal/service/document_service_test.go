package service

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/export"
	"github.com/noah-isme/clearance-api/pkg/storage"
)

// memoryDocumentStore applies transitions the way the repository does, mirror included.
type memoryDocumentStore struct {
	docs       map[string]*models.DocumentRequest
	files      map[string][]models.DocumentFile
	clearances map[string]*models.ClearanceRequest
}

func newMemoryDocumentStore() *memoryDocumentStore {
	return &memoryDocumentStore{
		docs:       map[string]*models.DocumentRequest{},
		files:      map[string][]models.DocumentFile{},
		clearances: map[string]*models.ClearanceRequest{},
	}
}

func (m *memoryDocumentStore) Create(ctx context.Context, doc *models.DocumentRequest) error {
	if doc.ID == "" {
		doc.ID = "doc-" + doc.StudentID
	}
	copied := *doc
	m.docs[doc.ID] = &copied
	return nil
}

func (m *memoryDocumentStore) FindByID(ctx context.Context, id string) (*models.DocumentRequest, error) {
	doc, ok := m.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *doc
	return &copied, nil
}

func (m *memoryDocumentStore) ListFiles(ctx context.Context, documentID string) ([]models.DocumentFile, error) {
	return append([]models.DocumentFile(nil), m.files[documentID]...), nil
}

func (m *memoryDocumentStore) FindFile(ctx context.Context, id string) (*models.DocumentFile, error) {
	for _, files := range m.files {
		for _, f := range files {
			if f.ID == id {
				copied := f
				return &copied, nil
			}
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryDocumentStore) Transition(ctx context.Context, t models.DocumentTransition) (*models.DocumentRequest, error) {
	doc, ok := m.docs[t.DocumentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	allowed := false
	for _, s := range t.From {
		allowed = allowed || s == doc.Status
	}
	if !allowed {
		copied := *doc
		return &copied, repository.ErrInvalidTransition
	}
	if t.RequireFiles && len(m.files[doc.ID])+len(t.Files) == 0 {
		copied := *doc
		return &copied, repository.ErrNoFiles
	}
	for _, f := range t.Files {
		f.DocumentRequestID = doc.ID
		m.files[doc.ID] = append(m.files[doc.ID], f)
	}
	doc.Status = t.To
	if t.StampCompleted {
		now := time.Now()
		doc.CompletedAt = &now
	}
	if t.RejectionReason != nil {
		doc.RejectionReason = t.RejectionReason
	}
	if doc.ClearanceRequestID != nil && t.Fulfillment != "" {
		if req := m.clearances[*doc.ClearanceRequestID]; req != nil {
			req.FulfillmentStatus, req.RegistrarStatus = t.Fulfillment, t.Registrar
		}
	}
	copied := *doc
	return &copied, nil
}

type stubSignatoryCounts map[string]models.SignatoryCounts

func (s stubSignatoryCounts) CountSignatories(ctx context.Context, requestID string) (models.SignatoryCounts, error) {
	return s[requestID], nil
}

type documentFixture struct {
	store    *memoryDocumentStore
	files    *storage.LocalStorage
	notifier *recordingNotifier
	svc      *DocumentService
}

func newDocumentFixture(t *testing.T, counts stubSignatoryCounts) documentFixture {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := newMemoryDocumentStore()
	notifier := &recordingNotifier{}
	directory := &stubStudentDirectory{students: map[string]models.Student{"s1": {ID: "s1", FirstName: "Ana", LastName: "Reyes", StudentNo: "2021-0001"}}}
	svc := NewDocumentService(store, counts, directory, files, storage.NewSignedURLSigner("secret", time.Hour),
		export.NewClaimSlipRenderer(""), notifier, DocumentServiceOptions{MaxFileSize: 1024})
	return documentFixture{store: store, files: files, notifier: notifier, svc: svc}
}

func linkedDocument(f documentFixture, id, clearanceID string, status models.DocumentStatus) {
	f.store.clearances[clearanceID] = &models.ClearanceRequest{ID: clearanceID, StudentID: "s1", Status: models.ClearanceApproved}
	cid := clearanceID
	f.store.docs[id] = &models.DocumentRequest{ID: id, StudentID: "s1", DocumentType: "TOR", Status: status, ClearanceRequestID: &cid}
}

func TestDocumentCreateRequiresType(t *testing.T) {
	f := newDocumentFixture(t, nil)

	_, err := f.svc.Create(context.Background(), "s1", DocumentInput{DocumentType: "  "})
	require.Error(t, err)
	assert.Equal(t, "Document type is required", appErrors.FromError(err).Message)

	_, err = f.svc.Create(context.Background(), "s1", DocumentInput{DocumentType: "TOR", Purpose: strings.Repeat("p", 501)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.store.docs)

	doc, err := f.svc.Create(context.Background(), "s1", DocumentInput{DocumentType: "Good Moral", Purpose: "Scholarship"})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentPending, doc.Status)
	assert.Nil(t, doc.ClearanceRequestID)
}

func TestDocumentProcessingGate(t *testing.T) {
	cases := []struct {
		name    string
		counts  models.SignatoryCounts
		gate    models.ClearanceGate
		message string
	}{
		{"rejected", models.SignatoryCounts{Total: 3, Approved: 1, Rejected: 1, Pending: 1}, models.GateRejected, "Cannot process: some clearances have been rejected."},
		{"pending", models.SignatoryCounts{Total: 3, Approved: 2, Pending: 1}, models.GatePending, "Cannot process yet: some clearances are still pending."},
		{"incomplete", models.SignatoryCounts{Total: 3, Approved: 2}, models.GateIncomplete, "Cannot process: not all clearances are approved."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newDocumentFixture(t, stubSignatoryCounts{"c1": tc.counts})
			linkedDocument(f, "d1", "c1", models.DocumentPending)

			_, err := f.svc.MarkProcessing(context.Background(), "d1")
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, tc.message, appErr.Message)
			assert.Equal(t, string(tc.gate), appErr.Details["clearance_status"])
			assert.Equal(t, models.DocumentPending, f.store.docs["d1"].Status)
		})
	}
}

func TestDocumentProcessingMirrors(t *testing.T) {
	f := newDocumentFixture(t, stubSignatoryCounts{"c1": {Total: 2, Approved: 2}})
	linkedDocument(f, "d1", "c1", models.DocumentPending)

	res, err := f.svc.MarkProcessing(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, models.GateApproved, res.ClearanceStatus)
	assert.Equal(t, "All clearances approved, document is now in processing.", res.Message)
	assert.Equal(t, models.FulfillmentProcessing, f.store.clearances["c1"].FulfillmentStatus)
	require.Len(t, f.notifier.items, 1)
	assert.Equal(t, PhaseProcessing, f.notifier.items[0].Phase)

	_, err = f.svc.MarkProcessing(context.Background(), "d1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestDocumentProcessingStandalone(t *testing.T) {
	f := newDocumentFixture(t, nil)
	f.store.docs["d1"] = &models.DocumentRequest{ID: "d1", StudentID: "s1", Status: models.DocumentPending}

	res, err := f.svc.MarkProcessing(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "Document moved to processing.", res.Message)
}

func TestDocumentCompleteStoresFiles(t *testing.T) {
	f := newDocumentFixture(t, nil)
	linkedDocument(f, "d1", "c1", models.DocumentProcessing)

	res, err := f.svc.Complete(context.Background(), "d1", []DocumentUpload{
		{Filename: "../tor.pdf", ContentType: "application/pdf", Size: 5, Reader: strings.NewReader("%PDF-")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentCompleted, res.Document.Status)
	assert.NotNil(t, res.Document.CompletedAt)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "tor.pdf", res.Files[0].OriginalName)
	assert.True(t, strings.HasPrefix(res.Files[0].StoragePath, "d1/"))
	assert.True(t, strings.HasSuffix(res.Files[0].StoragePath, "_tor.pdf"))
	assert.Contains(t, res.Files[0].DownloadURL, "/api/v1/documents/files/"+res.Files[0].ID+"/download?token=")
	assert.Equal(t, models.FulfillmentCompleted, f.store.clearances["c1"].FulfillmentStatus)
	assert.Equal(t, models.RegistrarComplete, f.store.clearances["c1"].RegistrarStatus)

	token := res.Files[0].DownloadURL[strings.Index(res.Files[0].DownloadURL, "token=")+len("token="):]
	meta, handle, err := f.svc.OpenFile(context.Background(), res.Files[0].ID, token)
	require.NoError(t, err)
	defer handle.Close() //nolint:errcheck
	body, err := io.ReadAll(handle)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(body))
	assert.Equal(t, "tor.pdf", meta.OriginalName)

	_, _, err = f.svc.OpenFile(context.Background(), "other", token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestDocumentCompleteWithoutFiles(t *testing.T) {
	f := newDocumentFixture(t, nil)
	linkedDocument(f, "d1", "c1", models.DocumentProcessing)

	_, err := f.svc.Complete(context.Background(), "d1", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.DocumentProcessing, f.store.docs["d1"].Status)
}

func TestDocumentCompleteKeepsSameNamedUploadsApart(t *testing.T) {
	f := newDocumentFixture(t, nil)
	linkedDocument(f, "d1", "c1", models.DocumentProcessing)

	res, err := f.svc.Complete(context.Background(), "d1", []DocumentUpload{
		{Filename: "tor.pdf", Size: 5, Reader: strings.NewReader("page1")},
		{Filename: "tor.pdf", Size: 5, Reader: strings.NewReader("page2")},
	})
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.NotEqual(t, res.Files[0].StoragePath, res.Files[1].StoragePath)

	for i, want := range []string{"page1", "page2"} {
		handle, err := f.files.Open(res.Files[i].StoragePath)
		require.NoError(t, err)
		body, err := io.ReadAll(handle)
		require.NoError(t, handle.Close())
		require.NoError(t, err)
		assert.Equal(t, want, string(body))
	}
}

func TestDocumentCompleteRejectsWrongStatusBeforeSaving(t *testing.T) {
	f := newDocumentFixture(t, nil)
	linkedDocument(f, "d1", "c1", models.DocumentPending)

	_, err := f.svc.Complete(context.Background(), "d1", []DocumentUpload{{Filename: "a.pdf", Size: 1, Reader: strings.NewReader("a")}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	_, statErr := os.Stat(f.files.Path("d1"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDocumentCompleteRejectsLargeFile(t *testing.T) {
	f := newDocumentFixture(t, nil)
	linkedDocument(f, "d1", "c1", models.DocumentProcessing)

	_, err := f.svc.Complete(context.Background(), "d1", []DocumentUpload{{Filename: "big.pdf", Size: 4096, Reader: bytes.NewReader(make([]byte, 4096))}})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "big.pdf exceeds")
}

func TestDocumentReleaseAndRollback(t *testing.T) {
	f := newDocumentFixture(t, nil)
	linkedDocument(f, "d1", "c1", models.DocumentCompleted)

	_, err := f.svc.MarkReleased(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, models.FulfillmentReleased, f.store.clearances["c1"].FulfillmentStatus)

	_, err = f.svc.MarkUnclaimed(context.Background(), "d1")
	require.Error(t, err)

	res, err := f.svc.MoveToPending(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentPending, res.Document.Status)
	assert.Equal(t, models.FulfillmentPending, f.store.clearances["c1"].FulfillmentStatus)
}

func TestDocumentRejectKeepsClearance(t *testing.T) {
	f := newDocumentFixture(t, nil)
	linkedDocument(f, "d1", "c1", models.DocumentPending)
	f.store.clearances["c1"].FulfillmentStatus = models.FulfillmentPending

	_, err := f.svc.Reject(context.Background(), "d1", "")
	require.Error(t, err)

	res, err := f.svc.Reject(context.Background(), "d1", "Wrong document type")
	require.NoError(t, err)
	assert.Equal(t, "Wrong document type", *res.Document.RejectionReason)
	assert.Equal(t, models.FulfillmentPending, f.store.clearances["c1"].FulfillmentStatus)
	require.Len(t, f.notifier.items, 1)
	assert.Equal(t, PhaseRejected, f.notifier.items[0].Phase)
}

func TestDocumentClaimSlip(t *testing.T) {
	f := newDocumentFixture(t, nil)
	linkedDocument(f, "d1", "c1", models.DocumentProcessing)

	_, _, err := f.svc.ClaimSlip(context.Background(), adminActor(), "d1")
	require.Error(t, err)

	f.store.docs["d1"].Status = models.DocumentCompleted
	pdf, name, err := f.svc.ClaimSlip(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, "d1")
	require.NoError(t, err)
	assert.Equal(t, "claim-slip-d1.pdf", name)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	_, _, err = f.svc.ClaimSlip(context.Background(), Actor{ID: "s9", Role: models.RoleStudent}, "d1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDocumentGetSignsFiles(t *testing.T) {
	f := newDocumentFixture(t, nil)
	linkedDocument(f, "d1", "c1", models.DocumentCompleted)
	f.store.files["d1"] = []models.DocumentFile{{ID: "f1", DocumentRequestID: "d1", OriginalName: "tor.pdf", StoragePath: "d1/x_tor.pdf"}}

	detail, err := f.svc.Get(context.Background(), Actor{ID: "s1", Role: models.RoleStudent}, "d1")
	require.NoError(t, err)
	require.Len(t, detail.Files, 1)
	assert.Contains(t, detail.Files[0].DownloadURL, "/f1/download?token=")
}
