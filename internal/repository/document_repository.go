package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clearance-api/internal/models"
)

const documentColumns = `id, student_id, document_type, purpose, status, clearance_request_id, reference_number, pickup_date, rejection_reason, completed_at, created_at, updated_at`

const documentFileColumns = `id, document_request_id, original_name, storage_path, mime_type, file_size, uploaded_at`

// GenericClearanceDocuments is the placeholder document type written by older transfers.
const GenericClearanceDocuments = "Clearance Documents"

// DocumentRepository manages document requests and their files.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document request.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.DocumentRequest) error {
	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = models.DocumentPending
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	const query = `INSERT INTO document_requests (` + documentColumns + `)
VALUES (:id, :student_id, :document_type, :purpose, :status, :clearance_request_id, :reference_number, :pickup_date, :rejection_reason, :completed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("insert document request: %w", err)
	}
	return nil
}

// FindByID returns a document request.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*models.DocumentRequest, error) {
	query := `SELECT ` + documentColumns + ` FROM document_requests WHERE id = $1`
	var doc models.DocumentRequest
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find document request: %w", err)
	}
	return &doc, nil
}

// FindByClearance returns the document request materialized from a clearance, if any.
func (r *DocumentRepository) FindByClearance(ctx context.Context, studentID, clearanceID string) (*models.DocumentRequest, error) {
	query := `SELECT ` + documentColumns + ` FROM document_requests WHERE student_id = $1 AND clearance_request_id = $2 ORDER BY created_at DESC LIMIT 1`
	var doc models.DocumentRequest
	if err := r.db.GetContext(ctx, &doc, query, studentID, clearanceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find document by clearance: %w", err)
	}
	return &doc, nil
}

// ListFiles returns the files attached to a document request.
func (r *DocumentRepository) ListFiles(ctx context.Context, documentID string) ([]models.DocumentFile, error) {
	query := `SELECT ` + documentFileColumns + ` FROM document_files WHERE document_request_id = $1 ORDER BY uploaded_at`
	var files []models.DocumentFile
	if err := r.db.SelectContext(ctx, &files, query, documentID); err != nil {
		return nil, fmt.Errorf("list document files: %w", err)
	}
	return files, nil
}

// FindFile returns a single document file.
func (r *DocumentRepository) FindFile(ctx context.Context, id string) (*models.DocumentFile, error) {
	query := `SELECT ` + documentFileColumns + ` FROM document_files WHERE id = $1`
	var file models.DocumentFile
	if err := r.db.GetContext(ctx, &file, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find document file: %w", err)
	}
	return &file, nil
}

// Transition applies a guarded status change, records new files and mirrors the
// fulfillment status onto the linked clearance request, all in one transaction.
func (r *DocumentRepository) Transition(ctx context.Context, t models.DocumentTransition) (doc *models.DocumentRequest, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin document transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.DocumentRequest
	lockQuery := `SELECT ` + documentColumns + ` FROM document_requests WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, t.DocumentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock document request: %w", err)
	}
	if !statusAllowed(current.Status, t.From) {
		return &current, ErrInvalidTransition
	}

	now := time.Now().UTC()
	const insertFile = `INSERT INTO document_files (` + documentFileColumns + `)
VALUES (:id, :document_request_id, :original_name, :storage_path, :mime_type, :file_size, :uploaded_at)`
	for i := range t.Files {
		f := &t.Files[i]
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.DocumentRequestID = t.DocumentID
		if f.UploadedAt.IsZero() {
			f.UploadedAt = now
		}
		if _, err = tx.NamedExecContext(ctx, insertFile, f); err != nil {
			return nil, fmt.Errorf("insert document file: %w", err)
		}
	}

	if t.RequireFiles {
		var count int
		if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM document_files WHERE document_request_id = $1`, t.DocumentID); err != nil {
			return nil, fmt.Errorf("count document files: %w", err)
		}
		if count == 0 {
			return &current, ErrNoFiles
		}
	}

	current.Status = t.To
	current.UpdatedAt = now
	if t.StampCompleted {
		current.CompletedAt = &now
	}
	if t.RejectionReason != nil {
		current.RejectionReason = t.RejectionReason
	}
	if t.ClearPickup {
		current.PickupDate = nil
	}
	const updateDoc = `UPDATE document_requests SET status = :status, completed_at = :completed_at, rejection_reason = :rejection_reason, pickup_date = :pickup_date, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, updateDoc, &current); err != nil {
		return nil, fmt.Errorf("update document request: %w", err)
	}

	if current.ClearanceRequestID != nil && t.Fulfillment != "" {
		const mirror = `UPDATE clearance_requests SET fulfillment_status = $2, registrar_status = $3, updated_at = $4 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, mirror, *current.ClearanceRequestID, t.Fulfillment, t.Registrar, now); err != nil {
			return nil, fmt.Errorf("mirror clearance status: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit document transition: %w", err)
	}
	return &current, nil
}

// RewriteGenericDocuments replaces placeholder document types with the clearance's real lists.
func (r *DocumentRepository) RewriteGenericDocuments(ctx context.Context) (int64, error) {
	const query = `UPDATE document_requests dr
SET document_type = array_to_string(cr.documents, ', '),
    purpose = CASE WHEN cardinality(cr.purposes) > 0 THEN array_to_string(cr.purposes, ', ') ELSE dr.purpose END,
    updated_at = NOW()
FROM clearance_requests cr
WHERE dr.clearance_request_id = cr.id
  AND dr.document_type = $1
  AND cardinality(cr.documents) > 0`
	res, err := r.db.ExecContext(ctx, query, GenericClearanceDocuments)
	if err != nil {
		return 0, fmt.Errorf("rewrite generic document requests: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

func statusAllowed(status models.DocumentStatus, allowed []models.DocumentStatus) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}
