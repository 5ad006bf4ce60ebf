package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clearance-api/internal/models"
)

const (
	// TransferReasonApproved is logged when every office approved the clearance.
	TransferReasonApproved = "All office clearances approved"
	// TransferReasonConverted is logged when the registrar converts a clearance by hand.
	TransferReasonConverted = "Converted by registrar"

	defaultTransferPurpose = "Clearance Processing"
)

// TransferRepository materializes document requests from approved clearances.
type TransferRepository struct {
	db *sqlx.DB
}

// NewTransferRepository constructs the repository.
func NewTransferRepository(db *sqlx.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// TransferParams controls one bridge run.
type TransferParams struct {
	ClearanceID string
	Reason      string
	// MarkConverted moves the clearance to Converted after the document request exists.
	MarkConverted bool
	// ReuseStatuses lets an existing document request in one of these statuses count as the transfer.
	// Empty means any existing document request counts.
	ReuseStatuses []models.DocumentStatus
}

// Transfer creates the document request for a clearance exactly once and appends an
// auto transfer log row. An existing document request makes it a no-op.
func (r *TransferRepository) Transfer(ctx context.Context, params TransferParams) (*models.TransferOutcome, error) {
	outcome, err := r.transfer(ctx, params)
	if err != nil && uniqueViolation(err, documentClearanceIndex) {
		// Lost the race to a concurrent bridge; the winner's row is authoritative.
		return r.existingOutcome(ctx, params.ClearanceID)
	}
	return outcome, err
}

func (r *TransferRepository) transfer(ctx context.Context, params TransferParams) (outcome *models.TransferOutcome, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transfer transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var clearance models.ClearanceRequest
	lockQuery := `SELECT ` + clearanceColumns + ` FROM clearance_requests WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &clearance, lockQuery, params.ClearanceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock clearance request: %w", err)
	}

	outcome = &models.TransferOutcome{ClearanceRequestID: clearance.ID}

	var existing struct {
		ID     string                `db:"id"`
		Status models.DocumentStatus `db:"status"`
	}
	const existingQuery = `SELECT id, status FROM document_requests WHERE student_id = $1 AND clearance_request_id = $2 ORDER BY created_at DESC LIMIT 1`
	err = tx.GetContext(ctx, &existing, existingQuery, clearance.StudentID, clearance.ID)
	switch {
	case err == nil && (len(params.ReuseStatuses) == 0 || statusAllowed(existing.Status, params.ReuseStatuses)):
		outcome.DocumentRequestID = existing.ID
	case err == nil || errors.Is(err, sql.ErrNoRows):
		err = nil
		now := time.Now().UTC()
		doc := models.DocumentRequest{
			ID:                 uuid.NewString(),
			StudentID:          clearance.StudentID,
			DocumentType:       FlattenList(clearance.Documents, GenericClearanceDocuments),
			Purpose:            FlattenList(clearance.Purposes, defaultTransferPurpose),
			Status:             models.DocumentPending,
			ClearanceRequestID: &clearance.ID,
			ReferenceNumber:    clearance.ReferenceNumber,
			PickupDate:         clearance.PickupDate,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if existing.ID != "" {
			// Superseded row blocks the unique index; detach it before inserting the new one.
			if _, err = tx.ExecContext(ctx, `UPDATE document_requests SET clearance_request_id = NULL, updated_at = $2 WHERE id = $1`, existing.ID, now); err != nil {
				return nil, fmt.Errorf("detach superseded document request: %w", err)
			}
		}
		const insertDoc = `INSERT INTO document_requests (` + documentColumns + `)
VALUES (:id, :student_id, :document_type, :purpose, :status, :clearance_request_id, :reference_number, :pickup_date, :rejection_reason, :completed_at, :created_at, :updated_at)`
		if _, err = tx.NamedExecContext(ctx, insertDoc, &doc); err != nil {
			return nil, fmt.Errorf("insert transferred document request: %w", err)
		}
		const insertLog = `INSERT INTO auto_transfer_logs (id, clearance_request_id, document_request_id, student_id, transferred_at, reason) VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err = tx.ExecContext(ctx, insertLog, uuid.NewString(), clearance.ID, doc.ID, clearance.StudentID, now, params.Reason); err != nil {
			return nil, fmt.Errorf("insert auto transfer log: %w", err)
		}
		outcome.DocumentRequestID = doc.ID
		outcome.Created = true
	default:
		return nil, fmt.Errorf("find existing document request: %w", err)
	}

	if params.MarkConverted && clearance.Status != models.ClearanceConverted {
		if _, err = tx.ExecContext(ctx, `UPDATE clearance_requests SET status = 'Converted', updated_at = $2 WHERE id = $1`, clearance.ID, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("mark clearance converted: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transfer: %w", err)
	}
	return outcome, nil
}

func (r *TransferRepository) existingOutcome(ctx context.Context, clearanceID string) (*models.TransferOutcome, error) {
	var id string
	const query = `SELECT id FROM document_requests WHERE clearance_request_id = $1 ORDER BY created_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &id, query, clearanceID); err != nil {
		return nil, fmt.Errorf("find concurrent transfer: %w", err)
	}
	return &models.TransferOutcome{ClearanceRequestID: clearanceID, DocumentRequestID: id}, nil
}

// ListRecent returns transfers logged after since, newest first.
func (r *TransferRepository) ListRecent(ctx context.Context, since time.Time, limit int) ([]models.AutoTransferLog, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT id, clearance_request_id, document_request_id, student_id, transferred_at, reason FROM auto_transfer_logs WHERE transferred_at >= $1 ORDER BY transferred_at DESC LIMIT $2`
	var rows []models.AutoTransferLog
	if err := r.db.SelectContext(ctx, &rows, query, since, limit); err != nil {
		return nil, fmt.Errorf("list recent transfers: %w", err)
	}
	return rows, nil
}

// FlattenList joins non-empty entries for display, returning fallback when nothing remains.
func FlattenList(items []string, fallback string) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, ", ")
}
