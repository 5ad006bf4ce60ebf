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
	"github.com/lib/pq"

	"github.com/noah-isme/clearance-api/internal/models"
)

const clearanceColumns = `id, student_id, status, fulfillment_status, registrar_status, document_type, documents, purposes, reason, payment_method, payment_amount, payment_receipt, receipt_url, receipt_key, reference_number, payment_verified, payment_details, pickup_date, created_at, updated_at`

const signatoryColumns = `id, request_id, office, status, signed_by, signed_at, rejection_reason, created_at`

// ClearanceRepository manages clearance requests and their signatory rows.
type ClearanceRepository struct {
	db *sqlx.DB
}

// NewClearanceRepository constructs the repository.
func NewClearanceRepository(db *sqlx.DB) *ClearanceRepository {
	return &ClearanceRepository{db: db}
}

// ReferenceExists reports whether any request already carries the reference number.
func (r *ClearanceRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM clearance_requests WHERE reference_number = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, reference); err != nil {
		return false, fmt.Errorf("check reference number: %w", err)
	}
	return exists, nil
}

// RecentActive returns the student's newest Pending or Approved requests of a document type created after since.
func (r *ClearanceRepository) RecentActive(ctx context.Context, studentID, documentType string, since time.Time, limit int) ([]models.DuplicateCandidate, error) {
	if limit <= 0 {
		limit = 5
	}
	const query = `SELECT id, status, document_type, documents, purposes, created_at FROM clearance_requests
WHERE student_id = $1 AND document_type = $2 AND status IN ('Pending', 'Approved') AND created_at >= $3
ORDER BY created_at DESC LIMIT $4`
	var rows []models.DuplicateCandidate
	if err := r.db.SelectContext(ctx, &rows, query, studentID, documentType, since, limit); err != nil {
		return nil, fmt.Errorf("list recent clearance requests: %w", err)
	}
	return rows, nil
}

// Create inserts the request and its signatory rows in one transaction.
// A concurrent insert with the same reference number yields ErrReferenceTaken.
func (r *ClearanceRepository) Create(ctx context.Context, req *models.ClearanceRequest, signatories []models.Signatory) (err error) {
	now := time.Now().UTC()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.CreatedAt = now
	req.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clearance transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertRequest = `INSERT INTO clearance_requests (` + clearanceColumns + `)
VALUES (:id, :student_id, :status, :fulfillment_status, :registrar_status, :document_type, :documents, :purposes, :reason, :payment_method, :payment_amount, :payment_receipt, :receipt_url, :receipt_key, :reference_number, :payment_verified, :payment_details, :pickup_date, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertRequest, req); err != nil {
		if uniqueViolation(err, referenceConstraint) {
			return ErrReferenceTaken
		}
		return fmt.Errorf("insert clearance request: %w", err)
	}

	const insertSignatory = `INSERT INTO clearance_signatories (` + signatoryColumns + `)
VALUES (:id, :request_id, :office, :status, :signed_by, :signed_at, :rejection_reason, :created_at)`
	for i := range signatories {
		sig := &signatories[i]
		if sig.ID == "" {
			sig.ID = uuid.NewString()
		}
		sig.RequestID = req.ID
		sig.CreatedAt = now
		if _, err = tx.NamedExecContext(ctx, insertSignatory, sig); err != nil {
			return fmt.Errorf("insert signatory %s: %w", sig.Office, err)
		}
	}

	if err = tx.Commit(); err != nil {
		if uniqueViolation(err, referenceConstraint) {
			return ErrReferenceTaken
		}
		return fmt.Errorf("commit clearance request: %w", err)
	}
	return nil
}

// FindByID returns a clearance request.
func (r *ClearanceRepository) FindByID(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	query := `SELECT ` + clearanceColumns + ` FROM clearance_requests WHERE id = $1`
	var req models.ClearanceRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find clearance request: %w", err)
	}
	return &req, nil
}

// ListSignatories returns the signatory rows of a request in creation order.
func (r *ClearanceRepository) ListSignatories(ctx context.Context, requestID string) ([]models.Signatory, error) {
	query := `SELECT ` + signatoryColumns + ` FROM clearance_signatories WHERE request_id = $1 ORDER BY created_at, office`
	var rows []models.Signatory
	if err := r.db.SelectContext(ctx, &rows, query, requestID); err != nil {
		return nil, fmt.Errorf("list signatories: %w", err)
	}
	return rows, nil
}

// FindSignatory returns a single signatory row.
func (r *ClearanceRepository) FindSignatory(ctx context.Context, id string) (*models.Signatory, error) {
	query := `SELECT ` + signatoryColumns + ` FROM clearance_signatories WHERE id = $1`
	var sig models.Signatory
	if err := r.db.GetContext(ctx, &sig, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find signatory: %w", err)
	}
	return &sig, nil
}

// FindLatestSignatory returns the newest row for an office on a request.
func (r *ClearanceRepository) FindLatestSignatory(ctx context.Context, requestID, office string) (*models.Signatory, error) {
	query := `SELECT ` + signatoryColumns + ` FROM clearance_signatories WHERE request_id = $1 AND office = $2 ORDER BY created_at DESC LIMIT 1`
	var sig models.Signatory
	if err := r.db.GetContext(ctx, &sig, query, requestID, office); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find latest signatory: %w", err)
	}
	return &sig, nil
}

// CountSignatories tallies a request's signatory rows by status.
func (r *ClearanceRepository) CountSignatories(ctx context.Context, requestID string) (models.SignatoryCounts, error) {
	const query = `SELECT COUNT(*) AS total,
COALESCE(SUM(CASE WHEN status = 'Approved' THEN 1 ELSE 0 END), 0) AS approved,
COALESCE(SUM(CASE WHEN status = 'Rejected' THEN 1 ELSE 0 END), 0) AS rejected,
COALESCE(SUM(CASE WHEN status = 'Pending' THEN 1 ELSE 0 END), 0) AS pending
FROM clearance_signatories WHERE request_id = $1`
	var counts models.SignatoryCounts
	if err := r.db.GetContext(ctx, &counts, query, requestID); err != nil {
		return counts, fmt.Errorf("count signatories: %w", err)
	}
	return counts, nil
}

// Decide writes one signatory decision and recomputes the request status in the same transaction.
// The request row is locked so concurrent decisions on sibling offices serialize.
func (r *ClearanceRepository) Decide(ctx context.Context, decision models.SignatoryDecision) (outcome *models.AggregateOutcome, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin signatory transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var sig struct {
		RequestID string `db:"request_id"`
		Office    string `db:"office"`
	}
	if err = tx.GetContext(ctx, &sig, `SELECT request_id, office FROM clearance_signatories WHERE id = $1`, decision.SignatoryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find signatory: %w", err)
	}

	var current struct {
		StudentID string                 `db:"student_id"`
		Status    models.ClearanceStatus `db:"status"`
	}
	if err = tx.GetContext(ctx, &current, `SELECT student_id, status FROM clearance_requests WHERE id = $1 FOR UPDATE`, sig.RequestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock clearance request: %w", err)
	}
	if current.Status == models.ClearanceConverted {
		return nil, ErrRequestConverted
	}

	var signedBy, reason interface{}
	var signedAt interface{}
	if decision.Status != models.SignatoryPending {
		signedBy = decision.SignedBy
		signedAt = decision.SignedAt
		if decision.Status == models.SignatoryRejected {
			reason = decision.Reason
		}
	}
	const updateSignatory = `UPDATE clearance_signatories SET status = $2, signed_by = $3, signed_at = $4, rejection_reason = $5 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, updateSignatory, decision.SignatoryID, decision.Status, signedBy, signedAt, reason); err != nil {
		return nil, fmt.Errorf("update signatory: %w", err)
	}

	var statuses []models.SignatoryStatus
	if err = tx.SelectContext(ctx, &statuses, `SELECT status FROM clearance_signatories WHERE request_id = $1`, sig.RequestID); err != nil {
		return nil, fmt.Errorf("load signatory statuses: %w", err)
	}
	next := models.DeriveClearanceStatus(statuses)

	now := time.Now().UTC()
	switch {
	case next == models.ClearanceRejected:
		const q = `UPDATE clearance_requests SET status = 'Rejected', fulfillment_status = 'Rejected', registrar_status = 'Pending', updated_at = $2 WHERE id = $1`
		_, err = tx.ExecContext(ctx, q, sig.RequestID, now)
	case next == models.ClearanceApproved && current.Status != models.ClearanceApproved:
		const q = `UPDATE clearance_requests SET status = 'Approved', fulfillment_status = 'Pending', registrar_status = 'Pending', updated_at = $2 WHERE id = $1`
		_, err = tx.ExecContext(ctx, q, sig.RequestID, now)
	case next == models.ClearancePending && current.Status != models.ClearancePending:
		const q = `UPDATE clearance_requests SET status = 'Pending', fulfillment_status = 'Pending', registrar_status = 'Pending', updated_at = $2 WHERE id = $1`
		_, err = tx.ExecContext(ctx, q, sig.RequestID, now)
	default:
		const q = `UPDATE clearance_requests SET updated_at = $2 WHERE id = $1`
		_, err = tx.ExecContext(ctx, q, sig.RequestID, now)
	}
	if err != nil {
		return nil, fmt.Errorf("update clearance aggregate: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit signatory decision: %w", err)
	}
	return &models.AggregateOutcome{
		RequestID:       sig.RequestID,
		StudentID:       current.StudentID,
		Office:          sig.Office,
		PreviousStatus:  current.Status,
		Status:          next,
		BecameApproved:  next == models.ClearanceApproved && current.Status != models.ClearanceApproved,
		SignatoryStatus: decision.Status,
	}, nil
}

// UpdateState applies a registrar write guarded only by existence of the request.
func (r *ClearanceRepository) UpdateState(ctx context.Context, id string, update models.ClearanceStateUpdate) error {
	var sets []string
	var args []interface{}
	if update.Status != nil {
		args = append(args, *update.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if update.Fulfillment != nil {
		args = append(args, *update.Fulfillment)
		sets = append(sets, fmt.Sprintf("fulfillment_status = $%d", len(args)))
	}
	if update.Registrar != nil {
		args = append(args, *update.Registrar)
		sets = append(sets, fmt.Sprintf("registrar_status = $%d", len(args)))
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf("UPDATE clearance_requests SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update clearance state: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetPickupDate stores the pickup date on the request and every document request linked to it.
func (r *ClearanceRepository) SetPickupDate(ctx context.Context, id string, date time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pickup date transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE clearance_requests SET pickup_date = $2, updated_at = $3 WHERE id = $1`, id, date, now)
	if err != nil {
		return fmt.Errorf("update clearance pickup date: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	if _, err = tx.ExecContext(ctx, `UPDATE document_requests SET pickup_date = $2, updated_at = $3 WHERE clearance_request_id = $1`, id, date, now); err != nil {
		return fmt.Errorf("update document pickup date: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit pickup date: %w", err)
	}
	return nil
}

// ListApprovedWithoutTransfer finds approved requests awaiting fulfillment that have no document request.
func (r *ClearanceRepository) ListApprovedWithoutTransfer(ctx context.Context) ([]models.ClearanceRequest, error) {
	query := `SELECT ` + prefixColumns("cr", clearanceColumns) + ` FROM clearance_requests cr
WHERE cr.status = 'Approved' AND cr.fulfillment_status = 'Pending'
AND NOT EXISTS (SELECT 1 FROM document_requests dr WHERE dr.clearance_request_id = cr.id)
ORDER BY cr.created_at ASC`
	var rows []models.ClearanceRequest
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list untransferred clearances: %w", err)
	}
	return rows, nil
}

// BackfillSignatory adds a Pending row for office to every open or rejected
// request that lacks one. Approved requests gaining a Pending row drop back to
// Pending in the same transaction; converted requests are left alone.
func (r *ClearanceRepository) BackfillSignatory(ctx context.Context, office string) (added int64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin backfill transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `INSERT INTO clearance_signatories (id, request_id, office, status, created_at)
SELECT gen_random_uuid()::text, cr.id, $1, 'Pending', NOW() FROM clearance_requests cr
WHERE cr.status IN ('Pending', 'Approved', 'Rejected')
  AND NOT EXISTS (SELECT 1 FROM clearance_signatories s WHERE s.request_id = cr.id AND s.office = $1)
RETURNING request_id`
	var requestIDs []string
	if err = tx.SelectContext(ctx, &requestIDs, insert, office); err != nil {
		return 0, fmt.Errorf("backfill %s signatories: %w", office, err)
	}

	if len(requestIDs) > 0 {
		const demote = `UPDATE clearance_requests SET status = 'Pending', updated_at = $2 WHERE id = ANY($1) AND status = 'Approved'`
		if _, err = tx.ExecContext(ctx, demote, pq.Array(requestIDs), time.Now().UTC()); err != nil {
			return 0, fmt.Errorf("rederive backfilled requests: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit backfill: %w", err)
	}
	return int64(len(requestIDs)), nil
}

// SyncFulfillmentFromDocuments copies advanced document statuses onto their clearance requests.
func (r *ClearanceRepository) SyncFulfillmentFromDocuments(ctx context.Context) (int64, error) {
	const query = `UPDATE clearance_requests cr
SET fulfillment_status = dr.status,
    registrar_status = CASE WHEN dr.status = 'Processing' THEN 'Processing' ELSE 'Complete' END,
    updated_at = NOW()
FROM document_requests dr
WHERE dr.clearance_request_id = cr.id
  AND dr.status IN ('Processing', 'Completed', 'Released', 'Unclaimed')
  AND cr.fulfillment_status <> dr.status`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("sync fulfillment status: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
