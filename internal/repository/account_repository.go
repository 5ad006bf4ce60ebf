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

const studentColumns = `id, student_no, first_name, last_name, course_code, email, password_hash, otp_verified, signature, created_at, updated_at`

// AccountRepository provides database access for student and staff accounts.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new instance of AccountRepository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindStudentByID returns a student by identifier.
func (r *AccountRepository) FindStudentByID(ctx context.Context, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1 LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student by id: %w", err)
	}
	return &student, nil
}

// FindStudentByLogin matches either the student number or the email address.
func (r *AccountRepository) FindStudentByLogin(ctx context.Context, identifier string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE student_no = $1 OR LOWER(email) = LOWER($1) LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, identifier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student by login: %w", err)
	}
	return &student, nil
}

// FindStaffByEmail returns a staff account by email address.
func (r *AccountRepository) FindStaffByEmail(ctx context.Context, email string) (*models.Staff, error) {
	const query = `SELECT id, full_name, email, password_hash, office, role, status, created_at FROM staff WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var staff models.Staff
	if err := r.db.GetContext(ctx, &staff, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find staff by email: %w", err)
	}
	return &staff, nil
}

// UpdateStudentSignature stores the latest signature artifact on the student record.
func (r *AccountRepository) UpdateStudentSignature(ctx context.Context, studentID, signature string) error {
	const query = `UPDATE students SET signature = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, studentID, signature, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update student signature: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateAuditLog stores an audit log entry.
func (r *AccountRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, actor_id, action, resource, resource_id, payload, ip_address, user_agent, created_at) VALUES (:id, :actor_id, :action, :resource, :resource_id, :payload, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
