package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clearance-api/internal/models"
)

// NotificationRepository persists student notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores a notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, student_id, staff_name, action, phase, message, is_read, created_at) VALUES (:id, :student_id, :staff_name, :action, :phase, :message, :is_read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByStudent returns a page of the student's notifications, newest first, with the total count.
func (r *NotificationRepository) ListByStudent(ctx context.Context, studentID string, page, pageSize int) ([]models.Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications WHERE student_id = $1`, studentID); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	const query = `SELECT id, student_id, staff_name, action, phase, message, is_read, created_at FROM notifications WHERE student_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	var rows []models.Notification
	if err := r.db.SelectContext(ctx, &rows, query, studentID, pageSize, (page-1)*pageSize); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return rows, total, nil
}

// MarkRead flags the student's notifications as read and returns how many changed.
func (r *NotificationRepository) MarkRead(ctx context.Context, studentID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE student_id = $1 AND is_read = FALSE`, studentID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}
