package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/jobs"
)

const (
	notificationJobType = "notification.publish"
	registrarActor      = "Registrar"
)

// Notification phases shown to students.
const (
	PhaseRejected   = "Rejected"
	PhaseProcessing = "Processing"
	PhaseCompleted  = "Completed"
	PhaseReleased   = "Released"
	PhaseUnclaimed  = "Unclaimed"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByStudent(ctx context.Context, studentID string, page, pageSize int) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, studentID string) (int64, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// NotificationService persists student notifications and fans them out to the event stream.
// Delivery is best effort: failures are logged and never reach the caller.
type NotificationService struct {
	store     notificationStore
	publisher eventPublisher
	queue     jobEnqueuer
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewNotificationService constructs a NotificationService. publisher may be nil.
func NewNotificationService(store notificationStore, publisher eventPublisher, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{store: store, publisher: publisher, metrics: metrics, logger: logger}
}

// UseQueue routes publishing through a worker queue instead of the request goroutine.
func (s *NotificationService) UseQueue(q jobEnqueuer) {
	s.queue = q
}

// Notify stores n and schedules its publication.
func (s *NotificationService) Notify(ctx context.Context, n models.Notification) {
	if s == nil {
		return
	}
	if err := s.store.Create(ctx, &n); err != nil {
		s.logger.Warn("failed to persist notification", zap.String("student_id", n.StudentID), zap.String("action", n.Action), zap.Error(err))
		return
	}
	s.metrics.RecordNotification(n.Phase)

	if s.publisher == nil {
		return
	}
	job := jobs.Job{ID: n.ID, Type: notificationJobType, Payload: n}
	if s.queue == nil {
		if err := s.HandleJob(ctx, job); err != nil {
			s.logger.Warn("failed to publish notification", zap.String("notification_id", n.ID), zap.Error(err))
		}
		return
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("notification_id", n.ID), zap.Error(err))
	}
}

// HandleJob publishes one queued notification keyed by student id.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return s.publisher.Publish(ctx, []byte(n.StudentID), body)
}

// List returns a page of the student's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, studentID string, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	items, total, err := s.store.ListByStudent(ctx, studentID, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// MarkRead flags every unread notification of the student as read.
func (s *NotificationService) MarkRead(ctx context.Context, studentID string) (int64, error) {
	updated, err := s.store.MarkRead(ctx, studentID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return updated, nil
}

func newNotification(studentID, staffName, action, phase, message string) models.Notification {
	return models.Notification{
		ID:        uuid.NewString(),
		StudentID: studentID,
		StaffName: staffName,
		Action:    action,
		Phase:     phase,
		Message:   message,
	}
}

func rejectionNotice(studentID, approver, reason string) models.Notification {
	return newNotification(studentID, approver, "rejected", PhaseRejected, fmt.Sprintf("%s rejected your clearance due to: %s", approver, reason))
}

// documentNotice covers the registrar driven document phases.
func documentNotice(studentID string, status models.DocumentStatus) models.Notification {
	switch status {
	case models.DocumentProcessing:
		return newNotification(studentID, registrarActor, "processing", PhaseProcessing, "Your request is now in the Processing Phase.")
	case models.DocumentCompleted:
		return newNotification(studentID, registrarActor, "completed", PhaseCompleted, "Your document moved to Completed Phase.")
	case models.DocumentReleased:
		return newNotification(studentID, registrarActor, "released", PhaseReleased, "Your document has been released.")
	case models.DocumentUnclaimed:
		return newNotification(studentID, registrarActor, "unclaimed", PhaseUnclaimed, "Your document is unclaimed.")
	default:
		return newNotification(studentID, registrarActor, "rejected", PhaseRejected, "Your document request was rejected.")
	}
}

// registrarNotice is sent when the registrar moves a clearance along its fulfillment track.
func registrarNotice(studentID string, status models.FulfillmentStatus) models.Notification {
	switch status {
	case models.FulfillmentCompleted:
		return newNotification(studentID, registrarActor, "completed", PhaseCompleted, "Your document has been processed and is ready for review.")
	case models.FulfillmentReleased:
		return newNotification(studentID, registrarActor, "released", PhaseReleased, "Your document is ready for pickup!")
	case models.FulfillmentUnclaimed:
		return newNotification(studentID, registrarActor, "unclaimed", PhaseUnclaimed, "Your document is unclaimed.")
	default:
		return newNotification(studentID, registrarActor, "processing", PhaseProcessing, "Your request is now in the Processing Phase.")
	}
}
