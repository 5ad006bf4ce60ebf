package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/pkg/jobs"
)

type memoryNotificationStore struct {
	items     []models.Notification
	createErr error
}

func (m *memoryNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.items = append(m.items, *n)
	return nil
}

func (m *memoryNotificationStore) ListByStudent(ctx context.Context, studentID string, page, pageSize int) ([]models.Notification, int, error) {
	var out []models.Notification
	for _, n := range m.items {
		if n.StudentID == studentID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *memoryNotificationStore) MarkRead(ctx context.Context, studentID string) (int64, error) {
	var updated int64
	for i := range m.items {
		if m.items[i].StudentID == studentID && !m.items[i].IsRead {
			m.items[i].IsRead = true
			updated++
		}
	}
	return updated, nil
}

type recordingPublisher struct {
	keys   []string
	values [][]byte
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, key, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, string(key))
	p.values = append(p.values, value)
	return nil
}

type recordingQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func TestNotificationServicePersistsAndPublishes(t *testing.T) {
	store := &memoryNotificationStore{}
	publisher := &recordingPublisher{}
	svc := NewNotificationService(store, publisher, nil, nil)

	svc.Notify(context.Background(), rejectionNotice("s1", "Librarian", "Unreturned book"))

	require.Len(t, store.items, 1)
	assert.Equal(t, "Librarian rejected your clearance due to: Unreturned book", store.items[0].Message)
	assert.Equal(t, PhaseRejected, store.items[0].Phase)
	require.Len(t, publisher.keys, 1)
	assert.Equal(t, "s1", publisher.keys[0])

	var decoded models.Notification
	require.NoError(t, json.Unmarshal(publisher.values[0], &decoded))
	assert.Equal(t, store.items[0].ID, decoded.ID)
}

func TestNotificationServiceUsesQueue(t *testing.T) {
	store := &memoryNotificationStore{}
	publisher := &recordingPublisher{}
	queue := &recordingQueue{}
	svc := NewNotificationService(store, publisher, nil, nil)
	svc.UseQueue(queue)

	svc.Notify(context.Background(), documentNotice("s1", models.DocumentReleased))

	require.Len(t, queue.jobs, 1)
	assert.Empty(t, publisher.keys)
	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))
	assert.Equal(t, []string{"s1"}, publisher.keys)
}

func TestNotificationServiceSwallowsFailures(t *testing.T) {
	svc := NewNotificationService(&memoryNotificationStore{createErr: errors.New("db down")}, &recordingPublisher{}, nil, nil)
	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), documentNotice("s1", models.DocumentCompleted))
	})

	queued := NewNotificationService(&memoryNotificationStore{}, &recordingPublisher{}, nil, nil)
	queued.UseQueue(&recordingQueue{err: jobs.ErrQueueFull})
	assert.NotPanics(t, func() {
		queued.Notify(context.Background(), documentNotice("s1", models.DocumentCompleted))
	})

	var nilSvc *NotificationService
	assert.NotPanics(t, func() { nilSvc.Notify(context.Background(), models.Notification{}) })
}

func TestNotificationServiceHandleJobRejectsForeignPayload(t *testing.T) {
	svc := NewNotificationService(&memoryNotificationStore{}, &recordingPublisher{}, nil, nil)
	require.Error(t, svc.HandleJob(context.Background(), jobs.Job{Payload: "nope"}))
}

func TestNotificationServiceListAndMarkRead(t *testing.T) {
	store := &memoryNotificationStore{}
	svc := NewNotificationService(store, nil, nil, nil)
	svc.Notify(context.Background(), documentNotice("s1", models.DocumentProcessing))
	svc.Notify(context.Background(), documentNotice("s2", models.DocumentProcessing))

	items, page, err := svc.List(context.Background(), "s1", 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Your request is now in the Processing Phase.", items[0].Message)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)

	updated, err := svc.MarkRead(context.Background(), "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated)
}

func TestRegistrarNoticeMessages(t *testing.T) {
	assert.Equal(t, "Your document has been processed and is ready for review.", registrarNotice("s", models.FulfillmentCompleted).Message)
	assert.Equal(t, "Your document is ready for pickup!", registrarNotice("s", models.FulfillmentReleased).Message)
	assert.Equal(t, "Your document is unclaimed.", registrarNotice("s", models.FulfillmentUnclaimed).Message)
}
