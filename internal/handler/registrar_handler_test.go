package handler

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type registrarServiceMock struct {
	calls      []string
	actor      service.Actor
	pickup     time.Time
	reason     string
	notPending bool
}

func (m *registrarServiceMock) MarkProcessing(ctx context.Context, id string) error {
	m.calls = append(m.calls, "processing:"+id)
	return nil
}

func (m *registrarServiceMock) MarkReleased(ctx context.Context, id string) error {
	m.calls = append(m.calls, "released:"+id)
	return nil
}

func (m *registrarServiceMock) MarkUnclaimed(ctx context.Context, id string) error {
	if id == "missing" {
		return appErrors.Clone(appErrors.ErrNotFound, "Request not found")
	}
	m.calls = append(m.calls, "unclaimed:"+id)
	return nil
}

func (m *registrarServiceMock) Release(ctx context.Context, actor service.Actor, id, signature string) (*models.AggregateOutcome, error) {
	m.actor = actor
	return &models.AggregateOutcome{RequestID: id, Office: models.OfficeRegistrar, Status: models.ClearanceApproved}, nil
}

func (m *registrarServiceMock) Reject(ctx context.Context, actor service.Actor, id, reason string) (*models.AggregateOutcome, error) {
	m.reason = reason
	return &models.AggregateOutcome{RequestID: id, Status: models.ClearanceRejected}, nil
}

func (m *registrarServiceMock) MoveToPending(ctx context.Context, actor service.Actor, id string) (*models.AggregateOutcome, error) {
	if m.notPending {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Request is not in approved status")
	}
	return &models.AggregateOutcome{RequestID: id, Status: models.ClearancePending}, nil
}

func (m *registrarServiceMock) SetPickupDate(ctx context.Context, id string, date time.Time) error {
	if date.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "Pickup date is required")
	}
	m.pickup = date
	return nil
}

func (m *registrarServiceMock) Convert(ctx context.Context, id string) (*service.ConversionResult, error) {
	return &service.ConversionResult{DocumentRequestID: "d1", Message: "Already in Pending Documents"}, nil
}

func (m *registrarServiceMock) DocumentRequest(ctx context.Context, id string) (*service.PipelineCheck, error) {
	docID := "d1"
	status := models.DocumentProcessing
	return &service.PipelineCheck{InPending: true, DocumentRequestID: &docID, Status: &status}, nil
}

func TestRegistrarHandlerFulfillment(t *testing.T) {
	svc := &registrarServiceMock{}
	h := NewRegistrarHandler(svc)

	c, w := newTestContext(http.MethodPost, "/registrar/clearances/r1/mark-processing", nil, registrarClaims())
	c.AddParam("id", "r1")
	h.MarkProcessing(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Request marked as processing", decodeEnvelope(t, w).Message)

	c, w = newTestContext(http.MethodPost, "/registrar/clearances/missing/mark-unclaimed", nil, registrarClaims())
	c.AddParam("id", "missing")
	h.MarkUnclaimed(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []string{"processing:r1"}, svc.calls)
}

func TestRegistrarHandlerReleaseUsesCaller(t *testing.T) {
	svc := &registrarServiceMock{}
	h := NewRegistrarHandler(svc)

	c, w := newTestContext(http.MethodPost, "/registrar/clearances/r1/release", nil, registrarClaims())
	c.AddParam("id", "r1")
	h.Release(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ms. Cruz", svc.actor.Name)
	assert.Equal(t, models.RoleRegistrar, svc.actor.Role)

	c, w = newTestContext(http.MethodPost, "/registrar/clearances/r1/reject", bytes.NewBufferString(`{"reason":"Unpaid balance"}`), registrarClaims())
	c.AddParam("id", "r1")
	h.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Unpaid balance", svc.reason)
}

func TestRegistrarHandlerMoveToPendingRejected(t *testing.T) {
	h := NewRegistrarHandler(&registrarServiceMock{notPending: true})
	c, w := newTestContext(http.MethodPost, "/registrar/clearances/r1/move-to-pending", nil, registrarClaims())
	c.AddParam("id", "r1")
	h.MoveToPending(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Request is not in approved status", decodeEnvelope(t, w).Message)
}

func TestRegistrarHandlerPickupDate(t *testing.T) {
	svc := &registrarServiceMock{}
	h := NewRegistrarHandler(svc)

	c, w := newTestContext(http.MethodPost, "/registrar/clearances/r1/pickup-date", bytes.NewBufferString(`{"pickup_date":"2024-07-01"}`), registrarClaims())
	c.AddParam("id", "r1")
	h.SetPickupDate(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), svc.pickup)

	c, w = newTestContext(http.MethodPost, "/registrar/clearances/r1/pickup-date", bytes.NewBufferString(`{"pickup_date":"07/01/2024"}`), registrarClaims())
	c.AddParam("id", "r1")
	h.SetPickupDate(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Pickup date must be formatted YYYY-MM-DD", decodeEnvelope(t, w).Message)

	c, w = newTestContext(http.MethodPost, "/registrar/clearances/r1/pickup-date", bytes.NewBufferString(`{"pickup_date":""}`), registrarClaims())
	c.AddParam("id", "r1")
	h.SetPickupDate(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Pickup date is required", decodeEnvelope(t, w).Message)
}

func TestRegistrarHandlerConvertAndPipeline(t *testing.T) {
	h := NewRegistrarHandler(&registrarServiceMock{})

	c, w := newTestContext(http.MethodPost, "/registrar/clearances/r1/convert", nil, registrarClaims())
	c.AddParam("id", "r1")
	h.Convert(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Already in Pending Documents", decodeEnvelope(t, w).Message)

	c, w = newTestContext(http.MethodGet, "/registrar/clearances/r1/document-request", nil, registrarClaims())
	c.AddParam("id", "r1")
	h.DocumentRequest(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"in_pending":true`)
}
