package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type tokenTable map[string]*models.JWTClaims

func (t tokenTable) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := t[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

type recordingAudit struct{ entries []*models.AuditLog }

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.entries = append(r.entries, log)
	return nil
}

type maintenanceServiceMock struct{ flushed int }

func (m *maintenanceServiceMock) ReconcileTransfers(ctx context.Context) (*service.ReconcileResult, error) {
	return &service.ReconcileResult{FixedCount: 1, TotalFound: 1, Message: "Fixed 1 missing transfers"}, nil
}

func (m *maintenanceServiceMock) RecentTransfers(ctx context.Context) ([]models.AutoTransferLog, error) {
	return nil, nil
}

func (m *maintenanceServiceMock) BackfillPropertyCustodian(ctx context.Context) (*service.MaintenanceResult, error) {
	return &service.MaintenanceResult{Message: "All clearance requests already have Property Custodian signatory"}, nil
}

func (m *maintenanceServiceMock) SyncStatuses(ctx context.Context) (*service.MaintenanceResult, error) {
	return &service.MaintenanceResult{Message: "No status inconsistencies found. All records are already in sync!"}, nil
}

func (m *maintenanceServiceMock) RewriteClearanceDocuments(ctx context.Context) (*service.MaintenanceResult, error) {
	return &service.MaintenanceResult{Message: "Updated 0 document requests with actual documents"}, nil
}

func (m *maintenanceServiceMock) FlushReceiptCache(ctx context.Context) (*service.MaintenanceResult, error) {
	m.flushed++
	return &service.MaintenanceResult{Affected: 2, Message: "Removed 2 cached receipt readings"}, nil
}

type notificationServiceMock struct{ student string }

func (m *notificationServiceMock) List(ctx context.Context, studentID string, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	m.student = studentID
	return []models.Notification{{ID: "n1", StudentID: studentID}}, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: 1}, nil
}

func (m *notificationServiceMock) MarkRead(ctx context.Context, studentID string) (int64, error) {
	return 3, nil
}

type authServiceMock struct{}

func (authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Invalid credentials")
}

type routerFixture struct {
	engine      *gin.Engine
	audit       *recordingAudit
	maintenance *maintenanceServiceMock
	registrar   *registrarServiceMock
}

func newRouterFixture() routerFixture {
	gin.SetMode(gin.TestMode)
	audit := &recordingAudit{}
	maintenance := &maintenanceServiceMock{}
	registrar := &registrarServiceMock{}
	engine := gin.New()
	Routes{
		Tokens: tokenTable{
			"student":   studentClaims(),
			"library":   staffClaims(models.OfficeLibrary),
			"nooffice":  staffClaims(""),
			"registrar": registrarClaims(),
			"admin":     {UserID: "a1", Role: models.RoleAdmin, FullName: "Admin"},
		},
		AuditLog:      audit,
		Auth:          NewAuthHandler(authServiceMock{}),
		Clearances:    NewClearanceHandler(&clearanceServiceMock{}, &summaryServiceMock{}),
		Signatories:   NewSignatoryHandler(&signatoryServiceMock{}),
		Registrar:     NewRegistrarHandler(registrar),
		Documents:     NewDocumentHandler(&documentServiceMock{}),
		Receipts:      NewReceiptHandler(&receiptServiceMock{}),
		Maintenance:   NewMaintenanceHandler(maintenance),
		Notifications: NewNotificationHandler(&notificationServiceMock{}),
		Metrics:       NewMetricsHandler(service.NewMetricsService()),
	}.Register(engine.Group("/api/v1"))
	return routerFixture{engine: engine, audit: audit, maintenance: maintenance, registrar: registrar}
}

func (f routerFixture) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestRoutesRequireToken(t *testing.T) {
	f := newRouterFixture()

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/notifications", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/notifications", "forged").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/notifications", "student").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/health", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/metrics", "").Code)
}

func TestRoutesRoleGates(t *testing.T) {
	f := newRouterFixture()

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"student cannot run registrar ops", http.MethodPost, "/api/v1/registrar/clearances/r1/mark-processing", "student", http.StatusForbidden},
		{"office staff cannot run registrar ops", http.MethodPost, "/api/v1/registrar/clearances/r1/mark-processing", "library", http.StatusForbidden},
		{"registrar runs registrar ops", http.MethodPost, "/api/v1/registrar/clearances/r1/mark-processing", "registrar", http.StatusOK},
		{"admin runs registrar ops", http.MethodPost, "/api/v1/registrar/clearances/r1/mark-released", "admin", http.StatusOK},
		{"staff without office cannot sign", http.MethodPost, "/api/v1/signatories/g1/approve", "nooffice", http.StatusForbidden},
		{"student cannot sign", http.MethodPost, "/api/v1/signatories/g1/approve", "student", http.StatusForbidden},
		{"office staff signs", http.MethodPost, "/api/v1/signatories/g1/approve", "library", http.StatusOK},
		{"only admin resets", http.MethodPost, "/api/v1/signatories/g1/reset", "library", http.StatusForbidden},
		{"admin resets", http.MethodPost, "/api/v1/signatories/g1/reset", "admin", http.StatusOK},
		{"maintenance is admin only", http.MethodPost, "/api/v1/maintenance/sync-statuses", "registrar", http.StatusForbidden},
		{"admin flushes receipt cache", http.MethodPost, "/api/v1/maintenance/receipt-cache/flush", "admin", http.StatusOK},
		{"staff cannot list notifications", http.MethodGet, "/api/v1/notifications", "library", http.StatusForbidden},
		{"student reads claim slip", http.MethodGet, "/api/v1/documents/d1/claim-slip", "student", http.StatusOK},
		{"office staff cannot read documents", http.MethodGet, "/api/v1/documents/d1", "library", http.StatusForbidden},
		{"download needs no token", http.MethodGet, "/api/v1/documents/files/f1/download?token=bad", "", http.StatusForbidden},
		{"ai health is admin only", http.MethodGet, "/api/v1/receipts/ai-health", "student", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, f.do(tc.method, tc.path, tc.token).Code)
		})
	}
	assert.Equal(t, 1, f.maintenance.flushed)
}

func TestRoutesAuditSuccessfulWrites(t *testing.T) {
	f := newRouterFixture()

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/registrar/clearances/r1/mark-processing", "registrar").Code)
	require.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/v1/registrar/clearances/missing/mark-unclaimed", "registrar").Code)

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.entries[0]
	assert.Equal(t, models.AuditActionRegistrarUpdate, entry.Action)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "r1", *entry.ResourceID)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "reg", *entry.ActorID)
}

func TestRoutesLoginAndMe(t *testing.T) {
	f := newRouterFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/auth/me", "library")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"office":"Library"`)
}

func TestRoutesNotificationsAndMaintenance(t *testing.T) {
	f := newRouterFixture()

	w := f.do(http.MethodPost, "/api/v1/notifications/read", "student")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"updated":3`)

	w = f.do(http.MethodGet, "/api/v1/maintenance/recent-transfers", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", string(decodeEnvelope(t, w).Data))

	w = f.do(http.MethodPost, "/api/v1/maintenance/reconcile-transfers", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Fixed 1 missing transfers", decodeEnvelope(t, w).Message)
}

func TestHealthIncludesMetricsSnapshot(t *testing.T) {
	f := newRouterFixture()
	w := f.do(http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"status":"ok"`)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"requests_total"`)
}
