package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type staticValidator struct{ claims *models.JWTClaims }

func (v staticValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append(mw, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/things/:id", handlers...)
	return r
}

func serve(r *gin.Engine, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/things/t1", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTHeaderHandling(t *testing.T) {
	r := newEngine(JWT(staticValidator{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}}))

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Token good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer bad").Code)
	assert.Equal(t, http.StatusOK, serve(r, "bearer good").Code)
}

func TestRequireRolesAdminAlwaysPasses(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStaff}
	r := newEngine(JWT(staticValidator{claims: claims}), RequireRoles(models.RoleRegistrar))
	assert.Equal(t, http.StatusForbidden, serve(r, "Bearer good").Code)

	claims.Role = models.RoleAdmin
	assert.Equal(t, http.StatusOK, serve(r, "Bearer good").Code)

	bare := newEngine(RequireRoles(models.RoleStudent))
	assert.Equal(t, http.StatusUnauthorized, serve(bare, "").Code)
}

func TestRequireOffice(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStaff}
	r := newEngine(JWT(staticValidator{claims: claims}), RequireOffice())
	assert.Equal(t, http.StatusForbidden, serve(r, "Bearer good").Code)

	claims.Office = models.OfficeLibrary
	assert.Equal(t, http.StatusOK, serve(r, "Bearer good").Code)
}

type auditRecorder struct {
	entries []*models.AuditLog
	err     error
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.entries = append(a.entries, log)
	return a.err
}

func TestAuditRecordsResource(t *testing.T) {
	writer := &auditRecorder{err: errors.New("db down")}
	r := newEngine(JWT(staticValidator{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}}), Audit(writer, nil, models.AuditActionMaintenance, "maintenance"))

	require.Equal(t, http.StatusOK, serve(r, "Bearer good").Code)
	require.Len(t, writer.entries, 1)
	entry := writer.entries[0]
	assert.Equal(t, "t1", *entry.ResourceID)
	assert.Equal(t, "u1", *entry.ActorID)
	assert.Contains(t, string(entry.Payload), `"path":"/things/:id"`)

	serve(r, "Bearer bad")
	assert.Len(t, writer.entries, 1)
}

type observerStub struct {
	path   string
	status int
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.path, o.status = path, status
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	obs := &observerStub{}
	r := newEngine(Metrics(obs))
	serve(r, "")
	assert.Equal(t, "/things/:id", obs.path)
	assert.Equal(t, http.StatusOK, obs.status)

	r = newEngine(Metrics(nil))
	assert.Equal(t, http.StatusOK, serve(r, "").Code)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var meta map[string]interface{}
	r.GET("/m", WithResponseMeta(), func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/m", nil))

	require.NotNil(t, meta)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Contains(t, meta, "processing_time_ms")
	assert.Nil(t, ExtractMeta(nil))
}
