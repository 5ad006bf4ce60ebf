package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type mockAccountRepo struct {
	student   *models.Student
	staff     *models.Staff
	auditLogs []*models.AuditLog
}

func (m *mockAccountRepo) FindStudentByLogin(ctx context.Context, identifier string) (*models.Student, error) {
	if m.student == nil || (identifier != m.student.StudentNo && identifier != m.student.Email) {
		return nil, sql.ErrNoRows
	}
	return m.student, nil
}

func (m *mockAccountRepo) FindStaffByEmail(ctx context.Context, email string) (*models.Staff, error) {
	if m.staff == nil || m.staff.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.staff, nil
}

func (m *mockAccountRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func hashPassword(t *testing.T, raw string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestAuthService(repo *mockAccountRepo) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "test"})
}

func TestAuthServiceStudentLoginByNumber(t *testing.T) {
	repo := &mockAccountRepo{student: &models.Student{ID: "s1", StudentNo: "2021-0001", FirstName: "Ana", LastName: "Cruz", Email: "ana@example.com", PasswordHash: hashPassword(t, "password"), OTPVerified: true}}
	svc := newTestAuthService(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{Kind: models.AccountStudent, Identifier: "2021-0001", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, models.RoleStudent, res.User.Role)
	assert.Equal(t, "Ana Cruz", res.User.FullName)
	assert.Len(t, repo.auditLogs, 1)
}

func TestAuthServiceStudentRequiresOTP(t *testing.T) {
	repo := &mockAccountRepo{student: &models.Student{ID: "s1", StudentNo: "2021-0001", PasswordHash: hashPassword(t, "password")}}
	svc := newTestAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Kind: models.AccountStudent, Identifier: "2021-0001", Password: "password"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
	assert.Equal(t, "OTP verification required before first login", appErr.Message)
}

func TestAuthServiceWrongPassword(t *testing.T) {
	repo := &mockAccountRepo{staff: &models.Staff{ID: "st1", Email: "lib@example.com", PasswordHash: hashPassword(t, "password"), Status: models.StaffApproved}}
	svc := newTestAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Kind: models.AccountStaff, Identifier: "lib@example.com", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceStaffMustBeApproved(t *testing.T) {
	repo := &mockAccountRepo{staff: &models.Staff{ID: "st1", Email: "lib@example.com", PasswordHash: hashPassword(t, "password"), Status: models.StaffPending}}
	svc := newTestAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Kind: models.AccountStaff, Identifier: "lib@example.com", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceStaffTokenCarriesOffice(t *testing.T) {
	repo := &mockAccountRepo{staff: &models.Staff{ID: "st1", FullName: "Librarian", Email: "lib@example.com", PasswordHash: hashPassword(t, "password"), Office: models.OfficeLibrary, Status: models.StaffApproved}}
	svc := newTestAuthService(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{Kind: models.AccountStaff, Identifier: "lib@example.com", Password: "password"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "st1", claims.UserID)
	assert.Equal(t, models.RoleStaff, claims.Role)
	assert.Equal(t, models.OfficeLibrary, claims.Office)
}

func TestAuthServiceRejectsInvalidKind(t *testing.T) {
	svc := newTestAuthService(&mockAccountRepo{})
	_, err := svc.Login(context.Background(), models.LoginRequest{Kind: "guest", Identifier: "x", Password: "y"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthService(&mockAccountRepo{}, nil, nil, AuthConfig{AccessTokenSecret: "one"})
	token, _, err := issuer.generateAccessToken(models.UserInfo{ID: "u1", Role: models.RoleAdmin})
	require.NoError(t, err)

	verifier := NewAuthService(&mockAccountRepo{}, nil, nil, AuthConfig{AccessTokenSecret: "two"})
	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
}
