package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type authAccountRepository interface {
	FindStudentByLogin(ctx context.Context, identifier string) (*models.Student, error)
	FindStaffByEmail(ctx context.Context, email string) (*models.Staff, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	Audience          []string
}

// AuthService authenticates students and staff and issues access tokens.
type AuthService struct {
	repo      authAccountRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authAccountRepository, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 12 * time.Hour
	}
	return &AuthService{repo: repo, validator: validate, logger: logger, config: config}
}

// Login checks credentials for the requested account kind and returns an access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	var (
		user models.UserInfo
		err  error
	)
	switch req.Kind {
	case models.AccountStudent:
		user, err = s.authenticateStudent(ctx, req)
	default:
		user, err = s.authenticateStaff(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	accessToken, _, err := s.generateAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		ActorID:    &user.ID,
		Action:     models.AuditActionLogin,
		Resource:   "auth",
		ResourceID: &user.ID,
		Payload:    []byte(fmt.Sprintf(`{"kind":%q}`, req.Kind)),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record login audit log", zap.String("user_id", user.ID), zap.Error(err))
	}

	return &models.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    time.Now().UTC(),
		User:        user,
	}, nil
}

func (s *AuthService) authenticateStudent(ctx context.Context, req models.LoginRequest) (models.UserInfo, error) {
	student, err := s.repo.FindStudentByLogin(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserInfo{}, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid student number, email or password")
		}
		return models.UserInfo{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte(req.Password)); err != nil {
		return models.UserInfo{}, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid student number, email or password")
	}
	if !student.OTPVerified {
		return models.UserInfo{}, appErrors.Clone(appErrors.ErrInactiveAccount, "OTP verification required before first login")
	}
	return models.UserInfo{
		ID:       student.ID,
		Email:    student.Email,
		FullName: student.FullName(),
		Role:     models.RoleStudent,
	}, nil
}

func (s *AuthService) authenticateStaff(ctx context.Context, req models.LoginRequest) (models.UserInfo, error) {
	staff, err := s.repo.FindStaffByEmail(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserInfo{}, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return models.UserInfo{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch staff")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(req.Password)); err != nil {
		return models.UserInfo{}, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}
	if staff.Status != models.StaffApproved {
		return models.UserInfo{}, appErrors.Clone(appErrors.ErrInactiveAccount, fmt.Sprintf("staff account is %s", staff.Status))
	}
	role := staff.Role
	if role == "" {
		role = models.RoleStaff
	}
	return models.UserInfo{
		ID:       staff.ID,
		Email:    staff.Email,
		FullName: staff.FullName,
		Role:     role,
		Office:   staff.Office,
	}, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

func (s *AuthService) generateAccessToken(user models.UserInfo) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID:   user.ID,
		Role:     user.Role,
		Email:    user.Email,
		FullName: user.FullName,
		Office:   user.Office,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			Audience:  s.config.Audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
