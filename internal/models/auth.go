package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccountKind selects which account table a login targets.
type AccountKind string

const (
	AccountStudent AccountKind = "student"
	AccountStaff   AccountKind = "staff"
)

// LoginRequest holds credentials for authenticating a student or staff member.
// Students may use their student number or email as identifier.
type LoginRequest struct {
	Kind       AccountKind `json:"kind" validate:"required,oneof=student staff"`
	Identifier string      `json:"identifier" validate:"required"`
	Password   string      `json:"password" validate:"required"`
	IP         string      `json:"-"`
	UserAgent  string      `json:"-"`
}

// LoginResponse returns the issued access token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
	Office   string   `json:"office,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens. Office is set for staff.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Office   string   `json:"office,omitempty"`
	jwt.RegisteredClaims
}
