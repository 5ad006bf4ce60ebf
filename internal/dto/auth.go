package dto

import "github.com/noah-isme/clearance-api/internal/models"

// MeResponse describes the caller as seen by the access token.
type MeResponse struct {
	ID       string          `json:"id"`
	Email    string          `json:"email"`
	FullName string          `json:"full_name"`
	Role     models.UserRole `json:"role"`
	Office   string          `json:"office,omitempty"`
}
