package dto

import "github.com/noah-isme/clearance-api/internal/models"

// DuplicateCheckRequest checks for a recent request with the same document set.
type DuplicateCheckRequest struct {
	DocumentType string   `json:"document_type" validate:"max=120"`
	Documents    []string `json:"documents" validate:"dive,notblank"`
	Purposes     []string `json:"purposes" validate:"dive,notblank"`
}

// DuplicateCheckResponse reports the conflicting request when one exists.
type DuplicateCheckResponse struct {
	Duplicate bool                   `json:"duplicate"`
	Match     *models.DuplicateMatch `json:"match,omitempty"`
	Message   string                 `json:"message"`
}

// ReferenceCheckResponse tells whether a reference number can still be used.
type ReferenceCheckResponse struct {
	Reference string `json:"reference"`
	Available bool   `json:"available"`
	Message   string `json:"message"`
}
