package dto

// ApproveSignatoryRequest carries the optional drawn signature (data URL or base64).
type ApproveSignatoryRequest struct {
	Signature string `json:"signature" validate:"omitempty,max=2097152"`
}

// RejectRequest carries the reason shown to the student.
type RejectRequest struct {
	Reason string `json:"reason" validate:"notblank,max=500"`
}
