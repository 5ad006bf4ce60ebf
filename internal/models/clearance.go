package models

import (
	"time"

	"github.com/lib/pq"
)

// ClearanceStatus is the coarse summary of a clearance request.
type ClearanceStatus string

const (
	ClearancePending   ClearanceStatus = "Pending"
	ClearanceApproved  ClearanceStatus = "Approved"
	ClearanceRejected  ClearanceStatus = "Rejected"
	ClearanceConverted ClearanceStatus = "Converted"
)

// FulfillmentStatus tracks the document journey after approval.
type FulfillmentStatus string

const (
	FulfillmentPending    FulfillmentStatus = "Pending"
	FulfillmentProcessing FulfillmentStatus = "Processing"
	FulfillmentApproved   FulfillmentStatus = "Approved"
	FulfillmentCompleted  FulfillmentStatus = "Completed"
	FulfillmentReleased   FulfillmentStatus = "Released"
	FulfillmentUnclaimed  FulfillmentStatus = "Unclaimed"
	FulfillmentRejected   FulfillmentStatus = "Rejected"
)

// RegistrarStatus is the registrar's own progress marker.
type RegistrarStatus string

const (
	RegistrarPending    RegistrarStatus = "Pending"
	RegistrarProcessing RegistrarStatus = "Processing"
	RegistrarComplete   RegistrarStatus = "Complete"
)

// SignatoryStatus is one office's stance on a request.
type SignatoryStatus string

const (
	SignatoryPending  SignatoryStatus = "Pending"
	SignatoryApproved SignatoryStatus = "Approved"
	SignatoryRejected SignatoryStatus = "Rejected"
)

// Office names used for signatory rows.
const (
	OfficeComputerLab       = "Computer Laboratory"
	OfficeGuidance          = "Guidance Office"
	OfficeStudentAffairs    = "Student Affairs"
	OfficeLibrary           = "Library"
	OfficeDeanCoEd          = "Dean of CoEd"
	OfficeDeanHM            = "Dean of HM"
	OfficeDeanCS            = "Dean of CS"
	OfficeAccounting        = "Accounting"
	OfficePropertyCustodian = "Property Custodian"
	OfficeRegistrar         = "Registrar"
)

// SystemActor signs policy driven auto-approvals.
const SystemActor = "System Auto-Approval"

// ClearanceRequest is one student-initiated ask for institutional clearance.
type ClearanceRequest struct {
	ID                string            `db:"id" json:"id"`
	StudentID         string            `db:"student_id" json:"student_id"`
	Status            ClearanceStatus   `db:"status" json:"status"`
	FulfillmentStatus FulfillmentStatus `db:"fulfillment_status" json:"fulfillment_status"`
	RegistrarStatus   RegistrarStatus   `db:"registrar_status" json:"registrar_status"`
	DocumentType      string            `db:"document_type" json:"document_type"`
	Documents         pq.StringArray    `db:"documents" json:"documents"`
	Purposes          pq.StringArray    `db:"purposes" json:"purposes"`
	Reason            *string           `db:"reason" json:"reason,omitempty"`
	PaymentMethod     string            `db:"payment_method" json:"payment_method"`
	PaymentAmount     float64           `db:"payment_amount" json:"payment_amount"`
	PaymentReceipt    *string           `db:"payment_receipt" json:"-"`
	ReceiptURL        *string           `db:"receipt_url" json:"receipt_url,omitempty"`
	ReceiptKey        *string           `db:"receipt_key" json:"receipt_key,omitempty"`
	ReferenceNumber   *string           `db:"reference_number" json:"reference_number,omitempty"`
	PaymentVerified   bool              `db:"payment_verified" json:"payment_verified"`
	PaymentDetails    *string           `db:"payment_details" json:"payment_details,omitempty"`
	PickupDate        *time.Time        `db:"pickup_date" json:"pickup_date,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// ReceiptImage returns the external URL when present, otherwise the inline data URI.
func (r ClearanceRequest) ReceiptImage() string {
	if r.ReceiptURL != nil && *r.ReceiptURL != "" {
		return *r.ReceiptURL
	}
	if r.PaymentReceipt != nil && *r.PaymentReceipt != "" {
		return "data:image/jpeg;base64," + *r.PaymentReceipt
	}
	return ""
}

// Signatory is one office's decision row on a clearance request.
type Signatory struct {
	ID              string          `db:"id" json:"id"`
	RequestID       string          `db:"request_id" json:"request_id"`
	Office          string          `db:"office" json:"office"`
	Status          SignatoryStatus `db:"status" json:"status"`
	SignedBy        *string         `db:"signed_by" json:"signed_by,omitempty"`
	SignedAt        *time.Time      `db:"signed_at" json:"signed_at,omitempty"`
	RejectionReason *string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// ClearanceDetail bundles a request with its signatories.
type ClearanceDetail struct {
	ClearanceRequest
	Signatories []Signatory `json:"signatories"`
	ReceiptView string      `json:"receipt_image,omitempty"`
}

// SignatoryDecision carries the write applied to one signatory row.
type SignatoryDecision struct {
	SignatoryID string
	Status      SignatoryStatus
	SignedBy    string
	Reason      string
	SignedAt    time.Time
}

// AggregateOutcome reports the clearance state after a signatory write.
type AggregateOutcome struct {
	RequestID       string          `json:"request_id"`
	StudentID       string          `json:"student_id"`
	Office          string          `json:"office"`
	PreviousStatus  ClearanceStatus `json:"previous_status"`
	Status          ClearanceStatus `json:"status"`
	BecameApproved  bool            `json:"became_approved"`
	SignatoryStatus SignatoryStatus `json:"signatory_status"`
}

// SignatoryCounts tallies signatory rows by status.
type SignatoryCounts struct {
	Total    int `db:"total" json:"total"`
	Approved int `db:"approved" json:"approved"`
	Rejected int `db:"rejected" json:"rejected"`
	Pending  int `db:"pending" json:"pending"`
}

// SignatorySummary is the approval overview shown to students and staff.
type SignatorySummary struct {
	SignatoryCounts
	PendingOffices  []string `json:"pending_offices"`
	RejectedOffices []string `json:"rejected_offices"`
	AllApproved     bool     `json:"all_approved"`
	Message         string   `json:"message"`
}

// DuplicateCandidate is a recent request considered by the duplicate detector.
type DuplicateCandidate struct {
	ID           string          `db:"id"`
	Status       ClearanceStatus `db:"status"`
	DocumentType string          `db:"document_type"`
	Documents    pq.StringArray  `db:"documents"`
	Purposes     pq.StringArray  `db:"purposes"`
	CreatedAt    time.Time       `db:"created_at"`
}

// DuplicateMatch describes an existing request that blocks a new one.
type DuplicateMatch struct {
	RequestID string          `json:"request_id"`
	Status    ClearanceStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// DeriveClearanceStatus folds signatory states into the request status.
// Any rejection wins; all approved yields Approved; anything else, including no rows, stays Pending.
func DeriveClearanceStatus(statuses []SignatoryStatus) ClearanceStatus {
	if len(statuses) == 0 {
		return ClearancePending
	}
	approved := 0
	for _, s := range statuses {
		switch s {
		case SignatoryRejected:
			return ClearanceRejected
		case SignatoryApproved:
			approved++
		}
	}
	if approved == len(statuses) {
		return ClearanceApproved
	}
	return ClearancePending
}

// ClearanceStateUpdate is a direct registrar write. Nil fields are left untouched.
type ClearanceStateUpdate struct {
	Status      *ClearanceStatus
	Fulfillment *FulfillmentStatus
	Registrar   *RegistrarStatus
}
