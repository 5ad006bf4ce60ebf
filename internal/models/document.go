package models

import "time"

// DocumentStatus is the lifecycle state of a document request.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "Pending"
	DocumentProcessing DocumentStatus = "Processing"
	DocumentCompleted  DocumentStatus = "Completed"
	DocumentReleased   DocumentStatus = "Released"
	DocumentUnclaimed  DocumentStatus = "Unclaimed"
	DocumentRejected   DocumentStatus = "Rejected"
)

// DocumentRequest is the physical-document fulfillment record.
type DocumentRequest struct {
	ID                 string         `db:"id" json:"id"`
	StudentID          string         `db:"student_id" json:"student_id"`
	DocumentType       string         `db:"document_type" json:"document_type"`
	Purpose            string         `db:"purpose" json:"purpose"`
	Status             DocumentStatus `db:"status" json:"status"`
	ClearanceRequestID *string        `db:"clearance_request_id" json:"clearance_request_id,omitempty"`
	ReferenceNumber    *string        `db:"reference_number" json:"reference_number,omitempty"`
	PickupDate         *time.Time     `db:"pickup_date" json:"pickup_date,omitempty"`
	RejectionReason    *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CompletedAt        *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// DocumentFile is an uploaded artifact fulfilling a document request.
type DocumentFile struct {
	ID                string    `db:"id" json:"id"`
	DocumentRequestID string    `db:"document_request_id" json:"document_request_id"`
	OriginalName      string    `db:"original_name" json:"original_name"`
	StoragePath       string    `db:"storage_path" json:"-"`
	MimeType          string    `db:"mime_type" json:"mime_type"`
	FileSize          int64     `db:"file_size" json:"file_size"`
	UploadedAt        time.Time `db:"uploaded_at" json:"uploaded_at"`
	DownloadURL       string    `db:"-" json:"download_url,omitempty"`
}

// DocumentDetail bundles a document request with its files.
type DocumentDetail struct {
	DocumentRequest
	Files []DocumentFile `json:"files"`
}

// DocumentTransition describes one guarded status write and its mirror onto the clearance.
type DocumentTransition struct {
	DocumentID      string
	From            []DocumentStatus
	To              DocumentStatus
	Fulfillment     FulfillmentStatus
	Registrar       RegistrarStatus
	RejectionReason *string
	StampCompleted  bool
	ClearPickup     bool
	Files           []DocumentFile
	RequireFiles    bool
}

// ClearanceGate names why a linked document cannot start processing.
type ClearanceGate string

const (
	GateApproved   ClearanceGate = "approved"
	GatePending    ClearanceGate = "pending"
	GateRejected   ClearanceGate = "rejected"
	GateIncomplete ClearanceGate = "incomplete"
)

// TransitionResult is returned by document operations.
type TransitionResult struct {
	Document        *DocumentRequest `json:"document"`
	ClearanceStatus ClearanceGate    `json:"clearance_status,omitempty"`
	Message         string           `json:"message"`
	Files           []DocumentFile   `json:"files,omitempty"`
}

// AutoTransferLog records one bridge execution.
type AutoTransferLog struct {
	ID                 string    `db:"id" json:"id"`
	ClearanceRequestID string    `db:"clearance_request_id" json:"clearance_request_id"`
	DocumentRequestID  string    `db:"document_request_id" json:"document_request_id"`
	StudentID          string    `db:"student_id" json:"student_id"`
	TransferredAt      time.Time `db:"transferred_at" json:"transferred_at"`
	Reason             string    `db:"reason" json:"reason"`
}

// TransferOutcome reports what the bridge did for one clearance.
type TransferOutcome struct {
	ClearanceRequestID string `json:"clearance_request_id"`
	DocumentRequestID  string `json:"document_request_id"`
	Created            bool   `json:"created"`
}
