package dto

// CreateDocumentRequest is a student's direct request for registrar documents.
type CreateDocumentRequest struct {
	DocumentType string `json:"document_type" validate:"notblank,max=120"`
	Purpose      string `json:"purpose" validate:"max=500"`
}
