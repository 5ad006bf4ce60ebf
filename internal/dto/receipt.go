package dto

// ReferenceValidationResponse is the cross-check between the typed and the printed reference.
type ReferenceValidationResponse struct {
	Match              bool    `json:"match"`
	ExtractedReference string  `json:"extracted_reference"`
	ProvidedReference  string  `json:"provided_reference"`
	Confidence         float64 `json:"confidence"`
	Unreliable         bool    `json:"unreliable"`
	Message            string  `json:"message"`
}
