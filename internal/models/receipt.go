package models

// ExtractedReceipt is the structured reading of a payment receipt image.
type ExtractedReceipt struct {
	Amount          *float64 `json:"amount"`
	ReferenceNumber string   `json:"reference_number"`
	Confidence      float64  `json:"confidence"`
	RawText         string   `json:"raw_text"`
	Cached          bool     `json:"-"`
}

// PaymentValidation is the accept/reject decision for a receipt.
type PaymentValidation struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// ReferenceMatch compares an extracted reference with the one a student typed.
type ReferenceMatch struct {
	Match              bool    `json:"match"`
	ExtractedReference string  `json:"extracted_reference"`
	ProvidedReference  string  `json:"provided_reference"`
	ExtractedClean     string  `json:"extracted_clean"`
	ProvidedClean      string  `json:"provided_clean"`
	Confidence         float64 `json:"confidence"`
	Unreliable         bool    `json:"unreliable"`
	Message            string  `json:"message"`
}

// AIHealth reports connectivity to the receipt reading service.
type AIHealth struct {
	Reachable bool   `json:"reachable"`
	Message   string `json:"message"`
}
