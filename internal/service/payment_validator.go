package service

import (
	"fmt"
	"math"
	"regexp"

	"github.com/noah-isme/clearance-api/internal/models"
)

const (
	// DefaultExpectedAmount is the document fee in pesos.
	DefaultExpectedAmount = 50.00
	amountTolerance       = 0.01
	amountEpsilon         = 1e-9
	minPaymentConfidence  = 0.85
)

var referencePattern = regexp.MustCompile(`^[0-9]{7,16}$`)

// ValidReferenceFormat reports whether ref is 7 to 16 ASCII digits.
func ValidReferenceFormat(ref string) bool {
	return referencePattern.MatchString(ref)
}

// ValidatePayment decides whether an extracted receipt pays the expected amount.
// Rules run in order and the first failure is reported.
func ValidatePayment(amount *float64, reference string, confidence, expected float64) models.PaymentValidation {
	if !ValidReferenceFormat(reference) {
		return models.PaymentValidation{Reason: "Reference number must be 7-16 digits"}
	}
	if amount == nil || *amount <= 0 {
		return models.PaymentValidation{Reason: "Invalid amount"}
	}
	// Epsilon absorbs float error at exactly one cent; nothing past a cent passes.
	if math.Abs(*amount-expected) > amountTolerance+amountEpsilon {
		return models.PaymentValidation{Reason: fmt.Sprintf("Amount mismatch: found ₱%.2f, expected ₱%.2f", *amount, expected)}
	}
	if confidence < minPaymentConfidence {
		return models.PaymentValidation{Reason: fmt.Sprintf("Low confidence: %.2f", confidence)}
	}
	return models.PaymentValidation{Accepted: true}
}
