package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/clearance-api/internal/models"
)

const (
	minExtractedReferenceDigits = 5
	maxExtractedReferenceDigits = 16
	maxReferenceLengthDrift     = 2
	unreliableConfidence        = 0.3
)

// MatchReference compares the reference read from a receipt with the one the student typed.
// Both sides are reduced to digits with leading zeros removed. Security gates on the extracted
// value run before equality, and only an exact match is accepted regardless of confidence.
func MatchReference(extracted, provided string, confidence float64) models.ReferenceMatch {
	extracted = strings.TrimSpace(extracted)
	provided = strings.TrimSpace(provided)
	extractedDigits := digitsOnly(extracted)
	providedDigits := digitsOnly(provided)
	result := models.ReferenceMatch{
		ExtractedReference: extracted,
		ProvidedReference:  provided,
		ExtractedClean:     stripLeadingZeros(extractedDigits),
		ProvidedClean:      stripLeadingZeros(providedDigits),
		Confidence:         confidence,
	}
	if result.ExtractedReference == "" {
		result.ExtractedReference = "Not found"
	}

	drift := len(result.ExtractedClean) - len(result.ProvidedClean)
	if drift < 0 {
		drift = -drift
	}

	switch {
	case result.ExtractedClean == "0":
		result.Message = "No reference number could be read from the receipt"
	case len(result.ExtractedClean) < minExtractedReferenceDigits:
		result.Message = fmt.Sprintf("Reference read from the receipt is too short (%d digits)", len(result.ExtractedClean))
	case len(result.ExtractedClean) > maxExtractedReferenceDigits:
		result.Message = fmt.Sprintf("Reference read from the receipt is too long (%d digits)", len(result.ExtractedClean))
	case drift > maxReferenceLengthDrift:
		result.Message = fmt.Sprintf("Reference length mismatch: receipt has %d digits, you entered %d", len(result.ExtractedClean), len(result.ProvidedClean))
	case result.ExtractedClean == result.ProvidedClean:
		result.Match = true
		result.Message = "Reference number matches the receipt"
	case confidence < unreliableConfidence:
		result.Unreliable = true
		result.Message = fmt.Sprintf("Receipt could not be read reliably (confidence %.2f); reference %s does not match %s", confidence, result.ExtractedClean, result.ProvidedClean)
	default:
		result.Message = fmt.Sprintf("Reference mismatch: receipt shows %s, you entered %s", result.ExtractedClean, result.ProvidedClean)
	}
	return result
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripLeadingZeros(digits string) string {
	trimmed := strings.TrimLeft(digits, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}
