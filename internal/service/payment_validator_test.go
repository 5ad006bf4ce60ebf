package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func amountPtr(v float64) *float64 { return &v }

func TestValidatePayment(t *testing.T) {
	cases := []struct {
		name       string
		amount     *float64
		ref        string
		confidence float64
		accepted   bool
		reason     string
	}{
		{"exact match", amountPtr(50.00), "1234567", 0.85, true, ""},
		{"cent tolerance", amountPtr(50.01), "1234567", 0.99, true, ""},
		{"cent under", amountPtr(49.99), "1234567", 0.99, true, ""},
		{"just past a cent", amountPtr(50.014), "1234567", 0.99, false, "Amount mismatch: found ₱50.01, expected ₱50.00"},
		{"just past a cent below", amountPtr(49.986), "1234567", 0.99, false, "Amount mismatch: found ₱49.99, expected ₱50.00"},
		{"two cents off", amountPtr(50.02), "1234567", 0.99, false, "Amount mismatch: found ₱50.02, expected ₱50.00"},
		{"short reference", amountPtr(50.00), "123456", 0.99, false, "Reference number must be 7-16 digits"},
		{"long reference", amountPtr(50.00), "12345678901234567", 0.99, false, "Reference number must be 7-16 digits"},
		{"non digit reference", amountPtr(50.00), "12345a7", 0.99, false, "Reference number must be 7-16 digits"},
		{"missing amount", nil, "1234567", 0.99, false, "Invalid amount"},
		{"zero amount", amountPtr(0), "1234567", 0.99, false, "Invalid amount"},
		{"low confidence", amountPtr(50.00), "1234567", 0.5, false, "Low confidence: 0.50"},
		{"reference checked first", nil, "", 0, false, "Reference number must be 7-16 digits"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidatePayment(tc.amount, tc.ref, tc.confidence, DefaultExpectedAmount)
			assert.Equal(t, tc.accepted, got.Accepted)
			assert.Equal(t, tc.reason, got.Reason)
		})
	}
}
