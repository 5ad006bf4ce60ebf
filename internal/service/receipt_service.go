package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

// ReceiptReading is an extraction plus the payment decision for it.
type ReceiptReading struct {
	Receipt    models.ExtractedReceipt  `json:"receipt"`
	Validation models.PaymentValidation `json:"validation"`
}

// ReceiptService exposes the receipt checks used outside of submission.
type ReceiptService struct {
	guard          *ImageGuard
	extractor      *ReceiptExtractor
	expectedAmount float64
}

// NewReceiptService constructs a ReceiptService.
func NewReceiptService(guard *ImageGuard, extractor *ReceiptExtractor, expectedAmount float64) *ReceiptService {
	if expectedAmount <= 0 {
		expectedAmount = DefaultExpectedAmount
	}
	return &ReceiptService{guard: guard, extractor: extractor, expectedAmount: expectedAmount}
}

// Extract reads the receipt and validates the payment against the expected fee.
func (s *ReceiptService) Extract(ctx context.Context, upload *ReceiptUpload) (*ReceiptReading, error) {
	image, err := s.guard.Prepare(upload)
	if err != nil {
		return nil, err
	}
	receipt, err := s.extractor.Extract(ctx, image)
	if err != nil {
		return nil, err
	}
	return &ReceiptReading{
		Receipt:    *receipt,
		Validation: ValidatePayment(receipt.Amount, receipt.ReferenceNumber, receipt.Confidence, s.expectedAmount),
	}, nil
}

// ValidateReference compares the reference printed on the receipt with the one typed by the student.
func (s *ReceiptService) ValidateReference(ctx context.Context, upload *ReceiptUpload, reference string) (*models.ReferenceMatch, error) {
	if upload == nil || len(upload.Data) == 0 || strings.TrimSpace(reference) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Missing receipt image or reference number")
	}
	image, err := s.guard.Prepare(upload)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("Invalid receipt image: %s", appErrors.FromError(err).Message))
	}
	receipt, err := s.extractor.Extract(ctx, image)
	if err != nil {
		appErr := appErrors.FromError(err)
		return nil, appErrors.Wrap(err, appErr.Code, appErr.Status, fmt.Sprintf("AI processing failed: %s", appErr.Message))
	}
	match := MatchReference(receipt.ReferenceNumber, reference, receipt.Confidence)
	return &match, nil
}

// Health reports whether the model host is reachable.
func (s *ReceiptService) Health(ctx context.Context) models.AIHealth {
	return s.extractor.Health(ctx)
}
