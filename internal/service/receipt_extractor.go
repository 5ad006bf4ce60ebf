package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/gemini"
)

const receiptCachePrefix = "receipt:extract:"

// receiptPrompt steers the model toward the reference printed below "ORIGINAL".
const receiptPrompt = "You are an expert at analyzing Philippine payment receipts, especially GCash and government receipts. Return ONLY valid JSON with these fields:\n" +
	"{\n" +
	"  \"amount\": \"number only, e.g. 50.00\",\n" +
	"  \"reference_number\": \"digits only, prefer 13-digit; else 7-16 digits\",\n" +
	"  \"raw_text\": \"all text you can read\",\n" +
	"  \"confidence_score\": \"0.0 to 1.0\"\n" +
	"}\n" +
	"CRITICAL: For reference_number, focus on these specific locations in Philippine receipts:\n" +
	"1. BELOW 'ORIGINAL' text - This is the MOST COMMON location for reference numbers in Philippine receipts\n" +
	"2. Look for numbers that appear directly under or near 'ORIGINAL' text\n" +
	"3. Check for numbers in red ink or highlighted areas\n" +
	"4. Look for transaction numbers, receipt numbers, or confirmation numbers\n" +
	"5. Numbers that look like: 6219902, 1234567890123, etc.\n" +
	"\n" +
	"Rules:\n" +
	"- Strip all currency symbols and commas from amount.\n" +
	"- For reference_number: DIGITS ONLY. Accept 7-16 digit sequences.\n" +
	"- PRIORITIZE numbers found below 'ORIGINAL' text\n" +
	"- Look for numbers that appear to be receipt/reference/transaction IDs\n" +
	"- If multiple numbers found, prefer the one below 'ORIGINAL' or the longest sequence\n" +
	"- If none found, return null.\n" +
	"- Be very thorough in scanning the entire receipt, especially the bottom section\n" +
	"- ONLY extract reference numbers that are clearly visible and readable\n" +
	"- DO NOT guess or make up reference numbers\n" +
	"- If the image is blurry or unclear, set confidence_score to 0.0\n" +
	"Respond with JSON only."

type receiptModel interface {
	GenerateFromImage(ctx context.Context, prompt, mimeType, imageBase64 string, gen gemini.GenerationConfig) (string, error)
}

type aiProber interface {
	Probe(ctx context.Context) gemini.ProbeResult
}

// ReceiptExtractor reads payment fields from a prepared receipt image.
type ReceiptExtractor struct {
	model    receiptModel
	prober   aiProber
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	cacheTTL time.Duration
	enabled  bool
}

// ReceiptExtractorOptions wires optional collaborators.
type ReceiptExtractorOptions struct {
	Prober   aiProber
	Cache    *CacheService
	Metrics  *MetricsService
	Logger   *zap.Logger
	CacheTTL time.Duration
	Disabled bool
}

// NewReceiptExtractor builds an extractor around a model client.
func NewReceiptExtractor(model receiptModel, opts ReceiptExtractorOptions) *ReceiptExtractor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptExtractor{
		model:    model,
		prober:   opts.Prober,
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		logger:   logger,
		cacheTTL: opts.CacheTTL,
		enabled:  !opts.Disabled && model != nil,
	}
}

// Enabled reports whether extraction can be attempted.
func (e *ReceiptExtractor) Enabled() bool {
	return e != nil && e.enabled
}

// Extract sends image to the model and recovers the receipt fields. Results are cached
// by image digest so a re-submitted screenshot does not cost another model call.
func (e *ReceiptExtractor) Extract(ctx context.Context, image []byte) (*models.ExtractedReceipt, error) {
	if !e.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "Receipt extraction is disabled")
	}
	sum := sha256.Sum256(image)
	key := receiptCachePrefix + hex.EncodeToString(sum[:])

	var cached models.ExtractedReceipt
	if hit, _ := e.cache.Get(ctx, key, &cached); hit {
		e.metrics.RecordExtraction("cached", 0)
		cached.Cached = true
		return &cached, nil
	}

	start := time.Now()
	text, err := e.model.GenerateFromImage(ctx, receiptPrompt, ImageMIME(image), base64.StdEncoding.EncodeToString(image), gemini.ReceiptGeneration)
	if err != nil {
		mapped, outcome := mapModelError(err)
		e.metrics.RecordExtraction(outcome, time.Since(start))
		e.logger.Warn("receipt extraction failed", zap.String("outcome", outcome), zap.Error(err))
		return nil, mapped
	}

	receipt, stage := ParseReceiptResponse(text)
	e.metrics.RecordExtraction(string(stage), time.Since(start))
	if stage == StageFailed {
		excerpt := text
		if len(excerpt) > 200 {
			excerpt = excerpt[:200]
		}
		return nil, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("AI processing failed: Invalid JSON from Gemini. Raw response: ```json %s```\n\nPlease try again in a few minutes. The AI service may be experiencing high traffic.", excerpt))
	}
	if stage != StageStrict {
		e.logger.Info("receipt response recovered", zap.String("stage", string(stage)))
	}

	_ = e.cache.Set(ctx, key, receipt, e.cacheTTL)
	return &receipt, nil
}

// Health probes network reachability of the model host.
func (e *ReceiptExtractor) Health(ctx context.Context) models.AIHealth {
	if e == nil || e.prober == nil {
		return models.AIHealth{Reachable: false, Message: "AI health probe not configured"}
	}
	res := e.prober.Probe(ctx)
	return models.AIHealth{Reachable: res.Reachable, Message: res.Message}
}

// mapModelError turns a client failure into the message students see and a metrics label.
func mapModelError(err error) (*appErrors.Error, string) {
	var gerr *gemini.Error
	if !errors.As(err, &gerr) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, err.Error()), "error"
	}
	outcome := string(gerr.Kind)
	unavailable := func(msg string) *appErrors.Error {
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, msg)
	}
	switch gerr.Kind {
	case gemini.KindNotConfigured:
		return unavailable("GEMINI_API_KEY not configured. Please set your Gemini API key in the app configuration."), outcome
	case gemini.KindDNS:
		return unavailable("AI service connection failed: Cannot resolve domain name. Please check your internet connection and DNS settings."), outcome
	case gemini.KindConnection:
		return unavailable("AI service connection failed. Please check your internet connection and try again."), outcome
	case gemini.KindTimeout:
		return unavailable("AI service request timed out. Please try again."), outcome
	case gemini.KindOverloaded:
		return unavailable("AI service is temporarily overloaded. Please try again in a few minutes."), outcome
	case gemini.KindRateLimited:
		return appErrors.Wrap(err, appErrors.ErrTooManyRequests.Code, appErrors.ErrTooManyRequests.Status, "Too many requests. Please wait a moment and try again."), outcome
	case gemini.KindBadRequest:
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "Invalid request. Please check your receipt image."), outcome
	case gemini.KindNoCandidates:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("No candidates in AI response: %v", gerr.Err)), outcome
	default:
		return unavailable(fmt.Sprintf("AI service error (%d). Please try again.", gerr.StatusCode)), outcome
	}
}
