package service

import (
	"fmt"
	"net/http"
	"strings"

	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/imaging"
)

const defaultReceiptMaxBytes int64 = 5 * 1024 * 1024

var declaredReceiptTypes = map[string]struct{}{
	"image/jpeg":               {},
	"image/png":                {},
	"image/jpg":                {},
	"application/octet-stream": {},
	"":                         {},
}

// ImageMIME sniffs data and returns image/jpeg or image/png, or "" for anything else.
func ImageMIME(data []byte) string {
	switch sniffed := http.DetectContentType(data); sniffed {
	case "image/jpeg", "image/png":
		return sniffed
	default:
		return ""
	}
}

// ReceiptUpload is a receipt image as received from a multipart form.
type ReceiptUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ImageGuard validates receipt uploads and shrinks them before storage or extraction.
type ImageGuard struct {
	maxBytes int64
	opts     imaging.Options
}

// NewImageGuard builds a guard; zero values fall back to 5MB and 800x600 at quality 85.
func NewImageGuard(maxBytes int64, opts imaging.Options) *ImageGuard {
	if maxBytes <= 0 {
		maxBytes = defaultReceiptMaxBytes
	}
	if opts.MaxWidth <= 0 || opts.MaxHeight <= 0 {
		opts.MaxWidth, opts.MaxHeight = imaging.DefaultOptions.MaxWidth, imaging.DefaultOptions.MaxHeight
	}
	if opts.Quality <= 0 {
		opts.Quality = imaging.DefaultOptions.Quality
	}
	return &ImageGuard{maxBytes: maxBytes, opts: opts}
}

// Validate checks presence and size, then requires both the declared type and
// the sniffed bytes to be JPEG or PNG.
func (g *ImageGuard) Validate(upload *ReceiptUpload) error {
	if upload == nil || upload.Filename == "" || len(upload.Data) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "No file provided")
	}
	if int64(len(upload.Data)) > g.maxBytes {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("Image size must be less than %dMB", g.maxBytes/(1024*1024)))
	}
	declared := strings.ToLower(strings.TrimSpace(upload.ContentType))
	if _, ok := declaredReceiptTypes[declared]; !ok || ImageMIME(upload.Data) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "Only JPEG and PNG images are allowed")
	}
	return nil
}

// Prepare validates the upload and returns the bytes to store and send for reading.
// Compression never fails the request; the original bytes are used instead.
func (g *ImageGuard) Prepare(upload *ReceiptUpload) ([]byte, error) {
	if err := g.Validate(upload); err != nil {
		return nil, err
	}
	return imaging.Compress(upload.Data, g.opts), nil
}
