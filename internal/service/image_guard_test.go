package service

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/imaging"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), uint8(x ^ y), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageGuardValidate(t *testing.T) {
	guard := NewImageGuard(1024*1024, imaging.Options{})
	small := pngBytes(t, 4, 4)

	cases := []struct {
		name    string
		upload  *ReceiptUpload
		message string
	}{
		{"missing", nil, "No file provided"},
		{"no filename", &ReceiptUpload{Data: small}, "No file provided"},
		{"too large", &ReceiptUpload{Filename: "r.png", ContentType: "image/png", Data: make([]byte, 1024*1024+1)}, "Image size must be less than 1MB"},
		{"wrong type", &ReceiptUpload{Filename: "r.gif", ContentType: "image/gif", Data: small}, "Only JPEG and PNG images are allowed"},
		{"sniffed type", &ReceiptUpload{Filename: "r", Data: small}, ""},
		{"jpg alias", &ReceiptUpload{Filename: "r.jpg", ContentType: "image/jpg", Data: small}, ""},
		{"declared png with text bytes", &ReceiptUpload{Filename: "r.png", ContentType: "image/png", Data: []byte("not really an image at all")}, "Only JPEG and PNG images are allowed"},
		{"octet stream text", &ReceiptUpload{Filename: "r", ContentType: "application/octet-stream", Data: []byte("%PDF-1.4")}, "Only JPEG and PNG images are allowed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := guard.Validate(tc.upload)
			if tc.message == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
			assert.Equal(t, tc.message, appErr.Message)
		})
	}
}

func TestImageGuardPrepareShrinksLargeImages(t *testing.T) {
	guard := NewImageGuard(0, imaging.Options{MaxWidth: 100, MaxHeight: 100, Quality: 80})
	original := pngBytes(t, 400, 300)

	out, err := guard.Prepare(&ReceiptUpload{Filename: "r.png", ContentType: "image/png", Data: original})
	require.NoError(t, err)
	assert.Less(t, len(out), len(original))

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.LessOrEqual(t, cfg.Width, 100)
}

func TestImageGuardPrepareKeepsUndecodableBytes(t *testing.T) {
	guard := NewImageGuard(0, imaging.Options{})
	data := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{1}, 64)...)

	out, err := guard.Prepare(&ReceiptUpload{Filename: "r.png", ContentType: "image/png", Data: data})
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
