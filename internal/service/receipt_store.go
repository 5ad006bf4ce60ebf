package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/pkg/storage"
)

type imageUploader interface {
	UploadImage(ctx context.Context, publicID string, b []byte) (*storage.ImageObject, error)
}

// StoredReceipt says where a receipt image ended up. Exactly one of URL or Inline is set.
type StoredReceipt struct {
	URL    *string
	Key    *string
	Inline *string
}

// ReceiptStore keeps receipt images in the object store and falls back to inline base64.
type ReceiptStore struct {
	uploader imageUploader
	logger   *zap.Logger
	now      func() time.Time
}

// NewReceiptStore builds a store. A nil uploader always stores inline.
func NewReceiptStore(uploader imageUploader, logger *zap.Logger) *ReceiptStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptStore{uploader: uploader, logger: logger, now: time.Now}
}

// Save uploads image for studentID. Upload failures are logged and never returned.
func (s *ReceiptStore) Save(ctx context.Context, studentID string, image []byte) StoredReceipt {
	if s.uploader != nil {
		publicID := fmt.Sprintf("request_%s_%s", studentID, s.now().UTC().Format("20060102_150405"))
		obj, err := s.uploader.UploadImage(ctx, publicID, image)
		if err == nil && obj != nil && obj.URL != "" {
			url, key := obj.URL, obj.Key
			return StoredReceipt{URL: &url, Key: &key}
		}
		s.logger.Warn("receipt upload failed, storing inline", zap.String("student_id", studentID), zap.Error(err))
	}
	inline := base64.StdEncoding.EncodeToString(image)
	return StoredReceipt{Inline: &inline}
}
