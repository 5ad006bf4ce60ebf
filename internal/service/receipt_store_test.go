package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/pkg/storage"
)

type stubUploader struct {
	publicID string
	err      error
}

func (u *stubUploader) UploadImage(ctx context.Context, publicID string, b []byte) (*storage.ImageObject, error) {
	u.publicID = publicID
	if u.err != nil {
		return nil, u.err
	}
	return &storage.ImageObject{URL: "https://cdn.example.com/" + publicID, Key: "receipts/" + publicID}, nil
}

func TestReceiptStoreUploads(t *testing.T) {
	uploader := &stubUploader{}
	store := NewReceiptStore(uploader, nil)
	store.now = func() time.Time { return time.Date(2024, 6, 1, 8, 30, 15, 0, time.UTC) }

	saved := store.Save(context.Background(), "s1", []byte("img"))
	assert.Equal(t, "request_s1_20240601_083015", uploader.publicID)
	require.NotNil(t, saved.URL)
	assert.Equal(t, "receipts/request_s1_20240601_083015", *saved.Key)
	assert.Nil(t, saved.Inline)
}

func TestReceiptStoreFallsBackInline(t *testing.T) {
	store := NewReceiptStore(&stubUploader{err: errors.New("offline")}, nil)
	saved := store.Save(context.Background(), "s1", []byte("img"))
	assert.Nil(t, saved.URL)
	require.NotNil(t, saved.Inline)
	assert.Equal(t, "aW1n", *saved.Inline)

	saved = NewReceiptStore(nil, nil).Save(context.Background(), "s1", []byte("img"))
	require.NotNil(t, saved.Inline)
}
