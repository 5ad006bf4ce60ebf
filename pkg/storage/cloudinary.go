package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// ImageObject describes an image stored in the external object store.
type ImageObject struct {
	URL string
	Key string
}

// CloudinaryStore uploads receipt images to Cloudinary.
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryStore builds a store from a CLOUDINARY_URL style connection string.
// An empty URL returns nil so callers fall back to inline storage.
func NewCloudinaryStore(url, folder string) (*CloudinaryStore, error) {
	if url == "" {
		return nil, nil
	}
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld, folder: folder}, nil
}

// UploadImage stores b under publicID and returns the secure URL and public id.
func (s *CloudinaryStore) UploadImage(ctx context.Context, publicID string, b []byte) (*ImageObject, error) {
	if s == nil || s.cld == nil {
		return nil, fmt.Errorf("cloudinary not configured")
	}
	res, err := s.cld.Upload.Upload(ctx, bytes.NewReader(b), uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     publicID,
		ResourceType: "image",
	})
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("upload image: %s", res.Error.Message)
	}
	return &ImageObject{URL: res.SecureURL, Key: res.PublicID}, nil
}
