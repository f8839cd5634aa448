package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// MaxImageSize is the per-file upload limit.
const MaxImageSize = 10 << 20 // 10 MiB

// signedURLTTL matches the display-URL lifetime the UI expects.
const signedURLTTL = 7 * 24 * time.Hour

// StorageService stores todo image attachments in a Cloud Storage bucket.
// When the bucket is not configured every operation degrades to a no-op so
// the rest of the app keeps working without attachments.
type StorageService struct {
	client *storage.Client
	bucket string
}

func NewStorageService(ctx context.Context, bucket string) (*StorageService, error) {
	if bucket == "" {
		log.Println("Image bucket is not configured; attachments are disabled")
		return &StorageService{}, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %v", err)
	}
	return &StorageService{client: client, bucket: bucket}, nil
}

func (s *StorageService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Enabled reports whether attachments are configured.
func (s *StorageService) Enabled() bool {
	return s.client != nil
}

// Upload stores one image and returns its object key. Non-image content
// types and files over MaxImageSize are rejected; callers uploading a batch
// skip the rejected file and continue.
func (s *StorageService) Upload(ctx context.Context, r io.Reader, filename, contentType string, size int64, todoID string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("image storage is not configured")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("not an image: %s", contentType)
	}
	if size > MaxImageSize {
		return "", fmt.Errorf("file too large: %d bytes (max %d)", size, MaxImageSize)
	}

	ext := "jpg"
	if i := strings.LastIndex(filename, "."); i >= 0 && i < len(filename)-1 {
		ext = filename[i+1:]
	}
	key := fmt.Sprintf("todos/%s/%d.%s", todoID, time.Now().UnixMilli(), ext)

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload image: %v", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload image: %v", err)
	}

	return key, nil
}

// DisplayURL returns a signed URL for an image. It accepts either a raw
// object key or a previously-issued URL and extracts the key from the
// latter.
func (s *StorageService) DisplayURL(keyOrURL string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("image storage is not configured")
	}

	key := s.extractKey(keyOrURL)
	signed, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(signedURLTTL),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign image URL: %v", err)
	}
	return signed, nil
}

// Delete removes an image object, accepting a key or a URL.
func (s *StorageService) Delete(ctx context.Context, keyOrURL string) error {
	if s.client == nil {
		return fmt.Errorf("image storage is not configured")
	}

	key := s.extractKey(keyOrURL)
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete image: %v", err)
	}
	return nil
}

// extractKey turns a full URL back into the object key. Keys pass through
// unchanged.
func (s *StorageService) extractKey(keyOrURL string) string {
	if !strings.HasPrefix(keyOrURL, "http://") && !strings.HasPrefix(keyOrURL, "https://") {
		return keyOrURL
	}
	u, err := url.Parse(keyOrURL)
	if err != nil {
		return keyOrURL
	}
	key := strings.TrimPrefix(u.Path, "/")
	if s.bucket != "" {
		key = strings.TrimPrefix(key, s.bucket+"/")
	}
	return key
}
