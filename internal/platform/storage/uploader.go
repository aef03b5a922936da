package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"

	domain "github.com/catalog-console/api/internal/domain"
)

const (
	defaultMaxImageBytes  = int64(10 * 1024 * 1024) // 10 MiB
	defaultUploadTimeout  = 30 * time.Second
	productImageCacheCtrl = "public, max-age=31536000, immutable"
)

var (
	// ErrImageEmpty indicates the pending image carries no content.
	ErrImageEmpty = errors.New("storage: image is empty")
	// ErrImageTooLarge indicates the image exceeds the configured size limit.
	ErrImageTooLarge = errors.New("storage: image exceeds size limit")
	// ErrImageTypeNotAllowed indicates the content type is not an accepted image format.
	ErrImageTypeNotAllowed = errors.New("storage: image content type not allowed")
)

// allowedImageTypes maps accepted content types to the extension used in object names.
var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/avif": ".avif",
}

// ObjectWriter stores a finished object in a bucket.
type ObjectWriter interface {
	WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error
}

// GCSObjectWriter writes objects through a Cloud Storage client.
type GCSObjectWriter struct {
	client *gcs.Client
}

// NewGCSObjectWriter constructs an ObjectWriter backed by the provided Cloud Storage client.
func NewGCSObjectWriter(client *gcs.Client) (*GCSObjectWriter, error) {
	if client == nil {
		return nil, errors.New("storage writer: client is required")
	}
	return &GCSObjectWriter{client: client}, nil
}

// WriteObject uploads data in one pass. A failed write aborts the object instead of finalising it.
func (w *GCSObjectWriter) WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error {
	if w == nil || w.client == nil {
		return errors.New("storage writer: client is not initialised")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := w.client.Bucket(bucket).Object(object).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = productImageCacheCtrl
	writer.ChunkSize = 0
	if _, err := writer.Write(data); err != nil {
		cancel()
		_ = writer.Close()
		return fmt.Errorf("storage writer: write %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("storage writer: finalise %s: %w", object, err)
	}
	return nil
}

// ImageUploader stores product images and returns their public URL.
type ImageUploader struct {
	writer        ObjectWriter
	bucket        string
	publicBaseURL string
	prefix        string
	maxBytes      int64
	timeout       time.Duration
	newID         func() string
}

// UploaderOption customises ImageUploader construction.
type UploaderOption func(*ImageUploader)

// WithMaxImageBytes caps the accepted image size.
func WithMaxImageBytes(limit int64) UploaderOption {
	return func(u *ImageUploader) {
		if limit > 0 {
			u.maxBytes = limit
		}
	}
}

// WithUploadTimeout bounds a single upload. Zero keeps the default.
func WithUploadTimeout(timeout time.Duration) UploaderOption {
	return func(u *ImageUploader) {
		if timeout > 0 {
			u.timeout = timeout
		}
	}
}

// WithPublicBaseURL overrides the URL prefix returned for stored objects.
func WithPublicBaseURL(base string) UploaderOption {
	return func(u *ImageUploader) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			u.publicBaseURL = trimmed
		}
	}
}

// WithObjectPrefix changes the object prefix images are written under.
func WithObjectPrefix(prefix string) UploaderOption {
	return func(u *ImageUploader) {
		u.prefix = prefix
	}
}

// WithUploadIDGenerator injects the generator for per-upload path segments (primarily for tests).
func WithUploadIDGenerator(fn func() string) UploaderOption {
	return func(u *ImageUploader) {
		if fn != nil {
			u.newID = fn
		}
	}
}

// NewImageUploader constructs an uploader writing into bucket.
func NewImageUploader(writer ObjectWriter, bucket string, opts ...UploaderOption) (*ImageUploader, error) {
	if writer == nil {
		return nil, errors.New("image uploader: writer is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("image uploader: bucket is required")
	}
	uploader := &ImageUploader{
		writer:        writer,
		bucket:        bucket,
		publicBaseURL: "https://storage.googleapis.com/" + bucket,
		maxBytes:      defaultMaxImageBytes,
		timeout:       defaultUploadTimeout,
		newID:         func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(uploader)
		}
	}
	return uploader, nil
}

// UploadImage validates the image and writes it under a fresh object path.
func (u *ImageUploader) UploadImage(ctx context.Context, image domain.PendingImage) (string, error) {
	size := int64(len(image.Data))
	if size == 0 {
		return "", ErrImageEmpty
	}
	if size > u.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (limit %d)", ErrImageTooLarge, size, u.maxBytes)
	}

	contentType := resolveImageContentType(image.ContentType, image.Data)
	extension, ok := allowedImageTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrImageTypeNotAllowed, contentType)
	}

	object, err := ImageObjectPath(u.prefix, u.newID(), sanitizeFileName(image.FileName, extension))
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	if err := u.writer.WriteObject(ctx, u.bucket, object, contentType, image.Data); err != nil {
		return "", err
	}
	return u.publicBaseURL + "/" + object, nil
}

// resolveImageContentType trusts a declared image type and sniffs the bytes otherwise.
func resolveImageContentType(declared string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(declared)); err == nil {
		mediaType = strings.ToLower(mediaType)
		if mediaType == "image/jpg" {
			mediaType = "image/jpeg"
		}
		if mediaType != "application/octet-stream" {
			return mediaType
		}
	}
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return sniffed
}

func sanitizeFileName(name, extension string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune('-')
		}
	}
	cleaned := strings.Trim(b.String(), "-_")
	if cleaned == "" {
		cleaned = "image"
	}
	return cleaned + extension
}
