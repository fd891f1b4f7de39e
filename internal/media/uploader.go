// Package media fetches post images and uploads them as Bluesky blobs,
// shrinking them first when they exceed the blob size limit.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/blackmichael/bsky-autoposter/internal/bluesky"
	"github.com/blackmichael/bsky-autoposter/internal/metrics"
)

// MaxBlobSize is the largest image accepted as a post thumbnail (976.56 KiB).
const MaxBlobSize = 999_997

// maxDownloadSize bounds how much of a remote image is read.
const maxDownloadSize = 32 << 20

const (
	mimeJPEG = "image/jpeg"
	mimePNG  = "image/png"
	mimeGIF  = "image/gif"
	mimeWebP = "image/webp"
	mimeSVG  = "image/svg+xml"
)

// Failure reasons of Upload.
var (
	ErrDownload    = errors.New("image download failed")
	ErrUnknownType = errors.New("could not determine image type")
	ErrInvalidType = errors.New("unsupported image type")
	ErrCompress    = errors.New("image compression failed")
	ErrTooLarge    = errors.New("image too large after compression")
	ErrUpload      = errors.New("image upload failed")
)

var allowedTypes = map[string]bool{
	mimeJPEG: true,
	mimePNG:  true,
	mimeGIF:  true,
	mimeWebP: true,
	mimeSVG:  true,
}

var extensionTypes = map[string]string{
	".jpg":  mimeJPEG,
	".jpeg": mimeJPEG,
	".png":  mimePNG,
	".gif":  mimeGIF,
	".webp": mimeWebP,
	".svg":  mimeSVG,
}

// BlobUploader stores raw bytes as a blob.
type BlobUploader interface {
	UploadBlob(ctx context.Context, data []byte, mimeType string) (*bluesky.BlobRef, error)
}

// Uploader turns image URLs into blob references.
type Uploader struct {
	blobs      BlobUploader
	httpClient *http.Client
	maxSize    int
	maxFetch   int64
	logger     *slog.Logger
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithHTTPClient replaces the client used to download images.
func WithHTTPClient(hc *http.Client) Option {
	return func(u *Uploader) { u.httpClient = hc }
}

// WithMaxSize overrides MaxBlobSize.
func WithMaxSize(n int) Option {
	return func(u *Uploader) { u.maxSize = n }
}

// NewUploader returns an Uploader storing blobs through blobs.
func NewUploader(blobs BlobUploader, logger *slog.Logger, opts ...Option) *Uploader {
	u := &Uploader{
		blobs:      blobs,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxSize:    MaxBlobSize,
		maxFetch:   maxDownloadSize,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload downloads the image at imageURL, compresses it once if it is over
// the size limit, and uploads it. Every failure wraps one of the Err values
// of this package.
func (u *Uploader) Upload(ctx context.Context, imageURL string) (*bluesky.BlobRef, error) {
	blob, err := u.upload(ctx, imageURL)
	metrics.ImageUploadsTotal.WithLabelValues(uploadResult(err)).Inc()
	return blob, err
}

func (u *Uploader) upload(ctx context.Context, imageURL string) (*bluesky.BlobRef, error) {
	data, contentType, err := u.download(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}

	mimeType, err := detectType(contentType, imageURL)
	if err != nil {
		return nil, err
	}

	if len(data) > u.maxSize {
		original := len(data)
		data, mimeType, err = Compress(data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCompress, err)
		}
		u.logger.DebugContext(ctx, "compressed image", "url", imageURL, "from_bytes", original, "to_bytes", len(data))
		if len(data) > u.maxSize {
			return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), u.maxSize)
		}
	}

	blob, err := u.blobs.UploadBlob(ctx, data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	return blob, nil
}

func (u *Uploader) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, u.maxFetch+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > u.maxFetch {
		return nil, "", fmt.Errorf("image exceeds download limit of %d bytes", u.maxFetch)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// detectType returns the MIME type from the Content-Type header, or from the
// URL's file extension when the header is absent.
func detectType(contentType, imageURL string) (string, error) {
	var mimeType string
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrUnknownType, err)
		}
		mimeType = mt
	} else {
		ext := ""
		if u, err := url.Parse(imageURL); err == nil {
			ext = strings.ToLower(path.Ext(u.Path))
		}
		mt, ok := extensionTypes[ext]
		if !ok {
			return "", fmt.Errorf("%w: no content type and extension %q", ErrUnknownType, ext)
		}
		mimeType = mt
	}

	if mimeType == "image/jpg" {
		mimeType = mimeJPEG
	}
	if !allowedTypes[mimeType] {
		return "", fmt.Errorf("%w: %s", ErrInvalidType, mimeType)
	}
	return mimeType, nil
}

func uploadResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDownload):
		return "download_failed"
	case errors.Is(err, ErrUnknownType), errors.Is(err, ErrInvalidType):
		return "invalid_type"
	case errors.Is(err, ErrCompress), errors.Is(err, ErrTooLarge):
		return "too_large"
	default:
		return "upload_failed"
	}
}
