package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

// ScanArchive stores images the classifier was unsure about so they can be
// labelled later.
type ScanArchive interface {
	Put(ctx context.Context, key string, img []byte, meta map[string]string) (string, error)
	Close() error
}

type objectWriterFunc func(ctx context.Context, bucket, object string) objectWriter

type objectWriter interface {
	io.WriteCloser
	setAttrs(contentType string, meta map[string]string)
}

type gcsWriter struct{ *storage.Writer }

func (w gcsWriter) setAttrs(contentType string, meta map[string]string) {
	w.ContentType = contentType
	w.Metadata = meta
}

type gcsArchive struct {
	log     *logger.Logger
	bucket  string
	prefix  string
	timeout time.Duration
	writer  objectWriterFunc
	closeFn func() error
}

// NewScanArchive opens a GCS client for bucket. ARCHIVE_STORAGE_MODE (or a
// bare STORAGE_EMULATOR_HOST) switches to an unauthenticated emulator.
func NewScanArchive(ctx context.Context, log *logger.Logger, bucket, prefix string) (ScanArchive, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("scan archive bucket required")
	}
	mode, err := ArchiveStorageFromEnv()
	if err != nil {
		return nil, err
	}
	var opts []option.ClientOption
	if mode.Emulated() {
		// The storage client reads STORAGE_EMULATOR_HOST itself.
		opts = []option.ClientOption{option.WithoutAuthentication()}
		log.Info("scan archive using storage emulator", "host", mode.EmulatorHost, "inferred", mode.Inferred)
	} else {
		opts = append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	writer := func(ctx context.Context, bucket, object string) objectWriter {
		return gcsWriter{client.Bucket(bucket).Object(object).NewWriter(ctx)}
	}
	return newArchive(log, bucket, prefix, writer, client.Close), nil
}

func newArchive(log *logger.Logger, bucket, prefix string, writer objectWriterFunc, closeFn func() error) *gcsArchive {
	return &gcsArchive{
		log:     log.With("service", "gcp.ScanArchive", "bucket", bucket),
		bucket:  bucket,
		prefix:  strings.Trim(strings.TrimSpace(prefix), "/"),
		timeout: 10 * time.Second,
		writer:  writer,
		closeFn: closeFn,
	}
}

// Put uploads img under prefix/key and returns the gs:// URI. The object
// extension is derived from the sniffed content type.
func (a *gcsArchive) Put(ctx context.Context, key string, img []byte, meta map[string]string) (string, error) {
	if len(img) == 0 {
		return "", fmt.Errorf("empty image")
	}
	contentType := http.DetectContentType(img)
	object := path.Join(a.prefix, strings.Trim(key, "/")) + extensionFor(contentType)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	w := a.writer(ctx, a.bucket, object)
	w.setAttrs(contentType, meta)
	if _, err := io.Copy(w, bytes.NewReader(img)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write scan to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	uri := fmt.Sprintf("gs://%s/%s", a.bucket, object)
	a.log.Debug("scan archived", "object", object, "bytes", len(img))
	return uri, nil
}

func (a *gcsArchive) Close() error {
	if a == nil || a.closeFn == nil {
		return nil
	}
	return a.closeFn()
}

func extensionFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(contentType, "image/gif"):
		return ".gif"
	case strings.HasPrefix(contentType, "image/bmp"):
		return ".bmp"
	default:
		return ".bin"
	}
}
