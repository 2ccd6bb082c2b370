package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	pkgerrors "github.com/yungbote/coursecatalog-backend/internal/pkg/errors"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/httpx"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
)

const (
	blobTimeout = 2 * time.Minute

	emulatorDeleteAttempts = 3
	emulatorRetryBase      = 100 * time.Millisecond
	emulatorRetryMax       = 2 * time.Second
)

// BlobStore holds lesson attachments (PDF files) by object key.
type BlobStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
	// Download fails with pkgerrors.ErrNotFound when the object does not exist.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete treats a missing object as already deleted.
	Delete(ctx context.Context, key string) error
}

type blobStore struct {
	log          *logger.Logger
	client       *storage.Client
	bucket       string
	mode         ObjectStorageMode
	emulatorHost string
	httpClient   *http.Client
}

func NewBlobStore(log *logger.Logger) (BlobStore, error) {
	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	return NewBlobStoreWithConfig(context.Background(), log, cfg)
}

func NewBlobStoreWithConfig(ctx context.Context, log *logger.Logger, cfg ObjectStorageConfig) (BlobStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateObjectStorageConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	client, err := newStorageClientForMode(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog := log.With("service", "BlobStore")
	serviceLog.Info(
		"Object storage initialized",
		"mode", cfg.Mode,
		"mode_source", cfg.ModeSource(),
		"emulator_host", cfg.EmulatorHost,
		"bucket", cfg.Bucket,
	)
	return &blobStore{
		log:          serviceLog,
		client:       client,
		bucket:       cfg.Bucket,
		mode:         cfg.Mode,
		emulatorHost: strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"),
		httpClient:   http.DefaultClient,
	}, nil
}

func newStorageClientForMode(ctx context.Context, cfg ObjectStorageConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		// the storage client picks the emulator endpoint up from the environment
		endpoint := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{
			Code: ObjectStorageConfigErrorInvalidMode,
			Mode: string(cfg.Mode),
		}
	}
}

func (bs *blobStore) isEmulatorMode() bool {
	return bs.mode == ObjectStorageModeGCSEmulator && bs.emulatorHost != ""
}

func (bs *blobStore) emulatorObjectURL(key string, media bool) string {
	u := fmt.Sprintf("%s/storage/v1/b/%s/o/%s", bs.emulatorHost, url.PathEscape(bs.bucket), url.PathEscape(key))
	if media {
		u += "?alt=media"
	}
	return u
}

func (bs *blobStore) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: blob key is required", pkgerrors.ErrInvalidArgument)
	}
	ctx, cancel := context.WithTimeout(ctx, blobTimeout)
	defer cancel()

	w := bs.client.Bucket(bs.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	bs.log.Debug("Blob uploaded", "key", key, "content_type", contentType)
	return nil
}

// readCloserWithCancel keeps the download context alive until the reader is closed.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (bs *blobStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx2, cancel := context.WithTimeout(ctx, blobTimeout)
	if bs.isEmulatorMode() {
		req, err := http.NewRequestWithContext(ctx2, http.MethodGet, bs.emulatorObjectURL(key, true), nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed creating emulator download request: %w", err)
		}
		resp, err := bs.httpClient.Do(req)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed emulator download request: %w", err)
		}
		switch resp.StatusCode {
		case http.StatusOK:
			return &readCloserWithCancel{ReadCloser: resp.Body, cancel: cancel}, nil
		case http.StatusNotFound:
			_ = resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("blob %q: %w", key, pkgerrors.ErrNotFound)
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("emulator download failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}

	r, err := bs.client.Bucket(bs.bucket).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("blob %q: %w", key, pkgerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (bs *blobStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, blobTimeout)
	defer cancel()

	if bs.isEmulatorMode() {
		for attempt := 1; ; attempt++ {
			wait, err := bs.emulatorDelete(ctx, key)
			if err == nil || attempt >= emulatorDeleteAttempts || ctx.Err() != nil || !httpx.IsRetryableError(err) {
				return err
			}
			bs.log.Debug("Retrying emulator delete", "key", key, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return err
			case <-time.After(httpx.JitterSleep(wait)):
			}
		}
	}

	err := bs.client.Bucket(bs.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object: %w", err)
	}
	return nil
}

type emulatorStatusError struct {
	op     string
	status int
	body   string
}

func (e *emulatorStatusError) Error() string {
	return fmt.Sprintf("emulator %s failed: status=%d body=%s", e.op, e.status, e.body)
}

func (e *emulatorStatusError) HTTPStatusCode() int { return e.status }

// emulatorDelete issues one DELETE and returns how long to back off before a retry.
func (bs *blobStore) emulatorDelete(ctx context.Context, key string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, bs.emulatorObjectURL(key, false), nil)
	if err != nil {
		return 0, fmt.Errorf("failed creating emulator delete request: %w", err)
	}
	resp, err := bs.httpClient.Do(req)
	if err != nil {
		return emulatorRetryBase, fmt.Errorf("failed emulator delete request: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return 0, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		wait := httpx.RetryAfterDuration(resp, emulatorRetryBase, emulatorRetryMax)
		return wait, &emulatorStatusError{op: "delete", status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
}
