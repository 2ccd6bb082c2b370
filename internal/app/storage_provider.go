package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
	"github.com/yungbote/coursecatalog-backend/internal/platform/gcp"
)

var newBlobStoreWithConfig = gcp.NewBlobStoreWithConfig

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingBucket       StorageProviderBootstrapErrorCode = "missing_bucket"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// objectStorageConfig mirrors gcp.ResolveObjectStorageConfigFromEnv over an
// already loaded Config.
func objectStorageConfig(cfg Config) gcp.ObjectStorageConfig {
	storageCfg := gcp.ObjectStorageConfig{
		Mode:                  gcp.ObjectStorageMode(strings.ToLower(strings.TrimSpace(cfg.ObjectStorageMode))),
		Bucket:                strings.TrimSpace(cfg.BlobBucket),
		EmulatorHost:          strings.TrimSpace(cfg.StorageEmulatorHost),
		CompatibilityFallback: cfg.StorageModeCompatFallback,
	}
	if storageCfg.Mode == "" {
		if storageCfg.EmulatorHost != "" {
			storageCfg.Mode = gcp.ObjectStorageModeGCSEmulator
			storageCfg.CompatibilityFallback = true
		} else {
			storageCfg.Mode = gcp.ObjectStorageModeGCS
		}
	}
	return storageCfg
}

func resolveBlobStore(ctx context.Context, log *logger.Logger, cfg Config) (gcp.BlobStore, error) {
	storageCfg := objectStorageConfig(cfg)
	modeSource := storageCfg.ModeSource()

	if !gcp.IsSupportedObjectStorageMode(storageCfg.Mode) {
		err := &StorageProviderBootstrapError{
			Code:         StorageProviderBootstrapErrorInvalidMode,
			Mode:         string(storageCfg.Mode),
			EmulatorHost: storageCfg.EmulatorHost,
			Cause:        fmt.Errorf("unsupported object storage mode %q", storageCfg.Mode),
		}
		log.Error(
			"Object storage provider selection failed",
			"mode", storageCfg.Mode,
			"mode_source", modeSource,
			"compatibility_fallback", storageCfg.CompatibilityFallback,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", err.Code,
			"error", err,
		)
		return nil, err
	}

	log.Info(
		"Selecting object storage provider",
		"mode", storageCfg.Mode,
		"mode_source", modeSource,
		"compatibility_fallback", storageCfg.CompatibilityFallback,
		"emulator_host", storageCfg.EmulatorHost,
		"bucket", storageCfg.Bucket,
	)

	store, err := newBlobStoreWithConfig(ctx, log, storageCfg)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		log.Error(
			"Object storage provider bootstrap failed",
			"mode", storageCfg.Mode,
			"mode_source", modeSource,
			"compatibility_fallback", storageCfg.CompatibilityFallback,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return store, nil
}

func classifyStorageProviderBootstrapError(storageCfg gcp.ObjectStorageConfig, err error) error {
	code := StorageProviderBootstrapErrorConnectFailed
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.ObjectStorageConfigErrorInvalidMode:
			code = StorageProviderBootstrapErrorInvalidMode
		case gcp.ObjectStorageConfigErrorMissingBucket:
			code = StorageProviderBootstrapErrorMissingBucket
		case gcp.ObjectStorageConfigErrorMissingEmulatorHost:
			code = StorageProviderBootstrapErrorMissingEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidEmulatorHost:
			code = StorageProviderBootstrapErrorInvalidEmulatorHost
		}
	}
	return &StorageProviderBootstrapError{
		Code:         code,
		Mode:         string(storageCfg.Mode),
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        err,
	}
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}
