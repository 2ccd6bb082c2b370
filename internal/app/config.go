package app

import (
	"strings"
	"time"

	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
	"github.com/yungbote/coursecatalog-backend/internal/platform/envutil"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

type Config struct {
	Port            string
	LogMode         string
	Environment     string
	ServiceName     string
	Version         string
	ShutdownTimeout time.Duration

	DBDriver   string
	SQLitePath string

	CORSOrigins []string

	BlobBucket                string
	ObjectStorageMode         string
	StorageEmulatorHost       string
	StorageModeCompatFallback bool
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:            envutil.String("PORT", "8080", log),
		LogMode:         envutil.String("LOG_MODE", "development", log),
		Environment:     envutil.String("APP_ENV", "local", log),
		ServiceName:     envutil.String("SERVICE_NAME", "coursecatalog", log),
		Version:         envutil.String("SERVICE_VERSION", "dev", log),
		ShutdownTimeout: time.Duration(envutil.Int("SHUTDOWN_TIMEOUT_SECONDS", 15, log)) * time.Second,

		DBDriver:   strings.ToLower(envutil.String("DB_DRIVER", DBDriverPostgres, log)),
		SQLitePath: envutil.String("SQLITE_PATH", "", log),

		CORSOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "", log)),

		BlobBucket:                envutil.String("BLOB_BUCKET", "", log),
		ObjectStorageMode:         envutil.String("OBJECT_STORAGE_MODE", "", log),
		StorageEmulatorHost:       envutil.String("STORAGE_EMULATOR_HOST", "", log),
		StorageModeCompatFallback: envutil.Bool("OBJECT_STORAGE_MODE_COMPAT_FALLBACK", false, log),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
