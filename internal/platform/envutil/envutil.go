package envutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
)

func String(key, def string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	val = strings.TrimSpace(val)
	if !ok || val == "" {
		if log != nil {
			log.Debug("Environment variable not found, using default", "default", def)
		}
		return def
	}
	return val
}

func Int(key string, def int, log *logger.Logger) int {
	raw := String(key, "", log)
	if raw == "" {
		return def
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable is not an int, using default", "env_var", key, "value", raw, "default", def)
		}
		return def
	}
	return i
}

func Bool(key string, def bool, log *logger.Logger) bool {
	raw := String(key, "", log)
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	if log != nil {
		log.Warn("Environment variable is not a bool, using default", "env_var", key, "value", raw, "default", def)
	}
	return def
}
