package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

func Str(key, def string, log *logger.Logger) string {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		if log != nil {
			log.Debug("Environment variable not set, using default", "env_var", key, "default", def)
		}
		return def
	}
	return val
}

func Int(key string, def int, log *logger.Logger) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Environment variable not set, using default", "env_var", key, "default", def)
		}
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		if log != nil {
			log.Debug("Environment variable not an int, using default", "env_var", key, "value", val, "default", def, "error", err)
		}
		return def
	}
	return i
}

func Bool(key string, def bool, log *logger.Logger) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Environment variable not set, using default", "env_var", key, "default", def)
		}
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		if log != nil {
			log.Debug("Environment variable not a bool, using default", "env_var", key, "value", val, "default", def, "error", err)
		}
		return def
	}
	return b
}

// Dur reads a duration given in whole seconds.
func Dur(key string, def time.Duration, log *logger.Logger) time.Duration {
	secs := Int(key, int(def/time.Second), log)
	return time.Duration(secs) * time.Second
}
