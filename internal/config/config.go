// Package config carries the ambient tuning knobs that sit outside the
// four mandatory CLI positionals (port, threads, queue_size, schedalg):
// the public document root, CGI exec timeout, peek timeout, and log
// level. Adapted from the teacher's cmd/server/main.go getenvInt helper
// and internal/router/router.go's getDurEnv helper.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the environment-tunable knobs.
type Config struct {
	PublicDir   string
	CGITimeout  time.Duration
	PeekTimeout time.Duration
	LogLevel    string
}

// FromEnv builds a Config from the environment, falling back to the
// documented defaults for anything unset or malformed.
func FromEnv() Config {
	return Config{
		PublicDir:   getenvString("PUBLIC_DIR", "./public"),
		CGITimeout:  getenvDuration("CGI_TIMEOUT", 10*time.Second),
		PeekTimeout: getenvDuration("PEEK_TIMEOUT", 2*time.Second),
		LogLevel:    getenvString("LOG_LEVEL", "info"),
	}
}

func getenvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		if n := getenvInt(key, 0); n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}
