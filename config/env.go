// Package config holds the environment fallbacks used for flag defaults.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func EnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func EnvInt(key string, defaultVal int) int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func EnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func EnvBool(key string, defaultVal bool) bool {
	if val := strings.ToLower(os.Getenv(key)); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

// ListenAddr resolves the server address: LISTEN wins, then PORT (the
// hosting convention), then fallback.
func ListenAddr(fallback string) string {
	if v := os.Getenv("LISTEN"); v != "" {
		return v
	}
	if p := os.Getenv("PORT"); p != "" {
		return ":" + p
	}
	return fallback
}
