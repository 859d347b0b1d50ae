package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// LookupEnvString returns the variable's value, or def when unset.
func LookupEnvString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// LookupEnvInt returns the variable as an int, or def when unset or invalid.
func LookupEnvInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid integer in environment", slog.String("key", key), slog.String("value", v))
		return def
	}
	return n
}

// LookupEnvBool returns the variable as a bool, or def when unset or invalid.
func LookupEnvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring invalid boolean in environment", slog.String("key", key), slog.String("value", v))
		return def
	}
	return b
}

// LookupEnvDuration returns the variable parsed by time.ParseDuration, or
// def when unset or invalid.
func LookupEnvDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring invalid duration in environment", slog.String("key", key), slog.String("value", v))
		return def
	}
	return d
}
