// Package env reads small process-environment overrides used by the
// cmd/sproxydclient demo binary to seed defaults before flags/config are
// parsed.
package env

import (
	"os"
	"strconv"
)

// GetOrDefault returns the named environment variable, or fallback if unset
// or empty.
func GetOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetBoolOrDefault parses the named environment variable as a bool, or
// returns fallback if unset or unparsable.
func GetBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// GetIntOrDefault parses the named environment variable as an int, or
// returns fallback if unset or unparsable.
func GetIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}
