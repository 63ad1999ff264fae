package env

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// GetStringFromFile reads the environment variable value or from a file if FILE suffix is used
// This is used for Docker secrets support
func GetStringFromFile(key, defaultValue string) string {
	fileKey := key + "_FILE"
	filePath := os.Getenv(fileKey)

	if filePath != "" {
		// Read from file (Docker secret)
		content, err := os.ReadFile(filepath.Clean(filePath))
		if err == nil {
			// Trim whitespace and newlines
			return string(bytes.TrimSpace(content))
		}
		// If file read fails, fall back to env var
	}

	// Fall back to regular env var
	return GetString(key, defaultValue)
}

// GetString returns the environment variable value or the default value if not set
func GetString(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetInt returns the environment variable value as an integer or the default value if not set
func GetInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetBool returns the environment variable value as a boolean or the default value if not set
func GetBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetDuration returns the environment variable value as a duration or the default value if not set
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetStringSlice splits a comma-separated environment variable, dropping empty items
func GetStringSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
