package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// getEnv returns the variable, or defaultValue when it is unset or empty
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getParsed parses the variable with parse. Unset or unparsable values
// yield defaultValue.
func getParsed[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := parse(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getInt(key string, defaultValue int) int {
	return getParsed(key, defaultValue, strconv.Atoi)
}

func getUint64(key string, defaultValue uint64) uint64 {
	return getParsed(key, defaultValue, func(s string) (uint64, error) {
		return strconv.ParseUint(s, 10, 64)
	})
}

func getBool(key string, defaultValue bool) bool {
	return getParsed(key, defaultValue, strconv.ParseBool)
}

// getDuration takes its default as a duration string so defaults read
// like the values operators write
func getDuration(key, defaultValue string) time.Duration {
	fallback, err := time.ParseDuration(defaultValue)
	if err != nil {
		fallback = 30 * time.Second
	}
	return getParsed(key, fallback, time.ParseDuration)
}

// environmentIs reports whether Environment matches one of names, ignoring case
func (c *Config) environmentIs(names ...string) bool {
	env := strings.ToLower(c.Environment)
	for _, name := range names {
		if env == name {
			return true
		}
	}
	return false
}

// IsLocal reports a local or development environment
func (c *Config) IsLocal() bool {
	return c.environmentIs("local", "development", "dev")
}

// IsStaging reports a staging environment
func (c *Config) IsStaging() bool {
	return c.environmentIs("staging", "stage")
}

// IsProduction reports a production environment
func (c *Config) IsProduction() bool {
	return c.environmentIs("production", "prod")
}

// IsTest reports a test environment
func (c *Config) IsTest() bool {
	return c.environmentIs("test", "testing")
}

// IsLambda detects if running in AWS Lambda
func IsLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" ||
		os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" ||
		os.Getenv("LAMBDA_TASK_ROOT") != ""
}
