// Package validate provides advisory checks on values that end up inside
// the generated image, such as environment variables and ssh passwords.
package validate

import (
	"fmt"
	"strings"

	"github.com/trly/pei-docker/internal/log"
)

const (
	// MaxEnvValueSize is the size above which an environment value is reported.
	MaxEnvValueSize = 32768
	// MinSecretLen is the length below which a sensitive value is reported.
	MinSecretLen = 8
)

var (
	sensitiveKeywords = []string{
		"password", "secret", "key", "token", "auth", "credential",
		"private", "cert", "ssl", "tls", "api_key", "access_key",
	}

	weakValues = []string{"password", "secret", "123456", "admin", "test", "default", "root"}
)

// SecretValidator reports weak or oversized values. It only rejects values
// that cannot be written to a shell environment file.
type SecretValidator struct {
	logger log.Logger
}

// NewSecretValidator creates a SecretValidator logging through logger.
func NewSecretValidator(logger log.Logger) *SecretValidator {
	if logger == nil {
		logger = log.Nop()
	}
	return &SecretValidator{logger: logger}
}

// ValidateEnvValue checks the value of environment variable key declared by stage.
func (sv *SecretValidator) ValidateEnvValue(stage, key, value string) error {
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("environment variable %s contains a null byte", key)
	}
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("environment variable %s contains a line break", key)
	}

	if len(value) > MaxEnvValueSize {
		sv.logger.Warn("Environment variable value is very large", "stage", stage, "key", key, "size", len(value), "max_recommended", MaxEnvValueSize)
	}

	if isSensitiveKey(key) {
		sv.warnWeakSecret(stage, "key", key, value)
	}

	return nil
}

// ValidatePassword reports a weak ssh password for user. Passwords end up in
// the image build arguments in clear text.
func (sv *SecretValidator) ValidatePassword(stage, user, password string) {
	if password == "" {
		return
	}
	sv.warnWeakSecret(stage, "user", user, password)
}

func (sv *SecretValidator) warnWeakSecret(stage, attr, name, value string) {
	lowerValue := strings.ToLower(strings.TrimSpace(value))
	for _, weak := range weakValues {
		if lowerValue == weak {
			sv.logger.Warn("Secret appears to be a test or default value", "stage", stage, attr, name)
			return
		}
	}

	if len(value) < MinSecretLen {
		sv.logger.Warn("Secret is short, consider a stronger value", "stage", stage, attr, name, "length", len(value))
		return
	}

	if isRepeatingPattern(value) {
		sv.logger.Warn("Secret has low entropy", "stage", stage, attr, name)
	}
}

func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return true
		}
	}
	return false
}

// isRepeatingPattern reports whether one character makes up more than half of s.
func isRepeatingPattern(s string) bool {
	if len(s) < 4 {
		return false
	}

	charCount := make(map[rune]int)
	for _, r := range s {
		charCount[r]++
	}

	threshold := len(s) / 2
	for _, count := range charCount {
		if count > threshold {
			return true
		}
	}

	return false
}

// SanitizeForLogging masks the value of sensitive keys.
func SanitizeForLogging(key, value string) string {
	if isSensitiveKey(key) {
		if len(value) <= 4 {
			return "[REDACTED]"
		}
		return value[:2] + strings.Repeat("*", len(value)-4) + value[len(value)-2:]
	}
	return value
}

// SanitizeEnv returns a copy of env with sensitive values masked.
func SanitizeEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = SanitizeForLogging(k, v)
	}
	return out
}
