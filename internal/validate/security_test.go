package validate

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trly/pei-docker/internal/log"
)

func newValidator() (*SecretValidator, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewSecretValidator(log.NewWriterLogger(&buf, false)), &buf
}

func TestSecretValidator_ValidateEnvValue(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		value       string
		expectError bool
		warning     string
	}{
		{name: "plain value", key: "LANG", value: "C.UTF-8"},
		{name: "short plain value", key: "TZ", value: "x"},
		{name: "null byte", key: "LANG", value: "C\x00", expectError: true},
		{name: "newline", key: "A", value: "x\nB=injected", expectError: true},
		{name: "carriage return", key: "A", value: "x\rB=injected", expectError: true},
		{name: "huge value", key: "BLOB", value: strings.Repeat("ab", MaxEnvValueSize), warning: "very large"},
		{name: "default secret", key: "DB_PASSWORD", value: "admin", warning: "test or default value"},
		{name: "short secret", key: "API_TOKEN", value: "abc12", warning: "is short"},
		{name: "low entropy secret", key: "AUTH_SECRET", value: "aaaaaaaab", warning: "low entropy"},
		{name: "strong secret", key: "AUTH_SECRET", value: "c0rrect-h0rse-battery"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sv, buf := newValidator()
			err := sv.ValidateEnvValue("stage_1", tt.key, tt.value)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			if tt.warning == "" {
				assert.Empty(t, buf.String())
			} else {
				assert.Contains(t, buf.String(), tt.warning)
				assert.Contains(t, buf.String(), "stage=stage_1")
			}
		})
	}
}

func TestSecretValidator_ValidatePassword(t *testing.T) {
	sv, buf := newValidator()
	sv.ValidatePassword("stage_1", "me", "")
	assert.Empty(t, buf.String())

	sv.ValidatePassword("stage_1", "me", "root")
	assert.Contains(t, buf.String(), "user=me")
	assert.NotContains(t, buf.String(), "=root")
}

func TestSanitizeForLogging(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  string
	}{
		{key: "LANG", value: "C.UTF-8", want: "C.UTF-8"},
		{key: "DB_PASSWORD", value: "abc", want: "[REDACTED]"},
		{key: "api_key", value: "abcdefgh", want: "ab****gh"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeForLogging(tt.key, tt.value))
		})
	}
}

func TestSanitizeEnv(t *testing.T) {
	env := map[string]string{"LANG": "C", "SECRET": "topsecret"}
	got := SanitizeEnv(env)

	assert.Equal(t, map[string]string{"LANG": "C", "SECRET": "to*****et"}, got)
	assert.Equal(t, "topsecret", env["SECRET"])
}
