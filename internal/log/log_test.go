package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
	}{
		{
			name:    "default logging level",
			verbose: false,
		},
		{
			name:    "verbose logging level",
			verbose: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Init(tt.verbose)
			require.NotNil(t, GetLogger())
		})
	}
}

func TestGetLogger(t *testing.T) {
	Init(false)
	first := GetLogger()
	assert.Same(t, first, GetLogger())
}

func TestWriterLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		wantDebug bool
	}{
		{name: "quiet drops debug and info", verbose: false, wantDebug: false},
		{name: "verbose keeps debug", verbose: true, wantDebug: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWriterLogger(&buf, tt.verbose)

			logger.Debug("writing artifact", "path", "stage-1/generated/x.sh")
			logger.Info("processed stage")
			logger.Warn("duplicate destination", "dst", "/hard/volume/data")

			out := buf.String()
			assert.Contains(t, out, "duplicate destination")
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("writing artifact")))
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("processed stage")))
		})
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	assert.NotPanics(t, func() {
		logger.Error("ignored", "k", "v")
	})
}
