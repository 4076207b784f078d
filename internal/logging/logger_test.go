package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cfgpkg "github.com/taoyao-code/telemetry-collector/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}

func TestNewWriterLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(cfgpkg.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	log.Info("hidden")
	log.Warn("frame discarded", zap.String("reason", "checksum"))
	_ = log.Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"frame discarded"`)
	assert.Contains(t, out, `"reason":"checksum"`)
}
