package logger

import (
	"bytes"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"

	"guardian/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, hclog.Debug, parseLogLevel("DEBUG"))
	assert.Equal(t, hclog.Warn, parseLogLevel("warn"))
	assert.Equal(t, hclog.Info, parseLogLevel("nonsense"))
}

func TestEnvOverridesConfig(t *testing.T) {
	t.Setenv("GUARDIAN_LOG_LEVEL", "error")
	var buf bytes.Buffer
	log := NewWithOutput(config.LogConfig{Level: "debug"}, "guardian", &buf)
	log.Info("hidden")
	log.Error("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
