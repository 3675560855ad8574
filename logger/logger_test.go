package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smtp-mailer/logger"
)

func TestNew_Production(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logger.New(logger.EnvProduction, "smtp-mailer", logger.WithOutput(&buf))

	l.Debug("hidden")
	l.Info("ready", logger.Err(errors.New("boom")))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record), "production logs a single JSON line")
	assert.Equal(t, "ready", record["msg"])
	assert.Equal(t, "smtp-mailer", record["service"])
	assert.Equal(t, "production", record["env"])
	assert.Equal(t, "boom", record["error"])
}

func TestNew_Development(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logger.New(logger.EnvDevelopment, "smtp-mailer", logger.WithOutput(&buf))

	l.Debug("dialing")
	assert.Contains(t, buf.String(), "msg=dialing")
	assert.Contains(t, buf.String(), "service=smtp-mailer")
}

func TestNew_WithLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logger.New(logger.EnvDevelopment, "smtp-mailer", logger.WithOutput(&buf), logger.WithLevel(slog.LevelWarn))

	l.Info("quiet")
	assert.Empty(t, buf.String())
}
