package infra

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProductionLoggerWritesJSONAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "production", "")

	logger.Debug().Msg("hidden")
	logger.Info().Uint64("project_id", 3).Msg("project registered")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "project registered", line["message"])
	require.Equal(t, "production", line["env"])
	require.EqualValues(t, 3, line["project_id"])
}

func TestDevelopmentLoggerIncludesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "development", "")
	logger.Debug().Msg("visible")
	require.Contains(t, buf.String(), "visible")
}

func TestLogLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "production", " WARN ")
	logger.Info().Msg("quiet")
	require.Zero(t, buf.Len())
	logger.Warn().Msg("loud")
	require.Contains(t, buf.String(), "loud")

	buf.Reset()
	logger = NewLoggerTo(&buf, "production", "chatty")
	logger.Info().Msg("unknown level keeps the default")
	require.NotZero(t, buf.Len())
}
