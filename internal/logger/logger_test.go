package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComponentLoggerWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").Component("service")

	log.Debug().Msg("hidden")
	log.Warn().Str("transfer_id", "trf_1").Msg("audit write failed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "service", line["component"])
	require.Equal(t, "trf_1", line["transfer_id"])
	require.Equal(t, "audit write failed", line["message"])
}
