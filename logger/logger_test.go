package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetLogLevel(zerolog.DebugLevel)
	defer SetLogLevel(zerolog.WarnLevel)

	log := WithContext("conn-1", "corr-1")
	log.Debug().Msg("copy started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "conn-1", entry["connId"])
	assert.Equal(t, "corr-1", entry["corrId"])
	assert.Equal(t, "copy started", entry["message"])
}

func TestWithContextOmitsEmptyIds(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetLogLevel(zerolog.DebugLevel)
	defer SetLogLevel(zerolog.WarnLevel)

	WithContext("", "").Info().Msg("no ids")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "connId")
	assert.NotContains(t, entry, "corrId")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetLogLevel(zerolog.WarnLevel)

	Debug().Msg("hidden")
	assert.Equal(t, 0, buf.Len())

	Warn().Msg("shown")
	assert.NotEqual(t, 0, buf.Len())
}
