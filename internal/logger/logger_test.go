package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Environment: "production", ServiceName: "indicators", Version: "1.2.3", Output: &buf})

	log.Info().Str("sector_id", "7").Msg("Drafts approved")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "indicators", line["service"])
	assert.Equal(t, "1.2.3", line["version"])
	assert.Equal(t, "7", line["sector_id"])
	assert.Equal(t, "Drafts approved", line["message"])
}

func TestNewDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "nonsense", Output: &buf})

	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestWithAddsField(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf}).With("handler", "http")
	log.Info().Msg("x")
	assert.Contains(t, buf.String(), `"handler":"http"`)
}
