package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sqlstream.log")

	log, err := New(Options{Level: "debug", File: path})
	require.NoError(t, err)

	log.Debug().Str("table", "messages").Msg("polled")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), `"table":"messages"`))
	assert.True(t, strings.Contains(string(content), `"message":"polled"`))
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_LevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sqlstream.log")

	log, err := New(Options{Level: "warn", File: path})
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(content), "hidden"))
	assert.True(t, strings.Contains(string(content), "shown"))
}
