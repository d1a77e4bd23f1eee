package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggers(t *testing.T) {
	t.Parallel()

	for _, dev := range []bool{true, false} {
		logger, err := New(dev)
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.Equal(t, dev, logger.Core().Enabled(-1), "debug enabled only in development")
	}
}

func TestProductionLoggerWritesJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "log.json")
	logger, err := build(false, []string{path})
	require.NoError(t, err)
	logger.Info("Listing page decoded")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "Listing page decoded", entry["msg"])
	assert.Equal(t, ServiceName, entry["service"])
	assert.Contains(t, entry, "ts")
}
