package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.log")
	log, err := New("info", "json", path)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("library loaded")
	_ = log.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"library loaded"`)
	assert.NotContains(t, string(raw), "hidden")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("chatty", "console", "")
	assert.Error(t, err)
}
