package corelog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToRotatingFile(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "endpoint.log")

	log, err := New(Options{Level: "debug", File: logFile})
	require.NoError(t, err)
	log.Infow("hello", "n", 1)
	require.NoError(t, log.Sync())

	assert.FileExists(t, logFile)
}

func TestNewDefaultsUnknownLevelToInfo(t *testing.T) {
	log, err := New(Options{Level: "chatty"})
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNop(t *testing.T) {
	assert.NotNil(t, Nop())
}
