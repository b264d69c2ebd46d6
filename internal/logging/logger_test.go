package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset() {
	CloseAll()
	logsDir = ""
	opts = Options{}
}

func TestProductionModeIsNoOp(t *testing.T) {
	t.Cleanup(reset)
	ws := t.TempDir()
	require.NoError(t, Initialize(ws, Options{DebugMode: false}))

	Get(CategoryGateway).Info("should not be written")

	_, err := os.Stat(filepath.Join(ws, ".taskforge", "logs"))
	assert.True(t, os.IsNotExist(err))
}

func TestDebugModeWritesCategoryFile(t *testing.T) {
	t.Cleanup(reset)
	ws := t.TempDir()
	require.NoError(t, Initialize(ws, Options{DebugMode: true, Level: "debug"}))

	Get(CategoryCurator).Info("phase started")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(ws, ".taskforge", "logs"))
	require.NoError(t, err)

	found := false
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			data, err := os.ReadFile(filepath.Join(ws, ".taskforge", "logs", e.Name()))
			require.NoError(t, err)
			if len(data) > 0 {
				found = true
			}
		}
	}
	assert.True(t, found, "expected at least one non-empty log file")
}

func TestCategoryFilter(t *testing.T) {
	t.Cleanup(reset)
	ws := t.TempDir()
	require.NoError(t, Initialize(ws, Options{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"gateway": false},
	}))

	assert.False(t, IsCategoryEnabled(CategoryGateway))
	assert.True(t, IsCategoryEnabled(CategoryCurator))
}

func TestRequestLoggerFormat(t *testing.T) {
	r := &RequestLogger{logger: &Logger{}, requestID: "abc", fields: map[string]interface{}{}}
	msg := r.formatMsg("hello %d", 7)
	assert.Equal(t, "[req:abc] hello 7", msg)

	r.WithField("phase", "scoring")
	msg = r.formatMsg("x")
	assert.Contains(t, msg, "phase:scoring")
}
