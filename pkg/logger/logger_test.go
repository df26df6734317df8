package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestObserved_Named(t *testing.T) {
	t.Parallel()

	lggr, logs := TestObserved(t, zapcore.InfoLevel)
	lggr = lggr.Named("validate")
	lggr.Infow("validated rows", "rows", 3)
	lggr.Debug("not observed")

	require.Equal(t, "validate", lggr.Name())
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "validated rows", entry.Message)
	require.EqualValues(t, 3, entry.ContextMap()["rows"])
}

func TestNewFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "validation.log")
	lggr, err := NewFile(path)
	require.NoError(t, err)

	lggr.Infow("validation passed", "rows", 10)
	_ = lggr.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "validation passed")
	require.Contains(t, string(b), `"rows":10`)
}

func TestNop(t *testing.T) {
	t.Parallel()

	lggr := Nop()
	lggr.Errorf("dropped %d", 1)
	require.NotNil(t, lggr.Named("x"))
}

func TestConfig_New(t *testing.T) {
	t.Parallel()

	for _, lvl := range []zapcore.Level{zapcore.DebugLevel, zapcore.WarnLevel} {
		c := Config{Level: lvl}
		lggr, err := c.New()
		require.NoError(t, err)
		assert.NotNil(t, lggr)
	}
	_, err := New()
	require.NoError(t, err)
}
