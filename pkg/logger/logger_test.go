package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
}

func TestNewRejectsBadEncoding(t *testing.T) {
	_, err := New(Config{Level: "info", Encoding: "xml"})
	require.Error(t, err)
}

func TestNewWritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "econdash.log")

	l, err := New(Config{
		Level:       "debug",
		Encoding:    "console",
		OutputPaths: []string{filepath.Join(dir, "stdout.log")},
		File:        path,
	})
	require.NoError(t, err)

	l.Info("cache cleared", zap.String("kind", "data"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"cache cleared"`)
	assert.Contains(t, string(data), `"kind":"data"`)
}

func TestNamedPrefersExplicitLogger(t *testing.T) {
	explicit := zap.NewNop()
	assert.Same(t, explicit, Named(explicit, "shrink"))
	assert.NotNil(t, Named(nil, "shrink"))
}

func TestWithContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), SessionIDKey, "s-1")
	ctx = context.WithValue(ctx, IndicatorKey, "selic")
	assert.NotNil(t, WithContext(ctx))
}
