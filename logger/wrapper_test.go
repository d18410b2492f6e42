//go:build unit

package logger_test

import (
	"testing"

	"github.com/hugolhafner/go-connect/logger"
	"github.com/stretchr/testify/require"
)

type captureBase struct {
	level   logger.LogLevel
	entries [][]any
	msgs    []string
}

func (c *captureBase) Level() logger.LogLevel { return c.level }

func (c *captureBase) Log(level logger.LogLevel, msg string, kv ...any) {
	c.msgs = append(c.msgs, msg)
	c.entries = append(c.entries, kv)
}

func TestLevelWrapper_WithPrependsFields(t *testing.T) {
	base := &captureBase{}
	l := logger.WrapLogger(base).With("topic", "orders")

	l.Info("batch", "count", 3)
	l.With("partition", int32(0)).Warn("skip")

	require.Equal(t, []string{"batch", "skip"}, base.msgs)
	require.Equal(t, []any{"topic", "orders", "count", 3}, base.entries[0])
	require.Equal(t, []any{"topic", "orders", "partition", int32(0)}, base.entries[1])
}

func TestLevelWrapper_WithDoesNotLeakBetweenChildren(t *testing.T) {
	base := &captureBase{}
	root := logger.WrapLogger(base)
	a := root.With("a", 1)
	_ = root.With("b", 2)

	a.Debug("msg")
	require.Equal(t, []any{"a", 1}, base.entries[0])
}

func TestLogLevel_Enabled(t *testing.T) {
	require.True(t, logger.InfoLevel.Enabled(logger.WarnLevel))
	require.True(t, logger.InfoLevel.Enabled(logger.InfoLevel))
	require.False(t, logger.InfoLevel.Enabled(logger.DebugLevel))
	require.Equal(t, "warn", logger.WarnLevel.String())
}
