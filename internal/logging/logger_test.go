package logging

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{Development: true, Level: "debug"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{})
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

func TestNewRejectsBadLevels(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Level: "loud"})
	require.Error(t, err)

	_, err = New(Config{Handler: "notify", HandlerLevel: "sometimes"})
	require.Error(t, err)

	logger, err := New(Config{Handler: "/nonexistent/notify", HandlerLevel: "error"})
	require.NoError(t, err)
	logger.Warn("below handler level")
}

type recordedCall struct {
	name string
	args []string
}

func TestWithHandlerRunsCommandAtLevel(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls []recordedCall
	)
	run := func(_ context.Context, name string, args ...string) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, recordedCall{name: name, args: args})
		return nil
	}
	core, logs := observer.New(zapcore.DebugLevel)
	logger := withRunner(zap.New(core), "notify", zapcore.WarnLevel, run)

	logger.Info("fetching")
	logger.Warn("max retries exceeded", zap.Int("page", 4))
	logger.Named("wear").Error("download failed")

	require.Equal(t, 3, logs.Len(), "the wrapped core still receives every entry")
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []recordedCall{
		{name: "notify", args: []string{"warn", "max retries exceeded"}},
		{name: "notify", args: []string{"error", "download failed"}},
	}, calls)
}

func TestWithHandlerIgnoresCommandFailure(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := WithHandler(zap.New(core), "/nonexistent/pagecrawl-handler", zapcore.ErrorLevel)
	logger.Error("boom")
	require.Equal(t, 1, logs.Len())
}

func TestWithHandlerEmptyCommand(t *testing.T) {
	t.Parallel()

	logger := zap.NewNop()
	require.Same(t, logger, WithHandler(logger, "", zapcore.ErrorLevel))

	lvl, err := ParseLevel("warn")
	require.NoError(t, err)
	require.Equal(t, zapcore.WarnLevel, lvl)
}
