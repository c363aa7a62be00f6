package logging

import (
	"context"
	"os/exec"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const handlerTimeout = 10 * time.Second

// runner executes the handler command. It is swapped in tests.
type runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// handlerCore runs an external command for every entry at or above level,
// passing the level name and message as arguments. The command runs
// synchronously so notifications arrive in log order.
type handlerCore struct {
	zapcore.LevelEnabler
	command string
	run     runner
}

func (c *handlerCore) With([]zapcore.Field) zapcore.Core { return c }

func (c *handlerCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write never fails; a broken handler must not break logging.
func (c *handlerCore) Write(ent zapcore.Entry, _ []zapcore.Field) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	_ = c.run(ctx, c.command, ent.Level.String(), ent.Message)
	return nil
}

func (c *handlerCore) Sync() error { return nil }

// WithHandler tees logger into command for entries at or above level. An
// empty command returns logger unchanged.
func WithHandler(logger *zap.Logger, command string, level zapcore.Level) *zap.Logger {
	return withRunner(logger, command, level, execRunner)
}

func withRunner(logger *zap.Logger, command string, level zapcore.Level, run runner) *zap.Logger {
	if command == "" {
		return logger
	}
	hc := &handlerCore{LevelEnabler: level, command: command, run: run}
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, hc)
	}))
}

// ParseLevel maps a level name such as "warn" to a zapcore.Level.
func ParseLevel(name string) (zapcore.Level, error) {
	return zapcore.ParseLevel(name)
}
