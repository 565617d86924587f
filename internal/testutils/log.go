// Package testutils holds helpers shared by package tests.
package testutils

import (
	"os"
	"sync"
	"testing"

	"github.com/decred/slog"
)

// logBackend forwards slog output to t.Log until the test finishes.
type logBackend struct {
	mtx  sync.Mutex
	tb   testing.TB
	done bool
}

func (b *logBackend) Write(p []byte) (int, error) {
	b.mtx.Lock()
	if !b.done && len(p) > 0 {
		b.tb.Log(string(p[:len(p)-1]))
	}
	b.mtx.Unlock()
	return len(p), nil
}

// TestLoggerSys returns an slog.Logger for subsystem sys that logs through
// t.Log. Set UNHIDRA_TEST_LOGLEVEL to change the level (default trace).
func TestLoggerSys(t testing.TB, sys string) slog.Logger {
	b := &logBackend{tb: t}
	t.Cleanup(func() {
		b.mtx.Lock()
		b.done = true
		b.mtx.Unlock()
	})
	logg := slog.NewBackend(b).Logger(sys)
	level := slog.LevelTrace
	if l, ok := slog.LevelFromString(os.Getenv("UNHIDRA_TEST_LOGLEVEL")); ok {
		level = l
	}
	logg.SetLevel(level)
	return logg
}
