package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"unhidra/internal/registry"
	"unhidra/internal/relay"
	"unhidra/internal/store"
)

// LogBackend fans slog output out to a writer and an optional rotating
// log file, with per-subsystem levels.
type LogBackend struct {
	stdOut     io.Writer
	logRotator *rotator.Rotator
	bknd       *slog.Backend

	mtx             sync.Mutex
	defaultLogLevel slog.Level
	logLevels       map[string]slog.Level
	loggers         map[string]slog.Logger
}

// NewLogBackend returns a backend writing to stdOut (when not nil) and to
// logFile (when not empty). debugLevel is either a single level or a
// comma-separated list of subsys=level pairs, optionally with a bare
// default level among them.
func NewLogBackend(logFile, debugLevel string, stdOut io.Writer) (*LogBackend, error) {
	var logRotator *rotator.Rotator
	if logFile != "" {
		logDir, _ := filepath.Split(logFile)
		if logDir != "" {
			if err := os.MkdirAll(logDir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %v", err)
			}
		}
		var err error
		logRotator, err = rotator.New(logFile, 1024, false, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to create file rotator: %v", err)
		}
	}

	b := &LogBackend{
		stdOut:          stdOut,
		logRotator:      logRotator,
		defaultLogLevel: slog.LevelInfo,
		logLevels:       make(map[string]slog.Level),
		loggers:         make(map[string]slog.Logger),
	}
	b.bknd = slog.NewBackend(b)

	for _, v := range strings.Split(debugLevel, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		fields := strings.Split(v, "=")
		switch len(fields) {
		case 1:
			level, ok := slog.LevelFromString(fields[0])
			if !ok {
				return nil, fmt.Errorf("unknown log level %q", fields[0])
			}
			b.defaultLogLevel = level
		case 2:
			level, ok := slog.LevelFromString(fields[1])
			if !ok {
				return nil, fmt.Errorf("unknown log level %q for %s", fields[1], fields[0])
			}
			b.logLevels[strings.ToUpper(fields[0])] = level
		default:
			return nil, fmt.Errorf("unable to parse %q as subsys=level "+
				"debuglevel string", v)
		}
	}
	return b, nil
}

func (b *LogBackend) Write(p []byte) (int, error) {
	if b.stdOut != nil {
		b.stdOut.Write(p)
	}
	if b.logRotator != nil {
		b.logRotator.Write(p)
	}
	return len(p), nil
}

// Logger returns the logger for subsys, creating it on first use.
func (b *LogBackend) Logger(subsys string) slog.Logger {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if l, ok := b.loggers[subsys]; ok {
		return l
	}
	l := b.bknd.Logger(subsys)
	if level, ok := b.logLevels[subsys]; ok {
		l.SetLevel(level)
	} else {
		l.SetLevel(b.defaultLogLevel)
	}
	b.loggers[subsys] = l
	return l
}

// UseLoggers installs subsystem loggers in the packages that keep a
// package-level logger.
func (b *LogBackend) UseLoggers() {
	store.UseLogger(b.Logger("STOR"))
	registry.UseLogger(b.Logger("REGY"))
	relay.UseLogger(b.Logger("RCLI"))
}

// Close flushes and closes the log file.
func (b *LogBackend) Close() error {
	if b.logRotator != nil {
		return b.logRotator.Close()
	}
	return nil
}
