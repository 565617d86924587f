package app

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/decred/slog"
)

func TestLogBackend_Levels(t *testing.T) {
	var buf bytes.Buffer
	b, err := NewLogBackend("", "warn,SESS=debug", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Logger("SESS").Level(); got != slog.LevelDebug {
		t.Fatalf("SESS level = %v, want debug", got)
	}
	if got := b.Logger("STOR").Level(); got != slog.LevelWarn {
		t.Fatalf("STOR level = %v, want warn", got)
	}
	b.Logger("STOR").Infof("hidden")
	b.Logger("SESS").Debugf("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestLogBackend_BadLevel(t *testing.T) {
	for _, lvl := range []string{"loud", "SESS=loud", "a=b=c"} {
		if _, err := NewLogBackend("", lvl, nil); err == nil {
			t.Fatalf("debug level %q accepted", lvl)
		}
	}
}

func TestLogBackend_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "unhidra.log")
	b, err := NewLogBackend(path, "info", nil)
	if err != nil {
		t.Fatal(err)
	}
	b.Logger("UCLI").Infof("to file")
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}
