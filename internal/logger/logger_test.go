package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupWriterJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	log := SetupWriter("warn", "json", &buf)

	log.Info().Msg("hidden")
	log.Warn().Str("component", "session").Msg("Violation")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["component"] != "session" || entry["level"] != "warn" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestSetupWriterBadLevelFallsBackToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	log := SetupWriter("loud", "pretty", &buf)
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("output = %q", out)
	}
}

func TestOpenFileAppends(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	path := filepath.Join(t.TempDir(), "nested", "player.log")
	for _, msg := range []string{"first", "second"} {
		log, closeLog, err := OpenFile(path, "info")
		if err != nil {
			t.Fatalf("OpenFile: %v", err)
		}
		log.Info().Msg(msg)
		if err := closeLog(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), raw)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["message"] != "second" || entry["pid"] == nil {
		t.Fatalf("entry = %v", entry)
	}
}

func TestOpenFileBadDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	_, closeLog, err := OpenFile(filepath.Join(blocker, "player.log"), "info")
	if err == nil {
		t.Fatal("expected error when parent is a file")
	}
	if closeLog() != nil {
		t.Fatal("nop close returned error")
	}
}
