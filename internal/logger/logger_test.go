package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevelFiltering(t *testing.T) {
	ResetRegistry()
	defer ResetRegistry()

	var buf bytes.Buffer
	l := NewWithWriter("filter", &buf, INFO)

	l.Debug("hidden %d", 1)
	l.Info("shown %d", 2)
	l.Error("shown %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered at INFO, got: %s", out)
	}
	if !strings.Contains(out, "INFO: shown 2") || !strings.Contains(out, "ERROR: shown 3") {
		t.Fatalf("expected info and error lines, got: %s", out)
	}
}

func TestRegistryReturnsSameLogger(t *testing.T) {
	ResetRegistry()
	defer ResetRegistry()

	var a, b bytes.Buffer
	first := NewWithWriter("same", &a, DEBUG)
	second := NewWithWriter("same", &b, DEBUG)
	if first != second {
		t.Fatalf("expected the registered logger to be reused")
	}
	if Get("same") != first {
		t.Fatalf("Get should return the registered logger")
	}
}

func TestGetUnknownDiscards(t *testing.T) {
	ResetRegistry()
	defer ResetRegistry()

	l := Get("missing")
	if l == nil {
		t.Fatalf("expected a discarding logger, got nil")
	}
	l.Error("nobody hears this")
}

func TestFileLogger(t *testing.T) {
	ResetRegistry()
	defer ResetRegistry()

	dir := t.TempDir()
	l := New("file", dir, DEBUG)
	l.Info("written to %s", "disk")

	name := filepath.Join(dir, "AccountDesk-"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "INFO: written to disk") {
		t.Fatalf("unexpected log content: %s", data)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want LogLevel
		err  bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"", INFO, false},
		{"error", ERROR, false},
		{"verbose", INFO, true},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if (err != nil) != c.err {
			t.Fatalf("ParseLevel(%q) err=%v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseLevel(%q)=%v want %v", c.in, got, c.want)
		}
	}
}
