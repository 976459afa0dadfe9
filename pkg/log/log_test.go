package log

import (
	"strings"
	"sync"
	"testing"
)

// captureOutput collects formatted entries for assertions.
type captureOutput struct {
	mu      sync.Mutex
	entries []*Entry
	lines   []string
}

func (c *captureOutput) Write(e *Entry, formatted []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	c.lines = append(c.lines, string(formatted))
	return nil
}

func (c *captureOutput) Close() error { return nil }

func TestLevelGating(t *testing.T) {
	cap := &captureOutput{}
	l := NewLogger(WithLevel(WarnLevel), WithOutput(cap))
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")
	if len(cap.entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(cap.entries))
	}
	if cap.entries[0].Level != WarnLevel || cap.entries[1].Level != ErrorLevel {
		t.Fatalf("unexpected levels: %v %v", cap.entries[0].Level, cap.entries[1].Level)
	}
}

func TestWithFieldsPropagate(t *testing.T) {
	cap := &captureOutput{}
	l := NewLogger(WithOutput(cap)).With(Component("store"), Str("queue", "default"))
	l.Info("opened", Uint64("last_seq", 7))
	if len(cap.entries) != 1 {
		t.Fatalf("expected 1 entry")
	}
	f := cap.entries[0].Fields
	if f["component"] != "store" || f["queue"] != "default" {
		t.Fatalf("base fields missing: %v", f)
	}
	if f["last_seq"] != uint64(7) {
		t.Fatalf("call-site field missing: %v", f)
	}
}

func TestTextFormatterSortsFields(t *testing.T) {
	cap := &captureOutput{}
	l := NewLogger(WithFormatter(&TextFormatter{DisableTimestamp: true}), WithOutput(cap))
	l.Info("msg", Str("b", "2"), Str("a", "1"))
	line := cap.lines[0]
	if !strings.Contains(line, "a=1 b=2") {
		t.Fatalf("fields not sorted: %q", line)
	}
}

func TestJSONFormatterOutput(t *testing.T) {
	cap := &captureOutput{}
	l := NewLogger(WithFormatter(&JSONFormatter{}), WithOutput(cap))
	l.Info("hello", Int("n", 3))
	line := cap.lines[0]
	if !strings.Contains(line, `"msg":"hello"`) || !strings.Contains(line, `"n":3`) {
		t.Fatalf("unexpected json: %q", line)
	}
}

func TestRedaction(t *testing.T) {
	cap := &captureOutput{}
	l := NewLogger(WithOutput(cap), WithRedaction("token"))
	l.Info("auth", Str("token", "secret"), Str("user", "d1"))
	f := cap.entries[0].Fields
	if f["token"] != "[REDACTED]" {
		t.Fatalf("token not redacted: %v", f["token"])
	}
	if f["user"] != "d1" {
		t.Fatalf("unrelated field altered: %v", f["user"])
	}
}

func TestSampling(t *testing.T) {
	cap := &captureOutput{}
	l := NewLogger(WithOutput(cap), WithSampling(2, 5))
	for i := 0; i < 12; i++ {
		l.Info("repeat")
	}
	// first 2 pass, then occurrences 0 and 5 of the remaining 10
	if len(cap.entries) != 4 {
		t.Fatalf("expected 4 sampled entries, got %d", len(cap.entries))
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"debug": DebugLevel, "INFO": InfoLevel, "warn": WarnLevel, "ERROR": ErrorLevel}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %v want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("bogus"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestApplyConfig(t *testing.T) {
	l, err := ApplyConfig(&Config{Level: "error", Format: "json", Output: "null"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if l.GetLevel() != ErrorLevel {
		t.Fatalf("level not applied")
	}
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := ApplyConfig(&Config{Output: "file"}); err == nil {
		t.Fatalf("expected error for file output without path")
	}
}
