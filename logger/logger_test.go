package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestWithToken(t *testing.T) {
	log := Logger()
	entry := log.WithToken(873870)
	if v, ok := entry.Entry.Data["token"]; !ok || v != uint32(873870) {
		t.Fatalf("token field not set: %v", entry.Entry.Data)
	}
}

func TestWithEnv(t *testing.T) {
	os.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestLogPerformanceEntry(t *testing.T) {
	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	entry := log.WithComponent("contractmaster")
	LogPerformanceEntry(entry, "contractmaster", "load", 5*time.Millisecond, Fields{"entries": 42})

	out := buf.String()
	for _, want := range []string{`"operation":"load"`, `"duration_ms"`, `"entries":42`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log output to contain %q, got: %s", want, out)
		}
	}
}

func TestLogDataFlowEntry(t *testing.T) {
	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	entry := log.WithComponent("pipeline")
	LogDataFlowEntry(entry, "decoder", "decompressor", 10, "quote")

	out := buf.String()
	for _, want := range []string{`"source":"decoder"`, `"destination":"decompressor"`, `"record_count":10`, `"data_type":"quote"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log output to contain %q, got: %s", want, out)
		}
	}
}
