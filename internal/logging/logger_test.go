package logging_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyloom/internal/logging"
	"storyloom/internal/services"
)

func TestNewConsoleLoggerWritesToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out.log")

	logger, err := logging.New(logging.Options{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("poll cycle complete",
		logging.String(logging.FieldComponent, "tracker"),
		logging.Int("current", 40),
	)

	data := readFile(t, logPath)
	if !strings.Contains(data, "INFO tracker: poll cycle complete") {
		t.Fatalf("unexpected log line: %q", data)
	}
	if !strings.Contains(data, "current=40") {
		t.Fatalf("missing attribute: %q", data)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestJSONLoggerEmitsLowercaseLevel(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out.json")

	logger, err := logging.New(logging.Options{
		Level:            "warn",
		Format:           "json",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("suppressed")
	logger.Warn("slow poll")

	data := readFile(t, logPath)
	if strings.Contains(data, "suppressed") {
		t.Fatalf("info line should have been filtered: %q", data)
	}
	if !strings.Contains(data, `"level":"warn"`) {
		t.Fatalf("expected lowercase level key: %q", data)
	}
}

func TestWithContextAddsJobFields(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "ctx.log")

	base, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "job-7")
	ctx = services.WithRequestID(ctx, "req-1")
	logging.WithContext(ctx, base).Info("status fetched")

	data := readFile(t, logPath)
	if !strings.Contains(data, "job_id=job-7") || !strings.Contains(data, "correlation_id=req-1") {
		t.Fatalf("missing context fields: %q", data)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should report disabled")
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
