package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(level slog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Component: "test", Output: &buf}), &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestLoggerStampsComponent(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)
	logger.WithComponent(ComponentParser).Info("hello", FieldRows, 3)

	out := buf.String()
	if !strings.Contains(out, "component=parser") || !strings.Contains(out, "rows=3") {
		t.Fatalf("unexpected output: %s", out)
	}
	if strings.Count(out, "component=") != 1 {
		t.Fatalf("component should appear once: %s", out)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelWarn)
	logger.Info("hidden")
	logger.Debug("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("level filtering broken: %s", buf.String())
	}
}

func TestLogFieldsToSliceIsSorted(t *testing.T) {
	got := NewFields().WithOperation(OpParse).WithComponent(ComponentApp).WithError(errors.New("boom")).ToSlice()
	want := []any{FieldComponent, ComponentApp, FieldError, "boom", FieldOperation, OpParse}
	if len(got) != len(want) {
		t.Fatalf("ToSlice = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ToSlice[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)
	h := RequestIDMiddleware(logger, func(*http.Request) string { return "req-42" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("inside")
		}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Fatalf("request id missing: %s", buf.String())
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatalf("expected fallback logger")
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)
	sl := NewStructuredLogger(logger)
	r := httptest.NewRequest(http.MethodPost, "/api/dataset", nil)

	sl.LogHTTPEnd(context.Background(), r, http.StatusUnprocessableEntity, 3, "127.0.0.1")
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "status_code=422") {
		t.Fatalf("4xx should log at warn: %s", buf.String())
	}

	buf.Reset()
	sl.LogDatasetLoaded(context.Background(), "id-1", "orders.csv", 10, 8)
	if !strings.Contains(buf.String(), "dropped=2") {
		t.Fatalf("dropped count missing: %s", buf.String())
	}
}
