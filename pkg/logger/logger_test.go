package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMiddleware_TagsRequestAndRecord(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(Middleware(l))
	r.GET("/api/calls/:id", func(c *gin.Context) {
		FromGin(c).Info("inside")
		c.Status(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/calls/rec-1", nil)
	req.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("X-Request-Id") != "req-42" {
		t.Fatalf("expected request id echoed, got %q", w.Header().Get("X-Request-Id"))
	}

	dec := json.NewDecoder(&buf)
	var lines []map[string]any
	for dec.More() {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	for _, m := range lines {
		if m["request_id"] != "req-42" || m["record_id"] != "rec-1" {
			t.Fatalf("expected request and record ids, got %v", m)
		}
	}
	if lines[1]["level"] != "WARN" || lines[1]["path"] != "/api/calls/:id" {
		t.Fatalf("expected warn summary for 404, got %v", lines[1])
	}
}

func TestFrom_FallsBackToDefault(t *testing.T) {
	if From(context.Background()) != slog.Default() {
		t.Fatalf("expected default logger")
	}
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if From(With(context.Background(), l)) != l {
		t.Fatalf("expected stored logger")
	}
	if _, ok := Lookup(context.Background()); ok {
		t.Fatalf("expected no logger in empty context")
	}
}

func TestNewWriter_LevelAndBaseAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "production")
	l.Debug("hidden")
	l.Info("shown")

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected exactly one json line, got %q", buf.String())
	}
	if m["msg"] != "shown" || m["service"] != "conference-orchestrator" || m["env"] != "production" {
		t.Fatalf("unexpected log line: %v", m)
	}

	buf.Reset()
	NewWriter(&buf, "dev").Debug("visible")
	if buf.Len() == 0 {
		t.Fatalf("expected debug output in dev")
	}
}
