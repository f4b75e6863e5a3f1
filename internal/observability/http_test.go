package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/duckmesh/tableagent/internal/config"
)

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "trace-1" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareReplacesMissingOrMalformedTraceID(t *testing.T) {
	for _, incoming := range []string{"", "has space", strings.Repeat("a", maxTraceIDBytes+1), "x\ny"} {
		var seen string
		h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = TraceIDFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
		if incoming != "" {
			req.Header[traceHeader] = []string{incoming}
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if seen == "" || seen == incoming {
			t.Fatalf("incoming %q: trace id = %q, want a generated id", incoming, seen)
		}
		if got := rr.Header().Get(traceHeader); got != seen {
			t.Fatalf("incoming %q: header = %q, context = %q", incoming, got, seen)
		}
	}
}

func TestNewLoggerAddsTraceIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Profile: config.ProfileTest}
	cfg.Service.Name = "tableagent-test"
	cfg.Observability.LogJSON = true
	cfg.Observability.LogLevel = slog.LevelInfo
	logger := NewLogger(cfg, &buf)

	logger.InfoContext(ContextWithTraceID(context.Background(), "abc123"), "hello")
	logger.Info("no trace")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2: %s", len(lines), buf.String())
	}
	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode second line: %v", err)
	}
	if first["trace_id"] != "abc123" || first["service"] != "tableagent-test" {
		t.Fatalf("first line = %v", first)
	}
	if _, ok := second["trace_id"]; ok {
		t.Fatalf("second line should not carry trace_id: %v", second)
	}
}

func TestLoggingMiddlewareLogsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/ask", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["level"] != "WARN" || entry["status"] != float64(http.StatusBadGateway) {
		t.Fatalf("log entry = %v", entry)
	}
}

func TestMetricsMiddlewareLabelsUnknownPathsAsUnmatched(t *testing.T) {
	h := MetricsMiddleware("/v1/schema")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	known := map[string]string{"method": http.MethodGet, "path": "/v1/schema", "status": "418"}
	unknown := map[string]string{"method": http.MethodGet, "path": unmatchedRoute, "status": "418"}
	beforeKnown := gatheredValue(t, "tableagent_http_requests_total", known)
	beforeUnknown := gatheredValue(t, "tableagent_http_requests_total", unknown)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/schema/../../etc", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))

	if rr.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := gatheredValue(t, "tableagent_http_requests_total", known); got != beforeKnown+1 {
		t.Fatalf("known route count = %v, want %v", got, beforeKnown+1)
	}
	if got := gatheredValue(t, "tableagent_http_requests_total", unknown); got != beforeUnknown+2 {
		t.Fatalf("unmatched count = %v, want %v", got, beforeUnknown+2)
	}
}
