package tableagentctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRunSchemaCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"region":"string","revenue":"float"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-api-key", "k1",
		"schema",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodGet || gotPath != "/v1/schema" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAPIKey != "k1" {
		t.Fatalf("X-API-Key = %q", gotAPIKey)
	}
	if !strings.Contains(stdout.String(), `"region": "string"`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunQueryCommandFromArgAndStdin(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/query" {
			t.Fatalf("request = %s %s", r.Method, r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(raw))
		_, _ = w.Write([]byte(`{"data":[],"shape":{"rows":0,"columns":0}}`))
	}))
	defer srv.Close()

	if code := Run(context.Background(), []string{"-base-url", srv.URL, "query", `{"limit":5}`}, Options{}); code != 0 {
		t.Fatalf("arg exit code = %d", code)
	}
	stdin := strings.NewReader(`{"order_by":"revenue"}` + "\n")
	if code := Run(context.Background(), []string{"-base-url", srv.URL, "query", "-"}, Options{Stdin: stdin}); code != 0 {
		t.Fatalf("stdin exit code = %d", code)
	}
	if len(bodies) != 2 || bodies[0] != `{"limit":5}` || bodies[1] != `{"order_by":"revenue"}` {
		t.Fatalf("bodies = %q", bodies)
	}
}

func TestRunQueryRejectsInvalidJSON(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", "http://127.0.0.1:1", "query", "{limit"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "not valid JSON") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunAskCommand(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ask" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"answer":"us","request_id":"r","tool_calls":2,"vetoes":0}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "ask", "which", "region", "leads?"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got["prompt"] != "which region leads?" {
		t.Fatalf("prompt = %q", got["prompt"])
	}
	if !strings.Contains(stdout.String(), `"tool_calls": 2`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
		_, _ = w.Write([]byte(`{"error_code":"AGENT_DISABLED"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "ask", "hi"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "http 501") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	for _, args := range [][]string{{}, {"lag"}, {"ask"}} {
		var stderr bytes.Buffer
		if code := Run(context.Background(), args, Options{Stderr: &stderr}); code != 2 {
			t.Fatalf("Run(%v) exit code = %d, want 2", args, code)
		}
	}
}
