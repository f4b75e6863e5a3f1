package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/duckmesh/tableagent/internal/agent"
	"github.com/duckmesh/tableagent/internal/auth"
)

type fakeAsker struct {
	prompts []string
	result  agent.Result
	err     error
}

func (f *fakeAsker) Run(_ context.Context, prompt string) (agent.Result, error) {
	f.prompts = append(f.prompts, prompt)
	return f.result, f.err
}

func TestAskDisabled(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"prompt":"hi"}`)))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "AGENT_DISABLED" {
		t.Fatalf("body = %v", body)
	}
}

func TestAskReturnsAgentResult(t *testing.T) {
	asker := &fakeAsker{result: agent.Result{Answer: "us leads", RequestID: "r-1", ToolCalls: 3, Vetoes: 1, Turns: 5}}
	h := NewHandler(testConfig(t, nil), Dependencies{Agent: asker})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"prompt":"who leads?"}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["answer"] != "us leads" || body["request_id"] != "r-1" || body["tool_calls"] != float64(3) || body["vetoes"] != float64(1) {
		t.Fatalf("body = %v", body)
	}
	if len(asker.prompts) != 1 || asker.prompts[0] != "who leads?" {
		t.Fatalf("prompts = %v", asker.prompts)
	}
}

func TestAskRejectsBadRequests(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Agent: &fakeAsker{}})
	for body, code := range map[string]string{
		`{"prompt":"  "}`:  "PROMPT_REQUIRED",
		`{"question":"x"}`: "INVALID_JSON",
		`not json`:         "INVALID_JSON",
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(body)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", body, rr.Code)
		}
		if got := decodeBody(t, rr)["error_code"]; got != code {
			t.Fatalf("%s: error_code = %v, want %s", body, got, code)
		}
	}
}

func TestAskRejectsOversizedBody(t *testing.T) {
	asker := &fakeAsker{}
	h := NewHandler(testConfig(t, nil), Dependencies{Agent: asker})
	body := `{"prompt":"` + strings.Repeat("a", 2*maxRequestBytes) + `"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(body)))

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if got := decodeBody(t, rr)["error_code"]; got != "BODY_TOO_LARGE" {
		t.Fatalf("error_code = %v, want BODY_TOO_LARGE", got)
	}
	if len(asker.prompts) != 0 {
		t.Fatalf("agent should not run, prompts = %d", len(asker.prompts))
	}
}

func TestAskMapsAgentErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("model completion: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "AGENT_TIMEOUT"},
		{agent.ErrTurnLimit, http.StatusBadGateway, "AGENT_TURN_LIMIT"},
		{errors.New("provider down"), http.StatusBadGateway, "AGENT_FAILED"},
	}
	for _, tc := range cases {
		h := NewHandler(testConfig(t, nil), Dependencies{Agent: &fakeAsker{err: tc.err, result: agent.Result{RequestID: "r-9"}}})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"prompt":"hi"}`)))
		if rr.Code != tc.status {
			t.Fatalf("%v: status = %d, want %d", tc.err, rr.Code, tc.status)
		}
		body := decodeBody(t, rr)
		if body["error_code"] != tc.code {
			t.Fatalf("%v: error_code = %v", tc.err, body["error_code"])
		}
		if extra := body["context"].(map[string]any); extra["request_id"] != "r-9" {
			t.Fatalf("%v: context = %v", tc.err, extra)
		}
	}
}

func TestAskRateLimitedPerSubject(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	h := NewHandler(testConfig(t, nil), Dependencies{Agent: &fakeAsker{}, AskLimiter: limiter})

	ask := func(subject string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"prompt":"hi"}`))
		if subject != "" {
			req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{Subject: subject, Roles: []string{auth.RoleAgentUser}}))
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := ask("a"); code != http.StatusOK {
		t.Fatalf("first request status = %d", code)
	}
	if code := ask("a"); code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", code)
	}
	if code := ask("b"); code != http.StatusOK {
		t.Fatalf("other subject status = %d", code)
	}
	if NewRateLimiter(0, 5) != nil {
		t.Fatal("non-positive rate must disable limiting")
	}
}
