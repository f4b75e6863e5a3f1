package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/duckmesh/tableagent/internal/agent"
)

type askRequest struct {
	Prompt string `json:"prompt"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Agent == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "AGENT_DISABLED", "agent is not enabled", false, nil)
		return
	}
	if deps.AskLimiter != nil && !deps.AskLimiter.Allow(r) {
		writeError(r.Context(), w, http.StatusTooManyRequests, "RATE_LIMITED", "too many agent requests", true, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body is too large", false, map[string]any{"limit_bytes": tooLarge.Limit})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Prompt) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
		return
	}

	ctx := r.Context()
	if deps.AskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.AskTimeout)
		defer cancel()
	}
	result, err := deps.Agent.Run(ctx, request.Prompt)
	if err != nil {
		extra := map[string]any{"request_id": result.RequestID}
		switch {
		case errors.Is(err, agent.ErrEmptyPrompt):
			writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
		case errors.Is(err, context.DeadlineExceeded):
			writeError(r.Context(), w, http.StatusGatewayTimeout, "AGENT_TIMEOUT", "agent did not answer in time", true, extra)
		case errors.Is(err, agent.ErrTurnLimit):
			writeError(r.Context(), w, http.StatusBadGateway, "AGENT_TURN_LIMIT", "agent did not produce an answer", true, extra)
		default:
			if deps.Logger != nil {
				deps.Logger.ErrorContext(r.Context(), "agent run failed", "request_id", result.RequestID, "error", err)
			}
			extra["details"] = err.Error()
			writeError(r.Context(), w, http.StatusBadGateway, "AGENT_FAILED", "agent run failed", true, extra)
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}
