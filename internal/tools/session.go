package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/duckmesh/tableagent/internal/guard"
	"github.com/duckmesh/tableagent/internal/observability"
	"github.com/duckmesh/tableagent/internal/query"
)

const (
	CodeUnknownColumn     = "UNKNOWN_COLUMN"
	CodeInvalidExpression = "INVALID_EXPRESSION"
	CodeTypeMismatch      = "TYPE_MISMATCH"
	CodeInvalidArguments  = "INVALID_ARGUMENTS"
	CodeUnknownTool       = "UNKNOWN_TOOL"
	CodeToolFailed        = "TOOL_FAILED"
)

// Interceptor sees every tool call of a session before it runs. *guard.Guard
// implements it.
type Interceptor interface {
	OnRequestStart()
	BeforeToolCall(name string) guard.Decision
}

type Call struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Output is what the model receives for one call. Content is the JSON result,
// the error payload, or the veto directive.
type Output struct {
	CallID    string        `json:"call_id"`
	Name      string        `json:"name"`
	Content   string        `json:"content"`
	Vetoed    bool          `json:"vetoed,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	Duration  time.Duration `json:"-"`
}

// Session runs the tool calls of one top-level request.
type Session struct {
	toolbox      *Toolbox
	logger       *slog.Logger
	interceptors []Interceptor
}

func NewSession(toolbox *Toolbox, logger *slog.Logger, interceptors ...Interceptor) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{toolbox: toolbox, logger: logger, interceptors: interceptors}
}

// Begin resets every interceptor. Call it once when the request starts.
func (s *Session) Begin() {
	for _, interceptor := range s.interceptors {
		interceptor.OnRequestStart()
	}
}

// Invoke never returns an error: failures become error payloads the model can
// read and react to.
func (s *Session) Invoke(ctx context.Context, call Call) Output {
	out := Output{CallID: call.ID, Name: call.Name}
	for _, interceptor := range s.interceptors {
		decision := interceptor.BeforeToolCall(call.Name)
		if decision.Permitted {
			continue
		}
		observability.IncrementToolVeto(call.Name)
		s.logger.WarnContext(ctx, "tool call vetoed",
			slog.String("tool", call.Name),
			slog.String("call_id", call.ID),
		)
		out.Vetoed = true
		out.Content = decision.Reason
		return out
	}

	start := time.Now()
	value, err := s.call(ctx, call)
	out.Duration = time.Since(start)
	if err != nil {
		out.ErrorCode = ErrorCode(err)
		out.Content = errorPayload(out.ErrorCode, err)
		observability.ObserveToolCall(call.Name, "error", out.Duration)
		s.logger.InfoContext(ctx, "tool call failed",
			slog.String("tool", call.Name),
			slog.String("call_id", call.ID),
			slog.String("error_code", out.ErrorCode),
			slog.Any("error", err),
		)
		return out
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		out.ErrorCode = CodeToolFailed
		out.Content = errorPayload(CodeToolFailed, fmt.Errorf("encode result: %w", err))
		observability.ObserveToolCall(call.Name, "error", out.Duration)
		return out
	}
	out.Content = string(encoded)
	observability.ObserveToolCall(call.Name, "ok", out.Duration)
	if result, ok := value.(query.Result); ok {
		if len(result.DroppedAggregations) > 0 {
			s.logger.InfoContext(ctx, "unsupported aggregations dropped",
				slog.String("call_id", call.ID),
				slog.Any("aggregations", result.DroppedAggregations),
			)
		}
		s.logger.DebugContext(ctx, "query executed",
			slog.String("call_id", call.ID),
			slog.Any("filter_columns", result.FilterColumns),
			slog.Int("rows", result.Shape.Rows),
		)
	}
	s.logger.DebugContext(ctx, "tool call completed",
		slog.String("tool", call.Name),
		slog.String("call_id", call.ID),
		slog.String("duration", out.Duration.String()),
	)
	return out
}

func (s *Session) call(ctx context.Context, call Call) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()
	return s.toolbox.Call(ctx, call.Name, call.Arguments)
}

func ErrorCode(err error) string {
	switch {
	case errors.Is(err, query.ErrUnknownColumn):
		return CodeUnknownColumn
	case errors.Is(err, query.ErrInvalidExpression):
		return CodeInvalidExpression
	case errors.Is(err, query.ErrTypeMismatch):
		return CodeTypeMismatch
	case errors.Is(err, ErrInvalidArguments):
		return CodeInvalidArguments
	case errors.Is(err, ErrUnknownTool):
		return CodeUnknownTool
	default:
		return CodeToolFailed
	}
}

func errorPayload(code string, err error) string {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": err.Error(),
		},
	}
	encoded, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return fmt.Sprintf(`{"error":{"code":%q,"message":"unencodable error"}}`, code)
	}
	return string(encoded)
}
