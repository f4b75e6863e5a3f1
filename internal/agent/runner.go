package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/duckmesh/tableagent/internal/guard"
	"github.com/duckmesh/tableagent/internal/observability"
	"github.com/duckmesh/tableagent/internal/tools"
)

var (
	ErrEmptyPrompt = errors.New("prompt is required")
	ErrTurnLimit   = errors.New("agent turn limit reached")
)

const (
	DefaultMaxTurns           = 8
	DefaultMaxConcurrentTools = 4
)

type Config struct {
	Name         string
	SystemPrompt string
	// GuardedTool is budgeted per request; empty disables the guard.
	GuardedTool        string
	MaxCalls           int
	MaxTurns           int
	MaxConcurrentTools int
}

type Result struct {
	Answer    string `json:"answer"`
	RequestID string `json:"request_id"`
	ToolCalls int    `json:"tool_calls"`
	Vetoes    int    `json:"vetoes"`
	Turns     int    `json:"turns"`
}

// Runner drives the tool loop for one agent. Each Run gets its own guard and
// session, so concurrent runs never share a call budget.
type Runner struct {
	model   Model
	toolbox *tools.Toolbox
	cfg     Config
	logger  *slog.Logger
}

func NewRunner(model Model, toolbox *tools.Toolbox, cfg Config, logger *slog.Logger) (*Runner, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if toolbox == nil {
		return nil, fmt.Errorf("toolbox is required")
	}
	if cfg.GuardedTool != "" {
		if _, ok := toolbox.Lookup(cfg.GuardedTool); !ok {
			return nil, fmt.Errorf("guarded tool %q is not registered", cfg.GuardedTool)
		}
	}
	if cfg.Name == "" {
		cfg.Name = "agent"
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.MaxConcurrentTools <= 0 {
		cfg.MaxConcurrentTools = DefaultMaxConcurrentTools
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{model: model, toolbox: toolbox, cfg: cfg, logger: logger}, nil
}

func (r *Runner) Run(ctx context.Context, prompt string) (Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Result{}, ErrEmptyPrompt
	}

	start := time.Now()
	result := Result{RequestID: uuid.NewString()}
	logger := r.logger.With(
		slog.String("agent", r.cfg.Name),
		slog.String("request_id", result.RequestID),
	)

	var (
		interceptors []tools.Interceptor
		budget       *guard.Guard
	)
	if r.cfg.GuardedTool != "" {
		budget = guard.New(r.cfg.GuardedTool, r.cfg.MaxCalls)
		interceptors = append(interceptors, budget)
		logger.DebugContext(ctx, "call budget armed",
			slog.String("tool", budget.Tool()),
			slog.Int("max_calls", budget.MaxCalls()),
		)
	}
	session := tools.NewSession(r.toolbox, logger, interceptors...)
	session.Begin()

	err := r.loop(ctx, session, prompt, &result)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrTurnLimit):
		outcome = "turn_limit"
	case err != nil:
		outcome = "error"
	}
	observability.ObserveAgentRun(outcome, time.Since(start))
	logger.InfoContext(ctx, "agent run finished",
		slog.String("outcome", outcome),
		slog.Int("turns", result.Turns),
		slog.Int("tool_calls", result.ToolCalls),
		slog.Int("vetoes", result.Vetoes),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("budget_exhausted", budget != nil && budget.Exhausted()),
	)
	return result, err
}

func (r *Runner) loop(ctx context.Context, session *tools.Session, prompt string, result *Result) error {
	messages := []Message{{Role: RoleUser, Content: prompt}}
	if r.cfg.SystemPrompt != "" {
		messages = append([]Message{{Role: RoleSystem, Content: r.cfg.SystemPrompt}}, messages...)
	}
	definitions := r.toolbox.Definitions()

	for turn := 0; turn < r.cfg.MaxTurns; turn++ {
		result.Turns = turn + 1
		offered := definitions
		if turn == r.cfg.MaxTurns-1 {
			offered = nil
		}
		reply, err := r.model.Complete(ctx, messages, offered)
		if err != nil {
			return fmt.Errorf("model completion: %w", err)
		}
		if len(reply.ToolCalls) == 0 {
			result.Answer = reply.Content
			return nil
		}
		if offered == nil {
			break
		}

		calls := normalizeCalls(reply.ToolCalls, turn)
		messages = append(messages, Message{Role: RoleAssistant, Content: reply.Content, ToolCalls: calls})
		outputs, err := r.dispatch(ctx, session, calls)
		if err != nil {
			return err
		}
		for _, out := range outputs {
			if out.Vetoed {
				result.Vetoes++
			} else {
				result.ToolCalls++
			}
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    out.Content,
				ToolCallID: out.CallID,
				Name:       out.Name,
			})
		}
	}
	return ErrTurnLimit
}

// dispatch runs one turn's calls concurrently and returns outputs in call
// order.
func (r *Runner) dispatch(ctx context.Context, session *tools.Session, calls []tools.Call) ([]tools.Output, error) {
	outputs := make([]tools.Output, len(calls))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.cfg.MaxConcurrentTools)
	for i, call := range calls {
		group.Go(func() error {
			outputs[i] = session.Invoke(groupCtx, call)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func normalizeCalls(calls []tools.Call, turn int) []tools.Call {
	out := make([]tools.Call, len(calls))
	for i, call := range calls {
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d_%d", turn, i)
		}
		if len(call.Arguments) == 0 {
			call.Arguments = []byte("{}")
		}
		out[i] = call
	}
	return out
}
