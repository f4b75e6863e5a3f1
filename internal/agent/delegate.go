package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/duckmesh/tableagent/internal/tools"
)

type Options struct {
	// Delegate puts an orchestrator in front of the data agent. The
	// orchestrator only sees the query_sql_agent tool.
	Delegate           bool
	GuardedTool        string
	MaxCalls           int
	MaxTurns           int
	MaxConcurrentTools int
}

// Build wires the runner serving /v1/ask. Without an explicit guarded tool the
// budget applies to query_data, or to query_sql_agent in delegate mode. In
// delegate mode the budget must sit on the orchestrator: the analyst runs once
// per query_sql_agent call, so a guard there would reset mid-request.
func Build(model Model, data *tools.Toolbox, opts Options, logger *slog.Logger) (*Runner, error) {
	analyst := Config{
		Name:               "analyst",
		SystemPrompt:       AnalystPrompt,
		MaxCalls:           opts.MaxCalls,
		MaxTurns:           opts.MaxTurns,
		MaxConcurrentTools: opts.MaxConcurrentTools,
	}
	if !opts.Delegate {
		analyst.GuardedTool = guardedOr(opts.GuardedTool, tools.QueryDataTool)
		return NewRunner(model, data, analyst, logger)
	}

	guarded := guardedOr(opts.GuardedTool, SubAgentTool)
	if guarded != SubAgentTool {
		if _, ok := data.Lookup(guarded); ok {
			return nil, fmt.Errorf("guarded tool %q belongs to the analyst; delegate mode guards %s", guarded, SubAgentTool)
		}
	}

	sub, err := NewRunner(model, data, analyst, logger)
	if err != nil {
		return nil, fmt.Errorf("build analyst agent: %w", err)
	}
	toolbox, err := SubAgentToolbox(sub)
	if err != nil {
		return nil, err
	}
	return NewRunner(model, toolbox, Config{
		Name:               "orchestrator",
		SystemPrompt:       OrchestratorPrompt,
		GuardedTool:        guarded,
		MaxCalls:           opts.MaxCalls,
		MaxTurns:           opts.MaxTurns,
		MaxConcurrentTools: opts.MaxConcurrentTools,
	}, logger)
}

// SubAgentToolbox exposes sub as a single query_sql_agent tool that answers
// with the sub-agent's final text.
func SubAgentToolbox(sub *Runner) (*tools.Toolbox, error) {
	toolbox := tools.NewToolbox()
	err := toolbox.Register(tools.Tool{
		Name:        SubAgentTool,
		Description: subAgentDescription,
		Parameters:  subAgentParameters,
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", tools.ErrInvalidArguments, err)
			}
			if strings.TrimSpace(in.Query) == "" {
				return nil, fmt.Errorf("%w: query is required", tools.ErrInvalidArguments)
			}
			res, err := sub.Run(ctx, in.Query)
			if err != nil {
				return nil, err
			}
			return res.Answer, nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", SubAgentTool, err)
	}
	return toolbox, nil
}

func guardedOr(configured, fallback string) string {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured
	}
	return fallback
}
