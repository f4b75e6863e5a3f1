package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrDuplicateTool    = errors.New("duplicate tool")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Handler runs one tool call. args is the raw JSON object sent by the model;
// the returned value is marshaled to JSON for the model.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Handler     Handler
}

// Definition is the model-facing description of a tool.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Toolbox is an ordered tool registry. Register during setup; lookups are
// safe for concurrent use once registration is done.
type Toolbox struct {
	order []string
	tools map[string]Tool
}

func NewToolbox() *Toolbox {
	return &Toolbox{tools: map[string]Tool{}}
}

func (b *Toolbox) Register(tool Tool) error {
	name := strings.TrimSpace(tool.Name)
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", name)
	}
	if _, exists := b.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	if len(tool.Parameters) == 0 {
		tool.Parameters = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	tool.Name = name
	b.tools[name] = tool
	b.order = append(b.order, name)
	return nil
}

func (b *Toolbox) Definitions() []Definition {
	out := make([]Definition, 0, len(b.order))
	for _, name := range b.order {
		tool := b.tools[name]
		out = append(out, Definition{Name: tool.Name, Description: tool.Description, Parameters: tool.Parameters})
	}
	return out
}

func (b *Toolbox) Lookup(name string) (Tool, bool) {
	tool, ok := b.tools[name]
	return tool, ok
}

func (b *Toolbox) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	tool, ok := b.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool.Handler(ctx, args)
}
