package agent

import (
	"context"

	"github.com/duckmesh/tableagent/internal/tools"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation sent to the model. Assistant
// messages may carry tool calls; tool messages answer one call by ID.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []tools.Call
	ToolCallID string
	Name       string
}

type Reply struct {
	Content      string
	ToolCalls    []tools.Call
	FinishReason string
}

// Model is the reasoning provider. A reply either answers in Content or asks
// for tool calls. Passing no definitions asks for a plain answer.
type Model interface {
	Complete(ctx context.Context, messages []Message, definitions []tools.Definition) (Reply, error)
}
