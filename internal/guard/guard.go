package guard

import (
	"fmt"
	"sync"
)

const DefaultMaxCalls = 3

// Decision is the outcome of BeforeToolCall. A vetoed call carries the
// message that is handed back to the model in place of the tool result.
type Decision struct {
	Permitted bool
	Reason    string
}

// Guard caps how many times one named tool may run during a single
// request. Calls to other tools are never counted or vetoed.
type Guard struct {
	tool     string
	maxCalls int

	mu    sync.Mutex
	calls int
}

// New returns a guard for tool. maxCalls <= 0 selects DefaultMaxCalls.
func New(tool string, maxCalls int) *Guard {
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCalls
	}
	return &Guard{tool: tool, maxCalls: maxCalls}
}

func (g *Guard) Tool() string {
	return g.tool
}

func (g *Guard) MaxCalls() int {
	return g.maxCalls
}

// OnRequestStart resets the counter. Call it once per top-level request.
func (g *Guard) OnRequestStart() {
	g.mu.Lock()
	g.calls = 0
	g.mu.Unlock()
}

// BeforeToolCall counts a call to the guarded tool and vetoes it once the
// count exceeds the limit. The check and the increment happen under one lock
// so concurrent callers never get more than maxCalls permits.
func (g *Guard) BeforeToolCall(name string) Decision {
	if name != g.tool {
		return Decision{Permitted: true}
	}
	g.mu.Lock()
	g.calls++
	calls := g.calls
	g.mu.Unlock()

	if calls > g.maxCalls {
		return Decision{Permitted: false, Reason: VetoMessage(g.tool, g.maxCalls)}
	}
	return Decision{Permitted: true}
}

// Calls reports attempted calls to the guarded tool, vetoed ones included.
func (g *Guard) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Exhausted reports whether a call past the limit was attempted and vetoed.
func (g *Guard) Exhausted() bool {
	return g.Calls() > g.maxCalls
}

func VetoMessage(tool string, maxCalls int) string {
	return fmt.Sprintf(
		"The %s tool has reached its maximum limit of %d calls. You MUST now provide an answer based on the information already gathered. DO NOT attempt to call %s again.",
		tool, maxCalls, tool,
	)
}
