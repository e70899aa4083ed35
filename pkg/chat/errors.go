package chat

import (
	"fmt"

	"github.com/medquery/medquery/pkg/protocol"
)

// UnsupportedModeError reports a request mode outside the closed
// ask/rag/agent set. It is returned before any provider call.
type UnsupportedModeError struct {
	Mode string
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("unsupported mode: %q (valid: ask, rag, agent)", e.Mode)
}

// RetrievalError reports a failed document retrieval in rag mode.
type RetrievalError struct {
	Query string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// GenerationError reports a generation call that failed or could not
// be resolved to a configured provider.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("generation failed (provider %s): %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ToolServerUnavailableError reports an agent request made without
// tool dispatch wired up.
type ToolServerUnavailableError struct {
	Err error
}

func (e *ToolServerUnavailableError) Error() string {
	return fmt.Sprintf("tool server unavailable: %v", e.Err)
}

func (e *ToolServerUnavailableError) Unwrap() error {
	return e.Err
}

// ToolInvocationError classifies one failed tool call. Failures stay
// in the action trace as data and never abort the round; this type
// carries the single wording used wherever one entry's failure is
// rendered.
type ToolInvocationError struct {
	Function string
	Err      error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("tool invocation failed (%s): %v", e.Function, e.Err)
}

func (e *ToolInvocationError) Unwrap() error {
	return e.Err
}

// ToolRoundLimitError ends an agent request whose model kept asking
// for tools past the configured round limit. The trace accumulated up
// to that point rides along.
type ToolRoundLimitError struct {
	Limit int
	Trace []protocol.ActionTraceEntry
}

func (e *ToolRoundLimitError) Error() string {
	return fmt.Sprintf("tool round limit exceeded after %d rounds", e.Limit)
}
