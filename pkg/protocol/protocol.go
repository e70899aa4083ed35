// Package protocol defines the medquery chat protocol: conversation
// messages, request and response shapes, retrieved document
// projections, tool invocation records, and the streaming event union
// the orchestrator emits.
package protocol

import (
	"fmt"
	"time"
)

// ============================================================================
// CONVERSATION
// ============================================================================

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation. History order is meaningful
// and is never reordered.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// CreateUserMessage creates a user message.
func CreateUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// CreateAssistantMessage creates an assistant message.
func CreateAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ============================================================================
// MODES
// ============================================================================

// Mode selects the answering strategy for a request.
type Mode string

const (
	// ModeAsk answers directly from the model.
	ModeAsk Mode = "ask"
	// ModeRAG retrieves documents and answers from the assembled context.
	ModeRAG Mode = "rag"
	// ModeAgent lets the model invoke tools over multiple rounds.
	ModeAgent Mode = "agent"
)

// ParseMode converts a string to a Mode. Anything outside the closed
// set is an error.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAsk, ModeRAG, ModeAgent:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unsupported mode: %q (valid: ask, rag, agent)", s)
	}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeAsk, ModeRAG, ModeAgent:
		return true
	default:
		return false
	}
}

// ============================================================================
// REQUEST / RESPONSE
// ============================================================================

// Request is a chat request. Message is the current user turn; History
// holds the prior turns and never includes Message itself (the
// orchestrator appends it exactly once).
type Request struct {
	Message string    `json:"message"`
	Mode    Mode      `json:"mode"`
	History []Message `json:"history,omitempty"`

	// Provider and Model override the configured defaults per request.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// Stream selects SSE streaming on the HTTP surface.
	Stream bool `json:"stream,omitempty"`
}

// Response is the non-streaming result of a chat request.
type Response struct {
	Text      string             `json:"response"`
	Mode      Mode               `json:"mode"`
	Sources   []Source           `json:"sources,omitempty"`
	ToolCalls []ActionTraceEntry `json:"tool_calls,omitempty"`
}

// ============================================================================
// RETRIEVAL
// ============================================================================

// RetrievedDocument is a scored chunk from the vector store. Results
// arrive in descending score order and that order defines citation
// order everywhere downstream.
type RetrievedDocument struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	ChunkText string         `json:"chunk_text"`
	Score     float32        `json:"score"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	URL       string         `json:"url,omitempty"`
}

// Source is the caller-facing projection of a retrieved document.
// Content holds a preview of the chunk text; the full text still
// feeds the prompt context.
type Source struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
	URL      string         `json:"url,omitempty"`
}

// ============================================================================
// TOOLS
// ============================================================================

// ToolSchema describes a callable tool to the model. Parameters is a
// JSON schema object for the tool's arguments.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolInvocationRequest is one tool call requested by the model.
type ToolInvocationRequest struct {
	FunctionName string         `json:"function_name"`
	Arguments    map[string]any `json:"arguments"`
}

// ActionTraceEntry records one tool invocation attempt. The trace is
// append-only and keeps invocation order; failed attempts are entries
// like any other, never dropped.
type ActionTraceEntry struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Result     string         `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	Success    bool           `json:"success"`
}

// ============================================================================
// STREAMING
// ============================================================================

// StreamEventType discriminates stream events.
type StreamEventType string

const (
	// StreamEventContent carries a text fragment.
	StreamEventContent StreamEventType = "content"
	// StreamEventSources carries the retrieved sources, emitted before
	// any content in RAG mode.
	StreamEventSources StreamEventType = "sources"
	// StreamEventAction carries one completed tool invocation.
	StreamEventAction StreamEventType = "action"
	// StreamEventError carries a terminal error message.
	StreamEventError StreamEventType = "error"
	// StreamEventDone terminates the stream. Exactly one per stream,
	// always last, even after an error.
	StreamEventDone StreamEventType = "done"
)

// StreamEvent is one event of a chat stream (union type).
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	// Content fragment (StreamEventContent).
	Content string `json:"content,omitempty"`

	// Retrieved sources (StreamEventSources).
	Sources []Source `json:"sources,omitempty"`

	// Completed tool invocation (StreamEventAction).
	Action *ActionTraceEntry `json:"action,omitempty"`

	// Error message (StreamEventError).
	Error string `json:"error,omitempty"`

	// Accumulated tool trace (StreamEventDone, agent mode).
	ToolCalls []ActionTraceEntry `json:"tool_calls,omitempty"`
}

// ContentEvent creates a content fragment event.
func ContentEvent(text string) StreamEvent {
	return StreamEvent{Type: StreamEventContent, Content: text}
}

// SourcesEvent creates a sources event.
func SourcesEvent(sources []Source) StreamEvent {
	return StreamEvent{Type: StreamEventSources, Sources: sources}
}

// ActionEvent creates a tool invocation event.
func ActionEvent(entry ActionTraceEntry) StreamEvent {
	return StreamEvent{Type: StreamEventAction, Action: &entry}
}

// ErrorEvent creates a terminal error event.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: StreamEventError, Error: message}
}

// DoneEvent creates the terminal done event. toolCalls may be nil
// outside agent mode.
func DoneEvent(toolCalls []ActionTraceEntry) StreamEvent {
	return StreamEvent{Type: StreamEventDone, ToolCalls: toolCalls}
}
