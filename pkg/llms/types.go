package llms

import (
	"context"

	"github.com/medquery/medquery/pkg/protocol"
)

// StreamChunkType identifies what a streaming chunk carries.
const (
	ChunkTypeText     = "text"
	ChunkTypeToolCall = "tool_call"
	ChunkTypeDone     = "done"
	ChunkTypeError    = "error"
)

// StreamChunk is one unit of a streaming generation. Text chunks carry
// deltas, tool_call chunks carry a fully accumulated invocation, done
// carries the token count, and error terminates the stream.
type StreamChunk struct {
	Type     string
	Text     string
	ToolCall *protocol.ToolInvocationRequest
	Tokens   int
	Error    error
}

// LLMProvider is the generation client. The system prompt travels
// separately from the conversation because each provider places it
// differently on the wire.
type LLMProvider interface {
	// Generate performs a non-streaming request.
	// Returns the response text, any tool invocations the model
	// requested, and the total tokens used.
	Generate(ctx context.Context, system string, messages []protocol.Message, tools []protocol.ToolSchema) (text string, toolCalls []protocol.ToolInvocationRequest, tokens int, err error)

	// GenerateStreaming performs a streaming request. The returned
	// channel is always closed by the provider; a failed stream is
	// reported as an error chunk, never a panic or a leak.
	GenerateStreaming(ctx context.Context, system string, messages []protocol.Message, tools []protocol.ToolSchema) (<-chan StreamChunk, error)

	GetModelName() string

	GetMaxTokens() int

	GetTemperature() float64

	Close() error
}
