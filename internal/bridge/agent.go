package bridge

import "context"

// Agent is the black-box agentic LLM runtime the Gateway fronts. It is not
// implemented by this module; the Gateway only consumes it.
type Agent interface {
	// Communicate invokes the agent with a user message and returns its
	// final response text. If onChunk is non-nil, the agent streams
	// intermediate text chunks to it before returning.
	Communicate(ctx context.Context, msg UserMessage, onChunk func(chunk string)) (string, error)
}

// UserMessage is what the Bridge hands to the Agent for one turn.
type UserMessage struct {
	Content        string
	Attachments    []string // local paths only, never URLs
	SystemMessages []string
}
