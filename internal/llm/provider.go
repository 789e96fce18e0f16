// Package llm sends chat-style prompts to a language model.
package llm

import "context"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a prompt.
type Message struct {
	Role    Role
	Content string
}

// Options tunes a single completion call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Provider returns the model's text for an ordered list of messages.
type Provider interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }
