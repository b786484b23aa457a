// Package models contains shared data models used across the portalpilot codebase.
package models

import (
	"context"
)

// AIProvider is the core interface that all LLM integrations must implement.
// Never call specific providers directly; always inject this interface.
type AIProvider interface {
	// Complete sends the conversation and returns the assistant's reply text.
	Complete(ctx context.Context, req ChatRequest) (string, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
	// Model returns the model the provider talks to.
	Model() string
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the input to a completion call.
type ChatRequest struct {
	Messages    []ChatMessage
	Temperature *float64 // nil = model default
	SchemaName  string
	Schema      any // JSON schema for structured output; nil = free text
}

// PromptDecision is what the LLM answers each turn: the next prompt to submit
// and whether the loop should stop.
type PromptDecision struct {
	Prompt  string `json:"prompt" jsonschema:"description=Next prompt to submit to the portal"`
	Success bool   `json:"FLAG_SUCCESS" jsonschema:"description=True once the objective has been met"`
	Stop    bool   `json:"FLAG_STOP" jsonschema:"description=True when the loop should terminate"`
}
