// Package backend defines the streaming contract between the conversation
// engine and a model server. Implementations live in subpackages (ollama,
// openai) and are selected at construction; the engine only sees Backend and
// the Event sequence of a Stream.
package backend

import (
	"context"

	"github.com/vincenthz/ThinkMate/pkg/llm"
)

// Backend opens streaming chat completions against a model server.
type Backend interface {
	// Name returns the provider name (e.g. "ollama").
	Name() string

	// BeginStream starts a completion for req and returns immediately.
	// It never fails synchronously: connection and protocol problems are
	// delivered as a terminal EventFailed on the returned Stream.
	BeginStream(ctx context.Context, req *llm.ChatRequest) *Stream

	// ListModels returns the models the server can serve.
	ListModels(ctx context.Context) ([]llm.Model, error)
}
