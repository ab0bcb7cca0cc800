package llm

// ChatRequest is a provider-neutral streaming chat completion request.
// Backends translate it into their own wire format.
type ChatRequest struct {
	// Model name (e.g., "gemma3:latest", "llama3.2")
	Model string `json:"model"`

	// Conversation history, oldest first.
	Messages []Message `json:"messages"`

	// System prompt, sent ahead of Messages when non-empty.
	System string `json:"system,omitempty"`

	Options
}

// Options are the generation parameters of a request. Nil leaves the
// backend default in place.
type Options struct {
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
}

// IsZero reports whether no parameter is set.
func (o Options) IsZero() bool {
	return o.MaxTokens == nil && o.Temperature == nil && o.TopP == nil && o.Seed == nil
}

// WithSystem returns the history with the system prompt prepended as a
// system message, the form most chat endpoints expect.
func (r *ChatRequest) WithSystem() []Message {
	if r.System == "" {
		return r.Messages
	}

	out := make([]Message, 0, len(r.Messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: r.System})
	return append(out, r.Messages...)
}
