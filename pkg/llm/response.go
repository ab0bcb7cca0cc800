package llm

import "time"

// Completion is the metadata a backend reports when a stream finishes.
type Completion struct {
	// Model that generated the response, as reported by the backend.
	Model string `json:"model,omitempty"`

	// Stop reason (e.g., "stop", "length")
	StopReason string `json:"stop_reason,omitempty"`

	// Token usage and timing metrics, when the backend reports them.
	Usage *Usage `json:"usage,omitempty"`
}

// Usage contains token counts and timing information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`

	// Timing, normalized to nanoseconds where the backend reports it.
	TotalDurationNs  int64 `json:"total_duration_ns,omitempty"`
	PromptDurationNs int64 `json:"prompt_duration_ns,omitempty"`
	EvalDurationNs   int64 `json:"eval_duration_ns,omitempty"`
}

// Model describes a model offered by a backend.
type Model struct {
	Name       string    `json:"name"`
	Family     string    `json:"family,omitempty"`
	Size       int64     `json:"size,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitzero"`
}
