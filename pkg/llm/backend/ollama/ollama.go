// Package ollama implements backend.Backend against Ollama's native
// streaming /api/chat endpoint.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vincenthz/ThinkMate/pkg/llm"
	"github.com/vincenthz/ThinkMate/pkg/llm/backend"
	"github.com/vincenthz/ThinkMate/pkg/logger"
)

const (
	// DefaultTarget is where a local Ollama listens by default.
	DefaultTarget = "http://localhost:11434"

	defaultConnectTimeout = 10 * time.Second

	// maxErrorBody bounds how much of a failed response is read for the
	// error message.
	maxErrorBody = 4 * 1024
)

// Config configures the Ollama backend.
type Config struct {
	// Target is the server base URL, e.g. "http://localhost:11434".
	Target string

	// ConnectTimeout bounds connection establishment only. Streams
	// themselves have no deadline.
	ConnectTimeout time.Duration

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client

	Logger *slog.Logger
}

// Backend streams chat completions from an Ollama server.
type Backend struct {
	target string
	client *http.Client
	logger *slog.Logger
}

// New creates an Ollama backend.
func New(c *Config) *Backend {
	target := strings.TrimRight(c.Target, "/")
	if target == "" {
		target = DefaultTarget
	}

	client := c.Client
	if client == nil {
		timeout := c.ConnectTimeout
		if timeout <= 0 {
			timeout = defaultConnectTimeout
		}

		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
		client = &http.Client{Transport: transport}
	}

	return &Backend{
		target: target,
		client: client,
		logger: logger.OrNop(c.Logger).With("component", "ollama"),
	}
}

func (b *Backend) Name() string {
	return "ollama"
}

// BeginStream posts req to /api/chat and streams the NDJSON response.
func (b *Backend) BeginStream(ctx context.Context, req *llm.ChatRequest) *backend.Stream {
	messages := req.WithSystem()
	wire := chatRequest{
		Model:    req.Model,
		Messages: make([]chatMessage, 0, len(messages)),
		Stream:   true,
	}
	for _, m := range messages {
		wire.Messages = append(wire.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	if !req.Options.IsZero() {
		wire.Options = &ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			Seed:        req.Seed,
			NumPredict:  req.MaxTokens,
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return backend.Failed(backend.NewProtocolError("marshaling request: %v", err))
	}

	b.logger.Debug("starting chat stream",
		"target", b.target,
		"model", req.Model,
		"message_count", len(wire.Messages),
	)

	return backend.Start(ctx, func(ctx context.Context, emit backend.Emit) (*llm.Completion, error) {
		return b.stream(ctx, body, emit)
	})
}

func (b *Backend) stream(ctx context.Context, body []byte, emit backend.Emit) (*llm.Completion, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.target+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, backend.NewProtocolError("creating request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusFailure(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			b.logger.Debug("failed to parse stream chunk",
				"error", err,
				"line", string(line),
			)
			return nil, backend.NewProtocolError("malformed stream chunk: %v", err)
		}

		if chunk.Error != "" {
			return nil, backend.NewServerError("%s", chunk.Error)
		}

		if chunk.Message.Content != "" {
			if !emit(chunk.Message.Content) {
				return nil, context.Canceled
			}
		}

		if chunk.Done {
			b.logger.Debug("chat stream finished",
				"model", chunk.Model,
				"done_reason", chunk.DoneReason,
				"eval_count", chunk.EvalCount,
			)
			return completionFrom(&chunk), nil
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}

	return nil, backend.NewProtocolError("stream ended before completion")
}

// ListModels returns the models pulled into the Ollama server.
func (b *Backend) ListModels(ctx context.Context) ([]llm.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.target+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, backend.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusFailure(resp)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, backend.NewProtocolError("decoding model list: %v", err)
	}

	models := make([]llm.Model, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, llm.Model{
			Name:       m.Name,
			Family:     m.Details.Family,
			Size:       m.Size,
			ModifiedAt: m.ModifiedAt,
		})
	}
	return models, nil
}

func completionFrom(chunk *chatChunk) *llm.Completion {
	return &llm.Completion{
		Model:      chunk.Model,
		StopReason: chunk.DoneReason,
		Usage: &llm.Usage{
			PromptTokens:     chunk.PromptEvalCount,
			CompletionTokens: chunk.EvalCount,
			TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
			TotalDurationNs:  chunk.TotalDuration,
			PromptDurationNs: chunk.PromptEvalDuration,
			EvalDurationNs:   chunk.EvalDuration,
		},
	}
}

// statusFailure turns a non-200 response into a ServerError, preferring
// Ollama's {"error": "..."} body when present.
func statusFailure(resp *http.Response) *backend.Failure {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var e errorResponse
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return backend.NewServerError("status %d: %s", resp.StatusCode, e.Error)
	}
	return backend.NewServerError("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
