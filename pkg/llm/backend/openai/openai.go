// Package openai implements backend.Backend against OpenAI-compatible
// servers such as llama.cpp, LM Studio or vLLM.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/vincenthz/ThinkMate/pkg/llm"
	"github.com/vincenthz/ThinkMate/pkg/llm/backend"
	"github.com/vincenthz/ThinkMate/pkg/logger"
)

const (
	// DefaultTarget is llama.cpp's default server address.
	DefaultTarget = "http://localhost:8080"

	defaultConnectTimeout = 10 * time.Second
)

// Config configures the OpenAI-compatible backend.
type Config struct {
	// Target is the server base URL. A trailing "/v1" is added when absent.
	Target string

	// APIKey is sent as a bearer token. Local servers usually ignore it.
	APIKey string

	// ConnectTimeout bounds connection establishment only.
	ConnectTimeout time.Duration

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client

	Logger *slog.Logger
}

// Backend streams chat completions from an OpenAI-compatible server.
type Backend struct {
	client *goopenai.Client
	logger *slog.Logger
}

// New creates an OpenAI-compatible backend.
func New(c *Config) *Backend {
	target := strings.TrimRight(c.Target, "/")
	if target == "" {
		target = DefaultTarget
	}
	if !strings.HasSuffix(target, "/v1") {
		target += "/v1"
	}

	httpClient := c.Client
	if httpClient == nil {
		timeout := c.ConnectTimeout
		if timeout <= 0 {
			timeout = defaultConnectTimeout
		}

		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
		httpClient = &http.Client{Transport: transport}
	}

	config := goopenai.DefaultConfig(c.APIKey)
	config.BaseURL = target
	config.HTTPClient = httpClient

	return &Backend{
		client: goopenai.NewClientWithConfig(config),
		logger: logger.OrNop(c.Logger).With("component", "openai"),
	}
}

func (b *Backend) Name() string {
	return "openai"
}

// BeginStream opens a streaming chat completion.
func (b *Backend) BeginStream(ctx context.Context, req *llm.ChatRequest) *backend.Stream {
	wire := chatRequest(req)

	b.logger.Debug("starting chat stream",
		"model", req.Model,
		"message_count", len(wire.Messages),
	)

	return backend.Start(ctx, func(ctx context.Context, emit backend.Emit) (*llm.Completion, error) {
		return b.stream(ctx, wire, emit)
	})
}

func (b *Backend) stream(ctx context.Context, req goopenai.ChatCompletionRequest, emit backend.Emit) (*llm.Completion, error) {
	stream, err := b.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	defer stream.Close()

	completion := &llm.Completion{Model: req.Model}
	chunks := 0

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			b.logger.Debug("chat stream finished",
				"model", completion.Model,
				"chunks", chunks,
				"stop_reason", completion.StopReason,
			)
			return completion, nil
		}
		if err != nil {
			return nil, classify(err)
		}
		chunks++

		if resp.Model != "" {
			completion.Model = resp.Model
		}
		if resp.Usage != nil {
			completion.Usage = &llm.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			completion.StopReason = string(choice.FinishReason)
		}
		if choice.Delta.Content != "" {
			if !emit(choice.Delta.Content) {
				return nil, context.Canceled
			}
		}
	}
}

// ListModels returns the models the server advertises on /v1/models.
func (b *Backend) ListModels(ctx context.Context) ([]llm.Model, error) {
	list, err := b.client.ListModels(ctx)
	if err != nil {
		return nil, classify(err)
	}

	models := make([]llm.Model, 0, len(list.Models))
	for _, m := range list.Models {
		model := llm.Model{Name: m.ID, Family: m.OwnedBy}
		if m.CreatedAt > 0 {
			model.ModifiedAt = time.Unix(m.CreatedAt, 0).UTC()
		}
		models = append(models, model)
	}
	return models, nil
}

func chatRequest(req *llm.ChatRequest) goopenai.ChatCompletionRequest {
	messages := req.WithSystem()
	wire := goopenai.ChatCompletionRequest{
		Model:         req.Model,
		Messages:      make([]goopenai.ChatCompletionMessage, 0, len(messages)),
		Stream:        true,
		StreamOptions: &goopenai.StreamOptions{IncludeUsage: true},
	}
	for _, m := range messages {
		wire.Messages = append(wire.Messages, goopenai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	if req.MaxTokens != nil {
		wire.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		wire.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		wire.TopP = float32(*req.TopP)
	}
	if req.Seed != nil {
		seed := *req.Seed
		wire.Seed = &seed
	}
	return wire
}

// classify maps client errors onto backend failures. Explicit HTTP errors
// from the server are ServerError; everything else is left to
// backend.Classify.
func classify(err error) *backend.Failure {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode > 0 {
			return &backend.Failure{
				Kind:    backend.ServerError,
				Message: fmt.Sprintf("status %d: %s", apiErr.HTTPStatusCode, apiErr.Message),
				Err:     err,
			}
		}
		return &backend.Failure{Kind: backend.ServerError, Message: apiErr.Message, Err: err}
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &backend.Failure{
			Kind:    backend.ServerError,
			Message: fmt.Sprintf("status %d", reqErr.HTTPStatusCode),
			Err:     err,
		}
	}

	return backend.Classify(err)
}
