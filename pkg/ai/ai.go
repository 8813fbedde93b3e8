package ai

import (
	"context"
)

// ChatMessage represents a single message in a multi-turn conversation.
//
// Role must be one of:
//   - "user"      → a user-provided message
//   - "assistant" → a message from the AI assistant
type ChatMessage struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// AppendExchange returns a new history with one user/assistant round appended.
// The input slice is never mutated, so callers can thread a conversation by
// value and replay any prefix of it.
func AppendExchange(history []ChatMessage, userMsg, assistantMsg string) []ChatMessage {
	out := make([]ChatMessage, 0, len(history)+2)
	out = append(out, history...)
	out = append(out,
		ChatMessage{Role: "user", Message: userMsg},
		ChatMessage{Role: "assistant", Message: assistantMsg},
	)
	return out
}

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model         string        // Model identifier to use for generation
	SystemPrompts []string      // System prompts prepended to the request
	History       []ChatMessage // Prior conversation turns preceding the prompt
	Temperature   float64       // Sampling temperature (0.0-2.0)
	MaxTokens     int           // Response token cap; 0 leaves the model default
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithHistory returns a GenerateOption that supplies prior conversation turns.
// The prompt is appended after the history as the final user message.
func WithHistory(history []ChatMessage) GenerateOption {
	return func(o *GenerateOptions) {
		o.History = history
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithMaxTokens returns a GenerateOption that caps the response length.
func WithMaxTokens(maxTokens int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = maxTokens
	}
}

// ModelMetrics accumulates token usage and wall time across requests.
type ModelMetrics struct {
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	TotalTokens  int   `json:"total_tokens"`
	DurationMs   int64 `json:"duration_ms"`
}

// MetricsReporter is implemented by clients that track usage counters.
type MetricsReporter interface {
	Metrics() ModelMetrics
	ResetMetrics()
}

// ModelClient defines the interface for model operations used in graph
// construction and querying. Implementations own the concurrency ceiling on
// outbound calls (a semaphore or equivalent); callers fan out freely.
type ModelClient interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error

	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)
}
