package openai

import (
	"sync"

	"github.com/knotworks/strata/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// GraphOpenAIClient is an OpenAI-compatible backend for the graph pipeline.
// It manages separate clients for embeddings and chat tasks so the two
// endpoints can point at different providers.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	embeddingModel string
	cheapModel     string
	capableModel   string

	embeddingURL string
	embeddingKey string
	chatURL      string
	chatKey      string

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration for a new
// GraphOpenAIClient.
//
// EmbeddingModel specifies the model used for embeddings.
// CheapModel is used for high-volume extraction and gleaning calls.
// CapableModel is used for summaries, reports and answer generation.
// EmbeddingURL and EmbeddingKey configure the embedding API endpoint.
// ChatURL and ChatKey configure the chat/completion API endpoint.
// MaxConcurrentRequests bounds in-flight requests across all callers.
type NewGraphOpenAIClientParams struct {
	EmbeddingModel string
	CheapModel     string
	CapableModel   string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	MaxConcurrentRequests int64
}

// NewGraphOpenAIClient creates a new GraphOpenAIClient configured with the
// provided parameters.
//
// Example:
//
//	params := openai.NewGraphOpenAIClientParams{
//		EmbeddingModel:        "text-embedding-3-small",
//		CheapModel:            "gpt-4o-mini",
//		CapableModel:          "gpt-4o",
//		EmbeddingKey:          os.Getenv("OPENAI_API_KEY"),
//		ChatKey:               os.Getenv("OPENAI_API_KEY"),
//		MaxConcurrentRequests: 8,
//	}
//	client := openai.NewGraphOpenAIClient(params)
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	maxRequests := params.MaxConcurrentRequests
	if maxRequests <= 0 {
		maxRequests = 8
	}

	return &GraphOpenAIClient{
		embeddingModel: params.EmbeddingModel,
		cheapModel:     params.CheapModel,
		capableModel:   params.CapableModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		reqLock: semaphore.NewWeighted(maxRequests),

		metricsLock: sync.Mutex{},
		metrics: ai.ModelMetrics{
			InputTokens:  0,
			OutputTokens: 0,
			TotalTokens:  0,
			DurationMs:   0,
		},

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

func (c *GraphOpenAIClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.InputTokens += m.InputTokens
	c.metrics.OutputTokens += m.OutputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs
}

// Metrics returns a snapshot of the accumulated usage counters.
func (c *GraphOpenAIClient) Metrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

// ResetMetrics zeroes the usage counters, e.g. between queue jobs.
func (c *GraphOpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}
