package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/knotworks/strata/pkg/ai"
	"github.com/knotworks/strata/pkg/chunk"
	"github.com/knotworks/strata/pkg/cluster"
	"github.com/knotworks/strata/pkg/logger"
	"github.com/knotworks/strata/pkg/store"
	"github.com/knotworks/strata/pkg/tokenize"
)

// Progress is a snapshot reported after each pipeline batch joins. Counts
// are aggregated from completed tasks only; no shared counters are touched
// while a batch is in flight.
type Progress struct {
	Stage     string
	Done      int
	Total     int
	Entities  int
	Relations int
}

// ProgressFunc receives pipeline progress. May be nil.
type ProgressFunc func(Progress)

// Client runs the knowledge graph pipeline against a set of storage
// backends and one model client.
//
// A Client should be created using NewClient.
type Client struct {
	enc   tokenize.Encoder
	model ai.ModelClient

	graph         store.GraphStorage
	entityVectors store.VectorStorage
	chunkVectors  store.VectorStorage
	chunks        store.KVStorage[chunk.Chunk]
	reports       store.KVStorage[store.CommunityReport]

	clusterer cluster.Clusterer

	chunkParams chunk.Params
	entityTypes []string

	maxGleaning      int
	summaryMaxTokens int
	reportMaxTokens  int

	cheapModel   string
	capableModel string

	forceSubCommunities bool
	progress            ProgressFunc
}

// NewClientParams configures a Client. Zero numeric fields fall back to
// defaults; Clusterer may be nil to disable the hierarchical layers.
type NewClientParams struct {
	Encoder tokenize.Encoder
	Model   ai.ModelClient

	Graph         store.GraphStorage
	EntityVectors store.VectorStorage
	ChunkVectors  store.VectorStorage
	Chunks        store.KVStorage[chunk.Chunk]
	Reports       store.KVStorage[store.CommunityReport]

	Clusterer cluster.Clusterer

	ChunkParams chunk.Params
	EntityTypes []string

	// MaxGleaning is the number of extra extraction rounds per chunk.
	MaxGleaning int
	// SummaryMaxTokens is the description length above which merge
	// replaces the joined description with a model summary.
	SummaryMaxTokens int
	// ReportMaxTokens is the packing budget for community reports.
	ReportMaxTokens int

	CheapModel   string
	CapableModel string

	// ForceSubCommunities always packs reports from sub-community
	// reports, even when the member tables fit the budget.
	ForceSubCommunities bool
	Progress            ProgressFunc
}

// NewClient validates params and returns a ready Client.
func NewClient(params NewClientParams) (*Client, error) {
	if params.Encoder == nil {
		return nil, fmt.Errorf("encoder is required")
	}
	if params.Model == nil {
		return nil, fmt.Errorf("model client is required")
	}
	if params.Graph == nil || params.EntityVectors == nil || params.Chunks == nil || params.Reports == nil {
		return nil, fmt.Errorf("graph, entity vector, chunk and report storage are required")
	}

	c := &Client{
		enc:                 params.Encoder,
		model:               params.Model,
		graph:               params.Graph,
		entityVectors:       params.EntityVectors,
		chunkVectors:        params.ChunkVectors,
		chunks:              params.Chunks,
		reports:             params.Reports,
		clusterer:           params.Clusterer,
		chunkParams:         params.ChunkParams,
		entityTypes:         params.EntityTypes,
		maxGleaning:         params.MaxGleaning,
		summaryMaxTokens:    params.SummaryMaxTokens,
		reportMaxTokens:     params.ReportMaxTokens,
		cheapModel:          params.CheapModel,
		capableModel:        params.CapableModel,
		forceSubCommunities: params.ForceSubCommunities,
		progress:            params.Progress,
	}
	if len(c.entityTypes) == 0 {
		c.entityTypes = ai.DefaultEntityTypes
	}
	if c.maxGleaning == 0 {
		c.maxGleaning = 1
	}
	if c.summaryMaxTokens == 0 {
		c.summaryMaxTokens = 500
	}
	if c.reportMaxTokens == 0 {
		c.reportMaxTokens = 12000
	}
	return c, nil
}

func (c *Client) reportProgress(p Progress) {
	if c.progress != nil {
		c.progress(p)
	}
}

// Insert ingests documents (id to content), runs extraction and merge, and
// regenerates community reports when hierarchical clustering is enabled.
func (c *Client) Insert(ctx context.Context, docs map[string]string) error {
	chunks := chunk.SplitDocuments(docs, c.enc, c.chunkParams)
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks produced from %d documents", len(docs))
	}
	logger.Info("[Graph] Inserting", "docs", len(docs), "chunks", len(chunks))

	chunkItems := make(map[string]chunk.Chunk, len(chunks))
	for id, ch := range chunks {
		chunkItems[id] = *ch
	}
	if err := c.chunks.Upsert(ctx, chunkItems); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	if c.chunkVectors != nil {
		records := make(map[string]store.VectorRecord, len(chunks))
		for id, ch := range chunks {
			records[id] = store.VectorRecord{Content: ch.Content}
		}
		if err := c.chunkVectors.Upsert(ctx, records); err != nil {
			return fmt.Errorf("failed to index chunks: %w", err)
		}
	}

	var (
		bags RecordBags
		err  error
	)
	if c.clusterer != nil {
		bags, err = c.extractHierarchicalEntities(ctx, chunks)
	} else {
		bags, err = c.extractEntities(ctx, chunks)
	}
	if err != nil {
		return fmt.Errorf("failed to extract entities: %w", err)
	}

	merged, err := c.mergeBags(ctx, bags)
	if err != nil {
		return fmt.Errorf("failed to merge extraction results: %w", err)
	}
	if len(merged) == 0 {
		logger.Warn("[Graph] No entities extracted, skipping vector sync and reports")
		return nil
	}
	if err := c.syncEntityVectors(ctx, merged); err != nil {
		return fmt.Errorf("failed to sync entity vectors: %w", err)
	}

	if c.clusterer != nil {
		if err := c.GenerateCommunityReports(ctx); err != nil {
			return fmt.Errorf("failed to generate community reports: %w", err)
		}
	}
	return nil
}

// Query assembles a retrieval context for the given mode and, unless
// OnlyNeedContext is set, generates an answer grounded on it. An empty
// retrieval returns the canned failure response without a generation call.
func (c *Client) Query(ctx context.Context, query string, param QueryParam) (string, error) {
	if param.Mode == ModeNaive {
		return c.naiveQuery(ctx, query, param)
	}

	var (
		contextText string
		ok          bool
		err         error
	)
	switch param.Mode {
	case ModeLocal:
		contextText, ok, err = c.buildLocalContext(ctx, query, param)
	case ModeHierarchicalLocal:
		contextText, ok, err = c.buildHierarchicalLocalContext(ctx, query, param)
	case ModeHierarchicalGlobal:
		contextText, ok, err = c.buildHierarchicalGlobalContext(ctx, query, param)
	case ModeHierarchicalBridge:
		contextText, ok, err = c.buildHierarchicalBridgeContext(ctx, query, param)
	case ModeHierarchicalFull:
		contextText, ok, err = c.buildHierarchicalFullContext(ctx, query, param)
	default:
		return "", fmt.Errorf("unknown query mode %q", param.Mode)
	}
	if err != nil {
		return "", err
	}
	if param.OnlyNeedContext {
		if !ok {
			return "", nil
		}
		return contextText, nil
	}
	if !ok {
		return ai.FailResponse, nil
	}

	sysPrompt := fmt.Sprintf(ai.RagResponsePrompt, contextText, param.ResponseType)
	response, err := c.model.GenerateCompletion(ctx, query,
		ai.WithModel(c.capableModel),
		ai.WithSystemPrompts(sysPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return response, nil
}

func (c *Client) naiveQuery(ctx context.Context, query string, param QueryParam) (string, error) {
	if c.chunkVectors == nil {
		return "", fmt.Errorf("naive mode requires a chunk vector index")
	}
	hits, err := c.chunkVectors.Query(ctx, query, param.TopK)
	if err != nil {
		return "", fmt.Errorf("failed to query chunk index: %w", err)
	}
	if len(hits) == 0 {
		return ai.FailResponse, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	chunks, err := c.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("failed to load chunks: %w", err)
	}
	present := make([]*chunk.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if ch != nil {
			present = append(present, ch)
		}
	}

	use := tokenize.TruncateByTokenBudget(present, func(ch *chunk.Chunk) string {
		return ch.Content
	}, param.NaiveMaxTokenForTextUnit, c.enc)
	logger.Info("[Query] Truncated chunks", "from", len(present), "to", len(use))

	contents := make([]string, len(use))
	for i, ch := range use {
		contents[i] = ch.Content
	}
	section := strings.Join(contents, "--New Chunk--\n")
	if param.OnlyNeedContext {
		return section, nil
	}

	sysPrompt := fmt.Sprintf(ai.NaiveRagResponsePrompt, section, param.ResponseType)
	response, err := c.model.GenerateCompletion(ctx, query,
		ai.WithModel(c.capableModel),
		ai.WithSystemPrompts(sysPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return response, nil
}
