package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/knotworks/strata/internal/util"
	"github.com/knotworks/strata/pkg/ai"
	"github.com/knotworks/strata/pkg/chunk"
	"github.com/knotworks/strata/pkg/cluster"
	"github.com/knotworks/strata/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	modelCallRetries   = 3
	embeddingBatchSize = 64
)

func (c *Client) entityPrompt(content string) string {
	return fmt.Sprintf(ai.ExtractEntitiesPrompt,
		strings.Join(c.entityTypes, ","),
		ai.TupleDelimiter, ai.RecordDelimiter, ai.CompletionDelimiter,
		content,
	)
}

func (c *Client) relationPrompt(entities []string, content string) string {
	return fmt.Sprintf(ai.ExtractRelationsPrompt,
		strings.Join(entities, ","),
		ai.TupleDelimiter, ai.RecordDelimiter, ai.CompletionDelimiter,
		content,
	)
}

// runExtractionRounds issues the initial extraction call, then up to
// maxGleaning continuation rounds. Each round threads a fresh copy of the
// conversation history; between rounds the model is asked whether entities
// are still missing, and any answer other than "yes" stops the loop. The
// concatenated raw output of all rounds is returned.
func (c *Client) runExtractionRounds(ctx context.Context, prompt string) (string, error) {
	final, err := util.RetryWithContext(ctx, modelCallRetries, func(ctx context.Context) (string, error) {
		return c.model.GenerateCompletion(ctx, prompt, ai.WithModel(c.capableModel))
	})
	if err != nil {
		return "", fmt.Errorf("failed extraction call: %w", err)
	}

	history := ai.AppendExchange(nil, prompt, final)
	for round := 0; round < c.maxGleaning; round++ {
		glean, err := util.RetryWithContext(ctx, modelCallRetries, func(ctx context.Context) (string, error) {
			return c.model.GenerateCompletion(ctx, ai.ContinueExtractPrompt,
				ai.WithModel(c.capableModel),
				ai.WithHistory(history),
			)
		})
		if err != nil {
			return "", fmt.Errorf("failed gleaning call: %w", err)
		}
		history = ai.AppendExchange(history, ai.ContinueExtractPrompt, glean)
		final += glean
		if round == c.maxGleaning-1 {
			break
		}

		verdict, err := util.RetryWithContext(ctx, modelCallRetries, func(ctx context.Context) (string, error) {
			return c.model.GenerateCompletion(ctx, ai.LoopExtractPrompt,
				ai.WithModel(c.capableModel),
				ai.WithHistory(history),
			)
		})
		if err != nil {
			return "", fmt.Errorf("failed loop check call: %w", err)
		}
		if normalizeVerdict(verdict) != "yes" {
			break
		}
	}
	return final, nil
}

func normalizeVerdict(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.ToLower(s)
}

// extractChunks runs one extraction prompt per chunk as a joined concurrent
// batch. Each task writes only its own slot of the results slice; counts are
// aggregated after the join.
func (c *Client) extractChunks(
	ctx context.Context,
	stage string,
	ordered []string,
	prompts []string,
) ([]RecordBags, error) {
	results := make([]RecordBags, len(ordered))

	eg, gCtx := errgroup.WithContext(ctx)
	for i := range ordered {
		idx := i
		eg.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}

			raw, err := c.runExtractionRounds(gCtx, prompts[idx])
			if err != nil {
				return fmt.Errorf("chunk %s: %w", ordered[idx], err)
			}
			bags := NewRecordBags()
			bags.AddRecords(ParseRecords(raw, ordered[idx]))
			results[idx] = bags
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	entities, relations := 0, 0
	for _, bags := range results {
		entities += len(bags.Entities)
		relations += len(bags.Relations)
	}
	c.reportProgress(Progress{
		Stage:     stage,
		Done:      len(ordered),
		Total:     len(ordered),
		Entities:  entities,
		Relations: relations,
	})
	logger.Info("[Extract] Batch complete",
		"stage", stage, "chunks", len(ordered),
		"entities", entities, "relations", relations,
	)
	return results, nil
}

func orderedChunkIDs(chunks map[string]*chunk.Chunk) []string {
	ids := make([]string, 0, len(chunks))
	for id := range chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// extractEntities is the flat pipeline: one entity-and-relation extraction
// pass per chunk, folded into a single bag.
func (c *Client) extractEntities(ctx context.Context, chunks map[string]*chunk.Chunk) (RecordBags, error) {
	ordered := orderedChunkIDs(chunks)
	prompts := make([]string, len(ordered))
	for i, id := range ordered {
		prompts[i] = c.entityPrompt(chunks[id].Content)
	}

	results, err := c.extractChunks(ctx, "extract", ordered, prompts)
	if err != nil {
		return RecordBags{}, err
	}

	all := NewRecordBags()
	for _, bags := range results {
		all.Merge(bags)
	}
	return all, nil
}

// extractHierarchicalEntities adds a second relation-only pass that reuses
// the first pass's entity names as in-context hints, then runs hierarchical
// clustering over the embedded entities and unions the resulting synthetic
// layer records into the bags.
func (c *Client) extractHierarchicalEntities(ctx context.Context, chunks map[string]*chunk.Chunk) (RecordBags, error) {
	ordered := orderedChunkIDs(chunks)
	entityPrompts := make([]string, len(ordered))
	for i, id := range ordered {
		entityPrompts[i] = c.entityPrompt(chunks[id].Content)
	}

	entityResults, err := c.extractChunks(ctx, "extract-entities", ordered, entityPrompts)
	if err != nil {
		return RecordBags{}, err
	}

	// First occurrence of each entity wins for the clustering input.
	firstSeen := make(map[string]EntityRecord)
	perChunkNames := make([][]string, len(ordered))
	for i, bags := range entityResults {
		names := make([]string, 0, len(bags.Entities))
		for name, list := range bags.Entities {
			names = append(names, name)
			if _, ok := firstSeen[name]; !ok {
				firstSeen[name] = list[0]
			}
		}
		sort.Strings(names)
		perChunkNames[i] = names
	}

	relationPrompts := make([]string, len(ordered))
	for i, id := range ordered {
		relationPrompts[i] = c.relationPrompt(perChunkNames[i], chunks[id].Content)
	}
	relationResults, err := c.extractChunks(ctx, "extract-relations", ordered, relationPrompts)
	if err != nil {
		return RecordBags{}, err
	}

	clusterInput, err := c.embedForClustering(ctx, firstSeen)
	if err != nil {
		return RecordBags{}, err
	}
	layers, err := c.clusterer.BuildLayers(ctx, clusterInput)
	if err != nil {
		return RecordBags{}, fmt.Errorf("failed to build cluster layers: %w", err)
	}
	logger.Info("[Extract] Clustering complete", "layers", len(layers))

	all := NewRecordBags()
	for _, bags := range entityResults {
		for name, list := range bags.Entities {
			all.Entities[name] = append(all.Entities[name], list...)
		}
	}
	for _, bags := range relationResults {
		for key, list := range bags.Relations {
			all.Relations[key] = append(all.Relations[key], list...)
		}
	}
	for _, layer := range layers {
		for _, ent := range layer.Entities {
			all.AddEntity(EntityRecord{
				EntityName:  CanonName(ent.EntityName),
				EntityType:  CanonName(ent.EntityType),
				Description: ent.Description,
				SourceID:    ent.SourceID,
				Clusters:    ent.Memberships,
			})
		}
		for _, rel := range layer.Relations {
			weight := rel.Weight
			if weight == 0 {
				weight = 1
			}
			all.AddRelation(RelationshipRecord{
				SrcID:       CanonName(rel.SrcID),
				TgtID:       CanonName(rel.TgtID),
				Weight:      weight,
				Description: rel.Description,
				SourceID:    rel.SourceID,
				Order:       1,
			})
		}
	}
	return all, nil
}

func (c *Client) embedForClustering(ctx context.Context, firstSeen map[string]EntityRecord) ([]cluster.Entity, error) {
	names := make([]string, 0, len(firstSeen))
	for name := range firstSeen {
		names = append(names, name)
	}
	sort.Strings(names)

	vectors := make([][]float32, 0, len(names))
	for start := 0; start < len(names); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(names) {
			end = len(names)
		}
		batch := make([][]byte, 0, end-start)
		for _, name := range names[start:end] {
			batch = append(batch, []byte(firstSeen[name].Description))
		}
		vecs, err := c.model.GenerateEmbeddings(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to embed entities for clustering: %w", err)
		}
		vectors = append(vectors, vecs...)
	}

	out := make([]cluster.Entity, len(names))
	for i, name := range names {
		rec := firstSeen[name]
		out[i] = cluster.Entity{
			EntityName:  rec.EntityName,
			EntityType:  rec.EntityType,
			Description: rec.Description,
			SourceID:    rec.SourceID,
			Vector:      vectors[i],
		}
	}
	return out, nil
}
