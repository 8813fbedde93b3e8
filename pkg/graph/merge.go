package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/knotworks/strata/internal/util"
	"github.com/knotworks/strata/pkg/ai"
	"github.com/knotworks/strata/pkg/cluster"
	"github.com/knotworks/strata/pkg/logger"
	"github.com/knotworks/strata/pkg/store"
	"github.com/knotworks/strata/pkg/tokenize"

	"golang.org/x/sync/errgroup"
)

// summaryInputBudget caps the description text handed to the summarization
// model.
const summaryInputBudget = 4000

type mergedEntity struct {
	EntityName  string
	Description string
}

// mergeBags folds the aggregated extraction bags into graph storage. All
// node merges run as one joined batch, then all edge merges; an edge task
// can therefore rely on every extracted endpoint node existing, and only
// creates placeholders for endpoints never extracted as entities. Within a
// batch no two tasks share a key because the bags are grouped by key.
func (c *Client) mergeBags(ctx context.Context, bags RecordBags) ([]mergedEntity, error) {
	names := make([]string, 0, len(bags.Entities))
	for name := range bags.Entities {
		names = append(names, name)
	}
	sort.Strings(names)

	merged := make([]mergedEntity, len(names))
	eg, gCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		idx, n := i, name
		eg.Go(func() error {
			entity, err := c.mergeNode(gCtx, n, bags.Entities[n])
			if err != nil {
				return fmt.Errorf("entity %s: %w", n, err)
			}
			merged[idx] = entity
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("failed to merge nodes: %w", err)
	}

	keys := make([][2]string, 0, len(bags.Relations))
	for key := range bags.Relations {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	eg, gCtx = errgroup.WithContext(ctx)
	for _, key := range keys {
		k := key
		eg.Go(func() error {
			if err := c.mergeEdge(gCtx, k, bags.Relations[k]); err != nil {
				return fmt.Errorf("edge %s-%s: %w", k[0], k[1], err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("failed to merge edges: %w", err)
	}

	c.reportProgress(Progress{
		Stage:     "merge",
		Done:      len(names) + len(keys),
		Total:     len(names) + len(keys),
		Entities:  len(names),
		Relations: len(keys),
	})
	return merged, nil
}

// mergeNode combines all extracted occurrences of one entity with its
// stored record: majority-voted type, set-union descriptions and source
// ids, unioned cluster memberships.
func (c *Client) mergeNode(ctx context.Context, name string, items []EntityRecord) (mergedEntity, error) {
	existing, err := c.graph.GetNode(ctx, name)
	if err != nil {
		return mergedEntity{}, fmt.Errorf("failed to read node: %w", err)
	}

	typeOrder := make([]string, 0, len(items)+1)
	typeCounts := make(map[string]int, len(items)+1)
	countType := func(t string) {
		if _, ok := typeCounts[t]; !ok {
			typeOrder = append(typeOrder, t)
		}
		typeCounts[t]++
	}
	descSet := make(map[string]struct{}, len(items)+1)
	sourceSet := make(map[string]struct{}, len(items)+1)
	memberships := make([]cluster.Membership, 0)
	memberSeen := make(map[cluster.Membership]struct{})
	addMembership := func(m cluster.Membership) {
		if _, ok := memberSeen[m]; ok {
			return
		}
		memberSeen[m] = struct{}{}
		memberships = append(memberships, m)
	}

	for _, item := range items {
		countType(item.EntityType)
		descSet[item.Description] = struct{}{}
		sourceSet[item.SourceID] = struct{}{}
		for _, m := range item.Clusters {
			addMembership(m)
		}
	}
	if existing != nil {
		countType(existing.EntityType)
		descSet[existing.Description] = struct{}{}
		for _, id := range strings.Split(existing.SourceID, ai.GraphFieldSep) {
			sourceSet[id] = struct{}{}
		}
		for _, m := range existing.Clusters {
			addMembership(m)
		}
	}

	sort.SliceStable(typeOrder, func(i, j int) bool {
		return typeCounts[typeOrder[i]] > typeCounts[typeOrder[j]]
	})
	entityType := typeOrder[0]

	description := joinSorted(descSet)
	description, err = c.summarizeDescription(ctx, name, description)
	if err != nil {
		return mergedEntity{}, err
	}

	data := store.NodeData{
		EntityType:  entityType,
		Description: description,
		SourceID:    joinSorted(sourceSet),
		Clusters:    memberships,
	}
	if err := c.graph.UpsertNode(ctx, name, data); err != nil {
		return mergedEntity{}, fmt.Errorf("failed to upsert node: %w", err)
	}
	return mergedEntity{EntityName: name, Description: description}, nil
}

// mergeEdge combines all extracted occurrences of one edge with its stored
// record. Weight is the sum of all contributions, order the minimum.
// Missing endpoint nodes are created as UNKNOWN placeholders before the
// edge is written.
func (c *Client) mergeEdge(ctx context.Context, key [2]string, items []RelationshipRecord) error {
	src, tgt := key[0], key[1]

	weight := 0.0
	order := 0
	descSet := make(map[string]struct{}, len(items)+1)
	sourceSet := make(map[string]struct{}, len(items)+1)
	for _, item := range items {
		weight += item.Weight
		if order == 0 || item.Order < order {
			order = item.Order
		}
		descSet[item.Description] = struct{}{}
		sourceSet[item.SourceID] = struct{}{}
	}

	existing, err := c.graph.GetEdge(ctx, src, tgt)
	if err != nil {
		return fmt.Errorf("failed to read edge: %w", err)
	}
	if existing != nil {
		weight += existing.Weight
		if existing.Order < order {
			order = existing.Order
		}
		descSet[existing.Description] = struct{}{}
		for _, id := range strings.Split(existing.SourceID, ai.GraphFieldSep) {
			sourceSet[id] = struct{}{}
		}
	}

	description := joinSorted(descSet)
	sourceID := joinSorted(sourceSet)

	for _, endpoint := range []string{src, tgt} {
		has, err := c.graph.HasNode(ctx, endpoint)
		if err != nil {
			return fmt.Errorf("failed to check node %s: %w", endpoint, err)
		}
		if has {
			continue
		}
		placeholder := store.NodeData{
			EntityType:  "UNKNOWN",
			Description: description,
			SourceID:    sourceID,
		}
		if err := c.graph.UpsertNode(ctx, endpoint, placeholder); err != nil {
			return fmt.Errorf("failed to create placeholder node %s: %w", endpoint, err)
		}
	}

	description, err = c.summarizeDescription(ctx, src+" - "+tgt, description)
	if err != nil {
		return err
	}

	data := store.EdgeData{
		Weight:      weight,
		Description: description,
		SourceID:    sourceID,
		Order:       order,
	}
	if err := c.graph.UpsertEdge(ctx, src, tgt, data); err != nil {
		return fmt.Errorf("failed to upsert edge: %w", err)
	}
	return nil
}

// summarizeDescription collapses an over-long joined description into a
// model summary. Below the threshold the description passes through
// untouched, so small merges never cost a model call.
func (c *Client) summarizeDescription(ctx context.Context, name, description string) (string, error) {
	if c.enc.Count(description) < c.summaryMaxTokens {
		return description, nil
	}
	use := tokenize.TruncateText(description, summaryInputBudget, c.enc)
	descriptions := strings.Join(strings.Split(use, ai.GraphFieldSep), "\n")

	logger.Debug("[Merge] Summarizing description", "name", name)
	prompt := fmt.Sprintf(ai.SummarizeDescriptionsPrompt, name, descriptions)
	summary, err := util.RetryWithContext(ctx, modelCallRetries, func(ctx context.Context) (string, error) {
		return c.model.GenerateCompletion(ctx, prompt,
			ai.WithModel(c.cheapModel),
			ai.WithMaxTokens(c.summaryMaxTokens),
		)
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize description for %s: %w", name, err)
	}
	return strings.TrimSpace(summary), nil
}

// syncEntityVectors writes one vector record per merged entity. The record
// id is a deterministic hash of the entity name, so re-ingestion overwrites
// in place.
func (c *Client) syncEntityVectors(ctx context.Context, entities []mergedEntity) error {
	records := make(map[string]store.VectorRecord, len(entities))
	for _, e := range entities {
		records[util.HashID(e.EntityName, "ent-")] = store.VectorRecord{
			Content:    e.EntityName + e.Description,
			EntityName: e.EntityName,
		}
	}
	return c.entityVectors.Upsert(ctx, records)
}

func joinSorted(set map[string]struct{}) string {
	items := make([]string, 0, len(set))
	for item := range set {
		items = append(items, item)
	}
	sort.Strings(items)
	return strings.Join(items, ai.GraphFieldSep)
}
