package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/knotworks/strata/pkg/ai"
	"github.com/knotworks/strata/pkg/chunk"
	"github.com/knotworks/strata/pkg/logger"
	"github.com/knotworks/strata/pkg/store"
	"github.com/knotworks/strata/pkg/tokenize"
)

// retrievalPoolFactor widens the candidate pool for the hierarchical global,
// bridge and full modes: the final clip still yields topK entities after
// missing nodes are dropped, and the reasoning path can pass through entities
// beyond the displayed topK.
const retrievalPoolFactor = 10

type retrievedEntity struct {
	name string
	data *store.NodeData
	rank int
}

type retrievedEdge struct {
	src, tgt string
	data     *store.EdgeData
	rank     int
}

// retrieveEntities resolves the topK most similar entity vectors into graph
// nodes, in relevance order. Hits whose node no longer exists are skipped.
func (c *Client) retrieveEntities(ctx context.Context, query string, topK int) ([]retrievedEntity, error) {
	hits, err := c.entityVectors.Query(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity index: %w", err)
	}
	entities := make([]retrievedEntity, 0, len(hits))
	for _, hit := range hits {
		data, err := c.graph.GetNode(ctx, hit.EntityName)
		if err != nil {
			return nil, fmt.Errorf("failed to read node %s: %w", hit.EntityName, err)
		}
		if data == nil {
			logger.Warn("[Query] Indexed entity missing from graph", "entity", hit.EntityName)
			continue
		}
		rank, err := c.graph.NodeDegree(ctx, hit.EntityName)
		if err != nil {
			return nil, fmt.Errorf("failed to read degree of %s: %w", hit.EntityName, err)
		}
		entities = append(entities, retrievedEntity{name: hit.EntityName, data: data, rank: rank})
	}
	return entities, nil
}

// findRelatedCommunities picks the community reports covering the retrieved
// entities. Candidates are ranked by how many entities they contain, rating
// breaking ties, and the list is budgeted by report text.
func (c *Client) findRelatedCommunities(
	ctx context.Context,
	entities []retrievedEntity,
	param QueryParam,
) ([]store.CommunityReport, error) {
	counts := make(map[string]int)
	for _, ent := range entities {
		for _, m := range ent.data.Clusters {
			if m.Level <= param.Level {
				counts[m.Cluster]++
			}
		}
	}
	if len(counts) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fetched, err := c.reports.GetByIDs(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read community reports: %w", err)
	}
	reports := make([]store.CommunityReport, 0, len(keys))
	byKey := make(map[string]store.CommunityReport, len(keys))
	okKeys := make([]string, 0, len(keys))
	for i, key := range keys {
		if fetched[i] == nil {
			continue
		}
		byKey[key] = *fetched[i]
		okKeys = append(okKeys, key)
	}
	sort.SliceStable(okKeys, func(i, j int) bool {
		if counts[okKeys[i]] != counts[okKeys[j]] {
			return counts[okKeys[i]] > counts[okKeys[j]]
		}
		return byKey[okKeys[i]].ReportJSON.Rating > byKey[okKeys[j]].ReportJSON.Rating
	})
	for _, key := range okKeys {
		reports = append(reports, byKey[key])
	}

	reports = tokenize.TruncateByTokenBudget(reports, func(r store.CommunityReport) string {
		return r.ReportString
	}, param.MaxTokenForCommunityReport, c.enc)
	if param.CommunitySingleOne && len(reports) > 1 {
		reports = reports[:1]
	}
	return reports, nil
}

// findRelatedTextUnits gathers the source chunks of the retrieved entities.
// A chunk keeps the position of the first entity that referenced it and is
// boosted by how many of that entity's neighbors also cite it, so chunks
// tied into the local neighborhood surface first.
func (c *Client) findRelatedTextUnits(
	ctx context.Context,
	entities []retrievedEntity,
	param QueryParam,
) ([]chunk.Chunk, error) {
	type unitInfo struct {
		order          int
		relationCounts int
	}

	neighborSources := make(map[string]map[string]struct{})
	entityEdges := make([][][2]string, len(entities))
	for i, ent := range entities {
		edges, err := c.graph.GetNodeEdges(ctx, ent.name)
		if err != nil {
			return nil, fmt.Errorf("failed to read edges of %s: %w", ent.name, err)
		}
		entityEdges[i] = edges
		for _, edge := range edges {
			neighbor := edge[1]
			if _, seen := neighborSources[neighbor]; seen {
				continue
			}
			data, err := c.graph.GetNode(ctx, neighbor)
			if err != nil {
				return nil, fmt.Errorf("failed to read node %s: %w", neighbor, err)
			}
			set := make(map[string]struct{})
			if data != nil {
				for _, id := range strings.Split(data.SourceID, ai.GraphFieldSep) {
					if id != "" {
						set[id] = struct{}{}
					}
				}
			}
			neighborSources[neighbor] = set
		}
	}

	units := make(map[string]unitInfo)
	unitOrder := make([]string, 0)
	for i, ent := range entities {
		for _, id := range strings.Split(ent.data.SourceID, ai.GraphFieldSep) {
			if id == "" {
				continue
			}
			if _, seen := units[id]; seen {
				continue
			}
			relationCounts := 0
			for _, edge := range entityEdges[i] {
				if _, ok := neighborSources[edge[1]][id]; ok {
					relationCounts++
				}
			}
			units[id] = unitInfo{order: i, relationCounts: relationCounts}
			unitOrder = append(unitOrder, id)
		}
	}

	fetched, err := c.chunks.GetByIDs(ctx, unitOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	type scoredChunk struct {
		info  unitInfo
		chunk chunk.Chunk
	}
	scored := make([]scoredChunk, 0, len(unitOrder))
	for i, id := range unitOrder {
		if fetched[i] == nil {
			logger.Warn("[Query] Source chunk missing", "chunk", id)
			continue
		}
		scored = append(scored, scoredChunk{info: units[id], chunk: *fetched[i]})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].info.order != scored[j].info.order {
			return scored[i].info.order < scored[j].info.order
		}
		return scored[i].info.relationCounts > scored[j].info.relationCounts
	})
	scored = tokenize.TruncateByTokenBudget(scored, func(s scoredChunk) string {
		return s.chunk.Content
	}, param.MaxTokenForTextUnit, c.enc)

	out := make([]chunk.Chunk, len(scored))
	for i, s := range scored {
		out[i] = s.chunk
	}
	return out, nil
}

// findRelatedEdges collects the distinct relations touching the retrieved
// entities, ranked by edge degree then weight.
func (c *Client) findRelatedEdges(
	ctx context.Context,
	entities []retrievedEntity,
	budget int,
) ([]retrievedEdge, error) {
	seen := make(map[[2]string]struct{})
	pairs := make([][2]string, 0)
	for _, ent := range entities {
		edges, err := c.graph.GetNodeEdges(ctx, ent.name)
		if err != nil {
			return nil, fmt.Errorf("failed to read edges of %s: %w", ent.name, err)
		}
		for _, edge := range edges {
			key := edgeKey(edge[0], edge[1])
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			pairs = append(pairs, key)
		}
	}
	return c.resolveEdges(ctx, pairs, budget)
}

// findEdgesFromPath collects the relations along a node path, ranked and
// budgeted like findRelatedEdges.
func (c *Client) findEdgesFromPath(ctx context.Context, path []string, budget int) ([]retrievedEdge, error) {
	pairs, err := c.graph.SubgraphEdges(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read path edges: %w", err)
	}
	return c.resolveEdges(ctx, pairs, budget)
}

func (c *Client) resolveEdges(ctx context.Context, pairs [][2]string, budget int) ([]retrievedEdge, error) {
	edges := make([]retrievedEdge, 0, len(pairs))
	for _, pair := range pairs {
		data, err := c.graph.GetEdge(ctx, pair[0], pair[1])
		if err != nil {
			return nil, fmt.Errorf("failed to read edge %s-%s: %w", pair[0], pair[1], err)
		}
		if data == nil {
			continue
		}
		rank, err := c.graph.EdgeDegree(ctx, pair[0], pair[1])
		if err != nil {
			return nil, fmt.Errorf("failed to read edge degree: %w", err)
		}
		edges = append(edges, retrievedEdge{src: pair[0], tgt: pair[1], data: data, rank: rank})
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].rank != edges[j].rank {
			return edges[i].rank > edges[j].rank
		}
		return edges[i].data.Weight > edges[j].data.Weight
	})
	return tokenize.TruncateByTokenBudget(edges, func(e retrievedEdge) string {
		return e.data.Description
	}, budget, c.enc), nil
}

// keyEntities picks the anchors for a reasoning path: for each selected
// community, the TopM most relevant pool entities belonging to it. Without
// communities the TopM most relevant pool entities stand in directly.
func keyEntities(pool []retrievedEntity, communities []store.CommunityReport, topM int) []string {
	keys := make([]string, 0)
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		keys = append(keys, name)
	}

	if len(communities) == 0 {
		for i, ent := range pool {
			if i >= topM {
				break
			}
			add(ent.name)
		}
		return keys
	}

	for _, community := range communities {
		members := make(map[string]struct{}, len(community.Nodes))
		for _, n := range community.Nodes {
			members[n] = struct{}{}
		}
		taken := 0
		for _, ent := range pool {
			if taken >= topM {
				break
			}
			if _, ok := members[ent.name]; ok {
				add(ent.name)
				taken++
			}
		}
	}
	return keys
}

// routeThroughEntities chains shortest paths through the key entities in
// order. A missing path degrades to a jump so the route always covers every
// anchor.
func (c *Client) routeThroughEntities(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	route := []string{keys[0]}
	current := keys[0]
	for _, next := range keys[1:] {
		segment, err := c.graph.ShortestPath(ctx, current, next)
		if err != nil {
			if errors.Is(err, store.ErrNoPath) {
				logger.Debug("[Query] No path between anchors", "from", current, "to", next)
				route = append(route, next)
				current = next
				continue
			}
			return nil, fmt.Errorf("failed to find path %s -> %s: %w", current, next, err)
		}
		if len(segment) > 0 {
			route = append(route, segment[1:]...)
		}
		current = next
	}
	return route, nil
}

func entityCSV(entities []retrievedEntity) string {
	rows := [][]string{{"id", "entity", "type", "description", "rank"}}
	for i, ent := range entities {
		rows = append(rows, []string{
			formatInt(i), ent.name, ent.data.EntityType, ent.data.Description, formatInt(ent.rank),
		})
	}
	return listToCSV(rows)
}

func relationCSV(edges []retrievedEdge) string {
	rows := [][]string{{"id", "source", "target", "description", "weight", "rank"}}
	for i, e := range edges {
		rows = append(rows, []string{
			formatInt(i), e.src, e.tgt, e.data.Description, formatFloat(e.data.Weight), formatInt(e.rank),
		})
	}
	return listToCSV(rows)
}

func communityCSV(reports []store.CommunityReport, flatten bool) string {
	rows := [][]string{{"id", "content"}}
	for i, r := range reports {
		content := r.ReportString
		if flatten {
			content = strings.ReplaceAll(content, "\n", " ")
		}
		rows = append(rows, []string{formatInt(i), content})
	}
	return listToCSV(rows)
}

func textUnitCSV(chunks []chunk.Chunk) string {
	rows := [][]string{{"id", "content"}}
	for i, ch := range chunks {
		rows = append(rows, []string{formatInt(i), ch.Content})
	}
	return listToCSV(rows)
}

func logReferences(entities []retrievedEntity, communities []store.CommunityReport, chunks []chunk.Chunk) {
	names := make([]string, len(entities))
	for i, ent := range entities {
		names[i] = ent.name
	}
	reports := make([][2]any, len(communities))
	for i, r := range communities {
		reports[i] = [2]any{r.Level, r.Title}
	}
	sources := make([][2]any, len(chunks))
	for i, ch := range chunks {
		sources[i] = [2]any{ch.FullDocID, ch.OrderIndex}
	}
	logger.Info("[Query] References",
		"entities", names,
		"reports", reports,
		"sources", sources,
	)
}

// buildLocalContext is the flat local strategy: the entities nearest the
// query plus their communities, relations and source chunks.
func (c *Client) buildLocalContext(ctx context.Context, query string, param QueryParam) (string, bool, error) {
	entities, err := c.retrieveEntities(ctx, query, param.TopK)
	if err != nil {
		return "", false, err
	}
	if len(entities) == 0 {
		return "", false, nil
	}
	communities, err := c.findRelatedCommunities(ctx, entities, param)
	if err != nil {
		return "", false, err
	}
	textUnits, err := c.findRelatedTextUnits(ctx, entities, param)
	if err != nil {
		return "", false, err
	}
	relations, err := c.findRelatedEdges(ctx, entities, param.MaxTokenForLocalContext)
	if err != nil {
		return "", false, err
	}
	logger.Info("[Query] Local context",
		"entities", len(entities),
		"communities", len(communities),
		"relations", len(relations),
		"textUnits", len(textUnits),
	)
	logReferences(entities, communities, textUnits)

	sections := []string{
		csvSection("Reports", communityCSV(communities, false)),
		csvSection("Entities", entityCSV(entities)),
		csvSection("Relationships", relationCSV(relations)),
		csvSection("Sources", textUnitCSV(textUnits)),
	}
	return strings.Join(sections, "\n"), true, nil
}

// buildHierarchicalLocalContext keeps the neighborhood detail but leaves
// community summaries out.
func (c *Client) buildHierarchicalLocalContext(ctx context.Context, query string, param QueryParam) (string, bool, error) {
	entities, err := c.retrieveEntities(ctx, query, param.TopK)
	if err != nil {
		return "", false, err
	}
	if len(entities) == 0 {
		return "", false, nil
	}
	textUnits, err := c.findRelatedTextUnits(ctx, entities, param)
	if err != nil {
		return "", false, err
	}
	relations, err := c.findRelatedEdges(ctx, entities, param.MaxTokenForLocalContext)
	if err != nil {
		return "", false, err
	}
	logger.Info("[Query] Hierarchical local context",
		"entities", len(entities),
		"relations", len(relations),
		"textUnits", len(textUnits),
	)
	logReferences(entities, nil, textUnits)

	sections := []string{
		csvSection("Entities", entityCSV(entities)),
		csvSection("Relationships", relationCSV(relations)),
		csvSection("Sources", textUnitCSV(textUnits)),
	}
	return strings.Join(sections, "\n"), true, nil
}

// buildHierarchicalGlobalContext answers from community summaries and the
// underlying sources only.
func (c *Client) buildHierarchicalGlobalContext(ctx context.Context, query string, param QueryParam) (string, bool, error) {
	pool, err := c.retrieveEntities(ctx, query, param.TopK*retrievalPoolFactor)
	if err != nil {
		return "", false, err
	}
	if len(pool) == 0 {
		return "", false, nil
	}
	entities := pool
	if len(entities) > param.TopK {
		entities = entities[:param.TopK]
	}
	communities, err := c.findRelatedCommunities(ctx, entities, param)
	if err != nil {
		return "", false, err
	}
	textUnits, err := c.findRelatedTextUnits(ctx, entities, param)
	if err != nil {
		return "", false, err
	}
	logger.Info("[Query] Hierarchical global context",
		"entities", len(entities),
		"communities", len(communities),
		"textUnits", len(textUnits),
	)
	logReferences(entities, communities, textUnits)

	sections := []string{
		csvSection("Backgrounds", communityCSV(communities, false)),
		csvSection("Sources", textUnitCSV(textUnits)),
	}
	return strings.Join(sections, "\n"), true, nil
}

// buildHierarchicalBridgeContext routes a reasoning path through the key
// entities of the matched communities and presents the relations along it.
func (c *Client) buildHierarchicalBridgeContext(ctx context.Context, query string, param QueryParam) (string, bool, error) {
	pool, err := c.retrieveEntities(ctx, query, param.TopK*retrievalPoolFactor)
	if err != nil {
		return "", false, err
	}
	if len(pool) == 0 {
		return "", false, nil
	}
	entities := pool
	if len(entities) > param.TopK {
		entities = entities[:param.TopK]
	}
	communities, err := c.findRelatedCommunities(ctx, entities, param)
	if err != nil {
		return "", false, err
	}
	textUnits, err := c.findRelatedTextUnits(ctx, entities, param)
	if err != nil {
		return "", false, err
	}
	keys := keyEntities(pool, communities, param.TopM)
	route, err := c.routeThroughEntities(ctx, keys)
	if err != nil {
		return "", false, err
	}
	pathEdges, err := c.findEdgesFromPath(ctx, route, param.MaxTokenForBridgeKnowledge)
	if err != nil {
		return "", false, err
	}
	logger.Info("[Query] Bridge context",
		"entities", len(entities),
		"anchors", len(keys),
		"routeLength", len(route),
		"pathEdges", len(pathEdges),
		"textUnits", len(textUnits),
	)
	logReferences(entities, communities, textUnits)

	sections := []string{
		csvSection("Reasoning Path", relationCSV(pathEdges)),
		csvSection("Sources", textUnitCSV(textUnits)),
	}
	return strings.Join(sections, "\n"), true, nil
}

// buildHierarchicalFullContext combines community backgrounds, the reasoning
// path, the nearest entities and their sources into one context.
func (c *Client) buildHierarchicalFullContext(ctx context.Context, query string, param QueryParam) (string, bool, error) {
	pool, err := c.retrieveEntities(ctx, query, param.TopK*retrievalPoolFactor)
	if err != nil {
		return "", false, err
	}
	if len(pool) == 0 {
		return "", false, nil
	}
	entities := pool
	if len(entities) > param.TopK {
		entities = entities[:param.TopK]
	}
	communities, err := c.findRelatedCommunities(ctx, entities, param)
	if err != nil {
		return "", false, err
	}
	textUnits, err := c.findRelatedTextUnits(ctx, entities, param)
	if err != nil {
		return "", false, err
	}
	keys := keyEntities(pool, communities, param.TopM)
	route, err := c.routeThroughEntities(ctx, keys)
	if err != nil {
		return "", false, err
	}
	pathEdges, err := c.findEdgesFromPath(ctx, route, param.MaxTokenForBridgeKnowledge)
	if err != nil {
		return "", false, err
	}
	logger.Info("[Query] Full context",
		"entities", len(entities),
		"communities", len(communities),
		"anchors", len(keys),
		"pathEdges", len(pathEdges),
		"textUnits", len(textUnits),
	)
	logReferences(entities, communities, textUnits)

	sections := []string{
		csvSection("Backgrounds", communityCSV(communities, true)),
		csvSection("Reasoning Path", relationCSV(pathEdges)),
		csvSection("Entities", entityCSV(entities)),
		csvSection("Sources", textUnitCSV(textUnits)),
	}
	return strings.Join(sections, "\n"), true, nil
}
