// Package memory provides in-process implementations of the storage
// contracts. They are the default backends for single-node deployments and
// for tests; the pgx package covers durable setups.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/knotworks/strata/pkg/ai"
	"github.com/knotworks/strata/pkg/store"
)

// Graph is an undirected in-memory graph guarded by a single lock. Edge
// attributes are stored once per unordered pair.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]store.NodeData
	edges map[[2]string]store.EdgeData
	adj   map[string]map[string]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]store.NodeData),
		edges: make(map[[2]string]store.EdgeData),
		adj:   make(map[string]map[string]struct{}),
	}
}

func edgeKey(srcID, tgtID string) [2]string {
	if srcID > tgtID {
		srcID, tgtID = tgtID, srcID
	}
	return [2]string{srcID, tgtID}
}

func (g *Graph) HasNode(ctx context.Context, nodeID string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[nodeID]
	return ok, nil
}

func (g *Graph) HasEdge(ctx context.Context, srcID, tgtID string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.edges[edgeKey(srcID, tgtID)]
	return ok, nil
}

func (g *Graph) GetNode(ctx context.Context, nodeID string) (*store.NodeData, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	data, ok := g.nodes[nodeID]
	if !ok {
		return nil, nil
	}
	return &data, nil
}

func (g *Graph) GetEdge(ctx context.Context, srcID, tgtID string) (*store.EdgeData, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	data, ok := g.edges[edgeKey(srcID, tgtID)]
	if !ok {
		return nil, nil
	}
	return &data, nil
}

func (g *Graph) GetNodeEdges(ctx context.Context, nodeID string) ([][2]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	neighbors, ok := g.adj[nodeID]
	if !ok {
		return nil, nil
	}
	out := make([][2]string, 0, len(neighbors))
	for n := range neighbors {
		out = append(out, [2]string{nodeID, n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][1] < out[j][1] })
	return out, nil
}

func (g *Graph) NodeDegree(ctx context.Context, nodeID string) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adj[nodeID]), nil
}

// EdgeDegree is the combined degree of both endpoints, used to rank edges
// by prominence.
func (g *Graph) EdgeDegree(ctx context.Context, srcID, tgtID string) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adj[srcID]) + len(g.adj[tgtID]), nil
}

func (g *Graph) UpsertNode(ctx context.Context, nodeID string, data store.NodeData) error {
	if nodeID == "" {
		return fmt.Errorf("node id must not be empty")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[nodeID] = data
	if _, ok := g.adj[nodeID]; !ok {
		g.adj[nodeID] = make(map[string]struct{})
	}
	return nil
}

func (g *Graph) UpsertEdge(ctx context.Context, srcID, tgtID string, data store.EdgeData) error {
	if srcID == "" || tgtID == "" {
		return fmt.Errorf("edge endpoints must not be empty")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range []string{srcID, tgtID} {
		if _, ok := g.adj[id]; !ok {
			g.adj[id] = make(map[string]struct{})
		}
	}
	g.adj[srcID][tgtID] = struct{}{}
	g.adj[tgtID][srcID] = struct{}{}
	g.edges[edgeKey(srcID, tgtID)] = data
	return nil
}

// ShortestPath runs a breadth-first search and returns the hop-minimal node
// sequence from srcID to tgtID.
func (g *Graph) ShortestPath(ctx context.Context, srcID, tgtID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.adj[srcID]; !ok {
		return nil, store.ErrNoPath
	}
	if _, ok := g.adj[tgtID]; !ok {
		return nil, store.ErrNoPath
	}
	if srcID == tgtID {
		return []string{srcID}, nil
	}

	prev := map[string]string{srcID: ""}
	queue := []string{srcID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		neighbors := make([]string, 0, len(g.adj[cur]))
		for n := range g.adj[cur] {
			neighbors = append(neighbors, n)
		}
		sort.Strings(neighbors)
		for _, n := range neighbors {
			if _, seen := prev[n]; seen {
				continue
			}
			prev[n] = cur
			if n == tgtID {
				path := []string{tgtID}
				for at := cur; at != ""; at = prev[at] {
					path = append(path, at)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path, nil
			}
			queue = append(queue, n)
		}
	}
	return nil, store.ErrNoPath
}

func (g *Graph) SubgraphEdges(ctx context.Context, nodeIDs []string) ([][2]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inSet := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		inSet[id] = struct{}{}
	}
	out := make([][2]string, 0)
	for key := range g.edges {
		if _, ok := inSet[key[0]]; !ok {
			continue
		}
		if _, ok := inSet[key[1]]; !ok {
			continue
		}
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out, nil
}

// CommunitySchema aggregates node cluster memberships into per-community
// schemas. Edges incident to a member node are attributed to the community
// even when the other endpoint lies outside it; occurrence normalizes chunk
// coverage against the largest community.
func (g *Graph) CommunitySchema(ctx context.Context) (map[string]*store.CommunitySchema, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	type working struct {
		schema   *store.CommunitySchema
		nodes    map[string]struct{}
		edges    map[[2]string]struct{}
		chunkIDs map[string]struct{}
	}
	results := make(map[string]*working)

	maxChunkIDs := 0
	for nodeID, data := range g.nodes {
		incident := make([][2]string, 0, len(g.adj[nodeID]))
		for n := range g.adj[nodeID] {
			incident = append(incident, edgeKey(nodeID, n))
		}
		for _, membership := range data.Clusters {
			w, ok := results[membership.Cluster]
			if !ok {
				w = &working{
					schema: &store.CommunitySchema{
						Level: membership.Level,
						Title: "Cluster " + membership.Cluster,
					},
					nodes:    make(map[string]struct{}),
					edges:    make(map[[2]string]struct{}),
					chunkIDs: make(map[string]struct{}),
				}
				results[membership.Cluster] = w
			}
			w.nodes[nodeID] = struct{}{}
			for _, e := range incident {
				w.edges[e] = struct{}{}
			}
			for _, chunkID := range strings.Split(data.SourceID, ai.GraphFieldSep) {
				if chunkID != "" {
					w.chunkIDs[chunkID] = struct{}{}
				}
			}
			if len(w.chunkIDs) > maxChunkIDs {
				maxChunkIDs = len(w.chunkIDs)
			}
		}
	}

	out := make(map[string]*store.CommunitySchema, len(results))
	for key, w := range results {
		s := w.schema
		s.Nodes = sortedKeys(w.nodes)
		s.Edges = make([][2]string, 0, len(w.edges))
		for e := range w.edges {
			s.Edges = append(s.Edges, e)
		}
		sort.Slice(s.Edges, func(i, j int) bool {
			if s.Edges[i][0] != s.Edges[j][0] {
				return s.Edges[i][0] < s.Edges[j][0]
			}
			return s.Edges[i][1] < s.Edges[j][1]
		})
		s.ChunkIDs = sortedKeys(w.chunkIDs)
		if maxChunkIDs > 0 {
			s.Occurrence = float64(len(s.ChunkIDs)) / float64(maxChunkIDs)
		}
		out[key] = s
	}

	// A community's sub-communities are the finer-level communities fully
	// contained in its node set.
	for key, s := range out {
		for subKey, sub := range out {
			if subKey == key || sub.Level <= s.Level {
				continue
			}
			if containsAll(results[key].nodes, sub.Nodes) {
				s.SubCommunities = append(s.SubCommunities, subKey)
			}
		}
		sort.Strings(s.SubCommunities)
	}
	return out, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func containsAll(set map[string]struct{}, members []string) bool {
	for _, m := range members {
		if _, ok := set[m]; !ok {
			return false
		}
	}
	return true
}
