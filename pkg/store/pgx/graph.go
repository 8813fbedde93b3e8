package pgx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/knotworks/strata/pkg/store"
	"github.com/knotworks/strata/pkg/store/memory"
)

// Graph persists the knowledge graph in the graph_nodes and graph_edges
// tables. Point reads and writes run as SQL; traversal operations (shortest
// path, subgraph, community aggregation) hydrate an in-process snapshot and
// delegate, since they touch most of the graph anyway.
type Graph struct {
	conn pgxIConn
}

func NewGraph(conn pgxIConn) *Graph {
	return &Graph{conn: conn}
}

var _ store.GraphStorage = (*Graph)(nil)

func orderPair(srcID, tgtID string) (string, string) {
	if srcID > tgtID {
		return tgtID, srcID
	}
	return srcID, tgtID
}

func (g *Graph) HasNode(ctx context.Context, nodeID string) (bool, error) {
	var exists bool
	err := g.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM graph_nodes WHERE id = $1)`, nodeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check node %s: %w", nodeID, err)
	}
	return exists, nil
}

func (g *Graph) HasEdge(ctx context.Context, srcID, tgtID string) (bool, error) {
	src, tgt := orderPair(srcID, tgtID)
	var exists bool
	err := g.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM graph_edges WHERE src = $1 AND tgt = $2)`, src, tgt,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check edge %s-%s: %w", srcID, tgtID, err)
	}
	return exists, nil
}

func (g *Graph) GetNode(ctx context.Context, nodeID string) (*store.NodeData, error) {
	var raw []byte
	err := g.conn.QueryRow(ctx,
		`SELECT data FROM graph_nodes WHERE id = $1`, nodeID,
	).Scan(&raw)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read node %s: %w", nodeID, err)
	}
	data := new(store.NodeData)
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("failed to decode node %s: %w", nodeID, err)
	}
	return data, nil
}

func (g *Graph) GetEdge(ctx context.Context, srcID, tgtID string) (*store.EdgeData, error) {
	src, tgt := orderPair(srcID, tgtID)
	var raw []byte
	err := g.conn.QueryRow(ctx,
		`SELECT data FROM graph_edges WHERE src = $1 AND tgt = $2`, src, tgt,
	).Scan(&raw)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read edge %s-%s: %w", srcID, tgtID, err)
	}
	data := new(store.EdgeData)
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("failed to decode edge %s-%s: %w", srcID, tgtID, err)
	}
	return data, nil
}

func (g *Graph) GetNodeEdges(ctx context.Context, nodeID string) ([][2]string, error) {
	rows, err := g.conn.Query(ctx,
		`SELECT src, tgt FROM graph_edges
		 WHERE src = $1 OR tgt = $1
		 ORDER BY src, tgt`, nodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read edges of %s: %w", nodeID, err)
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var src, tgt string
		if err := rows.Scan(&src, &tgt); err != nil {
			return nil, err
		}
		// The queried node comes first so callers see (node, neighbor).
		if src == nodeID {
			out = append(out, [2]string{src, tgt})
		} else {
			out = append(out, [2]string{tgt, src})
		}
	}
	return out, rows.Err()
}

func (g *Graph) NodeDegree(ctx context.Context, nodeID string) (int, error) {
	var degree int
	err := g.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM graph_edges WHERE src = $1 OR tgt = $1`, nodeID,
	).Scan(&degree)
	if err != nil {
		return 0, fmt.Errorf("failed to read degree of %s: %w", nodeID, err)
	}
	return degree, nil
}

func (g *Graph) EdgeDegree(ctx context.Context, srcID, tgtID string) (int, error) {
	srcDegree, err := g.NodeDegree(ctx, srcID)
	if err != nil {
		return 0, err
	}
	tgtDegree, err := g.NodeDegree(ctx, tgtID)
	if err != nil {
		return 0, err
	}
	return srcDegree + tgtDegree, nil
}

func (g *Graph) UpsertNode(ctx context.Context, nodeID string, data store.NodeData) error {
	if nodeID == "" {
		return fmt.Errorf("node id must not be empty")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode node %s: %w", nodeID, err)
	}
	_, err = g.conn.Exec(ctx,
		`INSERT INTO graph_nodes (id, data) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		nodeID, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", nodeID, err)
	}
	return nil
}

func (g *Graph) UpsertEdge(ctx context.Context, srcID, tgtID string, data store.EdgeData) error {
	if srcID == "" || tgtID == "" {
		return fmt.Errorf("edge endpoints must not be empty")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode edge %s-%s: %w", srcID, tgtID, err)
	}
	src, tgt := orderPair(srcID, tgtID)
	_, err = g.conn.Exec(ctx,
		`INSERT INTO graph_edges (src, tgt, data) VALUES ($1, $2, $3)
		 ON CONFLICT (src, tgt) DO UPDATE SET data = EXCLUDED.data`,
		src, tgt, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert edge %s-%s: %w", srcID, tgtID, err)
	}
	return nil
}

func (g *Graph) ShortestPath(ctx context.Context, srcID, tgtID string) ([]string, error) {
	snap, err := g.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.ShortestPath(ctx, srcID, tgtID)
}

func (g *Graph) SubgraphEdges(ctx context.Context, nodeIDs []string) ([][2]string, error) {
	snap, err := g.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.SubgraphEdges(ctx, nodeIDs)
}

func (g *Graph) CommunitySchema(ctx context.Context) (map[string]*store.CommunitySchema, error) {
	snap, err := g.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.CommunitySchema(ctx)
}

func (g *Graph) snapshot(ctx context.Context) (*memory.Graph, error) {
	snap := memory.NewGraph()

	rows, err := g.conn.Query(ctx, `SELECT id, data FROM graph_nodes`)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var data store.NodeData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to decode node %s: %w", id, err)
		}
		if err := snap.UpsertNode(ctx, id, data); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edgeRows, err := g.conn.Query(ctx, `SELECT src, tgt, data FROM graph_edges`)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var (
			src, tgt string
			raw      []byte
		)
		if err := edgeRows.Scan(&src, &tgt, &raw); err != nil {
			return nil, err
		}
		var data store.EdgeData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to decode edge %s-%s: %w", src, tgt, err)
		}
		if err := snap.UpsertEdge(ctx, src, tgt, data); err != nil {
			return nil, err
		}
	}
	return snap, edgeRows.Err()
}
