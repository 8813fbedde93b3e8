// Package store defines the storage contracts backing the knowledge graph:
// the graph itself, key-value collections for chunks and reports, and the
// vector index used for entity retrieval.
package store

import (
	"context"
	"errors"

	"github.com/knotworks/strata/pkg/cluster"
)

// ErrNoPath is returned by ShortestPath when the two nodes share no
// connected component.
var ErrNoPath = errors.New("no path between nodes")

// NodeData holds the stored attributes of one graph node. Description and
// SourceID pack multiple values with the field separator; Clusters lists the
// community memberships assigned by hierarchical clustering.
type NodeData struct {
	EntityType  string               `json:"entity_type"`
	Description string               `json:"description"`
	SourceID    string               `json:"source_id"`
	Clusters    []cluster.Membership `json:"clusters,omitempty"`
}

// EdgeData holds the stored attributes of one undirected edge. Weight
// accumulates across merges; Order is the smallest hierarchy distance seen
// for the pair (1 for edges between base entities).
type EdgeData struct {
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
	SourceID    string  `json:"source_id"`
	Order       int     `json:"order"`
}

// CommunitySchema describes one community of the hierarchical partition.
// Occurrence is the community's chunk coverage normalized against the
// largest community on the same level.
type CommunitySchema struct {
	Level          int         `json:"level"`
	Title          string      `json:"title"`
	Nodes          []string    `json:"nodes"`
	Edges          [][2]string `json:"edges"`
	ChunkIDs       []string    `json:"chunk_ids"`
	Occurrence     float64     `json:"occurrence"`
	SubCommunities []string    `json:"sub_communities"`
}

// CommunityReport is a generated report for one community, kept alongside
// the schema it was produced from.
type CommunityReport struct {
	CommunitySchema
	ReportString string     `json:"report_string"`
	ReportJSON   ReportJSON `json:"report_json"`
}

// ReportJSON is the structured body of a community report.
type ReportJSON struct {
	Title             string          `json:"title"`
	Summary           string          `json:"summary"`
	Rating            float64         `json:"rating"`
	RatingExplanation string          `json:"rating_explanation"`
	Findings          []ReportFinding `json:"findings"`
}

// ReportFinding is one insight inside a community report.
type ReportFinding struct {
	Summary     string `json:"summary"`
	Explanation string `json:"explanation"`
}

// GraphStorage persists and queries the knowledge graph. Get methods return
// nil data (not an error) when the node or edge does not exist; degree
// methods return 0 for missing nodes.
type GraphStorage interface {
	HasNode(ctx context.Context, nodeID string) (bool, error)
	HasEdge(ctx context.Context, srcID, tgtID string) (bool, error)

	GetNode(ctx context.Context, nodeID string) (*NodeData, error)
	GetEdge(ctx context.Context, srcID, tgtID string) (*EdgeData, error)
	GetNodeEdges(ctx context.Context, nodeID string) ([][2]string, error)

	NodeDegree(ctx context.Context, nodeID string) (int, error)
	EdgeDegree(ctx context.Context, srcID, tgtID string) (int, error)

	UpsertNode(ctx context.Context, nodeID string, data NodeData) error
	UpsertEdge(ctx context.Context, srcID, tgtID string, data EdgeData) error

	// ShortestPath returns the node ids from srcID to tgtID inclusive, or
	// ErrNoPath when the nodes are disconnected.
	ShortestPath(ctx context.Context, srcID, tgtID string) ([]string, error)

	// SubgraphEdges returns every stored edge whose both endpoints are in
	// the given node set.
	SubgraphEdges(ctx context.Context, nodeIDs []string) ([][2]string, error)

	// CommunitySchema aggregates the cluster memberships of all nodes into
	// per-community schemas keyed by cluster id.
	CommunitySchema(ctx context.Context) (map[string]*CommunitySchema, error)
}

// KVStorage is a typed key-value collection. GetByIDs preserves input order
// and yields the zero value plus ok=false markers as nil entries for missing
// ids.
type KVStorage[T any] interface {
	GetByID(ctx context.Context, id string) (*T, error)
	GetByIDs(ctx context.Context, ids []string) ([]*T, error)
	AllIDs(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, items map[string]T) error
	Drop(ctx context.Context) error
}

// VectorRecord is one entry to index: the text to embed plus the entity
// name it resolves back to.
type VectorRecord struct {
	Content    string
	EntityName string
}

// VectorHit is one nearest-neighbor result.
type VectorHit struct {
	ID         string
	EntityName string
	Score      float64
}

// VectorStorage indexes records by embedding and answers nearest-neighbor
// queries for free text.
type VectorStorage interface {
	Upsert(ctx context.Context, records map[string]VectorRecord) error
	Query(ctx context.Context, text string, topK int) ([]VectorHit, error)
}
