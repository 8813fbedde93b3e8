// Package graph implements the knowledge graph pipeline: model-driven
// entity and relation extraction over text chunks, commutative merging into
// graph storage, hierarchical community reports, and the query context
// builders that assemble token-budgeted retrieval contexts.
package graph

// QueryMode selects the retrieval strategy used to assemble a context.
type QueryMode string

const (
	// ModeNaive retrieves chunks by similarity only, without the graph.
	ModeNaive QueryMode = "naive"
	// ModeLocal combines entities, relations, community reports and
	// source chunks around the top-k retrieved entities.
	ModeLocal QueryMode = "local"
	// ModeHierarchicalLocal is ModeLocal retrieval at plain top-k,
	// without the community reports section.
	ModeHierarchicalLocal QueryMode = "hierarchical-local"
	// ModeHierarchicalGlobal uses community reports and sources only.
	ModeHierarchicalGlobal QueryMode = "hierarchical-global"
	// ModeHierarchicalBridge uses the cross-community reasoning path and
	// sources only.
	ModeHierarchicalBridge QueryMode = "hierarchical-bridge"
	// ModeHierarchicalFull combines community reports, the reasoning
	// path, entities and sources.
	ModeHierarchicalFull QueryMode = "hierarchical-full"
)

// QueryParam configures one retrieval. The zero value is not usable; start
// from DefaultQueryParam and override fields as needed. A QueryParam is
// never mutated by the assembler.
type QueryParam struct {
	Mode            QueryMode
	OnlyNeedContext bool
	ResponseType    string

	// Level is the community hierarchy ceiling for report selection.
	Level int
	// TopK is the entity similarity search width.
	TopK int
	// TopM caps key entities taken per community for the bridging path.
	TopM int

	MaxTokenForTextUnit        int
	MaxTokenForLocalContext    int
	MaxTokenForCommunityReport int
	MaxTokenForBridgeKnowledge int
	NaiveMaxTokenForTextUnit   int

	// CommunitySingleOne clips the report section to the top community.
	CommunitySingleOne bool
}

// DefaultQueryParam returns the standard retrieval configuration.
func DefaultQueryParam() QueryParam {
	return QueryParam{
		Mode:                       ModeHierarchicalFull,
		ResponseType:               "Multiple Paragraphs",
		Level:                      2,
		TopK:                       20,
		TopM:                       10,
		MaxTokenForTextUnit:        4000,
		MaxTokenForLocalContext:    4800,
		MaxTokenForCommunityReport: 3200,
		MaxTokenForBridgeKnowledge: 12500,
		NaiveMaxTokenForTextUnit:   12000,
		CommunitySingleOne:         false,
	}
}
