// Package cluster defines the community detection contract used to build the
// hierarchical layers of the knowledge graph. A Clusterer consumes embedded
// entities and returns per-level layers: entities annotated with community
// memberships, optionally with synthetic summary entities and the relations
// attaching them to their members. The graph pipeline feeds layer output back
// through merge like any other records.
package cluster

import "context"

// Membership records that a node belongs to one community at one hierarchy
// level. Level numbers grow with granularity: level 0 is the coarsest
// partition, higher levels are finer.
type Membership struct {
	Cluster string `json:"cluster"`
	Level   int    `json:"level"`
}

// Entity is one embedded graph node handed to the clusterer. Returned layer
// entities carry the Memberships assigned during clustering; those flow into
// the stored node attributes through the merge stage.
type Entity struct {
	EntityName  string
	EntityType  string
	Description string
	SourceID    string
	Vector      []float32
	Memberships []Membership
}

// Relation attaches a synthetic summary entity to one of its members.
type Relation struct {
	SrcID       string
	TgtID       string
	Description string
	Weight      float64
	SourceID    string
}

// Layer is the output of one clustering level: the membership-annotated or
// synthetic entities of that level and any relations linking them downward.
type Layer struct {
	Entities  []Entity
	Relations []Relation
}

// Clusterer builds hierarchical layers over a set of embedded entities.
// Implementations return layers ordered coarse to fine; the slice index is
// the level number.
type Clusterer interface {
	BuildLayers(ctx context.Context, entities []Entity) ([]Layer, error)
}
