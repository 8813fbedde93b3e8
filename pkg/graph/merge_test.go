package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/knotworks/strata/internal/util"
	"github.com/knotworks/strata/pkg/ai"
	"github.com/knotworks/strata/pkg/cluster"
)

func TestMergeNodeMajorityType(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	ctx := context.Background()

	bags := NewRecordBags()
	bags.AddEntity(EntityRecord{EntityName: "ALICE", EntityType: "PERSON", Description: "an engineer", SourceID: "chunk-1"})
	bags.AddEntity(EntityRecord{EntityName: "ALICE", EntityType: "PERSON", Description: "a climber", SourceID: "chunk-2"})
	bags.AddEntity(EntityRecord{EntityName: "ALICE", EntityType: "ORGANIZATION", Description: "an engineer", SourceID: "chunk-1"})

	if _, err := env.client.mergeBags(ctx, bags); err != nil {
		t.Fatalf("mergeBags: %v", err)
	}

	node, err := env.graph.GetNode(ctx, "ALICE")
	if err != nil || node == nil {
		t.Fatalf("GetNode = %v, %v", node, err)
	}
	if node.EntityType != "PERSON" {
		t.Fatalf("entity type = %q, want majority PERSON", node.EntityType)
	}
	if node.Description != "a climber"+ai.GraphFieldSep+"an engineer" {
		t.Fatalf("description = %q, want sorted deduped union", node.Description)
	}
	if node.SourceID != "chunk-1"+ai.GraphFieldSep+"chunk-2" {
		t.Fatalf("source id = %q, want sorted union", node.SourceID)
	}
}

func TestMergeEdgeWeightAccumulates(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	ctx := context.Background()

	bags := NewRecordBags()
	bags.AddEntity(EntityRecord{EntityName: "ALICE", EntityType: "PERSON", Description: "d", SourceID: "chunk-1"})
	bags.AddEntity(EntityRecord{EntityName: "BOB", EntityType: "PERSON", Description: "d", SourceID: "chunk-1"})
	bags.AddRelation(RelationshipRecord{SrcID: "ALICE", TgtID: "BOB", Weight: 1.5, Description: "knows", SourceID: "chunk-1", Order: 1})
	bags.AddRelation(RelationshipRecord{SrcID: "BOB", TgtID: "ALICE", Weight: 1.5, Description: "works with", SourceID: "chunk-2", Order: 2})

	if _, err := env.client.mergeBags(ctx, bags); err != nil {
		t.Fatalf("mergeBags: %v", err)
	}
	edge, err := env.graph.GetEdge(ctx, "BOB", "ALICE")
	if err != nil || edge == nil {
		t.Fatalf("GetEdge = %v, %v", edge, err)
	}
	if edge.Weight != 3.0 {
		t.Fatalf("weight = %v, want 3.0", edge.Weight)
	}
	if edge.Order != 1 {
		t.Fatalf("order = %d, want min 1", edge.Order)
	}

	// Merging the same bags again adds onto the stored weight. Re-ingestion
	// is deliberately not idempotent for weights.
	if _, err := env.client.mergeBags(ctx, bags); err != nil {
		t.Fatalf("second mergeBags: %v", err)
	}
	edge, _ = env.graph.GetEdge(ctx, "ALICE", "BOB")
	if edge.Weight != 6.0 {
		t.Fatalf("weight after re-merge = %v, want 6.0", edge.Weight)
	}
}

func TestMergeEdgeCreatesPlaceholderNodes(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	ctx := context.Background()

	bags := NewRecordBags()
	bags.AddRelation(RelationshipRecord{SrcID: "CARL", TgtID: "DANA", Weight: 1, Description: "met", SourceID: "chunk-9", Order: 1})

	if _, err := env.client.mergeBags(ctx, bags); err != nil {
		t.Fatalf("mergeBags: %v", err)
	}

	for _, name := range []string{"CARL", "DANA"} {
		node, err := env.graph.GetNode(ctx, name)
		if err != nil || node == nil {
			t.Fatalf("placeholder %s = %v, %v", name, node, err)
		}
		if node.EntityType != "UNKNOWN" {
			t.Fatalf("placeholder type = %q, want UNKNOWN", node.EntityType)
		}
		if node.Description != "met" || node.SourceID != "chunk-9" {
			t.Fatalf("placeholder payload = %+v", node)
		}
	}
}

func TestMergeNodeSummarizesLongDescriptions(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	env.client.summaryMaxTokens = 10
	env.model.completionFn = func(prompt string, opts ai.GenerateOptions) (string, error) {
		if !strings.Contains(prompt, "ALICE") {
			t.Errorf("summary prompt missing entity name: %q", prompt)
		}
		if opts.Model != "cheap" {
			t.Errorf("summary model = %q, want cheap", opts.Model)
		}
		return "  a concise summary  ", nil
	}
	ctx := context.Background()

	bags := NewRecordBags()
	bags.AddEntity(EntityRecord{EntityName: "ALICE", EntityType: "PERSON", Description: "a very long description", SourceID: "chunk-1"})

	if _, err := env.client.mergeBags(ctx, bags); err != nil {
		t.Fatalf("mergeBags: %v", err)
	}
	node, _ := env.graph.GetNode(ctx, "ALICE")
	if node.Description != "a concise summary" {
		t.Fatalf("description = %q, want trimmed summary", node.Description)
	}
}

func TestMergeNodeUnionsClusterMemberships(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	ctx := context.Background()

	bags := NewRecordBags()
	bags.AddEntity(EntityRecord{
		EntityName: "ALICE", EntityType: "PERSON", Description: "d", SourceID: "chunk-1",
		Clusters: []cluster.Membership{{Cluster: "c0", Level: 0}},
	})
	bags.AddEntity(EntityRecord{
		EntityName: "ALICE", EntityType: "PERSON", Description: "d", SourceID: "chunk-1",
		Clusters: []cluster.Membership{{Cluster: "c0", Level: 0}, {Cluster: "c1", Level: 1}},
	})

	if _, err := env.client.mergeBags(ctx, bags); err != nil {
		t.Fatalf("mergeBags: %v", err)
	}
	node, _ := env.graph.GetNode(ctx, "ALICE")
	if len(node.Clusters) != 2 {
		t.Fatalf("clusters = %+v, want deduped c0 and c1", node.Clusters)
	}
}

func TestSyncEntityVectors(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	ctx := context.Background()

	err := env.client.syncEntityVectors(ctx, []mergedEntity{
		{EntityName: "ALICE", Description: "an engineer"},
	})
	if err != nil {
		t.Fatalf("syncEntityVectors: %v", err)
	}

	id := util.HashID("ALICE", "ent-")
	rec, ok := env.entityVectors.upserts[id]
	if !ok {
		t.Fatalf("no vector record under %s, got %+v", id, env.entityVectors.upserts)
	}
	if rec.Content != "ALICEan engineer" || rec.EntityName != "ALICE" {
		t.Fatalf("record = %+v", rec)
	}
}
