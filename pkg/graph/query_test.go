package graph

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/knotworks/strata/pkg/ai"
	"github.com/knotworks/strata/pkg/chunk"
	"github.com/knotworks/strata/pkg/cluster"
	"github.com/knotworks/strata/pkg/store"
)

// seedQueryGraph builds a small retrievable world: two connected people in
// one community, their source chunks and a finished community report.
func seedQueryGraph(t *testing.T, env *testClientEnv) {
	t.Helper()
	ctx := context.Background()

	nodes := map[string]store.NodeData{
		"ALICE": {
			EntityType:  "PERSON",
			Description: "an engineer",
			SourceID:    "chunk-1",
			Clusters:    []cluster.Membership{{Cluster: "c0", Level: 0}},
		},
		"BOB": {
			EntityType:  "PERSON",
			Description: "a manager",
			SourceID:    "chunk-2",
			Clusters:    []cluster.Membership{{Cluster: "c0", Level: 0}},
		},
	}
	for name, data := range nodes {
		if err := env.graph.UpsertNode(ctx, name, data); err != nil {
			t.Fatalf("UpsertNode %s: %v", name, err)
		}
	}
	err := env.graph.UpsertEdge(ctx, "ALICE", "BOB", store.EdgeData{
		Weight: 2, Description: "colleagues", SourceID: "chunk-1", Order: 1,
	})
	if err != nil {
		t.Fatalf("UpsertEdge: %v", err)
	}

	err = env.chunks.Upsert(ctx, map[string]chunk.Chunk{
		"chunk-1": {ID: "chunk-1", Content: "Alice builds the index.", FullDocID: "doc-1"},
		"chunk-2": {ID: "chunk-2", Content: "Bob runs the team.", FullDocID: "doc-1", OrderIndex: 1},
	})
	if err != nil {
		t.Fatalf("chunks.Upsert: %v", err)
	}

	err = env.reports.Upsert(ctx, map[string]store.CommunityReport{
		"c0": {
			CommunitySchema: store.CommunitySchema{Level: 0, Title: "Cluster c0", Nodes: []string{"ALICE", "BOB"}},
			ReportString:    "# Team\n\nAlice and Bob work together.",
			ReportJSON:      store.ReportJSON{Title: "Team", Rating: 5},
		},
	})
	if err != nil {
		t.Fatalf("reports.Upsert: %v", err)
	}

	env.entityVectors.hits = []store.VectorHit{
		{ID: "e1", EntityName: "ALICE", Score: 0.9},
		{ID: "e2", EntityName: "BOB", Score: 0.8},
	}
}

func TestBuildLocalContext(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	seedQueryGraph(t, env)

	contextText, ok, err := env.client.buildLocalContext(context.Background(), "who builds the index", DefaultQueryParam())
	if err != nil {
		t.Fatalf("buildLocalContext: %v", err)
	}
	if !ok {
		t.Fatal("buildLocalContext found nothing")
	}
	for _, want := range []string{
		"-----Reports-----", "-----Entities-----", "-----Relationships-----", "-----Sources-----",
		"# Team", "ALICE", "colleagues", "Alice builds the index.",
	} {
		if !strings.Contains(contextText, want) {
			t.Fatalf("context missing %q:\n%s", want, contextText)
		}
	}
	// ALICE was the better hit, so its chunk leads the sources table.
	if strings.Index(contextText, "Alice builds the index.") > strings.Index(contextText, "Bob runs the team.") {
		t.Fatalf("sources out of retrieval order:\n%s", contextText)
	}
}

func TestQueryEmptyRetrieval(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	ctx := context.Background()

	param := DefaultQueryParam()
	param.Mode = ModeLocal
	response, err := env.client.Query(ctx, "anything", param)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if response != ai.FailResponse {
		t.Fatalf("response = %q, want the canned failure", response)
	}
	if len(env.model.prompts) != 0 {
		t.Fatalf("model was called %d times on an empty retrieval", len(env.model.prompts))
	}

	param.OnlyNeedContext = true
	response, err = env.client.Query(ctx, "anything", param)
	if err != nil {
		t.Fatalf("Query with OnlyNeedContext: %v", err)
	}
	if response != "" {
		t.Fatalf("context = %q, want empty", response)
	}
}

func TestQueryUnknownMode(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)

	param := DefaultQueryParam()
	param.Mode = QueryMode("sideways")
	if _, err := env.client.Query(context.Background(), "q", param); err == nil {
		t.Fatal("expected an error for an unknown mode")
	}
}

func TestQueryGeneratesAnswerFromContext(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	seedQueryGraph(t, env)

	env.model.completionFn = func(prompt string, opts ai.GenerateOptions) (string, error) {
		if opts.Model != "capable" {
			t.Errorf("answer model = %q, want %q", opts.Model, "capable")
		}
		if len(opts.SystemPrompts) != 1 || !strings.Contains(opts.SystemPrompts[0], "-----Entities-----") {
			t.Errorf("system prompt does not carry the context: %v", opts.SystemPrompts)
		}
		return "Alice does.", nil
	}

	param := DefaultQueryParam()
	param.Mode = ModeLocal
	response, err := env.client.Query(context.Background(), "who builds the index", param)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if response != "Alice does." {
		t.Fatalf("response = %q", response)
	}
}

func TestNaiveQuery(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	seedQueryGraph(t, env)
	env.chunkVectors.hits = []store.VectorHit{
		{ID: "chunk-1", Score: 0.9},
		{ID: "chunk-2", Score: 0.7},
	}

	param := DefaultQueryParam()
	param.Mode = ModeNaive
	param.OnlyNeedContext = true
	contextText, err := env.client.Query(context.Background(), "index", param)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := "Alice builds the index.--New Chunk--\nBob runs the team."
	if contextText != want {
		t.Fatalf("context = %q, want %q", contextText, want)
	}

	// A tight budget keeps only the best chunk.
	param.NaiveMaxTokenForTextUnit = 25
	contextText, err = env.client.Query(context.Background(), "index", param)
	if err != nil {
		t.Fatalf("Query with tight budget: %v", err)
	}
	if contextText != "Alice builds the index." {
		t.Fatalf("context = %q, want the first chunk only", contextText)
	}
}

func TestFindRelatedTextUnitsRanking(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	ctx := context.Background()

	// ALICE cites two chunks; both neighbors also cite chunk-1, none cite
	// chunk-2, so chunk-1 must come first despite equal first-seen order.
	nodes := map[string]store.NodeData{
		"ALICE": {Description: "d", SourceID: "chunk-2" + ai.GraphFieldSep + "chunk-1"},
		"BOB":   {Description: "d", SourceID: "chunk-1"},
		"CARL":  {Description: "d", SourceID: "chunk-1"},
	}
	for name, data := range nodes {
		if err := env.graph.UpsertNode(ctx, name, data); err != nil {
			t.Fatalf("UpsertNode %s: %v", name, err)
		}
	}
	for _, n := range []string{"BOB", "CARL"} {
		if err := env.graph.UpsertEdge(ctx, "ALICE", n, store.EdgeData{Weight: 1, Order: 1}); err != nil {
			t.Fatalf("UpsertEdge: %v", err)
		}
	}
	err := env.chunks.Upsert(ctx, map[string]chunk.Chunk{
		"chunk-1": {ID: "chunk-1", Content: "one"},
		"chunk-2": {ID: "chunk-2", Content: "two"},
	})
	if err != nil {
		t.Fatalf("chunks.Upsert: %v", err)
	}

	alice, err := env.graph.GetNode(ctx, "ALICE")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	units, err := env.client.findRelatedTextUnits(ctx,
		[]retrievedEntity{{name: "ALICE", data: alice, rank: 2}}, DefaultQueryParam())
	if err != nil {
		t.Fatalf("findRelatedTextUnits: %v", err)
	}
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	if want := []string{"chunk-1", "chunk-2"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("units = %v, want %v", ids, want)
	}
}

func TestKeyEntities(t *testing.T) {
	t.Parallel()
	pool := []retrievedEntity{
		{name: "A"}, {name: "B"}, {name: "C"}, {name: "D"},
	}

	got := keyEntities(pool, nil, 2)
	if want := []string{"A", "B"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("without communities = %v, want %v", got, want)
	}

	communities := []store.CommunityReport{
		{CommunitySchema: store.CommunitySchema{Nodes: []string{"C", "A"}}},
		{CommunitySchema: store.CommunitySchema{Nodes: []string{"B", "D"}}},
	}
	got = keyEntities(pool, communities, 1)
	if want := []string{"A", "B"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("per community = %v, want %v", got, want)
	}

	// An entity shared across communities is taken once.
	communities[1].Nodes = []string{"A", "D"}
	got = keyEntities(pool, communities, 2)
	if want := []string{"A", "C", "D"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("deduped = %v, want %v", got, want)
	}
}

func TestRouteThroughEntities(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	ctx := context.Background()

	edges := [][2]string{{"A", "B"}, {"B", "C"}, {"C", "D"}}
	for _, e := range edges {
		if err := env.graph.UpsertEdge(ctx, e[0], e[1], store.EdgeData{Weight: 1, Order: 1}); err != nil {
			t.Fatalf("UpsertEdge: %v", err)
		}
	}
	if err := env.graph.UpsertNode(ctx, "X", store.NodeData{}); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	route, err := env.client.routeThroughEntities(ctx, []string{"A", "D"})
	if err != nil {
		t.Fatalf("routeThroughEntities: %v", err)
	}
	if want := []string{"A", "B", "C", "D"}; !reflect.DeepEqual(route, want) {
		t.Fatalf("route = %v, want %v", route, want)
	}

	// X is disconnected, so the route jumps there and continues.
	route, err = env.client.routeThroughEntities(ctx, []string{"A", "X", "D"})
	if err != nil {
		t.Fatalf("routeThroughEntities with gap: %v", err)
	}
	if want := []string{"A", "X", "D"}; !reflect.DeepEqual(route, want) {
		t.Fatalf("route = %v, want %v", route, want)
	}
}

func TestBuildHierarchicalGlobalBackfillsMissingEntities(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	seedQueryGraph(t, env)

	// GHOST is still indexed but its node is gone. The widened pool must
	// backfill past it so the clip still yields TopK live entities.
	env.entityVectors.hits = []store.VectorHit{
		{ID: "e0", EntityName: "GHOST", Score: 0.95},
		{ID: "e1", EntityName: "ALICE", Score: 0.9},
		{ID: "e2", EntityName: "BOB", Score: 0.8},
	}

	param := DefaultQueryParam()
	param.TopK = 2
	contextText, ok, err := env.client.buildHierarchicalGlobalContext(context.Background(), "team", param)
	if err != nil {
		t.Fatalf("buildHierarchicalGlobalContext: %v", err)
	}
	if !ok {
		t.Fatal("global context found nothing")
	}
	for _, want := range []string{
		"-----Backgrounds-----", "-----Sources-----",
		"Alice builds the index.", "Bob runs the team.",
	} {
		if !strings.Contains(contextText, want) {
			t.Fatalf("context missing %q:\n%s", want, contextText)
		}
	}
}

func TestBuildHierarchicalBridgeContext(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	seedQueryGraph(t, env)

	param := DefaultQueryParam()
	contextText, ok, err := env.client.buildHierarchicalBridgeContext(context.Background(), "team", param)
	if err != nil {
		t.Fatalf("buildHierarchicalBridgeContext: %v", err)
	}
	if !ok {
		t.Fatal("bridge context found nothing")
	}
	for _, want := range []string{"-----Reasoning Path-----", "-----Sources-----", "colleagues"} {
		if !strings.Contains(contextText, want) {
			t.Fatalf("context missing %q:\n%s", want, contextText)
		}
	}
	if strings.Contains(contextText, "-----Entities-----") {
		t.Fatalf("bridge context must not carry an entity table:\n%s", contextText)
	}
}

func TestBuildHierarchicalFullContextFlattensBackgrounds(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	seedQueryGraph(t, env)

	param := DefaultQueryParam()
	contextText, ok, err := env.client.buildHierarchicalFullContext(context.Background(), "team", param)
	if err != nil {
		t.Fatalf("buildHierarchicalFullContext: %v", err)
	}
	if !ok {
		t.Fatal("full context found nothing")
	}
	for _, want := range []string{
		"-----Backgrounds-----", "-----Reasoning Path-----", "-----Entities-----", "-----Sources-----",
	} {
		if !strings.Contains(contextText, want) {
			t.Fatalf("context missing %q:\n%s", want, contextText)
		}
	}
	if !strings.Contains(contextText, "# Team  Alice and Bob work together.") {
		t.Fatalf("background report was not flattened:\n%s", contextText)
	}
}
