package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/knotworks/strata/pkg/ai"
	"github.com/knotworks/strata/pkg/chunk"
)

func TestInsertMergesSharedEntities(t *testing.T) {
	t.Parallel()
	env := newTestClient(t)
	ctx := context.Background()

	docOne := "Alice works with Bob."
	docTwo := "Bob and Carl collaborate."

	env.model.completionFn = func(prompt string, opts ai.GenerateOptions) (string, error) {
		switch {
		case prompt == ai.ContinueExtractPrompt:
			return "", nil
		case prompt == ai.LoopExtractPrompt:
			return `"no"`, nil
		case strings.Contains(prompt, docOne):
			return `("entity"<|>"Alice"<|>"person"<|>"an engineer")##` +
				`("entity"<|>"Bob"<|>"person"<|>"a manager")##` +
				`("relationship"<|>"Alice"<|>"Bob"<|>"works with"<|>"8")<|COMPLETE|>`, nil
		case strings.Contains(prompt, docTwo):
			return `("entity"<|>"Bob"<|>"person"<|>"a collaborator")##` +
				`("entity"<|>"Carl"<|>"person"<|>"a researcher")##` +
				`("relationship"<|>"Bob"<|>"Carl"<|>"collaborates with"<|>"6")<|COMPLETE|>`, nil
		default:
			return "", nil
		}
	}

	err := env.client.Insert(ctx, map[string]string{"doc-1": docOne, "doc-2": docTwo})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// BOB appears in both documents, so the merged node must carry both
	// chunk ids as provenance.
	bob, err := env.graph.GetNode(ctx, "BOB")
	if err != nil || bob == nil {
		t.Fatalf("GetNode(BOB) = %v, %v", bob, err)
	}
	sources := strings.Split(bob.SourceID, ai.GraphFieldSep)
	wantSources := map[string]bool{chunk.ID(docOne): false, chunk.ID(docTwo): false}
	for _, id := range sources {
		if _, ok := wantSources[id]; ok {
			wantSources[id] = true
		}
	}
	for id, found := range wantSources {
		if !found {
			t.Fatalf("BOB source ids = %v, missing %q", sources, id)
		}
	}
	for _, want := range []string{"a collaborator", "a manager"} {
		if !strings.Contains(bob.Description, want) {
			t.Fatalf("BOB description = %q, missing %q", bob.Description, want)
		}
	}

	// The shared mention must not bridge the unrelated pair.
	for _, tc := range []struct {
		src, tgt string
		want     bool
	}{
		{src: "ALICE", tgt: "BOB", want: true},
		{src: "BOB", tgt: "CARL", want: true},
		{src: "ALICE", tgt: "CARL", want: false},
	} {
		has, err := env.graph.HasEdge(ctx, tc.src, tc.tgt)
		if err != nil {
			t.Fatalf("HasEdge(%s, %s): %v", tc.src, tc.tgt, err)
		}
		if has != tc.want {
			t.Fatalf("HasEdge(%s, %s) = %v, want %v", tc.src, tc.tgt, has, tc.want)
		}
	}

	edge, err := env.graph.GetEdge(ctx, "ALICE", "BOB")
	if err != nil || edge == nil {
		t.Fatalf("GetEdge(ALICE, BOB) = %v, %v", edge, err)
	}
	if edge.Weight != 8 {
		t.Fatalf("ALICE-BOB weight = %v, want 8", edge.Weight)
	}

	// Chunks landed in the KV store under their content-hash ids.
	stored, err := env.chunks.GetByID(ctx, chunk.ID(docOne))
	if err != nil || stored == nil || stored.Content != docOne {
		t.Fatalf("stored chunk = %v, %v", stored, err)
	}
}
