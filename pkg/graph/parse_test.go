package graph

import (
	"testing"
)

func TestCanonIdempotent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Alice", want: "Alice"},
		{name: "whitespace", in: "  Alice  ", want: "Alice"},
		{name: "quotes", in: `"Alice"`, want: "Alice"},
		{name: "single quotes", in: "'Alice'", want: "Alice"},
		{name: "html entities", in: "&quot;Alice &amp; Bob&quot;", want: "Alice & Bob"},
		{name: "control chars", in: "Ali\x00ce\x1f", want: "Alice"},
		{name: "quotes inside stay", in: `say "hi"`, want: `say "hi"`},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := Canon(tc.in)
			if got != tc.want {
				t.Fatalf("Canon(%q) = %q, want %q", tc.in, got, tc.want)
			}
			if again := Canon(got); again != got {
				t.Fatalf("Canon not idempotent: Canon(%q) = %q", got, again)
			}
		})
	}
}

func TestCanonName(t *testing.T) {
	t.Parallel()

	if got := CanonName(`"alice smith"`); got != "ALICE SMITH" {
		t.Fatalf("CanonName = %q, want %q", got, "ALICE SMITH")
	}
}

func TestParseRecords(t *testing.T) {
	t.Parallel()

	raw := `("entity"<|>"Alice"<|>"person"<|>"Alice is an engineer")##` +
		`("entity"<|>"Bob"<|>"person"<|>"Bob is a manager")##` +
		`("relationship"<|>"Alice"<|>"Bob"<|>"Alice reports to Bob"<|>"8")##` +
		`("relationship"<|>"Alice"<|>"Bob"<|>"weight is garbage"<|>"heavy")##` +
		`("entity"<|>"Carol")##` +
		`random noise<|COMPLETE|>`

	records := ParseRecords(raw, "chunk-1")

	var entities, relations, unrecognized int
	for _, r := range records {
		switch r.Kind {
		case RecordEntity:
			entities++
		case RecordRelationship:
			relations++
		default:
			unrecognized++
		}
	}
	if entities != 2 || relations != 2 || unrecognized != 1 {
		t.Fatalf("got %d entities, %d relations, %d unrecognized, want 2/2/1",
			entities, relations, unrecognized)
	}

	first := records[0].Entity
	if first.EntityName != "ALICE" || first.EntityType != "PERSON" {
		t.Fatalf("entity = %+v, want name ALICE type PERSON", first)
	}
	if first.Description != "Alice is an engineer" || first.SourceID != "chunk-1" {
		t.Fatalf("entity payload = %+v", first)
	}

	rel := records[2].Relationship
	if rel.SrcID != "ALICE" || rel.TgtID != "BOB" || rel.Weight != 8 || rel.Order != 1 {
		t.Fatalf("relationship = %+v, want ALICE->BOB weight 8 order 1", rel)
	}

	fallback := records[3].Relationship
	if fallback.Weight != 1.0 {
		t.Fatalf("unparseable weight = %v, want fallback 1.0", fallback.Weight)
	}
}

func TestParseRecordsEmptyNameDropped(t *testing.T) {
	t.Parallel()

	raw := `("entity"<|>"  "<|>"person"<|>"no name")`
	records := ParseRecords(raw, "chunk-1")
	if len(records) != 1 || records[0].Kind != RecordUnrecognized {
		t.Fatalf("records = %+v, want one unrecognized", records)
	}
}

func TestRecordBagsGroupBySortedPair(t *testing.T) {
	t.Parallel()

	bags := NewRecordBags()
	bags.AddRelation(RelationshipRecord{SrcID: "B", TgtID: "A", Weight: 1})
	bags.AddRelation(RelationshipRecord{SrcID: "A", TgtID: "B", Weight: 2})

	list, ok := bags.Relations[[2]string{"A", "B"}]
	if !ok || len(list) != 2 {
		t.Fatalf("relations = %+v, want both under sorted pair [A B]", bags.Relations)
	}
}
