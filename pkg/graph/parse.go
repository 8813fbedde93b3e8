package graph

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/knotworks/strata/pkg/ai"
	"github.com/knotworks/strata/pkg/cluster"
)

// RecordKind classifies one parsed record from model extraction output.
type RecordKind int

const (
	RecordUnrecognized RecordKind = iota
	RecordEntity
	RecordRelationship
)

// EntityRecord is one extracted entity occurrence, before merging.
type EntityRecord struct {
	EntityName  string
	EntityType  string
	Description string
	SourceID    string
	Clusters    []cluster.Membership
}

// RelationshipRecord is one extracted relation occurrence, before merging.
type RelationshipRecord struct {
	SrcID       string
	TgtID       string
	Weight      float64
	Description string
	SourceID    string
	Order       int
}

// ParsedRecord is the tagged result of parsing one record. Exactly one of
// Entity and Relationship is non-nil unless Kind is RecordUnrecognized.
type ParsedRecord struct {
	Kind         RecordKind
	Entity       *EntityRecord
	Relationship *RelationshipRecord
}

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)

// Canon normalizes an entity name or field value to its identity form:
// whitespace trimmed, surrounding quotes stripped, HTML entities decoded,
// control characters removed. Canon is idempotent.
func Canon(s string) string {
	s = html.UnescapeString(strings.TrimSpace(s))
	s = strings.Trim(s, `"'`)
	s = controlChars.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// CanonName applies Canon plus upper-casing, the identity key for nodes.
func CanonName(s string) string {
	return strings.ToUpper(Canon(s))
}

var recordPayload = regexp.MustCompile(`\((.*)\)`)

// ParseRecords splits one block of raw extraction output into tagged
// records. Malformed records come back as RecordUnrecognized so callers can
// count them; they carry no payload.
func ParseRecords(raw, sourceID string) []ParsedRecord {
	blocks := splitByMarkers(raw, ai.RecordDelimiter, ai.CompletionDelimiter)

	out := make([]ParsedRecord, 0, len(blocks))
	for _, block := range blocks {
		match := recordPayload.FindStringSubmatch(block)
		if match == nil {
			continue
		}
		fields := splitByMarkers(match[1], ai.TupleDelimiter)

		if entity := parseEntityFields(fields, sourceID); entity != nil {
			out = append(out, ParsedRecord{Kind: RecordEntity, Entity: entity})
			continue
		}
		if relation := parseRelationshipFields(fields, sourceID); relation != nil {
			out = append(out, ParsedRecord{Kind: RecordRelationship, Relationship: relation})
			continue
		}
		out = append(out, ParsedRecord{Kind: RecordUnrecognized})
	}
	return out
}

func parseEntityFields(fields []string, sourceID string) *EntityRecord {
	if len(fields) < 4 || Canon(fields[0]) != "entity" {
		return nil
	}
	name := CanonName(fields[1])
	if name == "" {
		return nil
	}
	return &EntityRecord{
		EntityName:  name,
		EntityType:  CanonName(fields[2]),
		Description: Canon(fields[3]),
		SourceID:    sourceID,
	}
}

func parseRelationshipFields(fields []string, sourceID string) *RelationshipRecord {
	if len(fields) < 5 || Canon(fields[0]) != "relationship" {
		return nil
	}
	weight := 1.0
	if w, err := strconv.ParseFloat(Canon(fields[len(fields)-1]), 64); err == nil {
		weight = w
	}
	return &RelationshipRecord{
		SrcID:       CanonName(fields[1]),
		TgtID:       CanonName(fields[2]),
		Weight:      weight,
		Description: Canon(fields[3]),
		SourceID:    sourceID,
		Order:       1,
	}
}

func splitByMarkers(s string, markers ...string) []string {
	parts := []string{s}
	for _, marker := range markers {
		next := make([]string, 0, len(parts))
		for _, p := range parts {
			next = append(next, strings.Split(p, marker)...)
		}
		parts = next
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// edgeKey returns the canonical unordered pair key for an edge.
func edgeKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// RecordBags groups parsed records by identity key, duplicates preserved.
type RecordBags struct {
	Entities  map[string][]EntityRecord
	Relations map[[2]string][]RelationshipRecord
}

// NewRecordBags returns empty bags.
func NewRecordBags() RecordBags {
	return RecordBags{
		Entities:  make(map[string][]EntityRecord),
		Relations: make(map[[2]string][]RelationshipRecord),
	}
}

// AddRecords appends every entity and relationship from records.
func (b RecordBags) AddRecords(records []ParsedRecord) {
	for _, r := range records {
		switch r.Kind {
		case RecordEntity:
			b.AddEntity(*r.Entity)
		case RecordRelationship:
			b.AddRelation(*r.Relationship)
		}
	}
}

func (b RecordBags) AddEntity(e EntityRecord) {
	b.Entities[e.EntityName] = append(b.Entities[e.EntityName], e)
}

func (b RecordBags) AddRelation(r RelationshipRecord) {
	key := edgeKey(r.SrcID, r.TgtID)
	b.Relations[key] = append(b.Relations[key], r)
}

// Merge folds other into b.
func (b RecordBags) Merge(other RecordBags) {
	for name, list := range other.Entities {
		b.Entities[name] = append(b.Entities[name], list...)
	}
	for key, list := range other.Relations {
		b.Relations[key] = append(b.Relations[key], list...)
	}
}
