// Package chunk splits documents into token-windowed text chunks, the unit of
// provenance for everything extracted into the knowledge graph.
package chunk

import (
	"strings"

	"github.com/knotworks/strata/internal/util"
	"github.com/knotworks/strata/pkg/tokenize"
)

const (
	// DefaultMaxTokens is the token window per chunk.
	DefaultMaxTokens = 1024
	// DefaultOverlapTokens is how many tokens consecutive chunks share.
	DefaultOverlapTokens = 128

	idPrefix = "chunk-"
)

// Chunk is one token-windowed slice of a source document. Chunks are immutable
// once created; the id is a hash of the content, so re-ingesting the same text
// produces the same chunk id.
type Chunk struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	Tokens     int    `json:"tokens"`
	OrderIndex int    `json:"chunk_order_index"`
	FullDocID  string `json:"full_doc_id"`
}

// Params configures document chunking.
type Params struct {
	MaxTokens     int
	OverlapTokens int
}

func (p Params) withDefaults() Params {
	if p.MaxTokens <= 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.OverlapTokens < 0 || p.OverlapTokens >= p.MaxTokens {
		p.OverlapTokens = DefaultOverlapTokens
	}
	return p
}

// ID returns the deterministic id for a chunk with the given content.
func ID(content string) string {
	return util.HashID(content, idPrefix)
}

// SplitDocuments chunks every document by sliding token window and returns the
// chunks keyed by id. docs maps document id to raw content.
func SplitDocuments(docs map[string]string, enc tokenize.Encoder, params Params) map[string]*Chunk {
	params = params.withDefaults()

	out := make(map[string]*Chunk)
	for docID, content := range docs {
		for _, c := range splitDocument(docID, content, enc, params) {
			out[c.ID] = c
		}
	}
	return out
}

func splitDocument(docID, content string, enc tokenize.Encoder, params Params) []*Chunk {
	tokens := enc.Encode(content)
	if len(tokens) == 0 {
		return nil
	}

	step := params.MaxTokens - params.OverlapTokens
	var chunks []*Chunk
	index := 0
	for start := 0; start < len(tokens); start += step {
		end := min(start+params.MaxTokens, len(tokens))
		text := strings.TrimSpace(enc.Decode(tokens[start:end]))
		if text == "" {
			continue
		}
		chunks = append(chunks, &Chunk{
			ID:         ID(text),
			Content:    text,
			Tokens:     end - start,
			OrderIndex: index,
			FullDocID:  docID,
		})
		index++
	}
	return chunks
}
