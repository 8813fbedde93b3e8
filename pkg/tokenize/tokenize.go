// Package tokenize wraps model tokenization behind a small interface so that
// token-budget logic can be tested without loading a real encoding.
package tokenize

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Encoder counts, encodes and decodes model-tokenizer units for a fixed encoding.
type Encoder interface {
	Encode(text string) []int
	Decode(tokens []int) string
	Count(text string) int
}

// Tiktoken is an Encoder backed by a tiktoken BPE encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding, e.g. "cl100k_base" or "o200k_base".
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tiktoken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// TruncateByTokenBudget returns the longest prefix of list whose cumulative
// token count, measured over key(item), stays within maxTokens. The list is
// assumed to be rank-ordered already; given the same ordering, a larger budget
// always yields a superset of a smaller one.
func TruncateByTokenBudget[T any](list []T, key func(T) string, maxTokens int, enc Encoder) []T {
	if maxTokens <= 0 {
		return nil
	}
	total := 0
	for i, item := range list {
		total += enc.Count(key(item))
		if total > maxTokens {
			return list[:i]
		}
	}
	return list
}

// TruncateText cuts text down to at most maxTokens tokens.
func TruncateText(text string, maxTokens int, enc Encoder) string {
	tokens := enc.Encode(text)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens])
}
