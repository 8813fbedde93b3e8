package tokenize

import (
	"reflect"
	"testing"
)

type runeEncoder struct{}

func (runeEncoder) Encode(text string) []int {
	runes := []rune(text)
	out := make([]int, len(runes))
	for i, r := range runes {
		out[i] = int(r)
	}
	return out
}

func (runeEncoder) Decode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, t := range tokens {
		runes[i] = rune(t)
	}
	return string(runes)
}

func (runeEncoder) Count(text string) int {
	return len([]rune(text))
}

func TestTruncateByTokenBudget(t *testing.T) {
	t.Parallel()
	list := []string{"aaaa", "bbb", "cc"}
	key := func(s string) string { return s }

	tests := []struct {
		name   string
		budget int
		want   []string
	}{
		{name: "zero budget", budget: 0, want: nil},
		{name: "below first item", budget: 3, want: []string{}},
		{name: "first item only", budget: 4, want: []string{"aaaa"}},
		{name: "mid list", budget: 8, want: []string{"aaaa", "bbb"}},
		{name: "exact total", budget: 9, want: []string{"aaaa", "bbb", "cc"}},
		{name: "ample", budget: 100, want: []string{"aaaa", "bbb", "cc"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := TruncateByTokenBudget(list, key, tc.budget, runeEncoder{})
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			if len(got) > 0 && !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTruncateByTokenBudgetMonotonic(t *testing.T) {
	t.Parallel()
	list := []string{"aaaa", "bbb", "cc", "d"}
	key := func(s string) string { return s }

	// Growing the budget never drops items, and every result is a prefix
	// of the input.
	prev := 0
	for budget := 0; budget <= 12; budget++ {
		got := TruncateByTokenBudget(list, key, budget, runeEncoder{})
		if len(got) < prev {
			t.Fatalf("budget %d kept %d items, budget %d kept %d", budget, len(got), budget-1, prev)
		}
		if len(got) > 0 && !reflect.DeepEqual(got, list[:len(got)]) {
			t.Fatalf("budget %d result %v is not a prefix of %v", budget, got, list)
		}
		prev = len(got)
	}
	if prev != len(list) {
		t.Fatalf("largest budget kept %d items, want all %d", prev, len(list))
	}
}

func TestTruncateText(t *testing.T) {
	t.Parallel()

	if got := TruncateText("hello", 10, runeEncoder{}); got != "hello" {
		t.Fatalf("got %q, want the input unchanged", got)
	}
	if got := TruncateText("hello world", 5, runeEncoder{}); got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
	if got := TruncateText("hello", 0, runeEncoder{}); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
