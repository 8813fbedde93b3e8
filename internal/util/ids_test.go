package util

import (
	"strings"
	"testing"
)

func TestHashID(t *testing.T) {
	t.Parallel()

	first := HashID("some content", "chunk-")
	second := HashID("some content", "chunk-")
	if first != second {
		t.Fatalf("HashID is not deterministic: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first, "chunk-") {
		t.Fatalf("id = %q, want the chunk- prefix", first)
	}
	if len(first) != len("chunk-")+32 {
		t.Fatalf("id = %q, want a 32 char hex digest after the prefix", first)
	}
	if HashID("other content", "chunk-") == first {
		t.Fatal("different content produced the same id")
	}
	if HashID("some content", "ent-") == first {
		t.Fatal("different prefix produced the same id")
	}
}

func TestSanitizeStoredText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "clean", input: "hello", want: "hello"},
		{name: "nul bytes", input: "a\x00b", want: "ab"},
		{name: "invalid utf8", input: "a\xffb", want: "ab"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeStoredText(tc.input); got != tc.want {
				t.Fatalf("SanitizeStoredText(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNewCorrelationID(t *testing.T) {
	t.Parallel()

	first, err := NewCorrelationID()
	if err != nil {
		t.Fatalf("NewCorrelationID: %v", err)
	}
	second, err := NewCorrelationID()
	if err != nil {
		t.Fatalf("NewCorrelationID: %v", err)
	}
	if first == "" || first == second {
		t.Fatalf("ids not unique: %q, %q", first, second)
	}
}
