package ai

import (
	"reflect"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestUnmarshalFlexible(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  sample
	}{
		{
			name:  "plain json",
			input: `{"name":"a","count":1}`,
			want:  sample{Name: "a", Count: 1},
		},
		{
			name:  "fenced code block",
			input: "```json\n{\"name\":\"b\",\"count\":2}\n```",
			want:  sample{Name: "b", Count: 2},
		},
		{
			name:  "double encoded",
			input: `"{\"name\":\"c\",\"count\":3}"`,
			want:  sample{Name: "c", Count: 3},
		},
		{
			name:  "duplicate leading brace",
			input: `{{"name":"d","count":4}`,
			want:  sample{Name: "d", Count: 4},
		},
		{
			name:  "repairable trailing comma",
			input: `{"name":"e","count":5,}`,
			want:  sample{Name: "e", Count: 5},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var got sample
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexibleRejectsGarbage(t *testing.T) {
	t.Parallel()
	var got sample
	if err := UnmarshalFlexible("not even close to json []{", &got); err == nil {
		t.Fatalf("expected an error, got %+v", got)
	}
}

func TestAppendExchangeDoesNotMutate(t *testing.T) {
	t.Parallel()

	history := make([]ChatMessage, 0, 4)
	history = append(history, ChatMessage{Role: "user", Message: "hi"})
	snapshot := append([]ChatMessage(nil), history...)

	extended := AppendExchange(history, "question", "answer")
	if len(extended) != 3 {
		t.Fatalf("extended = %d messages, want 3", len(extended))
	}
	if extended[1].Role != "user" || extended[1].Message != "question" {
		t.Fatalf("extended[1] = %+v", extended[1])
	}
	if extended[2].Role != "assistant" || extended[2].Message != "answer" {
		t.Fatalf("extended[2] = %+v", extended[2])
	}
	if !reflect.DeepEqual(history, snapshot) {
		t.Fatalf("input history mutated: %+v", history)
	}

	// A second branch from the same prefix must not clobber the first.
	other := AppendExchange(history, "other question", "other answer")
	if extended[1].Message != "question" || other[1].Message != "other question" {
		t.Fatalf("branches interfere: %+v vs %+v", extended[1], other[1])
	}
}
