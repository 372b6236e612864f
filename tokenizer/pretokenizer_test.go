package tokenizer

import (
	"reflect"
	"testing"
)

func TestPreTokenizers(t *testing.T) {
	tests := []struct {
		name string
		spec *preTokenizerSpec
		in   string
		want []string
	}{
		{
			name: "whitespace",
			spec: &preTokenizerSpec{Type: "Whitespace"},
			in:   "12.5,abc def\n",
			want: []string{"12", ".", "5", ",", "abc", "def"},
		},
		{
			name: "whitespace split",
			spec: &preTokenizerSpec{Type: "WhitespaceSplit"},
			in:   "1,2  3,4\n5",
			want: []string{"1,2", "3,4", "5"},
		},
		{
			name: "split isolated",
			spec: &preTokenizerSpec{Type: "Split", Pattern: &splitPattern{String: ","}, Behavior: "Isolated"},
			in:   "a,b,,c",
			want: []string{"a", ",", "b", ",", ",", "c"},
		},
		{
			name: "split removed",
			spec: &preTokenizerSpec{Type: "Split", Pattern: &splitPattern{Regex: `\s+(?!\S)|,`}, Behavior: "Removed"},
			in:   "a,b,c",
			want: []string{"a", "b", "c"},
		},
		{
			name: "sequence",
			spec: &preTokenizerSpec{Type: "Sequence", PreTokenizers: []preTokenizerSpec{
				{Type: "WhitespaceSplit"},
				{Type: "Split", Pattern: &splitPattern{String: "."}, Behavior: "Isolated"},
			}},
			in:   "1.5 2.25",
			want: []string{"1", ".", "5", "2", ".", "25"},
		},
		{
			name: "none",
			spec: nil,
			in:   "a b",
			want: []string{"a b"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := newPreTokenizer(tc.spec)
			if err != nil {
				t.Fatalf("newPreTokenizer failed: %v", err)
			}
			got, err := p.Split(tc.in)
			if err != nil {
				t.Fatalf("Split failed: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Split(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestPreTokenizers_Unsupported(t *testing.T) {
	if _, err := newPreTokenizer(&preTokenizerSpec{Type: "Metaspace"}); err == nil {
		t.Fatalf("expected an error for an unsupported pre-tokenizer")
	}
	if _, err := newPreTokenizer(&preTokenizerSpec{Type: "Split"}); err == nil {
		t.Fatalf("expected an error for a split without a pattern")
	}
}
