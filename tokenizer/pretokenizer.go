package tokenizer

import (
	"fmt"

	"github.com/dlclark/regexp2"
)

// PreTokenizer splits text into words before BPE merges are applied.
type PreTokenizer interface {
	Split(text string) ([]string, error)
}

// Patterns used by the Hugging Face pre-tokenizers of the same name.
const (
	whitespacePattern      = `\w+|[^\w\s]+`
	whitespaceSplitPattern = `\S+`
)

// preTokenizerSpec is the "pre_tokenizer" object of a tokenizer.json file.
type preTokenizerSpec struct {
	Type          string             `json:"type"`
	Pattern       *splitPattern      `json:"pattern,omitempty"`
	Behavior      string             `json:"behavior,omitempty"`
	Invert        bool               `json:"invert,omitempty"`
	PreTokenizers []preTokenizerSpec `json:"pretokenizers,omitempty"`
}

type splitPattern struct {
	Regex  string `json:"Regex,omitempty"`
	String string `json:"String,omitempty"`
}

// regexSplitter emits regex matches, the text between matches, or both.
type regexSplitter struct {
	re      *regexp2.Regexp
	matches bool
	gaps    bool
}

func newRegexSplitter(pattern string, matches, gaps bool) (*regexSplitter, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compile pre-tokenizer pattern %q: %w", pattern, err)
	}
	return &regexSplitter{re: re, matches: matches, gaps: gaps}, nil
}

func (s *regexSplitter) Split(text string) ([]string, error) {
	runes := []rune(text)
	var out []string
	last := 0
	m, err := s.re.FindRunesMatch(runes)
	for m != nil && err == nil {
		if s.gaps && m.Index > last {
			out = append(out, string(runes[last:m.Index]))
		}
		if s.matches && m.Length > 0 {
			out = append(out, m.String())
		}
		last = m.Index + m.Length
		m, err = s.re.FindNextMatch(m)
	}
	if err != nil {
		return nil, fmt.Errorf("pre-tokenize: %w", err)
	}
	if s.gaps && last < len(runes) {
		out = append(out, string(runes[last:]))
	}
	return out, nil
}

// sequence runs each pre-tokenizer over the words produced by the previous one.
type sequence []PreTokenizer

func (seq sequence) Split(text string) ([]string, error) {
	words := []string{text}
	for _, p := range seq {
		var next []string
		for _, w := range words {
			parts, err := p.Split(w)
			if err != nil {
				return nil, err
			}
			next = append(next, parts...)
		}
		words = next
	}
	return words, nil
}

// wholeText is used when a tokenizer.json has no pre-tokenizer.
type wholeText struct{}

func (wholeText) Split(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	return []string{text}, nil
}

func newPreTokenizer(spec *preTokenizerSpec) (PreTokenizer, error) {
	if spec == nil {
		return wholeText{}, nil
	}
	switch spec.Type {
	case "Whitespace":
		return newRegexSplitter(whitespacePattern, true, false)
	case "WhitespaceSplit":
		return newRegexSplitter(whitespaceSplitPattern, true, false)
	case "Split":
		if spec.Pattern == nil {
			return nil, fmt.Errorf("split pre-tokenizer has no pattern")
		}
		pattern := spec.Pattern.Regex
		if pattern == "" {
			pattern = regexp2.Escape(spec.Pattern.String)
		}
		switch spec.Behavior {
		case "", "Isolated":
			return newRegexSplitter(pattern, true, !spec.Invert)
		case "Removed":
			if spec.Invert {
				return newRegexSplitter(pattern, true, false)
			}
			return newRegexSplitter(pattern, false, true)
		default:
			return nil, fmt.Errorf("unsupported split behavior %q", spec.Behavior)
		}
	case "Sequence":
		seq := make(sequence, 0, len(spec.PreTokenizers))
		for i := range spec.PreTokenizers {
			p, err := newPreTokenizer(&spec.PreTokenizers[i])
			if err != nil {
				return nil, err
			}
			seq = append(seq, p)
		}
		return seq, nil
	default:
		return nil, fmt.Errorf("unsupported pre-tokenizer %q", spec.Type)
	}
}
