package tokenizer

import (
	"fmt"
	"sort"
)

// TrainerConfig controls TrainBPE.
type TrainerConfig struct {
	// VocabSize is the target vocabulary size, special tokens and the
	// initial alphabet included.
	VocabSize int

	// MinFrequency is the minimum pair count for a merge. Defaults to 2.
	MinFrequency int

	// SpecialTokens get the lowest ids, in order. Defaults to
	// [UNK] [CLS] [SEP] [PAD] [MASK].
	SpecialTokens []string

	// UnkToken names the unknown token. Defaults to the first special token.
	UnkToken string
}

// DefaultSpecialTokens are the special tokens used when TrainerConfig leaves
// SpecialTokens empty.
var DefaultSpecialTokens = []string{"[UNK]", "[CLS]", "[SEP]", "[PAD]", "[MASK]"}

type trainWord struct {
	syms  []string
	count int
}

// TrainBPE learns a BPE tokenizer with a Whitespace pre-tokenizer from texts.
//
// Training:
//  1. Split every text into words and count word frequencies.
//  2. Seed the vocabulary with the special tokens and every character seen.
//  3. Repeatedly merge the most frequent adjacent symbol pair (ties broken
//     by the pair's text) until VocabSize is reached or no pair occurs
//     MinFrequency times.
func TrainBPE(texts []string, cfg TrainerConfig) (*BPE, error) {
	if len(cfg.SpecialTokens) == 0 {
		cfg.SpecialTokens = DefaultSpecialTokens
	}
	if cfg.MinFrequency <= 0 {
		cfg.MinFrequency = 2
	}
	if cfg.UnkToken == "" {
		cfg.UnkToken = cfg.SpecialTokens[0]
	}

	preSpec := &preTokenizerSpec{Type: "Whitespace"}
	pre, err := newPreTokenizer(preSpec)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, text := range texts {
		words, err := pre.Split(text)
		if err != nil {
			return nil, err
		}
		for _, w := range words {
			counts[w]++
		}
	}

	vocab := make(map[string]int)
	added := make([]AddedToken, 0, len(cfg.SpecialTokens))
	for _, s := range cfg.SpecialTokens {
		if _, ok := vocab[s]; ok {
			continue
		}
		id := len(vocab)
		vocab[s] = id
		added = append(added, AddedToken{ID: id, Content: s, Special: true})
	}

	alphabet := make(map[string]bool)
	words := make([]trainWord, 0, len(counts))
	for w, c := range counts {
		tw := trainWord{count: c}
		for _, r := range w {
			s := string(r)
			alphabet[s] = true
			tw.syms = append(tw.syms, s)
		}
		words = append(words, tw)
	}
	chars := make([]string, 0, len(alphabet))
	for s := range alphabet {
		chars = append(chars, s)
	}
	sort.Strings(chars)
	for _, s := range chars {
		if _, ok := vocab[s]; !ok {
			vocab[s] = len(vocab)
		}
	}
	if cfg.VocabSize > 0 && cfg.VocabSize < len(vocab) {
		return nil, fmt.Errorf("vocab size %d is smaller than the %d special tokens and characters", cfg.VocabSize, len(vocab))
	}

	var merges []mergePair
	for len(vocab) < cfg.VocabSize {
		pairs := make(map[mergePair]int)
		for _, w := range words {
			for i := 0; i+1 < len(w.syms); i++ {
				pairs[mergePair{w.syms[i], w.syms[i+1]}] += w.count
			}
		}
		var best mergePair
		bestCount := 0
		for p, c := range pairs {
			if c > bestCount || (c == bestCount && lessPair(p, best)) {
				best, bestCount = p, c
			}
		}
		if bestCount < cfg.MinFrequency {
			break
		}
		merges = append(merges, best)
		merged := best.A + best.B
		if _, ok := vocab[merged]; !ok {
			vocab[merged] = len(vocab)
		}
		for i := range words {
			words[i].syms = mergeSymbols(words[i].syms, best, merged)
		}
	}

	return newBPE(vocab, merges, cfg.UnkToken, false, added, preSpec)
}

func lessPair(a, b mergePair) bool {
	if a.A != b.A {
		return a.A < b.A
	}
	return a.B < b.B
}

// mergeSymbols replaces every adjacent (p.A, p.B) in syms with merged.
func mergeSymbols(syms []string, p mergePair, merged string) []string {
	out := syms[:0]
	for i := 0; i < len(syms); i++ {
		if i+1 < len(syms) && syms[i] == p.A && syms[i+1] == p.B {
			out = append(out, merged)
			i++
			continue
		}
		out = append(out, syms[i])
	}
	return out
}
