package tokenizer

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
)

// mergePair is one BPE merge rule: symbols A and B merge into A+B.
type mergePair struct {
	A, B string
}

// AddedToken is an entry of the tokenizer.json "added_tokens" list. Added
// tokens are matched verbatim before pre-tokenization.
type AddedToken struct {
	ID         int    `json:"id"`
	Content    string `json:"content"`
	SingleWord bool   `json:"single_word"`
	Lstrip     bool   `json:"lstrip"`
	Rstrip     bool   `json:"rstrip"`
	Normalized bool   `json:"normalized"`
	Special    bool   `json:"special"`
}

// BPE is a byte-pair-encoding tokenizer in the Hugging Face tokenizer.json
// layout. Encoding splits text into words with the pre-tokenizer, starts
// each word as one symbol per character and applies merges lowest rank
// first. Decoding has no decoder step: tokens are joined with single
// spaces, which is what the Hugging Face library does for a model saved
// without a decoder.
type BPE struct {
	vocab    map[string]int
	inverse  map[int]string
	merges   []mergePair
	ranks    map[mergePair]int
	unkToken string
	fuseUnk  bool

	added        []AddedToken
	special      map[int]bool
	addedPattern *regexp2.Regexp

	preSpec *preTokenizerSpec
	pre     PreTokenizer
}

// tokenizerFile mirrors the top level of a tokenizer.json file.
type tokenizerFile struct {
	Version       string            `json:"version"`
	Truncation    json.RawMessage   `json:"truncation"`
	Padding       json.RawMessage   `json:"padding"`
	AddedTokens   []AddedToken      `json:"added_tokens"`
	Normalizer    json.RawMessage   `json:"normalizer"`
	PreTokenizer  *preTokenizerSpec `json:"pre_tokenizer"`
	PostProcessor json.RawMessage   `json:"post_processor"`
	Decoder       json.RawMessage   `json:"decoder"`
	Model         modelFile         `json:"model"`
}

type modelFile struct {
	Type                    string          `json:"type"`
	Dropout                 *float64        `json:"dropout"`
	UnkToken                *string         `json:"unk_token"`
	ContinuingSubwordPrefix *string         `json:"continuing_subword_prefix"`
	EndOfWordSuffix         *string         `json:"end_of_word_suffix"`
	FuseUnk                 bool            `json:"fuse_unk"`
	ByteFallback            bool            `json:"byte_fallback"`
	Vocab                   map[string]int  `json:"vocab"`
	Merges                  json.RawMessage `json:"merges"`
}

// LoadBPE reads a tokenizer.json file holding a BPE model.
func LoadBPE(path string) (*BPE, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer %s: %w", path, err)
	}
	var f tokenizerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tokenizer %s: %w", path, err)
	}
	t, err := fromFile(&f)
	if err != nil {
		return nil, fmt.Errorf("tokenizer %s: %w", path, err)
	}
	return t, nil
}

func fromFile(f *tokenizerFile) (*BPE, error) {
	if f.Model.Type != "" && f.Model.Type != "BPE" {
		return nil, fmt.Errorf("unsupported model type %q", f.Model.Type)
	}
	if len(f.Normalizer) > 0 && string(f.Normalizer) != "null" {
		return nil, fmt.Errorf("normalizers are not supported")
	}
	if f.Model.ContinuingSubwordPrefix != nil && *f.Model.ContinuingSubwordPrefix != "" {
		return nil, fmt.Errorf("continuing_subword_prefix is not supported")
	}
	if f.Model.EndOfWordSuffix != nil && *f.Model.EndOfWordSuffix != "" {
		return nil, fmt.Errorf("end_of_word_suffix is not supported")
	}
	merges, err := parseMerges(f.Model.Merges)
	if err != nil {
		return nil, err
	}
	unk := ""
	if f.Model.UnkToken != nil {
		unk = *f.Model.UnkToken
	}
	return newBPE(f.Model.Vocab, merges, unk, f.Model.FuseUnk, f.AddedTokens, f.PreTokenizer)
}

// parseMerges accepts both the legacy "a b" strings and the ["a", "b"] pairs
// written by newer versions of the Hugging Face library.
func parseMerges(raw json.RawMessage) ([]mergePair, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var legacy []string
	if err := json.Unmarshal(raw, &legacy); err == nil {
		merges := make([]mergePair, 0, len(legacy))
		for i, m := range legacy {
			a, b, ok := strings.Cut(m, " ")
			if !ok {
				return nil, fmt.Errorf("merge %d %q is not a pair", i, m)
			}
			merges = append(merges, mergePair{a, b})
		}
		return merges, nil
	}
	var pairs [][]string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("parse merges: %w", err)
	}
	merges := make([]mergePair, 0, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("merge %d has %d parts", i, len(p))
		}
		merges = append(merges, mergePair{p[0], p[1]})
	}
	return merges, nil
}

func newBPE(vocab map[string]int, merges []mergePair, unk string, fuseUnk bool,
	added []AddedToken, pre *preTokenizerSpec) (*BPE, error) {

	t := &BPE{
		vocab:    make(map[string]int, len(vocab)+len(added)),
		inverse:  make(map[int]string, len(vocab)+len(added)),
		merges:   merges,
		ranks:    make(map[mergePair]int, len(merges)),
		unkToken: unk,
		fuseUnk:  fuseUnk,
		added:    added,
		special:  make(map[int]bool),
		preSpec:  pre,
	}
	for tok, id := range vocab {
		t.vocab[tok] = id
		t.inverse[id] = tok
	}
	for i, m := range merges {
		if _, ok := t.ranks[m]; !ok {
			t.ranks[m] = i
		}
	}
	for _, a := range added {
		t.vocab[a.Content] = a.ID
		t.inverse[a.ID] = a.Content
		if a.Special {
			t.special[a.ID] = true
		}
	}
	if unk != "" {
		if _, ok := t.vocab[unk]; !ok {
			return nil, fmt.Errorf("unknown token %q missing from vocabulary", unk)
		}
	}

	p, err := newPreTokenizer(pre)
	if err != nil {
		return nil, err
	}
	t.pre = p

	if len(added) > 0 {
		contents := make([]string, 0, len(added))
		for _, a := range added {
			if a.Content != "" {
				contents = append(contents, a.Content)
			}
		}
		// Longest first so that overlapping added tokens prefer the longer one.
		sort.Slice(contents, func(i, j int) bool { return len(contents[i]) > len(contents[j]) })
		alts := make([]string, len(contents))
		for i, c := range contents {
			alts[i] = regexp2.Escape(c)
		}
		if len(alts) > 0 {
			re, err := regexp2.Compile(strings.Join(alts, "|"), regexp2.None)
			if err != nil {
				return nil, fmt.Errorf("compile added tokens: %w", err)
			}
			t.addedPattern = re
		}
	}
	return t, nil
}

// Encode converts text to token ids.
func (t *BPE) Encode(text string) ([]int, error) {
	if text == "" {
		return nil, nil
	}
	var ids []int
	segments, err := t.splitAdded(text)
	if err != nil {
		return nil, err
	}
	for _, seg := range segments {
		if seg.added {
			ids = append(ids, t.vocab[seg.text])
			continue
		}
		words, err := t.pre.Split(seg.text)
		if err != nil {
			return nil, err
		}
		for _, w := range words {
			if ids, err = t.encodeWord(w, ids); err != nil {
				return nil, err
			}
		}
	}
	return ids, nil
}

type segment struct {
	text  string
	added bool
}

// splitAdded cuts text around verbatim occurrences of added tokens.
func (t *BPE) splitAdded(text string) ([]segment, error) {
	if t.addedPattern == nil {
		return []segment{{text: text}}, nil
	}
	runes := []rune(text)
	var segs []segment
	last := 0
	m, err := t.addedPattern.FindRunesMatch(runes)
	for m != nil && err == nil {
		if m.Index > last {
			segs = append(segs, segment{text: string(runes[last:m.Index])})
		}
		segs = append(segs, segment{text: m.String(), added: true})
		last = m.Index + m.Length
		m, err = t.addedPattern.FindNextMatch(m)
	}
	if err != nil {
		return nil, fmt.Errorf("match added tokens: %w", err)
	}
	if last < len(runes) {
		segs = append(segs, segment{text: string(runes[last:])})
	}
	return segs, nil
}

// encodeWord appends the ids of one pre-tokenized word to out.
func (t *BPE) encodeWord(word string, out []int) ([]int, error) {
	syms := make([]string, 0, len(word))
	for _, r := range word {
		syms = append(syms, string(r))
	}
	for len(syms) > 1 {
		best, bestRank := -1, math.MaxInt
		for i := 0; i+1 < len(syms); i++ {
			if r, ok := t.ranks[mergePair{syms[i], syms[i+1]}]; ok && r < bestRank {
				best, bestRank = i, r
			}
		}
		if best < 0 {
			break
		}
		syms[best] += syms[best+1]
		syms = append(syms[:best+1], syms[best+2:]...)
	}

	unkID, hasUnk := t.vocab[t.unkToken]
	hasUnk = hasUnk && t.unkToken != ""
	lastWasUnk := false
	for _, s := range syms {
		if id, ok := t.vocab[s]; ok {
			out = append(out, id)
			lastWasUnk = false
			continue
		}
		if !hasUnk {
			return nil, fmt.Errorf("%w: %q", ErrUnknownToken, s)
		}
		if !(t.fuseUnk && lastWasUnk) {
			out = append(out, unkID)
		}
		lastWasUnk = true
	}
	return out, nil
}

// Decode joins the tokens for ids with single spaces, skipping special
// tokens.
func (t *BPE) Decode(ids []int) (string, error) {
	toks := make([]string, 0, len(ids))
	for _, id := range ids {
		tok, ok := t.inverse[id]
		if !ok {
			return "", fmt.Errorf("%w: %d", ErrUnknownID, id)
		}
		if t.special[id] {
			continue
		}
		toks = append(toks, tok)
	}
	return strings.Join(toks, " "), nil
}

// VocabSize returns one more than the largest token id.
func (t *BPE) VocabSize() int {
	n := 0
	for id := range t.inverse {
		if id+1 > n {
			n = id + 1
		}
	}
	return n
}

// NumMerges returns the number of merge rules.
func (t *BPE) NumMerges() int {
	return len(t.merges)
}

// TokenID returns the id of tok, if it is in the vocabulary.
func (t *BPE) TokenID(tok string) (int, bool) {
	id, ok := t.vocab[tok]
	return id, ok
}

// Save writes the tokenizer as a tokenizer.json file. The write is atomic:
// a temp file in the target directory is renamed over path.
func (t *BPE) Save(path string) error {
	merges := make([]string, len(t.merges))
	for i, m := range t.merges {
		merges[i] = m.A + " " + m.B
	}
	rawMerges, err := json.Marshal(merges)
	if err != nil {
		return err
	}
	vocab := make(map[string]int, len(t.vocab))
	for tok, id := range t.vocab {
		vocab[tok] = id
	}
	var unk *string
	if t.unkToken != "" {
		unk = &t.unkToken
	}
	f := tokenizerFile{
		Version:      "1.0",
		AddedTokens:  t.added,
		PreTokenizer: t.preSpec,
		Model: modelFile{
			Type:     "BPE",
			UnkToken: unk,
			FuseUnk:  t.fuseUnk,
			Vocab:    vocab,
			Merges:   rawMerges,
		},
	}
	data, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tokenizer: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp tokenizer file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write tokenizer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp tokenizer file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp tokenizer to target: %w", err)
	}
	return nil
}
