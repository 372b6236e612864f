// Package tokenizer maps table text to integer token ids and back.
//
// Two backends are provided:
//
//   - BPE: a byte-pair-encoding model stored in the Hugging Face
//     tokenizer.json layout. It can be loaded from disk, trained from a
//     corpus (TrainBPE) and saved again.
//   - Tiktoken: a thin adapter over a named tiktoken encoding.
//
// Open picks the backend from the artifact path: "tiktoken:<encoding>"
// selects a tiktoken encoding, anything else is read as a tokenizer.json.
package tokenizer

import (
	"errors"
	"strings"
)

// Tokenizer is the contract the samplers need from a tokenizer.
type Tokenizer interface {
	// Encode converts text into token ids.
	Encode(text string) ([]int, error)
	// Decode converts token ids back into text.
	Decode(ids []int) (string, error)
}

var (
	// ErrUnknownToken is returned by Encode when a symbol has no id and the
	// model has no unknown token to fall back on.
	ErrUnknownToken = errors.New("symbol not in vocabulary")

	// ErrUnknownID is returned by Decode for ids outside the vocabulary.
	ErrUnknownID = errors.New("token id not in vocabulary")
)

// TiktokenPrefix marks an artifact path as a tiktoken encoding name.
const TiktokenPrefix = "tiktoken:"

// Open loads the tokenizer named by path.
func Open(path string) (Tokenizer, error) {
	if enc, ok := strings.CutPrefix(path, TiktokenPrefix); ok {
		return LoadTiktoken(enc)
	}
	return LoadBPE(path)
}
