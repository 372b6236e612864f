package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tiktoken adapts a named tiktoken encoding (e.g. "cl100k_base") to
// Tokenizer. The encoding's rank file is fetched and cached by the tiktoken
// library on first use.
type Tiktoken struct {
	Encoding string
	enc      *tiktoken.Tiktoken
}

// LoadTiktoken returns the tiktoken encoding with the given name.
func LoadTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &Tiktoken{Encoding: encoding, enc: enc}, nil
}

// Encode converts text to token ids. Special tokens are encoded as plain
// text.
func (t *Tiktoken) Encode(text string) ([]int, error) {
	return t.enc.Encode(text, nil, nil), nil
}

// Decode converts token ids back to text.
func (t *Tiktoken) Decode(ids []int) (string, error) {
	return t.enc.Decode(ids), nil
}
