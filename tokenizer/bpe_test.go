package tokenizer

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// writeTokenizerJSON writes a tokenizer.json file with the given body.
func writeTokenizerJSON(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tokenizer.json")
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write tokenizer file: %v", err)
	}
	return p
}

const tinyTokenizer = `{
  "version": "1.0",
  "truncation": null,
  "padding": null,
  "added_tokens": [
    {"id": 0, "content": "[UNK]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true}
  ],
  "normalizer": null,
  "pre_tokenizer": {"type": "Whitespace"},
  "post_processor": null,
  "decoder": null,
  "model": {
    "type": "BPE",
    "dropout": null,
    "unk_token": "[UNK]",
    "continuing_subword_prefix": null,
    "end_of_word_suffix": null,
    "fuse_unk": false,
    "byte_fallback": false,
    "vocab": {"[UNK]": 0, "a": 1, "b": 2, ",": 3, "ab": 4, "1": 5, "2": 6, "12": 7},
    "merges": %s
  }
}`

func TestLoadBPE_HuggingFaceLayout(t *testing.T) {
	for name, merges := range map[string]string{
		"legacy": `["a b", "1 2"]`,
		"pairs":  `[["a", "b"], ["1", "2"]]`,
	} {
		t.Run(name, func(t *testing.T) {
			p := writeTokenizerJSON(t, strings.Replace(tinyTokenizer, "%s", merges, 1))
			tok, err := LoadBPE(p)
			if err != nil {
				t.Fatalf("LoadBPE failed: %v", err)
			}
			if tok.NumMerges() != 2 {
				t.Fatalf("expected 2 merges, got %d", tok.NumMerges())
			}
			ids, err := tok.Encode("ab,12 a b")
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			want := []int{4, 3, 7, 1, 2}
			if !reflect.DeepEqual(ids, want) {
				t.Fatalf("Encode mismatch: got %v want %v", ids, want)
			}
			text, err := tok.Decode(ids)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if text != "ab , 12 a b" {
				t.Fatalf("Decode mismatch: got %q", text)
			}
		})
	}
}

func TestBPE_UnknownSymbols(t *testing.T) {
	p := writeTokenizerJSON(t, strings.Replace(tinyTokenizer, "%s", `["a b"]`, 1))
	tok, err := LoadBPE(p)
	if err != nil {
		t.Fatalf("LoadBPE failed: %v", err)
	}
	ids, err := tok.Encode("az")
	if err != nil {
		t.Fatalf("Encode with unk fallback failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []int{1, 0}) {
		t.Fatalf("expected [1 0], got %v", ids)
	}
	// [UNK] is special and is skipped on decode.
	text, err := tok.Decode(ids)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if text != "a" {
		t.Fatalf("expected %q, got %q", "a", text)
	}
	if _, err := tok.Decode([]int{99}); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}

	noUnk := strings.Replace(tinyTokenizer, `"unk_token": "[UNK]"`, `"unk_token": null`, 1)
	p = writeTokenizerJSON(t, strings.Replace(noUnk, "%s", `["a b"]`, 1))
	tok, err = LoadBPE(p)
	if err != nil {
		t.Fatalf("LoadBPE failed: %v", err)
	}
	if _, err := tok.Encode("az"); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}

func TestBPE_AddedTokensMatchedVerbatim(t *testing.T) {
	p := writeTokenizerJSON(t, strings.Replace(tinyTokenizer, "%s", `["a b"]`, 1))
	tok, err := LoadBPE(p)
	if err != nil {
		t.Fatalf("LoadBPE failed: %v", err)
	}
	ids, err := tok.Encode("ab[UNK]a")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []int{4, 0, 1}) {
		t.Fatalf("expected [4 0 1], got %v", ids)
	}
}

func TestLoadBPE_Rejects(t *testing.T) {
	cases := map[string]string{
		"wordpiece":  strings.Replace(strings.Replace(tinyTokenizer, `"type": "BPE"`, `"type": "WordPiece"`, 1), "%s", `[]`, 1),
		"normalizer": strings.Replace(strings.Replace(tinyTokenizer, `"normalizer": null`, `"normalizer": {"type": "NFC"}`, 1), "%s", `[]`, 1),
		"bad merge":  strings.Replace(tinyTokenizer, "%s", `["ab"]`, 1),
		"not json":   "{",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadBPE(writeTokenizerJSON(t, body)); err == nil {
				t.Fatalf("expected LoadBPE to fail")
			}
		})
	}
	if _, err := LoadBPE(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected LoadBPE to fail for a missing file")
	}
}

func TestOpen_PicksBPEForPaths(t *testing.T) {
	p := writeTokenizerJSON(t, strings.Replace(tinyTokenizer, "%s", `["a b"]`, 1))
	tok, err := Open(p)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := tok.(*BPE); !ok {
		t.Fatalf("expected *BPE, got %T", tok)
	}
}
