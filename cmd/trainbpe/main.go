package main

import (
	"bufio"
	"flag"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Noofbiz/tablefeed/datasets"
	"github.com/Noofbiz/tablefeed/tokenizer"
)

// readPrefix returns up to maxBytes of path, cut back to the last complete
// line.
func readPrefix(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(bufio.NewReader(f), maxBytes))
	if err != nil {
		return "", err
	}
	text := string(data)
	if int64(len(data)) == maxBytes {
		if i := strings.LastIndexByte(text, '\n'); i != -1 {
			text = text[:i+1]
		}
	}
	return text, nil
}

func main() {
	dataPath := flag.String("data", datasets.DefaultDataPath, "directory holding the source files")
	extension := flag.String("ext", datasets.DefaultExtension, "source file extension")
	recursive := flag.Bool("recursive", false, "also search subdirectories of -data")
	vocabSize := flag.Int("vocab-size", 8000, "target vocabulary size, special tokens included")
	minFrequency := flag.Int("min-frequency", 2, "minimum pair count for a merge")
	maxBytes := flag.Int64("max-bytes", 1<<20, "bytes read from the start of each file")
	out := flag.String("out", "bpe_tokenizer.json", "output tokenizer.json path")

	flag.Parse()

	paths, err := datasets.FindSourceFiles(*dataPath, *extension, *recursive)
	if err != nil {
		log.Fatalf("failed to find source files: %v", err)
	}
	log.Printf("Reading up to %d bytes from each of %d files in %s", *maxBytes, len(paths), *dataPath)

	texts := make([]string, 0, len(paths))
	var total int
	for _, p := range paths {
		text, err := readPrefix(p, *maxBytes)
		if err != nil {
			log.Fatalf("failed to read %s: %v", p, err)
		}
		texts = append(texts, text)
		total += len(text)
	}

	log.Printf("Training BPE on %d bytes (vocab=%d, min-frequency=%d)...", total, *vocabSize, *minFrequency)
	start := time.Now()
	tok, err := tokenizer.TrainBPE(texts, tokenizer.TrainerConfig{
		VocabSize:    *vocabSize,
		MinFrequency: *minFrequency,
	})
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	log.Printf("Training completed in %v: %d tokens, %d merges", time.Since(start), tok.VocabSize(), tok.NumMerges())

	if err := tok.Save(*out); err != nil {
		log.Fatalf("failed to save tokenizer: %v", err)
	}
	log.Printf("Tokenizer written to %s", *out)
}
