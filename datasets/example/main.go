package main

// Example command that opens a ChunkSampler over a directory of source files,
// decodes one window back to text and stacks a few windows into gomlx
// tensors through the Batcher.
//
// Usage:
//   go run ./datasets/example -data tmp/nanoGPT/ -tokenizer ../bpe_tokenizer.json
//
// Any tiktoken encoding works as well, e.g. -tokenizer tiktoken:cl100k_base.

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/Noofbiz/tablefeed/datasets"
)

func main() {
	dataPath := flag.String("data", datasets.DefaultDataPath, "directory holding the source files")
	tokenizerPath := flag.String("tokenizer", datasets.DefaultTokenizerPath, "tokenizer.json path or tiktoken:<encoding>")
	blockSize := flag.Int("block-size", 64, "window length in tokens")
	batchSize := flag.Int("batch-size", 4, "windows per batch")
	flag.Parse()

	sampler, err := datasets.Open(datasets.Config{
		DataPath:      *dataPath,
		TokenizerPath: *tokenizerPath,
		BlockSize:     *blockSize,
	})
	if err != nil {
		log.Fatalf("failed to open sampler: %v", err)
	}
	fmt.Printf("Found %d source files in %s\n", len(sampler.Files()), *dataPath)
	fmt.Printf("Virtual length: %d, chunk size: %d\n", sampler.Len(), sampler.ChunkSize())

	// One window, with how it was drawn.
	smp, err := sampler.Sample()
	if err != nil {
		log.Fatalf("failed to sample: %v", err)
	}
	fmt.Printf("Sampled %s at offset %d: %d of %d columns, %d rows, %d attempt(s)\n",
		smp.Path, smp.Offset, smp.Columns, smp.TotalColumns, smp.Rows, smp.Attempts)

	ids := make([]int, len(smp.Input))
	for i, id := range smp.Input {
		ids[i] = int(id)
	}
	text, err := sampler.Decode(ids)
	if err != nil {
		log.Fatalf("failed to decode window: %v", err)
	}
	fmt.Printf("  Input (decoded): %q\n", text)

	// A batch of windows as gomlx tensors.
	batcher := datasets.NewBatcher(sampler, *batchSize)
	batch, err := batcher.Batch(context.Background(), *batchSize)
	if err != nil {
		log.Fatalf("failed to build batch: %v", err)
	}
	inT, tgT, err := batch.ToGomlxTensors()
	if err != nil {
		log.Fatalf("failed to convert batch to gomlx tensors: %v", err)
	}
	fmt.Printf("Created %s tensors: input=%s target=%s\n", batcher.Name(), inT.Shape(), tgT.Shape())
	fmt.Printf("Chunk size after %d samples: %d\n", *batchSize+1, sampler.ChunkSize())
}
