package simple

import (
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Noofbiz/tablefeed/datasets"
	"github.com/Noofbiz/tablefeed/tokenizer"
)

// cycleDataset yields windows of the sequence 0,1,...,V-1,0,1,... starting
// at a position derived from the index.
type cycleDataset struct {
	vocab, block, n int
}

func (c *cycleDataset) Len() int { return c.n }

func (c *cycleDataset) Example(i int) ([]int64, []int64, error) {
	in := make([]int64, c.block)
	tg := make([]int64, c.block)
	for j := range c.block {
		in[j] = int64((i + j) % c.vocab)
		tg[j] = int64((i + j + 1) % c.vocab)
	}
	return in, tg, nil
}

func TestModelTrainWithCycleDataset(t *testing.T) {
	const vocab = 8
	ds := &cycleDataset{vocab: vocab, block: 16, n: 100}

	model, err := NewModel(Config{VocabSize: vocab, LearningRate: 1.0, Steps: 40, BatchSize: 8, Seed: 42})
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}

	in, tg, _ := ds.Example(3)
	before, err := model.CrossEntropy([][]int64{in}, [][]int64{tg})
	if err != nil {
		t.Fatalf("CrossEntropy error: %v", err)
	}
	// Near-uniform logits start close to ln(V).
	if math.Abs(before-math.Log(vocab)) > 0.05 {
		t.Fatalf("expected initial loss near %.3f, got %.3f", math.Log(vocab), before)
	}

	losses, err := model.TrainWithDataset(ds)
	if err != nil {
		t.Fatalf("TrainWithDataset error: %v", err)
	}
	if len(losses) != 40 {
		t.Fatalf("expected 40 losses, got %d", len(losses))
	}

	after, err := model.CrossEntropy([][]int64{in}, [][]int64{tg})
	if err != nil {
		t.Fatalf("CrossEntropy error: %v", err)
	}
	t.Logf("loss before=%.4f after=%.4f", before, after)
	if !(after < before/2) {
		t.Fatalf("expected loss to drop: before=%.4f after=%.4f", before, after)
	}

	for a := range int64(vocab) {
		next, err := model.PredictNext(a)
		if err != nil {
			t.Fatalf("PredictNext error: %v", err)
		}
		if next != (a+1)%vocab {
			t.Fatalf("PredictNext(%d) = %d, want %d", a, next, (a+1)%vocab)
		}
	}
}

func TestModel_Errors(t *testing.T) {
	if _, err := NewModel(Config{}); err == nil {
		t.Fatalf("expected an error without a vocab size")
	}
	model, err := NewModel(Config{VocabSize: 4, Seed: 1})
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	if _, err := model.Probs(4); err == nil {
		t.Fatalf("expected an out of vocabulary error")
	}
	if _, err := model.CrossEntropy([][]int64{{0}}, nil); err == nil {
		t.Fatalf("expected a batch size mismatch error")
	}
	if _, err := model.TrainWithDataset(&cycleDataset{vocab: 8, block: 4, n: 10}); err == nil {
		t.Fatalf("expected tokens beyond the vocabulary to be rejected")
	}
	if _, err := model.TrainWithDataset(nil); err == nil {
		t.Fatalf("expected an error for a nil dataset")
	}
}

// TestModelTrainWithChunkSampler trains on windows drawn from a generated
// table through the sampler and a tokenizer trained on it.
func TestModelTrainWithChunkSampler(t *testing.T) {
	tmp := t.TempDir()
	var sb strings.Builder
	sb.WriteString("id,x,y,z\n")
	for i := range 400 {
		sb.WriteString("r")
		sb.WriteString(strings.Repeat("1", i%3+1))
		sb.WriteString(",0.5,1.25,2.75\n")
	}
	path := filepath.Join(tmp, "a.rhead")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	tok, err := tokenizer.TrainBPE([]string{sb.String(), ",0,1,2,3,4,5,6,7,8,9"}, tokenizer.TrainerConfig{VocabSize: 80})
	if err != nil {
		t.Fatalf("TrainBPE error: %v", err)
	}
	sampler, err := datasets.NewChunkSampler(datasets.Config{DataPath: tmp, BlockSize: 16, ChunkSize: 400}, tok)
	if err != nil {
		t.Fatalf("NewChunkSampler error: %v", err)
	}
	sampler.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	model, err := NewModel(Config{VocabSize: tok.VocabSize(), Steps: 20, BatchSize: 4, Seed: 7})
	if err != nil {
		t.Fatalf("NewModel error: %v", err)
	}
	losses, err := model.TrainWithDataset(sampler)
	if err != nil {
		t.Fatalf("TrainWithDataset error: %v", err)
	}
	first, last := losses[0], losses[len(losses)-1]
	if math.IsNaN(last) || math.IsInf(last, 0) {
		t.Fatalf("non-finite loss %v", last)
	}
	if !(last < first) {
		t.Fatalf("expected loss to drop on sampled windows: first=%.4f last=%.4f", first, last)
	}
}
