// Package simple is a bigram baseline for token windows: it learns a table
// of next-token logits indexed by the current token. It is small enough to
// train on a CPU in a few seconds and gives a loss floor to compare larger
// models against.
package simple

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config holds configurable hyperparameters for the bigram model and training.
type Config struct {
	// VocabSize is the number of token ids. Required.
	VocabSize int

	// LearningRate used by SGD (default if 0 will be set by NewModel to 0.5).
	LearningRate float64

	// Steps is the number of mini-batch updates (default 100).
	Steps int

	// BatchSize is the number of windows per update (default 8).
	BatchSize int

	// Seed controls RNG for weight init and example indices. If zero, time-based seed is used.
	Seed int64
}

// Dataset is the minimal interface this package requires from a window
// source. datasets.ChunkSampler satisfies it.
type Dataset interface {
	Len() int
	Example(i int) (input, target []int64, err error)
}

// Model is a bigram language model: logits[a][b] scores token b following
// token a.
type Model struct {
	Config Config

	logits [][]float32

	// rng used for weight initialization and example indices
	rng *rand.Rand
}

// NewModel creates a new Model instance with the provided configuration.
// It initializes logits with small random values and is ready to train.
func NewModel(cfg Config) (*Model, error) {
	if cfg.VocabSize <= 0 {
		return nil, fmt.Errorf("vocab size must be > 0, got %d", cfg.VocabSize)
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.5
	}
	if cfg.Steps == 0 {
		cfg.Steps = 100
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 8
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	m := &Model{
		Config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
	m.logits = make([][]float32, cfg.VocabSize)
	for a := range m.logits {
		row := make([]float32, cfg.VocabSize)
		for b := range row {
			row[b] = (m.rng.Float32()*2 - 1) * 0.01
		}
		m.logits[a] = row
	}
	return m, nil
}

// softmax returns the next-token distribution after token a.
func (m *Model) softmax(a int) []float64 {
	row := m.logits[a]
	maxL := row[0]
	for _, l := range row[1:] {
		maxL = max(maxL, l)
	}
	p := make([]float64, len(row))
	var sum float64
	for b, l := range row {
		p[b] = math.Exp(float64(l - maxL))
		sum += p[b]
	}
	for b := range p {
		p[b] /= sum
	}
	return p
}

func (m *Model) checkToken(id int64) error {
	if id < 0 || id >= int64(m.Config.VocabSize) {
		return fmt.Errorf("token %d outside vocabulary of %d", id, m.Config.VocabSize)
	}
	return nil
}

// Probs returns the model's next-token distribution after token a.
func (m *Model) Probs(a int64) ([]float64, error) {
	if err := m.checkToken(a); err != nil {
		return nil, err
	}
	return m.softmax(int(a)), nil
}

// PredictNext returns the most likely token after a.
func (m *Model) PredictNext(a int64) (int64, error) {
	p, err := m.Probs(a)
	if err != nil {
		return 0, err
	}
	best := 0
	for b := range p {
		if p[b] > p[best] {
			best = b
		}
	}
	return int64(best), nil
}

// CrossEntropy returns the mean negative log-likelihood of targets[i][j]
// following inputs[i][j], in nats.
func (m *Model) CrossEntropy(inputs, targets [][]int64) (float64, error) {
	if len(inputs) != len(targets) {
		return 0, fmt.Errorf("inputs and targets batch sizes don't match: %d != %d", len(inputs), len(targets))
	}
	var sum float64
	var n int
	for i := range inputs {
		if len(inputs[i]) != len(targets[i]) {
			return 0, fmt.Errorf("window %d: input and target lengths differ", i)
		}
		for j, a := range inputs[i] {
			b := targets[i][j]
			if err := m.checkToken(a); err != nil {
				return 0, err
			}
			if err := m.checkToken(b); err != nil {
				return 0, err
			}
			sum -= math.Log(m.softmax(int(a))[b])
			n++
		}
	}
	if n == 0 {
		return 0, errors.New("no tokens to score")
	}
	return sum / float64(n), nil
}

// TrainWithDataset runs Config.Steps mini-batch SGD updates on softmax
// cross-entropy. Each batch draws Config.BatchSize examples at random
// indices. The loss of every batch, measured before its update, is
// returned.
func (m *Model) TrainWithDataset(ds Dataset) ([]float64, error) {
	if ds == nil {
		return nil, errors.New("dataset is nil")
	}
	n := ds.Len()
	if n == 0 {
		return nil, errors.New("dataset has no examples")
	}
	lr := float32(m.Config.LearningRate)
	losses := make([]float64, 0, m.Config.Steps)

	for range m.Config.Steps {
		inputs := make([][]int64, m.Config.BatchSize)
		targets := make([][]int64, m.Config.BatchSize)
		for i := range inputs {
			in, tg, err := ds.Example(m.rng.Intn(n))
			if err != nil {
				return losses, err
			}
			inputs[i], targets[i] = in, tg
		}
		loss, err := m.CrossEntropy(inputs, targets)
		if err != nil {
			return losses, err
		}
		losses = append(losses, loss)

		// Accumulate gradients per row, then apply the averaged update.
		grads := map[int64][]float64{}
		var pairs int
		for i := range inputs {
			for j, a := range inputs[i] {
				g, ok := grads[a]
				if !ok {
					g = make([]float64, m.Config.VocabSize)
					grads[a] = g
				}
				for b, p := range m.softmax(int(a)) {
					g[b] += p
				}
				g[targets[i][j]]--
				pairs++
			}
		}
		inv := 1 / float64(pairs)
		for a, g := range grads {
			row := m.logits[a]
			for b := range row {
				row[b] -= lr * float32(g[b]*inv)
			}
		}
	}
	return losses, nil
}
