package datasets

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
)

// Batcher groups sampler windows into [BatchSize, BlockSize] batches and
// implements gomlx's train.Dataset. An epoch ends with io.EOF once the
// sampler's virtual length worth of windows has been yielded.
type Batcher struct {
	BatchSize int

	// Workers bounds how many windows are extracted at once.
	Workers int

	sampler *ChunkSampler

	mu      sync.Mutex
	yielded int
}

var _ train.Dataset = (*Batcher)(nil)

// NewBatcher returns a Batcher over s. batchSize <= 0 uses the sampler's
// configured batch size.
func NewBatcher(s *ChunkSampler, batchSize int) *Batcher {
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}
	return &Batcher{
		BatchSize: batchSize,
		Workers:   runtime.GOMAXPROCS(0),
		sampler:   s,
	}
}

// Name implements train.Dataset.
func (b *Batcher) Name() string {
	return fmt.Sprintf("ChunkSampler [block %d, batch %d]", b.sampler.BlockSize, b.BatchSize)
}

// Reset implements train.Dataset. The sampler has no position to rewind,
// so this only starts a new epoch count.
func (b *Batcher) Reset() {
	b.mu.Lock()
	b.yielded = 0
	b.mu.Unlock()
}

// Yield implements train.Dataset: it returns one batch of inputs and one of
// targets, both int64 of shape [BatchSize, BlockSize], placed on the
// sampler's device.
func (b *Batcher) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	b.mu.Lock()
	if b.yielded >= b.sampler.Len() {
		b.mu.Unlock()
		return nil, nil, nil, io.EOF
	}
	b.yielded += b.BatchSize
	b.mu.Unlock()

	batch, err := b.Batch(context.Background(), b.BatchSize)
	if err != nil {
		return nil, nil, nil, err
	}
	in, tg, err := batch.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	in, tg, err = b.sampler.placeTensors(in, tg)
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, []*tensors.Tensor{in}, []*tensors.Tensor{tg}, nil
}

// Batch extracts n windows concurrently. The first extraction error cancels
// the rest and is returned.
func (b *Batcher) Batch(ctx context.Context, n int) (*WindowBatchFlat, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inputs := make([][]int64, n)
	targets := make([][]int64, n)
	sem := make(chan struct{}, max(b.Workers, 1))

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			smp, err := b.sampler.Sample()
			if err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			inputs[i], targets[i] = smp.Input, smp.Target
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return MakeWindowBatchFlat(inputs, targets)
}

// WindowBatchFlat stores a batch of windows in flat contiguous buffers
type WindowBatchFlat struct {
	Inputs    []int64
	Targets   []int64
	BatchSize int
	BlockSize int
}

// MakeWindowBatchFlat flattens a batch into contiguous buffers
func MakeWindowBatchFlat(inputs, targets [][]int64) (*WindowBatchFlat, error) {
	if len(inputs) != len(targets) {
		return nil, fmt.Errorf("inputs and targets batch sizes don't match: %d != %d", len(inputs), len(targets))
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	batchSize := len(inputs)
	blockSize := len(inputs[0])

	flatInputs := make([]int64, batchSize*blockSize)
	flatTargets := make([]int64, batchSize*blockSize)

	for i := range batchSize {
		if len(inputs[i]) != blockSize || len(targets[i]) != blockSize {
			return nil, fmt.Errorf("inconsistent window length at example %d: expected %d, got %d and %d",
				i, blockSize, len(inputs[i]), len(targets[i]))
		}
		copy(flatInputs[i*blockSize:], inputs[i])
		copy(flatTargets[i*blockSize:], targets[i])
	}

	return &WindowBatchFlat{
		Inputs:    flatInputs,
		Targets:   flatTargets,
		BatchSize: batchSize,
		BlockSize: blockSize,
	}, nil
}

// Window returns the input and target of example i.
func (b *WindowBatchFlat) Window(i int) (input, target []int64) {
	lo, hi := i*b.BlockSize, (i+1)*b.BlockSize
	return b.Inputs[lo:hi], b.Targets[lo:hi]
}

// ToGomlxTensors converts WindowBatchFlat to gomlx tensors of shape
// [BatchSize, BlockSize].
func (b *WindowBatchFlat) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	if b.BatchSize == 0 || b.BlockSize == 0 {
		return nil, nil, fmt.Errorf("empty batch")
	}
	inT := tensors.FromFlatDataAndDimensions(b.Inputs, b.BatchSize, b.BlockSize)
	tgT := tensors.FromFlatDataAndDimensions(b.Targets, b.BatchSize, b.BlockSize)
	return inT, tgT, nil
}
