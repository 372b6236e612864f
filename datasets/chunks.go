package datasets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Noofbiz/tablefeed/tokenizer"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// ChunkSampler draws next-token training windows from delimited text files
// without loading them: each sample reads one random chunk of one random
// file, re-shapes it into a smaller table with a random subset of columns,
// tokenizes the result and cuts a BlockSize+1 token window from it.
//
// The chunk budget is shared by all requests. Every request shrinks it by
// ChunkShrink; every chunk that tokenizes too short grows it by ChunkGrowth
// before the same file is retried. The sampler is safe for concurrent use.
//
// Sampling is with replacement and has no natural end: Len reports a fixed
// virtual length and Example ignores its index.
type ChunkSampler struct {
	// BlockSize is the length of every input and target sequence.
	BlockSize int

	// Device is where NextSample places its tensors.
	Device string

	cfg    Config
	files  []string
	tok    tokenizer.Tokenizer
	placer Placer

	chunkSize atomic.Int64
	rng       *lockedRand
	logger    *slog.Logger
}

// Sample is one extracted window together with how it was drawn.
type Sample struct {
	Path string

	// Offset is the byte offset the successful chunk was read from.
	Offset int64

	// ChunkSize is the character budget of the successful chunk.
	ChunkSize int

	// Attempts counts the chunks read, the successful one included.
	Attempts int

	// Columns is the number of data columns kept out of TotalColumns.
	Columns      int
	TotalColumns int

	// Rows is the number of table rows parsed from the chunk.
	Rows int

	Input  []int64
	Target []int64
}

// Open loads the tokenizer named by cfg.TokenizerPath and returns a sampler
// over the source files in cfg.DataPath.
func Open(cfg Config) (*ChunkSampler, error) {
	cfg = cfg.WithDefaults()
	tok, err := tokenizer.Open(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	return NewChunkSampler(cfg, tok)
}

// NewChunkSampler returns a sampler over the source files in cfg.DataPath
// using tok for encoding.
func NewChunkSampler(cfg Config, tok tokenizer.Tokenizer) (*ChunkSampler, error) {
	if tok == nil {
		return nil, errors.New("tokenizer cannot be nil")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	files, err := FindSourceFiles(cfg.DataPath, cfg.Extension, cfg.Recursive)
	if err != nil {
		return nil, err
	}

	s := &ChunkSampler{
		BlockSize: cfg.BlockSize,
		Device:    cfg.Device,
		cfg:       cfg,
		files:     files,
		tok:       tok,
		rng:       newLockedRand(time.Now().UnixNano(), cfg.ZipfShape),
		logger:    slog.Default(),
	}
	if cfg.Device == DeviceCPU {
		s.placer = hostPlacer{}
	}
	s.chunkSize.Store(int64(cfg.ChunkSize))
	return s, nil
}

// SetLogger replaces the logger (slog.Default by default).
func (s *ChunkSampler) SetLogger(l *slog.Logger) {
	if s == nil || l == nil {
		return
	}
	s.logger = l
}

// SetPlacer sets the placer used for s.Device. It is required for any
// device other than "cpu".
func (s *ChunkSampler) SetPlacer(p Placer) {
	if s == nil {
		return
	}
	s.placer = p
}

// Files returns the discovered source files.
func (s *ChunkSampler) Files() []string {
	return append([]string(nil), s.files...)
}

// Config returns the effective configuration.
func (s *ChunkSampler) Config() Config {
	return s.cfg
}

// ChunkSize returns the current shared chunk budget.
func (s *ChunkSampler) ChunkSize() int {
	return int(s.chunkSize.Load())
}

// Encode tokenizes text.
func (s *ChunkSampler) Encode(text string) ([]int, error) {
	return s.tok.Encode(text)
}

// Decode converts ids back to text and removes every space. The tokenizer
// separates tokens with spaces on decode, and table text carries no
// meaningful spaces, so the result only matches the encoded text when that
// text had none.
func (s *ChunkSampler) Decode(ids []int) (string, error) {
	text, err := s.tok.Decode(ids)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(text, " ", ""), nil
}

// BiasedSmallInt returns a value in [0, limit) drawn from a Zipf law
// shifted to start at 0, rejecting draws outside the range. Most of the
// mass sits on the first few values whatever the limit is.
func (s *ChunkSampler) BiasedSmallInt(limit int) (int, error) {
	if limit < 1 {
		return 0, fmt.Errorf("%w: empty range [0, %d)", ErrRangeSamplingExhausted, limit)
	}
	for range s.cfg.MaxZipfDraws {
		if v := s.rng.zipfUint64(); v < uint64(limit) {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("%w: no draw below %d in %d draws", ErrRangeSamplingExhausted, limit, s.cfg.MaxZipfDraws)
}

// ExtractWindow reads a random chunk of path and returns an input window and
// its target, the same window shifted left by one token.
func (s *ChunkSampler) ExtractWindow(path string) (input, target []int64, err error) {
	smp, err := s.extract(path)
	if err != nil {
		return nil, nil, err
	}
	return smp.Input, smp.Target, nil
}

// Sample shrinks the shared chunk budget, picks a source file uniformly and
// extracts one window from it.
func (s *ChunkSampler) Sample() (*Sample, error) {
	if s.cfg.ChunkShrink > 0 {
		s.chunkSize.Add(-int64(s.cfg.ChunkShrink))
	}
	path := s.files[s.rng.intn(len(s.files))]
	return s.extract(path)
}

// NextSample draws one window and returns it as two int64 tensors of shape
// [BlockSize], placed on s.Device.
func (s *ChunkSampler) NextSample() (input, target *tensors.Tensor, err error) {
	smp, err := s.Sample()
	if err != nil {
		return nil, nil, err
	}
	return s.place(smp.Input, smp.Target)
}

// Len returns the virtual number of examples. Sampling is with replacement,
// so this only bounds how many times a consumer iterating by index asks.
func (s *ChunkSampler) Len() int {
	return s.cfg.VirtualLength
}

// Example ignores idx and returns a fresh random window: two calls with the
// same index return different windows.
func (s *ChunkSampler) Example(idx int) (input, target []int64, err error) {
	smp, err := s.Sample()
	if err != nil {
		return nil, nil, err
	}
	return smp.Input, smp.Target, nil
}

func (s *ChunkSampler) place(input, target []int64) (*tensors.Tensor, *tensors.Tensor, error) {
	return s.placeTensors(
		tensors.FromFlatDataAndDimensions(input, len(input)),
		tensors.FromFlatDataAndDimensions(target, len(target)))
}

func (s *ChunkSampler) placeTensors(input, target *tensors.Tensor) (*tensors.Tensor, *tensors.Tensor, error) {
	if s.placer == nil {
		return nil, nil, fmt.Errorf("no placer for device %q", s.Device)
	}
	in, err := s.placer.Place(input)
	if err != nil {
		return nil, nil, fmt.Errorf("place input on %s: %w", s.Device, err)
	}
	tg, err := s.placer.Place(target)
	if err != nil {
		return nil, nil, fmt.Errorf("place target on %s: %w", s.Device, err)
	}
	return in, tg, nil
}

// extract reads, reshapes and tokenizes chunks of one file, growing the
// chunk budget until the tokens cover a whole window.
func (s *ChunkSampler) extract(path string) (*Sample, error) {
	need := s.BlockSize + 1
	budget := max(s.ChunkSize(), 1)
	for attempt := 1; ; attempt++ {
		text, offset, header, err := s.readRandomChunk(path, budget)
		if err != nil {
			return nil, err
		}
		smp := &Sample{Path: path, Offset: offset, ChunkSize: budget, Attempts: attempt}
		serialized, err := s.reshape(text, header, smp)
		if err != nil {
			return nil, fmt.Errorf("%s at offset %d: %w", path, offset, err)
		}
		ids, err := s.Encode(serialized)
		if err != nil {
			return nil, fmt.Errorf("failed to encode chunk of %s: %w", path, err)
		}
		if len(ids) >= need {
			smp.Input, smp.Target = splitWindow(ids, s.BlockSize)
			return smp, nil
		}
		if attempt >= s.cfg.MaxAttempts {
			return nil, fmt.Errorf("%w: %s gave %d of %d tokens after %d attempts (chunk size %d)",
				ErrTokenizationTooShort, path, len(ids), need, attempt, budget)
		}
		budget += s.cfg.ChunkGrowth
		s.chunkSize.Add(int64(s.cfg.ChunkGrowth))
		s.logger.Debug("chunk too short, growing chunk size",
			slog.String("file", path),
			slog.Int("tokens", len(ids)),
			slog.Int("need", need),
			slog.Int("chunk_size", budget))
	}
}

// readRandomChunk reads budget characters from a uniformly random offset of
// path. A chunk that does not start the file is trimmed up to and including
// its first newline; a chunk without a newline is kept whole. With
// FileHeader set the file's header line is returned and never sampled.
func (s *ChunkSampler) readRandomChunk(path string, budget int) (string, int64, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, nil, err
	}

	var header []string
	var start int64
	if s.cfg.FileHeader {
		if header, start, err = readHeader(bufio.NewReader(f)); err != nil {
			return "", 0, nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	span := info.Size() - start - int64(budget)
	if span < 0 {
		return "", 0, nil, fmt.Errorf("%w: %s has %d bytes to sample, chunk size is %d",
			ErrFileTooSmall, path, info.Size()-start, budget)
	}
	offset := start + s.rng.int63n(span+1)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", 0, nil, err
	}
	text, err := readRunes(bufio.NewReader(f), budget)
	if err != nil {
		return "", 0, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if offset != start {
		if i := strings.IndexByte(text, '\n'); i != -1 {
			text = text[i+1:]
		}
	}
	return text, offset, header, nil
}

// reshape parses a chunk, drops the label column, keeps a Zipf-sized random
// subset of the remaining columns and serializes the result.
func (s *ChunkSampler) reshape(text string, header []string, smp *Sample) (string, error) {
	t, err := parseTable(text, header)
	if err != nil {
		return "", err
	}
	if err := t.dropColumn(s.cfg.LabelColumn); err != nil {
		return "", err
	}
	n := t.numColumns()
	if n == 0 {
		return "", fmt.Errorf("%w: no data columns", ErrTableParse)
	}
	k, err := s.BiasedSmallInt(n)
	if err != nil {
		return "", err
	}
	k++
	cols := s.rng.sample(n, k)

	smp.Columns, smp.TotalColumns, smp.Rows = k, n, len(t.rows)
	return t.project(cols).marshal()
}

// splitWindow returns ids[:blockSize] and ids[1:blockSize+1] as int64.
func splitWindow(ids []int, blockSize int) (input, target []int64) {
	input = make([]int64, blockSize)
	target = make([]int64, blockSize)
	for i := range blockSize {
		input[i] = int64(ids[i])
		target[i] = int64(ids[i+1])
	}
	return input, target
}
