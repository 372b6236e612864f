package datasets

import (
	"encoding/json"
	"fmt"
	"os"
)

// Defaults applied by Config.WithDefaults.
const (
	DefaultDataPath      = "tmp/nanoGPT/"
	DefaultExtension     = ".rhead"
	DefaultTokenizerPath = "../bpe_tokenizer.json"
	DefaultChunkSize     = 50000
	DefaultChunkGrowth   = 1000
	DefaultChunkShrink   = 1
	DefaultMaxAttempts   = 1000
	DefaultZipfShape     = 1.00001
	DefaultMaxZipfDraws  = 100000
	DefaultVirtualLength = 1000000
	DefaultBatchSize     = 32
)

// Config holds the sampler settings. Zero values are replaced with the
// defaults above, so a Config only needs the fields it changes.
type Config struct {
	// DataPath is the directory holding the source files.
	DataPath string `json:"data_path"`

	// Extension selects source files by name suffix, e.g. ".rhead".
	Extension string `json:"extension"`

	// Recursive also searches subdirectories of DataPath.
	Recursive bool `json:"recursive"`

	// TokenizerPath is a tokenizer.json file, or "tiktoken:<encoding>".
	TokenizerPath string `json:"tokenizer_path"`

	// BlockSize is the length of the input and target sequences. Required.
	BlockSize int `json:"block_size"`

	// ChunkSize is the initial chunk budget in characters.
	ChunkSize int `json:"chunk_size"`

	// ChunkGrowth is added to the shared chunk budget whenever a chunk
	// tokenizes to fewer than BlockSize+1 tokens.
	ChunkGrowth int `json:"chunk_growth"`

	// ChunkShrink is subtracted from the shared chunk budget on every sample
	// request. Any negative value disables the shrink.
	ChunkShrink int `json:"chunk_shrink"`

	// MaxAttempts bounds the too-short retries of a single extraction.
	MaxAttempts int `json:"max_attempts"`

	// ZipfShape is the exponent of the subset-size distribution. Must be > 1.
	ZipfShape float64 `json:"zipf_shape"`

	// MaxZipfDraws bounds the rejection loop of BiasedSmallInt.
	MaxZipfDraws int `json:"max_zipf_draws"`

	// LabelColumn is the position of the row label column dropped from every
	// chunk. -1 keeps all columns.
	LabelColumn int `json:"label_column"`

	// FileHeader takes column names from the first line of the source file
	// instead of from the first line of each chunk.
	FileHeader bool `json:"file_header"`

	// Device names where output tensors are placed. "cpu" is built in;
	// other devices need a Placer (see ChunkSampler.SetPlacer).
	Device string `json:"device"`

	// VirtualLength is what Len reports.
	VirtualLength int `json:"virtual_length"`

	// BatchSize is the number of windows per Batcher.Yield.
	BatchSize int `json:"batch_size"`
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

// WithDefaults returns c with its zero fields replaced by the defaults.
func (c Config) WithDefaults() Config {
	if c.DataPath == "" {
		c.DataPath = DefaultDataPath
	}
	if c.Extension == "" {
		c.Extension = DefaultExtension
	}
	if c.TokenizerPath == "" {
		c.TokenizerPath = DefaultTokenizerPath
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkGrowth == 0 {
		c.ChunkGrowth = DefaultChunkGrowth
	}
	if c.ChunkShrink == 0 {
		c.ChunkShrink = DefaultChunkShrink
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.ZipfShape == 0 {
		c.ZipfShape = DefaultZipfShape
	}
	if c.MaxZipfDraws == 0 {
		c.MaxZipfDraws = DefaultMaxZipfDraws
	}
	if c.Device == "" {
		c.Device = DeviceCPU
	}
	if c.VirtualLength == 0 {
		c.VirtualLength = DefaultVirtualLength
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

func (c Config) validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("block size must be > 0, got %d", c.BlockSize)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be > 0, got %d", c.ChunkSize)
	}
	if c.ChunkGrowth <= 0 {
		return fmt.Errorf("chunk growth must be > 0, got %d", c.ChunkGrowth)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be > 0, got %d", c.MaxAttempts)
	}
	if c.ZipfShape <= 1 {
		return fmt.Errorf("zipf shape must be > 1, got %g", c.ZipfShape)
	}
	if c.MaxZipfDraws <= 0 {
		return fmt.Errorf("max zipf draws must be > 0, got %d", c.MaxZipfDraws)
	}
	if c.LabelColumn < -1 {
		return fmt.Errorf("label column must be >= -1, got %d", c.LabelColumn)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be > 0, got %d", c.BatchSize)
	}
	return nil
}

// LoadConfig reads a JSON config file. Missing fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c.WithDefaults(), nil
}
