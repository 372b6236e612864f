package datasets

import "errors"

// Error kinds returned (wrapped) by the sampler. Use errors.Is to classify.
var (
	// ErrNoSourceFiles: the data directory holds no file with the configured
	// extension.
	ErrNoSourceFiles = errors.New("no source files found")

	// ErrFileTooSmall: the file is shorter than the chunk budget, so there is
	// no offset to sample from.
	ErrFileTooSmall = errors.New("file smaller than chunk size")

	// ErrTableParse: the chunk is not a well-formed delimited table.
	ErrTableParse = errors.New("chunk is not a valid table")

	// ErrTokenizationTooShort: the chunk kept tokenizing to fewer than
	// BlockSize+1 tokens for MaxAttempts attempts.
	ErrTokenizationTooShort = errors.New("token window too short")

	// ErrRangeSamplingExhausted: the Zipf rejection loop found no value in
	// range within MaxZipfDraws draws.
	ErrRangeSamplingExhausted = errors.New("range sampling exhausted")
)
