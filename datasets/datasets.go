// Package datasets feeds next-token training windows drawn from large
// delimited text files.
//
// The files are never loaded whole. Each example is built from one random
// chunk of one random file:
//
//   - the chunk is read from a random byte offset and trimmed to start on a
//     row boundary
//   - it is parsed as a table, the row label column is dropped and a random
//     subset of columns is kept (small subsets are much more likely than
//     large ones)
//   - the reduced table is written back out as text, tokenized, and a
//     BlockSize+1 token window is cut from the start of the tokens
//
// ChunkSampler implements the per-example path and the Dataset interface
// below. Batcher groups examples into gomlx tensors and implements gomlx's
// train.Dataset.
package datasets

// Dataset is a map-style source of training windows. Implementations that
// sample with replacement may ignore i.
type Dataset interface {
	Len() int
	Example(i int) (input, target []int64, err error)
}

var _ Dataset = (*ChunkSampler)(nil)
