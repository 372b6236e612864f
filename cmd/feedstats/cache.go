package main

import (
	"encoding/gob"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/Noofbiz/tablefeed/datasets"
)

// cacheVersion is incremented when the on-disk draw format changes.
const cacheVersion = 1

// cacheFormat is the on-disk representation of drawn windows and how they
// were drawn. BlockSize and TokenizerPath guard against reuse with a
// different sampler.
type cacheFormat struct {
	Version       int
	BlockSize     int
	TokenizerPath string
	CreatedAt     int64
	Inputs        [][]int64
	Targets       [][]int64
	ChunkSizes    []int
	Columns       []int
	TotalColumns  []int
	Attempts      []int
}

// saveDraws writes d to path using encoding/gob. It performs an atomic write
// (create temp file then rename).
func saveDraws(path string, d *draws, cfg datasets.Config) error {
	if path == "" {
		return fmt.Errorf("empty cache path")
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	pc := cacheFormat{
		Version:       cacheVersion,
		BlockSize:     cfg.BlockSize,
		TokenizerPath: cfg.TokenizerPath,
		CreatedAt:     time.Now().Unix(),
		Inputs:        d.windows.inputs,
		Targets:       d.windows.targets,
		ChunkSizes:    d.chunkSizes,
		Columns:       d.columns,
		TotalColumns:  d.totalColumns,
		Attempts:      d.attempts,
	}
	if err := gob.NewEncoder(tmpFile).Encode(&pc); err != nil {
		return fmt.Errorf("encode cache to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		log.Printf("warning: sync temp cache file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp cache to target: %w", err)
	}
	return nil
}

// loadDraws reads draws saved by saveDraws and checks they were made with
// the same block size and tokenizer as cfg.
func loadDraws(path string, cfg datasets.Config) (*draws, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cache file %s: %w", path, err)
	}
	defer fh.Close()

	var pc cacheFormat
	if err := gob.NewDecoder(fh).Decode(&pc); err != nil {
		return nil, fmt.Errorf("decode cache %s: %w", path, err)
	}
	if pc.Version != cacheVersion {
		return nil, fmt.Errorf("cache version mismatch: cache=%d expected=%d", pc.Version, cacheVersion)
	}
	if pc.BlockSize != cfg.BlockSize {
		return nil, fmt.Errorf("cache block size mismatch: cache=%d expected=%d", pc.BlockSize, cfg.BlockSize)
	}
	if pc.TokenizerPath != cfg.TokenizerPath {
		return nil, fmt.Errorf("cache tokenizer mismatch: cache=%s expected=%s", pc.TokenizerPath, cfg.TokenizerPath)
	}
	n := len(pc.Inputs)
	if len(pc.Targets) != n || len(pc.ChunkSizes) != n || len(pc.Columns) != n ||
		len(pc.TotalColumns) != n || len(pc.Attempts) != n {
		return nil, fmt.Errorf("cache size mismatch: %d inputs with %d targets", n, len(pc.Targets))
	}
	return &draws{
		windows:      windowSet{inputs: pc.Inputs, targets: pc.Targets},
		chunkSizes:   pc.ChunkSizes,
		columns:      pc.Columns,
		totalColumns: pc.TotalColumns,
		attempts:     pc.Attempts,
	}, nil
}
