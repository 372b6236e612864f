package datasets

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yargevad/filepathx"
)

// FindSourceFiles lists the regular files in dir whose name ends with ext.
// With recursive set, subdirectories are searched too.
func FindSourceFiles(dir, ext string, recursive bool) ([]string, error) {
	var paths []string
	if recursive {
		matches, err := filepathx.Glob(filepath.Join(dir, "**", "*"+ext))
		if err != nil {
			return nil, fmt.Errorf("failed to glob %s: %w", dir, err)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				paths = append(paths, m)
			}
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ext) {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no %s files in %s", ErrNoSourceFiles, ext, dir)
	}
	sort.Strings(paths)
	return paths, nil
}

// readRunes reads up to n characters from r. Invalid UTF-8 (e.g. when the
// read starts inside a multi-byte sequence) decodes to U+FFFD.
func readRunes(r *bufio.Reader, n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	for range n {
		c, _, err := r.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		sb.WriteRune(c)
	}
	return sb.String(), nil
}

// readHeader reads and parses the first line of a source file. It returns
// the column names and the byte length of the line, newline included.
func readHeader(r *bufio.Reader) ([]string, int64, error) {
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, 0, err
	}
	if strings.TrimSpace(line) == "" {
		return nil, 0, fmt.Errorf("%w: empty header line", ErrTableParse)
	}
	reader := csv.NewReader(strings.NewReader(line))
	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: header: %w", ErrTableParse, err)
	}
	return header, int64(len(line)), nil
}
