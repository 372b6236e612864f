package datasets

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestFindSourceFiles(t *testing.T) {
	tmp := t.TempDir()
	sub := filepath.Join(tmp, "nested", "deeper")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeCSV(t, filepath.Join(tmp, "b.rhead"), "id,x", nil)
	writeCSV(t, filepath.Join(tmp, "a.rhead"), "id,x", nil)
	writeCSV(t, filepath.Join(tmp, "notes.txt"), "id,x", nil)
	writeCSV(t, filepath.Join(sub, "c.rhead"), "id,x", nil)

	got, err := FindSourceFiles(tmp, ".rhead", false)
	if err != nil {
		t.Fatalf("FindSourceFiles failed: %v", err)
	}
	want := []string{filepath.Join(tmp, "a.rhead"), filepath.Join(tmp, "b.rhead")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("flat: got %v want %v", got, want)
	}

	got, err = FindSourceFiles(tmp, ".rhead", true)
	if err != nil {
		t.Fatalf("FindSourceFiles (recursive) failed: %v", err)
	}
	want = append(want, filepath.Join(sub, "c.rhead"))
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("recursive: got %v want %v", got, want)
	}

	if _, err := FindSourceFiles(tmp, ".parquet", true); !errors.Is(err, ErrNoSourceFiles) {
		t.Fatalf("expected ErrNoSourceFiles, got %v", err)
	}
	if _, err := FindSourceFiles(filepath.Join(tmp, "missing"), ".rhead", false); err == nil {
		t.Fatalf("expected an error for a missing directory")
	}
}

func TestReadRunes(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("héllo wörld"))
	got, err := readRunes(r, 7)
	if err != nil {
		t.Fatalf("readRunes failed: %v", err)
	}
	if got != "héllo w" {
		t.Fatalf("got %q", got)
	}
	// Short input stops at EOF.
	got, _ = readRunes(r, 100)
	if got != "örld" {
		t.Fatalf("got %q", got)
	}
	// A read starting inside a multi-byte sequence yields U+FFFD.
	got, _ = readRunes(bufio.NewReader(strings.NewReader("é,1"[1:])), 3)
	if got != "�,1" {
		t.Fatalf("got %q", got)
	}
}

func TestReadHeader(t *testing.T) {
	header, n, err := readHeader(bufio.NewReader(strings.NewReader("id,a,b\n1,2,3\n")))
	if err != nil {
		t.Fatalf("readHeader failed: %v", err)
	}
	if !reflect.DeepEqual(header, []string{"id", "a", "b"}) || n != 7 {
		t.Fatalf("got %v (%d bytes)", header, n)
	}
	if _, _, err := readHeader(bufio.NewReader(strings.NewReader("\n1,2\n"))); !errors.Is(err, ErrTableParse) {
		t.Fatalf("expected ErrTableParse for an empty header, got %v", err)
	}
}
