package ctv

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Open reads and decompresses a persisted stream in full.
func Open(path string) (*Decoder, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Decompress(blob)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// ReadFrom reads a compressed stream from r until EOF.
func ReadFrom(r io.Reader) (*Decoder, error) {
	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decompress(blob)
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers never observe a partial stream.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".ctv-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
