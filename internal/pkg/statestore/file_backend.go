package statestore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend keeps the document as a JSON file on local disk.
type FileBackend[D any] struct {
	path  string
	codec Codec[D]
}

// NewFileBackend creates a file backend for path.
func NewFileBackend[D any](path string, codec Codec[D]) *FileBackend[D] {
	return &FileBackend[D]{path: path, codec: codec}
}

func (b *FileBackend[D]) Name() string {
	return "file:" + b.path
}

func (b *FileBackend[D]) Load(ctx context.Context) (D, bool, error) {
	var zero D
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to read %s: %w", b.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return zero, false, nil
	}
	doc, err := b.codec.Decode(data)
	if err != nil {
		return zero, false, fmt.Errorf("failed to decode %s: %w", b.path, err)
	}
	return doc, true, nil
}

func (b *FileBackend[D]) Save(ctx context.Context, doc D) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := b.codec.Encode(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	return atomicWrite(b.path, data, 0o644)
}

// atomicWrite writes via a temporary file + rename so a crash mid-write never
// leaves a partially written document behind.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
