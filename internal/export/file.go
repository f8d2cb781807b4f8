package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ppiankov/tapwire/internal/model"
)

// File appends one JSON payload line per batch. It is meant for offline
// inspection of what would have been sent.
type File struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// OpenFile opens (or creates) path for appending.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("export: create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("export: open file: %w", err)
	}
	return &File{path: path, file: f}, nil
}

// Path returns the file path.
func (f *File) Path() string { return f.path }

// Export writes spans as one line and syncs.
func (f *File) Export(_ context.Context, spans []*model.Span) error {
	if len(spans) == 0 {
		return nil
	}
	line, err := Encode(spans)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return ErrShutdown
	}
	if _, err := f.file.Write(line); err != nil {
		return fmt.Errorf("export: write: %w", err)
	}
	return f.file.Sync()
}

// Shutdown closes the file. Later calls are no-ops.
func (f *File) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// Multi fans a batch out to several exporters. It fails when any of them
// fails, after trying all.
type Multi []Exporter

// Export implements Exporter.
func (m Multi) Export(ctx context.Context, spans []*model.Span) error {
	var first error
	for _, e := range m {
		if err := e.Export(ctx, spans); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Shutdown implements Exporter.
func (m Multi) Shutdown(ctx context.Context) error {
	var first error
	for _, e := range m {
		if err := e.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
