package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// ChunkSource yields body chunks until it returns io.EOF. Next blocks until
// a chunk is available or ctx is done.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// Stream is the chunk-oriented counterpart of Reader.
type Stream struct {
	src ChunkSource
	fin Finalizer
	log zerolog.Logger

	mu   sync.Mutex
	buf  bytes.Buffer
	once sync.Once
	err  error
}

// NewStream wraps src.
func NewStream(src ChunkSource, fin Finalizer, log zerolog.Logger) *Stream {
	return &Stream{src: src, fin: fin, log: log}
}

// Next returns the next chunk from the source unchanged. When the source
// reports io.EOF the finalizer runs before Next returns.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	chunk, err := s.src.Next(ctx)
	if len(chunk) > 0 {
		s.mu.Lock()
		s.buf.Write(chunk)
		s.mu.Unlock()
	}
	if errors.Is(err, io.EOF) {
		s.Finish()
	}
	return chunk, err
}

// Chunks drains the stream on a new goroutine and delivers each chunk on
// the returned channel, which is closed at end of data, on error, or when
// ctx is done. Err reports the terminal error afterwards.
func (s *Stream) Chunks(ctx context.Context) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			chunk, err := s.Next(ctx)
			if len(chunk) > 0 {
				select {
				case out <- chunk:
				case <-ctx.Done():
					s.setErr(ctx.Err())
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					s.setErr(err)
				}
				return
			}
		}
	}()
	return out
}

// Err returns the first non-EOF error seen by Chunks.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Finish signals end of data; see Reader.Finish.
func (s *Stream) Finish() {
	s.once.Do(func() {
		s.mu.Lock()
		body := append([]byte(nil), s.buf.Bytes()...)
		s.buf.Reset()
		s.mu.Unlock()
		if len(body) == 0 {
			return
		}
		safely(s.log, "finalize", func() { s.fin.Finalize(body) })
	})
}
