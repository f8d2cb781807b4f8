package capture

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Reader wraps a response body. The consumer reads exactly what the
// wrapped reader returns; every byte is also shadow-copied. The finalizer
// runs on the reading goroutine when the wrapped reader reports io.EOF.
type Reader struct {
	rc  io.ReadCloser
	fin Finalizer
	log zerolog.Logger

	mu   sync.Mutex
	buf  bytes.Buffer
	once sync.Once
}

// NewReader wraps rc.
func NewReader(rc io.ReadCloser, fin Finalizer, log zerolog.Logger) *Reader {
	return &Reader{rc: rc, fin: fin, log: log}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if n > 0 {
		r.mu.Lock()
		r.buf.Write(p[:n])
		r.mu.Unlock()
	}
	if errors.Is(err, io.EOF) {
		r.Finish()
	}
	return n, err
}

// Close closes the wrapped reader. Closing before EOF does not finalize.
func (r *Reader) Close() error {
	return r.rc.Close()
}

// Finish signals end of data. Only the first call has an effect, and
// nothing is emitted when no bytes were observed.
func (r *Reader) Finish() {
	r.once.Do(func() {
		r.mu.Lock()
		body := append([]byte(nil), r.buf.Bytes()...)
		r.buf.Reset()
		r.mu.Unlock()
		if len(body) == 0 {
			return
		}
		safely(r.log, "finalize", func() { r.fin.Finalize(body) })
	})
}
