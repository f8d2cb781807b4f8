package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/tapwire/internal/model"
)

// APIKeyHeader carries the collector API key.
const APIKeyHeader = "X-TAPWIRE-API-KEY"

// DefaultTimeout bounds one export request.
const DefaultTimeout = 5 * time.Second

// maxErrorBody caps how much of a rejected response is logged.
const maxErrorBody = 64 << 10

// ErrShutdown is returned by Export after Shutdown.
var ErrShutdown = errors.New("exporter is shut down")

// HTTPConfig configures the HTTP exporter.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Headers  map[string]string
	Timeout  time.Duration
}

// HTTP posts batches to the collector over one keep-alive client. It never
// retries.
type HTTP struct {
	endpoint string
	headers  http.Header
	client   *http.Client
	log      zerolog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewHTTP returns an HTTP exporter for cfg.
func NewHTTP(cfg HTTPConfig, log zerolog.Logger) *HTTP {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		h.Set(k, v)
	}
	if cfg.APIKey != "" {
		h.Set(APIKeyHeader, cfg.APIKey)
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 4

	return &HTTP{
		endpoint: cfg.Endpoint,
		headers:  h,
		client:   &http.Client{Timeout: timeout, Transport: tr},
		log:      log,
	}
}

// Export posts spans as one request. Any non-2xx status or transport error
// fails the batch.
func (e *HTTP) Export(ctx context.Context, spans []*model.Span) error {
	if e.closed.Load() {
		return ErrShutdown
	}
	if len(spans) == 0 {
		return nil
	}

	body, err := Encode(spans)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = e.headers.Clone()

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Error().Err(err).Str("endpoint", e.endpoint).Msg("error exporting spans")
		return fmt.Errorf("post spans: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		e.log.Debug().Int("spans", len(spans)).Str("endpoint", e.endpoint).Msg("exported spans")
		return nil
	}

	text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e.log.Error().Int("status", resp.StatusCode).Str("response", string(text)).Msg("failed to export spans")
	return fmt.Errorf("collector rejected batch: HTTP %d", resp.StatusCode)
}

// Shutdown releases idle connections. Only the first call has an effect.
func (e *HTTP) Shutdown(context.Context) error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.client.CloseIdleConnections()
	})
	return nil
}
