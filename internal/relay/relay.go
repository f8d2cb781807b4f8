// Package relay is a reverse proxy that forwards traffic to one provider
// API and captures every call through the pipeline.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/tapwire/internal/capture"
	"github.com/ppiankov/tapwire/internal/tracer"
)

// Config holds relay configuration.
type Config struct {
	Addr     string            // listen address, e.g. ":8787"
	Upstream string            // e.g. "https://api.anthropic.com"
	Provider string            // provider key; inferred from the upstream host when empty
	Tags     map[string]string // attached to every captured span
}

// Server forwards requests to the upstream and captures responses.
type Server struct {
	cfg      Config
	upstream *url.URL
	provider string
	proxy    *httputil.ReverseProxy
	srv      *http.Server
	log      zerolog.Logger
}

// NewServer creates a relay emitting capture events to sink.
func NewServer(cfg Config, sink capture.EventSink, log zerolog.Logger) (*Server, error) {
	upstream, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q: scheme and host are required", cfg.Upstream)
	}

	provider := cfg.Provider
	if provider == "" {
		var ok bool
		if provider, ok = capture.LookupHost(upstream.Host); !ok {
			return nil, fmt.Errorf("no known provider for host %q; set the provider explicitly", upstream.Host)
		}
	}

	s := &Server{
		cfg:      cfg,
		upstream: upstream,
		provider: provider,
		log:      log,
	}
	s.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.Out.Host = upstream.Host
		},
		Transport:     capture.NewTransport(nil, sink, log, capture.WithProvider(provider)),
		FlushInterval: -1,
		ErrorHandler:  s.upstreamError,
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Provider returns the provider key calls are attributed to.
func (s *Server) Provider() string { return s.provider }

// Start begins listening. Blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Str("upstream", s.upstream.String()).
		Str("provider", s.provider).Msg("relay listening")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeHTTP forwards r to the upstream.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(s.cfg.Tags) > 0 {
		ctx, err := tracer.WithTags(r.Context(), s.cfg.Tags)
		if err != nil {
			s.log.Warn().Err(err).Msg("relay tags ignored")
		} else {
			r = r.WithContext(ctx)
		}
	}
	s.proxy.ServeHTTP(w, r)
}

func (s *Server) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("upstream error")
	http.Error(w, fmt.Sprintf("upstream error: %v", err), http.StatusBadGateway)
}
