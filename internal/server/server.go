package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
	Commit  string
}

// Config is fixed at startup and never changes afterwards.
type Config struct {
	Addr           string // e.g. ":8080"
	OpsAddr        string // probes, metrics and event feed; empty disables
	Root           string
	UploadDir      string
	IndexFile      string
	MaxUploadBytes int64
	RateLimit      int  // requests per minute per client IP; 0 disables
	TrustProxy     bool // take the client IP from X-Forwarded-For / X-Real-IP
	Build          BuildInfo

	// Optional collaborators.
	DB          *sql.DB // audit trail
	ObjectStore *minio.Client
	Bucket      string
}

type Server struct {
	cfg      Config
	resolver *Resolver
	fs       fileSystem
	metrics  *Metrics
	audit    *Auditor
	mirror   *Mirror
	events   *EventHub
	started  time.Time

	stop       context.CancelFunc
	httpServer *http.Server
	opsServer  *http.Server
}

// New validates the directory layout, creates the upload folder if needed
// and wires the handlers. Background workers start here.
func New(cfg Config) (*Server, error) {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	resolver, err := NewResolver(cfg.Root, cfg.UploadDir, cfg.IndexFile)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(resolver.UploadPath(), 0o755); err != nil {
		return nil, fmt.Errorf("create upload folder: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	metrics := NewMetrics()
	s := &Server{
		cfg:      cfg,
		resolver: resolver,
		fs:       osFileSystem{},
		metrics:  metrics,
		audit:    NewAuditor(cfg.DB),
		mirror:   NewMirror(cfg.ObjectStore, cfg.Bucket, metrics),
		events:   NewEventHub(),
		started:  time.Now(),
		stop:     cancel,
	}

	var handler http.Handler = s.fileHandler()
	if cfg.RateLimit > 0 {
		handler = newRateLimiter(ctx, cfg.RateLimit, time.Minute, cfg.TrustProxy).middleware(handler)
	}
	handler = securityHeadersMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.OpsAddr != "" {
		s.opsServer = &http.Server{
			Addr:              cfg.OpsAddr,
			Handler:           s.opsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return s, nil
}

// Handler returns the file-store handler with its middleware chain.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) opsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/ready", s.HandleReady)
	mux.HandleFunc("/live", s.HandleLive)
	mux.Handle("/metrics", s.metricsHandler())
	mux.Handle("/events", s.events)
	return mux
}

// Metrics exposes the server's counters.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Start serves the file store and, when configured, the ops listener. It
// blocks until the file listener stops.
func (s *Server) Start() error {
	if s.opsServer != nil {
		ln, err := net.Listen("tcp", s.opsServer.Addr)
		if err != nil {
			return fmt.Errorf("ops listener: %w", err)
		}
		go func() {
			if err := s.opsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Error("ops listener stopped", map[string]any{"addr": s.opsServer.Addr}, err)
			}
		}()
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

// Shutdown drains in-flight requests, then flushes the audit and mirror
// queues and disconnects feed subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.opsServer != nil {
		s.events.Close()
		if opsErr := s.opsServer.Shutdown(ctx); err == nil {
			err = opsErr
		}
	}
	s.Close()
	return err
}

// Close stops background workers without touching listeners. Tests that
// only use Handler call it directly.
func (s *Server) Close() {
	s.stop()
	s.events.Close()
	s.audit.Close()
	s.mirror.Close()
}
