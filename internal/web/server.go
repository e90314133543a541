// Package web serves the browser front end: dataset upload and preview,
// API key entry, and the analysis panels.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/pipeline"
)

// Config holds configuration for the web server.
type Config struct {
	Analyzer *pipeline.Analyzer
	// Addr is the listen address, e.g. ":8501".
	Addr          string
	SessionSecret string
	// MaxUploadBytes caps multipart uploads. Zero means 50 MiB.
	MaxUploadBytes int64
	PreviewRows    int
	LoadOptions    dataset.Options
	// Credential seeds the API key of new sessions.
	Credential string
	Provider   string
	Logger     *zap.Logger
}

// Server is the web UI.
type Server struct {
	cfg          Config
	sessionStore *sessions.CookieStore
	states       *stateStore
	log          *zap.Logger
}

// NewServer creates a server. An empty session secret gets a random one,
// which invalidates cookies on restart.
func NewServer(cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = 5
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8501"
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	secret := cfg.SessionSecret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
	}
	sessionStore := sessions.NewCookieStore([]byte(secret))
	sessionStore.MaxAge(int(sessionTTL / time.Second))
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	return &Server{
		cfg:          cfg,
		sessionStore: sessionStore,
		states:       newStateStore(sessionTTL, maxSessions),
		log:          log,
	}
}

// Handler returns the router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)
	r.Get("/", s.index)
	r.Get("/healthz", s.healthz)
	r.Post("/credential", s.credential)
	r.Post("/upload", s.upload)
	r.Post("/preview", s.preview)
	r.Post("/analyze", s.analyze)
	return r
}

// Serve listens on the configured address and blocks until ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln and shuts down gracefully when ctx ends.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.log.Info("starting web UI", zap.String("addr", ln.Addr().String()))
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Debug("shutting down web UI")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}
