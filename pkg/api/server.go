// Package api serves the leadsplit REST API: operator auth, agent
// management, file upload and distribution history.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/leadsplit/pkg/auth"
	"github.com/odvcencio/leadsplit/pkg/config"
	"github.com/odvcencio/leadsplit/pkg/dispatch"
	"github.com/odvcencio/leadsplit/pkg/logging"
	"github.com/odvcencio/leadsplit/pkg/storage"
)

// Store is the persistence the API reads and writes.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, email, passwordHash, role string) (*storage.User, error)
	GetUserByEmail(ctx context.Context, email string) (*storage.User, error)

	CreateAgent(ctx context.Context, in storage.NewAgent) (*storage.Agent, error)
	GetAgent(ctx context.Context, id string) (*storage.Agent, error)
	ListAgents(ctx context.Context) ([]storage.Agent, error)
	UpdateAgent(ctx context.Context, id string, upd storage.AgentUpdate) (*storage.Agent, error)
	DeleteAgent(ctx context.Context, id string) error

	ListDistributions(ctx context.Context) ([]storage.Distribution, error)
	GetDistribution(ctx context.Context, id string) (*storage.Distribution, error)
}

// Uploader turns an uploaded file into a saved distribution.
type Uploader interface {
	Upload(ctx context.Context, up dispatch.Upload) (*storage.Distribution, error)
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Config is the leadsplit configuration. Nil uses defaults.
	Config *config.Config

	Store    Store
	Tokens   *auth.TokenManager
	Uploader Uploader

	// Logger defaults to a no-op logger.
	Logger *logging.Logger
}

// Server is the leadsplit HTTP API.
type Server struct {
	store          Store
	tokens         *auth.TokenManager
	uploader       Uploader
	logger         *logging.Logger
	validators     validators
	loginLimiter   *keyedLimiter
	allowedOrigins []string
	maxUploadBytes int64
	router         chi.Router
	httpServer     *http.Server
}

// NewServer wires the routes. It fails only if the embedded payload
// schemas do not compile.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil || cfg.Tokens == nil || cfg.Uploader == nil {
		return nil, errors.New("api: store, tokens and uploader are required")
	}
	c := cfg.Config
	if c == nil {
		c = config.DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	schemas, err := compileSchemas()
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	s := &Server{
		store:          cfg.Store,
		tokens:         cfg.Tokens,
		uploader:       cfg.Uploader,
		logger:         logger,
		validators:     schemas,
		loginLimiter:   newKeyedLimiter(c.Auth.LoginRatePerMinute, c.Auth.LoginBurst),
		allowedOrigins: append([]string(nil), c.Server.AllowedOrigins...),
		maxUploadBytes: c.Upload.MaxBytes,
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              c.Server.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       c.Server.ReadTimeout,
		WriteTimeout:      c.Server.WriteTimeout,
		IdleTimeout:       c.Server.IdleTimeout,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()
	router.Use(s.requestMiddleware)
	router.Use(s.securityHeadersMiddleware)
	router.Use(s.corsMiddleware)

	router.Get("/healthz", s.handleHealthz)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Post("/register", s.handleRegister)
			r.With(s.authMiddleware).Get("/me", s.handleMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/agents", func(r chi.Router) {
				r.Get("/", s.handleListAgents)
				r.Post("/", s.handleCreateAgent)
				r.Get("/{agentID}", s.handleGetAgent)
				r.Put("/{agentID}", s.handleUpdateAgent)
				r.Delete("/{agentID}", s.handleDeleteAgent)
			})

			r.Route("/upload", func(r chi.Router) {
				r.Post("/", s.handleUpload)
				r.Get("/distributions", s.handleListDistributions)
				r.Get("/distributions/{distributionID}", s.handleGetDistribution)
			})
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})
	return router
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("api listening", "address", l.Addr().String())
	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(l)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		logging.FromContext(r.Context(), s.logger).WithError(err).Warn("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
