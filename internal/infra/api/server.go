package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-ai-stars/internal/infra/logging"
	"telegram-ai-stars/internal/usecase"
)

// Deps are the use cases behind the admin endpoints.
type Deps struct {
	Admin     usecase.AdminUseCase
	Stats     usecase.StatsUseCase
	Promos    usecase.PromoUseCase
	Templates usecase.TemplateUseCase
	Broadcast usecase.BroadcastUseCase
}

type Options struct {
	Port           int
	JWTSecret      string
	TokenTTL       time.Duration
	RequestTimeout time.Duration
	// Metrics serves /metrics. Defaults to promhttp.Handler().
	Metrics http.Handler
	Now     func() time.Time
}

// Server exposes liveness, Prometheus metrics and the JWT-guarded admin API.
type Server struct {
	deps   Deps
	opts   Options
	auth   *AuthManager
	log    *zerolog.Logger
	server *http.Server
}

func NewServer(opts Options, deps Deps, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}
	s := &Server{
		deps: deps,
		opts: opts,
		auth: NewAuthManager(opts.JWTSecret, opts.TokenTTL, opts.Now),
		log:  logging.Component(logger, "http"),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the router with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleLiveness)
	r.Get("/health", s.handleLiveness)
	r.Method(http.MethodGet, "/metrics", s.opts.Metrics)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/stats", s.handleStats)
			r.Get("/users/{id}", s.handleInspectUser)
			r.Patch("/users/{id}", s.handleEditUser)
			r.Get("/promos", s.handleListPromos)
			r.Post("/promos", s.handleCreatePromo)
			r.Patch("/promos/{code}", s.handleSetPromoActive)
			r.Delete("/promos/{code}", s.handleDeletePromo)
			r.Get("/templates", s.handleListTemplates)
			r.Put("/templates/{id}", s.handleSaveTemplate)
			r.Delete("/templates/{id}", s.handleDeleteTemplate)
			r.Post("/broadcast", s.handleBroadcast)
		})
	})

	return Chain(r,
		Recover(s.log),
		TraceID(),
		RequestLog(s.log),
		Timeout(s.opts.RequestTimeout),
	)
}

// Start blocks serving HTTP. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
