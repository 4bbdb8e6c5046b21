package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/barrio-seguro-be/internal/assistant"
	"github.com/hongminglow/barrio-seguro-be/internal/auth"
	"github.com/hongminglow/barrio-seguro-be/internal/board"
	"github.com/hongminglow/barrio-seguro-be/internal/clients/identity"
	"github.com/hongminglow/barrio-seguro-be/internal/clients/ipinfo"
	"github.com/hongminglow/barrio-seguro-be/internal/config"
	"github.com/hongminglow/barrio-seguro-be/internal/http/handlers"
	"github.com/hongminglow/barrio-seguro-be/internal/middleware"
	"github.com/hongminglow/barrio-seguro-be/internal/storage"
)

// Deps are the collaborators the routes are built from.
type Deps struct {
	Users     storage.UserStore
	Ledger    storage.MessageLedger
	Identity  identity.Verifier
	IP        ipinfo.Resolver
	Generator assistant.Generator
	Logger    *slog.Logger
}

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, deps Deps) *Server {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           NewRouter(cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{inner: httpServer}
}

// NewRouter builds the full route tree.
func NewRouter(cfg config.Config, deps Deps) http.Handler {
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	boardSvc := board.NewService(deps.Ledger, deps.Logger)

	health := handlers.NewHealthHandler(time.Now(), cfg.StoreBackend)
	users := handlers.NewAuthHandler(deps.Users, tokens, deps.Identity, deps.IP, deps.Logger)
	messages := handlers.NewBoardHandler(boardSvc, deps.Logger)
	assist := handlers.NewAssistantHandler(deps.Generator, boardSvc, deps.Logger)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logging(deps.Logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	health.Register(r)
	users.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(tokens, deps.Logger))
		users.RegisterProtected(r)
		messages.Register(r)
		assist.Register(r)
	})
	return r
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
