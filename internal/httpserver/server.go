package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"sampleapp/backend/internal/config"
	"sampleapp/backend/internal/logging"
	authusecase "sampleapp/backend/internal/usecase/auth"
	pictureusecase "sampleapp/backend/internal/usecase/picture"
	userusecase "sampleapp/backend/internal/usecase/user"
)

// Server wraps the HTTP server lifecycle.
type Server struct {
	httpServer     *http.Server
	router         *http.ServeMux
	authService    *authusecase.Service
	userService    *userusecase.Service
	pictureService *pictureusecase.Service
	logger         logging.Logger
	cookies        cookieSettings
	maxUploadBytes int64
	addr           string
}

// NewServer constructs a new Server with configured dependencies.
func NewServer(
	cfg config.Config,
	logger logging.Logger,
	authService *authusecase.Service,
	userService *userusecase.Service,
	pictureService *pictureusecase.Service,
) *Server {
	mux := http.NewServeMux()
	addr := cfg.HTTPPort
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	handler := withRequestID(withLogging(withCORS(mux, cfg.AllowedOrigins), logger))

	srv := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  time.Duration(cfg.ReadTimeoutSec) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
			IdleTimeout:  time.Duration(cfg.IdleTimeoutSec) * time.Second,
		},
		router:         mux,
		authService:    authService,
		userService:    userService,
		pictureService: pictureService,
		logger:         logger,
		cookies: cookieSettings{
			maxAge: cfg.Credentials.RememberTTL,
			secure: strings.HasPrefix(cfg.BaseURL, "https://"),
		},
		maxUploadBytes: cfg.Picture.MaxBytes,
		addr:           addr,
	}
	srv.registerRoutes()
	return srv
}

// Start bootstraps the HTTP server on the configured address.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying ServeMux so routes can be registered.
func (s *Server) Router() *http.ServeMux {
	return s.router
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured network address for the HTTP server.
func (s *Server) Addr() string {
	return s.addr
}
