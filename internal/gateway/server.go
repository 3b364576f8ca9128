// Package gateway is the HTTP surface of the temporary chat backend: a
// net/http mux with method-qualified routes, a small middleware chain and a
// WebSocket endpoint for streamed replies.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ephemerchat/ephemer/internal/chat"
	"github.com/ephemerchat/ephemer/internal/config"
	"github.com/ephemerchat/ephemer/internal/logging"
	"github.com/ephemerchat/ephemer/internal/quota"
	"github.com/ephemerchat/ephemer/internal/store"
)

// Server is the ephemer HTTP + WebSocket server.
type Server struct {
	cfg     config.Config
	service *chat.Service
	users   store.UserStore
	usage   *quota.Accountant
	log     *logging.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates a gateway server over the chat service and user store.
func New(cfg config.Config, service *chat.Service, users store.UserStore, usage *quota.Accountant, log *logging.Logger) *Server {
	return &Server{
		cfg:     cfg,
		service: service,
		users:   users,
		usage:   usage,
		log:     log.Sub("gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Server.AllowedOrigins),
		},
	}
}

// checkWebSocketOrigin validates WebSocket Origin headers. Requests without
// an Origin (non-browser clients) are always allowed; browser requests must
// match a configured origin.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.ServerConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Handler returns the full HTTP handler with routes and middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.Server.AllowedOrigins)
}

// Start begins listening for connections. It blocks until the context is
// cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Server)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // provider calls have no bounded duration
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Server.Bind).
		Msg("server starting")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}
