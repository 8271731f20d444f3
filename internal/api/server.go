// Package api exposes the settlement engine over HTTP and WebSocket.
//
// The HTTP surface mirrors the engine's operations one to one; errors come
// back as a JSON envelope carrying the stable error code. The WebSocket
// endpoint streams the engine's event log to connected clients through a
// fan-out hub.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"stakecast/internal/config"
)

// Server runs the HTTP/WebSocket API.
type Server struct {
	cfg      config.ServerConfig
	core     Core
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates an API server over the given core.
func NewServer(cfg config.ServerConfig, core Core, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(core, cfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.HandleFunc("GET /api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("GET /api/markets", handlers.HandleListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.HandleCreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.HandleGetMarket)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.HandleResolveMarket)
	mux.HandleFunc("GET /api/tickets/{id}", handlers.HandleGetTicket)
	mux.HandleFunc("POST /api/deposit", handlers.HandleDeposit)
	mux.HandleFunc("POST /api/predict", handlers.HandlePredict)
	mux.HandleFunc("POST /api/swap", handlers.HandleSwap)
	mux.HandleFunc("POST /api/claim", handlers.HandleClaim)
	mux.HandleFunc("POST /api/admin/fees", handlers.HandleSetFees)
	mux.HandleFunc("POST /api/admin/min-stake", handlers.HandleSetMinStake)
	mux.HandleFunc("POST /api/admin/staleness", handlers.HandleSetStaleness)
	mux.HandleFunc("GET /ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		core:     core,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start starts the server, the hub, and the event stream pump. Blocks until
// the server stops.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.consumeEvents()

	s.logger.Info("api server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// consumeEvents pumps the engine's event log into the WebSocket hub.
func (s *Server) consumeEvents() {
	for evt := range s.core.Events().Subscribe() {
		s.hub.Broadcast(evt)
	}
}
