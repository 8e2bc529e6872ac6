package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"concierge/internal/domain"
)

// Gateway is the single HTTP server the process exposes: webhook channels
// mount their handlers on it, plus health and metrics endpoints.
type Gateway struct {
	host   string
	port   int
	logger *slog.Logger
	server *http.Server
	mux    *http.ServeMux
}

type GatewayConfig struct {
	Host   string
	Port   int
	Logger *slog.Logger
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	g := &Gateway{
		host:   cfg.Host,
		port:   cfg.Port,
		logger: cfg.Logger,
		mux:    http.NewServeMux(),
	}
	g.mux.HandleFunc("GET /healthz", g.handleHealth)
	return g
}

// Mount attaches a handler under a path prefix. Call before Start.
func (g *Gateway) Mount(pattern string, handler http.Handler) {
	g.mux.Handle(pattern, handler)
}

func (g *Gateway) Name() string { return "gateway" }

func (g *Gateway) Start(ctx context.Context, _ domain.MessageBus) error {
	addr := fmt.Sprintf("%s:%d", g.host, g.port)
	g.server = &http.Server{
		Addr:              addr,
		Handler:           g.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g.logger.Info("http gateway started", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		g.server.Shutdown(shutdownCtx)
	}()

	if err := g.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (g *Gateway) Stop() error {
	if g.server != nil {
		return g.server.Close()
	}
	return nil
}

func (g *Gateway) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]string{"status": "ok"})
}
