package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warpcall/internal/relay"
)

// Options configures the relay HTTP handler.
type Options struct {
	Registry *relay.Registry
	Conn     relay.ConnConfig
	Logger   *slog.Logger
}

// NewRouter returns the relay's HTTP routes: the websocket relay channel on
// /ws, a liveness probe on /health and registry counters on /stats.
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = relay.NewRegistry(opts.Logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(Logger(opts.Logger))

	r.Get("/health", healthCheckHandler)
	r.Get("/stats", statsHandler(opts.Registry))
	r.Get("/ws", ServeWs(opts.Registry, opts.Conn, opts.Logger))
	return r
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

func statsHandler(registry *relay.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, registry.Stats())
	}
}

// WriteJSON writes v as a JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  relay.DefaultMaxMessageSize,
	WriteBufferSize: relay.DefaultMaxMessageSize,

	// Room ID secrecy is the only access control, so any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWs upgrades the request and runs a relay connection until it closes.
func ServeWs(registry *relay.Registry, cfg relay.ConnConfig, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		relay.NewConn(ws, registry, cfg, logger).Serve()
	}
}
