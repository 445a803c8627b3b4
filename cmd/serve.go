package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/logging"
	"github.com/BioHazard786/Warpcall/internal/relay"
	"github.com/BioHazard786/Warpcall/internal/server"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the room relay",
	Long: `Run the room relay: a WebSocket endpoint on /ws that pairs two
participants per room and forwards their signals, plus /health and /stats.

Examples:
  warpcall serve
  warpcall serve --listen :9000
  WARPCALL_LISTEN=127.0.0.1:8080 warpcall serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(slog.LevelInfo)

		loader := config.NewLoader()
		if err := loader.BindFlags(cmd.Flags()); err != nil {
			return err
		}
		cfg, err := loader.Load(flagConfigFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, slog.Default())
	},
}

// serve runs the relay on cfg.Listen until ctx is done.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}

	registry := relay.NewRegistry(logger)
	srv := &http.Server{
		Handler: server.NewRouter(server.Options{
			Registry: registry,
			Conn:     relay.ConnConfig{MaxMessageSize: cfg.MaxMessageBytes},
			Logger:   logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("relay listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; their
	// pumps end when the process exits.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	stats := registry.Stats()
	logger.Info("relay stopped", "rooms", stats.Rooms, "participants", stats.Participants)
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", config.DefaultListen, "Address to listen on")
	serveCmd.Flags().Int64("max-message-bytes", config.DefaultMaxMessageBytes, "Largest relay message accepted")
}
