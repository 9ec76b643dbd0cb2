package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/atharve16/MediMate/internal/config"
	"github.com/atharve16/MediMate/internal/observe"
	"github.com/atharve16/MediMate/internal/rendezvous"
	"github.com/atharve16/MediMate/internal/version"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	flagListen   string
	flagCapacity int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rendezvous service",
	Long: `Run the rendezvous service participants join rooms on.

Endpoints:
  /ws          websocket signaling
  /api/rooms   open rooms as JSON
  /healthz     liveness
  /readyz      readiness
  /metrics     Prometheus metrics

Examples:
  medimate serve
  medimate serve --listen :9000 --capacity 0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := config.Options{ListenAddr: flagListen}
		if cmd.Flags().Changed("capacity") {
			opts.RoomCapacity = &flagCapacity
		}
		cfg, err := loadConfig(opts, slog.LevelInfo)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "medimate-rendezvous",
		ServiceVersion: version.Version,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownMetrics(sctx)
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	hub := rendezvous.NewHub(cfg.RoomCapacity, rendezvous.WithMetrics(metrics))
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           rendezvous.Routes(hub, observe.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("rendezvous listening", "addr", cfg.ListenAddr, "room_capacity", cfg.RoomCapacity, "version", version.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "Listen address (default :8080)")
	serveCmd.Flags().IntVar(&flagCapacity, "capacity", config.DefaultRoomCapacity, "Participants per room, 0 for unlimited")
}
