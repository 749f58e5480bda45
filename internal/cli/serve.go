package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/randalmurphal/flowtrace/internal/api"
	"github.com/randalmurphal/flowtrace/pkg/flowtrace/observability"
	"github.com/randalmurphal/flowtrace/pkg/flowtrace/realtime"
	"github.com/randalmurphal/flowtrace/pkg/flowtrace/trace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the flowtrace HTTP and WebSocket server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		metrics, err := observability.NewOTelMetrics(otel.Meter("flowtrace"))
		if err != nil {
			return err
		}

		adapter, err := openAdapter(cfg)
		if err != nil {
			return err
		}
		defer adapter.Close()

		recon := trace.NewReconstructor(adapter,
			trace.WithPricing(pricingFromConfig(cfg)),
			trace.WithLogger(logger),
			trace.WithMetrics(metrics),
		)

		manager := realtime.NewManager(
			realtime.WithBufferCapacity(cfg.Realtime.BufferCapacity),
			realtime.WithIdleTTL(cfg.Realtime.IdleTTL.Std()),
			realtime.WithManagerLogger(logger),
			realtime.WithManagerMetrics(metrics),
		)
		streams := realtime.NewBroadcaster(
			realtime.WithQueueSize(cfg.Realtime.QueueSize),
			realtime.WithBroadcasterLogger(logger),
			realtime.WithBroadcasterMetrics(metrics),
		)
		var resolverOpts []realtime.ResolverOption
		if cfg.Realtime.StaticThreadID != "" {
			resolverOpts = append(resolverOpts, realtime.WithStaticThreadID(cfg.Realtime.StaticThreadID))
		}
		ingestor := realtime.NewIngestor(realtime.NewResolver(resolverOpts...), manager, streams,
			realtime.WithIngestorLogger(logger),
			realtime.WithIngestorMetrics(metrics),
		)

		handler := api.NewHandler(adapter, recon, ingestor, manager,
			api.WithHandlerLogger(logger),
			api.WithHeartbeatInterval(cfg.Server.HeartbeatInterval.Std()),
		)

		e := echo.New()
		e.HideBanner = true
		e.Use(middleware.Recover())
		e.Use(middleware.CORS())
		handler.RegisterRoutes(e)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		go ingestor.Run(ctx, cfg.Realtime.EvictInterval.Std())

		errCh := make(chan error, 1)
		go func() {
			logger.Info("flowtrace listening",
				"addr", cfg.Server.Addr,
				"dialect", cfg.Database.Dialect,
			)
			errCh <- e.Start(cfg.Server.Addr)
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		return e.Shutdown(shutdownCtx)
	},
}
