package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/olyamironova/swap-router/internal/adapter/cache"
	"github.com/olyamironova/swap-router/internal/adapter/in_memory"
	"github.com/olyamironova/swap-router/internal/adapter/pg"
	apigrpc "github.com/olyamironova/swap-router/internal/api/grpc"
	apihttp "github.com/olyamironova/swap-router/internal/api/http"
	"github.com/olyamironova/swap-router/internal/api/ws"
	"github.com/olyamironova/swap-router/internal/clock"
	"github.com/olyamironova/swap-router/internal/config"
	"github.com/olyamironova/swap-router/internal/core"
	"github.com/olyamironova/swap-router/internal/genesis"
	"github.com/olyamironova/swap-router/internal/logging"
	"github.com/olyamironova/swap-router/internal/middleware"
	"github.com/olyamironova/swap-router/internal/port"
	"github.com/olyamironova/swap-router/internal/telemetry"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC router",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		SampleRate:   cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	dex, err := cfg.DexProgramID()
	if err != nil {
		return err
	}
	tokenProgram, err := cfg.TokenProgramID()
	if err != nil {
		return err
	}

	store, closeStore, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	depthCache, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	world, err := genesis.Build(ctx, dex, cfg.Genesis, store)
	if err != nil {
		return err
	}
	logger.Info("genesis loaded", "markets", len(world.Markets), "accounts", len(cfg.Genesis.Accounts), "dex", dex)

	slots := clock.NewSlotClock(bclock.New(), time.Now(), cfg.Chain.SlotDuration)
	stream := ws.NewHub(logger)
	router := core.NewRouter(store, world.Registry, slots, logger,
		core.WithTokenProgram(tokenProgram),
		core.WithCache(depthCache),
		core.WithObserver(stream),
	)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.PerSecond > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           apihttp.NewHTTPServer(router, store, world.Registry, depthCache, limiter, logger).WithClock(slots).WithStream(stream).Handler(),
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}

	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(apigrpc.LoggingInterceptor(logger)))
	apigrpc.Register(grpcSrv, apigrpc.NewGRPCServer(router))
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPC.Addr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc listening", "addr", cfg.GRPC.Addr)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", "error", serr)
	}
	grpcSrv.GracefulStop()
	return err
}

func openLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger) (genesis.VaultStore, func(), error) {
	if cfg.Storage.Driver != config.StoragePostgres {
		return in_memory.NewLedger(), func() {}, nil
	}
	ledger, err := pg.NewLedger(ctx, cfg.Storage.PostgresDSN, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.Migrate {
		if err := ledger.Migrate(ctx); err != nil {
			ledger.Close()
			return nil, nil, err
		}
	}
	if cfg.Storage.Reset {
		if err := ledger.Reset(ctx); err != nil {
			ledger.Close()
			return nil, nil, err
		}
	}
	return ledger, ledger.Close, nil
}

func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (port.DepthCache, func(), error) {
	if cfg.Redis.Addr == "" {
		return in_memory.NewCache(in_memory.WithTTL(cfg.Redis.TTL, bclock.New())), func() {}, nil
	}
	rc, err := cache.NewRedisCache(cache.Config{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		TTL:       cfg.Redis.TTL,
		KeyPrefix: cfg.Redis.KeyPrefix,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	return rc, func() { _ = rc.Close() }, nil
}
