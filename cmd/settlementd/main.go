package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolRental/internal/chain"
	"poolRental/internal/channel"
	"poolRental/internal/config"
	"poolRental/internal/gateway"
	"poolRental/internal/ledger"
	"poolRental/internal/ratelimit"
	"poolRental/internal/registry"
	"poolRental/internal/rental"
	"poolRental/internal/storage"
	"poolRental/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "settlementd",
		Short:        "Pool rental settlement service",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the settlement API",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().StringSlice("rpc", nil, "chain RPC endpoints (id=url, comma-separated)")
	serveCmd.Flags().StringSlice("contract", nil, "rental contract addresses (id=address, comma-separated)")
	serveCmd.Flags().Uint64("home-chain", 0, "chain id used for channel settlement")
	serveCmd.Flags().String("signing-key", "", "settlement signing key hex (empty runs mock mode)")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN for the settlement archive")
	serveCmd.Flags().String("archive-path", "./data/settlements.jsonl", "JSONL archive path")
	serveCmd.Flags().Duration("pool-cache-ttl", 30*time.Second, "pool registry cache TTL")
	serveCmd.Flags().Duration("expire-interval", 15*time.Second, "rental expiry sweep interval")
	serveCmd.Flags().Int("rate-limit", 60, "admitted requests per client per window")
	serveCmd.Flags().Duration("rate-window", time.Minute, "rate limit window")
	serveCmd.Flags().Int("rate-max-keys", 10_000, "rate limiter key capacity")
	serveCmd.Flags().Duration("rate-sweep", time.Minute, "rate limiter sweep interval")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	routes := make(map[uint64]chain.Route, len(cfg.RPC))
	for chainID, rpcURL := range cfg.RPC {
		contract := cfg.Contracts[chainID]
		if !common.IsHexAddress(contract) {
			return fmt.Errorf("contract for chain %d is not an address: %s", chainID, contract)
		}
		routes[chainID] = chain.Route{RPCURL: rpcURL, Contract: common.HexToAddress(contract)}
	}

	homeChain, err := cfg.Home()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient := chain.NewClient(routes, logger)
	defer chainClient.Close()

	settler, err := chain.NewSettler(cfg.SigningKey, chainClient, logger)
	if err != nil {
		return err
	}

	var archive storage.Storage
	if cfg.PgDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		archive = store
	} else {
		archive = storage.NewJsonlStorage(cfg.ArchivePath)
	}

	pools := registry.New(chainClient, settler, cfg.PoolCacheTTL, logger)
	swapLedger := ledger.New()
	rentals := rental.NewManager(pools, swapLedger, archive, settler, logger)
	channels := channel.NewManager(settler, homeChain, archive, logger)

	limiter, err := ratelimit.NewWindowLimiter(cfg.RateLimit, cfg.RateWindow, cfg.RateMaxKeys, cfg.RateSweep, logger)
	if err != nil {
		return fmt.Errorf("build rate limiter: %w", err)
	}
	defer limiter.Close()

	if err := channels.Bootstrap(ctx); err != nil {
		return fmt.Errorf("settlement bootstrap: %w", err)
	}

	go expireLoop(ctx, rentals, cfg.ExpireInterval, logger)

	api := gateway.New(rentals, channels, chainClient, limiter, logger)
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("settlement api started",
		zap.String("listen", cfg.Listen),
		zap.Uint64("home_chain", homeChain),
		zap.Int("chains", len(routes)),
		zap.Bool("mock_settlement", settler.Mock()),
	)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func expireLoop(ctx context.Context, rentals *rental.Manager, every time.Duration, logger *zap.Logger) {
	if every <= 0 {
		every = 15 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired := rentals.ExpireDue(ctx); expired > 0 {
				logger.Info("expired rentals", zap.Int("count", expired))
			}
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
