package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/restock-agent/internal/adapter/chain"
	"github.com/rl1809/restock-agent/internal/adapter/handler"
	"github.com/rl1809/restock-agent/internal/adapter/handler/pb"
	"github.com/rl1809/restock-agent/internal/adapter/storage"
	"github.com/rl1809/restock-agent/internal/config"
	"github.com/rl1809/restock-agent/internal/core/domain"
	"github.com/rl1809/restock-agent/internal/core/service"
	"github.com/rl1809/restock-agent/internal/metrics"
	"github.com/rl1809/restock-agent/internal/port"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.Log, os.Stdout).With("component", "supplier")
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("supplier exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.ValidateSupplier(); err != nil {
		return err
	}
	pricing, err := cfg.Supplier.Pricing.Pricing()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	ledger, closeLedger, err := openLedger(ctx, cfg.Supplier.Database, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	opts := []service.Option{service.WithLogger(logger)}
	if cfg.Supplier.VerifyOnChain {
		client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fmt.Errorf("dial rpc: %w", err)
		}
		defer client.Close()
		opts = append(opts, service.WithVerifier(chain.NewVerifier(client)))
		logger.Info("verifying payment proofs on chain", "rpc", cfg.Chain.RPCURL)
	} else {
		logger.Warn("payment proofs are accepted on presence only; set supplier.verify_on_chain to check them")
	}

	if !cfg.Supplier.RejectReplayedProofs {
		logger.Warn("a payment proof may be reused for any number of orders; set supplier.reject_replayed_proofs to refuse replays")
	}

	svc := service.NewLedgerService(cache, ledger, service.LedgerConfig{
		Destination:          cfg.Supplier.WalletAddress,
		Currency:             cfg.Supplier.Currency,
		Chain:                cfg.Chain.Name,
		InvoiceTTL:           cfg.Supplier.InvoiceTTL,
		Pricing:              pricing,
		RejectReplayedProofs: cfg.Supplier.RejectReplayedProofs,
	}, opts...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewSupplier(reg)

	httpHandler := handler.NewHTTPHandler(svc, domain.DiscoveryDocument{
		Name:              cfg.Supplier.Name,
		Capabilities:      cfg.Supplier.Capabilities,
		PaymentTypes:      []string{cfg.Supplier.Currency},
		EstimatedDelivery: cfg.Supplier.EstimatedDelivery,
	}, m, logger)
	httpServer := &http.Server{
		Addr:              cfg.Supplier.HTTPAddr,
		Handler:           httpHandler.Router(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(handler.LoggingInterceptor(logger)))
	pb.RegisterSupplierServer(grpcServer, handler.NewGRPCHandler(svc, m, logger))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Supplier.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Supplier.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		g.Go(func() error {
			logger.Info("gRPC server listening", "addr", cfg.Supplier.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown", "error", err)
		}
		grpcServer.GracefulStop()
		logger.Info("servers stopped")
		return nil
	})

	return g.Wait()
}

func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (port.CacheRepository, func(), error) {
	if cfg.Redis.Addr == "" {
		logger.Info("using in-memory invoice store")
		return storage.NewMemoryCache(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	return storage.NewRedisAdapter(rdb, cfg.Supplier.ProofRetention), func() { rdb.Close() }, nil
}

func openLedger(ctx context.Context, dbCfg config.DatabaseConfig, logger *slog.Logger) (port.DatabaseRepository, func(), error) {
	if dbCfg.DSN == "" {
		logger.Warn("using in-memory ledger; orders are lost on restart")
		return storage.NewMemoryLedger(), func() {}, nil
	}

	dialect, err := storage.ParseDialect(dbCfg.Driver)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(dialect, dbCfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	adapter := storage.NewSQLAdapter(db, dialect)
	if err := adapter.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("connected to ledger database", "dialect", string(dialect))
	return adapter, func() { db.Close() }, nil
}
