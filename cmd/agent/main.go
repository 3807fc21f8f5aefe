package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/restock-agent/internal/adapter/chain"
	"github.com/rl1809/restock-agent/internal/adapter/handler"
	"github.com/rl1809/restock-agent/internal/adapter/storage"
	"github.com/rl1809/restock-agent/internal/adapter/supplier"
	"github.com/rl1809/restock-agent/internal/agent"
	"github.com/rl1809/restock-agent/internal/config"
	"github.com/rl1809/restock-agent/internal/decision"
	"github.com/rl1809/restock-agent/internal/fallback"
	"github.com/rl1809/restock-agent/internal/metrics"
	"github.com/rl1809/restock-agent/internal/port"
)

const (
	shutdownTimeout = 5 * time.Second
	supplierTimeout = 15 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.Log, os.Stdout).With("component", "agent")
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("agent exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.ValidateAgent(); err != nil {
		return err
	}
	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		logger.Warn("settlement not configured; every restock will fail until set", "missing", missing)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stock, closeStock, err := openStock(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStock()

	gateway, closeGateway, err := openSupplier(cfg.Agent)
	if err != nil {
		return err
	}
	defer closeGateway()

	executor := chain.NewExecutor(chain.Config{
		PrivateKey:   cfg.Agent.PrivateKey,
		Endpoint:     cfg.Chain.RPCURL,
		GasLimit:     cfg.Chain.GasLimit,
		PollInterval: cfg.Chain.PollInterval,
	}, chain.WithLogger(logger))
	if len(cfg.MissingCredentials()) == 0 {
		if err := executor.Connect(ctx); err != nil {
			logger.Warn("chain not reachable yet", "error", err)
		} else {
			logger.Info("wallet ready", "address", executor.Address().Hex())
		}
	}

	var primary decision.Advisor
	if cfg.Agent.AdvisorURL != "" {
		primary = decision.NewRemote(cfg.Agent.AdvisorURL, cfg.Agent.AdvisorTimeout)
	}
	advisor := decision.NewResilient(primary,
		decision.WithBreaker(cfg.Agent.BreakerFailures, cfg.Agent.BreakerCooldown),
		decision.WithFallback(decision.Local{Quantity: decision.DefaultRestockQuantity, Threshold: cfg.Agent.ExecuteThreshold}),
		decision.WithLogger(logger))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewAgent(reg)

	directory := fallback.NewDirectory(fallback.Config{
		Endpoints:     cfg.Agent.FallbackSuppliers,
		ProposedPrice: cfg.Agent.ProposedPrice,
	}, logger)

	workflow := agent.NewWorkflow(agent.WorkflowConfig{
		Item:             cfg.Agent.Item,
		ExecuteThreshold: cfg.Agent.ExecuteThreshold,
		ConfirmTimeout:   cfg.Chain.ConfirmTimeout,
		SettlementDelay:  cfg.Agent.SettlementDelay,
	}, advisor, gateway, executor,
		agent.WithDirectory(directory),
		agent.WithWorkflowMetrics(m),
		agent.WithWorkflowLogger(logger))

	a := agent.New(agent.Config{
		Item:           cfg.Agent.Item,
		InitialStock:   cfg.Agent.InitialStock,
		WatchThreshold: cfg.Agent.WatchThreshold,
		SaleInterval:   cfg.Agent.SaleInterval,
		SaleUnits:      cfg.Agent.SaleUnits,
		Market:         cfg.Agent.Market.Market(),
	}, stock, workflow,
		agent.WithMetrics(m),
		agent.WithLogger(logger),
		agent.WithActivityCapacity(cfg.Agent.ActivityCapacity))

	dashboard := handler.NewDashboardHandler(a, gateway, logger)
	httpServer := &http.Server{
		Addr:              cfg.Agent.HTTPAddr,
		Handler:           dashboard.Router(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Run(ctx)
	})

	g.Go(func() error {
		logger.Info("dashboard listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func openStock(ctx context.Context, cfg *config.Config, logger *slog.Logger) (port.StockRepository, func(), error) {
	if cfg.Redis.Addr == "" {
		return storage.NewMemoryStock(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("stock kept in redis", "addr", cfg.Redis.Addr)
	return storage.NewRedisAdapter(rdb, 0), func() { rdb.Close() }, nil
}

func openSupplier(cfg config.AgentConfig) (port.SupplierGateway, func(), error) {
	if cfg.SupplierTransport == config.TransportGRPC {
		cc, err := supplier.Dial(cfg.SupplierGRPC)
		if err != nil {
			return nil, nil, fmt.Errorf("dial supplier: %w", err)
		}
		return supplier.NewGRPCClient(cc), func() { cc.Close() }, nil
	}
	return supplier.NewHTTPClient(cfg.SupplierURL, &http.Client{Timeout: supplierTimeout}), func() {}, nil
}
