// Command server starts the stock intelligence HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/stock-intel/internal/adapter/cache"
	httpserver "github.com/fairyhunter13/stock-intel/internal/adapter/httpserver"
	"github.com/fairyhunter13/stock-intel/internal/adapter/observability"
	"github.com/fairyhunter13/stock-intel/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/stock-intel/internal/adapter/toolrpc"
	"github.com/fairyhunter13/stock-intel/internal/adapter/ws"
	"github.com/fairyhunter13/stock-intel/internal/app"
	"github.com/fairyhunter13/stock-intel/internal/config"
	"github.com/fairyhunter13/stock-intel/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Infra: DB pool and Redis cache.
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	store, err := cache.NewStore(cfg.RedisURL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	// One client, breaker and invoker per downstream tool server.
	retry := toolrpc.RetryConfig{
		MaxAttempts:  cfg.RetryMaxAttempts,
		InitialDelay: cfg.RetryInitialDelay,
		Base:         cfg.RetryBase,
		MaxDelay:     cfg.RetryMaxDelay,
		Jitter:       cfg.RetryJitter,
	}
	brCfg := toolrpc.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
	}
	buildInvoker := func(name, baseURL string) *toolrpc.Invoker {
		client := toolrpc.NewClient(toolrpc.ClientConfig{
			Name:     name,
			BaseURL:  baseURL,
			Token:    cfg.ToolAuthToken,
			PoolSize: cfg.ToolPoolSize,
			Timeout:  cfg.ToolTimeout,
		})
		if err := client.Connect(ctx); err != nil {
			slog.Warn("tool server not reachable at startup",
				slog.String("server", name), slog.Any("error", err))
		}
		return toolrpc.NewInvoker(client, toolrpc.NewCircuitBreaker(name, brCfg), retry)
	}
	stockTools := buildInvoker("stock-data", cfg.StockToolURL)
	newsTools := buildInvoker("news", cfg.NewsToolURL)
	marketTools := buildInvoker("market-data", cfg.MarketToolURL)

	// Repositories.
	userRepo := postgres.NewUserRepo(pool)
	portfolioRepo := postgres.NewPortfolioRepo(pool)
	alertRepo := postgres.NewAlertRepo(pool)
	notifRepo := postgres.NewNotificationRepo(pool)
	workflowRepo := postgres.NewWorkflowRepo(pool)
	executionRepo := postgres.NewExecutionRepo(pool)

	cleanupSvc := postgres.NewCleanupService(pool, cfg.DataRetentionDays)
	go cleanupSvc.Run(ctx, cfg.CleanupInterval)

	// Services.
	analyzer := usecase.NewKeywordAnalyzer()
	stockSvc := usecase.NewStockDataService(store, stockTools, usecase.StockTTLs{
		Price:      cfg.PriceTTL,
		Historical: cfg.HistoricalTTL,
		Search:     cfg.SearchTTL,
		Company:    cfg.CompanyTTL,
		Metrics:    cfg.MetricsTTL,
		StalePrice: cfg.StalePriceTTL,
	})
	newsSvc := usecase.NewNewsService(store, newsTools, analyzer, cfg.NewsTTL)
	marketSvc := usecase.NewMarketOverviewService(store, marketTools, newsSvc, analyzer, cfg.OverviewTTL)
	alertSvc := usecase.NewAlertService(alertRepo)
	portfolioSvc := usecase.NewPortfolioService(portfolioRepo)
	notifSvc := usecase.NewNotificationService(notifRepo)
	authSvc := usecase.NewAuthService(userRepo, cfg.SessionSecret, cfg.SessionTTL)

	// Live fan-out.
	registry := ws.NewRegistry(cfg.WSSendTimeout)
	wsHandler := ws.NewHandler(registry, authSvc)
	streamer := app.NewPriceStreamer(stockSvc, registry, cfg.PriceStreamInterval)
	go streamer.Run(ctx)

	// Alert monitor.
	monitor := usecase.NewAlertMonitor(alertRepo, notifRepo, stockSvc, registry, usecase.MonitorConfig{
		Interval:     cfg.AlertInterval,
		Window:       cfg.AlertFatigueWindow,
		MaxPerWindow: cfg.AlertMaxPerWindow,
	})
	go monitor.Run(ctx)

	// Workflow engine and scheduler.
	engine := usecase.NewWorkflowEngine(workflowRepo, executionRepo)
	app.RegisterBuiltinAgents(engine, stockSvc, newsSvc, marketSvc)
	scheduler := usecase.NewWorkflowScheduler(engine)
	workflowSvc := usecase.NewWorkflowService(workflowRepo, scheduler)
	if scheduled, err := workflowRepo.ListScheduled(ctx); err != nil {
		slog.Error("failed to load scheduled workflows", slog.Any("error", err))
	} else {
		scheduler.Resync(ctx, scheduled)
	}
	scheduler.Start()

	// HTTP server.
	srv := &httpserver.Server{
		Stocks:        stockSvc,
		News:          newsSvc,
		Market:        marketSvc,
		Sentiment:     analyzer,
		Alerts:        alertSvc,
		Portfolio:     portfolioSvc,
		Notifications: notifSvc,
		Workflows:     workflowSvc,
		Engine:        engine,
		Probes: app.BuildReadinessChecks(pool, store, map[string]string{
			"stock_data":  cfg.StockToolURL,
			"news":        cfg.NewsToolURL,
			"market_data": cfg.MarketToolURL,
		}),
	}
	authHandlers := &httpserver.AuthHandlers{Auth: authSvc}
	handler := app.BuildRouter(cfg, srv, authHandlers, authSvc, wsHandler)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer shutdownCancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	cancel()
	scheduler.Stop(shutdownCtx)
}
