package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/efreitasn/futuresim/internal/config"
	"github.com/efreitasn/futuresim/internal/domain"
	"github.com/efreitasn/futuresim/internal/engine"
	"github.com/efreitasn/futuresim/internal/feed"
	"github.com/efreitasn/futuresim/internal/gateway"
	"github.com/efreitasn/futuresim/internal/handler"
	"github.com/efreitasn/futuresim/internal/ledger"
	"github.com/efreitasn/futuresim/internal/playback"
	"github.com/efreitasn/futuresim/internal/service"
	"github.com/efreitasn/futuresim/internal/store"
)

// barRetention caps the bars kept per (gateway, symbol) series.
const barRetention = 100_000

func main() {
	rootCmd := &cobra.Command{
		Use:          "futuresim",
		Short:        "Futures trading simulator",
		Long:         "Simulated futures market data, order matching and account ledger behind an HTTP and WebSocket API.",
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.AddCommand(
		&cobra.Command{
			Use:          "serve",
			Short:        "Run the HTTP server (default)",
			SilenceUsage: true,
			RunE:         runServe,
		},
		&cobra.Command{
			Use:          "healthcheck",
			Short:        "Check a running server's /healthz, exit 0 when healthy",
			SilenceUsage: true,
			RunE:         runHealthcheck,
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthz returned %d", resp.StatusCode)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		return err
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	contractList, err := config.Contracts(cfg.ContractsFile)
	if err != nil {
		logger.Error("failed to load contracts", slog.String("error", err.Error()))
		return err
	}
	contracts := domain.NewContractRegistry(contractList...)

	liquidity, err := engine.NewLiquidityPolicy(cfg.LiquidityPolicy, cfg.LiquidityRatio)
	if err != nil {
		logger.Error("invalid liquidity policy", slog.String("error", err.Error()))
		return err
	}

	// Instantiate stores.
	orderStore := store.NewOrderStore()
	tradeStore := store.NewTradeStore()
	barStore := store.NewBarStore(barRetention)
	webhookStore := store.NewWebhookStore()
	accounts := ledger.New(store.NewAccountStore(), contracts, logger)

	hub := feed.NewHub(logger)

	// Webhooks listen on the hub for fills, cancels and rejections.
	webhookSvc := service.NewWebhookService(webhookStore, accounts, cfg.WebhookTimeout, logger)
	if err := webhookSvc.Attach(hub); err != nil {
		logger.Error("failed to attach webhooks", slog.String("error", err.Error()))
		return err
	}

	manager := gateway.NewManager(gateway.Deps{
		Gateways:         store.NewGatewayStore(),
		Orders:           orderStore,
		Trades:           tradeStore,
		Bars:             barStore,
		Ledger:           accounts,
		Contracts:        contracts,
		Source:           playback.NewDirSource(cfg.HistoryDir),
		Publisher:        hub,
		OnAccountDeleted: webhookSvc.DeleteByAccount,
	}, gateway.Config{
		SimTickInterval: cfg.SimTickInterval,
		Liquidity:       liquidity,
	}, logger)

	router := handler.NewRouter(handler.Services{
		Gateways:      manager,
		Accounts:      service.NewAccountService(accounts),
		Orders:        service.NewOrderService(manager, accounts, orderStore, tradeStore, contracts, logger),
		Market:        service.NewMarketService(manager, barStore, contracts, cfg.BarHistoryLimit),
		Webhooks:      webhookSvc,
		Hub:           hub,
		AllowedOrigin: cfg.WSAllowedOrigin,
	}, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.Int("contracts", len(contractList)),
			slog.String("history_dir", cfg.HistoryDir),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serveErr:
		logger.Error("server error", slog.String("error", err.Error()))
		manager.Shutdown()
		return err
	}

	// Graceful shutdown: stop HTTP server, then the feeds and sessions.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	manager.Shutdown()
	hub.Wait()

	logger.Info("server stopped")
	return nil
}
