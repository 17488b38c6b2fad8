package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/app"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/engine"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/execution"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/metrics"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/oms"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/pricefeed"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/resilience"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/strategy"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Venue Adapter (Paper by default; LIVE is double-latched)
	adapter, err := execution.NewAdapter(cfg)
	if err != nil {
		slog.Error("❌ Adapter initialization failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 5. Resiliency Wrapper, OMS, Engine
	res := resilience.NewManager(adapter, resilience.ConfigFrom(cfg.Trading.Mode, cfg), bootstrap.Prom)
	orders := oms.NewManager(res, oms.ConfigFrom(cfg), bootstrap.Journal, bootstrap.Prom)
	eng := engine.NewEngine(adapter, res, orders, engine.ConfigFrom(cfg))

	if err := eng.Start(ctx); err != nil {
		slog.Error("❌ Engine start failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer eng.Stop()

	// 6. Market Data Feed (drives the simulator's resting-order matching)
	if cfg.PriceFeed.Enabled && cfg.PriceFeed.WSURL != "" {
		if paper, ok := adapter.(*execution.PaperAdapter); ok {
			feed := pricefeed.NewFeed(cfg.PriceFeed.WSURL, cfg.PriceFeed.Symbols, paper)
			feed.Start(ctx)
			defer feed.Stop()
			slog.Info("✅ Price feed started", slog.String("url", cfg.PriceFeed.WSURL))
		}
	}

	// 7. Metrics Endpoint
	if cfg.Metrics.Enabled && bootstrap.Prom != nil {
		go func() {
			slog.Info("✅ Metrics server started", slog.String("addr", cfg.Metrics.ListenAddr))
			if err := http.ListenAndServe(cfg.Metrics.ListenAddr, metrics.Handler()); err != nil {
				slog.Error("Metrics server failed", slog.Any("error", err))
			}
		}()
	}

	// 8. Trading Loop. The decision collaborator attaches through the
	// DecisionSource seam; without one the engine idles on HOLD.
	go func() {
		if err := eng.RunLiveTrading(ctx, strategy.HoldSource{}); err != nil && ctx.Err() == nil {
			slog.Error("Trading loop exited", slog.Any("error", err))
		}
	}()

	slog.InfoContext(ctx, "✨ Execution subsystem fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
}
