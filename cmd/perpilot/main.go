// Command perpilot is the process entrypoint. It wires the store, the exchange gateway, the
// market ticker ingestor, the kline stream manager, the scheduled jobs, the strategy executor,
// the order/liquidation engines, the model orchestrator, the HTTP façade, and the metrics
// listener into one running process, then waits for SIGINT/SIGTERM to drain everything.
//
// No teacher repo in the retrieval pack ships a comparable entrypoint, so this file's wiring
// order follows each package's own dependency surface rather than an imitated file; see
// DESIGN.md for the note on why this one package has no grounding source.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"perpilot/internal/algoengine"
	"perpilot/internal/api"
	"perpilot/internal/concurrency"
	"perpilot/internal/config"
	"perpilot/internal/exchange"
	"perpilot/internal/klinestream"
	"perpilot/internal/liquidation"
	"perpilot/internal/logger"
	"perpilot/internal/marketdata"
	"perpilot/internal/metrics"
	"perpilot/internal/orchestrator"
	"perpilot/internal/scheduler"
	"perpilot/internal/store"
	"perpilot/internal/strategy"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, os.Stdout)
	log := logger.With("main")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Errorf("open store: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	ex := exchange.NewBinanceFutures(cfg.BinanceAPIKey, cfg.BinanceAPISecret, cfg.BinanceTestnet)

	metrics.Init()

	locks := concurrency.NewKeyedMutex()
	algo := algoengine.New(st, ex, locks)
	liq := liquidation.New(st, ex, locks)
	executor := strategy.NewExecutor(st)
	orch := orchestrator.New(st, executor, algo)

	ingestor := marketdata.New(st, ex)
	klines := klinestream.New(st, ex)
	refresher := marketdata.NewPriceRefresher(st, ex, cfg.PriceRefreshMaxPerMinute)
	cleanup := marketdata.NewTickerCleanup(st, cfg.KlineCleanupRetentionDays)
	sched := scheduler.New()

	facade := api.New(st, orch, cfg.FacadeJWTSecret)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: facade.Router()}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Reconcile(ctx); err != nil {
		log.Warnf("initial reconcile failed: %v", err)
	}

	if err := sched.AddCron("price-refresh", cfg.PriceRefreshCron, refresher.Run); err != nil {
		log.Errorf("register price refresh job: %v", err)
	}
	if err := sched.AddCron("ticker-cleanup", cfg.KlineCleanupCron, cleanup.Run); err != nil {
		log.Errorf("register ticker cleanup job: %v", err)
	}
	if err := sched.AddCron("orchestrator-reconcile", cfg.ReconcileCron, func(ctx context.Context) {
		if err := orch.Reconcile(ctx); err != nil {
			log.Warnf("reconcile failed: %v", err)
		}
	}); err != nil {
		log.Errorf("register orchestrator reconcile job: %v", err)
	}
	sched.Start()

	futures, err := st.ListFutures(ctx)
	if err != nil {
		log.Errorf("list tracked futures: %v", err)
	}
	symbols := make([]string, 0, len(futures))
	for _, f := range futures {
		symbols = append(symbols, f.Symbol)
	}
	for _, sym := range symbols {
		if err := klines.Subscribe(ctx, sym, "1m"); err != nil {
			log.Warnf("subscribe klines for %s failed: %v", sym, err)
		}
	}

	var wg sync.WaitGroup
	runBackground := func(name string, fn func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
		log.Infof("started %s", name)
	}

	runBackground("kline stream manager", func(ctx context.Context) { klines.Run(ctx, cfg.KlineSyncCheckInterval) })
	runBackground("algo engine supervisor", algo.RunSupervisor)
	runBackground("liquidation loop", liq.Run)
	runBackground("market ticker ingestor", func(ctx context.Context) {
		if err := ingestor.Start(ctx); err != nil {
			log.Errorf("market ticker ingestor stopped: %v", err)
		}
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("http facade listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("http facade stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Infof("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http facade shutdown: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("metrics server shutdown: %v", err)
	}
	sched.Stop(shutdownCtx)
	orch.Shutdown()
	if err := ex.Close(); err != nil {
		log.Warnf("exchange close: %v", err)
	}

	wg.Wait()
	log.Infof("shutdown complete")
}
