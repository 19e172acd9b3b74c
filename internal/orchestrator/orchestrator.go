// Package orchestrator is the Model Orchestrator (spec §4.5): it owns one worker goroutine per
// (model, side) pair whose corresponding auto_*_enabled flag is set, each running a cooperative
// decision loop on a ticker. Grounded on the teacher's trader/auto_trader.go Run/Stop/runCycle
// shape (ticker + stop channel + sync.WaitGroup drain), generalized from one process per model to
// one goroutine per (model, side).
package orchestrator

import (
	"context"
	"sync"
	"time"

	"perpilot/internal/apperr"
	"perpilot/internal/logger"
	"perpilot/internal/metrics"
	"perpilot/internal/store"
	"perpilot/internal/strategy"
)

// maxConsecutiveInternalFailures is the M in spec §7's "repeated Internal within M consecutive
// cycles -> worker marks itself unhealthy and exits for supervisor respawn". Chosen to absorb a
// single transient blip (one bad cycle is normal under upstream hiccups) while still catching a
// worker that is permanently broken within a few minutes at the default batch interval.
const maxConsecutiveInternalFailures = 3

// OrderEnqueuer is the Algo-Order Engine's submission surface, as seen by the orchestrator
// (spec §4.7). Kept as an interface so this package compiles independently of internal/algoengine.
type OrderEnqueuer interface {
	Enqueue(ctx context.Context, model *store.Model, decision *store.StrategyDecision) error
}

type worker struct {
	key    string
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator owns the lifecycle of per-(model,side) workers.
type Orchestrator struct {
	store    *store.Store
	executor *strategy.Executor
	orders   OrderEnqueuer
	log      *logger.Logger

	mu      sync.Mutex
	workers map[string]*worker
}

func New(st *store.Store, exec *strategy.Executor, orders OrderEnqueuer) *Orchestrator {
	return &Orchestrator{
		store:    st,
		executor: exec,
		orders:   orders,
		log:      logger.With("orchestrator"),
		workers:  make(map[string]*worker),
	}
}

func workerKey(side store.StrategyType, modelID string) string {
	return string(side) + "-" + modelID
}

// EnsureWorker idempotently spawns a worker for (model, side); a call for an already-running
// key is a no-op (spec §4.5: "idempotent spawn keyed on buy-{modelId}/sell-{modelId}").
func (o *Orchestrator) EnsureWorker(model *store.Model, side store.StrategyType) {
	key := workerKey(side, model.ID)

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.workers[key]; exists {
		return
	}

	wctx, cancel := context.WithCancel(context.Background())
	w := &worker{key: key, cancel: cancel, done: make(chan struct{})}
	o.workers[key] = w

	go func() {
		defer close(w.done)
		metrics.SetWorkerRunning(model.ID, string(side), true)
		defer metrics.SetWorkerRunning(model.ID, string(side), false)
		o.runLoop(wctx, cancel, model, side)
		o.forgetIfCurrent(key, w)
	}()

	o.log.Infof("spawned worker %s", key)
}

// forgetIfCurrent removes a self-exited worker from the registry so Reconcile's next pass treats
// it as absent and respawns it, without racing a StopWorker call that already removed (and may
// have replaced) the same key.
func (o *Orchestrator) forgetIfCurrent(key string, w *worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if current, ok := o.workers[key]; ok && current == w {
		delete(o.workers, key)
	}
}

// StopWorker signals graceful stop and waits for drain (spec §4.5: "disabling -> signal graceful
// stop and wait for drain").
func (o *Orchestrator) StopWorker(side store.StrategyType, modelID string) {
	key := workerKey(side, modelID)

	o.mu.Lock()
	w, exists := o.workers[key]
	if exists {
		delete(o.workers, key)
	}
	o.mu.Unlock()

	if !exists {
		return
	}
	w.cancel()
	<-w.done
	o.log.Infof("stopped worker %s", key)
}

// Reconcile ensures a worker exists for every enabled (model,side) and stops workers whose model
// no longer has that side enabled or was deleted.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	models, err := o.store.ListEnabledModels(ctx)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(models)*2)
	for _, m := range models {
		if m.AutoBuyEnabled {
			wanted[workerKey(store.StrategyBuy, m.ID)] = true
			o.EnsureWorker(m, store.StrategyBuy)
		}
		if m.AutoSellEnabled {
			wanted[workerKey(store.StrategySell, m.ID)] = true
			o.EnsureWorker(m, store.StrategySell)
		}
	}

	o.mu.Lock()
	var stale []string
	for key := range o.workers {
		if !wanted[key] {
			stale = append(stale, key)
		}
	}
	o.mu.Unlock()

	for _, key := range stale {
		side, modelID := splitWorkerKey(key)
		o.StopWorker(side, modelID)
	}
	return nil
}

func splitWorkerKey(key string) (store.StrategyType, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '-' {
			return store.StrategyType(key[:i]), key[i+1:]
		}
	}
	return "", key
}

// Shutdown stops every running worker.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	keys := make([]string, 0, len(o.workers))
	for key := range o.workers {
		keys = append(keys, key)
	}
	o.mu.Unlock()

	for _, key := range keys {
		side, modelID := splitWorkerKey(key)
		o.StopWorker(side, modelID)
	}
}

func (o *Orchestrator) runLoop(ctx context.Context, cancel context.CancelFunc, model *store.Model, side store.StrategyType) {
	interval := time.Duration(model.BatchIntervalSec) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}

	var consecutiveInternal int
	if !o.runCycleTimed(ctx, model, side, &consecutiveInternal) {
		cancel()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !o.runCycleTimed(ctx, model, side, &consecutiveInternal) {
				cancel()
				return
			}
		}
	}
}

// runCycleTimed runs one cycle and reports whether the worker should keep running. It returns
// false once consecutive Internal-kind failures reach maxConsecutiveInternalFailures (spec §7):
// the worker marks itself unhealthy and exits, leaving Reconcile to respawn it on its next pass.
func (o *Orchestrator) runCycleTimed(ctx context.Context, model *store.Model, side store.StrategyType, consecutiveInternal *int) bool {
	start := time.Now()
	err := o.runCycle(ctx, model, side)
	metrics.RecordCycleDuration(model.ID, string(side), time.Since(start).Seconds())
	if err == nil {
		*consecutiveInternal = 0
		return true
	}

	key := workerKey(side, model.ID)
	o.log.Warnf("worker %s cycle failed: %v", key, err)
	if apperr.KindOf(err) != apperr.Internal {
		*consecutiveInternal = 0
		return true
	}

	*consecutiveInternal++
	if *consecutiveInternal < maxConsecutiveInternalFailures {
		return true
	}

	o.log.Errorf("worker %s: %d consecutive internal failures, marking unhealthy and exiting for respawn",
		key, *consecutiveInternal)
	return false
}
