package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpilot/internal/store"
	"perpilot/internal/strategy"
)

type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued []*store.StrategyDecision
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, model *store.Model, decision *store.StrategyDecision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, decision)
	return nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enqueued)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedModel(t *testing.T, s *store.Store, autoBuy, autoSell bool) *store.Model {
	t.Helper()
	ctx := context.Background()

	p, err := s.CreateProvider(ctx, &store.Provider{
		DisplayName:  "test provider",
		ProviderType: store.ProviderOpenAI,
		BaseURL:      "https://api.openai.com",
		APIKey:       "sk-test",
	})
	require.NoError(t, err)

	m, err := s.CreateModel(ctx, &store.Model{
		DisplayName:       "test model",
		ProviderID:        p.ID,
		ProviderModelName: "gpt-4",
		InitialCapital:    1000,
		Leverage:          5,
		MaxPositions:      3,
		BatchSize:         10,
		BatchIntervalSec:  60,
		BatchGroupSize:    10,
		AutoBuyEnabled:    autoBuy,
		AutoSellEnabled:   autoSell,
		SymbolSource:      store.SymbolSourceLeaderboard,
		CandidateTopN:     5,
	})
	require.NoError(t, err)
	return m
}

func TestEnsureWorkerIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	m := seedModel(t, s, true, false)
	exec := strategy.NewExecutor(s)
	o := New(s, exec, &fakeEnqueuer{})

	o.EnsureWorker(m, store.StrategyBuy)
	o.EnsureWorker(m, store.StrategyBuy)

	o.mu.Lock()
	n := len(o.workers)
	o.mu.Unlock()
	assert.Equal(t, 1, n)

	o.Shutdown()
}

func TestStopWorkerDrainsBeforeReturning(t *testing.T) {
	s := newTestStore(t)
	m := seedModel(t, s, true, false)
	exec := strategy.NewExecutor(s)
	o := New(s, exec, &fakeEnqueuer{})

	o.EnsureWorker(m, store.StrategyBuy)
	o.StopWorker(store.StrategyBuy, m.ID)

	o.mu.Lock()
	_, exists := o.workers[workerKey(store.StrategyBuy, m.ID)]
	o.mu.Unlock()
	assert.False(t, exists)
}

func TestReconcileConvergesToEnabledModels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m1 := seedModel(t, s, true, true)
	exec := strategy.NewExecutor(s)
	o := New(s, exec, &fakeEnqueuer{})

	require.NoError(t, o.Reconcile(ctx))

	o.mu.Lock()
	_, hasBuy := o.workers[workerKey(store.StrategyBuy, m1.ID)]
	_, hasSell := o.workers[workerKey(store.StrategySell, m1.ID)]
	o.mu.Unlock()
	assert.True(t, hasBuy)
	assert.True(t, hasSell)

	m1.AutoSellEnabled = false
	require.NoError(t, s.UpdateModel(ctx, m1))
	require.NoError(t, o.Reconcile(ctx))

	o.mu.Lock()
	_, hasSellAfter := o.workers[workerKey(store.StrategySell, m1.ID)]
	o.mu.Unlock()
	assert.False(t, hasSellAfter)

	o.Shutdown()
}

func TestRunCycleFallsBackToInitialCapitalWithoutSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s, true, false)

	exec := strategy.NewExecutor(s)
	enq := &fakeEnqueuer{}
	o := New(s, exec, enq)

	account, err := o.loadAccountInfo(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, m.InitialCapital, account.TotalEquity)
	assert.Equal(t, m.InitialCapital, account.AvailableBalance)
	assert.Equal(t, 0, account.PositionCount)
}

func TestRunCyclePersistsAndEnqueuesDecisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s, true, false)

	strat, err := s.CreateStrategy(ctx, &store.Strategy{
		Name: "momentum",
		Type: store.StrategyBuy,
		ProgramText: `for candidate if candidate.price_change_percent > 5
			emit buy_to_long qty=10 leverage=5 reason="momentum"`,
	})
	require.NoError(t, err)
	_, err = s.AttachModelStrategy(ctx, &store.ModelStrategy{
		ModelID: m.ID, StrategyID: strat.ID, Type: store.StrategyBuy, Priority: 0,
	})
	require.NoError(t, err)

	changePct := 8.0
	require.NoError(t, s.UpsertMarketTicker(ctx, &store.MarketTicker{
		Symbol:             "BTCUSDT",
		LastPrice:          50000,
		PriceChangePercent: &changePct,
		BaseVolume:         1_000_000,
	}, false))

	exec := strategy.NewExecutor(s)
	enq := &fakeEnqueuer{}
	o := New(s, exec, enq)

	require.NoError(t, o.runCycle(ctx, m, store.StrategyBuy))

	assert.Equal(t, 1, enq.count())

	decisions, err := s.ListDecisions(ctx, m.ID, 0)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, store.DecisionTriggered, decisions[0].Status)
	assert.Equal(t, "BTCUSDT", decisions[0].Symbol)
}

func TestRunCycleBatchesGroupsWithInterval(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s, true, false)
	m.BatchGroupSize = 1
	m.BatchIntervalSec = 0 // keep the test fast; pacing itself is exercised by sleepBetweenGroups directly
	require.NoError(t, s.UpdateModel(ctx, m))

	strat, err := s.CreateStrategy(ctx, &store.Strategy{
		Name: "momentum",
		Type: store.StrategyBuy,
		ProgramText: `for candidate if candidate.price_change_percent > 0
			emit buy_to_long qty=1 leverage=1`,
	})
	require.NoError(t, err)
	_, err = s.AttachModelStrategy(ctx, &store.ModelStrategy{
		ModelID: m.ID, StrategyID: strat.ID, Type: store.StrategyBuy, Priority: 0,
	})
	require.NoError(t, err)

	for _, sym := range []string{"BTCUSDT", "ETHUSDT"} {
		pct := 3.0
		require.NoError(t, s.UpsertMarketTicker(ctx, &store.MarketTicker{
			Symbol: sym, LastPrice: 100, PriceChangePercent: &pct, BaseVolume: 1_000_000,
		}, false))
	}

	exec := strategy.NewExecutor(s)
	enq := &fakeEnqueuer{}
	o := New(s, exec, enq)

	require.NoError(t, o.runCycle(ctx, m, store.StrategyBuy))
	assert.Equal(t, 2, enq.count())
}

func TestRunCycleTimedExitsAfterConsecutiveInternalFailures(t *testing.T) {
	s := newTestStore(t)
	m := seedModel(t, s, true, false)
	exec := strategy.NewExecutor(s)
	o := New(s, exec, &fakeEnqueuer{})

	require.NoError(t, s.Close()) // every subsequent query now fails with apperr.Internal

	ctx := context.Background()
	var consecutive int
	for i := 0; i < maxConsecutiveInternalFailures-1; i++ {
		assert.True(t, o.runCycleTimed(ctx, m, store.StrategyBuy, &consecutive))
	}
	assert.False(t, o.runCycleTimed(ctx, m, store.StrategyBuy, &consecutive))
	assert.Equal(t, maxConsecutiveInternalFailures, consecutive)
}

func TestRunCycleTimedResetsCounterOnSuccess(t *testing.T) {
	s := newTestStore(t)
	m := seedModel(t, s, true, false)
	exec := strategy.NewExecutor(s)
	o := New(s, exec, &fakeEnqueuer{})

	ctx := context.Background()
	var consecutive int
	assert.True(t, o.runCycleTimed(ctx, m, store.StrategyBuy, &consecutive))
	assert.Equal(t, 0, consecutive)
}

func TestSleepBetweenGroupsRespectsContextCancellation(t *testing.T) {
	s := newTestStore(t)
	m := seedModel(t, s, true, false)
	m.BatchIntervalSec = 30
	exec := strategy.NewExecutor(s)
	o := New(s, exec, &fakeEnqueuer{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := o.sleepBetweenGroups(ctx, m)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
