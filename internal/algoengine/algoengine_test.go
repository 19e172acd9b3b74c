package algoengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpilot/internal/concurrency"
	"perpilot/internal/exchange"
	"perpilot/internal/store"
)

type fakeExchange struct {
	placeOrderResult *exchange.OrderResult
	placeOrderErr    error
	placed           []*exchange.OrderRequest
	cancelled        []string
	leverageSet      map[string]int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{leverageSet: make(map[string]int)}
}

func (f *fakeExchange) GetBalance(ctx context.Context, accountAlias string) (*exchange.Balance, error) {
	return &exchange.Balance{AccountAlias: accountAlias}, nil
}
func (f *fakeExchange) GetPositions(ctx context.Context) ([]*exchange.Position, error) { return nil, nil }
func (f *fakeExchange) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.OrderResult, error) {
	f.placed = append(f.placed, req)
	if f.placeOrderErr != nil {
		return nil, f.placeOrderErr
	}
	if f.placeOrderResult != nil {
		return f.placeOrderResult, nil
	}
	return &exchange.OrderResult{ExternalOrderID: "ext-1", Status: "FILLED", AvgFillPrice: req.Price, ExecutedQty: req.Quantity}, nil
}
func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, externalOrderID string) error {
	f.cancelled = append(f.cancelled, externalOrderID)
	return nil
}
func (f *fakeExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	f.leverageSet[symbol] = leverage
	return nil
}
func (f *fakeExchange) SubscribeTicker(ctx context.Context, symbol string, onUpdate func(exchange.Ticker)) (func(), error) {
	return func() {}, nil
}
func (f *fakeExchange) SubscribeAllTickers(ctx context.Context, onUpdate func([]exchange.Ticker)) (func(), error) {
	return func() {}, nil
}
func (f *fakeExchange) SubscribeKline(ctx context.Context, symbol, interval string, onUpdate func(exchange.Kline)) (func(), error) {
	return func() {}, nil
}
func (f *fakeExchange) GetPrice(ctx context.Context, symbol string) (float64, error) { return 0, nil }
func (f *fakeExchange) Close() error                                                { return nil }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedModel(t *testing.T, s *store.Store) *store.Model {
	t.Helper()
	ctx := context.Background()
	p, err := s.CreateProvider(ctx, &store.Provider{
		DisplayName: "test", ProviderType: store.ProviderOpenAI, BaseURL: "https://x", APIKey: "k",
	})
	require.NoError(t, err)
	m, err := s.CreateModel(ctx, &store.Model{
		DisplayName: "m", ProviderID: p.ID, ProviderModelName: "gpt", InitialCapital: 1000,
		Leverage: 5, MaxPositions: 3,
	})
	require.NoError(t, err)
	return m
}

func TestEnqueueOpensLongPositionImmediately(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s)
	ex := newFakeExchange()
	ex.placeOrderResult = &exchange.OrderResult{ExternalOrderID: "o1", AvgFillPrice: 100, ExecutedQty: 1}
	eng := New(s, ex, concurrency.NewKeyedMutex())

	decision, err := s.RecordDecision(ctx, &store.StrategyDecision{
		ModelID: m.ID, StrategyName: "strat", StrategyType: store.StrategyBuy,
		Signal: store.SignalBuyToLong, Symbol: "BTCUSDT", Quantity: 1, Leverage: 5,
	})
	require.NoError(t, err)

	require.NoError(t, eng.Enqueue(ctx, m, decision))

	got, err := s.GetDecision(ctx, decision.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DecisionExecuted, got.Status)

	pos, err := s.GetPortfolio(ctx, m.ID, "BTCUSDT", store.SideLong)
	require.NoError(t, err)
	assert.Equal(t, 1.0, pos.Quantity)
	assert.Equal(t, 100.0, pos.AvgEntryPrice)

	trades, err := s.ListTrades(ctx, m.ID, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Nil(t, trades[0].PnL)
}

func TestEnqueueClosesPositionAndRecordsPnL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s)

	require.NoError(t, s.UpsertPortfolio(ctx, &store.Portfolio{
		ModelID: m.ID, Symbol: "BTCUSDT", Side: store.SideLong,
		Quantity: 1, AvgEntryPrice: 100, InitialMargin: 20, Leverage: 5,
	}))

	ex := newFakeExchange()
	ex.placeOrderResult = &exchange.OrderResult{ExternalOrderID: "o2", AvgFillPrice: 110, ExecutedQty: 1, Fee: 0.5}
	eng := New(s, ex, concurrency.NewKeyedMutex())

	decision, err := s.RecordDecision(ctx, &store.StrategyDecision{
		ModelID: m.ID, StrategyName: "strat", StrategyType: store.StrategyBuy,
		Signal: store.SignalClosePosition, Symbol: "BTCUSDT", Quantity: 1, Leverage: 5,
	})
	require.NoError(t, err)

	require.NoError(t, eng.Enqueue(ctx, m, decision))

	trades, err := s.ListTrades(ctx, m.ID, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.NotNil(t, trades[0].PnL)
	assert.InDelta(t, (110.0-100.0)*1-0.5, *trades[0].PnL, 0.0001)

	_, err = s.GetPortfolio(ctx, m.ID, "BTCUSDT", store.SideLong)
	assert.Error(t, err)
}

func TestEnqueueRejectsDecisionOnExchangeError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s)
	ex := newFakeExchange()
	ex.placeOrderErr = assert.AnError
	eng := New(s, ex, concurrency.NewKeyedMutex())

	decision, err := s.RecordDecision(ctx, &store.StrategyDecision{
		ModelID: m.ID, StrategyName: "strat", StrategyType: store.StrategyBuy,
		Signal: store.SignalBuyToLong, Symbol: "ETHUSDT", Quantity: 1, Leverage: 5,
	})
	require.NoError(t, err)

	err = eng.Enqueue(ctx, m, decision)
	assert.Error(t, err)

	got, getErr := s.GetDecision(ctx, decision.ID)
	require.NoError(t, getErr)
	assert.Equal(t, store.DecisionRejected, got.Status)
}

func TestEnqueuePlacesConditionalAlgoAndSupersedesOlder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s)

	require.NoError(t, s.UpsertPortfolio(ctx, &store.Portfolio{
		ModelID: m.ID, Symbol: "BTCUSDT", Side: store.SideLong,
		Quantity: 1, AvgEntryPrice: 100, InitialMargin: 20, Leverage: 5,
	}))

	existing, err := s.CreateAlgoOrder(ctx, &store.AlgoOrder{
		ExternalAlgoID: "old-1", AlgoType: store.AlgoTypeStop, OrderType: "STOP_MARKET",
		Symbol: "BTCUSDT", Side: store.TradeSideSell, PositionSide: store.SideLong,
		Quantity: 1, TriggerPrice: 90, ModelID: m.ID,
	})
	require.NoError(t, err)

	ex := newFakeExchange()
	ex.placeOrderResult = &exchange.OrderResult{ExternalOrderID: "new-1"}
	eng := New(s, ex, concurrency.NewKeyedMutex())

	stopPrice := 92.0
	decision, err := s.RecordDecision(ctx, &store.StrategyDecision{
		ModelID: m.ID, StrategyName: "strat", StrategyType: store.StrategySell,
		Signal: store.SignalStopLoss, Symbol: "BTCUSDT", Quantity: 1,
		StopPrice: &stopPrice,
	})
	require.NoError(t, err)

	require.NoError(t, eng.Enqueue(ctx, m, decision))

	refreshed, err := s.GetAlgoOrder(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, store.AlgoCancelled, refreshed.Status)

	open, err := s.ListOpenAlgoOrders(ctx, m.ID, "BTCUSDT", store.TradeSideSell)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 92.0, open[0].TriggerPrice)

	got, err := s.GetDecision(ctx, decision.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DecisionTriggered, got.Status)
}

func TestSupervisorFillsTriggeredStopLoss(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s)

	require.NoError(t, s.UpsertPortfolio(ctx, &store.Portfolio{
		ModelID: m.ID, Symbol: "BTCUSDT", Side: store.SideLong,
		Quantity: 1, AvgEntryPrice: 100, InitialMargin: 20, Leverage: 5,
	}))

	decision, err := s.RecordDecision(ctx, &store.StrategyDecision{
		ModelID: m.ID, StrategyName: "strat", StrategyType: store.StrategySell,
		Signal: store.SignalStopLoss, Symbol: "BTCUSDT", Quantity: 1,
	})
	require.NoError(t, err)
	decisionID := decision.ID

	_, err = s.CreateAlgoOrder(ctx, &store.AlgoOrder{
		ExternalAlgoID: "algo-1", AlgoType: store.AlgoTypeStop, OrderType: "STOP_MARKET",
		Symbol: "BTCUSDT", Side: store.TradeSideSell, PositionSide: store.SideLong,
		Quantity: 1, TriggerPrice: 95, ModelID: m.ID, StrategyDecisionID: &decisionID,
	})
	require.NoError(t, err)

	changePct := -5.0
	require.NoError(t, s.UpsertMarketTicker(ctx, &store.MarketTicker{
		Symbol: "BTCUSDT", LastPrice: 90, PriceChangePercent: &changePct,
	}, false))

	ex := newFakeExchange()
	ex.placeOrderResult = &exchange.OrderResult{ExternalOrderID: "fill-1", AvgFillPrice: 90, ExecutedQty: 1}
	eng := New(s, ex, concurrency.NewKeyedMutex())

	require.NoError(t, eng.pollOnce(ctx))

	open, err := s.ListOpenAlgoOrders(ctx, m.ID, "BTCUSDT", store.TradeSideSell)
	require.NoError(t, err)
	assert.Empty(t, open)

	trades, err := s.ListTrades(ctx, m.ID, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.InDelta(t, (90.0-100.0)*1, *trades[0].PnL, 0.0001)

	got, err := s.GetDecision(ctx, decisionID)
	require.NoError(t, err)
	assert.Equal(t, store.DecisionExecuted, got.Status)
}

func TestTriggeredSemanticsForAllCombinations(t *testing.T) {
	cases := []struct {
		name     string
		algoType store.AlgoType
		side     store.Side
		trigger  float64
		price    float64
		want     bool
	}{
		{"stop long triggers on drop", store.AlgoTypeStop, store.SideLong, 95, 90, true},
		{"stop long does not trigger above", store.AlgoTypeStop, store.SideLong, 95, 100, false},
		{"stop short triggers on rise", store.AlgoTypeStop, store.SideShort, 105, 110, true},
		{"take profit long triggers on rise", store.AlgoTypeTakeProfit, store.SideLong, 110, 115, true},
		{"take profit short triggers on drop", store.AlgoTypeTakeProfit, store.SideShort, 90, 85, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			algo := &store.AlgoOrder{AlgoType: c.algoType, PositionSide: c.side, TriggerPrice: c.trigger}
			assert.Equal(t, c.want, triggered(algo, c.price))
		})
	}
}
