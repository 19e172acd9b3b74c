package liquidation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpilot/internal/concurrency"
	"perpilot/internal/exchange"
	"perpilot/internal/store"
)

type fakeExchange struct {
	placeOrderResult *exchange.OrderResult
	placeOrderErr    error
	callCount        int
}

func (f *fakeExchange) GetBalance(ctx context.Context, accountAlias string) (*exchange.Balance, error) {
	return &exchange.Balance{}, nil
}
func (f *fakeExchange) GetPositions(ctx context.Context) ([]*exchange.Position, error) { return nil, nil }
func (f *fakeExchange) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.OrderResult, error) {
	f.callCount++
	if f.placeOrderErr != nil {
		return nil, f.placeOrderErr
	}
	if f.placeOrderResult != nil {
		return f.placeOrderResult, nil
	}
	return &exchange.OrderResult{AvgFillPrice: req.Price, ExecutedQty: req.Quantity}, nil
}
func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, externalOrderID string) error { return nil }
func (f *fakeExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error     { return nil }
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

func seedModelWithAutoClose(t *testing.T, s *store.Store, pct float64) *store.Model {
	t.Helper()
	ctx := context.Background()
	p, err := s.CreateProvider(ctx, &store.Provider{
		DisplayName: "test", ProviderType: store.ProviderOpenAI, BaseURL: "https://x", APIKey: "k",
	})
	require.NoError(t, err)
	m, err := s.CreateModel(ctx, &store.Model{
		DisplayName: "m", ProviderID: p.ID, ProviderModelName: "gpt", InitialCapital: 1000,
		Leverage: 5, MaxPositions: 3, AutoClosePercent: &pct,
	})
	require.NoError(t, err)
	return m
}

func TestLossRatioClampsAtZero(t *testing.T) {
	assert.Equal(t, 0.0, lossRatio(&store.Portfolio{InitialMargin: 100, UnrealizedPnL: 10}))
	assert.InDelta(t, 0.5, lossRatio(&store.Portfolio{InitialMargin: 100, UnrealizedPnL: -50}), 0.0001)
	assert.Equal(t, 0.0, lossRatio(&store.Portfolio{InitialMargin: 0, UnrealizedPnL: -50}))
}

func TestScanOnceForceClosesPositionBreachingThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModelWithAutoClose(t, s, 20) // close at 20% unrealized loss of margin

	require.NoError(t, s.UpsertPortfolio(ctx, &store.Portfolio{
		ModelID: m.ID, Symbol: "BTCUSDT", Side: store.SideLong,
		Quantity: 1, AvgEntryPrice: 100, InitialMargin: 20, UnrealizedPnL: -5, Leverage: 5,
	}))

	ex := &fakeExchange{placeOrderResult: &exchange.OrderResult{AvgFillPrice: 95, ExecutedQty: 1}}
	loop := New(s, ex, concurrency.NewKeyedMutex())

	loop.scanOnce(ctx)

	assert.Equal(t, 1, ex.callCount)
	_, err := s.GetPortfolio(ctx, m.ID, "BTCUSDT", store.SideLong)
	assert.Error(t, err)

	trades, err := s.ListTrades(ctx, m.ID, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.InDelta(t, (95.0-100.0)*1, *trades[0].PnL, 0.0001)
}

func TestScanOnceSkipsPositionBelowThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModelWithAutoClose(t, s, 50)

	require.NoError(t, s.UpsertPortfolio(ctx, &store.Portfolio{
		ModelID: m.ID, Symbol: "BTCUSDT", Side: store.SideLong,
		Quantity: 1, AvgEntryPrice: 100, InitialMargin: 20, UnrealizedPnL: -5, Leverage: 5,
	}))

	ex := &fakeExchange{}
	loop := New(s, ex, concurrency.NewKeyedMutex())

	loop.scanOnce(ctx)

	assert.Equal(t, 0, ex.callCount)
	_, err := s.GetPortfolio(ctx, m.ID, "BTCUSDT", store.SideLong)
	assert.NoError(t, err)
}

func TestCloseWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModelWithAutoClose(t, s, 10)

	require.NoError(t, s.UpsertPortfolio(ctx, &store.Portfolio{
		ModelID: m.ID, Symbol: "ETHUSDT", Side: store.SideShort,
		Quantity: 2, AvgEntryPrice: 50, InitialMargin: 10, UnrealizedPnL: -5, Leverage: 5,
	}))

	attempt := &countingExchange{failUntil: 2}
	loop := New(s, attempt, concurrency.NewKeyedMutex())
	loop.backoffBase = time.Millisecond

	p, err := s.GetPortfolio(ctx, m.ID, "ETHUSDT", store.SideShort)
	require.NoError(t, err)

	err = loop.closeWithRetry(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 2, attempt.calls)
}

type countingExchange struct {
	fakeExchange
	calls     int
	failUntil int
}

func (c *countingExchange) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.OrderResult, error) {
	c.calls++
	if c.calls < c.failUntil {
		return nil, assert.AnError
	}
	return &exchange.OrderResult{AvgFillPrice: req.Price, ExecutedQty: req.Quantity}, nil
}
