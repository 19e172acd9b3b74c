package klinestream

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpilot/internal/exchange"
	"perpilot/internal/store"
)

type fakeClient struct {
	mu          sync.Mutex
	subscribeN  int32
	lastHandler func(exchange.Kline)
}

func (f *fakeClient) GetBalance(ctx context.Context, alias string) (*exchange.Balance, error) {
	return nil, nil
}
func (f *fakeClient) GetPositions(ctx context.Context) ([]*exchange.Position, error) { return nil, nil }
func (f *fakeClient) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.OrderResult, error) {
	return nil, nil
}
func (f *fakeClient) CancelOrder(ctx context.Context, symbol, id string) error           { return nil }
func (f *fakeClient) SetLeverage(ctx context.Context, symbol string, leverage int) error { return nil }
func (f *fakeClient) SubscribeTicker(ctx context.Context, symbol string, onUpdate func(exchange.Ticker)) (func(), error) {
	return func() {}, nil
}
func (f *fakeClient) SubscribeAllTickers(ctx context.Context, onUpdate func([]exchange.Ticker)) (func(), error) {
	return func() {}, nil
}

func (f *fakeClient) SubscribeKline(ctx context.Context, symbol, interval string, onUpdate func(exchange.Kline)) (func(), error) {
	atomic.AddInt32(&f.subscribeN, 1)
	f.mu.Lock()
	f.lastHandler = onUpdate
	f.mu.Unlock()
	return func() {}, nil
}
func (f *fakeClient) GetPrice(ctx context.Context, symbol string) (float64, error) { return 0, nil }
func (f *fakeClient) Close() error                                                 { return nil }

func TestSubscribeIsIdempotent(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fc := &fakeClient{}
	m := New(st, fc)

	require.NoError(t, m.Subscribe(context.Background(), "BTCUSDT", "1m"))
	require.NoError(t, m.Subscribe(context.Background(), "BTCUSDT", "1m"))

	assert.Equal(t, int32(1), atomic.LoadInt32(&fc.subscribeN))
}

func TestClosedKlineIsPersisted(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fc := &fakeClient{}
	m := New(st, fc)
	require.NoError(t, m.Subscribe(context.Background(), "ETHUSDT", "5m"))

	fc.mu.Lock()
	handler := fc.lastHandler
	fc.mu.Unlock()
	handler(exchange.Kline{
		Symbol: "ETHUSDT", Interval: "5m", Open: 3000, Close: 3100,
		CloseTime: time.Now(), Closed: true,
	})

	got, err := st.GetMarketTicker(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3100.0, got.LastPrice)
}

func TestUnsubscribeRemovesEntry(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fc := &fakeClient{}
	m := New(st, fc)
	require.NoError(t, m.Subscribe(context.Background(), "BNBUSDT", "1m"))
	m.Unsubscribe("BNBUSDT", "1m")

	require.NoError(t, m.Subscribe(context.Background(), "BNBUSDT", "1m"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&fc.subscribeN))
}
