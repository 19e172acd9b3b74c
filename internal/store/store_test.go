package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpilot/internal/apperr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedProviderAndModel(t *testing.T, s *Store) *Model {
	t.Helper()
	ctx := context.Background()

	p, err := s.CreateProvider(ctx, &Provider{
		DisplayName:  "test provider",
		ProviderType: ProviderOpenAI,
		BaseURL:      "https://api.openai.com",
		APIKey:       "sk-test",
	})
	require.NoError(t, err)

	m, err := s.CreateModel(ctx, &Model{
		DisplayName:       "test model",
		ProviderID:        p.ID,
		ProviderModelName: "gpt-4",
		InitialCapital:    1000,
		MaxPositions:      3,
		BatchSize:         1,
		BatchIntervalSec:  60,
		BatchGroupSize:    1,
	})
	require.NoError(t, err)
	return m
}

func TestCreateAndGetModel(t *testing.T) {
	s := newTestStore(t)
	m := seedProviderAndModel(t, s)

	got, err := s.GetModel(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.DisplayName, got.DisplayName)
	assert.Equal(t, 3, got.MaxPositions)
}

func TestGetModelNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetModel(context.Background(), "missing")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestListEnabledModels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedProviderAndModel(t, s)

	enabled, err := s.ListEnabledModels(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	require.NoError(t, s.SetModelEnabled(ctx, m.ID, true, false))

	enabled, err = s.ListEnabledModels(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.True(t, enabled[0].AutoBuyEnabled)
	assert.False(t, enabled[0].AutoSellEnabled)
}

func TestDeleteModelCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedProviderAndModel(t, s)

	require.NoError(t, s.UpsertPortfolio(ctx, &Portfolio{
		ModelID: m.ID, Symbol: "BTCUSDT", Side: SideLong, Quantity: 1, AvgEntryPrice: 50000,
		InitialMargin: 500, Leverage: 10, EntryTime: nowUTC8(),
	}))
	_, err := s.RecordTrade(ctx, &Trade{
		ModelID: m.ID, Symbol: "BTCUSDT", Side: TradeSideBuy, Signal: SignalBuyToLong,
		Quantity: 1, Price: 50000,
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteModel(ctx, m.ID))

	_, err = s.GetModel(ctx, m.ID)
	assert.Error(t, err)

	trades, err := s.ListTrades(ctx, m.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, trades)

	positions, err := s.ListOpenPositions(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestPortfolioUpsertAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedProviderAndModel(t, s)

	pos := &Portfolio{
		ModelID: m.ID, Symbol: "ETHUSDT", Side: SideLong, Quantity: 2, AvgEntryPrice: 3000,
		InitialMargin: 300, Leverage: 20, EntryTime: nowUTC8(),
	}
	require.NoError(t, s.UpsertPortfolio(ctx, pos))

	n, err := s.CountOpenPositions(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pos.Quantity = 3
	require.NoError(t, s.UpsertPortfolio(ctx, pos))

	got, err := s.GetPortfolio(ctx, m.ID, "ETHUSDT", SideLong)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Quantity)

	require.NoError(t, s.ClosePosition(ctx, m.ID, "ETHUSDT", SideLong))
	n, err = s.CountOpenPositions(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAlgoOrderSupersessionQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedProviderAndModel(t, s)

	first, err := s.CreateAlgoOrder(ctx, &AlgoOrder{
		ModelID: m.ID, Symbol: "BTCUSDT", Side: TradeSideSell, PositionSide: SideLong,
		AlgoType: AlgoTypeStop, OrderType: "STOP_MARKET", Quantity: 1, TriggerPrice: 49000,
	})
	require.NoError(t, err)

	open, err := s.ListOpenAlgoOrders(ctx, m.ID, "BTCUSDT", TradeSideSell)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, first.ID, open[0].ID)

	require.NoError(t, s.MarkAlgoOrderStatus(ctx, first.ID, AlgoCancelled, nil, nil))

	open, err = s.ListOpenAlgoOrders(ctx, m.ID, "BTCUSDT", TradeSideSell)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestDecisionStateMachine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedProviderAndModel(t, s)

	d, err := s.RecordDecision(ctx, &StrategyDecision{
		ModelID: m.ID, StrategyName: "momentum", StrategyType: StrategyBuy,
		Signal: SignalBuyToLong, Symbol: "BTCUSDT", Quantity: 1, Leverage: 10, Price: 50000,
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionTriggered, d.Status)

	trade, err := s.RecordTrade(ctx, &Trade{
		ModelID: m.ID, Symbol: "BTCUSDT", Side: TradeSideBuy, Signal: SignalBuyToLong,
		Quantity: 1, Price: 50000,
	})
	require.NoError(t, err)
	require.NoError(t, s.MarkDecisionExecuted(ctx, d.ID, trade.ID))

	got, err := s.GetDecision(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, DecisionExecuted, got.Status)
	require.NotNil(t, got.TradeID)
	assert.Equal(t, trade.ID, *got.TradeID)

	err = s.MarkDecisionExecuted(ctx, d.ID, trade.ID)
	assert.Error(t, err)
}

func TestMarketTickerUpsertPreservesDateUnlessForced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := time.Parse(time.RFC3339, "2026-07-01T00:00:00Z")
	require.NoError(t, err)
	require.NoError(t, s.UpsertMarketTicker(ctx, &MarketTicker{
		Symbol: "BTCUSDT", OpenPrice: 50000, LastPrice: 51000,
		EventTime: nowUTC8(), UpdatePriceDate: &first,
	}, true))

	require.NoError(t, s.UpsertMarketTicker(ctx, &MarketTicker{
		Symbol: "BTCUSDT", OpenPrice: 50000, LastPrice: 52000, EventTime: nowUTC8(),
	}, false))

	got, err := s.GetMarketTicker(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, got.UpdatePriceDate)
	assert.True(t, got.UpdatePriceDate.Equal(first))
	assert.Equal(t, 52000.0, got.LastPrice)
}

func TestMarketTickerUpsertRecomputesChangeFromStoredAnchor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seededDate, err := time.Parse(time.RFC3339, "2026-01-01T00:00:00+08:00")
	require.NoError(t, err)
	require.NoError(t, s.UpsertMarketTicker(ctx, &MarketTicker{
		Symbol: "BTCUSDT", OpenPrice: 50000, LastPrice: 50000,
		EventTime: nowUTC8(), UpdatePriceDate: &seededDate,
	}, true))

	// A stream upsert carries an upstream-computed open_price and price_change_percent that
	// must be ignored: the anchor and its recompute are the store's alone.
	bogus := -7.0
	require.NoError(t, s.UpsertMarketTicker(ctx, &MarketTicker{
		Symbol: "BTCUSDT", OpenPrice: 49000, LastPrice: 51000,
		PriceChange: &bogus, PriceChangePercent: &bogus, EventTime: nowUTC8(),
	}, false))

	got, err := s.GetMarketTicker(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, got.OpenPrice)
	require.NotNil(t, got.UpdatePriceDate)
	assert.True(t, got.UpdatePriceDate.Equal(seededDate))
	require.NotNil(t, got.PriceChangePercent)
	assert.InDelta(t, 2.0, *got.PriceChangePercent, 1e-9)
	require.NotNil(t, got.PriceChange)
	assert.InDelta(t, 1000.0, *got.PriceChange, 1e-9)
}

func TestDeleteStaleMarketTickersRespectsCutoff(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertMarketTicker(ctx, &MarketTicker{
		Symbol: "OLDUSDT", OpenPrice: 1, LastPrice: 1, EventTime: nowUTC8(),
	}, true))

	n, err := s.DeleteStaleMarketTickers(ctx, nowUTC8().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	_, err = s.GetMarketTicker(ctx, "OLDUSDT")
	require.NoError(t, err)

	n, err = s.DeleteStaleMarketTickers(ctx, nowUTC8().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = s.GetMarketTicker(ctx, "OLDUSDT")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestListSymbolsNeedingPriceRefresh(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fresh := nowUTC8().Add(-10 * time.Minute)
	stale := nowUTC8().Add(-2 * time.Hour)
	require.NoError(t, s.UpsertMarketTicker(ctx, &MarketTicker{
		Symbol: "FRESHUSDT", OpenPrice: 1, LastPrice: 1, EventTime: nowUTC8(), UpdatePriceDate: &fresh,
	}, true))
	require.NoError(t, s.UpsertMarketTicker(ctx, &MarketTicker{
		Symbol: "STALEUSDT", OpenPrice: 1, LastPrice: 1, EventTime: nowUTC8(), UpdatePriceDate: &stale,
	}, true))
	require.NoError(t, s.UpsertMarketTicker(ctx, &MarketTicker{
		Symbol: "NEVERUSDT", OpenPrice: 0, LastPrice: 1, EventTime: nowUTC8(),
	}, false))

	got, err := s.ListSymbolsNeedingPriceRefresh(ctx, nowUTC8().Add(-time.Hour))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"STALEUSDT", "NEVERUSDT"}, got)
}

func TestSetPriceAnchorLeavesLastPriceAlone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertMarketTicker(ctx, &MarketTicker{
		Symbol: "BTCUSDT", OpenPrice: 0, LastPrice: 44000, EventTime: nowUTC8(),
	}, false))

	asOf := nowUTC8()
	require.NoError(t, s.SetPriceAnchor(ctx, "BTCUSDT", 40000, asOf))

	got, err := s.GetMarketTicker(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 40000.0, got.OpenPrice)
	assert.Equal(t, 44000.0, got.LastPrice)
	require.NotNil(t, got.UpdatePriceDate)
	assert.True(t, got.UpdatePriceDate.Equal(asOf))
	require.NotNil(t, got.PriceChangePercent)
	assert.InDelta(t, 10.0, *got.PriceChangePercent, 1e-9)
}

func TestMarketTickerUpsertLeavesChangeNilWithoutAnchor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertMarketTicker(ctx, &MarketTicker{
		Symbol: "ETHUSDT", OpenPrice: 0, LastPrice: 3000, EventTime: nowUTC8(),
	}, false))

	got, err := s.GetMarketTicker(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Nil(t, got.PriceChange)
	assert.Nil(t, got.PriceChangePercent)
}
