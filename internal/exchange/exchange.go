// Package exchange is the Exchange Gateway: the single seam between perpilot and the upstream
// futures venue. It wraps go-binance/v2's futures client with rate limiting, retry, and a
// trimmed interface the rest of the system programs against, following the teacher's Trader
// interface + multi-backend-factory shape in trader/auto_trader.go (NewFuturesTrader et al.).
package exchange

import (
	"context"
	"time"
)

// Side is the order-level buy/sell direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionSide distinguishes long/short legs under hedge mode; perpilot runs one-way mode
// (spec open question resolution, see DESIGN.md), so this is mostly informational.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// OrderType is the subset of Binance USDⓈ-M futures order types perpilot issues.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT_MARKET"
)

// OrderRequest describes an order to place.
type OrderRequest struct {
	Symbol       string
	Side         Side
	PositionSide PositionSide
	Type         OrderType
	Quantity     float64
	Price        float64 // LIMIT only
	StopPrice    float64 // STOP_MARKET / TAKE_PROFIT_MARKET trigger
	ClientOrderID string
	ReduceOnly   bool
}

// OrderResult is the venue's acknowledgement of a placed order.
type OrderResult struct {
	ExternalOrderID string
	ClientOrderID   string
	Status          string
	AvgFillPrice    float64
	ExecutedQty     float64
	Fee             float64
}

// Balance is a snapshot of one account's futures wallet.
type Balance struct {
	AccountAlias       string
	WalletBalance      float64
	AvailableBalance   float64
	CrossWalletBalance float64
	CrossUnPnL         float64
}

// Position is an exchange-reported open position.
type Position struct {
	Symbol        string
	PositionSide  PositionSide
	Quantity      float64
	EntryPrice    float64
	Leverage      int
	UnrealizedPnL float64
}

// Ticker is a 24h rolling ticker update pushed over the market-data stream.
type Ticker struct {
	Symbol             string
	LastPrice          float64
	OpenPrice          float64
	PriceChange        float64
	PriceChangePercent float64
	QuoteVolume        float64
	BaseVolume         float64
	EventTime          time.Time
}

// Kline is a single candlestick, closed or in-progress.
type Kline struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	CloseTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Closed    bool
}

// Client is the trimmed exchange surface the rest of perpilot programs against. A single
// concrete implementation (Binance USDⓈ-M futures) backs it today; the interface exists so a
// second venue can be added the way the teacher swaps Trader implementations per config.Exchange.
type Client interface {
	GetBalance(ctx context.Context, accountAlias string) (*Balance, error)
	GetPositions(ctx context.Context) ([]*Position, error)
	PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error)
	CancelOrder(ctx context.Context, symbol, externalOrderID string) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// GetPrice fetches a single REST reference price for symbol, used by the Price Refresh job
	// to (re)anchor market_tickers.open_price independent of the streaming ticker feed.
	GetPrice(ctx context.Context, symbol string) (float64, error)

	// SubscribeTicker opens a 24h mini-ticker stream for symbol and invokes onUpdate for each
	// message until the returned stop function is called or ctx is cancelled.
	SubscribeTicker(ctx context.Context, symbol string, onUpdate func(Ticker)) (stop func(), err error)

	// SubscribeAllTickers opens the venue's single all-symbol 24h ticker stream and invokes
	// onUpdate with each batch until the returned stop function is called or ctx is cancelled.
	// At most one of these is ever active at a time (spec's all-symbol ticker requirement); the
	// Ingestor is responsible for filtering the batch down to the symbols it cares about.
	SubscribeAllTickers(ctx context.Context, onUpdate func([]Ticker)) (stop func(), err error)

	// SubscribeKline opens a kline stream for (symbol, interval).
	SubscribeKline(ctx context.Context, symbol, interval string, onUpdate func(Kline)) (stop func(), err error)

	Close() error
}
