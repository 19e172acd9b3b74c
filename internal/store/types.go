package store

import "time"

// Model is a configured trading model (spec §3).
type Model struct {
	ID                 string
	DisplayName        string
	ProviderID         string
	ProviderModelName  string
	InitialCapital     float64
	Leverage           int // 0..125; 0 = "decide per call"
	MaxPositions       int // >= 1
	APICredentials     string // opaque, caller-encrypted
	AutoBuyEnabled     bool
	AutoSellEnabled    bool
	AutoClosePercent   *float64 // null or 0<x<=100
	BaseVolumeFilter   *float64
	BatchSize          int
	BatchIntervalSec   int
	BatchGroupSize     int
	PromptTemplate     string
	SymbolSource       SymbolSource
	CandidateTopN      int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SymbolSource selects where the Strategy Executor draws buy candidates from (spec §4.6).
type SymbolSource string

const (
	SymbolSourceLeaderboard SymbolSource = "leaderboard"
	SymbolSourceFuture      SymbolSource = "future"
)

// ProviderType enumerates LLM provider wire families (spec §3, §4.4).
type ProviderType string

const (
	ProviderOpenAI       ProviderType = "openai"
	ProviderAzureOpenAI  ProviderType = "azure_openai"
	ProviderDeepSeek     ProviderType = "deepseek"
	ProviderAnthropic    ProviderType = "anthropic"
	ProviderGemini       ProviderType = "gemini"
	ProviderOther        ProviderType = "other"
)

// Provider is a configured LLM provider endpoint (spec §3).
type Provider struct {
	ID           string
	DisplayName  string
	ProviderType ProviderType
	BaseURL      string
	APIKey       string
	CreatedAt    time.Time
}

// Future is a tracked futures symbol (spec §3).
type Future struct {
	ID          string
	Symbol      string
	DisplayName string
	SortOrder   int
}

// StrategyType enumerates buy/sell strategy slots (spec §3).
type StrategyType string

const (
	StrategyBuy  StrategyType = "buy"
	StrategySell StrategyType = "sell"
)

// Strategy is a named decision program, LLM-authored or user-supplied (spec §3).
type Strategy struct {
	ID          string
	Name        string
	Type        StrategyType
	ProgramText string
	Metadata    string
	CreatedAt   time.Time
}

// ModelStrategy is the (model, strategy, type) priority relation (spec §3).
type ModelStrategy struct {
	ID         string
	ModelID    string
	StrategyID string
	Type       StrategyType
	Priority   int
	CreatedAt  time.Time
}

// Side is a position/order side.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Portfolio is an open position row, keyed on (model, symbol, side) (spec §3).
type Portfolio struct {
	ModelID        string
	Symbol         string
	Side           Side
	Quantity       float64
	AvgEntryPrice  float64
	InitialMargin  float64
	Leverage       int
	UnrealizedPnL  float64
	EntryTime      time.Time
	UpdatedAt      time.Time
}

// TradeSide is the trade-level side vocabulary (spec §3).
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Signal is the decision-kind vocabulary shared by Trade, StrategyDecision, and AlgoOrder.
type Signal string

const (
	SignalBuyToLong     Signal = "buy_to_long"
	SignalBuyToShort    Signal = "buy_to_short"
	SignalClosePosition Signal = "close_position"
	SignalStopLoss      Signal = "stop_loss"
	SignalTakeProfit    Signal = "take_profit"
)

// Trade is a realized execution (spec §3).
type Trade struct {
	ID        string
	ModelID   string
	Symbol    string
	Side      TradeSide
	Signal    Signal
	Quantity  float64
	Price     float64
	Fee       float64
	PnL       *float64 // set only for closing trades
	Timestamp time.Time
}

// Conversation is an append-only LLM call record (spec §3).
type Conversation struct {
	ID         string
	ModelID    string
	Timestamp  time.Time
	UserPrompt string
	AIResponse string
	CoTTrace   string
}

// ModelPrompt is an append-only record of a rendered prompt sent to a model's LLM provider
// during strategy authoring (spec §3, owned by Model, cascades on delete). Distinct from
// Conversation, which logs the per-cycle worker's decision traffic: a ModelPrompt captures the
// prompt template as actually rendered and dispatched at generation time, for audit.
type ModelPrompt struct {
	ID           string
	ModelID      string
	Type         StrategyType
	PromptText   string
	ResponseText string
	CreatedAt    time.Time
}

// BinanceTradeLog is an append-only raw record of an exchange order acknowledgement (spec §3,
// owned by Model, cascades on delete): the venue's own response to a placed order, kept
// alongside the computed Trade row for audit and dispute resolution.
type BinanceTradeLog struct {
	ID              string
	ModelID         string
	Symbol          string
	ExternalOrderID string
	ClientOrderID   string
	Status          string
	RawPayload      string
	CreatedAt       time.Time
}

// DecisionStatus is the StrategyDecision state machine (spec §4.7).
type DecisionStatus string

const (
	DecisionTriggered DecisionStatus = "TRIGGERED"
	DecisionExecuted  DecisionStatus = "EXECUTED"
	DecisionRejected  DecisionStatus = "REJECTED"
)

// StrategyDecision is one emitted trading decision (spec §3).
type StrategyDecision struct {
	ID             string
	ModelID        string
	StrategyName   string
	StrategyType   StrategyType
	Signal         Signal
	Symbol         string
	Quantity       float64
	Leverage       int
	Price          float64
	StopPrice      *float64
	Justification  string
	Status         DecisionStatus
	CreatedAt      time.Time
	TradeID        *string
	ErrorReason    *string
}

// AlgoOrderStatus is the AlgoOrder state machine (spec §4.7).
type AlgoOrderStatus string

const (
	AlgoNew       AlgoOrderStatus = "NEW"
	AlgoCancelled AlgoOrderStatus = "CANCELLED"
	AlgoFilled    AlgoOrderStatus = "FILLED"
)

// AlgoType distinguishes stop-loss vs take-profit conditional orders.
type AlgoType string

const (
	AlgoTypeStop       AlgoType = "STOP"
	AlgoTypeTakeProfit AlgoType = "TAKE_PROFIT"
)

// AlgoOrder is a resting conditional order (spec §3, §4.7).
type AlgoOrder struct {
	ID                 string
	ExternalAlgoID     string
	ClientAlgoID       string
	Type               string
	AlgoType           AlgoType
	OrderType          string
	Symbol             string
	Side               TradeSide
	PositionSide       Side
	Quantity           float64
	TriggerPrice       float64
	LimitPrice         float64
	Status             AlgoOrderStatus
	ModelID            string
	StrategyDecisionID *string
	TradeID            *string
	ErrorReason        *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AccountValue is the latest upserted account snapshot keyed on (model, account alias) (spec §3).
type AccountValue struct {
	ModelID            string
	AccountAlias       string
	Balance            float64
	AvailableBalance   float64
	CrossWalletBalance float64
	CrossPnL           float64
	CrossUnPnL         float64
	Timestamp          time.Time
}

// AccountValueHistory is an append-only account snapshot (spec §3).
type AccountValueHistory struct {
	ID                 string
	ModelID            string
	AccountAlias       string
	Balance            float64
	AvailableBalance   float64
	CrossWalletBalance float64
	CrossUnPnL         float64
	TradeID            *string
	Timestamp          time.Time
}

// AccountValuesDaily is one row per model per UTC+8 trading day (spec §3, glossary).
type AccountValuesDaily struct {
	ID               string
	ModelID          string
	Balance          float64
	AvailableBalance float64
	CreatedAt        time.Time
}

// MarketTicker is the ingested 24h ticker row keyed on symbol (spec §3, §6).
type MarketTicker struct {
	Symbol             string
	OpenPrice          float64
	LastPrice          float64
	PriceChange        *float64
	PriceChangePercent *float64
	QuoteVolume        float64
	BaseVolume         float64
	EventTime          time.Time
	IngestionTime      time.Time
	UpdatePriceDate    *time.Time
	Side               string
}
