package store

const schemaDDL = `
CREATE TABLE IF NOT EXISTS providers (
	id            TEXT PRIMARY KEY,
	display_name  TEXT NOT NULL,
	provider_type TEXT NOT NULL,
	base_url      TEXT NOT NULL,
	api_key       TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS models (
	id                  TEXT PRIMARY KEY,
	display_name        TEXT NOT NULL,
	provider_id         TEXT NOT NULL REFERENCES providers(id),
	provider_model_name TEXT NOT NULL,
	initial_capital     REAL NOT NULL,
	leverage            INTEGER NOT NULL DEFAULT 0,
	max_positions       INTEGER NOT NULL DEFAULT 1,
	api_credentials     TEXT NOT NULL DEFAULT '',
	auto_buy_enabled    INTEGER NOT NULL DEFAULT 0,
	auto_sell_enabled   INTEGER NOT NULL DEFAULT 0,
	auto_close_percent  REAL,
	base_volume_filter  REAL,
	batch_size          INTEGER NOT NULL DEFAULT 1,
	batch_interval_sec  INTEGER NOT NULL DEFAULT 60,
	batch_group_size    INTEGER NOT NULL DEFAULT 1,
	prompt_template     TEXT NOT NULL DEFAULT '',
	symbol_source       TEXT NOT NULL DEFAULT 'leaderboard',
	candidate_top_n     INTEGER NOT NULL DEFAULT 10,
	created_at          TIMESTAMP NOT NULL,
	updated_at          TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS futures (
	id           TEXT PRIMARY KEY,
	symbol       TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	sort_order   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS strategies (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	type         TEXT NOT NULL,
	program_text TEXT NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS model_strategies (
	id          TEXT PRIMARY KEY,
	model_id    TEXT NOT NULL REFERENCES models(id),
	strategy_id TEXT NOT NULL REFERENCES strategies(id),
	type        TEXT NOT NULL,
	priority    INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	UNIQUE(model_id, strategy_id, type)
);

CREATE TABLE IF NOT EXISTS portfolios (
	model_id        TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	quantity        REAL NOT NULL,
	avg_entry_price REAL NOT NULL,
	initial_margin  REAL NOT NULL,
	leverage        INTEGER NOT NULL,
	unrealized_pnl  REAL NOT NULL DEFAULT 0,
	entry_time      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL,
	PRIMARY KEY (model_id, symbol, side)
);

CREATE TABLE IF NOT EXISTS trades (
	id        TEXT PRIMARY KEY,
	model_id  TEXT NOT NULL,
	symbol    TEXT NOT NULL,
	side      TEXT NOT NULL,
	signal    TEXT NOT NULL,
	quantity  REAL NOT NULL,
	price     REAL NOT NULL,
	fee       REAL NOT NULL DEFAULT 0,
	pnl       REAL,
	timestamp TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_model_time ON trades(model_id, timestamp);

CREATE TABLE IF NOT EXISTS conversations (
	id          TEXT PRIMARY KEY,
	model_id    TEXT NOT NULL,
	timestamp   TIMESTAMP NOT NULL,
	user_prompt TEXT NOT NULL,
	ai_response TEXT NOT NULL,
	cot_trace   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_conversations_model_time ON conversations(model_id, timestamp);

CREATE TABLE IF NOT EXISTS model_prompts (
	id            TEXT PRIMARY KEY,
	model_id      TEXT NOT NULL,
	type          TEXT NOT NULL,
	prompt_text   TEXT NOT NULL,
	response_text TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_model_prompts_model_time ON model_prompts(model_id, created_at);

CREATE TABLE IF NOT EXISTS binance_trade_logs (
	id                TEXT PRIMARY KEY,
	model_id          TEXT NOT NULL,
	symbol            TEXT NOT NULL,
	external_order_id TEXT NOT NULL DEFAULT '',
	client_order_id   TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT '',
	raw_payload       TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_binance_trade_logs_model_time ON binance_trade_logs(model_id, created_at);

CREATE TABLE IF NOT EXISTS strategy_decisions (
	id             TEXT PRIMARY KEY,
	model_id       TEXT NOT NULL,
	strategy_name  TEXT NOT NULL,
	strategy_type  TEXT NOT NULL,
	signal         TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	quantity       REAL NOT NULL,
	leverage       INTEGER NOT NULL,
	price          REAL NOT NULL,
	stop_price     REAL,
	justification  TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	trade_id       TEXT,
	error_reason   TEXT
);
CREATE INDEX IF NOT EXISTS idx_decisions_model_time ON strategy_decisions(model_id, created_at);

CREATE TABLE IF NOT EXISTS algo_orders (
	id                   TEXT PRIMARY KEY,
	external_algo_id     TEXT NOT NULL DEFAULT '',
	client_algo_id       TEXT NOT NULL,
	type                 TEXT NOT NULL,
	algo_type            TEXT NOT NULL,
	order_type           TEXT NOT NULL,
	symbol               TEXT NOT NULL,
	side                 TEXT NOT NULL,
	position_side        TEXT NOT NULL,
	quantity             REAL NOT NULL,
	trigger_price        REAL NOT NULL,
	limit_price          REAL NOT NULL,
	status               TEXT NOT NULL,
	model_id             TEXT NOT NULL,
	strategy_decision_id TEXT,
	trade_id             TEXT,
	error_reason         TEXT,
	created_at           TIMESTAMP NOT NULL,
	updated_at           TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_algo_orders_model_symbol_side_status ON algo_orders(model_id, symbol, side, status);

CREATE TABLE IF NOT EXISTS account_values (
	model_id             TEXT NOT NULL,
	account_alias        TEXT NOT NULL,
	balance              REAL NOT NULL,
	available_balance    REAL NOT NULL,
	cross_wallet_balance REAL NOT NULL,
	cross_pnl            REAL NOT NULL DEFAULT 0,
	cross_un_pnl         REAL NOT NULL DEFAULT 0,
	timestamp            TIMESTAMP NOT NULL,
	PRIMARY KEY (model_id, account_alias)
);

CREATE TABLE IF NOT EXISTS account_value_history (
	id                   TEXT PRIMARY KEY,
	model_id             TEXT NOT NULL,
	account_alias        TEXT NOT NULL,
	balance              REAL NOT NULL,
	available_balance    REAL NOT NULL,
	cross_wallet_balance REAL NOT NULL,
	cross_un_pnl         REAL NOT NULL DEFAULT 0,
	trade_id             TEXT,
	timestamp            TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_avh_model_time ON account_value_history(model_id, timestamp);

CREATE TABLE IF NOT EXISTS account_values_daily (
	id                TEXT PRIMARY KEY,
	model_id          TEXT NOT NULL,
	balance           REAL NOT NULL,
	available_balance REAL NOT NULL,
	created_at        TIMESTAMP NOT NULL,
	UNIQUE(model_id, created_at)
);

CREATE TABLE IF NOT EXISTS market_tickers (
	symbol                TEXT PRIMARY KEY,
	open_price            REAL NOT NULL,
	last_price            REAL NOT NULL,
	price_change          REAL,
	price_change_percent  REAL,
	quote_volume          REAL NOT NULL DEFAULT 0,
	base_volume           REAL NOT NULL DEFAULT 0,
	event_time            TIMESTAMP NOT NULL,
	ingestion_time        TIMESTAMP NOT NULL,
	update_price_date     TIMESTAMP,
	side                  TEXT NOT NULL DEFAULT ''
);
`
