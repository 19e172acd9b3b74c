// Package klinestream is the Kline Stream Manager: it maintains one subscription per
// (symbol, interval) pair, health-checks each connection, and forces a rotation before the
// upstream venue's own hard connection-age limit, following the reconnect-supervision shape of
// the teacher's long-lived collector goroutines in trader/auto_trader.go's monitor loops.
package klinestream

import (
	"context"
	"sync"
	"time"

	"perpilot/internal/exchange"
	"perpilot/internal/logger"
	"perpilot/internal/store"
)

const (
	defaultHealthCheckInterval = 10 * time.Second
	maxConnectionAge           = 25 * time.Minute // rotate before the exchange's 30-minute connection cap
	staleAfter                 = 2 * time.Minute
)

// Subscription is a single (symbol, interval) kline stream under management.
type subscription struct {
	symbol    string
	interval  string
	stop      func()
	lastTick  time.Time
	startedAt time.Time
	mu        sync.Mutex
}

// Manager owns the set of active kline subscriptions.
type Manager struct {
	st     *store.Store
	client exchange.Client
	log    *logger.Logger

	mu   sync.Mutex
	subs map[string]*subscription
}

func key(symbol, interval string) string { return symbol + "|" + interval }

// New builds a Manager. Call Run to start the health-check loop.
func New(st *store.Store, client exchange.Client) *Manager {
	return &Manager{
		st:     st,
		client: client,
		log:    logger.With("klinestream"),
		subs:   make(map[string]*subscription),
	}
}

// Subscribe opens a kline stream for (symbol, interval) if one is not already active.
func (m *Manager) Subscribe(ctx context.Context, symbol, interval string) error {
	m.mu.Lock()
	if _, ok := m.subs[key(symbol, interval)]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	return m.connect(ctx, symbol, interval)
}

func (m *Manager) connect(ctx context.Context, symbol, interval string) error {
	sub := &subscription{symbol: symbol, interval: interval, startedAt: time.Now()}

	stop, err := m.client.SubscribeKline(ctx, symbol, interval, func(k exchange.Kline) {
		sub.mu.Lock()
		sub.lastTick = time.Now()
		sub.mu.Unlock()
		if !k.Closed {
			return
		}
		change := k.Close - k.Open
		pct := 0.0
		if k.Open != 0 {
			pct = change / k.Open * 100
		}
		if err := m.st.UpsertMarketTicker(context.Background(), &store.MarketTicker{
			Symbol:             symbol,
			OpenPrice:          k.Open,
			LastPrice:          k.Close,
			PriceChange:        &change,
			PriceChangePercent: &pct,
			BaseVolume:         k.Volume,
			EventTime:          k.CloseTime,
		}, false); err != nil {
			m.log.Errorf("persist closed kline for %s/%s: %v", symbol, interval, err)
		}
	})
	if err != nil {
		return err
	}
	sub.stop = stop
	sub.lastTick = time.Now()

	m.mu.Lock()
	m.subs[key(symbol, interval)] = sub
	m.mu.Unlock()
	return nil
}

// Unsubscribe tears down a (symbol, interval) stream.
func (m *Manager) Unsubscribe(symbol, interval string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(symbol, interval)
	if sub, ok := m.subs[k]; ok {
		sub.stop()
		delete(m.subs, k)
	}
}

// Run health-checks every active subscription on healthCheckInterval (use 0 for the default),
// reconnecting any stream that has gone stale or exceeded its maximum connection age, until ctx
// is cancelled.
func (m *Manager) Run(ctx context.Context, healthCheckInterval time.Duration) {
	if healthCheckInterval <= 0 {
		healthCheckInterval = defaultHealthCheckInterval
	}
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.stopAll()
			return
		case <-ticker.C:
			m.checkHealth(ctx)
		}
	}
}

func (m *Manager) checkHealth(ctx context.Context) {
	m.mu.Lock()
	stale := make([]*subscription, 0)
	for _, sub := range m.subs {
		sub.mu.Lock()
		age := time.Since(sub.startedAt)
		sinceTick := time.Since(sub.lastTick)
		sub.mu.Unlock()
		if sinceTick > staleAfter || age > maxConnectionAge {
			stale = append(stale, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range stale {
		m.log.Warnf("rotating kline stream %s/%s (age=%s)", sub.symbol, sub.interval, time.Since(sub.startedAt))
		m.Unsubscribe(sub.symbol, sub.interval)
		if err := m.connect(ctx, sub.symbol, sub.interval); err != nil {
			m.log.Errorf("reconnect %s/%s failed: %v", sub.symbol, sub.interval, err)
		}
	}
}

func (m *Manager) stopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, sub := range m.subs {
		sub.stop()
		delete(m.subs, k)
	}
}
