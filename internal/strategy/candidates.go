package strategy

import (
	"context"

	"perpilot/internal/store"
)

// BuildCandidates resolves the buy-side candidate set for a model (spec §4.6).
func BuildCandidates(ctx context.Context, st *store.Store, model *store.Model) ([]CandidateRecord, error) {
	switch model.SymbolSource {
	case store.SymbolSourceFuture:
		return candidatesFromFutures(ctx, st)
	default:
		return candidatesFromLeaderboard(ctx, st, model)
	}
}

func candidatesFromLeaderboard(ctx context.Context, st *store.Store, model *store.Model) ([]CandidateRecord, error) {
	topN := model.CandidateTopN
	if topN <= 0 {
		topN = 10
	}
	tickers, err := st.ListTopGainers(ctx, topN, model.BaseVolumeFilter)
	if err != nil {
		return nil, err
	}
	out := make([]CandidateRecord, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, tickerToCandidate(t))
	}
	return out, nil
}

func candidatesFromFutures(ctx context.Context, st *store.Store) ([]CandidateRecord, error) {
	futures, err := st.ListFutures(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CandidateRecord, 0, len(futures))
	for _, f := range futures {
		ticker, err := st.GetMarketTicker(ctx, f.Symbol)
		if err != nil {
			// A tracked future without a ticker yet (not ingested) contributes no candidate.
			continue
		}
		out = append(out, tickerToCandidate(ticker))
	}
	return out, nil
}

func tickerToCandidate(t *store.MarketTicker) CandidateRecord {
	c := CandidateRecord{
		Symbol:      t.Symbol,
		LastPrice:   t.LastPrice,
		OpenPrice:   t.OpenPrice,
		BaseVolume:  t.BaseVolume,
		QuoteVolume: t.QuoteVolume,
	}
	if t.PriceChangePercent != nil {
		c.PriceChangePercent = *t.PriceChangePercent
	}
	return c
}

// BuildPositions resolves the sell-side position set for a model (spec §4.6): every open
// portfolio row, enriched with the latest mark price where a ticker is available.
func BuildPositions(ctx context.Context, st *store.Store, modelID string) ([]PositionRecord, error) {
	positions, err := st.ListOpenPositions(ctx, modelID)
	if err != nil {
		return nil, err
	}
	out := make([]PositionRecord, 0, len(positions))
	for _, p := range positions {
		mark := p.AvgEntryPrice
		if t, err := st.GetMarketTicker(ctx, p.Symbol); err == nil {
			mark = t.LastPrice
		}
		out = append(out, positionToRecord(p, mark))
	}
	return out, nil
}

func positionToRecord(p *store.Portfolio, markPrice float64) PositionRecord {
	pr := PositionRecord{
		Symbol:        p.Symbol,
		Side:          string(p.Side),
		EntryPrice:    p.AvgEntryPrice,
		MarkPrice:     markPrice,
		Quantity:      p.Quantity,
		Leverage:      p.Leverage,
		UnrealizedPnL: p.UnrealizedPnL,
	}
	if p.InitialMargin > 0 {
		pr.UnrealizedPnLPct = p.UnrealizedPnL / p.InitialMargin * 100
	}
	return pr
}
