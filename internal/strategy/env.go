package strategy

import "perpilot/internal/strategy/dsl"

func accountEnv(a AccountInfo) map[string]any {
	return map[string]any{
		"account.total_equity":      a.TotalEquity,
		"account.available_balance": a.AvailableBalance,
		"account.position_count":    float64(a.PositionCount),
	}
}

func candidateRecords(candidates []CandidateRecord) []map[string]any {
	out := make([]map[string]any, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, map[string]any{
			"candidate.symbol":               c.Symbol,
			"candidate.last_price":           c.LastPrice,
			"candidate.open_price":           c.OpenPrice,
			"candidate.price_change_percent": c.PriceChangePercent,
			"candidate.base_volume":          c.BaseVolume,
			"candidate.quote_volume":         c.QuoteVolume,
		})
	}
	return out
}

func positionRecords(positions []PositionRecord) []map[string]any {
	out := make([]map[string]any, 0, len(positions))
	for _, p := range positions {
		side := 0.0
		if p.Side == "short" || p.Side == "SHORT" {
			side = 1.0
		}
		out = append(out, map[string]any{
			"position.symbol":              p.Symbol,
			"position.side":                side,
			"position.entry_price":         p.EntryPrice,
			"position.mark_price":          p.MarkPrice,
			"position.quantity":            p.Quantity,
			"position.leverage":            float64(p.Leverage),
			"position.unrealized_pnl":      p.UnrealizedPnL,
			"position.unrealized_pnl_pct":  p.UnrealizedPnLPct,
		})
	}
	return out
}

func dslDecisionToDecision(d dsl.Decision, strategyName string, strategyType string) Decision {
	out := Decision{
		StrategyName:  strategyName,
		StrategyType:  strategyType,
		Symbol:        d.Symbol,
		Signal:        d.Signal,
		Quantity:      d.Quantity,
		Leverage:      int(d.Leverage),
		Price:         d.Price,
		Justification: d.Justification,
	}
	if d.HasStopPrice {
		sp := d.StopPrice
		out.StopPrice = &sp
	}
	return out
}
