package store

import (
	"context"

	"perpilot/internal/apperr"
)

// LiquidationCandidate pairs an open position with the owning model's configured auto-close
// threshold, the Auto-Liquidation Loop's scan unit (spec §4.8).
type LiquidationCandidate struct {
	Portfolio        *Portfolio
	AutoClosePercent float64
}

// ListLiquidationCandidates returns every open position whose model has auto-liquidation
// enabled (spec §4.8: "portfolio p JOIN model m where m.auto_close_percent > 0 and
// p.quantity != 0").
func (s *Store) ListLiquidationCandidates(ctx context.Context) ([]*LiquidationCandidate, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.model_id, p.symbol, p.side, p.quantity, p.avg_entry_price, p.initial_margin,
			p.leverage, p.unrealized_pnl, p.entry_time, p.updated_at, m.auto_close_percent
		FROM portfolios p
		JOIN models m ON m.id = p.model_id
		WHERE m.auto_close_percent IS NOT NULL AND m.auto_close_percent > 0 AND p.quantity != 0`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list liquidation candidates", err)
	}
	defer rows.Close()

	var out []*LiquidationCandidate
	for rows.Next() {
		p := &Portfolio{}
		var side string
		var autoClose float64
		if err := rows.Scan(&p.ModelID, &p.Symbol, &side, &p.Quantity, &p.AvgEntryPrice,
			&p.InitialMargin, &p.Leverage, &p.UnrealizedPnL, &p.EntryTime, &p.UpdatedAt,
			&autoClose); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan liquidation candidate row", err)
		}
		p.Side = Side(side)
		out = append(out, &LiquidationCandidate{Portfolio: p, AutoClosePercent: autoClose})
	}
	return out, rows.Err()
}
