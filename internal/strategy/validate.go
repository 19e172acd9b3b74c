package strategy

import (
	"perpilot/internal/logger"
	"perpilot/internal/store"
)

var knownSignals = map[string]bool{
	string(store.SignalBuyToLong):     true,
	string(store.SignalBuyToShort):    true,
	string(store.SignalClosePosition): true,
	string(store.SignalStopLoss):      true,
	string(store.SignalTakeProfit):    true,
}

// ValidateDecisions applies spec §4.6's decision-validation rules in order: unknown signal is
// dropped, quantity <= 0 is dropped, leverage outside [1,125] is clamped to the model's default,
// and a symbol absent from knownSymbols is dropped. Dropped decisions are logged, not persisted.
func ValidateDecisions(decisions []Decision, model *store.Model, knownSymbols map[string]bool, log *logger.Logger) []Decision {
	out := make([]Decision, 0, len(decisions))
	for _, d := range decisions {
		if !knownSignals[d.Signal] {
			log.Warnf("dropping decision for %s: unknown signal %q", d.Symbol, d.Signal)
			continue
		}
		if d.Quantity <= 0 {
			log.Warnf("dropping decision for %s: quantity %.8f <= 0", d.Symbol, d.Quantity)
			continue
		}
		if d.Leverage < 1 || d.Leverage > 125 {
			clamped := model.Leverage
			if clamped < 1 || clamped > 125 {
				clamped = 1
			}
			log.Warnf("clamping leverage %d to model default %d for %s", d.Leverage, clamped, d.Symbol)
			d.Leverage = clamped
		}
		if knownSymbols != nil && !knownSymbols[d.Symbol] {
			log.Warnf("dropping decision for unrecognized symbol %q", d.Symbol)
			continue
		}
		out = append(out, d)
	}
	return out
}
