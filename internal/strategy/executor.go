package strategy

import (
	"context"

	"perpilot/internal/logger"
	"perpilot/internal/store"
	"perpilot/internal/strategy/dsl"
)

// Failure records a strategy that could not run this cycle, per spec §4.6's "compilation
// failure ⇒ strategy disabled for the cycle and recorded".
type Failure struct {
	StrategyID   string
	StrategyName string
	Err          error
}

// Executor resolves a model's ordered strategies and runs each against the candidate/position
// set, merging their validated decisions (spec §4.5 step 3, §4.6).
type Executor struct {
	store *store.Store
	cache *ProgramCache
	log   *logger.Logger
}

func NewExecutor(st *store.Store) *Executor {
	return &Executor{store: st, cache: NewProgramCache(), log: logger.With("strategy")}
}

// Run resolves (modelID, side) -> ordered strategies, invokes each in priority order over the
// records not yet claimed by a higher-priority strategy, and returns the merged, validated
// decision set plus any strategies disabled this cycle.
func (e *Executor) Run(
	ctx context.Context,
	model *store.Model,
	side store.StrategyType,
	account AccountInfo,
	candidates []CandidateRecord,
	positions []PositionRecord,
	knownSymbols map[string]bool,
) ([]Decision, []Failure, error) {
	links, err := e.store.ListModelStrategies(ctx, model.ID, side)
	if err != nil {
		return nil, nil, err
	}

	kind := dsl.KindBuy
	if side == store.StrategySell {
		kind = dsl.KindSell
	}

	shared := accountEnv(account)
	remainingCandidates := candidateRecords(candidates)
	remainingPositions := positionRecords(positions)

	var decisions []Decision
	var failures []Failure
	decided := make(map[string]bool)

	for _, link := range links {
		strat, err := e.store.GetStrategy(ctx, link.StrategyID)
		if err != nil {
			failures = append(failures, Failure{StrategyID: link.StrategyID, Err: err})
			continue
		}

		prog, err := e.cache.Get(strat.ID, model.ID, strat.ProgramText, kind)
		if err != nil {
			e.log.Warnf("strategy %s disabled for this cycle: %v", strat.Name, err)
			failures = append(failures, Failure{StrategyID: strat.ID, StrategyName: strat.Name, Err: err})
			continue
		}

		var records []map[string]any
		if side == store.StrategyBuy {
			records = filterUndecided(remainingCandidates, decided)
		} else {
			records = filterUndecided(remainingPositions, decided)
		}

		rawDecisions, err := prog.Evaluate(shared, records)
		if err != nil {
			e.log.Warnf("strategy %s failed evaluation and is disabled for this cycle: %v", strat.Name, err)
			failures = append(failures, Failure{StrategyID: strat.ID, StrategyName: strat.Name, Err: err})
			continue
		}

		for _, rd := range rawDecisions {
			d := dslDecisionToDecision(rd, strat.Name, string(strat.Type))
			decisions = append(decisions, d)
			decided[d.Symbol] = true
		}
	}

	return ValidateDecisions(decisions, model, knownSymbols, e.log), failures, nil
}

func filterUndecided(records []map[string]any, decided map[string]bool) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		symbol, _ := r["candidate.symbol"].(string)
		if symbol == "" {
			symbol, _ = r["position.symbol"].(string)
		}
		if decided[symbol] {
			continue
		}
		out = append(out, r)
	}
	return out
}
