package orchestrator

import (
	"context"
	"time"

	"perpilot/internal/apperr"
	"perpilot/internal/store"
	"perpilot/internal/strategy"
)

// defaultAccountAlias is the single futures sub-account every model trades against. Multiple
// aliases per model are a future extension (spec leaves account routing open); one alias keeps
// the account_values lookup unambiguous today.
const defaultAccountAlias = "futures"

// runCycle runs one evaluation pass for (model, side): spec §4.5 steps 2-6 — build the
// candidate/position set, source the account snapshot, resolve and invoke strategies, persist
// every decision, then enqueue the resulting orders in batches.
func (o *Orchestrator) runCycle(ctx context.Context, model *store.Model, side store.StrategyType) error {
	account, err := o.loadAccountInfo(ctx, model)
	if err != nil {
		return err
	}

	var (
		candidates []strategy.CandidateRecord
		positions  []strategy.PositionRecord
	)
	if side == store.StrategyBuy {
		candidates, err = strategy.BuildCandidates(ctx, o.store, model)
	} else {
		positions, err = strategy.BuildPositions(ctx, o.store, model.ID)
	}
	if err != nil {
		return err
	}

	known := strategy.KnownSymbolSet(candidates, positions)
	decisions, failures, err := o.executor.Run(ctx, model, side, account, candidates, positions, known)
	if err != nil {
		return err
	}
	for _, f := range failures {
		o.log.Warnf("model %s strategy %s disabled for cycle: %v", model.ID, f.StrategyName, f.Err)
	}

	decisions = capDecisions(decisions, model.BatchSize)

	rows := make([]*store.StrategyDecision, 0, len(decisions))
	for _, d := range decisions {
		row, err := o.store.RecordDecision(ctx, &store.StrategyDecision{
			ModelID:       model.ID,
			StrategyName:  d.StrategyName,
			StrategyType:  store.StrategyType(d.StrategyType),
			Signal:        store.Signal(d.Signal),
			Symbol:        d.Symbol,
			Quantity:      d.Quantity,
			Leverage:      d.Leverage,
			Price:         d.Price,
			StopPrice:     d.StopPrice,
			Justification: d.Justification,
		})
		if err != nil {
			o.log.Warnf("model %s: record decision for %s failed: %v", model.ID, d.Symbol, err)
			continue
		}
		rows = append(rows, row)
	}

	return o.dispatchBatches(ctx, model, rows)
}

// loadAccountInfo sources AccountInfo from the latest recorded snapshot, falling back to the
// model's configured initial capital before any snapshot has been taken.
func (o *Orchestrator) loadAccountInfo(ctx context.Context, model *store.Model) (strategy.AccountInfo, error) {
	openCount, err := o.store.CountOpenPositions(ctx, model.ID)
	if err != nil {
		return strategy.AccountInfo{}, err
	}

	snapshot, err := o.store.GetAccountValue(ctx, model.ID, defaultAccountAlias)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return strategy.AccountInfo{
				TotalEquity:      model.InitialCapital,
				AvailableBalance: model.InitialCapital,
				PositionCount:    openCount,
			}, nil
		}
		return strategy.AccountInfo{}, err
	}

	return strategy.AccountInfo{
		TotalEquity:      snapshot.Balance,
		AvailableBalance: snapshot.AvailableBalance,
		PositionCount:    openCount,
	}, nil
}

// capDecisions enforces the model's per-cycle batch_size cap (spec §4.5 batching: "decisions are
// capped at batch_size").
func capDecisions(decisions []strategy.Decision, batchSize int) []strategy.Decision {
	if batchSize > 0 && len(decisions) > batchSize {
		return decisions[:batchSize]
	}
	return decisions
}

// dispatchBatches enqueues decisions in groups of batch_execution_group_size, pausing
// batch_execution_interval seconds between groups (spec §4.5: the same interval paces both the
// cycle ticker and the inter-group pause).
func (o *Orchestrator) dispatchBatches(ctx context.Context, model *store.Model, rows []*store.StrategyDecision) error {
	groupSize := model.BatchGroupSize
	if groupSize <= 0 {
		groupSize = len(rows)
	}
	if groupSize <= 0 {
		return nil
	}

	for start := 0; start < len(rows); start += groupSize {
		end := start + groupSize
		if end > len(rows) {
			end = len(rows)
		}

		for _, row := range rows[start:end] {
			if err := o.orders.Enqueue(ctx, model, row); err != nil {
				o.log.Warnf("model %s: enqueue order for decision %s failed: %v", model.ID, row.ID, err)
			}
		}

		if end >= len(rows) {
			break
		}
		if err := o.sleepBetweenGroups(ctx, model); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) sleepBetweenGroups(ctx context.Context, model *store.Model) error {
	interval := model.BatchIntervalSec
	if interval <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(interval) * time.Second)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
