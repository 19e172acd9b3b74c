package dsl

import "perpilot/internal/apperr"

// Decision is one decision emitted by a compiled program's evaluation. The Strategy Executor
// maps this into its own normalized decision shape and applies signal/quantity/leverage/symbol
// validation on top (spec §4.6).
type Decision struct {
	Symbol        string
	Signal        string
	Quantity      float64
	Leverage      float64
	Price         float64
	StopPrice     float64
	HasStopPrice  bool
	Justification string
}

// Evaluate runs every rule against every record, in program order: a rule whose kind matches the
// program (checked at Compile time) is tried against each record in records, and on a true
// condition emits one Decision. shared carries fields common to every record (account.*).
// records carries per-record fields (candidate.* or position.*) already flattened by the caller.
func (p *Program) Evaluate(shared map[string]any, records []map[string]any) ([]Decision, error) {
	var out []Decision
	for _, r := range p.rules {
		for _, rec := range records {
			env := mergeEnv(shared, rec)
			matched, err := r.cond.eval(env)
			if err != nil {
				return nil, err
			}
			ok, err := toBool(matched)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			d, err := buildDecision(r, env)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
	}
	return out, nil
}

func mergeEnv(shared map[string]any, rec map[string]any) map[string]any {
	env := make(map[string]any, len(shared)+len(rec))
	for k, v := range shared {
		env[k] = v
	}
	for k, v := range rec {
		env[k] = v
	}
	return env
}

func buildDecision(r rule, env map[string]any) (Decision, error) {
	d := Decision{Signal: r.signal}
	if sym, ok := env["candidate.symbol"]; ok {
		if s, err := toString(sym); err == nil {
			d.Symbol = s
		}
	} else if sym, ok := env["position.symbol"]; ok {
		if s, err := toString(sym); err == nil {
			d.Symbol = s
		}
	}

	for _, pr := range r.params {
		v, err := pr.val.eval(env)
		if err != nil {
			return Decision{}, err
		}
		switch pr.name {
		case "symbol":
			s, err := toString(v)
			if err != nil {
				return Decision{}, err
			}
			d.Symbol = s
		case "qty", "quantity":
			n, err := toFloat(v)
			if err != nil {
				return Decision{}, err
			}
			d.Quantity = n
		case "leverage":
			n, err := toFloat(v)
			if err != nil {
				return Decision{}, err
			}
			d.Leverage = n
		case "price":
			n, err := toFloat(v)
			if err != nil {
				return Decision{}, err
			}
			d.Price = n
		case "stop_loss", "take_profit", "stop_price":
			n, err := toFloat(v)
			if err != nil {
				return Decision{}, err
			}
			d.StopPrice = n
			d.HasStopPrice = true
		case "reason":
			s, err := toString(v)
			if err != nil {
				return Decision{}, err
			}
			d.Justification = s
		default:
			return Decision{}, apperr.New(apperr.ValidationFailed, "dsl: unknown emit parameter "+pr.name)
		}
	}
	return d, nil
}
