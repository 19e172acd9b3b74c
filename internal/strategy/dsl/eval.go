package dsl

import (
	"fmt"

	"perpilot/internal/apperr"
)

func (f fieldRef) eval(env map[string]any) (any, error) {
	v, ok := env[string(f)]
	if !ok {
		return nil, apperr.New(apperr.ValidationFailed, fmt.Sprintf("dsl: unknown field %q", string(f)))
	}
	return v, nil
}

func (u *unaryExpr) eval(env map[string]any) (any, error) {
	v, err := u.rhs.eval(env)
	if err != nil {
		return nil, err
	}
	switch u.op {
	case tokNot:
		b, err := toBool(v)
		if err != nil {
			return nil, err
		}
		return !b, nil
	case tokMinus:
		n, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return -n, nil
	default:
		return nil, apperr.New(apperr.Internal, "dsl: invalid unary operator")
	}
}

func (b *binaryExpr) eval(env map[string]any) (any, error) {
	lv, err := b.lhs.eval(env)
	if err != nil {
		return nil, err
	}

	// Short-circuit logical operators.
	if b.op == tokAnd || b.op == tokOr {
		lb, err := toBool(lv)
		if err != nil {
			return nil, err
		}
		if b.op == tokAnd && !lb {
			return false, nil
		}
		if b.op == tokOr && lb {
			return true, nil
		}
		rv, err := b.rhs.eval(env)
		if err != nil {
			return nil, err
		}
		return toBool(rv)
	}

	rv, err := b.rhs.eval(env)
	if err != nil {
		return nil, err
	}

	switch b.op {
	case tokEQ, tokNE:
		eq := valuesEqual(lv, rv)
		if b.op == tokNE {
			return !eq, nil
		}
		return eq, nil
	case tokGT, tokLT, tokGE, tokLE:
		ln, err := toFloat(lv)
		if err != nil {
			return nil, err
		}
		rn, err := toFloat(rv)
		if err != nil {
			return nil, err
		}
		switch b.op {
		case tokGT:
			return ln > rn, nil
		case tokLT:
			return ln < rn, nil
		case tokGE:
			return ln >= rn, nil
		default:
			return ln <= rn, nil
		}
	case tokPlus, tokMinus, tokStar, tokSlash:
		ln, err := toFloat(lv)
		if err != nil {
			return nil, err
		}
		rn, err := toFloat(rv)
		if err != nil {
			return nil, err
		}
		switch b.op {
		case tokPlus:
			return ln + rn, nil
		case tokMinus:
			return ln - rn, nil
		case tokStar:
			return ln * rn, nil
		default:
			if rn == 0 {
				return nil, apperr.New(apperr.ValidationFailed, "dsl: division by zero")
			}
			return ln / rn, nil
		}
	default:
		return nil, apperr.New(apperr.Internal, "dsl: invalid binary operator")
	}
}

func valuesEqual(a, b any) bool {
	if an, err := toFloat(a); err == nil {
		if bn, err := toFloat(b); err == nil {
			return an == bn
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	default:
		return 0, apperr.New(apperr.ValidationFailed, fmt.Sprintf("dsl: expected a number, got %v", v))
	}
}

func toBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, apperr.New(apperr.ValidationFailed, fmt.Sprintf("dsl: expected a boolean, got %v", v))
	}
	return b, nil
}

func toString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return fmt.Sprintf("%g", t), nil
	default:
		return "", apperr.New(apperr.ValidationFailed, fmt.Sprintf("dsl: expected a string, got %v", v))
	}
}
