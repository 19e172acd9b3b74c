package dsl

import (
	"fmt"
	"strings"

	"perpilot/internal/apperr"
)

type parser struct {
	toks []token
	pos  int
}

// Kind is the strategy side a program was compiled for; it restricts which record kind a
// program's rules may iterate (spec §4.6: buy strategies see candidates, sell strategies see
// positions).
type Kind string

const (
	KindBuy  Kind = "buy"
	KindSell Kind = "sell"
)

// Compile parses source into a Program restricted to the record kind implied by strategyKind.
// Compilation failure here is what triggers the "strategy disabled for the cycle" path in the
// Strategy Executor (spec §4.6).
func Compile(source string, strategyKind Kind) (*Program, error) {
	toks, err := lex(source)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	prog := &Program{}
	for !p.at(tokEOF) {
		r, err := p.parseRule()
		if err != nil {
			return nil, err
		}
		wantKind := recordCandidate
		if strategyKind == KindSell {
			wantKind = recordPosition
		}
		if r.kind != wantKind {
			return nil, apperr.New(apperr.ValidationFailed,
				fmt.Sprintf("dsl: a %s strategy cannot contain a rule over %s records", strategyKind, recordKindName(r.kind)))
		}
		prog.rules = append(prog.rules, *r)
	}
	if len(prog.rules) == 0 {
		return nil, apperr.New(apperr.ValidationFailed, "dsl: program contains no rules")
	}
	return prog, nil
}

func recordKindName(k recordKind) string {
	if k == recordCandidate {
		return "candidate"
	}
	return "position"
}

func (p *parser) cur() token { return p.toks[p.pos] }

func (p *parser) at(k tokenKind) bool { return p.cur().kind == k }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expectIdent(text string) error {
	t := p.cur()
	if t.kind != tokIdent || !strings.EqualFold(t.text, text) {
		return apperr.New(apperr.ValidationFailed, fmt.Sprintf("dsl: expected %q, got %q at offset %d", text, t.text, t.pos))
	}
	p.advance()
	return nil
}

func (p *parser) parseRule() (*rule, error) {
	if err := p.expectIdent("for"); err != nil {
		return nil, err
	}
	kindTok := p.advance()
	if kindTok.kind != tokIdent {
		return nil, apperr.New(apperr.ValidationFailed, "dsl: expected 'candidate' or 'position' after 'for'")
	}
	var kind recordKind
	switch strings.ToLower(kindTok.text) {
	case "candidate":
		kind = recordCandidate
	case "position":
		kind = recordPosition
	default:
		return nil, apperr.New(apperr.ValidationFailed, fmt.Sprintf("dsl: unknown record kind %q", kindTok.text))
	}

	if err := p.expectIdent("if"); err != nil {
		return nil, err
	}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if err := p.expectIdent("emit"); err != nil {
		return nil, err
	}
	sigTok := p.advance()
	if sigTok.kind != tokIdent {
		return nil, apperr.New(apperr.ValidationFailed, "dsl: expected signal name after 'emit'")
	}

	var params []param
	for p.at(tokIdent) && !strings.EqualFold(p.cur().text, "for") {
		name := p.advance().text
		if !p.at(tokAssign) {
			return nil, apperr.New(apperr.ValidationFailed, fmt.Sprintf("dsl: expected '=' after parameter %q", name))
		}
		p.advance()
		val, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		params = append(params, param{name: strings.ToLower(name), val: val})
	}

	return &rule{kind: kind, cond: cond, signal: strings.ToLower(sigTok.text), params: params}, nil
}

func (p *parser) parseOr() (expr, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(tokOr) {
		p.advance()
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = &binaryExpr{op: tokOr, lhs: lhs, rhs: rhs}
	}
	return lhs, nil
}

func (p *parser) parseAnd() (expr, error) {
	lhs, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.at(tokAnd) {
		p.advance()
		rhs, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		lhs = &binaryExpr{op: tokAnd, lhs: lhs, rhs: rhs}
	}
	return lhs, nil
}

func (p *parser) parseNot() (expr, error) {
	if p.at(tokNot) {
		p.advance()
		rhs, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{op: tokNot, rhs: rhs}, nil
	}
	return p.parseCompare()
}

var compareOps = map[tokenKind]bool{
	tokGT: true, tokLT: true, tokGE: true, tokLE: true, tokEQ: true, tokNE: true,
}

func (p *parser) parseCompare() (expr, error) {
	lhs, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	if compareOps[p.cur().kind] {
		op := p.advance().kind
		rhs, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		return &binaryExpr{op: op, lhs: lhs, rhs: rhs}, nil
	}
	return lhs, nil
}

func (p *parser) parseAdd() (expr, error) {
	lhs, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.at(tokPlus) || p.at(tokMinus) {
		op := p.advance().kind
		rhs, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		lhs = &binaryExpr{op: op, lhs: lhs, rhs: rhs}
	}
	return lhs, nil
}

func (p *parser) parseMul() (expr, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(tokStar) || p.at(tokSlash) {
		op := p.advance().kind
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lhs = &binaryExpr{op: op, lhs: lhs, rhs: rhs}
	}
	return lhs, nil
}

func (p *parser) parseUnary() (expr, error) {
	if p.at(tokMinus) {
		p.advance()
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{op: tokMinus, rhs: rhs}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (expr, error) {
	t := p.cur()
	switch t.kind {
	case tokNumber:
		p.advance()
		return numberLit(t.num), nil
	case tokString:
		p.advance()
		return stringLit(t.text), nil
	case tokIdent:
		p.advance()
		return fieldRef(strings.ToLower(t.text)), nil
	case tokLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.at(tokRParen) {
			return nil, apperr.New(apperr.ValidationFailed, fmt.Sprintf("dsl: expected ')' at offset %d", p.cur().pos))
		}
		p.advance()
		return inner, nil
	default:
		return nil, apperr.New(apperr.ValidationFailed, fmt.Sprintf("dsl: unexpected token at offset %d", t.pos))
	}
}
