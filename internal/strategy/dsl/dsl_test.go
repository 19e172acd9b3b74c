package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpilot/internal/apperr"
)

func TestCompileRejectsMismatchedRecordKind(t *testing.T) {
	_, err := Compile(`for position if position.quantity > 0 emit close_position qty=position.quantity`, KindBuy)
	require.Error(t, err)
	assert.Equal(t, apperr.ValidationFailed, apperr.KindOf(err))
}

func TestCompileRejectsEmptyProgram(t *testing.T) {
	_, err := Compile("  # just a comment\n", KindBuy)
	require.Error(t, err)
}

func TestEvaluateBuySideEmitsMatchingCandidates(t *testing.T) {
	prog, err := Compile(`
		for candidate if candidate.price_change_percent > 5 and candidate.base_volume > 1000000
		emit buy_to_long qty=account.available_balance*0.1 leverage=10 stop_loss=candidate.last_price*0.95 reason="momentum"
	`, KindBuy)
	require.NoError(t, err)

	shared := map[string]any{"account.available_balance": 1000.0}
	records := []map[string]any{
		{"candidate.symbol": "BTCUSDT", "candidate.price_change_percent": 7.5, "candidate.base_volume": 2_000_000.0, "candidate.last_price": 50000.0},
		{"candidate.symbol": "ETHUSDT", "candidate.price_change_percent": 1.0, "candidate.base_volume": 2_000_000.0, "candidate.last_price": 3000.0},
	}

	decisions, err := prog.Evaluate(shared, records)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "BTCUSDT", decisions[0].Symbol)
	assert.Equal(t, "buy_to_long", decisions[0].Signal)
	assert.InDelta(t, 100.0, decisions[0].Quantity, 0.001)
	assert.InDelta(t, 47500.0, decisions[0].StopPrice, 0.001)
}

func TestEvaluateSellSideEmitsStopLoss(t *testing.T) {
	prog, err := Compile(`
		for position if position.unrealized_pnl_pct <= -5
		emit stop_loss qty=position.quantity reason="risk stop"
	`, KindSell)
	require.NoError(t, err)

	records := []map[string]any{
		{"position.symbol": "BTCUSDT", "position.quantity": 0.5, "position.unrealized_pnl_pct": -8.0},
		{"position.symbol": "ETHUSDT", "position.quantity": 2.0, "position.unrealized_pnl_pct": 3.0},
	}

	decisions, err := prog.Evaluate(map[string]any{}, records)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "BTCUSDT", decisions[0].Symbol)
	assert.Equal(t, "stop_loss", decisions[0].Signal)
}

func TestEvaluateUnknownFieldErrors(t *testing.T) {
	prog, err := Compile(`for candidate if candidate.nonexistent > 1 emit buy_to_long qty=1`, KindBuy)
	require.NoError(t, err)
	_, err = prog.Evaluate(map[string]any{}, []map[string]any{{"candidate.symbol": "BTCUSDT"}})
	require.Error(t, err)
}
