package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTradeClassifiesWinLossFlat(t *testing.T) {
	TradesTotal.Reset()
	TradeRealizedPnL.Reset()

	RecordTrade("m1", 10)
	RecordTrade("m1", -5)
	RecordTrade("m1", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(TradesTotal.WithLabelValues("m1", "win")))
	assert.Equal(t, 1.0, testutil.ToFloat64(TradesTotal.WithLabelValues("m1", "loss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(TradesTotal.WithLabelValues("m1", "flat")))
	assert.Equal(t, 5.0, testutil.ToFloat64(TradeRealizedPnL.WithLabelValues("m1")))
}

func TestSetWorkerRunningTogglesGauge(t *testing.T) {
	ModelRunning.Reset()

	SetWorkerRunning("m1", "buy", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(ModelRunning.WithLabelValues("m1", "buy")))

	SetWorkerRunning("m1", "buy", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(ModelRunning.WithLabelValues("m1", "buy")))
}

func TestRecordAICallIncrementsErrorsOnlyOnFailure(t *testing.T) {
	AICallsTotal.Reset()
	AIErrorsTotal.Reset()

	RecordAICall("m1", "openai", 1.5, false)
	RecordAICall("m1", "openai", 2.0, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(AICallsTotal.WithLabelValues("m1", "openai")))
	assert.Equal(t, 1.0, testutil.ToFloat64(AIErrorsTotal.WithLabelValues("m1", "openai")))
}
