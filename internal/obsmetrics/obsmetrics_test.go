package obsmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMessagesParsed_IncrementsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(MessagesParsed.WithLabelValues(OutcomeSuccess))
	MessagesParsed.WithLabelValues(OutcomeSuccess).Inc()
	after := testutil.ToFloat64(MessagesParsed.WithLabelValues(OutcomeSuccess))
	assert.Equal(t, before+1, after)
}

func TestBacktestTrades_IncrementsByExitReason(t *testing.T) {
	before := testutil.ToFloat64(BacktestTrades.WithLabelValues("take_profit"))
	BacktestTrades.WithLabelValues("take_profit").Inc()
	after := testutil.ToFloat64(BacktestTrades.WithLabelValues("take_profit"))
	assert.Equal(t, before+1, after)
}
