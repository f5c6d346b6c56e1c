// Package obsmetrics exposes Prometheus counters and histograms for the
// engine's three pipelines: parsing, consensus detection, and backtesting.
// Metric shape (bounded-cardinality label sets, promauto registration at
// package init) follows internal/metrics/metrics.go.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome is the bounded label set for a pipeline stage's result, avoiding
// the unbounded-cardinality trap of labeling by raw error text.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// MessagesParsed counts parsed messages by outcome (success/failure).
	MessagesParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consensus_engine_messages_parsed_total",
		Help: "Total chat messages run through the parser, by outcome",
	}, []string{"outcome"})

	// ParseBatchDuration observes the wall-clock time of one
	// ParseAllUnprocessed call.
	ParseBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consensus_engine_parse_batch_duration_seconds",
		Help:    "Duration of one parsing service batch run",
		Buckets: prometheus.DefBuckets,
	})

	// ConsensusEventsDetected counts consensus events emitted, by ticker.
	ConsensusEventsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consensus_engine_consensus_events_total",
		Help: "Total consensus events detected, by ticker",
	}, []string{"ticker"})

	// ConsensusEvaluationDuration observes the wall-clock time of one
	// CheckNewSignal call.
	ConsensusEvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consensus_engine_consensus_evaluation_duration_seconds",
		Help:    "Duration of one Consensus Detector evaluation",
		Buckets: prometheus.DefBuckets,
	})

	// BacktestTrades counts simulated trades by exit reason
	// (take_profit/stop_loss/timeout).
	BacktestTrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consensus_engine_backtest_trades_total",
		Help: "Total simulated backtest trades, by exit reason",
	}, []string{"exit_reason"})

	// BacktestDuration observes the wall-clock time of one RunBacktest call.
	BacktestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consensus_engine_backtest_duration_seconds",
		Help:    "Duration of one backtest run",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// DatabaseCircuitBreakerState reports the Persistence Facade's breaker
	// state (0=closed, 1=half-open, 2=open), mirroring gobreaker.State's
	// own ordering.
	DatabaseCircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "consensus_engine_database_circuit_breaker_state",
		Help: "Persistence facade circuit breaker state (0=closed, 1=half-open, 2=open)",
	})
)
