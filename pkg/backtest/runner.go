// Package backtest provides the Backtester: it replays the Consensus
// Detector's window-evaluation logic over historical signals and simulates
// a single trade per detected consensus event, threading capital
// sequentially by event time. Config-struct-plus-result-struct shape and
// zerolog texture match the rest of the engine; this is a
// one-trade-per-consensus-event replay rather than a full bar-by-bar
// portfolio simulator.
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/consensus-engine/internal/obsmetrics"
	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const opRunBacktest = "backtest: run"

// Defaults mirror RunBacktest's default trade simulation parameters.
const (
	DefaultTakeProfitPct = 5.0
	DefaultStopLossPct   = 3.0
	DefaultHoldingHours  = 24
)

// Params configures one backtest run.
type Params struct {
	RuleID          int64
	StartDate       time.Time
	EndDate         time.Time
	Tickers         []string // narrowed to the rule's ticker filter when empty
	TakeProfitPct   float64
	StopLossPct     float64
	HoldingHours    int
	InitialCapital  float64
	PositionSizePct float64
}

func (p Params) validate() error {
	if p.InitialCapital <= 0 {
		return types.NewError(types.KindValidationError, opRunBacktest, fmt.Errorf("initial_capital must be positive"))
	}
	if p.PositionSizePct <= 0 || p.PositionSizePct > 100 {
		return types.NewError(types.KindValidationError, opRunBacktest, fmt.Errorf("position_size_pct must be in (0, 100]"))
	}
	if p.TakeProfitPct <= 0 || p.StopLossPct <= 0 {
		return types.NewError(types.KindValidationError, opRunBacktest, fmt.Errorf("take_profit_pct and stop_loss_pct must be positive"))
	}
	if !p.StartDate.Before(p.EndDate) {
		return types.NewError(types.KindValidationError, opRunBacktest, fmt.Errorf("start_date must precede end_date"))
	}
	if p.HoldingHours <= 0 {
		return types.NewError(types.KindValidationError, opRunBacktest, fmt.Errorf("holding_hours must be positive"))
	}
	return nil
}

// SignalSource loads historical entry signals, satisfied by internal/dbx.
type SignalSource interface {
	SignalsInRange(ctx context.Context, tickers []string, start, end time.Time) ([]types.ParsedSignal, error)
}

// RuleSource loads the rule being backtested, satisfied by
// internal/rules.Store.
type RuleSource interface {
	ByID(ctx context.Context, id int64) (*types.ConsensusRule, error)
}

// WindowFinder replays window evaluation for one signal under one rule,
// satisfied by internal/consensus.Detector.
type WindowFinder interface {
	EvaluateWindow(ctx context.Context, signal types.ParsedSignal, rule types.ConsensusRule) ([]types.ParsedSignal, []string, error)
}

// CandleSource resolves a ticker to an instrument and loads its candle
// history, satisfied by internal/dbx.
type CandleSource interface {
	InstrumentByTicker(ctx context.Context, ticker string) (*types.Instrument, error)
	Candles(ctx context.Context, figi string, interval types.CandleInterval, from, to time.Time, limit int) ([]types.Candle, error)
}

// ResultStore persists the completed backtest, satisfied by internal/dbx.
type ResultStore interface {
	SaveConsensusBacktest(ctx context.Context, bt *types.ConsensusBacktest) (int64, error)
}

// Runner is the Backtester.
type Runner struct {
	signals SignalSource
	rules   RuleSource
	windows WindowFinder
	candles CandleSource
	results ResultStore
}

// NewRunner builds a Runner around its collaborators.
func NewRunner(signals SignalSource, rules RuleSource, windows WindowFinder, candles CandleSource, results ResultStore) *Runner {
	return &Runner{signals: signals, rules: rules, windows: windows, candles: candles, results: results}
}

type detectedEvent struct {
	trigger types.ParsedSignal
	members []types.ParsedSignal
}

// RunBacktest replays consensus detection across [StartDate, EndDate] for
// the given rule and simulates one trade per detected event, threading
// capital sequentially in event-time order.
func (r *Runner) RunBacktest(ctx context.Context, p Params) (*types.ConsensusBacktest, error) {
	start := time.Now()
	timer := prometheus.NewTimer(obsmetrics.BacktestDuration)
	defer timer.ObserveDuration()

	if err := p.validate(); err != nil {
		return nil, err
	}

	rule, err := r.rules.ByID(ctx, p.RuleID)
	if err != nil {
		return nil, err
	}

	tickers := p.Tickers
	if len(tickers) == 0 {
		tickers = rule.TickerFilter
	}

	signals, err := r.signals.SignalsInRange(ctx, tickers, p.StartDate, p.EndDate)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("signals", len(signals)).Int64("rule_id", p.RuleID).Msg("backtest replay loaded signals")

	processed := make(map[string]bool, len(signals))
	var events []detectedEvent
	for _, s := range signals {
		if processed[s.ID] {
			continue
		}
		members, _, err := r.windows.EvaluateWindow(ctx, s, *rule)
		if err != nil {
			return nil, err
		}
		if members == nil {
			continue
		}
		for _, m := range members {
			processed[m.ID] = true
		}
		events = append(events, detectedEvent{trigger: s, members: members})
	}
	log.Debug().Int("events", len(events)).Msg("backtest replay detected consensus events")

	capital := p.InitialCapital
	resultsByTicker := make(map[string]types.TickerBacktestResult, 8)
	var trades []types.ConsensusTradeDetail

	for _, ev := range events {
		trade, newCapital, ok, err := r.simulateTrade(ctx, ev, capital, p)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		capital = newCapital
		trades = append(trades, trade)
		obsmetrics.BacktestTrades.WithLabelValues(string(trade.ExitReason)).Inc()

		rollup := resultsByTicker[trade.Ticker]
		rollup.Count++
		if trade.PnLPct > 0 {
			rollup.Profitable++
		}
		rollup.TotalPnLPct += trade.PnLPct
		rollup.TotalProfitAbs += trade.PnLAbs
		resultsByTicker[trade.Ticker] = rollup
	}

	stats := computeStatistics(trades, p.InitialCapital, capital)

	bt := &types.ConsensusBacktest{
		RuleID:           p.RuleID,
		StartDate:        p.StartDate,
		EndDate:          p.EndDate,
		Tickers:          tickers,
		TotalTrades:      len(trades),
		WinRate:          stats.winRate,
		AvgProfitPct:     stats.avgProfitPct,
		AvgLossPct:       stats.avgLossPct,
		MaxProfitPct:     stats.maxProfitPct,
		MaxLossPct:       stats.maxLossPct,
		TotalReturn:      stats.totalReturn,
		TotalProfitAbs:   stats.totalProfitAbs,
		ResultsByTicker:  resultsByTicker,
		ConsensusDetails: trades,
		ExecutionTime:    time.Since(start),
		Status:           "completed",
	}

	id, err := r.results.SaveConsensusBacktest(ctx, bt)
	if err != nil {
		return nil, err
	}
	bt.ID = id

	log.Info().Int64("rule_id", p.RuleID).Int("trades", bt.TotalTrades).
		Float64("win_rate", bt.WinRate).Float64("total_return", bt.TotalReturn).
		Msg("backtest completed")
	return bt, nil
}

func floorShares(positionValue, entryPrice float64) float64 {
	return math.Floor(positionValue / entryPrice)
}
