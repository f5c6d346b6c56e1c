package consensus

import (
	"context"
	"time"

	"github.com/ajitpratap0/consensus-engine/internal/indicators"
	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const (
	candleLookbackHours    = 100
	minCandlesForIndicator = 30
)

// CandleSource resolves a ticker to its instrument and loads recent candle
// history, satisfied by internal/dbx.
type CandleSource interface {
	InstrumentByTicker(ctx context.Context, ticker string) (*types.Instrument, error)
	Candles(ctx context.Context, figi string, interval types.CandleInterval, from, to time.Time, limit int) ([]types.Candle, error)
}

// Evaluator computes indicator values over candle history, satisfied by
// internal/indicators.Service.
type Evaluator interface {
	Evaluate(candles []types.Candle) (*indicators.Evaluation, error)
}

// IndicatorGate resolves a ticker's latest indicator evaluation as of a
// point in time, for the Detector's rule predicates. When fewer than
// minCandlesForIndicator hourly candles exist, it reports insufficient
// data rather than an error — the Detector's documented policy is to treat
// that as every indicator predicate passing.
type IndicatorGate struct {
	candles   CandleSource
	evaluator Evaluator
}

// NewIndicatorGate builds an IndicatorGate around candles and evaluator.
func NewIndicatorGate(candles CandleSource, evaluator Evaluator) *IndicatorGate {
	return &IndicatorGate{candles: candles, evaluator: evaluator}
}

// Evaluate loads up to candleLookbackHours hourly candles for ticker ending
// at asOf and classifies them. The second return is false when there isn't
// enough history to evaluate indicators at all — callers must treat that
// as "predicates pass", not as a rejection.
func (g *IndicatorGate) Evaluate(ctx context.Context, ticker string, asOf time.Time) (*indicators.Evaluation, bool, error) {
	inst, err := g.candles.InstrumentByTicker(ctx, ticker)
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	from := asOf.Add(-time.Duration(candleLookbackHours) * time.Hour)
	bars, err := g.candles.Candles(ctx, inst.FIGI, types.IntervalHour, from, asOf, candleLookbackHours)
	if err != nil {
		return nil, false, err
	}
	if len(bars) < minCandlesForIndicator {
		return nil, false, nil
	}

	eval, err := g.evaluator.Evaluate(bars)
	if err != nil {
		if types.IsKind(err, types.KindInsufficientData) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return eval, true, nil
}
