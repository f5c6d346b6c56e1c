// Package signaltracker supplements the core detector/backtester with an
// in-memory SignalResult lifecycle: it resolves a signal's realized entry
// price against candle history, then tracks the resulting position for a
// stop-loss/take-profit/timeout exit. Ported in shape (not translated
// literally) from the original Python SignalMatcher, generalized from its
// Tinkoff-API fallback to this engine's CandleSource abstraction.
package signaltracker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

// trackingTimeoutHours mirrors SignalMatcher.tracking_timeout_hours: a
// position tracked this long without hitting TP/SL is force-closed as a
// timeout.
const trackingTimeoutHours = 24

// entrySearchWindow is how far past a signal's timestamp the tracker looks
// for a realized entry candle, mirroring _find_entry_price's one-hour
// search window.
const entrySearchWindow = time.Hour

// CandleSource resolves tickers to instruments and loads candle history,
// satisfied by internal/dbx.
type CandleSource interface {
	InstrumentByTicker(ctx context.Context, ticker string) (*types.Instrument, error)
	Candles(ctx context.Context, figi string, interval types.CandleInterval, from, to time.Time, limit int) ([]types.Candle, error)
}

// ResultStore is the subset of internal/dbx the Tracker reads untracked
// signals from and persists SignalResult rows through — the "external
// persisted owner" the type's doc comment allows. UpdateActivePositions
// evaluates every active row and closes it inside the same transaction that
// holds its row lock, so two Tracker instances can never both act on the
// same position.
type ResultStore interface {
	UntrackedSignals(ctx context.Context, since time.Time, limit int) ([]types.ParsedSignal, error)
	SaveSignalResult(ctx context.Context, r *types.SignalResult) (int64, error)
	UpdateActivePositions(ctx context.Context, evaluate func(ctx context.Context, r types.SignalResult) *types.ExitDecision) (closed int, evaluated int, err error)
}

// SignalLookup resolves a SignalResult's originating signal so
// UpdateActivePositions can re-derive direction and TP/SL levels, satisfied
// by internal/dbx.
type SignalLookup interface {
	SignalByID(ctx context.Context, id string) (*types.ParsedSignal, error)
}

// untrackedLookback bounds how far back ProcessUntrackedSignals searches
// for signals with no SignalResult yet, mirroring
// process_untracked_signals' 7-day window.
const untrackedLookback = 7 * 24 * time.Hour

// untrackedBatchSize mirrors process_untracked_signals' default limit.
const untrackedBatchSize = 50

// Tracker resolves entry prices and tracks open positions against
// candle history. ProcessUntrackedSignals/UpdateActivePositions persist
// through a ResultStore; FindEntryPrice/CheckExit are pure and usable
// without one.
type Tracker struct {
	candles CandleSource
	signals SignalLookup
	results ResultStore
}

// NewTracker builds a Tracker around candles.
func NewTracker(candles CandleSource) *Tracker {
	return &Tracker{candles: candles}
}

// WithResultStore attaches the persistence layer ProcessUntrackedSignals
// and UpdateActivePositions need, returning t for chaining at construction
// time.
func (t *Tracker) WithResultStore(signals SignalLookup, results ResultStore) *Tracker {
	t.signals = signals
	t.results = results
	return t
}

// FindEntryPrice resolves signal's realized entry price: the open of the
// first 5-minute candle at or after signal.Timestamp, within a one-hour
// search window. Returns (nil, nil) when no candle covers the window
// rather than an error — the caller decides whether that's worth logging.
func (t *Tracker) FindEntryPrice(ctx context.Context, signal types.ParsedSignal) (*types.PriceMatch, error) {
	inst, err := t.candles.InstrumentByTicker(ctx, signal.Ticker)
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}

	candles, err := t.candles.Candles(ctx, inst.FIGI, types.Interval5Min,
		signal.Timestamp, signal.Timestamp.Add(entrySearchWindow), 12)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		log.Warn().Str("ticker", signal.Ticker).Str("signal_id", signal.ID).
			Msg("signaltracker: no candle data to resolve entry price")
		return nil, nil
	}

	entry := candles[0]
	var slippagePct float64
	if signal.TargetPrice != nil && *signal.TargetPrice != 0 {
		slippagePct = (entry.Open - *signal.TargetPrice) / *signal.TargetPrice * 100
	}

	return &types.PriceMatch{
		SignalID:     signal.ID,
		SignalTime:   signal.Timestamp,
		TargetPrice:  signal.TargetPrice,
		ActualPrice:  entry.Open,
		PriceTime:    entry.Time,
		SlippagePct:  slippagePct,
		DelayMinutes: entry.Time.Sub(signal.Timestamp).Minutes(),
	}, nil
}

// Position is an open SignalResult being tracked for exit.
type Position struct {
	SignalID          string
	Ticker            string
	Direction         types.Direction
	EntryPrice        float64
	StopLoss          *float64
	TakeProfit        *float64
	TrackingStartedAt time.Time
}

// ExitCheck is the outcome of evaluating one Position against current
// candle data: either an exit (Reason set) or none.
type ExitCheck struct {
	Price  float64
	Time   time.Time
	Reason types.ExitReason
}

// CheckExit evaluates pos against the latest available candle, returning a
// non-nil ExitCheck if stop-loss, take-profit, or the tracking timeout
// fired. Mirrors _check_exit_conditions' stop-loss-checked-before-take-
// profit order, then _is_position_expired's timeout fallback.
func (t *Tracker) CheckExit(ctx context.Context, pos Position, asOf time.Time) (*ExitCheck, error) {
	inst, err := t.candles.InstrumentByTicker(ctx, pos.Ticker)
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}

	candles, err := t.candles.Candles(ctx, inst.FIGI, types.Interval5Min, asOf.Add(-25*time.Minute), asOf, 1)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		if t.isExpired(pos, asOf) {
			return nil, nil
		}
		return nil, nil
	}

	current := candles[len(candles)-1]

	if pos.StopLoss != nil {
		sl := *pos.StopLoss
		if (pos.Direction == types.DirectionLong && current.Close <= sl) ||
			(pos.Direction == types.DirectionShort && current.Close >= sl) {
			return &ExitCheck{Price: current.Close, Time: current.Time, Reason: types.ExitReasonStopLoss}, nil
		}
	}
	if pos.TakeProfit != nil {
		tp := *pos.TakeProfit
		if (pos.Direction == types.DirectionLong && current.Close >= tp) ||
			(pos.Direction == types.DirectionShort && current.Close <= tp) {
			return &ExitCheck{Price: current.Close, Time: current.Time, Reason: types.ExitReasonTakeProfit}, nil
		}
	}
	if t.isExpired(pos, asOf) {
		return &ExitCheck{Price: current.Close, Time: asOf, Reason: types.ExitReasonTimeout}, nil
	}
	return nil, nil
}

func (t *Tracker) isExpired(pos Position, asOf time.Time) bool {
	return asOf.Sub(pos.TrackingStartedAt) >= trackingTimeoutHours*time.Hour
}

// ProcessUntrackedSignals resolves an entry price for every entry signal
// from the last seven days with no SignalResult yet, and saves an active
// SignalResult for each one it can resolve. Mirrors
// process_untracked_signals, one signal's failure does not stop the batch.
func (t *Tracker) ProcessUntrackedSignals(ctx context.Context, now time.Time) (int, error) {
	signals, err := t.results.UntrackedSignals(ctx, now.Add(-untrackedLookback), untrackedBatchSize)
	if err != nil {
		return 0, err
	}

	tracked := 0
	for _, s := range signals {
		if s.Direction != types.DirectionLong && s.Direction != types.DirectionShort {
			continue
		}
		match, err := t.FindEntryPrice(ctx, s)
		if err != nil {
			log.Warn().Err(err).Str("signal_id", s.ID).Msg("signaltracker: entry price resolution failed")
			continue
		}
		if match == nil {
			continue
		}

		result := &types.SignalResult{
			SignalID:     s.ID,
			PlannedEntry: s.TargetPrice,
			ActualEntry:  &match.ActualPrice,
			EntryTime:    &match.PriceTime,
			Status:       types.ResultStatusActive,
		}
		if _, err := t.results.SaveSignalResult(ctx, result); err != nil {
			log.Warn().Err(err).Str("signal_id", s.ID).Msg("signaltracker: save signal result failed")
			continue
		}
		tracked++
	}
	log.Info().Int("tracked", tracked).Int("candidates", len(signals)).Msg("signaltracker: processed untracked signals")
	return tracked, nil
}

// UpdateActivePositions checks every active SignalResult for a stop-loss,
// take-profit, or timeout exit and closes it when one fires. Mirrors
// update_active_positions, one position's failure does not stop the batch.
// The read-evaluate-close sequence runs inside the ResultStore's own
// transaction, per row, so the FOR UPDATE SKIP LOCKED lock taken on read is
// still held when the row is closed.
func (t *Tracker) UpdateActivePositions(ctx context.Context, now time.Time) (int, error) {
	closed, evaluated, err := t.results.UpdateActivePositions(ctx, func(ctx context.Context, r types.SignalResult) *types.ExitDecision {
		return t.evaluateActivePosition(ctx, r, now)
	})
	if err != nil {
		return 0, err
	}
	log.Info().Int("closed", closed).Int("active", evaluated).Msg("signaltracker: updated active positions")
	return closed, nil
}

// evaluateActivePosition resolves r's originating signal, checks it for an
// exit, and returns the decision its caller should persist. Every failure
// is logged and treated as "leave the position open" rather than aborting
// the batch.
func (t *Tracker) evaluateActivePosition(ctx context.Context, r types.SignalResult, now time.Time) *types.ExitDecision {
	if r.ActualEntry == nil || r.EntryTime == nil {
		return nil
	}
	signal, err := t.signals.SignalByID(ctx, r.SignalID)
	if err != nil {
		log.Warn().Err(err).Str("signal_id", r.SignalID).Msg("signaltracker: signal lookup failed")
		return nil
	}

	pos := Position{
		SignalID:          r.SignalID,
		Ticker:            signal.Ticker,
		Direction:         signal.Direction,
		EntryPrice:        *r.ActualEntry,
		StopLoss:          signal.StopLoss,
		TakeProfit:        signal.TakeProfit,
		TrackingStartedAt: *r.EntryTime,
	}
	check, err := t.CheckExit(ctx, pos, now)
	if err != nil {
		log.Warn().Err(err).Str("signal_id", r.SignalID).Msg("signaltracker: exit check failed")
		return nil
	}
	if check == nil {
		return nil
	}
	return &types.ExitDecision{Price: check.Price, Time: check.Time, Reason: check.Reason}
}
