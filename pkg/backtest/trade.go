package backtest

import (
	"context"
	"time"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

// simulateTrade runs one consensus event through the TP/SL/timeout trade
// simulation and returns the trade detail, the capital after the trade,
// and whether a trade was actually opened. A false ok with a nil error
// means the event is skipped (no instrument, no entry candle, or a
// non-positive share count) rather than a failure.
func (r *Runner) simulateTrade(ctx context.Context, ev detectedEvent, capital float64, p Params) (types.ConsensusTradeDetail, float64, bool, error) {
	var zero types.ConsensusTradeDetail
	direction := ev.members[0].Direction
	ticker := ev.trigger.Ticker

	inst, err := r.candles.InstrumentByTicker(ctx, ticker)
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return zero, capital, false, nil
		}
		return zero, capital, false, err
	}

	horizon := time.Duration(p.HoldingHours) * time.Hour
	bars, err := r.candles.Candles(ctx, inst.FIGI, types.IntervalHour, ev.trigger.Timestamp, ev.trigger.Timestamp.Add(horizon), 0)
	if err != nil {
		return zero, capital, false, err
	}

	entryIdx := -1
	for i, c := range bars {
		if !c.Time.Before(ev.trigger.Timestamp) {
			entryIdx = i
			break
		}
	}
	if entryIdx == -1 {
		return zero, capital, false, nil
	}
	entryCandle := bars[entryIdx]
	entryPrice := entryCandle.Close

	positionValue := capital * p.PositionSizePct / 100
	shares := floorShares(positionValue, entryPrice)
	if shares <= 0 {
		return zero, capital, false, nil
	}

	var tp, sl float64
	if direction == types.DirectionLong {
		tp = entryPrice * (1 + p.TakeProfitPct/100)
		sl = entryPrice * (1 - p.StopLossPct/100)
	} else {
		tp = entryPrice * (1 - p.TakeProfitPct/100)
		sl = entryPrice * (1 + p.StopLossPct/100)
	}

	postEntry := bars[entryIdx+1:]
	if len(postEntry) == 0 {
		fallback, err := r.candles.Candles(ctx, inst.FIGI, types.IntervalHour, entryCandle.Time.Add(time.Nanosecond), entryCandle.Time.Add(horizon*10), 1)
		if err != nil {
			return zero, capital, false, err
		}
		if len(fallback) == 0 {
			return zero, capital, false, nil
		}
		return finishTrade(ev, direction, entryCandle, entryPrice, shares, fallback[0].Close, fallback[0].Time, types.ExitReasonTimeout, capital)
	}

	var exitPrice float64
	var exitTime time.Time
	var exitReason types.ExitReason
	deadline := entryCandle.Time.Add(horizon)

	for _, c := range postEntry {
		if c.Time.After(deadline) {
			break
		}
		if direction == types.DirectionLong {
			switch {
			case c.High >= tp:
				exitPrice, exitTime, exitReason = tp, c.Time, types.ExitReasonTakeProfit
			case c.Low <= sl:
				exitPrice, exitTime, exitReason = sl, c.Time, types.ExitReasonStopLoss
			default:
				exitPrice, exitTime, exitReason = c.Close, c.Time, types.ExitReasonTimeout
				continue
			}
		} else {
			switch {
			case c.Low <= tp:
				exitPrice, exitTime, exitReason = tp, c.Time, types.ExitReasonTakeProfit
			case c.High >= sl:
				exitPrice, exitTime, exitReason = sl, c.Time, types.ExitReasonStopLoss
			default:
				exitPrice, exitTime, exitReason = c.Close, c.Time, types.ExitReasonTimeout
				continue
			}
		}
		break
	}

	if exitTime.IsZero() {
		return zero, capital, false, nil
	}

	return finishTrade(ev, direction, entryCandle, entryPrice, shares, exitPrice, exitTime, exitReason, capital)
}

func finishTrade(ev detectedEvent, direction types.Direction, entryCandle types.Candle, entryPrice, shares, exitPrice float64, exitTime time.Time, exitReason types.ExitReason, capital float64) (types.ConsensusTradeDetail, float64, bool, error) {
	var pnlPct float64
	if direction == types.DirectionLong {
		pnlPct = (exitPrice - entryPrice) / entryPrice * 100
	} else {
		pnlPct = (entryPrice - exitPrice) / entryPrice * 100
	}
	pnlAbs := shares * entryPrice * pnlPct / 100
	capitalAfter := capital + pnlAbs

	trade := types.ConsensusTradeDetail{
		EventID:      ev.trigger.ID,
		Ticker:       ev.trigger.Ticker,
		Direction:    direction,
		EntryTime:    entryCandle.Time,
		EntryPrice:   entryPrice,
		ExitTime:     exitTime,
		ExitPrice:    exitPrice,
		Shares:       shares,
		PnLPct:       pnlPct,
		PnLAbs:       pnlAbs,
		ExitReason:   exitReason,
		CapitalAfter: capitalAfter,
	}
	return trade, capitalAfter, true, nil
}
