package backtest

import "github.com/ajitpratap0/consensus-engine/internal/types"

type statistics struct {
	winRate        float64
	avgProfitPct   float64
	avgLossPct     float64
	maxProfitPct   float64
	maxLossPct     float64
	totalReturn    float64
	totalProfitAbs float64
}

// computeStatistics aggregates win-rate, average/max profit and loss
// percentages, total absolute profit, and total return relative to
// initialCapital over trades.
func computeStatistics(trades []types.ConsensusTradeDetail, initialCapital, finalCapital float64) statistics {
	var stats statistics
	if len(trades) == 0 {
		return stats
	}

	var profitable int
	var profitSum, lossSum float64
	var profitCount, lossCount int

	for _, t := range trades {
		stats.totalProfitAbs += t.PnLAbs
		switch {
		case t.PnLPct > 0:
			profitable++
			profitCount++
			profitSum += t.PnLPct
			if t.PnLPct > stats.maxProfitPct {
				stats.maxProfitPct = t.PnLPct
			}
		case t.PnLPct < 0:
			lossCount++
			lossSum += t.PnLPct
			if t.PnLPct < stats.maxLossPct {
				stats.maxLossPct = t.PnLPct
			}
		}
	}

	stats.winRate = float64(profitable) / float64(len(trades)) * 100
	if profitCount > 0 {
		stats.avgProfitPct = profitSum / float64(profitCount)
	}
	if lossCount > 0 {
		stats.avgLossPct = lossSum / float64(lossCount)
	}
	if initialCapital > 0 {
		stats.totalReturn = (finalCapital - initialCapital) / initialCapital * 100
	}
	return stats
}
