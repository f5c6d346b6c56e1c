package consensus

import "time"

// consensusStrength scores a detected window starting from a 50-point
// baseline and adjusting for author count, entry-price dispersion, and how
// tightly the signals cluster in time, clamped to [0, 100].
func consensusStrength(authorCount int, spreadPct *float64, timeSpread time.Duration) float64 {
	strength := 50.0

	switch {
	case authorCount >= 5:
		strength += 20
	case authorCount >= 4:
		strength += 10
	}

	if spreadPct != nil {
		switch {
		case *spreadPct < 1:
			strength += 15
		case *spreadPct < 2:
			strength += 5
		case *spreadPct > 5:
			strength -= 10
		}
	}

	switch minutes := timeSpread.Minutes(); {
	case minutes < 10:
		strength += 15
	case minutes < 20:
		strength += 5
	}

	if strength < 0 {
		return 0
	}
	if strength > 100 {
		return 100
	}
	return strength
}

// priceStats computes avg/min/max over prices and the spread percentage
// (max-min)/avg*100, or nils if prices is empty or avg is zero.
func priceStats(prices []float64) (avg, min, max, spreadPct *float64) {
	if len(prices) == 0 {
		return nil, nil, nil, nil
	}
	sum, lo, hi := 0.0, prices[0], prices[0]
	for _, p := range prices {
		sum += p
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	a := sum / float64(len(prices))
	avg, min, max = &a, &lo, &hi
	if a > 0 {
		s := (hi - lo) / a * 100
		spreadPct = &s
	}
	return avg, min, max, spreadPct
}
