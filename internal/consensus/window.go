package consensus

import "github.com/ajitpratap0/consensus-engine/internal/types"

// groupByDirection buckets signals by direction, preserving each bucket's
// chronological order.
func groupByDirection(signals []types.ParsedSignal) map[types.Direction][]types.ParsedSignal {
	byDirection := make(map[types.Direction][]types.ParsedSignal, 4)
	for _, s := range signals {
		if s.Direction == "" {
			continue
		}
		byDirection[s.Direction] = append(byDirection[s.Direction], s)
	}
	return byDirection
}

// dominantDirection returns the largest direction group in byDirection,
// ties broken by the direction that appears first when scanning candidates
// in chronological order.
func dominantDirection(candidates []types.ParsedSignal, byDirection map[types.Direction][]types.ParsedSignal) []types.ParsedSignal {
	maxCount := 0
	for _, group := range byDirection {
		if len(group) > maxCount {
			maxCount = len(group)
		}
	}
	for _, s := range candidates {
		if group := byDirection[s.Direction]; len(group) == maxCount {
			return group
		}
	}
	return nil
}

// distinctAuthors returns the distinct authors in signals, in the order
// each first appears.
func distinctAuthors(signals []types.ParsedSignal) []string {
	seen := make(map[string]bool, len(signals))
	authors := make([]string, 0, len(signals))
	for _, s := range signals {
		if seen[s.Author] {
			continue
		}
		seen[s.Author] = true
		authors = append(authors, s.Author)
	}
	return authors
}

// indicatorConditionsEmpty reports whether ic has no enabled predicate, in
// which case the indicator gate is skipped entirely.
func indicatorConditionsEmpty(ic *types.IndicatorConditionSet) bool {
	if ic == nil {
		return true
	}
	if ic.RSI != nil && ic.RSI.Enabled {
		return false
	}
	if ic.MACD != nil && ic.MACD.Enabled {
		return false
	}
	if ic.Bollinger != nil && ic.Bollinger.Enabled {
		return false
	}
	if ic.OBV != nil && ic.OBV.Enabled {
		return false
	}
	return true
}
