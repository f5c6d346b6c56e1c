// Package consensus implements the Consensus Detector: for a newly parsed
// signal, it scans a symmetric time window for same-ticker signals by
// distinct authors in the same direction, gates on rule-level filters and
// indicator predicates, and emits a ConsensusEvent with a computed
// strength score, evaluating against a ruleset and persisting on match,
// logged with zerolog Debug/Info as it walks the ruleset.
package consensus

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/consensus-engine/internal/indicators"
	"github.com/ajitpratap0/consensus-engine/internal/obsmetrics"
	"github.com/ajitpratap0/consensus-engine/internal/rules"
	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const opCheckNewSignal = "consensus: check new signal"

// defaultWindowMinutes, defaultMinTraders, and defaultStrict are applied
// when no active rule exists, so the Detector still runs with a sane
// baseline policy.
const (
	defaultWindowMinutes = 10
	defaultMinTraders    = 2
	defaultStrict        = true
)

// SignalSource loads parsed signals, satisfied by internal/dbx.
type SignalSource interface {
	SignalByID(ctx context.Context, id string) (*types.ParsedSignal, error)
	SignalsInWindow(ctx context.Context, ticker string, from, to time.Time) ([]types.ParsedSignal, error)
}

// RuleSource loads the active, priority-ordered rule set, satisfied by
// internal/rules.Store.
type RuleSource interface {
	Active(ctx context.Context) ([]types.ConsensusRule, error)
}

// EventStore persists detected consensus events, satisfied by internal/dbx.
type EventStore interface {
	ConsensusSignalExists(ctx context.Context, signalID string) (bool, error)
	SaveConsensusEvent(ctx context.Context, event *types.ConsensusEvent, members []types.ConsensusSignal) error
}

// IndicatorSource evaluates a ticker's indicator state as of a point in
// time, satisfied by IndicatorGate.
type IndicatorSource interface {
	Evaluate(ctx context.Context, ticker string, asOf time.Time) (*indicators.Evaluation, bool, error)
}

// Notifier is told about every newly detected consensus event, satisfied
// by internal/notify.Dispatcher. Optional: a nil Notifier silently skips
// notification.
type Notifier interface {
	NotifyConsensus(ctx context.Context, event types.ConsensusEvent, rule types.ConsensusRule)
}

// EventPublisher broadcasts a detected event onto the event bus, satisfied
// by internal/eventbus.Publisher. Optional: a nil EventPublisher silently
// skips publishing.
type EventPublisher interface {
	Publish(event types.ConsensusEvent) error
}

// Detector is the Consensus Detector.
type Detector struct {
	signals   SignalSource
	rules     RuleSource
	events    EventStore
	gate      IndicatorSource
	notifier  Notifier
	publisher EventPublisher
}

// NewDetector builds a Detector around its collaborators.
func NewDetector(signals SignalSource, ruleSource RuleSource, events EventStore, gate IndicatorSource) *Detector {
	return &Detector{signals: signals, rules: ruleSource, events: events, gate: gate}
}

// WithNotifier attaches a Notifier that is told about every event
// CheckNewSignal detects, returning d for chaining at construction time.
func (d *Detector) WithNotifier(n Notifier) *Detector {
	d.notifier = n
	return d
}

// WithEventPublisher attaches an EventPublisher that is given every event
// CheckNewSignal detects, returning d for chaining at construction time.
func (d *Detector) WithEventPublisher(p EventPublisher) *Detector {
	d.publisher = p
	return d
}

// CheckNewSignal runs the Detector's full algorithm for a single signal: it
// loads the signal, walks active rules in priority order, and on the first
// rule whose window qualifies, persists and returns the new ConsensusEvent.
// Returns (nil, nil) when no consensus fires — that is a normal outcome,
// not an error.
func (d *Detector) CheckNewSignal(ctx context.Context, signalID string) (*types.ConsensusEvent, error) {
	timer := prometheus.NewTimer(obsmetrics.ConsensusEvaluationDuration)
	defer timer.ObserveDuration()

	signal, err := d.signals.SignalByID(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if signal.SignalType != types.SignalTypeEntry {
		return nil, nil
	}

	exists, err := d.events.ConsensusSignalExists(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if exists {
		log.Debug().Str("signal_id", signalID).Msg("signal already absorbed into a consensus event")
		return nil, nil
	}

	activeRules, err := d.rules.Active(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]ruleCandidate, 0, len(activeRules)+1)
	for i := range activeRules {
		r := activeRules[i]
		candidates = append(candidates, ruleCandidate{rule: r, ruleID: &r.ID})
	}
	if len(candidates) == 0 {
		candidates = append(candidates, ruleCandidate{rule: types.ConsensusRule{
			WindowMinutes:   defaultWindowMinutes,
			MinTraders:      defaultMinTraders,
			StrictConsensus: defaultStrict,
		}})
	}

	for _, c := range candidates {
		if !rules.MatchTicker(c.rule, signal.Ticker) {
			continue
		}
		if !rules.MatchDirection(c.rule, signal.Direction) {
			continue
		}

		members, authors, err := d.findConsensusWindow(ctx, *signal, c.rule)
		if err != nil {
			return nil, err
		}
		if members == nil {
			continue
		}

		event, err := d.createEvent(ctx, *signal, c.rule, c.ruleID, members, authors)
		if err != nil {
			return nil, err
		}
		log.Info().Str("event_id", event.ID).Str("ticker", event.Ticker).
			Int("traders", event.TradersCount).Float64("strength", event.ConsensusStrength).
			Msg("consensus event detected")
		obsmetrics.ConsensusEventsDetected.WithLabelValues(event.Ticker).Inc()
		if d.notifier != nil {
			d.notifier.NotifyConsensus(ctx, *event, c.rule)
		}
		if d.publisher != nil {
			if err := d.publisher.Publish(*event); err != nil {
				log.Warn().Err(err).Str("event_id", event.ID).Msg("consensus event publish failed")
			}
		}
		return event, nil
	}

	return nil, nil
}

type ruleCandidate struct {
	rule   types.ConsensusRule
	ruleID *int64
}

// EvaluateWindow runs the same window-evaluation algorithm CheckNewSignal
// uses, exported so the Backtester can replay detection over historical
// signals without going through persistence's idempotence check. A nil
// members slice means no window qualifies at signal under rule.
func (d *Detector) EvaluateWindow(ctx context.Context, signal types.ParsedSignal, rule types.ConsensusRule) ([]types.ParsedSignal, []string, error) {
	return d.findConsensusWindow(ctx, signal, rule)
}

// findConsensusWindow implements find_consensus_window: loads the
// candidate signal pool, requires a single (strict) or dominant
// (non-strict) direction with enough distinct authors, and gates on
// indicator predicates. A nil members slice means "no window here";
// callers must not treat that as an error.
func (d *Detector) findConsensusWindow(ctx context.Context, signal types.ParsedSignal, rule types.ConsensusRule) ([]types.ParsedSignal, []string, error) {
	half := time.Duration(rule.WindowMinutes) * time.Minute / 2
	from := signal.Timestamp.Add(-half)
	to := signal.Timestamp.Add(half)

	candidates, err := d.signals.SignalsInWindow(ctx, signal.Ticker, from, to)
	if err != nil {
		return nil, nil, err
	}
	if len(candidates) < rule.MinTraders {
		return nil, nil, nil
	}

	byDirection := groupByDirection(candidates)

	var chosen []types.ParsedSignal
	if rule.StrictConsensus {
		if len(byDirection) != 1 {
			return nil, nil, nil
		}
		for _, group := range byDirection {
			chosen = group
		}
	} else {
		chosen = dominantDirection(candidates, byDirection)
	}

	authors := distinctAuthors(chosen)
	if len(authors) < rule.MinTraders {
		return nil, nil, nil
	}

	if !indicatorConditionsEmpty(rule.IndicatorConditions) {
		pass, err := d.evaluateIndicatorConditions(ctx, signal.Ticker, signal.Timestamp, rule.IndicatorConditions)
		if err != nil {
			return nil, nil, err
		}
		if !pass {
			return nil, nil, nil
		}
	}

	return chosen, authors, nil
}

func (d *Detector) evaluateIndicatorConditions(ctx context.Context, ticker string, asOf time.Time, ic *types.IndicatorConditionSet) (bool, error) {
	eval, sufficient, err := d.gate.Evaluate(ctx, ticker, asOf)
	if err != nil {
		return false, err
	}
	if !sufficient {
		return true, nil
	}

	if ic.RSI != nil && ic.RSI.Enabled {
		if ic.RSI.Min != nil && eval.RSI < *ic.RSI.Min {
			return false, nil
		}
		if ic.RSI.Max != nil && eval.RSI > *ic.RSI.Max {
			return false, nil
		}
	}
	if ic.MACD != nil && ic.MACD.Enabled && eval.MACDSignal != ic.MACD.Signal {
		return false, nil
	}
	if ic.Bollinger != nil && ic.Bollinger.Enabled && eval.BollingerSignal != ic.Bollinger.Signal {
		return false, nil
	}
	if ic.OBV != nil && ic.OBV.Enabled && eval.OBVSignal != ic.OBV.Signal {
		return false, nil
	}
	return true, nil
}

// createEvent builds and persists a ConsensusEvent for a qualified window.
func (d *Detector) createEvent(ctx context.Context, trigger types.ParsedSignal, rule types.ConsensusRule, ruleID *int64, members []types.ParsedSignal, authors []string) (*types.ConsensusEvent, error) {
	sorted := append([]types.ParsedSignal(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	first := sorted[0].Timestamp
	last := sorted[len(sorted)-1].Timestamp

	var prices []float64
	for _, m := range sorted {
		if m.TargetPrice != nil {
			prices = append(prices, *m.TargetPrice)
		}
	}
	avg, minPrice, maxPrice, spreadPct := priceStats(prices)

	event := &types.ConsensusEvent{
		ID:                uuid.NewString(),
		Ticker:            trigger.Ticker,
		Direction:         sorted[0].Direction,
		TradersCount:      len(authors),
		WindowMinutes:     rule.WindowMinutes,
		RuleID:            ruleID,
		FirstSignalAt:     first,
		LastSignalAt:      last,
		DetectedAt:        time.Now().UTC(),
		AvgEntryPrice:     avg,
		MinEntryPrice:     minPrice,
		MaxEntryPrice:     maxPrice,
		PriceSpreadPct:    spreadPct,
		ConsensusStrength: consensusStrength(len(authors), spreadPct, last.Sub(first)),
		Status:            types.EventStatusActive,
		Metadata: types.ConsensusEventMetadata{
			Authors:         authors,
			TriggerSignalID: trigger.ID,
			TotalSignals:    len(sorted),
		},
	}

	members2 := make([]types.ConsensusSignal, len(sorted))
	for i, m := range sorted {
		members2[i] = types.ConsensusSignal{ConsensusID: event.ID, SignalID: m.ID, IsInitiator: m.ID == trigger.ID}
	}

	if err := d.events.SaveConsensusEvent(ctx, event, members2); err != nil {
		return nil, err
	}
	return event, nil
}
