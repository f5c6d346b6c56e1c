package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/consensus-engine/internal/indicators"
	"github.com/ajitpratap0/consensus-engine/internal/types"
)

type fakeSignals struct {
	byID map[string]types.ParsedSignal
	all  []types.ParsedSignal
}

func newFakeSignals(signals ...types.ParsedSignal) *fakeSignals {
	f := &fakeSignals{byID: map[string]types.ParsedSignal{}}
	for _, s := range signals {
		f.byID[s.ID] = s
		f.all = append(f.all, s)
	}
	return f
}

func (f *fakeSignals) SignalByID(_ context.Context, id string) (*types.ParsedSignal, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, types.NewError(types.KindNotFound, "fake", nil)
	}
	return &s, nil
}

func (f *fakeSignals) SignalsInWindow(_ context.Context, ticker string, from, to time.Time) ([]types.ParsedSignal, error) {
	var out []types.ParsedSignal
	for _, s := range f.all {
		if s.Ticker != ticker {
			continue
		}
		if s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type fakeRules struct{ rules []types.ConsensusRule }

func (f *fakeRules) Active(context.Context) ([]types.ConsensusRule, error) { return f.rules, nil }

type fakeEvents struct {
	existing map[string]bool
	saved    *types.ConsensusEvent
	members  []types.ConsensusSignal
}

func newFakeEvents() *fakeEvents { return &fakeEvents{existing: map[string]bool{}} }

func (f *fakeEvents) ConsensusSignalExists(_ context.Context, signalID string) (bool, error) {
	return f.existing[signalID], nil
}

func (f *fakeEvents) SaveConsensusEvent(_ context.Context, event *types.ConsensusEvent, members []types.ConsensusSignal) error {
	f.saved = event
	f.members = members
	return nil
}

type fakeGate struct {
	eval       *indicators.Evaluation
	sufficient bool
	err        error
}

func (f *fakeGate) Evaluate(context.Context, string, time.Time) (*indicators.Evaluation, bool, error) {
	return f.eval, f.sufficient, f.err
}

func price(v float64) *float64 { return &v }

func TestCheckNewSignal_FiresOnTwoDistinctAuthors(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s1 := types.ParsedSignal{ID: "s1", Ticker: "ABC", Author: "A", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base, TargetPrice: price(100)}
	s2 := types.ParsedSignal{ID: "s2", Ticker: "ABC", Author: "B", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base.Add(2 * time.Minute), TargetPrice: price(101)}
	s3 := types.ParsedSignal{ID: "s3", Ticker: "ABC", Author: "B", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base.Add(4 * time.Minute), TargetPrice: price(102)}

	signals := newFakeSignals(s1, s2, s3)
	ruleSource := &fakeRules{rules: []types.ConsensusRule{{ID: 1, MinTraders: 2, WindowMinutes: 10, StrictConsensus: true}}}
	events := newFakeEvents()
	d := NewDetector(signals, ruleSource, events, &fakeGate{})

	event, err := d.CheckNewSignal(context.Background(), "s3")
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, 2, event.TradersCount)
	assert.Equal(t, types.DirectionLong, event.Direction)
	assert.ElementsMatch(t, []string{"A", "B"}, event.Metadata.Authors)
	assert.Equal(t, "s3", event.Metadata.TriggerSignalID)

	var initiator bool
	for _, m := range events.members {
		if m.SignalID == "s3" {
			initiator = m.IsInitiator
		}
	}
	assert.True(t, initiator)
}

func TestCheckNewSignal_MixedDirectionsRejectInStrictMode(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s1 := types.ParsedSignal{ID: "s1", Ticker: "XYZ", Author: "A", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base}
	s2 := types.ParsedSignal{ID: "s2", Ticker: "XYZ", Author: "B", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base.Add(2 * time.Minute)}
	s3 := types.ParsedSignal{ID: "s3", Ticker: "XYZ", Author: "C", Direction: types.DirectionShort, SignalType: types.SignalTypeEntry, Timestamp: base.Add(4 * time.Minute)}

	signals := newFakeSignals(s1, s2, s3)
	ruleSource := &fakeRules{rules: []types.ConsensusRule{{ID: 1, MinTraders: 2, WindowMinutes: 10, StrictConsensus: true}}}
	events := newFakeEvents()
	d := NewDetector(signals, ruleSource, events, &fakeGate{})

	event, err := d.CheckNewSignal(context.Background(), "s3")
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Nil(t, events.saved)
}

func TestCheckNewSignal_IndicatorGateRejectsThenPasses(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s1 := types.ParsedSignal{ID: "s1", Ticker: "ABC", Author: "A", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base}
	s2 := types.ParsedSignal{ID: "s2", Ticker: "ABC", Author: "B", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base.Add(2 * time.Minute)}
	s3 := types.ParsedSignal{ID: "s3", Ticker: "ABC", Author: "B", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base.Add(4 * time.Minute)}

	rsiMax := 50.0
	rule := types.ConsensusRule{
		ID: 1, MinTraders: 2, WindowMinutes: 10, StrictConsensus: true,
		IndicatorConditions: &types.IndicatorConditionSet{RSI: &types.RSICondition{Enabled: true, Max: &rsiMax}},
	}

	signals := newFakeSignals(s1, s2, s3)
	ruleSource := &fakeRules{rules: []types.ConsensusRule{rule}}

	rejecting := NewDetector(signals, ruleSource, newFakeEvents(), &fakeGate{sufficient: true, eval: &indicators.Evaluation{RSI: 72}})
	event, err := rejecting.CheckNewSignal(context.Background(), "s3")
	require.NoError(t, err)
	assert.Nil(t, event)

	passing := NewDetector(signals, ruleSource, newFakeEvents(), &fakeGate{sufficient: true, eval: &indicators.Evaluation{RSI: 45}})
	event, err = passing.CheckNewSignal(context.Background(), "s3")
	require.NoError(t, err)
	require.NotNil(t, event)
}

func TestCheckNewSignal_ExitSignalsNeverFireConsensus(t *testing.T) {
	s := types.ParsedSignal{ID: "s1", Ticker: "ABC", Author: "A", Direction: types.DirectionExit, SignalType: types.SignalTypeExit, Timestamp: time.Now()}
	d := NewDetector(newFakeSignals(s), &fakeRules{}, newFakeEvents(), &fakeGate{})

	event, err := d.CheckNewSignal(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestCheckNewSignal_AlreadyAbsorbedIsIdempotent(t *testing.T) {
	s := types.ParsedSignal{ID: "s1", Ticker: "ABC", Author: "A", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: time.Now()}
	events := newFakeEvents()
	events.existing["s1"] = true

	d := NewDetector(newFakeSignals(s), &fakeRules{}, events, &fakeGate{})
	event, err := d.CheckNewSignal(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestCheckNewSignal_NoActiveRulesUsesDefaults(t *testing.T) {
	base := time.Now()
	s1 := types.ParsedSignal{ID: "s1", Ticker: "ABC", Author: "A", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base}
	s2 := types.ParsedSignal{ID: "s2", Ticker: "ABC", Author: "B", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base.Add(3 * time.Minute)}

	d := NewDetector(newFakeSignals(s1, s2), &fakeRules{}, newFakeEvents(), &fakeGate{})
	event, err := d.CheckNewSignal(context.Background(), "s2")
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Nil(t, event.RuleID)
}

func TestConsensusStrength_ClampsAndAdjusts(t *testing.T) {
	assert.Equal(t, 50.0, consensusStrength(2, nil, 30*time.Minute))

	low := 0.5
	assert.Equal(t, 65.0, consensusStrength(2, &low, 30*time.Minute))

	tight := 0.5
	assert.Equal(t, 80.0, consensusStrength(2, &tight, 5*time.Minute))

	wide := 8.0
	assert.Equal(t, 40.0, consensusStrength(2, &wide, 30*time.Minute))

	assert.Equal(t, 100.0, consensusStrength(5, &low, 5*time.Minute))
}

func TestDominantDirection_PicksFirstEncounteredOnTie(t *testing.T) {
	base := time.Now()
	candidates := []types.ParsedSignal{
		{Author: "A", Direction: types.DirectionShort, Timestamp: base},
		{Author: "B", Direction: types.DirectionLong, Timestamp: base.Add(time.Minute)},
		{Author: "C", Direction: types.DirectionShort, Timestamp: base.Add(2 * time.Minute)},
		{Author: "D", Direction: types.DirectionLong, Timestamp: base.Add(3 * time.Minute)},
	}
	byDirection := groupByDirection(candidates)
	chosen := dominantDirection(candidates, byDirection)
	require.Len(t, chosen, 2)
	assert.Equal(t, types.DirectionShort, chosen[0].Direction)
}

type fakeNotifier struct {
	calls []types.ConsensusEvent
}

func (f *fakeNotifier) NotifyConsensus(_ context.Context, event types.ConsensusEvent, _ types.ConsensusRule) {
	f.calls = append(f.calls, event)
}

func TestCheckNewSignal_NotifiesOnDetection(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s1 := types.ParsedSignal{ID: "s1", Ticker: "ABC", Author: "A", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base, TargetPrice: price(100)}
	s2 := types.ParsedSignal{ID: "s2", Ticker: "ABC", Author: "B", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base.Add(2 * time.Minute), TargetPrice: price(101)}

	signals := newFakeSignals(s1, s2)
	ruleSource := &fakeRules{rules: []types.ConsensusRule{{ID: 1, MinTraders: 2, WindowMinutes: 10, StrictConsensus: true}}}
	events := newFakeEvents()
	notifier := &fakeNotifier{}
	d := NewDetector(signals, ruleSource, events, &fakeGate{}).WithNotifier(notifier)

	event, err := d.CheckNewSignal(context.Background(), "s2")
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, event.ID, notifier.calls[0].ID)
}

type fakePublisher struct {
	published []types.ConsensusEvent
	err       error
}

func (f *fakePublisher) Publish(event types.ConsensusEvent) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, event)
	return nil
}

func TestCheckNewSignal_PublishesOnDetection(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s1 := types.ParsedSignal{ID: "s1", Ticker: "ABC", Author: "A", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base, TargetPrice: price(100)}
	s2 := types.ParsedSignal{ID: "s2", Ticker: "ABC", Author: "B", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base.Add(2 * time.Minute), TargetPrice: price(101)}

	signals := newFakeSignals(s1, s2)
	ruleSource := &fakeRules{rules: []types.ConsensusRule{{ID: 1, MinTraders: 2, WindowMinutes: 10, StrictConsensus: true}}}
	events := newFakeEvents()
	publisher := &fakePublisher{}
	d := NewDetector(signals, ruleSource, events, &fakeGate{}).WithEventPublisher(publisher)

	event, err := d.CheckNewSignal(context.Background(), "s2")
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, event.ID, publisher.published[0].ID)
}

func TestCheckNewSignal_PublishFailureDoesNotFailDetection(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s1 := types.ParsedSignal{ID: "s1", Ticker: "ABC", Author: "A", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base, TargetPrice: price(100)}
	s2 := types.ParsedSignal{ID: "s2", Ticker: "ABC", Author: "B", Direction: types.DirectionLong, SignalType: types.SignalTypeEntry, Timestamp: base.Add(2 * time.Minute), TargetPrice: price(101)}

	signals := newFakeSignals(s1, s2)
	ruleSource := &fakeRules{rules: []types.ConsensusRule{{ID: 1, MinTraders: 2, WindowMinutes: 10, StrictConsensus: true}}}
	events := newFakeEvents()
	publisher := &fakePublisher{err: assertErr("nats down")}
	d := NewDetector(signals, ruleSource, events, &fakeGate{}).WithEventPublisher(publisher)

	event, err := d.CheckNewSignal(context.Background(), "s2")
	require.NoError(t, err)
	require.NotNil(t, event)
}

type assertErrType string

func (e assertErrType) Error() string { return string(e) }

func assertErr(msg string) error { return assertErrType(msg) }
