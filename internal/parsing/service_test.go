package parsing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/consensus-engine/internal/parser"
	"github.com/ajitpratap0/consensus-engine/internal/types"
)

type fakeMessages struct {
	pending        []types.RawMessage
	marked         map[int64]bool
	savedSignals   []*types.ParsedSignal
	saveErr        error
	deletedSignals bool
	deletedResults bool
	resetProcessed bool
}

func (f *fakeMessages) UnparsedMessages(_ context.Context, limit int) ([]types.RawMessage, error) {
	if len(f.pending) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(f.pending) {
		n = len(f.pending)
	}
	batch := f.pending[:n]
	f.pending = f.pending[n:]
	return batch, nil
}

func (f *fakeMessages) MarkMessageProcessed(_ context.Context, id int64, success bool) error {
	if f.marked == nil {
		f.marked = map[int64]bool{}
	}
	f.marked[id] = success
	return nil
}

func (f *fakeMessages) SaveSignal(_ context.Context, s *types.ParsedSignal) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	s.ID = fmt.Sprintf("sig-%d", s.RawMessageID)
	f.savedSignals = append(f.savedSignals, s)
	return s.ID, nil
}

func (f *fakeMessages) DeleteAllSignals(context.Context) error       { f.deletedSignals = true; return nil }
func (f *fakeMessages) DeleteAllSignalResults(context.Context) error { f.deletedResults = true; return nil }
func (f *fakeMessages) ResetMessageProcessed(context.Context) error  { f.resetProcessed = true; return nil }

type scriptedParser struct {
	results map[int64]parser.Result
	errs    map[int64]error
}

func (p *scriptedParser) Parse(_ context.Context, in parser.Input) (parser.Result, error) {
	if err, ok := p.errs[in.ID]; ok {
		return parser.Result{}, err
	}
	return p.results[in.ID], nil
}

type countingDetector struct {
	calls []string
	err   error
}

func (d *countingDetector) CheckNewSignal(_ context.Context, signalID string) (*types.ConsensusEvent, error) {
	d.calls = append(d.calls, signalID)
	return nil, d.err
}

func TestParseAllUnprocessed_ClassifiesEachOutcome(t *testing.T) {
	now := time.Now()
	messages := &fakeMessages{pending: []types.RawMessage{
		{ID: 1, Text: "long ABC 100"},
		{ID: 2, Text: "good morning"},
		{ID: 3, Text: "long XYZ 50"},
	}}
	p := &scriptedParser{
		results: map[int64]parser.Result{
			1: {Success: true, Signal: &types.ParsedSignal{Ticker: "ABC", Timestamp: now}},
			2: {Success: false, Error: "Not a trading message"},
		},
		errs: map[int64]error{3: assertErr("pattern store unavailable")},
	}
	detector := &countingDetector{}
	svc := NewService(messages, p, detector)

	stats, err := svc.ParseAllUnprocessed(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalProcessed)
	assert.Equal(t, 1, stats.SuccessfulParses)
	assert.Equal(t, 1, stats.Trading)
	assert.Equal(t, 1, stats.NonTrading)
	assert.Equal(t, 2, stats.FailedParses) // message 2 (non-trading) and message 3 (error) both count as failed
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "pattern store unavailable")

	assert.True(t, messages.marked[1])
	assert.False(t, messages.marked[2])
	assert.False(t, messages.marked[3])
	assert.Equal(t, []string{"sig-1"}, detector.calls)
}

func TestParseAllUnprocessed_DetectorErrorNeverFailsBatch(t *testing.T) {
	messages := &fakeMessages{pending: []types.RawMessage{{ID: 1, Text: "long ABC 100"}}}
	p := &scriptedParser{results: map[int64]parser.Result{
		1: {Success: true, Signal: &types.ParsedSignal{Ticker: "ABC"}},
	}}
	detector := &countingDetector{err: assertErr("detector down")}
	svc := NewService(messages, p, detector)

	stats, err := svc.ParseAllUnprocessed(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SuccessfulParses)
	assert.Empty(t, stats.Errors) // detector failure is logged, not surfaced in stats
}

func TestParseAllUnprocessed_SaveFailureCountsAsFailedParse(t *testing.T) {
	messages := &fakeMessages{pending: []types.RawMessage{{ID: 1, Text: "long ABC 100"}}, saveErr: assertErr("db down")}
	p := &scriptedParser{results: map[int64]parser.Result{
		1: {Success: true, Signal: &types.ParsedSignal{Ticker: "ABC"}},
	}}
	svc := NewService(messages, p, &countingDetector{})

	stats, err := svc.ParseAllUnprocessed(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.SuccessfulParses)
	assert.Equal(t, 1, stats.FailedParses)
	assert.False(t, messages.marked[1])
}

func TestFullReparse_ForceClearsBeforeReplaying(t *testing.T) {
	messages := &fakeMessages{}
	svc := NewService(messages, &scriptedParser{}, &countingDetector{})

	stats, err := svc.FullReparse(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalProcessed)
	assert.True(t, messages.deletedSignals)
	assert.True(t, messages.deletedResults)
	assert.True(t, messages.resetProcessed)
}

func TestFullReparse_NoForceSkipsClearing(t *testing.T) {
	messages := &fakeMessages{}
	svc := NewService(messages, &scriptedParser{}, &countingDetector{})

	_, err := svc.FullReparse(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, messages.deletedSignals)
}

type assertErrType string

func (e assertErrType) Error() string { return string(e) }

func assertErr(msg string) error { return assertErrType(msg) }
