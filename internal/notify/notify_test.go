package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func TestDispatcher_SendsWhenTelegramEnabled(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender)

	rule := types.ConsensusRule{Name: "default"}
	rule.NotificationSettings.Telegram.Enabled = true

	ev := types.ConsensusEvent{Ticker: "ABC", Direction: types.DirectionLong, TradersCount: 3, DetectedAt: time.Now()}
	d.NotifyConsensus(context.Background(), ev, rule)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "ABC")
}

func TestDispatcher_SkipsWhenTelegramDisabled(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender)

	rule := types.ConsensusRule{Name: "default"}
	d.NotifyConsensus(context.Background(), types.ConsensusEvent{Ticker: "ABC"}, rule)

	assert.Empty(t, sender.sent)
}

func TestDispatcher_SendFailureNeverPanics(t *testing.T) {
	sender := &fakeSender{err: assertErr("telegram down")}
	d := NewDispatcher(sender)

	rule := types.ConsensusRule{Name: "default"}
	rule.NotificationSettings.Telegram.Enabled = true

	assert.NotPanics(t, func() {
		d.NotifyConsensus(context.Background(), types.ConsensusEvent{Ticker: "ABC"}, rule)
	})
}

func TestDispatcher_NilDispatcherIsNoOp(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() {
		d.NotifyConsensus(context.Background(), types.ConsensusEvent{}, types.ConsensusRule{})
	})
}

type assertErrType string

func (e assertErrType) Error() string { return string(e) }

func assertErr(msg string) error { return assertErrType(msg) }
