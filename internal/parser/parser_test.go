package parser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

type fakeSource struct {
	byCategory map[string][]types.ParsingPattern
}

func (f *fakeSource) Patterns(ctx context.Context, category string) ([]types.ParsingPattern, error) {
	return f.byCategory[category], nil
}

func newTestSource() *fakeSource {
	return &fakeSource{byCategory: map[string][]types.ParsingPattern{
		"author":          {{Pattern: `@(\w+)`, Priority: 1}},
		"trading_keyword": {{Pattern: `(?i)(buy|sell|entry|signal)`, Priority: 1}},
		"ticker":          {{Pattern: `\$([A-Z]{2,6})`, Priority: 10}},
		"operation_exit":  {{Pattern: `(?i)(close|exit)\s+(long|short)?`, Priority: 1}},
		"direction_long":  {{Pattern: `(?i)\bbuy\b`, Priority: 1}},
		"direction_short": {{Pattern: `(?i)\bsell\b`, Priority: 1}},
		"price_target":    {{Pattern: `target[:\s]+([\d.,]+)`, Priority: 1}},
		"price_stop":      {{Pattern: `stop[:\s]+([\d.,]+)`, Priority: 1}},
		"price_take":      {{Pattern: `tp[:\s]+([\d.,]+)`, Priority: 1}},
	}}
}

func TestParse_EmptyText(t *testing.T) {
	p := New(newTestSource())
	res, err := p.Parse(context.Background(), Input{Text: "   "})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Empty message text", res.Error)
}

func TestParse_NotTradingMessage(t *testing.T) {
	p := New(newTestSource())
	res, err := p.Parse(context.Background(), Input{Text: "good morning everyone"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Not a trading message", res.Error)
}

func TestParse_TickerPatternAloneMarksTradingMessage(t *testing.T) {
	src := &fakeSource{byCategory: map[string][]types.ParsingPattern{
		"ticker": {{Pattern: `\$([A-Z]{2,6})`, Priority: 10}},
	}}
	p := New(src)
	res, err := p.Parse(context.Background(), Input{Text: "🔥 $BTC about to move"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "BTC", res.Signal.Ticker)
}

func TestParse_NoTicker(t *testing.T) {
	p := New(newTestSource())
	res, err := p.Parse(context.Background(), Input{Text: "buy signal incoming soon"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "No ticker found", res.Error)
}

func TestParse_LongEntrySignal(t *testing.T) {
	p := New(newTestSource())
	res, err := p.Parse(context.Background(), Input{
		ID:        42,
		ChannelID: "chan-1",
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Text:      "@trader1 buy $BTC target: 50000 stop: 45000 tp: 55000 this is a great deal",
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	sig := res.Signal
	assert.Equal(t, "trader1", sig.Author)
	assert.Equal(t, "BTC", sig.Ticker)
	assert.Equal(t, types.DirectionLong, sig.Direction)
	assert.Equal(t, types.SignalTypeEntry, sig.SignalType)
	require.NotNil(t, sig.TargetPrice)
	assert.InDelta(t, 50000.0, *sig.TargetPrice, 1e-9)
	require.NotNil(t, sig.StopLoss)
	assert.InDelta(t, 45000.0, *sig.StopLoss, 1e-9)
	require.NotNil(t, sig.TakeProfit)
	assert.InDelta(t, 55000.0, *sig.TakeProfit, 1e-9)
	assert.Equal(t, Version, sig.ParserVersion)
	assert.InDelta(t, 1.0, sig.ConfidenceScore, 1e-9) // ticker+direction+operation+words+keyword
}

func TestParse_ExitSignal(t *testing.T) {
	p := New(newTestSource())
	res, err := p.Parse(context.Background(), Input{
		Text: "close long $ETH now",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, types.SignalTypeExit, res.Signal.SignalType)
	assert.Equal(t, types.DirectionLong, res.Signal.Direction)
}

func TestParse_AuthorFallback(t *testing.T) {
	p := New(newTestSource())
	res, err := p.Parse(context.Background(), Input{
		Text:   "buy $SOL now",
		Author: "fallback-author",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "fallback-author", res.Signal.Author)
}

func TestParse_AuthorUnknown(t *testing.T) {
	p := New(newTestSource())
	res, err := p.Parse(context.Background(), Input{Text: "buy $SOL now"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "Unknown", res.Signal.Author)
}

func TestParse_AuthorExtractionPrecedesCleaning(t *testing.T) {
	src := &fakeSource{byCategory: map[string][]types.ParsingPattern{
		"author":       {{Pattern: `#(\w+)`, Priority: 1}},
		"ticker":       {{Pattern: `\b([A-Z]{3,5})\b`, Priority: 1}},
		"price_target": {{Pattern: `по\s+([\d.,]+)`, Priority: 1}},
	}}
	p := New(src)
	res, err := p.Parse(context.Background(), Input{
		Text: "#ProfitKing – long ABC по 100",
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	sig := res.Signal
	assert.Equal(t, "ProfitKing", sig.Author)
	assert.Equal(t, "ABC", sig.Ticker)
	assert.Equal(t, types.DirectionLong, sig.Direction)
	assert.Equal(t, types.SignalTypeEntry, sig.SignalType)
	require.NotNil(t, sig.TargetPrice)
	assert.InDelta(t, 100.0, *sig.TargetPrice, 1e-9)
}

func TestParse_PriceOutOfRangeRejected(t *testing.T) {
	src := newTestSource()
	p := New(src)
	res, err := p.Parse(context.Background(), Input{
		Text: "buy $BTC target: 999999999",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Nil(t, res.Signal.TargetPrice)
}

func TestConfidenceScore_LowerBoundMixed(t *testing.T) {
	score := confidenceScore("hi", "", types.DirectionMixed, "")
	assert.Equal(t, 0.0, score)
}
