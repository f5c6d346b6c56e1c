package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

type fakeSink struct {
	instruments []types.Instrument
	candles     []types.Candle
	saveErr     error
}

func (f *fakeSink) SaveInstrument(_ context.Context, inst *types.Instrument) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.instruments = append(f.instruments, *inst)
	return nil
}

func (f *fakeSink) SaveCandles(_ context.Context, candles []types.Candle) error {
	f.candles = append(f.candles, candles...)
	return nil
}

func TestSyncer_PullsInstrumentAndCandlesIntoSink(t *testing.T) {
	now := time.Now()
	source := NewMock()
	source.SeedInstrument(types.Instrument{FIGI: "BINANCE:ABCUSDT", Ticker: "ABC", IsActive: true})
	source.SeedCandles("BINANCE:ABCUSDT",
		types.Candle{InstrumentID: "BINANCE:ABCUSDT", Interval: types.IntervalHour, Time: now.Add(-2 * time.Hour), Close: 100},
		types.Candle{InstrumentID: "BINANCE:ABCUSDT", Interval: types.IntervalHour, Time: now.Add(-1 * time.Hour), Close: 101},
	)

	sink := &fakeSink{}
	syncer := NewSyncer(source, sink, []string{"ABC"}, time.Hour, 24*time.Hour)

	syncer.syncAll(context.Background())

	require.Len(t, sink.instruments, 1)
	assert.Equal(t, "ABC", sink.instruments[0].Ticker)
	assert.Len(t, sink.candles, 2)
}

func TestSyncer_OneTickerFailureDoesNotStopOthers(t *testing.T) {
	source := NewMock()
	source.SeedInstrument(types.Instrument{FIGI: "BINANCE:XYZUSDT", Ticker: "XYZ", IsActive: true})

	sink := &fakeSink{}
	syncer := NewSyncer(source, sink, []string{"MISSING", "XYZ"}, time.Hour, 24*time.Hour)

	syncer.syncAll(context.Background())

	require.Len(t, sink.instruments, 1)
	assert.Equal(t, "XYZ", sink.instruments[0].Ticker)
}

func TestMock_GetCandlesFiltersByIntervalAndWindow(t *testing.T) {
	now := time.Now()
	m := NewMock()
	m.SeedCandles("FIGI1",
		types.Candle{Interval: types.IntervalHour, Time: now.Add(-3 * time.Hour)},
		types.Candle{Interval: types.Interval1Min, Time: now.Add(-2 * time.Hour)},
		types.Candle{Interval: types.IntervalHour, Time: now.Add(-1 * time.Hour)},
	)

	out, err := m.GetCandles(context.Background(), "FIGI1", types.IntervalHour, now.Add(-4*time.Hour), now, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Time.Before(out[1].Time))
}

func TestMock_FindInstrumentUnseededReturnsNotFound(t *testing.T) {
	m := NewMock()
	_, err := m.FindInstrument(context.Background(), "NOPE")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindNotFound))
}
