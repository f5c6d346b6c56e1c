package marketdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

// Mock is an in-memory stand-in for Client, used by the Syncer's tests so
// they never depend on network access,
// mirroring internal/exchange.MockExchange's seed-then-read shape.
type Mock struct {
	mu          sync.RWMutex
	instruments map[string]types.Instrument // keyed by ticker
	candles     map[string][]types.Candle   // keyed by figi
}

// NewMock builds an empty Mock ready for SeedInstrument/SeedCandles calls.
func NewMock() *Mock {
	return &Mock{
		instruments: make(map[string]types.Instrument),
		candles:     make(map[string][]types.Candle),
	}
}

// SeedInstrument registers a ticker->instrument mapping for FindInstrument.
func (m *Mock) SeedInstrument(inst types.Instrument) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instruments[inst.Ticker] = inst
}

// SeedCandles appends candles to a figi's history, keeping it sorted by
// time so GetCandles can binary-search-free scan it in order.
func (m *Mock) SeedCandles(figi string, candles ...types.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[figi] = append(m.candles[figi], candles...)
	sort.Slice(m.candles[figi], func(i, j int) bool {
		return m.candles[figi][i].Time.Before(m.candles[figi][j].Time)
	})
}

// FindInstrument looks up a previously seeded ticker.
func (m *Mock) FindInstrument(_ context.Context, ticker string) (*types.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instruments[ticker]
	if !ok {
		return nil, types.NewError(types.KindNotFound, "marketdata: mock find instrument", errNotSeeded(ticker))
	}
	return &inst, nil
}

// GetCandles returns the seeded candles for figi/interval within [from, to],
// honoring limit the same way Client does.
func (m *Mock) GetCandles(_ context.Context, figi string, interval types.CandleInterval, from, to time.Time, limit int) ([]types.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Candle
	for _, c := range m.candles[figi] {
		if c.Interval != interval {
			continue
		}
		if c.Time.Before(from) || c.Time.After(to) {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type errNotSeeded string

func (e errNotSeeded) Error() string { return "marketdata: no instrument seeded for ticker " + string(e) }
