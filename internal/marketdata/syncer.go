package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

// Source fetches instrument and candle data from an exchange, satisfied by
// Client and Mock.
type Source interface {
	FindInstrument(ctx context.Context, ticker string) (*types.Instrument, error)
	GetCandles(ctx context.Context, figi string, interval types.CandleInterval, from, to time.Time, limit int) ([]types.Candle, error)
}

// Sink persists instruments and candles, satisfied by internal/dbx.DB.
type Sink interface {
	SaveInstrument(ctx context.Context, inst *types.Instrument) error
	SaveCandles(ctx context.Context, candles []types.Candle) error
}

// Syncer periodically pulls hourly candles for a fixed ticker list from
// Source into Sink, the same ticker-list-plus-interval-ticker shape as
// internal/market.SyncService, generalized from CoinGecko's REST polling to
// a vendor-agnostic Source/Sink pair.
type Syncer struct {
	source   Source
	sink     Sink
	tickers  []string
	interval time.Duration
	lookback time.Duration
	stopCh   chan struct{}
}

// NewSyncer builds a Syncer that refreshes tickers' hourly candles every
// interval, pulling lookback worth of history each pass.
func NewSyncer(source Source, sink Sink, tickers []string, interval, lookback time.Duration) *Syncer {
	return &Syncer{
		source:   source,
		sink:     sink,
		tickers:  tickers,
		interval: interval,
		lookback: lookback,
		stopCh:   make(chan struct{}),
	}
}

// Run blocks, syncing immediately and then every s.interval, until ctx is
// canceled or Stop is called.
func (s *Syncer) Run(ctx context.Context) error {
	log.Info().Strs("tickers", s.tickers).Dur("interval", s.interval).
		Msg("market data syncer starting")

	s.syncAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("market data syncer stopped (context canceled)")
			return ctx.Err()
		case <-s.stopCh:
			log.Info().Msg("market data syncer stopped")
			return nil
		case <-ticker.C:
			s.syncAll(ctx)
		}
	}
}

// Stop requests Run to return.
func (s *Syncer) Stop() {
	close(s.stopCh)
}

func (s *Syncer) syncAll(ctx context.Context) {
	start := time.Now()
	for _, ticker := range s.tickers {
		if err := s.syncTicker(ctx, ticker); err != nil {
			log.Error().Err(err).Str("ticker", ticker).Msg("market data sync failed for ticker")
			continue
		}
	}
	log.Info().Dur("duration", time.Since(start)).Int("tickers", len(s.tickers)).
		Msg("market data sync pass complete")
}

func (s *Syncer) syncTicker(ctx context.Context, ticker string) error {
	inst, err := s.source.FindInstrument(ctx, ticker)
	if err != nil {
		return err
	}
	if err := s.sink.SaveInstrument(ctx, inst); err != nil {
		return err
	}

	now := time.Now()
	candles, err := s.source.GetCandles(ctx, inst.FIGI, types.IntervalHour, now.Add(-s.lookback), now, 0)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return nil
	}
	return s.sink.SaveCandles(ctx, candles)
}
