package dbx

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const (
	opCandles     = "dbx: get candles"
	opSaveCandles = "dbx: save candles"
)

// Candles returns up to limit candles for figi/interval within [from, to],
// ordered ascending by time. limit<=0 means unbounded.
func (db *DB) Candles(ctx context.Context, figi string, interval types.CandleInterval, from, to time.Time, limit int) ([]types.Candle, error) {
	return guard(db, opCandles, func() ([]types.Candle, error) {
		query := `
			SELECT instrument_id, interval, time, open, high, low, close, volume
			FROM candles
			WHERE instrument_id = $1 AND interval = $2 AND time >= $3 AND time <= $4
			ORDER BY time ASC`
		args := []interface{}{figi, interval, from, to}
		if limit > 0 {
			query += ` LIMIT $5`
			args = append(args, limit)
		}

		rows, err := db.pool.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []types.Candle
		for rows.Next() {
			var c types.Candle
			if err := rows.Scan(&c.InstrumentID, &c.Interval, &c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, rows.Err()
	})
}

// SaveCandles upserts a batch of candles, deduplicating on
// (instrument_id, interval, time).
func (db *DB) SaveCandles(ctx context.Context, candles []types.Candle) error {
	_, err := guard(db, opSaveCandles, func() (struct{}, error) {
		var batch pgx.Batch
		for _, c := range candles {
			batch.Queue(`
				INSERT INTO candles (instrument_id, interval, time, open, high, low, close, volume)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
				ON CONFLICT (instrument_id, interval, time) DO UPDATE SET
					open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
					close = EXCLUDED.close, volume = EXCLUDED.volume`,
				c.InstrumentID, c.Interval, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume)
		}

		br := db.pool.SendBatch(ctx, &batch)
		defer br.Close()
		for range candles {
			if _, err := br.Exec(); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}
