package dbx

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const (
	opSignalByID      = "dbx: signal by id"
	opSignalsInWindow = "dbx: signals in window"
	opSignalsInRange  = "dbx: signals in range"
)

func scanSignal(row interface {
	Scan(dest ...interface{}) error
}) (types.ParsedSignal, error) {
	var s types.ParsedSignal
	err := row.Scan(&s.ID, &s.RawMessageID, &s.Timestamp, &s.ChannelID, &s.Author, &s.Ticker,
		&s.Direction, &s.SignalType, &s.TargetPrice, &s.StopLoss, &s.TakeProfit,
		&s.ConfidenceScore, &s.ParserVersion, &s.OriginalText)
	return s, err
}

const signalColumns = `id, raw_message_id, timestamp, channel_id, author, ticker, direction,
	       signal_type, target_price, stop_loss, take_profit, confidence_score,
	       parser_version, original_text`

// SignalByID loads a single ParsedSignal, or KindNotFound.
func (db *DB) SignalByID(ctx context.Context, id string) (*types.ParsedSignal, error) {
	return guard(db, opSignalByID, func() (*types.ParsedSignal, error) {
		row := db.pool.QueryRow(ctx, `SELECT `+signalColumns+` FROM parsed_signals WHERE id = $1`, id)
		s, err := scanSignal(row)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil, types.NewError(types.KindNotFound, opSignalByID, nil)
			}
			return nil, err
		}
		return &s, nil
	})
}

// SignalsInWindow returns every entry signal on ticker with timestamp in
// [from, to], ordered ascending by time — the candidate pool for a
// consensus window evaluation.
func (db *DB) SignalsInWindow(ctx context.Context, ticker string, from, to time.Time) ([]types.ParsedSignal, error) {
	return guard(db, opSignalsInWindow, func() ([]types.ParsedSignal, error) {
		rows, err := db.pool.Query(ctx, `
			SELECT `+signalColumns+`
			FROM parsed_signals
			WHERE ticker = $1 AND signal_type = 'entry' AND timestamp >= $2 AND timestamp <= $3
			ORDER BY timestamp ASC`, ticker, from, to)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []types.ParsedSignal
		for rows.Next() {
			s, err := scanSignal(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, rows.Err()
	})
}

// SignalsInRange returns every entry signal on one of tickers with
// timestamp in [start, end], ordered ascending by time — the Backtester's
// replay pool. An empty tickers selects every ticker.
func (db *DB) SignalsInRange(ctx context.Context, tickers []string, start, end time.Time) ([]types.ParsedSignal, error) {
	return guard(db, opSignalsInRange, func() ([]types.ParsedSignal, error) {
		var rows pgx.Rows
		var err error
		if len(tickers) == 0 {
			rows, err = db.pool.Query(ctx, `
				SELECT `+signalColumns+`
				FROM parsed_signals
				WHERE signal_type = 'entry' AND timestamp >= $1 AND timestamp <= $2
				ORDER BY timestamp ASC`, start, end)
		} else {
			rows, err = db.pool.Query(ctx, `
				SELECT `+signalColumns+`
				FROM parsed_signals
				WHERE signal_type = 'entry' AND ticker = ANY($1) AND timestamp >= $2 AND timestamp <= $3
				ORDER BY timestamp ASC`, tickers, start, end)
		}
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []types.ParsedSignal
		for rows.Next() {
			s, err := scanSignal(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, rows.Err()
	})
}
