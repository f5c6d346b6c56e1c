package dbx

import (
	"context"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const (
	opUnparsedMessages  = "dbx: get unparsed messages"
	opMarkProcessed     = "dbx: mark message processed"
	opSaveSignal        = "dbx: save signal"
	opDeleteSignals     = "dbx: delete all signals"
	opDeleteResults     = "dbx: delete all signal results"
	opResetProcessed    = "dbx: reset message processed flags"
)

// UnparsedMessages returns up to limit raw messages with is_processed=false,
// oldest first.
func (db *DB) UnparsedMessages(ctx context.Context, limit int) ([]types.RawMessage, error) {
	return guard(db, opUnparsedMessages, func() ([]types.RawMessage, error) {
		rows, err := db.pool.Query(ctx, `
			SELECT id, channel_id, message_id, timestamp, text, author
			FROM raw_messages
			WHERE is_processed = false
			ORDER BY timestamp ASC
			LIMIT $1`, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []types.RawMessage
		for rows.Next() {
			var m types.RawMessage
			if err := rows.Scan(&m.ID, &m.ChannelID, &m.MessageID, &m.Timestamp, &m.Text, &m.Author); err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, rows.Err()
	})
}

// MarkMessageProcessed sets is_processed=true and parse_success=success for
// the given raw message id.
func (db *DB) MarkMessageProcessed(ctx context.Context, id int64, success bool) error {
	_, err := guard(db, opMarkProcessed, func() (struct{}, error) {
		_, err := db.pool.Exec(ctx, `
			UPDATE raw_messages SET is_processed = true, parse_success = $2
			WHERE id = $1`, id, success)
		return struct{}{}, err
	})
	return err
}

// SaveSignal persists a ParsedSignal and returns its id (already assigned
// by the Parser via uuid.NewString and stored as given).
func (db *DB) SaveSignal(ctx context.Context, s *types.ParsedSignal) (string, error) {
	return guard(db, opSaveSignal, func() (string, error) {
		_, err := db.pool.Exec(ctx, `
			INSERT INTO parsed_signals
				(id, raw_message_id, timestamp, channel_id, author, ticker, direction,
				 signal_type, target_price, stop_loss, take_profit, confidence_score,
				 parser_version, original_text)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			s.ID, s.RawMessageID, s.Timestamp, s.ChannelID, s.Author, s.Ticker, s.Direction,
			s.SignalType, s.TargetPrice, s.StopLoss, s.TakeProfit, s.ConfidenceScore,
			s.ParserVersion, s.OriginalText)
		if err != nil {
			return "", err
		}
		return s.ID, nil
	})
}

// DeleteAllSignals removes every parsed signal, used by a forced full reparse.
func (db *DB) DeleteAllSignals(ctx context.Context) error {
	_, err := guard(db, opDeleteSignals, func() (struct{}, error) {
		_, err := db.pool.Exec(ctx, `DELETE FROM parsed_signals`)
		return struct{}{}, err
	})
	return err
}

// DeleteAllSignalResults removes every signal result row.
func (db *DB) DeleteAllSignalResults(ctx context.Context) error {
	_, err := guard(db, opDeleteResults, func() (struct{}, error) {
		_, err := db.pool.Exec(ctx, `DELETE FROM signal_results`)
		return struct{}{}, err
	})
	return err
}

// ResetMessageProcessed clears is_processed/parse_success on every raw
// message, the first step of a forced full reparse.
func (db *DB) ResetMessageProcessed(ctx context.Context) error {
	_, err := guard(db, opResetProcessed, func() (struct{}, error) {
		_, err := db.pool.Exec(ctx, `UPDATE raw_messages SET is_processed = false, parse_success = false`)
		return struct{}{}, err
	})
	return err
}
