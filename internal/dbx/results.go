package dbx

import (
	"context"
	"time"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const (
	opUntrackedSignals      = "dbx: untracked signals"
	opSaveSignalResult      = "dbx: save signal result"
	opUpdateActivePositions = "dbx: update active positions"
)

const resultColumns = `id, signal_id, planned_entry, actual_entry, exit_price, pnl_pct, pnl_abs,
	       entry_time, exit_time, duration_minutes, status, exit_reason`

func scanResult(row interface {
	Scan(dest ...interface{}) error
}) (types.SignalResult, error) {
	var r types.SignalResult
	err := row.Scan(&r.ID, &r.SignalID, &r.PlannedEntry, &r.ActualEntry, &r.ExitPrice,
		&r.PnLPct, &r.PnLAbs, &r.EntryTime, &r.ExitTime, &r.DurationMinutes, &r.Status, &r.ExitReason)
	return r, err
}

// UntrackedSignals returns up to limit entry signals newer than since that
// have no signal_results row yet, oldest first — the pool
// internal/signaltracker.Tracker.FindEntryPrice works through.
func (db *DB) UntrackedSignals(ctx context.Context, since time.Time, limit int) ([]types.ParsedSignal, error) {
	return guard(db, opUntrackedSignals, func() ([]types.ParsedSignal, error) {
		rows, err := db.pool.Query(ctx, `
			SELECT `+signalColumns+`
			FROM parsed_signals s
			WHERE s.signal_type = 'entry' AND s.timestamp >= $1
			  AND NOT EXISTS (SELECT 1 FROM signal_results r WHERE r.signal_id = s.id)
			ORDER BY s.timestamp ASC
			LIMIT $2`, since, limit)
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

// SaveSignalResult inserts a new signal_results row and returns its id.
func (db *DB) SaveSignalResult(ctx context.Context, r *types.SignalResult) (int64, error) {
	return guard(db, opSaveSignalResult, func() (int64, error) {
		var id int64
		err := db.pool.QueryRow(ctx, `
			INSERT INTO signal_results
				(signal_id, planned_entry, actual_entry, entry_time, status, exit_reason)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id`,
			r.SignalID, r.PlannedEntry, r.ActualEntry, r.EntryTime, r.Status, r.ExitReason,
		).Scan(&id)
		return id, err
	})
}

// UpdateActivePositions reads every signal_results row with status='active'
// and evaluates it with evaluate, closing the row in the same transaction
// when evaluate returns a non-nil ExitDecision. The SELECT takes its
// FOR UPDATE SKIP LOCKED lock at the top of the transaction and holds it
// until commit, so the row is never visible to a second tracker instance
// between the read and the close — unlike a bare SELECT, whose lock would
// be released the moment the statement auto-commits. evaluate is expected
// to do its own error logging; a nil decision (whether from "still open" or
// from an internal failure) simply leaves the row untouched.
func (db *DB) UpdateActivePositions(ctx context.Context, evaluate func(ctx context.Context, r types.SignalResult) *types.ExitDecision) (closed int, evaluated int, err error) {
	type result struct{ closed, evaluated int }
	res, err := guard(db, opUpdateActivePositions, func() (result, error) {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return result{}, err
		}
		defer tx.Rollback(ctx)

		rows, err := tx.Query(ctx, `
			SELECT `+resultColumns+`
			FROM signal_results
			WHERE status = 'active'
			ORDER BY entry_time ASC
			FOR UPDATE SKIP LOCKED`)
		if err != nil {
			return result{}, err
		}
		var active []types.SignalResult
		for rows.Next() {
			r, err := scanResult(rows)
			if err != nil {
				rows.Close()
				return result{}, err
			}
			active = append(active, r)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return result{}, err
		}
		rows.Close()

		var closed int
		for _, r := range active {
			decision := evaluate(ctx, r)
			if decision == nil || r.ActualEntry == nil || r.EntryTime == nil {
				continue
			}

			pnlAbs := decision.Price - *r.ActualEntry
			pnlPct := pnlAbs / *r.ActualEntry * 100
			durationMinutes := int(decision.Time.Sub(*r.EntryTime).Minutes())

			if _, err := tx.Exec(ctx, `
				UPDATE signal_results
				SET exit_price = $2, exit_time = $3, pnl_pct = $4, pnl_abs = $5,
				    duration_minutes = $6, status = 'closed', exit_reason = $7
				WHERE id = $1`,
				r.ID, decision.Price, decision.Time, pnlPct, pnlAbs, durationMinutes, decision.Reason); err != nil {
				return result{}, err
			}
			closed++
		}

		if err := tx.Commit(ctx); err != nil {
			return result{}, err
		}
		return result{closed: closed, evaluated: len(active)}, nil
	})
	return res.closed, res.evaluated, err
}
