package dbx

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const (
	opConsensusSignalExists = "dbx: consensus signal exists"
	opSaveConsensusEvent    = "dbx: save consensus event"
	opSaveBacktest          = "dbx: save consensus backtest"
)

// ConsensusSignalExists reports whether signalID already belongs to a
// ConsensusSignal row, the idempotence check that keeps a signal from
// joining two consensus events.
func (db *DB) ConsensusSignalExists(ctx context.Context, signalID string) (bool, error) {
	return guard(db, opConsensusSignalExists, func() (bool, error) {
		var exists bool
		err := db.pool.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM consensus_signals WHERE signal_id = $1)`, signalID).
			Scan(&exists)
		return exists, err
	})
}

// SaveConsensusEvent persists event and one ConsensusSignal membership row
// per member, inside a single transaction serialized per ticker by a
// Postgres advisory lock keyed by hashtext(ticker) so two concurrent
// detections for the same ticker never race each other into duplicate
// events. Returns KindDuplicateConsensus as a no-op success if the trigger
// signal was absorbed by a concurrent call before this one acquired the
// lock.
func (db *DB) SaveConsensusEvent(ctx context.Context, event *types.ConsensusEvent, members []types.ConsensusSignal) error {
	_, err := guard(db, opSaveConsensusEvent, func() (struct{}, error) {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return struct{}{}, err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, event.Ticker); err != nil {
			return struct{}{}, err
		}

		var alreadyMember bool
		triggerID := event.Metadata.TriggerSignalID
		if triggerID != "" {
			if err := tx.QueryRow(ctx, `
				SELECT EXISTS(SELECT 1 FROM consensus_signals WHERE signal_id = $1)`, triggerID).
				Scan(&alreadyMember); err != nil {
				return struct{}{}, err
			}
		}
		if alreadyMember {
			return struct{}{}, types.NewError(types.KindDuplicateConsensus, opSaveConsensusEvent, nil)
		}

		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return struct{}{}, err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO consensus_events
				(id, ticker, direction, traders_count, window_minutes, rule_id,
				 first_signal_at, last_signal_at, detected_at, avg_entry_price,
				 min_entry_price, max_entry_price, price_spread_pct,
				 consensus_strength, status, metadata)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
			event.ID, event.Ticker, event.Direction, event.TradersCount, event.WindowMinutes, event.RuleID,
			event.FirstSignalAt, event.LastSignalAt, event.DetectedAt, event.AvgEntryPrice,
			event.MinEntryPrice, event.MaxEntryPrice, event.PriceSpreadPct,
			event.ConsensusStrength, event.Status, metadataJSON); err != nil {
			return struct{}{}, err
		}

		for _, m := range members {
			if _, err := tx.Exec(ctx, `
				INSERT INTO consensus_signals (consensus_id, signal_id, is_initiator)
				VALUES ($1,$2,$3)
				ON CONFLICT (consensus_id, signal_id) DO NOTHING`,
				m.ConsensusID, m.SignalID, m.IsInitiator); err != nil {
				return struct{}{}, err
			}
		}

		return struct{}{}, tx.Commit(ctx)
	})

	var typed *types.Error
	if errors.As(err, &typed) && typed.Kind == types.KindDuplicateConsensus {
		return nil
	}
	return err
}

// SaveConsensusBacktest persists a completed backtest run.
func (db *DB) SaveConsensusBacktest(ctx context.Context, bt *types.ConsensusBacktest) (int64, error) {
	return guard(db, opSaveBacktest, func() (int64, error) {
		resultsJSON, err := json.Marshal(bt.ResultsByTicker)
		if err != nil {
			return 0, err
		}
		detailsJSON, err := json.Marshal(bt.ConsensusDetails)
		if err != nil {
			return 0, err
		}

		var id int64
		err = db.pool.QueryRow(ctx, `
			INSERT INTO consensus_backtests
				(rule_id, start_date, end_date, tickers, total_trades, win_rate,
				 avg_profit_pct, avg_loss_pct, max_profit_pct, max_loss_pct, total_return,
				 total_profit_abs, results_by_ticker, consensus_details, execution_time_ms, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			RETURNING id`,
			bt.RuleID, bt.StartDate, bt.EndDate, bt.Tickers, bt.TotalTrades, bt.WinRate,
			bt.AvgProfitPct, bt.AvgLossPct, bt.MaxProfitPct, bt.MaxLossPct, bt.TotalReturn,
			bt.TotalProfitAbs, resultsJSON, detailsJSON, bt.ExecutionTime.Milliseconds(), bt.Status).
			Scan(&id)
		return id, err
	})
}
