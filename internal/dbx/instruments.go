package dbx

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const (
	opInstrumentByTicker = "dbx: instrument by ticker"
	opSaveInstrument     = "dbx: save instrument"
)

// InstrumentByTicker resolves a ticker to its durable FIGI-keyed instrument.
// Returns KindNotFound if no instrument is mapped.
func (db *DB) InstrumentByTicker(ctx context.Context, ticker string) (*types.Instrument, error) {
	return guard(db, opInstrumentByTicker, func() (*types.Instrument, error) {
		var inst types.Instrument
		err := db.pool.QueryRow(ctx, `
			SELECT figi, ticker, name, type, currency, lot, is_active
			FROM instruments WHERE ticker = $1`, ticker).
			Scan(&inst.FIGI, &inst.Ticker, &inst.Name, &inst.Type, &inst.Currency, &inst.Lot, &inst.IsActive)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewError(types.KindNotFound, opInstrumentByTicker, err)
		}
		if err != nil {
			return nil, err
		}
		return &inst, nil
	})
}

// SaveInstrument upserts an instrument keyed by FIGI.
func (db *DB) SaveInstrument(ctx context.Context, inst *types.Instrument) error {
	_, err := guard(db, opSaveInstrument, func() (struct{}, error) {
		_, err := db.pool.Exec(ctx, `
			INSERT INTO instruments (figi, ticker, name, type, currency, lot, is_active)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (figi) DO UPDATE SET
				ticker = EXCLUDED.ticker, name = EXCLUDED.name, type = EXCLUDED.type,
				currency = EXCLUDED.currency, lot = EXCLUDED.lot, is_active = EXCLUDED.is_active`,
			inst.FIGI, inst.Ticker, inst.Name, inst.Type, inst.Currency, inst.Lot, inst.IsActive)
		return struct{}{}, err
	})
	return err
}
