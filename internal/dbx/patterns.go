package dbx

import (
	"context"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const opActivePatterns = "dbx: active patterns"

// ActivePatterns returns every active pattern across all categories,
// satisfying internal/patterns.Loader.
func (db *DB) ActivePatterns(ctx context.Context) ([]types.ParsingPattern, error) {
	return guard(db, opActivePatterns, func() ([]types.ParsingPattern, error) {
		rows, err := db.pool.Query(ctx, `
			SELECT id, name, category, pattern, priority, is_active, description
			FROM parsing_patterns
			WHERE is_active = true`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []types.ParsingPattern
		for rows.Next() {
			var p types.ParsingPattern
			if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Pattern, &p.Priority, &p.IsActive, &p.Description); err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, rows.Err()
	})
}
