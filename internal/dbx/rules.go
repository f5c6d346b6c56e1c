package dbx

import (
	"context"
	"encoding/json"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const opActiveRules = "dbx: active rules"

// ActiveRules returns every active ConsensusRule ordered
// priority DESC, created_at DESC, satisfying internal/rules.Loader.
func (db *DB) ActiveRules(ctx context.Context) ([]types.ConsensusRule, error) {
	return guard(db, opActiveRules, func() ([]types.ConsensusRule, error) {
		rows, err := db.pool.Query(ctx, `
			SELECT id, name, is_active, priority, min_traders, window_minutes,
			       strict_consensus, ticker_filter, direction_filter, min_confidence,
			       min_strength, indicator_conditions, notification_settings, config, created_at
			FROM consensus_rules
			WHERE is_active = true
			ORDER BY priority DESC, created_at DESC`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []types.ConsensusRule
		for rows.Next() {
			var (
				r                       types.ConsensusRule
				tickerFilter            []string
				directionFilter         *string
				indicatorConditionsJSON []byte
				notificationSettingsJSON []byte
				configJSON              []byte
			)
			if err := rows.Scan(&r.ID, &r.Name, &r.IsActive, &r.Priority, &r.MinTraders, &r.WindowMinutes,
				&r.StrictConsensus, &tickerFilter, &directionFilter, &r.MinConfidence,
				&r.MinStrength, &indicatorConditionsJSON, &notificationSettingsJSON, &configJSON, &r.CreatedAt); err != nil {
				return nil, err
			}

			r.TickerFilter = tickerFilter
			if directionFilter != nil {
				r.DirectionFilter = types.Direction(*directionFilter)
			}
			if len(indicatorConditionsJSON) > 0 {
				var ic types.IndicatorConditionSet
				if err := json.Unmarshal(indicatorConditionsJSON, &ic); err != nil {
					return nil, err
				}
				r.IndicatorConditions = &ic
			}
			if len(notificationSettingsJSON) > 0 {
				if err := json.Unmarshal(notificationSettingsJSON, &r.NotificationSettings); err != nil {
					return nil, err
				}
			}
			if len(configJSON) > 0 {
				if err := json.Unmarshal(configJSON, &r.Config); err != nil {
					return nil, err
				}
			}

			out = append(out, r)
		}
		return out, rows.Err()
	})
}

const opRuleByID = "dbx: rule by id"

// RuleByID loads a single ConsensusRule, used by the Backtester. ActiveRules
// already executes through the circuit breaker, so this does not guard a
// second time.
func (db *DB) RuleByID(ctx context.Context, id int64) (*types.ConsensusRule, error) {
	rules, err := db.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		if rules[i].ID == id {
			return &rules[i], nil
		}
	}
	return nil, types.NewError(types.KindNotFound, opRuleByID, nil)
}
