// Package rules implements the Rule Store: a thin read path over the
// consensus_rules table. Unlike internal/patterns, the rule set is small
// and changes rarely enough that the store re-reads it on every call
// instead of caching, reading fresh rules on each evaluation rather than
// risking a stale cached ruleset.
package rules

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

// Loader fetches consensus rules from persistence. internal/dbx satisfies
// this with ActiveRules/RuleByID; tests supply a fake.
type Loader interface {
	ActiveRules(ctx context.Context) ([]types.ConsensusRule, error)
	RuleByID(ctx context.Context, id int64) (*types.ConsensusRule, error)
}

// Store is a read-only facade over the active rule set, ordered
// priority DESC, created_at DESC by the Loader.
type Store struct {
	loader Loader
}

// NewStore constructs a Store around loader.
func NewStore(loader Loader) *Store {
	return &Store{loader: loader}
}

// Active returns every active rule, already ordered priority DESC,
// created_at DESC.
func (s *Store) Active(ctx context.Context) ([]types.ConsensusRule, error) {
	rules, err := s.loader.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("rules", len(rules)).Msg("active rules loaded")
	return rules, nil
}

// ByID returns the rule with the given id, or a KindNotFound error.
func (s *Store) ByID(ctx context.Context, id int64) (*types.ConsensusRule, error) {
	return s.loader.RuleByID(ctx, id)
}

// MatchTicker reports whether rule applies to ticker: an empty
// TickerFilter matches every ticker, otherwise ticker must appear in it.
func MatchTicker(rule types.ConsensusRule, ticker string) bool {
	if len(rule.TickerFilter) == 0 {
		return true
	}
	for _, t := range rule.TickerFilter {
		if t == ticker {
			return true
		}
	}
	return false
}

// MatchDirection reports whether rule applies to direction: an empty
// DirectionFilter matches every direction.
func MatchDirection(rule types.ConsensusRule, direction types.Direction) bool {
	if rule.DirectionFilter == "" {
		return true
	}
	return rule.DirectionFilter == direction
}
