// Package patterns implements the Pattern Store: a process-wide,
// copy-on-write cache mapping a pattern category to its patterns ordered
// descending by priority. The store never compiles patterns itself —
// compilation happens lazily at match time inside internal/parser.
package patterns

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const opLoad = "patterns: load"

// Loader fetches every active pattern from persistence. internal/dbx
// satisfies this with its ActivePatterns method; tests supply a fake.
type Loader interface {
	ActivePatterns(ctx context.Context) ([]types.ParsingPattern, error)
}

// Store holds the current pattern snapshot behind an atomic pointer, a
// copy-on-write discipline applied here to a whole category map so readers
// never block behind a reload.
type Store struct {
	loader   Loader
	snapshot atomic.Pointer[snapshot]
}

type snapshot struct {
	byCategory map[string][]types.ParsingPattern
}

// NewStore constructs an empty Store; patterns are loaded lazily on first
// read, or eagerly via Reload.
func NewStore(loader Loader) *Store {
	s := &Store{loader: loader}
	s.snapshot.Store(&snapshot{byCategory: map[string][]types.ParsingPattern{}})
	return s
}

// Patterns returns the patterns in category, ordered descending by
// priority. Loads the full set from persistence on first call.
func (s *Store) Patterns(ctx context.Context, category string) ([]types.ParsingPattern, error) {
	snap := s.snapshot.Load()
	if snap == nil || len(snap.byCategory) == 0 {
		if err := s.Reload(ctx); err != nil {
			return nil, err
		}
		snap = s.snapshot.Load()
	}
	return snap.byCategory[category], nil
}

// Reload fetches every active pattern from persistence and swaps the cache
// atomically. Readers in flight continue to see the prior snapshot until
// the swap completes; there is never a window where the cache is half-built.
func (s *Store) Reload(ctx context.Context) error {
	all, err := s.loader.ActivePatterns(ctx)
	if err != nil {
		return types.NewError(types.KindTransientIO, opLoad, err)
	}

	byCategory := make(map[string][]types.ParsingPattern, 8)
	for _, p := range all {
		byCategory[p.Category] = append(byCategory[p.Category], p)
	}
	for category := range byCategory {
		list := byCategory[category]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority > list[j].Priority
		})
		byCategory[category] = list
	}

	s.snapshot.Store(&snapshot{byCategory: byCategory})
	log.Debug().Int("patterns", len(all)).Int("categories", len(byCategory)).Msg("pattern cache reloaded")
	return nil
}
