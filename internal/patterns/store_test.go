package patterns

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

type fakeLoader struct {
	patterns []types.ParsingPattern
	err      error
	calls    int
}

func (f *fakeLoader) ActivePatterns(ctx context.Context) ([]types.ParsingPattern, error) {
	f.calls++
	return f.patterns, f.err
}

func TestStore_Patterns_LazyLoadAndOrdering(t *testing.T) {
	loader := &fakeLoader{patterns: []types.ParsingPattern{
		{ID: 1, Category: "ticker", Pattern: `\$([A-Z]{3,5})`, Priority: 1},
		{ID: 2, Category: "ticker", Pattern: `#([A-Z]{3,5})`, Priority: 10},
		{ID: 3, Category: "author", Pattern: `@(\w+)`, Priority: 5},
	}}

	store := NewStore(loader)

	ticker, err := store.Patterns(context.Background(), "ticker")
	require.NoError(t, err)
	require.Len(t, ticker, 2)
	assert.Equal(t, int64(2), ticker[0].ID) // priority 10 first
	assert.Equal(t, int64(1), ticker[1].ID)
	assert.Equal(t, 1, loader.calls)

	author, err := store.Patterns(context.Background(), "author")
	require.NoError(t, err)
	require.Len(t, author, 1)
	// Second category read must not trigger a second load.
	assert.Equal(t, 1, loader.calls)
}

func TestStore_Patterns_UnknownCategory(t *testing.T) {
	store := NewStore(&fakeLoader{patterns: nil})
	got, err := store.Patterns(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_Reload_SwapsAtomically(t *testing.T) {
	loader := &fakeLoader{patterns: []types.ParsingPattern{
		{ID: 1, Category: "ticker", Pattern: `\$([A-Z]+)`, Priority: 1},
	}}
	store := NewStore(loader)

	first, err := store.Patterns(context.Background(), "ticker")
	require.NoError(t, err)
	require.Len(t, first, 1)

	loader.patterns = []types.ParsingPattern{
		{ID: 2, Category: "ticker", Pattern: `#([A-Z]+)`, Priority: 9},
		{ID: 3, Category: "ticker", Pattern: `\$([A-Z]+)`, Priority: 1},
	}
	require.NoError(t, store.Reload(context.Background()))

	second, err := store.Patterns(context.Background(), "ticker")
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, int64(2), second[0].ID)
}

func TestStore_Reload_LoaderError(t *testing.T) {
	loader := &fakeLoader{err: errors.New("db unreachable")}
	store := NewStore(loader)

	err := store.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindTransientIO))
}
