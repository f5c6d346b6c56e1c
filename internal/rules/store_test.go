package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/consensus-engine/internal/types"
)

type fakeLoader struct {
	active []types.ConsensusRule
	byID   map[int64]*types.ConsensusRule
	err    error
}

func (f *fakeLoader) ActiveRules(ctx context.Context) ([]types.ConsensusRule, error) {
	return f.active, f.err
}

func (f *fakeLoader) RuleByID(ctx context.Context, id int64) (*types.ConsensusRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.byID[id]
	if !ok {
		return nil, types.NewError(types.KindNotFound, "rules: rule by id", nil)
	}
	return r, nil
}

func TestStore_Active_PassesThroughLoaderOrder(t *testing.T) {
	loader := &fakeLoader{active: []types.ConsensusRule{
		{ID: 2, Priority: 10},
		{ID: 1, Priority: 1},
	}}
	store := NewStore(loader)

	got, err := store.Active(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestStore_Active_LoaderError(t *testing.T) {
	loader := &fakeLoader{err: errors.New("db unreachable")}
	store := NewStore(loader)

	_, err := store.Active(context.Background())
	assert.Error(t, err)
}

func TestStore_ByID_NotFound(t *testing.T) {
	store := NewStore(&fakeLoader{byID: map[int64]*types.ConsensusRule{}})

	_, err := store.ByID(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindNotFound))
}

func TestStore_ByID_Found(t *testing.T) {
	rule := &types.ConsensusRule{ID: 5, Name: "momentum"}
	store := NewStore(&fakeLoader{byID: map[int64]*types.ConsensusRule{5: rule}})

	got, err := store.ByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "momentum", got.Name)
}

func TestMatchTicker_EmptyFilterMatchesEverything(t *testing.T) {
	rule := types.ConsensusRule{}
	assert.True(t, MatchTicker(rule, "BTCUSDT"))
}

func TestMatchTicker_FilterRestrictsToListedTickers(t *testing.T) {
	rule := types.ConsensusRule{TickerFilter: []string{"BTCUSDT", "ETHUSDT"}}
	assert.True(t, MatchTicker(rule, "ETHUSDT"))
	assert.False(t, MatchTicker(rule, "SOLUSDT"))
}

func TestMatchDirection_EmptyFilterMatchesEverything(t *testing.T) {
	rule := types.ConsensusRule{}
	assert.True(t, MatchDirection(rule, types.DirectionLong))
	assert.True(t, MatchDirection(rule, types.DirectionShort))
}

func TestMatchDirection_FilterRestrictsDirection(t *testing.T) {
	rule := types.ConsensusRule{DirectionFilter: types.DirectionLong}
	assert.True(t, MatchDirection(rule, types.DirectionLong))
	assert.False(t, MatchDirection(rule, types.DirectionShort))
}
