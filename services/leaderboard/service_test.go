package leaderboard

import (
	"context"
	"sync/atomic"
	"testing"

	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/services/rep"
	"ticketing-commerce/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeReps struct {
	calls atomic.Int32
	reps  []*rep.Rep
}

func (f *fakeReps) ListActive(context.Context, string) ([]*rep.Rep, error) {
	f.calls.Add(1)
	return f.reps, nil
}

type fakeSettings struct {
	settings rep.Settings
}

func (f fakeSettings) RepSettings(context.Context, string) (rep.Settings, error) {
	return f.settings, nil
}

func TestLeaderboardCachesRanking(t *testing.T) {
	reps := &fakeReps{reps: []*rep.Rep{
		newRep("1", "a", "10", rep.StatusActive),
		newRep("2", "b", "20", rep.StatusActive),
	}}
	svc := NewService(ServiceParams{
		Reps:     reps,
		Settings: fakeSettings{settings: rep.DefaultSettings()},
		Cache:    &testutil.Cache{},
	})
	ctx := context.Background()

	first, err := svc.Leaderboard(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, "2", first[0].RepID)

	second, err := svc.Leaderboard(ctx, "org-1")
	require.NoError(t, err)
	require.Equal(t, "2", second[0].RepID)
	require.EqualValues(t, 1, reps.calls.Load())

	svc.Invalidate(ctx, "org-1")
	_, err = svc.Leaderboard(ctx, "org-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, reps.calls.Load())
}

func TestLeaderboardWithoutCache(t *testing.T) {
	reps := &fakeReps{reps: []*rep.Rep{newRep("1", "a", "10", rep.StatusActive)}}
	svc := NewService(ServiceParams{Reps: reps, Settings: fakeSettings{settings: rep.DefaultSettings()}})

	entry, ok, err := svc.Position(context.Background(), "org-1", "1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, entry.Position)

	_, ok, err = svc.Position(context.Background(), "org-1", "2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLeaderboardDisabled(t *testing.T) {
	settings := rep.DefaultSettings()
	settings.LeaderboardEnabled = false
	svc := NewService(ServiceParams{Reps: &fakeReps{}, Settings: fakeSettings{settings: settings}})

	_, err := svc.Leaderboard(context.Background(), "org-1")
	require.ErrorIs(t, err, ErrLeaderboardDisabled)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}
