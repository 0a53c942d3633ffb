package leaderboard

import (
	"testing"

	"ticketing-commerce/services/rep"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newRep(id, name string, revenue string, status string) *rep.Rep {
	return &rep.Rep{
		ID:           id,
		FirstName:    name,
		Status:       status,
		TotalRevenue: decimal.RequireFromString(revenue),
	}
}

func TestRank(t *testing.T) {
	tests := []struct {
		name string
		reps []*rep.Rep
		want []string
	}{
		{
			name: "revenue descending",
			reps: []*rep.Rep{
				newRep("1", "a", "10.00", rep.StatusActive),
				newRep("2", "b", "30.00", rep.StatusActive),
				newRep("3", "c", "20.00", rep.StatusActive),
			},
			want: []string{"2", "3", "1"},
		},
		{
			name: "ties break by id",
			reps: []*rep.Rep{
				newRep("9", "z", "50", rep.StatusActive),
				newRep("4", "y", "50.00", rep.StatusActive),
				newRep("7", "x", "50.0", rep.StatusActive),
			},
			want: []string{"4", "7", "9"},
		},
		{
			name: "inactive excluded",
			reps: []*rep.Rep{
				newRep("1", "a", "100", rep.StatusInactive),
				newRep("2", "b", "5", rep.StatusActive),
			},
			want: []string{"2"},
		},
		{
			name: "empty",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked := Rank(tt.reps)
			ids := make([]string, 0, len(ranked))
			for i, e := range ranked {
				require.Equal(t, i+1, e.Position)
				ids = append(ids, e.RepID)
			}
			require.Equal(t, tt.want, ids)
		})
	}
}

func TestPositionOf(t *testing.T) {
	ranked := Rank([]*rep.Rep{
		newRep("1", "a", "10", rep.StatusActive),
		newRep("2", "b", "20", rep.StatusActive),
	})

	pos, ok := PositionOf("1", ranked)
	require.True(t, ok)
	require.Equal(t, 2, pos)

	_, ok = PositionOf("missing", ranked)
	require.False(t, ok)
}
