package leaderboard

import (
	"sort"

	"ticketing-commerce/services/rep"

	"github.com/shopspring/decimal"
)

type Entry struct {
	Position     int             `json:"position"`
	RepID        string          `json:"rep_id"`
	Name         string          `json:"name"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalSales   int64           `json:"total_sales"`
}

// Rank orders active reps by total_revenue descending. Equal revenue falls back to
// rep ID ascending so the order never depends on how rows were read.
func Rank(reps []*rep.Rep) []Entry {
	active := make([]*rep.Rep, 0, len(reps))
	for _, r := range reps {
		if r.IsActive() {
			active = append(active, r)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		if c := active[i].TotalRevenue.Cmp(active[j].TotalRevenue); c != 0 {
			return c > 0
		}
		return active[i].ID < active[j].ID
	})

	out := make([]Entry, 0, len(active))
	for i, r := range active {
		out = append(out, Entry{
			Position:     i + 1,
			RepID:        r.ID,
			Name:         r.DisplayName(),
			TotalRevenue: r.TotalRevenue,
			TotalSales:   r.TotalSales,
		})
	}
	return out
}

// PositionOf returns the 1-based position of repID in ranked.
func PositionOf(repID string, ranked []Entry) (int, bool) {
	for i, e := range ranked {
		if e.RepID == repID {
			return i + 1, true
		}
	}
	return 0, false
}
