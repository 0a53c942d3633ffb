package rep

import (
	"testing"

	"ticketing-commerce/pkg/errutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMergeWithDefaultsEmpty(t *testing.T) {
	got := MergeWithDefaults(PartialSettings{})
	want := DefaultSettings()

	require.Equal(t, want.PointsPerSale, got.PointsPerSale)
	require.True(t, want.CommissionRate.Equal(got.CommissionRate))
	require.Equal(t, "REP", got.DiscountPrefix)
	require.Equal(t, DiscountPercentage, got.DiscountType)
	require.True(t, got.LeaderboardEnabled)
}

func TestParseSettingsPartial(t *testing.T) {
	p, err := ParseSettings([]byte(`{"points_per_sale": 25, "discount_prefix": "VIP"}`))
	require.NoError(t, err)

	s := MergeWithDefaults(p)
	require.Equal(t, int64(25), s.PointsPerSale)
	require.Equal(t, "VIP", s.DiscountPrefix)
	require.True(t, decimal.NewFromInt(10).Equal(s.DiscountValue))
}

func TestParseSettingsEmptyDocument(t *testing.T) {
	for _, raw := range []string{"", "  ", "null", "{}"} {
		p, err := ParseSettings([]byte(raw))
		require.NoError(t, err, raw)
		require.Nil(t, p.PointsPerSale)
	}
}

func TestParseSettingsRejectsUnknownKey(t *testing.T) {
	_, err := ParseSettings([]byte(`{"points_per_sale": 5, "bonus_multiplier": 3}`))
	require.Error(t, err)
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
}

func TestParseSettingsRejectsInvalidValues(t *testing.T) {
	cases := []string{
		`{"points_per_sale": -1}`,
		`{"commission_rate": "1.5"}`,
		`{"discount_type": "bogus"}`,
		`{"discount_prefix": "vip"}`,
		`{"discount_type": "percentage", "discount_value": 150}`,
	}
	for _, raw := range cases {
		_, err := ParseSettings([]byte(raw))
		require.Error(t, err, raw)
		require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err), raw)
	}
}

func TestOverlayKeepsStoredKeys(t *testing.T) {
	stored, err := ParseSettings([]byte(`{"points_per_sale": 25}`))
	require.NoError(t, err)
	patch, err := ParseSettings([]byte(`{"leaderboard_enabled": false}`))
	require.NoError(t, err)

	s := MergeWithDefaults(stored.Overlay(patch))
	require.Equal(t, int64(25), s.PointsPerSale)
	require.False(t, s.LeaderboardEnabled)
}

func TestPointsFor(t *testing.T) {
	s := DefaultSettings()
	require.Equal(t, int64(52), s.PointsFor(decimal.RequireFromString("42.70")))
	require.Equal(t, int64(10), s.PointsFor(decimal.Zero))

	s.PointsPerCurrencyUnit = decimal.RequireFromString("0.5")
	require.Equal(t, int64(15), s.PointsFor(decimal.NewFromInt(11)))
}
