package rep

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/pkg/sequence"

	"github.com/shopspring/decimal"
)

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

// Settings is the rep program configuration of an org after defaults are applied.
type Settings struct {
	PointsPerSale         int64           `json:"points_per_sale"`
	PointsPerCurrencyUnit decimal.Decimal `json:"points_per_currency_unit"`
	CommissionRate        decimal.Decimal `json:"commission_rate"`
	DiscountPrefix        string          `json:"discount_prefix"`
	DiscountType          string          `json:"discount_type"`
	DiscountValue         decimal.Decimal `json:"discount_value"`
	LeaderboardEnabled    bool            `json:"leaderboard_enabled"`
}

// PartialSettings is what an org stores: every key is optional and only the keys
// below are accepted.
type PartialSettings struct {
	PointsPerSale         *int64           `json:"points_per_sale,omitempty"`
	PointsPerCurrencyUnit *decimal.Decimal `json:"points_per_currency_unit,omitempty"`
	CommissionRate        *decimal.Decimal `json:"commission_rate,omitempty"`
	DiscountPrefix        *string          `json:"discount_prefix,omitempty"`
	DiscountType          *string          `json:"discount_type,omitempty"`
	DiscountValue         *decimal.Decimal `json:"discount_value,omitempty"`
	LeaderboardEnabled    *bool            `json:"leaderboard_enabled,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		PointsPerSale:         10,
		PointsPerCurrencyUnit: decimal.NewFromInt(1),
		CommissionRate:        decimal.RequireFromString("0.10"),
		DiscountPrefix:        sequence.DefaultDiscountPrefix,
		DiscountType:          DiscountPercentage,
		DiscountValue:         decimal.NewFromInt(10),
		LeaderboardEnabled:    true,
	}
}

// MergeWithDefaults fills every key missing from partial with its default.
func MergeWithDefaults(partial PartialSettings) Settings {
	s := DefaultSettings()
	if partial.PointsPerSale != nil {
		s.PointsPerSale = *partial.PointsPerSale
	}
	if partial.PointsPerCurrencyUnit != nil {
		s.PointsPerCurrencyUnit = *partial.PointsPerCurrencyUnit
	}
	if partial.CommissionRate != nil {
		s.CommissionRate = *partial.CommissionRate
	}
	if partial.DiscountPrefix != nil {
		s.DiscountPrefix = *partial.DiscountPrefix
	}
	if partial.DiscountType != nil {
		s.DiscountType = *partial.DiscountType
	}
	if partial.DiscountValue != nil {
		s.DiscountValue = *partial.DiscountValue
	}
	if partial.LeaderboardEnabled != nil {
		s.LeaderboardEnabled = *partial.LeaderboardEnabled
	}
	return s
}

// Overlay returns base with every key set in patch replaced.
func (base PartialSettings) Overlay(patch PartialSettings) PartialSettings {
	out := base
	if patch.PointsPerSale != nil {
		out.PointsPerSale = patch.PointsPerSale
	}
	if patch.PointsPerCurrencyUnit != nil {
		out.PointsPerCurrencyUnit = patch.PointsPerCurrencyUnit
	}
	if patch.CommissionRate != nil {
		out.CommissionRate = patch.CommissionRate
	}
	if patch.DiscountPrefix != nil {
		out.DiscountPrefix = patch.DiscountPrefix
	}
	if patch.DiscountType != nil {
		out.DiscountType = patch.DiscountType
	}
	if patch.DiscountValue != nil {
		out.DiscountValue = patch.DiscountValue
	}
	if patch.LeaderboardEnabled != nil {
		out.LeaderboardEnabled = patch.LeaderboardEnabled
	}
	return out
}

// ParseSettings decodes a stored or submitted settings document. Unknown keys are
// rejected. An empty document is valid and means "all defaults".
func ParseSettings(raw []byte) (PartialSettings, error) {
	var p PartialSettings
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return p, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return PartialSettings{}, errutil.ValidationFailed("invalid rep settings", err,
			errutil.WithDetails(errutil.Detail{Field: "settings", Message: unknownKeyMessage(err)}))
	}

	if err := p.Validate(); err != nil {
		return PartialSettings{}, err
	}
	return p, nil
}

func unknownKeyMessage(err error) string {
	msg := err.Error()
	if strings.HasPrefix(msg, "json: unknown field ") {
		return "unknown key " + strings.TrimPrefix(msg, "json: unknown field ")
	}
	return msg
}

func (p PartialSettings) Validate() error {
	var details []errutil.Detail
	add := func(field, msg string) {
		details = append(details, errutil.Detail{Field: field, Message: msg})
	}

	if p.PointsPerSale != nil && *p.PointsPerSale < 0 {
		add("points_per_sale", "must be >= 0")
	}
	if p.PointsPerCurrencyUnit != nil && p.PointsPerCurrencyUnit.IsNegative() {
		add("points_per_currency_unit", "must be >= 0")
	}
	if p.CommissionRate != nil && (p.CommissionRate.IsNegative() || p.CommissionRate.GreaterThan(decimal.NewFromInt(1))) {
		add("commission_rate", "must be between 0 and 1")
	}
	if p.DiscountPrefix != nil {
		norm := sequence.NormalizePrefix(*p.DiscountPrefix)
		if norm == "" || norm != *p.DiscountPrefix || len(norm) > 8 {
			add("discount_prefix", "must be 1-8 uppercase letters or digits")
		}
	}
	if p.DiscountType != nil && *p.DiscountType != DiscountPercentage && *p.DiscountType != DiscountFixed {
		add("discount_type", fmt.Sprintf("must be %q or %q", DiscountPercentage, DiscountFixed))
	}
	if p.DiscountValue != nil && p.DiscountValue.IsNegative() {
		add("discount_value", "must be >= 0")
	}
	if p.DiscountType != nil && *p.DiscountType == DiscountPercentage && p.DiscountValue != nil &&
		p.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		add("discount_value", "percentage must be <= 100")
	}

	if len(details) > 0 {
		return errutil.ValidationFailed("invalid rep settings", nil, errutil.WithDetails(details...))
	}
	return nil
}

// PointsFor returns the points a rep earns for an attributed order of total.
func (s Settings) PointsFor(total decimal.Decimal) int64 {
	variable := total.Mul(s.PointsPerCurrencyUnit).Floor().IntPart()
	if variable < 0 {
		variable = 0
	}
	return s.PointsPerSale + variable
}
