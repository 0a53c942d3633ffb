package reward

import (
	"ticketing-commerce/services/rep"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Progress struct {
	CurrentValue    decimal.Decimal `json:"current_value"`
	Achieved        bool            `json:"achieved"`
	ProgressPercent int             `json:"progress_percent"`
	Claimed         bool            `json:"claimed"`
}

// CurrentValue picks the rep aggregate a milestone type measures.
func CurrentValue(r *rep.Rep, milestoneType string) decimal.Decimal {
	switch milestoneType {
	case MilestoneSalesCount:
		return decimal.NewFromInt(r.TotalSales)
	case MilestoneRevenue:
		return r.TotalRevenue
	case MilestonePoints:
		return decimal.NewFromInt(r.PointsBalance)
	default:
		return decimal.Zero
	}
}

// Percent is round(current/threshold*100) clamped to [0, 100]; a threshold <= 0 is 0%.
func Percent(current, threshold decimal.Decimal) int {
	if !threshold.IsPositive() {
		return 0
	}
	p := current.Div(threshold).Mul(hundred).Round(0).IntPart()
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(p)
}

func hasClaim(claims []*RepRewardClaim, match func(*RepRewardClaim) bool) bool {
	for _, c := range claims {
		if c.Status == ClaimClaimed && match(c) {
			return true
		}
	}
	return false
}

func MilestoneProgress(r *rep.Rep, m *RepMilestone, claims []*RepRewardClaim) Progress {
	current := CurrentValue(r, m.MilestoneType)
	return Progress{
		CurrentValue:    current,
		Achieved:        current.GreaterThanOrEqual(m.Threshold),
		ProgressPercent: Percent(current, m.Threshold),
		Claimed: hasClaim(claims, func(c *RepRewardClaim) bool {
			return c.MilestoneID != nil && *c.MilestoneID == m.ID
		}),
	}
}

// CanPurchase reports whether a points shop reward is buyable right now. The cap is
// checked again by the conditional reserve at claim time.
func CanPurchase(r *rep.Rep, reward *RepReward) bool {
	return reward.RewardType == TypePointsShop &&
		reward.Status == StatusActive &&
		r.PointsBalance >= reward.PointsCost &&
		!reward.SoldOut()
}

// CanClaim folds the claim history into the reward specific rule. milestone is nil
// for points shop rewards.
func CanClaim(r *rep.Rep, reward *RepReward, milestone *RepMilestone, claims []*RepRewardClaim) bool {
	if reward.Status != StatusActive || reward.SoldOut() {
		return false
	}

	switch reward.RewardType {
	case TypeMilestone:
		if milestone == nil {
			return false
		}
		p := MilestoneProgress(r, milestone, claims)
		return p.Achieved && !p.Claimed
	case TypePointsShop:
		return CanPurchase(r, reward)
	default:
		return false
	}
}
