package reward

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeMilestone  = "milestone"
	TypePointsShop = "points_shop"

	StatusActive   = "active"
	StatusInactive = "inactive"

	MilestoneSalesCount = "sales_count"
	MilestoneRevenue    = "revenue"
	MilestonePoints     = "points"

	ClaimClaimed   = "claimed"
	ClaimCancelled = "cancelled"
)

// RepReward is a catalog entry. TotalClaimed counts live claims and is only moved by
// guarded single-statement updates.
type RepReward struct {
	ID             string    `gorm:"column:id;primaryKey" json:"id"`
	OrgID          string    `gorm:"column:org_id;index;not null" json:"org_id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	Description    string    `gorm:"column:description" json:"description,omitempty"`
	RewardType     string    `gorm:"column:reward_type;type:varchar(20);not null" json:"reward_type"`
	Status         string    `gorm:"column:status;type:varchar(20);not null;default:'active'" json:"status"`
	PointsCost     int64     `gorm:"column:points_cost;not null;default:0" json:"points_cost"`
	TotalAvailable *int64    `gorm:"column:total_available" json:"total_available,omitempty"`
	TotalClaimed   int64     `gorm:"column:total_claimed;not null;default:0" json:"total_claimed"`
	Condition      string    `gorm:"column:condition" json:"condition,omitempty"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (RepReward) TableName() string { return "rep_rewards" }

func (r *RepReward) SoldOut() bool {
	return r.TotalAvailable != nil && r.TotalClaimed >= *r.TotalAvailable
}

type RepMilestone struct {
	ID            string          `gorm:"column:id;primaryKey" json:"id"`
	OrgID         string          `gorm:"column:org_id;index;not null" json:"org_id"`
	RewardID      string          `gorm:"column:reward_id;uniqueIndex;not null" json:"reward_id"`
	MilestoneType string          `gorm:"column:milestone_type;type:varchar(20);not null" json:"milestone_type"`
	Threshold     decimal.Decimal `gorm:"column:threshold;type:decimal(14,2);not null" json:"threshold"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (RepMilestone) TableName() string { return "rep_milestones" }

// RepRewardClaim rows are unique per (rep, milestone); points shop claims carry no
// milestone and may repeat.
type RepRewardClaim struct {
	ID          string    `gorm:"column:id;primaryKey" json:"id"`
	OrgID       string    `gorm:"column:org_id;index;not null" json:"org_id"`
	RepID       string    `gorm:"column:rep_id;not null;uniqueIndex:idx_claim_rep_milestone,priority:1" json:"rep_id"`
	RewardID    string    `gorm:"column:reward_id;index;not null" json:"reward_id"`
	MilestoneID *string   `gorm:"column:milestone_id;uniqueIndex:idx_claim_rep_milestone,priority:2" json:"milestone_id,omitempty"`
	ClaimType   string    `gorm:"column:claim_type;type:varchar(20);not null" json:"claim_type"`
	PointsSpent int64     `gorm:"column:points_spent;not null;default:0" json:"points_spent"`
	Status      string    `gorm:"column:status;type:varchar(20);not null;default:'claimed'" json:"status"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (RepRewardClaim) TableName() string { return "rep_reward_claims" }

type CreateRewardRequest struct {
	Name           string          `json:"name" binding:"required,max=120"`
	Description    string          `json:"description" binding:"omitempty,max=500"`
	RewardType     string          `json:"reward_type" binding:"required,oneof=milestone points_shop"`
	PointsCost     int64           `json:"points_cost" binding:"gte=0"`
	TotalAvailable *int64          `json:"total_available" binding:"omitempty,gte=0"`
	Condition      string          `json:"condition" binding:"omitempty,max=1000"`
	MilestoneType  string          `json:"milestone_type" binding:"omitempty,oneof=sales_count revenue points"`
	Threshold      decimal.Decimal `json:"threshold"`
}

// Eligibility is the per-reward view returned to the rep portal.
type Eligibility struct {
	RewardID        string `json:"reward_id"`
	Name            string `json:"name"`
	RewardType      string `json:"reward_type"`
	PointsCost      int64  `json:"points_cost,omitempty"`
	Achieved        bool   `json:"achieved"`
	ProgressPercent int    `json:"progress_percent"`
	Claimed         bool   `json:"claimed"`
	CanPurchase     bool   `json:"can_purchase"`
	CanClaim        bool   `json:"can_claim"`
}

type ClaimResult struct {
	ClaimID    string `json:"claim_id"`
	NewBalance *int64 `json:"new_balance,omitempty"`
}
