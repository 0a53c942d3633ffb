package ledger

import (
	"time"
)

type SourceType string

const (
	SourceSale       SourceType = "sale"
	SourceManual     SourceType = "manual"
	SourceQuest      SourceType = "quest"
	SourceRedemption SourceType = "redemption"
)

func (t SourceType) Valid() bool {
	switch t {
	case SourceSale, SourceManual, SourceQuest, SourceRedemption:
		return true
	default:
		return false
	}
}

// PointsLedgerEntry is append-only. A revoke is a new negative entry.
type PointsLedgerEntry struct {
	ID            string     `gorm:"column:id;primaryKey" json:"id"`
	OrgID         string     `gorm:"column:org_id;index;not null" json:"org_id"`
	RepID         string     `gorm:"column:rep_id;not null;index:idx_points_rep_created,priority:1;uniqueIndex:idx_points_source,priority:1" json:"rep_id"`
	Points        int64      `gorm:"column:points;not null" json:"points"`
	SourceType    SourceType `gorm:"column:source_type;type:varchar(20);not null;uniqueIndex:idx_points_source,priority:2" json:"source_type"`
	SourceRef     *string    `gorm:"column:source_ref;uniqueIndex:idx_points_source,priority:3" json:"source_ref,omitempty"`
	Description   string     `gorm:"column:description;not null" json:"description"`
	CreatedBy     *string    `gorm:"column:created_by" json:"created_by,omitempty"`
	CorrelationID string     `gorm:"column:correlation_id" json:"correlation_id"`
	CreatedAt     time.Time  `gorm:"column:created_at;index:idx_points_rep_created,priority:2" json:"created_at"`
}

func (PointsLedgerEntry) TableName() string { return "points_ledger_entries" }

type AwardRequest struct {
	RepID       string
	OrgID       string
	Points      int64
	SourceType  SourceType
	Description string
	// SourceRef makes the award idempotent per (rep, source type).
	SourceRef *string
	CreatedBy *string
}

type SpendRequest struct {
	RepID       string
	OrgID       string
	Points      int64
	Description string
	SourceRef   string
}

type AwardPointsRequest struct {
	Points      int64  `json:"points" binding:"required"`
	Description string `json:"description" binding:"required,max=500"`
}

func Ref(s string) *string { return &s }
