package discount

import (
	"slices"
	"time"

	"ticketing-commerce/services/rep"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Discount is an attribution code. UsedCount caches the number of completed orders
// carrying it.
type Discount struct {
	ID                 string                      `gorm:"column:id;primaryKey" json:"id"`
	OrgID              string                      `gorm:"column:org_id;not null;uniqueIndex:idx_discount_org_code,priority:1" json:"org_id"`
	Code               string                      `gorm:"column:code;not null;uniqueIndex:idx_discount_org_code,priority:2" json:"code"`
	RepID              *string                     `gorm:"column:rep_id;index" json:"rep_id,omitempty"`
	Type               string                      `gorm:"column:type;type:varchar(20);not null" json:"type"`
	Value              decimal.Decimal             `gorm:"column:value;type:decimal(14,2);not null" json:"value"`
	UsedCount          int64                       `gorm:"column:used_count;not null;default:0" json:"used_count"`
	ApplicableEventIDs datatypes.JSONSlice[string] `gorm:"column:applicable_event_ids" json:"applicable_event_ids,omitempty"`
	Status             string                      `gorm:"column:status;type:varchar(20);default:'active'" json:"status"`
	CreatedAt          time.Time                   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time                   `gorm:"column:updated_at" json:"updated_at"`
}

func (Discount) TableName() string { return "discounts" }

// Applies reports whether the discount covers eventID. An empty list covers every event.
func (d *Discount) Applies(eventID string) bool {
	if len(d.ApplicableEventIDs) == 0 {
		return true
	}
	return slices.Contains([]string(d.ApplicableEventIDs), eventID)
}

// Apply returns total after the discount, never below zero.
func (d *Discount) Apply(total decimal.Decimal) decimal.Decimal {
	var out decimal.Decimal
	switch d.Type {
	case rep.DiscountPercentage:
		off := total.Mul(d.Value).Div(decimal.NewFromInt(100))
		out = total.Sub(off)
	case rep.DiscountFixed:
		out = total.Sub(d.Value)
	default:
		out = total
	}
	if out.IsNegative() {
		return decimal.Zero
	}
	return out.Round(2)
}

type IssueDiscountRequest struct {
	ApplicableEventIDs []string `json:"applicable_event_ids"`
}
