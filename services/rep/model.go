package rep

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Rep is an affiliate account. PointsBalance caches the sum of its ledger entries;
// TotalSales and TotalRevenue cache its attributed completed orders.
type Rep struct {
	ID              string          `gorm:"column:id;primaryKey" json:"id"`
	OrgID           string          `gorm:"column:org_id;index;not null" json:"org_id"`
	UserID          string          `gorm:"column:user_id;index" json:"user_id,omitempty"`
	FirstName       string          `gorm:"column:first_name" json:"first_name"`
	LastName        string          `gorm:"column:last_name" json:"last_name"`
	Email           string          `gorm:"column:email" json:"email"`
	Status          string          `gorm:"column:status;type:varchar(20);default:'active'" json:"status"`
	PointsBalance   int64           `gorm:"column:points_balance;not null;default:0" json:"points_balance"`
	CurrencyBalance decimal.Decimal `gorm:"column:currency_balance;type:decimal(14,2);not null;default:0" json:"currency_balance"`
	TotalSales      int64           `gorm:"column:total_sales;not null;default:0" json:"total_sales"`
	TotalRevenue    decimal.Decimal `gorm:"column:total_revenue;type:decimal(14,2);not null;default:0" json:"total_revenue"`
	Level           int             `gorm:"column:level;not null;default:1" json:"level"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Rep) TableName() string { return "reps" }

func (r *Rep) IsActive() bool {
	return r.Status == StatusActive
}

func (r *Rep) DisplayName() string {
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}
