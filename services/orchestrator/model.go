package orchestrator

import (
	"time"

	"ticketing-commerce/services/order"

	"github.com/shopspring/decimal"
)

type CompleteResult struct {
	OrderID     string       `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	Status      order.Status `json:"status"`
	TicketCodes []string     `json:"ticket_codes"`
	Customer    Aggregates   `json:"customer"`
	// Replayed is set when the order was already completed before this call.
	Replayed bool `json:"replayed"`
}

// Aggregates is the customer's counters as read after reconciliation.
type Aggregates struct {
	TotalOrders int64           `json:"total_orders"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
}

type RefundRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

type RefundResult struct {
	Success          bool      `json:"success"`
	OrderID          string    `json:"order_id"`
	TicketsCancelled int64     `json:"tickets_cancelled"`
	PointsRevoked    int64     `json:"points_revoked"`
	RefundedAt       time.Time `json:"refunded_at"`
}
