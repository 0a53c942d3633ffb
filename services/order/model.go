package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	Draft     Status = "draft"
	Completed Status = "completed"
	Refunded  Status = "refunded"
	Failed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == Refunded || s == Failed
}

type TicketStatus string

const (
	TicketValid     TicketStatus = "valid"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
	TicketExpired   TicketStatus = "expired"
)

// Order is immutable once completed except for status, refunded_at and refund_reason.
type Order struct {
	ID           string          `gorm:"column:id;primaryKey" json:"id"`
	OrgID        string          `gorm:"column:org_id;not null;uniqueIndex:idx_order_org_number,priority:1" json:"org_id"`
	OrderNumber  string          `gorm:"column:order_number;not null;uniqueIndex:idx_order_org_number,priority:2" json:"order_number"`
	CustomerID   string          `gorm:"column:customer_id;index;not null" json:"customer_id"`
	EventID      string          `gorm:"column:event_id;index;not null" json:"event_id"`
	Status       Status          `gorm:"column:status;type:varchar(20);not null;default:'draft'" json:"status"`
	Subtotal     decimal.Decimal `gorm:"column:subtotal;type:decimal(14,2);not null" json:"subtotal"`
	Total        decimal.Decimal `gorm:"column:total;type:decimal(14,2);not null" json:"total"`
	Currency     string          `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	RepID        *string         `gorm:"column:rep_id;index" json:"rep_id,omitempty"`
	DiscountID   *string         `gorm:"column:discount_id;index" json:"discount_id,omitempty"`
	DiscountCode string          `gorm:"column:discount_code" json:"discount_code,omitempty"`
	CompletedAt  *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`
	RefundedAt   *time.Time      `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	RefundReason string          `gorm:"column:refund_reason" json:"refund_reason,omitempty"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID           string          `gorm:"column:id;primaryKey" json:"id"`
	OrderID      string          `gorm:"column:order_id;index;not null" json:"order_id"`
	TicketTypeID string          `gorm:"column:ticket_type_id;index;not null" json:"ticket_type_id"`
	Qty          int             `gorm:"column:qty;not null" json:"qty"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:decimal(14,2);not null" json:"unit_price"`
	MerchItem    string          `gorm:"column:merch_item" json:"merch_item,omitempty"`
	MerchSize    string          `gorm:"column:merch_size" json:"merch_size,omitempty"`
}

func (OrderItem) TableName() string { return "order_items" }

// Ticket is one admission unit. LineNo numbers the units of an order from 1 so that
// issuance can be resumed without duplicating tickets.
type Ticket struct {
	ID           string       `gorm:"column:id;primaryKey" json:"id"`
	OrgID        string       `gorm:"column:org_id;not null;uniqueIndex:idx_ticket_org_code,priority:1" json:"org_id"`
	TicketCode   string       `gorm:"column:ticket_code;not null;uniqueIndex:idx_ticket_org_code,priority:2" json:"ticket_code"`
	OrderID      string       `gorm:"column:order_id;not null;uniqueIndex:idx_ticket_order_line,priority:1" json:"order_id"`
	LineNo       int          `gorm:"column:line_no;not null;uniqueIndex:idx_ticket_order_line,priority:2" json:"line_no"`
	TicketTypeID string       `gorm:"column:ticket_type_id;index;not null" json:"ticket_type_id"`
	Status       TicketStatus `gorm:"column:status;type:varchar(20);not null;default:'valid'" json:"status"`
	MerchItem    string       `gorm:"column:merch_item" json:"merch_item,omitempty"`
	MerchSize    string       `gorm:"column:merch_size" json:"merch_size,omitempty"`
	CreatedAt    time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (Ticket) TableName() string { return "tickets" }

// TicketType.Sold caches the count of its non-cancelled tickets.
type TicketType struct {
	ID        string          `gorm:"column:id;primaryKey" json:"id"`
	OrgID     string          `gorm:"column:org_id;index;not null" json:"org_id"`
	EventID   string          `gorm:"column:event_id;index;not null" json:"event_id"`
	Name      string          `gorm:"column:name;not null" json:"name"`
	Price     decimal.Decimal `gorm:"column:price;type:decimal(14,2);not null" json:"price"`
	Sold      int64           `gorm:"column:sold;not null;default:0" json:"sold"`
	Capacity  int64           `gorm:"column:capacity;not null;default:0" json:"capacity"`
	CreatedAt time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (TicketType) TableName() string { return "ticket_types" }

// Customer aggregates cache the count and sum of its completed orders.
type Customer struct {
	ID          string          `gorm:"column:id;primaryKey" json:"id"`
	OrgID       string          `gorm:"column:org_id;not null;uniqueIndex:idx_customer_org_email,priority:1" json:"org_id"`
	Email       string          `gorm:"column:email;not null;uniqueIndex:idx_customer_org_email,priority:2" json:"email"`
	Name        string          `gorm:"column:name" json:"name"`
	TotalOrders int64           `gorm:"column:total_orders;not null;default:0" json:"total_orders"`
	TotalSpent  decimal.Decimal `gorm:"column:total_spent;type:decimal(14,2);not null;default:0" json:"total_spent"`
	CreatedAt   time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

type ItemRequest struct {
	TicketTypeID string `json:"ticket_type_id" binding:"required"`
	Qty          int    `json:"qty" binding:"required,gte=1,lte=50"`
	MerchItem    string `json:"merch_item" binding:"omitempty,max=80"`
	MerchSize    string `json:"merch_size" binding:"omitempty,max=10"`
}

type CreateOrderRequest struct {
	EventID       string        `json:"event_id" binding:"required"`
	CustomerEmail string        `json:"customer_email" binding:"required,email"`
	CustomerName  string        `json:"customer_name" binding:"omitempty,max=120"`
	Currency      string        `json:"currency" binding:"omitempty,len=3"`
	DiscountCode  string        `json:"discount_code" binding:"omitempty,max=32"`
	Items         []ItemRequest `json:"items" binding:"required,min=1,dive"`
}

type CreateTicketTypeRequest struct {
	EventID  string          `json:"event_id" binding:"required"`
	Name     string          `json:"name" binding:"required,max=120"`
	Price    decimal.Decimal `json:"price"`
	Capacity int64           `json:"capacity" binding:"gte=0"`
}

// Units returns the number of tickets items will produce.
func Units(items []*OrderItem) int {
	n := 0
	for _, it := range items {
		n += it.Qty
	}
	return n
}
