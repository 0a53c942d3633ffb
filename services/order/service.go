package order

import (
	"context"
	"strings"

	"ticketing-commerce/pkg/db/option"
	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/pkg/logger"
	"ticketing-commerce/pkg/repository"
	"ticketing-commerce/pkg/sequence"
	"ticketing-commerce/services/discount"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCurrency = "USD"

var (
	ErrOrderNotFound      = errutil.BaseError{Code: errutil.StatusNotFound, Message: "order not found"}
	ErrTicketTypeNotFound = errutil.BaseError{Code: errutil.StatusNotFound, Message: "ticket type not found"}
	ErrSoldOut            = errutil.BaseError{Code: errutil.StatusConflict, Message: "ticket type sold out"}
	ErrAlreadyRefunded    = errutil.BaseError{Code: errutil.StatusConflict, Message: "order already refunded"}
	ErrNotCompletable     = errutil.BaseError{Code: errutil.StatusConflict, Message: "order cannot be completed"}
	ErrNotRefundable      = errutil.BaseError{Code: errutil.StatusConflict, Message: "only completed orders can be refunded"}
)

type PrefixSource interface {
	Prefix(ctx context.Context, orgID string) (string, error)
}

type DiscountResolver interface {
	Resolve(ctx context.Context, orgID, code string) (*discount.Discount, error)
}

type Service struct {
	node      *snowflake.Node
	issuer    *sequence.Issuer
	prefixes  PrefixSource
	discounts DiscountResolver

	orders      repository.Repository[Order]
	items       repository.Repository[OrderItem]
	tickets     repository.Repository[Ticket]
	ticketTypes repository.Repository[TicketType]
	customers   repository.Repository[Customer]
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Issuer    *sequence.Issuer
	Prefixes  PrefixSource
	Discounts DiscountResolver
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:      p.Node,
		issuer:    p.Issuer,
		prefixes:  p.Prefixes,
		discounts: p.Discounts,

		orders:      repository.ProvideStore[Order](p.DB),
		items:       repository.ProvideStore[OrderItem](p.DB),
		tickets:     repository.ProvideStore[Ticket](p.DB),
		ticketTypes: repository.ProvideStore[TicketType](p.DB),
		customers:   repository.ProvideStore[Customer](p.DB),
	}
}

func (s *Service) CountOrders(ctx context.Context, orgID string) (int64, error) {
	return s.orders.Count(ctx, &Order{OrgID: orgID})
}

func (s *Service) LastOrderNumber(ctx context.Context, orgID string) (string, error) {
	last, err := s.orders.FindOne(ctx, &Order{OrgID: orgID},
		option.WithSortBy("created_at", option.DESC),
		option.WithSortBy("id", option.DESC),
	)
	if err != nil || last == nil {
		return "", err
	}
	return last.OrderNumber, nil
}

func (s *Service) CreateTicketType(ctx context.Context, orgID string, req CreateTicketTypeRequest) (*TicketType, error) {
	if req.Price.IsNegative() {
		return nil, errutil.ValidationFailed("invalid ticket type", nil,
			errutil.WithDetails(errutil.Detail{Field: "price", Message: "must be >= 0"}))
	}

	tt := &TicketType{
		ID:       s.node.Generate().String(),
		OrgID:    orgID,
		EventID:  req.EventID,
		Name:     strings.TrimSpace(req.Name),
		Price:    req.Price.Round(2),
		Capacity: req.Capacity,
	}
	if err := s.ticketTypes.Create(ctx, tt); err != nil {
		return nil, errutil.Unavailable("failed to create ticket type", err)
	}
	return tt, nil
}

// CreateDraft prices the order, upserts the customer and reserves an order number.
// Capacity is checked against the cached sold counter and is advisory.
func (s *Service) CreateDraft(ctx context.Context, orgID string, req CreateOrderRequest) (*Order, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("org_id", orgID))

	if len(req.Items) == 0 {
		return nil, errutil.ValidationFailed("order has no items", nil,
			errutil.WithDetails(errutil.Detail{Field: "items", Message: "at least one item is required"}))
	}

	types, err := s.loadTicketTypes(ctx, orgID, req)
	if err != nil {
		return nil, err
	}

	wanted := map[string]int64{}
	subtotal := decimal.Zero
	for _, it := range req.Items {
		if it.Qty <= 0 {
			return nil, errutil.ValidationFailed("invalid item quantity", nil,
				errutil.WithDetails(errutil.Detail{Field: "qty", Message: "must be positive"}))
		}
		tt := types[it.TicketTypeID]
		wanted[tt.ID] += int64(it.Qty)
		subtotal = subtotal.Add(tt.Price.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	for id, qty := range wanted {
		tt := types[id]
		if tt.Capacity > 0 && tt.Sold+qty > tt.Capacity {
			return nil, ErrSoldOut
		}
	}

	total := subtotal
	var disc *discount.Discount
	if req.DiscountCode != "" {
		disc, err = s.discounts.Resolve(ctx, orgID, req.DiscountCode)
		if err != nil {
			return nil, err
		}
		if !disc.Applies(req.EventID) {
			return nil, errutil.ValidationFailed("discount code does not apply to this event", nil,
				errutil.WithDetails(errutil.Detail{Field: "discount_code", Message: "not applicable"}))
		}
		total = disc.Apply(subtotal)
	}

	customer, err := s.upsertCustomer(ctx, orgID, req.CustomerEmail, req.CustomerName)
	if err != nil {
		return nil, err
	}

	prefix, err := s.prefixes.Prefix(ctx, orgID)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = defaultCurrency
	}

	var created *Order
	_, err = s.issuer.IssueOrderNumber(ctx, orgID, prefix, s, func(ctx context.Context, number string) error {
		o := &Order{
			ID:          s.node.Generate().String(),
			OrgID:       orgID,
			OrderNumber: number,
			CustomerID:  customer.ID,
			EventID:     req.EventID,
			Status:      Draft,
			Subtotal:    subtotal.Round(2),
			Total:       total.Round(2),
			Currency:    currency,
		}
		if disc != nil {
			o.DiscountID = &disc.ID
			o.DiscountCode = disc.Code
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		zapLog.Error("failed to reserve order number", zap.Error(err))
		if errutil.StatusOf(err) != errutil.StatusUnknown {
			return nil, err
		}
		return nil, errutil.Unavailable("failed to create order", err)
	}

	items := make([]*OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, &OrderItem{
			ID:           s.node.Generate().String(),
			OrderID:      created.ID,
			TicketTypeID: it.TicketTypeID,
			Qty:          it.Qty,
			UnitPrice:    types[it.TicketTypeID].Price,
			MerchItem:    it.MerchItem,
			MerchSize:    it.MerchSize,
		})
	}
	if err := s.items.BatchCreate(ctx, items); err != nil {
		zapLog.Error("failed to create order items, failing order", zap.String("order_id", created.ID), zap.Error(err))
		if _, ferr := s.Transition(ctx, orgID, created.ID, Draft, Failed, nil); ferr != nil {
			zapLog.Error("failed to mark order failed", zap.String("order_id", created.ID), zap.Error(ferr))
		}
		return nil, errutil.Unavailable("failed to create order items", err)
	}

	zapLog.Info("draft order created", zap.String("order_id", created.ID), zap.String("order_number", created.OrderNumber))
	return created, nil
}

func (s *Service) loadTicketTypes(ctx context.Context, orgID string, req CreateOrderRequest) (map[string]*TicketType, error) {
	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.TicketTypeID)
	}

	found, err := s.ticketTypes.Find(ctx, &TicketType{OrgID: orgID}, option.WithIn("id", ids))
	if err != nil {
		return nil, errutil.Unavailable("failed to load ticket types", err)
	}

	types := make(map[string]*TicketType, len(found))
	for _, tt := range found {
		types[tt.ID] = tt
	}
	for _, id := range ids {
		tt, ok := types[id]
		if !ok {
			return nil, ErrTicketTypeNotFound
		}
		if tt.EventID != req.EventID {
			return nil, errutil.ValidationFailed("ticket type belongs to another event", nil,
				errutil.WithDetails(errutil.Detail{Field: "ticket_type_id", Message: id}))
		}
	}
	return types, nil
}

func (s *Service) upsertCustomer(ctx context.Context, orgID, email, name string) (*Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	c, err := s.customers.FindOne(ctx, &Customer{OrgID: orgID, Email: email})
	if err != nil {
		return nil, errutil.Unavailable("failed to get customer", err)
	}
	if c != nil {
		return c, nil
	}

	c = &Customer{
		ID:    s.node.Generate().String(),
		OrgID: orgID,
		Email: email,
		Name:  strings.TrimSpace(name),
	}
	if err := s.customers.Create(ctx, c); err != nil {
		if !repository.IsDuplicate(err) {
			return nil, errutil.Unavailable("failed to create customer", err)
		}
		// lost the insert race; the winner's row is the customer
		c, err = s.customers.FindOne(ctx, &Customer{OrgID: orgID, Email: email})
		if err != nil || c == nil {
			return nil, errutil.Unavailable("failed to get customer", err)
		}
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, orgID, orderID string) (*Order, error) {
	o, err := s.orders.FindOne(ctx, &Order{ID: orderID, OrgID: orgID})
	if err != nil {
		return nil, errutil.Unavailable("failed to get order", err)
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) Items(ctx context.Context, orderID string) ([]*OrderItem, error) {
	items, err := s.items.Find(ctx, &OrderItem{OrderID: orderID}, option.WithSortBy("id", option.ASC))
	if err != nil {
		return nil, errutil.Unavailable("failed to load order items", err)
	}
	return items, nil
}

func (s *Service) Tickets(ctx context.Context, orderID string) ([]*Ticket, error) {
	tickets, err := s.tickets.Find(ctx, &Ticket{OrderID: orderID}, option.WithSortBy("line_no", option.ASC))
	if err != nil {
		return nil, errutil.Unavailable("failed to load tickets", err)
	}
	return tickets, nil
}

func (s *Service) TicketAt(ctx context.Context, orderID string, lineNo int) (*Ticket, error) {
	t, err := s.tickets.FindOne(ctx, &Ticket{OrderID: orderID, LineNo: lineNo})
	if err != nil {
		return nil, errutil.Unavailable("failed to load ticket", err)
	}
	return t, nil
}

// CreateTicket inserts t. Duplicate key errors are returned unwrapped so the caller can
// tell a code collision from an already issued line.
func (s *Service) CreateTicket(ctx context.Context, t *Ticket) error {
	if t.ID == "" {
		t.ID = s.node.Generate().String()
	}
	return s.tickets.Create(ctx, t)
}

// CancelTickets cancels every live ticket of the order and reports how many moved.
func (s *Service) CancelTickets(ctx context.Context, orderID string) (int64, error) {
	n, err := s.tickets.UpdateWhere(ctx, map[string]any{"status": TicketCancelled},
		option.ApplyOperator("order_id = ? AND status <> ?", orderID, TicketCancelled))
	if err != nil {
		return 0, errutil.Unavailable("failed to cancel tickets", err)
	}
	return n, nil
}

// Transition moves an order from one status to another under a status guard and
// reports whether this call performed the move.
func (s *Service) Transition(ctx context.Context, orgID, orderID string, from, to Status, extra map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	n, err := s.orders.UpdateWhere(ctx, updates,
		option.ApplyOperator("id = ? AND org_id = ? AND status = ?", orderID, orgID, from))
	if err != nil {
		return false, errutil.Unavailable("failed to update order status", err)
	}
	return n == 1, nil
}

// AttributeRep links the order to repID unless it is already attributed.
func (s *Service) AttributeRep(ctx context.Context, orderID, repID string) (bool, error) {
	n, err := s.orders.UpdateWhere(ctx, map[string]any{"rep_id": repID},
		option.ApplyOperator("id = ? AND rep_id IS NULL", orderID))
	if err != nil {
		return false, errutil.Unavailable("failed to attribute order", err)
	}
	return n == 1, nil
}

// Fail moves a draft to failed. Failing an already failed order is a no-op.
func (s *Service) Fail(ctx context.Context, orgID, orderID string) (*Order, error) {
	moved, err := s.Transition(ctx, orgID, orderID, Draft, Failed, nil)
	if err != nil {
		return nil, err
	}

	o, err := s.Get(ctx, orgID, orderID)
	if err != nil {
		return nil, err
	}
	if !moved && o.Status != Failed {
		return nil, errutil.Conflict("only draft orders can fail", nil,
			errutil.WithDetails(errutil.Detail{Field: "status", Message: string(o.Status)}))
	}
	return o, nil
}

func (s *Service) Customer(ctx context.Context, orgID, customerID string) (*Customer, error) {
	c, err := s.customers.FindOne(ctx, &Customer{ID: customerID, OrgID: orgID})
	if err != nil {
		return nil, errutil.Unavailable("failed to get customer", err)
	}
	if c == nil {
		return nil, errutil.NotFound("customer not found", nil)
	}
	return c, nil
}
