package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/pkg/featureflags"
	"ticketing-commerce/pkg/rediskey"
	"ticketing-commerce/pkg/sequence"
	"ticketing-commerce/pkg/taskname"
	"ticketing-commerce/services/discount"
	"ticketing-commerce/services/ledger"
	"ticketing-commerce/services/order"
	"ticketing-commerce/services/reconcile"
	"ticketing-commerce/services/rep"
	"ticketing-commerce/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeOrg struct{}

func (fakeOrg) Prefix(context.Context, string) (string, error) { return "ORG", nil }

func (fakeOrg) RepSettings(context.Context, string) (rep.Settings, error) {
	return rep.DefaultSettings(), nil
}

type fixture struct {
	svc       *Service
	db        *gorm.DB
	orders    *order.Service
	discounts *discount.Service
	queue     *testutil.Enqueuer
	locker    *testutil.Locker
	gaA       *order.TicketType
	gaB       *order.TicketType
}

func newFixture(t *testing.T, flags featureflags.FeatureFlag) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t,
		&order.Order{}, &order.OrderItem{}, &order.Ticket{}, &order.TicketType{}, &order.Customer{},
		&rep.Rep{}, &ledger.PointsLedgerEntry{}, &discount.Discount{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	issuer := sequence.New()
	queue := &testutil.Enqueuer{}
	locker := &testutil.Locker{}

	discounts := discount.NewService(discount.ServiceParams{DB: db, Node: node, Issuer: issuer, Settings: fakeOrg{}})
	orders := order.NewService(order.ServiceParams{DB: db, Node: node, Issuer: issuer, Prefixes: fakeOrg{}, Discounts: discounts})
	points := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Asynq: queue})
	reconciler := reconcile.NewService(reconcile.ServiceParams{DB: db, Asynq: queue})

	svc := NewService(Params{
		Orders:     orders,
		Reconciler: reconciler,
		Issuer:     issuer,
		Points:     points,
		Discounts:  discounts,
		Orgs:       fakeOrg{},
		Locker:     locker,
		Asynq:      queue,
		Flags:      flags,
	})

	require.NoError(t, db.Create(&rep.Rep{
		ID: "rep-1", OrgID: "org-1", FirstName: "Elodie", Email: "elodie@example.com",
		Status: rep.StatusActive, Level: 1,
	}).Error)

	ctx := context.Background()
	gaA, err := orders.CreateTicketType(ctx, "org-1", order.CreateTicketTypeRequest{EventID: "evt-1", Name: "A", Price: decimal.NewFromInt(20)})
	require.NoError(t, err)
	gaB, err := orders.CreateTicketType(ctx, "org-1", order.CreateTicketTypeRequest{EventID: "evt-1", Name: "B", Price: decimal.NewFromInt(30)})
	require.NoError(t, err)

	return &fixture{svc: svc, db: db, orders: orders, discounts: discounts, queue: queue, locker: locker, gaA: gaA, gaB: gaB}
}

// draft creates a draft for fan@example.com. A non-empty code is the rep's discount.
func (f *fixture) draft(t *testing.T, withDiscount bool, items ...order.ItemRequest) *order.Order {
	t.Helper()
	ctx := context.Background()

	req := order.CreateOrderRequest{EventID: "evt-1", CustomerEmail: "fan@example.com", Items: items}
	if withDiscount {
		d, err := f.discounts.IssueRepDiscount(ctx, "org-1", "rep-1", discount.IssueDiscountRequest{})
		require.NoError(t, err)
		req.DiscountCode = d.Code
	}

	o, err := f.orders.CreateDraft(ctx, "org-1", req)
	require.NoError(t, err)
	return o
}

func (f *fixture) rep(t *testing.T) rep.Rep {
	t.Helper()
	var r rep.Rep
	require.NoError(t, f.db.First(&r, "id = ?", "rep-1").Error)
	return r
}

func (f *fixture) sold(t *testing.T, id string) int64 {
	t.Helper()
	var tt order.TicketType
	require.NoError(t, f.db.First(&tt, "id = ?", id).Error)
	return tt.Sold
}

func (f *fixture) ledgerSum(t *testing.T) int64 {
	t.Helper()
	var sum int64
	require.NoError(t, f.db.Model(&ledger.PointsLedgerEntry{}).Where("rep_id = ?", "rep-1").
		Select("COALESCE(SUM(points), 0)").Scan(&sum).Error)
	return sum
}

func TestCompleteAppliesSideEffects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	o := f.draft(t, true,
		order.ItemRequest{TicketTypeID: f.gaA.ID, Qty: 2},
		order.ItemRequest{TicketTypeID: f.gaB.ID, Qty: 1},
	)
	require.True(t, decimal.RequireFromString("63").Equal(o.Total))

	res, err := f.svc.Complete(ctx, "org-1", o.ID)
	require.NoError(t, err)
	require.False(t, res.Replayed)
	require.Equal(t, order.Completed, res.Status)
	require.Len(t, res.TicketCodes, 3)
	for _, code := range res.TicketCodes {
		require.True(t, strings.HasPrefix(code, "ORG-"))
		require.Len(t, code, len("ORG-")+sequence.TicketCodeLength)
	}
	require.Equal(t, int64(1), res.Customer.TotalOrders)
	require.True(t, decimal.RequireFromString("63").Equal(res.Customer.TotalSpent))

	require.Equal(t, int64(2), f.sold(t, f.gaA.ID))
	require.Equal(t, int64(1), f.sold(t, f.gaB.ID))

	r := f.rep(t)
	require.Equal(t, int64(73), r.PointsBalance)
	require.Equal(t, f.ledgerSum(t), r.PointsBalance)
	require.Equal(t, int64(1), r.TotalSales)
	require.True(t, decimal.RequireFromString("63").Equal(r.TotalRevenue))

	stored, err := f.orders.Get(ctx, "org-1", o.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RepID)
	require.Equal(t, "rep-1", *stored.RepID)
	require.NotNil(t, stored.CompletedAt)

	var d discount.Discount
	require.NoError(t, f.db.First(&d, "id = ?", *stored.DiscountID).Error)
	require.Equal(t, int64(1), d.UsedCount)

	require.Contains(t, f.queue.Types(), taskname.OrderNotify)
}

func TestCompleteReplay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.draft(t, true, order.ItemRequest{TicketTypeID: f.gaA.ID, Qty: 3})

	first, err := f.svc.Complete(ctx, "org-1", o.ID)
	require.NoError(t, err)

	second, err := f.svc.Complete(ctx, "org-1", o.ID)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.TicketCodes, second.TicketCodes)

	var tickets int64
	require.NoError(t, f.db.Model(&order.Ticket{}).Where("order_id = ?", o.ID).Count(&tickets).Error)
	require.Equal(t, int64(3), tickets)

	var entries int64
	require.NoError(t, f.db.Model(&ledger.PointsLedgerEntry{}).Where("rep_id = ?", "rep-1").Count(&entries).Error)
	require.Equal(t, int64(1), entries)
	require.Equal(t, f.ledgerSum(t), f.rep(t).PointsBalance)
	require.Equal(t, int64(3), f.sold(t, f.gaA.ID))
}

func TestCompleteFillsMissingTickets(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.draft(t, false, order.ItemRequest{TicketTypeID: f.gaA.ID, Qty: 3})

	first, err := f.svc.Complete(ctx, "org-1", o.ID)
	require.NoError(t, err)

	require.NoError(t, f.db.Where("order_id = ? AND line_no = ?", o.ID, 2).Delete(&order.Ticket{}).Error)

	second, err := f.svc.Complete(ctx, "org-1", o.ID)
	require.NoError(t, err)
	require.Len(t, second.TicketCodes, 3)
	require.Equal(t, first.TicketCodes[0], second.TicketCodes[0])
	require.Equal(t, first.TicketCodes[2], second.TicketCodes[2])
	require.NotEqual(t, first.TicketCodes[1], second.TicketCodes[1])
}

func TestCompleteRejectsFailedOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.draft(t, false, order.ItemRequest{TicketTypeID: f.gaA.ID, Qty: 1})

	_, err := f.orders.Fail(ctx, "org-1", o.ID)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, "org-1", o.ID)
	require.Error(t, err)
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))

	var tickets int64
	require.NoError(t, f.db.Model(&order.Ticket{}).Where("order_id = ?", o.ID).Count(&tickets).Error)
	require.Zero(t, tickets)
}

func TestCompleteWithoutSalePoints(t *testing.T) {
	f := newFixture(t, featureflags.Static{featureflags.RepPointsOnSale: false})
	o := f.draft(t, true, order.ItemRequest{TicketTypeID: f.gaA.ID, Qty: 1})

	_, err := f.svc.Complete(context.Background(), "org-1", o.ID)
	require.NoError(t, err)

	r := f.rep(t)
	require.Zero(t, r.PointsBalance)
	require.Equal(t, int64(1), r.TotalSales)
}

func TestCompleteWhileLocked(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.draft(t, false, order.ItemRequest{TicketTypeID: f.gaA.ID, Qty: 1})

	release, ok, err := f.locker.Acquire(ctx, rediskey.BuildOrderOperationKey(o.ID, "mutate"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Complete(ctx, "org-1", o.ID)
	require.ErrorIs(t, err, ErrOperationInProgress)

	release(ctx)
	_, err = f.svc.Complete(ctx, "org-1", o.ID)
	require.NoError(t, err)
}

func TestRefund(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	earlier := f.draft(t, false, order.ItemRequest{TicketTypeID: f.gaA.ID, Qty: 8})
	_, err := f.svc.Complete(ctx, "org-1", earlier.ID)
	require.NoError(t, err)

	o := f.draft(t, true,
		order.ItemRequest{TicketTypeID: f.gaA.ID, Qty: 2},
		order.ItemRequest{TicketTypeID: f.gaB.ID, Qty: 1},
	)
	_, err = f.svc.Complete(ctx, "org-1", o.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), f.sold(t, f.gaA.ID))
	require.Equal(t, int64(73), f.rep(t).PointsBalance)

	res, err := f.svc.Refund(ctx, "org-1", o.ID, RefundRequest{Reason: " changed plans "})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, int64(3), res.TicketsCancelled)
	require.Equal(t, int64(73), res.PointsRevoked)

	require.Equal(t, int64(8), f.sold(t, f.gaA.ID))
	require.Equal(t, int64(0), f.sold(t, f.gaB.ID))

	r := f.rep(t)
	require.Zero(t, r.PointsBalance)
	require.Equal(t, f.ledgerSum(t), r.PointsBalance)
	require.Zero(t, r.TotalSales)

	c, err := f.orders.Customer(ctx, "org-1", o.CustomerID)
	require.NoError(t, err)
	require.Equal(t, int64(1), c.TotalOrders)
	require.True(t, decimal.NewFromInt(160).Equal(c.TotalSpent))

	stored, err := f.orders.Get(ctx, "org-1", o.ID)
	require.NoError(t, err)
	require.Equal(t, order.Refunded, stored.Status)
	require.Equal(t, "changed plans", stored.RefundReason)
	require.NotNil(t, stored.RefundedAt)

	_, err = f.svc.Refund(ctx, "org-1", o.ID, RefundRequest{})
	require.ErrorIs(t, err, order.ErrAlreadyRefunded)
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))
	require.Equal(t, int64(8), f.sold(t, f.gaA.ID))
	require.Zero(t, f.rep(t).PointsBalance)
}

func TestRefundDraftRejected(t *testing.T) {
	f := newFixture(t, nil)
	o := f.draft(t, false, order.ItemRequest{TicketTypeID: f.gaA.ID, Qty: 1})

	_, err := f.svc.Refund(context.Background(), "org-1", o.ID, RefundRequest{})
	require.ErrorIs(t, err, order.ErrNotRefundable)
}

func TestRefundUnknownOrder(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Refund(context.Background(), "org-1", "missing", RefundRequest{})
	require.ErrorIs(t, err, order.ErrOrderNotFound)
}

// interruptingOrg runs hook once, on the first call of the named method.
type interruptingOrg struct {
	fakeOrg
	on   string
	hook func()
	done *bool
}

func (o interruptingOrg) fire(method string) {
	if o.on == method && !*o.done {
		*o.done = true
		o.hook()
	}
}

func (o interruptingOrg) Prefix(ctx context.Context, orgID string) (string, error) {
	o.fire("Prefix")
	return o.fakeOrg.Prefix(ctx, orgID)
}

func (o interruptingOrg) RepSettings(ctx context.Context, orgID string) (rep.Settings, error) {
	o.fire("RepSettings")
	return o.fakeOrg.RepSettings(ctx, orgID)
}

func TestRefundDuringUnlockedCompletion(t *testing.T) {
	tests := []struct {
		name string
		on   string
	}{
		{name: "before tickets are issued", on: "Prefix"},
		{name: "before points are awarded", on: "RepSettings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			ctx := context.Background()
			o := f.draft(t, true,
				order.ItemRequest{TicketTypeID: f.gaA.ID, Qty: 2},
				order.ItemRequest{TicketTypeID: f.gaB.ID, Qty: 1},
			)

			var refundErr error
			fired := false
			f.svc.locker = nil
			f.svc.orgs = interruptingOrg{on: tt.on, done: &fired, hook: func() {
				_, refundErr = f.svc.Refund(ctx, "org-1", o.ID, RefundRequest{Reason: "duplicate"})
			}}

			_, err := f.svc.Complete(ctx, "org-1", o.ID)
			require.True(t, fired)
			require.NoError(t, refundErr)
			require.ErrorIs(t, err, ErrRefundedDuringCompletion)
			require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))

			stored, err := f.orders.Get(ctx, "org-1", o.ID)
			require.NoError(t, err)
			require.Equal(t, order.Refunded, stored.Status)

			var valid int64
			require.NoError(t, f.db.Model(&order.Ticket{}).
				Where("order_id = ? AND status = ?", o.ID, order.TicketValid).Count(&valid).Error)
			require.Zero(t, valid)
			require.Zero(t, f.sold(t, f.gaA.ID))
			require.Zero(t, f.sold(t, f.gaB.ID))

			r := f.rep(t)
			require.Zero(t, r.PointsBalance)
			require.Equal(t, f.ledgerSum(t), r.PointsBalance)
			require.Zero(t, r.TotalSales)
		})
	}
}

func TestRefundSchedulesSweepWhenItemsUnavailable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.draft(t, false, order.ItemRequest{TicketTypeID: f.gaA.ID, Qty: 2})
	_, err := f.svc.Complete(ctx, "org-1", o.ID)
	require.NoError(t, err)

	require.NoError(t, f.db.Migrator().DropTable(&order.OrderItem{}))

	res, err := f.svc.Refund(ctx, "org-1", o.ID, RefundRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.TicketsCancelled)
	require.Contains(t, f.queue.Types(), taskname.SweepOrg)
}
