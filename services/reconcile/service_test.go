package reconcile

import (
	"context"
	"errors"
	"testing"

	"ticketing-commerce/pkg/task"
	"ticketing-commerce/pkg/taskname"
	"ticketing-commerce/services/discount"
	"ticketing-commerce/services/order"
	"ticketing-commerce/services/rep"
	"ticketing-commerce/services/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *testutil.Enqueuer) {
	t.Helper()
	db := testutil.NewTestDB(t,
		&order.Order{}, &order.Ticket{}, &order.TicketType{}, &order.Customer{},
		&rep.Rep{}, &discount.Discount{},
	)
	queue := &testutil.Enqueuer{}
	return NewService(ServiceParams{DB: db, Asynq: queue}), db, queue
}

func strPtr(s string) *string { return &s }

func seedOrder(t *testing.T, db *gorm.DB, id string, status order.Status, total string, mutate func(*order.Order)) {
	t.Helper()
	o := &order.Order{
		ID:          id,
		OrgID:       "org-1",
		OrderNumber: "ORG-" + id,
		CustomerID:  "cust-1",
		EventID:     "evt-1",
		Status:      status,
		Total:       decimal.RequireFromString(total),
		Currency:    "USD",
	}
	if mutate != nil {
		mutate(o)
	}
	require.NoError(t, db.Create(o).Error)
}

func TestReconcileTicketTypeSold(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&order.TicketType{ID: "tt-1", OrgID: "org-1", EventID: "evt-1", Name: "GA", Sold: 40}).Error)
	for i, status := range []order.TicketStatus{order.TicketValid, order.TicketUsed, order.TicketCancelled} {
		require.NoError(t, db.Create(&order.Ticket{
			ID: string(rune('a' + i)), OrgID: "org-1", OrderID: "o-1", LineNo: i + 1,
			TicketCode: "ORG-CODE000" + string(rune('A'+i)), TicketTypeID: "tt-1", Status: status,
		}).Error)
	}

	for range 2 {
		sold, err := svc.ReconcileTicketTypeSold(ctx, "tt-1")
		require.NoError(t, err)
		require.Equal(t, int64(2), sold)
	}

	var tt order.TicketType
	require.NoError(t, db.First(&tt, "id = ?", "tt-1").Error)
	require.Equal(t, int64(2), tt.Sold)
}

func TestReconcileCustomerAggregates(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&order.Customer{ID: "cust-1", OrgID: "org-1", Email: "fan@example.com", TotalOrders: 9, TotalSpent: decimal.NewFromInt(999)}).Error)
	seedOrder(t, db, "o-1", order.Completed, "10.00", nil)
	seedOrder(t, db, "o-2", order.Completed, "20.50", nil)
	seedOrder(t, db, "o-3", order.Refunded, "5.00", nil)
	seedOrder(t, db, "o-4", order.Draft, "7.00", nil)

	agg, err := svc.ReconcileCustomerAggregates(ctx, "cust-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), agg.TotalOrders)
	require.True(t, decimal.RequireFromString("30.50").Equal(agg.TotalSpent))

	var c order.Customer
	require.NoError(t, db.First(&c, "id = ?", "cust-1").Error)
	require.Equal(t, int64(2), c.TotalOrders)
	require.True(t, decimal.RequireFromString("30.50").Equal(c.TotalSpent))
}

func TestReconcileRepAggregatesAndDiscountUsage(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&rep.Rep{ID: "rep-1", OrgID: "org-1", FirstName: "Ana", Status: rep.StatusActive}).Error)
	require.NoError(t, db.Create(&discount.Discount{ID: "d-1", OrgID: "org-1", Code: "REP-ANA000001", Type: rep.DiscountPercentage, Value: decimal.NewFromInt(10), UsedCount: 7}).Error)

	attributed := func(o *order.Order) {
		o.RepID = strPtr("rep-1")
		o.DiscountID = strPtr("d-1")
	}
	seedOrder(t, db, "o-1", order.Completed, "36.00", attributed)
	seedOrder(t, db, "o-2", order.Completed, "18.00", attributed)
	seedOrder(t, db, "o-3", order.Refunded, "18.00", attributed)
	seedOrder(t, db, "o-4", order.Completed, "50.00", nil)

	agg, err := svc.ReconcileRepAggregates(ctx, "rep-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), agg.TotalSales)
	require.True(t, decimal.NewFromInt(54).Equal(agg.TotalRevenue))

	used, err := svc.ReconcileDiscountUsage(ctx, "d-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), used)

	var r rep.Rep
	require.NoError(t, db.First(&r, "id = ?", "rep-1").Error)
	require.Equal(t, int64(2), r.TotalSales)
}

func TestSettleDefersFailures(t *testing.T) {
	svc, _, queue := newTestService(t)
	ctx := context.Background()
	payload := task.ReconcilePayload{OrgID: "org-1", EntityID: "cust-1", Reason: "order_completed"}

	svc.Settle(ctx, taskname.ReconcileCustomer, payload, func(context.Context) error { return nil })
	require.Empty(t, queue.Types())

	svc.Settle(ctx, taskname.ReconcileCustomer, payload, func(context.Context) error { return errors.New("db down") })
	require.Equal(t, []string{taskname.ReconcileCustomer}, queue.Types())
}

func TestSweepOrgRecomputesEveryCounter(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&order.TicketType{ID: "tt-1", OrgID: "org-1", EventID: "evt-1", Name: "GA", Sold: 99}).Error)
	require.NoError(t, db.Create(&order.TicketType{ID: "tt-2", OrgID: "org-2", EventID: "evt-9", Name: "VIP", Sold: 99}).Error)
	require.NoError(t, db.Create(&order.Customer{ID: "cust-1", OrgID: "org-1", Email: "fan@example.com", TotalOrders: 5}).Error)
	require.NoError(t, db.Create(&rep.Rep{ID: "rep-1", OrgID: "org-1", FirstName: "Ana", Status: rep.StatusActive, TotalSales: 8}).Error)
	require.NoError(t, db.Create(&discount.Discount{ID: "d-1", OrgID: "org-1", Code: "REP-ANA000001", Type: rep.DiscountPercentage, Value: decimal.NewFromInt(10), UsedCount: 3}).Error)

	seedOrder(t, db, "o-1", order.Completed, "12.00", func(o *order.Order) {
		o.RepID = strPtr("rep-1")
		o.DiscountID = strPtr("d-1")
	})
	require.NoError(t, db.Create(&order.Ticket{
		ID: "t-1", OrgID: "org-1", OrderID: "o-1", LineNo: 1,
		TicketCode: "ORG-CODE0001", TicketTypeID: "tt-1", Status: order.TicketValid,
	}).Error)

	report, err := svc.SweepOrg(ctx, "org-1")
	require.NoError(t, err)
	require.Equal(t, 1, report.TicketTypes)
	require.Equal(t, 1, report.Customers)
	require.Equal(t, 1, report.Reps)
	require.Equal(t, 1, report.Discounts)
	require.Zero(t, report.Failed)
	require.Equal(t, []string{"rep-1"}, report.RepIDs)

	var tt order.TicketType
	require.NoError(t, db.First(&tt, "id = ?", "tt-1").Error)
	require.Equal(t, int64(1), tt.Sold)
	var untouched order.TicketType
	require.NoError(t, db.First(&untouched, "id = ?", "tt-2").Error)
	require.Equal(t, int64(99), untouched.Sold)

	var c order.Customer
	require.NoError(t, db.First(&c, "id = ?", "cust-1").Error)
	require.Equal(t, int64(1), c.TotalOrders)

	var r rep.Rep
	require.NoError(t, db.First(&r, "id = ?", "rep-1").Error)
	require.Equal(t, int64(1), r.TotalSales)

	var d discount.Discount
	require.NoError(t, db.First(&d, "id = ?", "d-1").Error)
	require.Equal(t, int64(1), d.UsedCount)
}
