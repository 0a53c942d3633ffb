package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ticketing-commerce/pkg/db/option"
	"ticketing-commerce/pkg/db/pagination"
	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/pkg/repository"
	"ticketing-commerce/pkg/taskname"
	"ticketing-commerce/services/rep"
	"ticketing-commerce/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	repository.Repository[T]
	findOneFn     func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	updateWhereFn func(ctx context.Context, updates map[string]any, opts ...option.QueryOption) (int64, error)
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return m.Repository.FindOne(ctx, query, opts...)
}

func (m *repoMock[T]) UpdateWhere(ctx context.Context, updates map[string]any, opts ...option.QueryOption) (int64, error) {
	if m.updateWhereFn != nil {
		return m.updateWhereFn(ctx, updates, opts...)
	}
	return m.Repository.UpdateWhere(ctx, updates, opts...)
}

type fixture struct {
	db    *gorm.DB
	svc   *Service
	queue *testutil.Enqueuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, &rep.Rep{}, &PointsLedgerEntry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	queue := &testutil.Enqueuer{}
	return &fixture{
		db:    db,
		svc:   NewService(ServiceParams{DB: db, Node: node, Asynq: queue}),
		queue: queue,
	}
}

func (f *fixture) seedRep(t *testing.T, id string, balance int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&rep.Rep{ID: id, OrgID: "org-1", FirstName: "Ana", Status: rep.StatusActive, PointsBalance: balance}).Error)
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	var r rep.Rep
	require.NoError(t, f.db.First(&r, "id = ?", id).Error)
	return r.PointsBalance
}

func manual(repID string, points int64) AwardRequest {
	return AwardRequest{RepID: repID, OrgID: "org-1", Points: points, SourceType: SourceManual, Description: "adjustment"}
}

func TestAwardValidation(t *testing.T) {
	f := newFixture(t)
	f.seedRep(t, "rep-1", 0)
	ctx := context.Background()

	_, err := f.svc.Award(ctx, manual("rep-1", 0))
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	req := manual("rep-1", 10)
	req.Description = "  "
	_, err = f.svc.Award(ctx, req)
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	req = manual("rep-1", 10)
	req.SourceType = "gift"
	_, err = f.svc.Award(ctx, req)
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
}

func TestAwardUnknownRep(t *testing.T) {
	f := newFixture(t)
	f.seedRep(t, "rep-1", 0)

	req := manual("rep-1", 10)
	req.OrgID = "org-2"
	_, err := f.svc.Award(context.Background(), req)
	require.ErrorIs(t, err, rep.ErrRepNotFound)
}

func TestAwardKeepsBalanceEqualToLedger(t *testing.T) {
	f := newFixture(t)
	f.seedRep(t, "rep-1", 0)
	ctx := context.Background()

	balance, err := f.svc.Award(ctx, manual("rep-1", 100))
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)

	balance, err = f.svc.Award(ctx, manual("rep-1", -30))
	require.NoError(t, err)
	require.Equal(t, int64(70), balance)

	sum, err := f.svc.Sum(ctx, "rep-1")
	require.NoError(t, err)
	require.Equal(t, balance, sum)
}

func TestAwardIdempotentOnSourceRef(t *testing.T) {
	f := newFixture(t)
	f.seedRep(t, "rep-1", 0)
	ctx := context.Background()

	req := AwardRequest{RepID: "rep-1", OrgID: "org-1", Points: 20, SourceType: SourceSale, Description: "sale", SourceRef: Ref("order-1")}
	_, err := f.svc.Award(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Award(ctx, req)
	require.ErrorIs(t, err, ErrDuplicateSource)
	require.Equal(t, int64(20), f.balance(t, "rep-1"))

	// the same ref under another source type is a different award
	req.SourceType = SourceQuest
	_, err = f.svc.Award(ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(40), f.balance(t, "rep-1"))
}

func TestSourceRefUniqueIndexBackstop(t *testing.T) {
	f := newFixture(t)
	f.seedRep(t, "rep-1", 0)
	ctx := context.Background()

	req := AwardRequest{RepID: "rep-1", OrgID: "org-1", Points: 5, SourceType: SourceSale, Description: "sale", SourceRef: Ref("order-9")}
	require.NoError(t, f.svc.append(ctx, req))

	err := f.svc.append(ctx, req)
	require.True(t, repository.IsDuplicate(err))
}

func TestConcurrentAwards(t *testing.T) {
	f := newFixture(t)
	f.seedRep(t, "rep-1", 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Award(ctx, manual("rep-1", 5))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sum, err := f.svc.Sum(ctx, "rep-1")
	require.NoError(t, err)
	require.Equal(t, int64(100), sum)
	require.Equal(t, sum, f.balance(t, "rep-1"))
}

func TestBalanceUpdateFailureSchedulesHeal(t *testing.T) {
	f := newFixture(t)
	f.seedRep(t, "rep-1", 0)
	ctx := context.Background()

	f.svc.reps = &repoMock[rep.Rep]{
		Repository: f.svc.reps,
		updateWhereFn: func(context.Context, map[string]any, ...option.QueryOption) (int64, error) {
			return 0, errors.New("connection reset")
		},
	}

	balance, err := f.svc.Award(ctx, manual("rep-1", 40))
	require.NoError(t, err)
	require.Equal(t, int64(40), balance)
	require.Equal(t, int64(0), f.balance(t, "rep-1"))
	require.Equal(t, []string{taskname.LedgerHeal}, f.queue.Types())
}

func TestHealRestoresBalance(t *testing.T) {
	f := newFixture(t)
	f.seedRep(t, "rep-1", 0)
	ctx := context.Background()

	_, err := f.svc.Award(ctx, manual("rep-1", 75))
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&rep.Rep{}).Where("id = ?", "rep-1").Update("points_balance", 999).Error)

	healed, err := f.svc.Heal(ctx, "org-1", "rep-1")
	require.NoError(t, err)
	require.Equal(t, int64(75), healed)
	require.Equal(t, int64(75), f.balance(t, "rep-1"))
}

func TestSpend(t *testing.T) {
	f := newFixture(t)
	f.seedRep(t, "rep-1", 0)
	ctx := context.Background()

	_, err := f.svc.Award(ctx, manual("rep-1", 500))
	require.NoError(t, err)

	balance, err := f.svc.Spend(ctx, SpendRequest{RepID: "rep-1", OrgID: "org-1", Points: 500, Description: "hoodie", SourceRef: "claim-1"})
	require.NoError(t, err)
	require.Zero(t, balance)

	_, err = f.svc.Spend(ctx, SpendRequest{RepID: "rep-1", OrgID: "org-1", Points: 1, Description: "sticker", SourceRef: "claim-2"})
	require.ErrorIs(t, err, ErrInsufficientPoints)
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))

	sum, err := f.svc.Sum(ctx, "rep-1")
	require.NoError(t, err)
	require.Zero(t, sum)
	require.Zero(t, f.balance(t, "rep-1"))
}

func TestHistoryNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.seedRep(t, "rep-1", 0)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		_, err := f.svc.Award(ctx, manual("rep-1", i))
		require.NoError(t, err)
	}

	entries, info, err := f.svc.History(ctx, "org-1", "rep-1", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, info.HasMore)
	require.Equal(t, int64(3), entries[0].Points)
	require.Equal(t, int64(2), entries[1].Points)

	entries, info, err = f.svc.History(ctx, "org-1", "rep-1", pagination.Pagination{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.False(t, info.HasMore)
	require.Equal(t, int64(1), entries[0].Points)
}
