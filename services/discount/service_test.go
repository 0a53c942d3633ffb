package discount

import (
	"context"
	"regexp"
	"testing"

	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/pkg/sequence"
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

type staticSettings struct {
	settings rep.Settings
}

func (s staticSettings) RepSettings(context.Context, string) (rep.Settings, error) {
	return s.settings, nil
}

func newTestService(t *testing.T, settings rep.Settings) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &rep.Rep{}, &Discount{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Issuer:   sequence.New(),
		Settings: staticSettings{settings: settings},
	})
	return svc, db
}

func TestApply(t *testing.T) {
	pct := &Discount{Type: rep.DiscountPercentage, Value: decimal.NewFromInt(10)}
	require.Equal(t, "90", pct.Apply(decimal.NewFromInt(100)).String())
	require.Equal(t, "38.43", pct.Apply(decimal.RequireFromString("42.70")).String())

	fixed := &Discount{Type: rep.DiscountFixed, Value: decimal.NewFromInt(15)}
	require.Equal(t, "85", fixed.Apply(decimal.NewFromInt(100)).String())
	require.True(t, fixed.Apply(decimal.NewFromInt(10)).IsZero())
}

func TestApplies(t *testing.T) {
	all := &Discount{}
	require.True(t, all.Applies("evt-1"))

	scoped := &Discount{ApplicableEventIDs: []string{"evt-1", "evt-2"}}
	require.True(t, scoped.Applies("evt-2"))
	require.False(t, scoped.Applies("evt-3"))
}

func TestIssueRepDiscount(t *testing.T) {
	svc, db := newTestService(t, rep.DefaultSettings())
	ctx := context.Background()
	require.NoError(t, db.Create(&rep.Rep{ID: "rep-1", OrgID: "org-1", FirstName: "Élodie", Status: rep.StatusActive}).Error)

	d, err := svc.IssueRepDiscount(ctx, "org-1", "rep-1", IssueDiscountRequest{})
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^REP-ELODIE[0-9]{6}$`), d.Code)
	require.Equal(t, rep.DiscountPercentage, d.Type)

	again, err := svc.IssueRepDiscount(ctx, "org-1", "rep-1", IssueDiscountRequest{})
	require.NoError(t, err)
	require.Equal(t, d.ID, again.ID)

	resolved, err := svc.Resolve(ctx, "org-1", " "+d.Code+" ")
	require.NoError(t, err)
	require.Equal(t, d.ID, resolved.ID)
}

func TestIssueRepDiscountCustomPrefix(t *testing.T) {
	settings := rep.DefaultSettings()
	settings.DiscountPrefix = "SUMMER"
	settings.DiscountType = rep.DiscountFixed
	settings.DiscountValue = decimal.NewFromInt(5)

	svc, db := newTestService(t, settings)
	require.NoError(t, db.Create(&rep.Rep{ID: "rep-1", OrgID: "org-1", FirstName: "Maximilian", Status: rep.StatusActive}).Error)

	d, err := svc.IssueRepDiscount(context.Background(), "org-1", "rep-1", IssueDiscountRequest{ApplicableEventIDs: []string{"evt-1"}})
	require.NoError(t, err)
	// 15 - len(SUMMER) - 6 digits leaves 3 letters
	require.Regexp(t, regexp.MustCompile(`^SUMMER-MAX[0-9]{6}$`), d.Code)
	require.True(t, d.Applies("evt-1"))
	require.False(t, d.Applies("evt-2"))
}

func TestIssueRepDiscountInactiveRep(t *testing.T) {
	svc, db := newTestService(t, rep.DefaultSettings())
	require.NoError(t, db.Create(&rep.Rep{ID: "rep-1", OrgID: "org-1", FirstName: "Sam", Status: rep.StatusInactive}).Error)

	_, err := svc.IssueRepDiscount(context.Background(), "org-1", "rep-1", IssueDiscountRequest{})
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))

	_, err = svc.IssueRepDiscount(context.Background(), "org-1", "missing", IssueDiscountRequest{})
	require.ErrorIs(t, err, rep.ErrRepNotFound)
}

func TestResolveUnknownCode(t *testing.T) {
	svc, _ := newTestService(t, rep.DefaultSettings())

	_, err := svc.Resolve(context.Background(), "org-1", "REP-NOBODY000000")
	require.ErrorIs(t, err, ErrDiscountNotFound)
}
