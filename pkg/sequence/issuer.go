package sequence

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"ticketing-commerce/pkg/config"
	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/pkg/repository"

	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// TicketAlphabet leaves out 0/O and 1/I.
	TicketAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	TicketCodeLength = 8

	OrderNumberWidth = 5

	DefaultDiscountPrefix = "REP"
	DiscountNameMax       = 6
	DiscountDigits        = 6
	// DiscountBudget counts prefix, name and digits; the separator is not counted.
	DiscountBudget = 15

	DefaultAttempts = 5
)

var ErrExhaustedRetries = errutil.BaseError{
	Code:    errutil.StatusCollisionExhausted,
	Message: "identifier retry budget exhausted",
}

// ErrCollision may be returned by an InsertFunc that detects a taken identifier by
// itself instead of through the store's unique constraint.
var ErrCollision = errors.New("sequence: identifier collision")

// InsertFunc persists the row carrying code. A duplicate-key error from the store (or
// ErrCollision) makes the issuer draw again; any other error aborts issuance.
type InsertFunc func(ctx context.Context, code string) error

// OrderNumberHints are the two cheap reads the order number heuristic combines.
type OrderNumberHints interface {
	CountOrders(ctx context.Context, orgID string) (int64, error)
	LastOrderNumber(ctx context.Context, orgID string) (string, error)
}

var Module = fx.Module("sequence",
	fx.Provide(NewIssuer),
)

type Params struct {
	fx.In
	Config *config.Config `optional:"true"`
}

type Issuer struct {
	attempts   int
	intn       func(n int) (int, error)
	collisions metric.Int64Counter
}

type Option func(*Issuer)

func WithAttempts(n int) Option {
	return func(i *Issuer) {
		if n > 0 {
			i.attempts = n
		}
	}
}

// WithRandom replaces the crypto/rand source, tests use it to force collisions.
func WithRandom(intn func(n int) (int, error)) Option {
	return func(i *Issuer) { i.intn = intn }
}

func NewIssuer(p Params) *Issuer {
	var opts []Option
	if p.Config != nil {
		opts = append(opts, WithAttempts(p.Config.Commerce.IdentifierAttempts))
	}
	return New(opts...)
}

func New(opts ...Option) *Issuer {
	i := &Issuer{
		attempts: DefaultAttempts,
		intn:     cryptoIntn,
	}
	for _, opt := range opts {
		opt(i)
	}

	counter, err := otel.Meter("ticketing-commerce/sequence").Int64Counter(
		"identifier_collisions_total",
		metric.WithDescription("identifier draws rejected by a unique constraint"),
	)
	if err != nil {
		zap.L().Warn("failed to create collision counter", zap.Error(err))
	}
	i.collisions = counter

	return i
}

func cryptoIntn(n int) (int, error) {
	num, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(num.Int64()), nil
}

func isCollision(err error) bool {
	return errors.Is(err, ErrCollision) || repository.IsDuplicate(err)
}

func (i *Issuer) recordCollision(ctx context.Context, kind string) {
	if i.collisions != nil {
		i.collisions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// retry draws candidates until insert accepts one or the budget runs out.
func (i *Issuer) retry(ctx context.Context, kind string, next func(attempt int) (string, error), insert InsertFunc) (string, error) {
	var lastErr error
	for attempt := 0; attempt < i.attempts; attempt++ {
		code, err := next(attempt)
		if err != nil {
			return "", errutil.Internal("failed to draw identifier", err)
		}

		err = insert(ctx, code)
		if err == nil {
			return code, nil
		}
		if !isCollision(err) {
			return "", err
		}

		lastErr = err
		i.recordCollision(ctx, kind)
		zap.L().Debug("identifier collision, retrying",
			zap.String("kind", kind),
			zap.String("code", code),
			zap.Int("attempt", attempt+1),
		)
	}

	zap.L().Error("identifier retry budget exhausted",
		zap.String("kind", kind),
		zap.Int("attempts", i.attempts),
		zap.Error(lastErr),
	)
	return "", ErrExhaustedRetries.Wrap(lastErr)
}

func (i *Issuer) randomString(alphabet string, n int) (string, error) {
	b := make([]byte, n)
	for k := range b {
		idx, err := i.intn(len(alphabet))
		if err != nil {
			return "", err
		}
		b[k] = alphabet[idx]
	}
	return string(b), nil
}

// IssueTicketCode draws {ORG}-XXXXXXXX codes until one inserts.
func (i *Issuer) IssueTicketCode(ctx context.Context, orgPrefix string, insert InsertFunc) (string, error) {
	prefix := NormalizePrefix(orgPrefix)
	if prefix == "" {
		return "", errutil.BadRequest("org prefix is required", nil)
	}

	return i.retry(ctx, "ticket_code", func(int) (string, error) {
		body, err := i.randomString(TicketAlphabet, TicketCodeLength)
		if err != nil {
			return "", err
		}
		return prefix + "-" + body, nil
	}, insert)
}

// IssueOrderNumber starts from the larger of the row count and the last issued suffix
// and walks forward one step per collision. Numbers are monotonic in the common case
// and may skip values; uniqueness comes from the store's constraint, not the hints.
func (i *Issuer) IssueOrderNumber(ctx context.Context, orgID, orgPrefix string, hints OrderNumberHints, insert InsertFunc) (string, error) {
	prefix := NormalizePrefix(orgPrefix)
	if prefix == "" {
		return "", errutil.BadRequest("org prefix is required", nil)
	}

	count, err := hints.CountOrders(ctx, orgID)
	if err != nil {
		return "", errutil.Unavailable("failed to count orders", err)
	}

	last, err := hints.LastOrderNumber(ctx, orgID)
	if err != nil {
		return "", errutil.Unavailable("failed to read last order number", err)
	}

	start := NextOrderCandidate(count, last)
	return i.retry(ctx, "order_number", func(attempt int) (string, error) {
		return FormatOrderNumber(prefix, start+int64(attempt)), nil
	}, insert)
}

// IssueDiscountCode draws {PREFIX}-{NAME}{DIGITS} codes until one inserts.
func (i *Issuer) IssueDiscountCode(ctx context.Context, prefix, firstName string, insert InsertFunc) (string, error) {
	p := NormalizePrefix(prefix)
	if p == "" {
		p = DefaultDiscountPrefix
	}
	name := DiscountName(p, firstName)

	return i.retry(ctx, "discount_code", func(int) (string, error) {
		digits, err := i.randomString("0123456789", DiscountDigits)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s-%s%s", p, name, digits), nil
	}, insert)
}

// NextOrderCandidate takes the max of count+1 and last suffix+1.
func NextOrderCandidate(count int64, lastNumber string) int64 {
	candidate := count + 1
	if suffix, ok := ParseOrderSuffix(lastNumber); ok && suffix+1 > candidate {
		candidate = suffix + 1
	}
	return candidate
}

func FormatOrderNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s-%0*d", prefix, OrderNumberWidth, n)
}

// ParseOrderSuffix extracts the numeric part after the last dash.
func ParseOrderSuffix(number string) (int64, bool) {
	idx := strings.LastIndex(number, "-")
	if idx < 0 || idx == len(number)-1 {
		return 0, false
	}
	n, err := strconv.ParseInt(number[idx+1:], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NormalizePrefix uppercases and strips everything but letters and digits.
func NormalizePrefix(prefix string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(prefix) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DiscountName uppercases the first name to letters only and truncates it so that
// prefix, name and digits fit DiscountBudget.
func DiscountName(prefix, firstName string) string {
	limit := DiscountBudget - len(prefix) - DiscountDigits
	if limit > DiscountNameMax {
		limit = DiscountNameMax
	}
	if limit <= 0 {
		return ""
	}

	var b strings.Builder
	for _, r := range strings.ToUpper(slug.Make(firstName)) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
		if b.Len() == limit {
			break
		}
	}
	return b.String()
}

// NewCorrelationID returns a YYYYMMDD-XXXXXX tag grouping the ledger entries written by
// one operation. It is informational and carries no uniqueness guarantee.
func NewCorrelationID(now time.Time) (string, error) {
	r := make([]byte, 3)
	if _, err := rand.Read(r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(r))), nil
}
