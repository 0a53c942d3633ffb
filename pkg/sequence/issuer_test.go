package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"ticketing-commerce/pkg/repository"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// codeSet is an in-memory unique index.
type codeSet struct {
	mu    sync.Mutex
	codes map[string]struct{}
	order []string
}

func newCodeSet() *codeSet {
	return &codeSet{codes: map[string]struct{}{}}
}

func (s *codeSet) insert(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code]; ok {
		return fmt.Errorf("%w: code %s", repository.ErrDuplicate, code)
	}
	s.codes[code] = struct{}{}
	s.order = append(s.order, code)
	return nil
}

func (s *codeSet) CountOrders(context.Context, string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.codes)), nil
}

func (s *codeSet) LastOrderNumber(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return "", nil
	}
	return s.order[len(s.order)-1], nil
}

func TestIssueTicketCode_Format(t *testing.T) {
	issuer := New()
	set := newCodeSet()

	code, err := issuer.IssueTicketCode(context.Background(), "acme", set.insert)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(code, "ACME-"))

	body := strings.TrimPrefix(code, "ACME-")
	require.Len(t, body, TicketCodeLength)
	for _, r := range body {
		require.Contains(t, TicketAlphabet, string(r))
	}
	require.NotContains(t, body, "0")
	require.NotContains(t, body, "O")
	require.NotContains(t, body, "1")
	require.NotContains(t, body, "I")
}

func TestIssueTicketCode_SyntheticCollisions(t *testing.T) {
	issuer := New()
	set := newCodeSet()

	calls := 0
	insert := func(ctx context.Context, code string) error {
		calls++
		if calls%100 == 0 {
			return ErrCollision
		}
		return set.insert(ctx, code)
	}

	for n := 0; n < 1000; n++ {
		_, err := issuer.IssueTicketCode(context.Background(), "ORG", insert)
		require.NoError(t, err)
	}
	require.Len(t, set.codes, 1000)
}

func TestIssueTicketCode_Exhausted(t *testing.T) {
	issuer := New(WithAttempts(3))

	attempts := 0
	_, err := issuer.IssueTicketCode(context.Background(), "ORG", func(context.Context, string) error {
		attempts++
		return ErrCollision
	})
	require.ErrorIs(t, err, ErrExhaustedRetries)
	require.Equal(t, 3, attempts)
}

func TestIssueTicketCode_ForcedDuplicateDraws(t *testing.T) {
	// The first two draws produce the same code, the third differs.
	draws := 0
	issuer := New(WithRandom(func(n int) (int, error) {
		draws++
		if draws <= 2*TicketCodeLength {
			return 0, nil
		}
		return 1, nil
	}))
	set := newCodeSet()

	first, err := issuer.IssueTicketCode(context.Background(), "ORG", set.insert)
	require.NoError(t, err)
	require.Equal(t, "ORG-AAAAAAAA", first)

	second, err := issuer.IssueTicketCode(context.Background(), "ORG", set.insert)
	require.NoError(t, err)
	require.Equal(t, "ORG-BBBBBBBB", second)
}

func TestIssueTicketCode_NonCollisionErrorStops(t *testing.T) {
	issuer := New()
	boom := errors.New("connection reset")

	attempts := 0
	_, err := issuer.IssueTicketCode(context.Background(), "ORG", func(context.Context, string) error {
		attempts++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, attempts)
}

func TestIssueOrderNumber_Sequential(t *testing.T) {
	issuer := New()
	set := newCodeSet()

	for n := 1; n <= 12; n++ {
		number, err := issuer.IssueOrderNumber(context.Background(), "org-1", "ORG", set, set.insert)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("ORG-%05d", n), number)
	}
}

func TestIssueOrderNumber_GapFromLastSuffix(t *testing.T) {
	issuer := New()
	set := newCodeSet()
	require.NoError(t, set.insert(context.Background(), "ORG-00001"))
	require.NoError(t, set.insert(context.Background(), "ORG-00007"))

	number, err := issuer.IssueOrderNumber(context.Background(), "org-1", "ORG", set, set.insert)
	require.NoError(t, err)
	require.Equal(t, "ORG-00008", number)
}

func TestIssueOrderNumber_StaleHintsWalkForward(t *testing.T) {
	issuer := New()
	set := newCodeSet()
	for _, n := range []string{"ORG-00001", "ORG-00002", "ORG-00003"} {
		require.NoError(t, set.insert(context.Background(), n))
	}

	// Hints claim an empty table, so the issuer has to walk past three collisions.
	stale := staleHints{}
	number, err := issuer.IssueOrderNumber(context.Background(), "org-1", "ORG", stale, set.insert)
	require.NoError(t, err)
	require.Equal(t, "ORG-00004", number)
}

type staleHints struct{}

func (staleHints) CountOrders(context.Context, string) (int64, error)     { return 0, nil }
func (staleHints) LastOrderNumber(context.Context, string) (string, error) { return "", nil }

func TestIssueOrderNumber_Concurrent(t *testing.T) {
	issuer := New()
	set := newCodeSet()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		issued  []string
		errored []error
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 25; n++ {
				number, err := issuer.IssueOrderNumber(context.Background(), "org-1", "ORG", set, set.insert)
				mu.Lock()
				if err != nil {
					errored = append(errored, err)
				} else {
					issued = append(issued, number)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	seen := map[string]struct{}{}
	for _, number := range issued {
		_, dup := seen[number]
		require.False(t, dup, "duplicate order number %s", number)
		seen[number] = struct{}{}
	}
	for _, err := range errored {
		require.ErrorIs(t, err, ErrExhaustedRetries)
	}
	require.Equal(t, 100, len(issued)+len(errored))
}

func TestIssueDiscountCode(t *testing.T) {
	issuer := New()
	set := newCodeSet()

	code, err := issuer.IssueDiscountCode(context.Background(), "", "Élodie-Marie", set.insert)
	require.NoError(t, err)
	require.Regexp(t, `^REP-ELODIE[0-9]{6}$`, code)
	require.LessOrEqual(t, len(strings.ReplaceAll(code, "-", "")), DiscountBudget)
}

func TestDiscountName(t *testing.T) {
	cases := []struct {
		prefix, name, want string
	}{
		{"REP", "sam", "SAM"},
		{"REP", "Christopher", "CHRIST"},
		{"VIP", "o'neil", "ONEIL"},
		{"AMBASSADOR", "sam", ""},
		{"TEAMX", "Christopher", "CHRI"},
		{"REP", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.prefix+"/"+tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DiscountName(tc.prefix, tc.name))
		})
	}
}

func TestNextOrderCandidate(t *testing.T) {
	require.EqualValues(t, 1, NextOrderCandidate(0, ""))
	require.EqualValues(t, 6, NextOrderCandidate(5, "ORG-00003"))
	require.EqualValues(t, 10, NextOrderCandidate(5, "ORG-00009"))
	require.EqualValues(t, 4, NextOrderCandidate(3, "garbage"))
}
