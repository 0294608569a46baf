package ledger_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dfund/internal/adapter/memstore"
	"dfund/internal/adapter/sqlite"
	"dfund/internal/domain"
	"dfund/internal/ledger"
)

var epoch = time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc   *ledger.Service
	clock *testClock
	store domain.Store
}

var storeFactories = map[string]func(t *testing.T) domain.Store{
	"memory": func(t *testing.T) domain.Store {
		return memstore.New()
	},
	"sqlite": func(t *testing.T) domain.Store {
		store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		return store
	},
}

// eachStore runs fn once per store implementation with a fresh ledger.
func eachStore(t *testing.T, cfg ledger.Config, fn func(t *testing.T, f *fixture)) {
	t.Helper()
	for name, open := range storeFactories {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			t.Cleanup(func() { _ = store.Close() })
			clock := &testClock{now: epoch}
			c := cfg
			c.Clock = clock
			c.Logger = zerolog.Nop()
			fn(t, &fixture{svc: ledger.New(store, c), clock: clock, store: store})
		})
	}
}

func (f *fixture) register(t *testing.T, creator string, goal int64, deadline time.Duration) uint64 {
	t.Helper()
	id, err := f.svc.Register(context.Background(), ledger.RegisterInput{
		Creator:    creator,
		Title:      "Project by " + creator,
		GoalAmount: goal,
		Deadline:   f.clock.Now().Add(deadline),
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) donate(t *testing.T, id uint64, donor string, amount int64) int64 {
	t.Helper()
	total, err := f.svc.Donate(context.Background(), ledger.DonateInput{ProjectID: id, Donor: donor, Amount: amount})
	require.NoError(t, err)
	return total
}

// requireContributionSum checks that the donor records add up to the project total.
func (f *fixture) requireContributionSum(t *testing.T, id uint64) {
	t.Helper()
	ctx := context.Background()
	p, err := f.svc.GetProject(ctx, id)
	require.NoError(t, err)
	items, err := f.svc.Contributions(ctx, id)
	require.NoError(t, err)
	var sum int64
	for _, c := range items {
		sum += c.Amount
	}
	require.Equal(t, p.TotalDonated, sum, "sum of contributions must equal total donated")

	report, err := f.svc.Audit(ctx, id)
	require.NoError(t, err)
	require.True(t, report.OK(), "audit violations: %v", report.Violations)
}

func requireKind(t *testing.T, err error, kind domain.Kind, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, domain.KindOf(err), "error: %v", err)
	if code != "" {
		require.Equal(t, code, domain.CodeOf(err), "error: %v", err)
	}
}
