package ledger_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dfund/internal/domain"
	"dfund/internal/ledger"
)

const day = 24 * time.Hour

func TestReleaseToCreatorWhenGoalMet(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		id := f.register(t, "creator", 10, day)
		assert.EqualValues(t, 10, f.donate(t, id, "donor-b", 10))

		f.clock.Advance(day)
		outcome, err := f.svc.ReleaseFunds(ctx, id, "creator")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusReleased, outcome)

		p, err := f.svc.GetProject(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusReleased, p.Status)
		assert.Zero(t, p.EscrowBalance)
		assert.EqualValues(t, 10, p.TotalDonated)
		require.NotNil(t, p.FinalizedAt)

		balance, err := f.svc.AccountBalance(ctx, "creator")
		require.NoError(t, err)
		assert.EqualValues(t, 10, balance)

		pool, err := f.svc.ProjectBalance(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, pool)

		entries, err := f.svc.LedgerEntries(ctx, id)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, domain.EntryDonation, entries[0].Kind)
		assert.Equal(t, domain.EntryRelease, entries[1].Kind)
		assert.Equal(t, "creator", entries[1].Account)
		f.requireContributionSum(t, id)
	})
}

func TestRefundClaimsPayEachDonorOnce(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		id := f.register(t, "creator", 10, day)
		f.donate(t, id, "donor-b", 4)

		f.clock.Advance(day)
		outcome, err := f.svc.Refund(ctx, id, "creator")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRefunding, outcome)

		pool, err := f.svc.ProjectBalance(ctx, id)
		require.NoError(t, err)
		assert.EqualValues(t, 4, pool, "refunding moves no value until claims")

		paid, err := f.svc.ClaimRefund(ctx, id, "donor-b")
		require.NoError(t, err)
		assert.EqualValues(t, 4, paid)

		_, err = f.svc.ClaimRefund(ctx, id, "donor-b")
		requireKind(t, err, domain.KindState, domain.CodeNothingToRefund)

		balance, err := f.svc.AccountBalance(ctx, "donor-b")
		require.NoError(t, err)
		assert.EqualValues(t, 4, balance, "second claim must not pay again")

		contribution, err := f.svc.ContributionOf(ctx, id, "donor-b")
		require.NoError(t, err)
		assert.Zero(t, contribution)
		f.requireContributionSum(t, id)

		p, err := f.svc.GetProject(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, p.EscrowBalance)
	})
}

func TestClaimRefundRequiresRefundingProject(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		id := f.register(t, "creator", 10, day)
		f.donate(t, id, "donor", 4)

		_, err := f.svc.ClaimRefund(ctx, id, "donor")
		requireKind(t, err, domain.KindState, domain.CodeNotRefunding)

		_, err = f.svc.ClaimRefund(ctx, id, " ")
		requireKind(t, err, domain.KindValidation, domain.CodeDonorRequired)

		f.clock.Advance(day)
		_, err = f.svc.Finalize(ctx, id, "creator")
		require.NoError(t, err)

		_, err = f.svc.ClaimRefund(ctx, id, "stranger")
		requireKind(t, err, domain.KindState, domain.CodeNothingToRefund)
	})
}

func TestFinalizeTwiceLeavesFirstOutcome(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		id := f.register(t, "creator", 10, day)
		f.donate(t, id, "donor", 12)
		f.clock.Advance(day + time.Second)

		outcome, err := f.svc.Finalize(ctx, id, "creator")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusReleased, outcome)
		before, err := f.svc.GetProject(ctx, id)
		require.NoError(t, err)

		for _, call := range []func(context.Context, uint64, string) (domain.Status, error){
			f.svc.Finalize, f.svc.ReleaseFunds, f.svc.Refund,
		} {
			_, err = call(ctx, id, "creator")
			requireKind(t, err, domain.KindState, domain.CodeAlreadyFinalized)
		}

		after, err := f.svc.GetProject(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before.Status, after.Status)
		assert.Equal(t, before.EscrowBalance, after.EscrowBalance)
		balance, err := f.svc.AccountBalance(ctx, "creator")
		require.NoError(t, err)
		assert.EqualValues(t, 12, balance)
	})
}

func TestFinalizeBeforeDeadline(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		id := f.register(t, "creator", 10, day)
		f.clock.Advance(day - time.Second)
		_, err := f.svc.Finalize(context.Background(), id, "creator")
		requireKind(t, err, domain.KindState, domain.CodeDeadlineNotReached)
	})
}

func TestFinalizeModeMustMatchOutcome(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		met := f.register(t, "creator", 10, day)
		missed := f.register(t, "creator", 10, day)
		f.donate(t, met, "donor", 10)
		f.donate(t, missed, "donor", 9)
		f.clock.Advance(day)

		_, err := f.svc.Refund(ctx, met, "creator")
		requireKind(t, err, domain.KindState, domain.CodeGoalMet)
		_, err = f.svc.ReleaseFunds(ctx, missed, "creator")
		requireKind(t, err, domain.KindState, domain.CodeGoalNotMet)

		p, err := f.svc.GetProject(ctx, met)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusActive, p.Status, "rejected finalize must not change status")
	})
}

func TestFinalizeAuthorizationAndGracePeriod(t *testing.T) {
	eachStore(t, ledger.Config{FinalizeGrace: 7 * day}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		id := f.register(t, "creator", 10, day)
		f.clock.Advance(day)

		_, err := f.svc.Finalize(ctx, id, "stranger")
		requireKind(t, err, domain.KindAuthorization, domain.CodeNotCreator)
		_, err = f.svc.Finalize(ctx, id, "")
		requireKind(t, err, domain.KindAuthorization, "")

		f.clock.Advance(7 * day)
		outcome, err := f.svc.Finalize(ctx, id, "stranger")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRefunding, outcome)
	})
}

func TestFinalizeUnknownProject(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		_, err := f.svc.Finalize(context.Background(), 7, "creator")
		requireKind(t, err, domain.KindNotFound, domain.CodeProjectNotFound)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestFinalizeWithoutDonationsRefunds(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		id := f.register(t, "creator", 1, day)
		f.clock.Advance(day)
		outcome, err := f.svc.Finalize(ctx, id, "creator")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRefunding, outcome)

		entries, err := f.svc.LedgerEntries(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestFinalizeDueUsesSystemCaller(t *testing.T) {
	eachStore(t, ledger.Config{FinalizeGrace: day}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		a := f.register(t, "alice", 10, day)
		b := f.register(t, "bob", 10, 3*day)
		f.donate(t, a, "donor", 10)

		f.clock.Advance(2 * day)
		done, err := f.svc.FinalizeDue(ctx, 10)
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, ledger.Finalization{ProjectID: a, Outcome: domain.StatusReleased}, done[0])

		done, err = f.svc.FinalizeDue(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, done)

		f.clock.Advance(2 * day)
		done, err = f.svc.FinalizeDue(ctx, 10)
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, b, done[0].ProjectID)
		assert.Equal(t, domain.StatusRefunding, done[0].Outcome)
	})
}

func TestConcurrentFinalizeSucceedsOnce(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		id := f.register(t, "creator", 100, day)
		f.donate(t, id, "donor", 150)
		f.clock.Advance(day)

		var (
			wg        sync.WaitGroup
			successes atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.Finalize(ctx, id, "creator")
				if err == nil {
					successes.Add(1)
					return
				}
				if k := domain.KindOf(err); k != domain.KindState && k != domain.KindConflict {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, successes.Load())
		balance, err := f.svc.AccountBalance(ctx, "creator")
		require.NoError(t, err)
		assert.EqualValues(t, 150, balance)
		f.requireContributionSum(t, id)
	})
}

func TestDonateAbortsWhileProjectIsHeld(t *testing.T) {
	store := storeFactories["sqlite"](t)
	t.Cleanup(func() { _ = store.Close() })
	clock := &testClock{now: epoch}
	f := &fixture{svc: ledger.New(store, ledger.Config{Clock: clock, Logger: zerolog.Nop()}), clock: clock, store: store}
	ctx := context.Background()
	id := f.register(t, "creator", 100, day)

	locked := make(chan struct{})
	release := make(chan struct{})
	held := make(chan error, 1)
	go func() {
		held <- store.WithTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			if _, err := tx.LockProject(ctx, id); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	start := time.Now()
	_, err := f.svc.Donate(ctx, ledger.DonateInput{ProjectID: id, Donor: "donor", Amount: 5})
	elapsed := time.Since(start)
	requireKind(t, err, domain.KindConflict, domain.CodeConcurrentUpdate)
	assert.Less(t, elapsed, 500*time.Millisecond)

	p, err := f.svc.GetProject(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, p.TotalDonated)

	close(release)
	require.NoError(t, <-held)
	assert.EqualValues(t, 5, f.donate(t, id, "donor", 5))
}

func TestConcurrentDonationsAreNotLost(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		id := f.register(t, "creator", 1_000_000, day)

		const workers, perWorker = 6, 10
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				donor := []string{"ana", "ben", "cho"}[w%3]
				for i := 0; i < perWorker; i++ {
					for {
						_, err := f.svc.Donate(ctx, ledger.DonateInput{ProjectID: id, Donor: donor, Amount: 5})
						if domain.KindOf(err) == domain.KindConflict {
							continue
						}
						if err != nil {
							t.Errorf("donate: %v", err)
						}
						break
					}
				}
			}(w)
		}
		wg.Wait()

		total, err := f.svc.TotalDonated(ctx, id)
		require.NoError(t, err)
		assert.EqualValues(t, workers*perWorker*5, total)
		f.requireContributionSum(t, id)
	})
}
