package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dfund/internal/domain"
	"dfund/internal/ledger"
)

func TestRegisterValidation(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		now := f.clock.Now()
		valid := ledger.RegisterInput{Creator: "alice", Title: "Garden", GoalAmount: 5, Deadline: now.Add(time.Hour)}
		reviewAt := now.Add(2 * time.Hour)

		cases := []struct {
			name   string
			mutate func(in *ledger.RegisterInput)
			code   string
		}{
			{"empty title", func(in *ledger.RegisterInput) { in.Title = "   " }, domain.CodeTitleEmpty},
			{"missing creator", func(in *ledger.RegisterInput) { in.Creator = "" }, domain.CodeCreatorRequired},
			{"zero goal", func(in *ledger.RegisterInput) { in.GoalAmount = 0 }, domain.CodeGoalNotPositive},
			{"negative goal", func(in *ledger.RegisterInput) { in.GoalAmount = -3 }, domain.CodeGoalNotPositive},
			{"deadline now", func(in *ledger.RegisterInput) { in.Deadline = now }, domain.CodeDeadlineNotFuture},
			{"review deadline without request", func(in *ledger.RegisterInput) {
				at := now.Add(time.Minute)
				in.ReviewDeadline = &at
			}, domain.CodeReviewNotRequested},
			{"review deadline after project deadline", func(in *ledger.RegisterInput) {
				in.ExpertReviewRequested = true
				in.ReviewDeadline = &reviewAt
			}, domain.CodeVotingDeadlineInvalid},
		}
		for _, tc := range cases {
			in := valid
			tc.mutate(&in)
			_, err := f.svc.Register(context.Background(), in)
			requireKind(t, err, domain.KindValidation, tc.code)
		}

		count, err := f.svc.ProjectCount(context.Background())
		require.NoError(t, err)
		assert.Zero(t, count, "rejected registrations must not consume ids")
	})
}

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		for want := uint64(1); want <= 3; want++ {
			assert.Equal(t, want, f.register(t, "alice", 10, time.Hour))
		}
		count, err := f.svc.ProjectCount(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, count)

		id, err := f.svc.Register(ctx, ledger.RegisterInput{
			Creator:      " bob ",
			Title:        " Library ",
			Description:  "Books for the village",
			Image:        "https://img.example/cover.png",
			DetailImages: []string{"https://img.example/1.png", " ", "https://img.example/2.png"},
			GoalAmount:   99,
			Deadline:     f.clock.Now().Add(time.Hour),
		})
		require.NoError(t, err)
		p, err := f.svc.GetProject(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), p.ID)
		assert.Equal(t, "bob", p.Creator)
		assert.Equal(t, "Library", p.Title)
		assert.Equal(t, []string{"https://img.example/1.png", "https://img.example/2.png"}, p.DetailImages)
		assert.Equal(t, domain.StatusActive, p.Status)
		assert.True(t, p.Deadline.Equal(f.clock.Now().Add(time.Hour)))
		assert.Nil(t, p.FinalizedAt)
	})
}

func TestGetProjectNotFound(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.register(t, "alice", 10, time.Hour)
		for _, id := range []uint64{0, 2, 1 << 40} {
			_, err := f.svc.GetProject(ctx, id)
			requireKind(t, err, domain.KindNotFound, domain.CodeProjectNotFound)
		}
	})
}

func TestSubMillisecondDeadlinesBehaveAlikeOnEveryStore(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		now := f.clock.Now()

		_, err := f.svc.Register(ctx, ledger.RegisterInput{
			Creator: "alice", Title: "Blink", GoalAmount: 10, Deadline: now.Add(500 * time.Microsecond),
		})
		requireKind(t, err, domain.KindValidation, domain.CodeDeadlineNotFuture)

		review := now.Add(900 * time.Microsecond)
		_, err = f.svc.Register(ctx, ledger.RegisterInput{
			Creator: "alice", Title: "Blink", GoalAmount: 10, Deadline: now.Add(time.Hour),
			ExpertReviewRequested: true, ReviewDeadline: &review,
		})
		requireKind(t, err, domain.KindValidation, domain.CodeVotingDeadlineInvalid)

		id, err := f.svc.Register(ctx, ledger.RegisterInput{
			Creator: "alice", Title: "Blink", GoalAmount: 10, Deadline: now.Add(time.Millisecond + 700*time.Microsecond),
			ExpertReviewRequested: true,
		})
		require.NoError(t, err)
		p, err := f.svc.GetProject(ctx, id)
		require.NoError(t, err)
		assert.True(t, p.Deadline.Equal(now.Add(time.Millisecond)), "deadline %s", p.Deadline)

		err = f.svc.EnableReview(ctx, id, "alice", now.Add(400*time.Microsecond))
		requireKind(t, err, domain.KindValidation, domain.CodeVotingDeadlineInvalid)

		f.clock.Advance(time.Millisecond)
		_, err = f.svc.Donate(ctx, ledger.DonateInput{ProjectID: id, Donor: "x", Amount: 1})
		requireKind(t, err, domain.KindState, domain.CodeProjectNotFundable)
		status, err := f.svc.Finalize(ctx, id, "alice")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRefunding, status)
	})
}

func TestListProjectsFiltersAndPages(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		early := f.register(t, "alice", 10, time.Hour)
		late := f.register(t, "bob", 10, 3*time.Hour)
		third := f.register(t, "carol", 10, 3*time.Hour)

		all, err := f.svc.ListProjects(ctx, domain.ProjectFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)

		page, err := f.svc.ListProjects(ctx, domain.ProjectFilter{AfterID: early, Limit: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, late, page[0].ID)

		f.clock.Advance(2 * time.Hour)
		fundable, err := f.svc.ListFundable(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, fundable, 2)
		assert.Equal(t, []uint64{late, third}, []uint64{fundable[0].ID, fundable[1].ID})

		_, err = f.svc.Finalize(ctx, early, "alice")
		require.NoError(t, err)
		refunding, err := f.svc.ListProjects(ctx, domain.ProjectFilter{Status: domain.StatusRefunding})
		require.NoError(t, err)
		require.Len(t, refunding, 1)
		assert.Equal(t, early, refunding[0].ID)
	})
}

func TestTopProjectsRanksByFundedPercent(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		low := f.register(t, "alice", 1000, time.Hour)
		high := f.register(t, "bob", 100, time.Hour)
		mid := f.register(t, "carol", 200, time.Hour)
		expired := f.register(t, "dan", 10, time.Minute)

		f.donate(t, low, "x", 10)
		f.donate(t, high, "x", 90)
		f.donate(t, mid, "x", 100)
		f.donate(t, expired, "x", 10)
		f.clock.Advance(2 * time.Minute)

		top, err := f.svc.TopProjects(ctx, 3)
		require.NoError(t, err)
		require.Len(t, top, 3)
		assert.Equal(t, []uint64{high, mid, low}, []uint64{top[0].ID, top[1].ID, top[2].ID})
		assert.EqualValues(t, 90, top[0].FundedPercent())
	})
}

func TestTopProjectsRanksEveryPage(t *testing.T) {
	t.Cleanup(ledger.SetTopProjectsPage(2))
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		var ids []uint64
		for i := 0; i < 7; i++ {
			ids = append(ids, f.register(t, "alice", 100, time.Hour))
		}
		// Newest projects are the best funded; they sit on the last pages.
		f.donate(t, ids[6], "x", 95)
		f.donate(t, ids[5], "x", 80)
		f.donate(t, ids[1], "x", 50)
		f.donate(t, ids[4], "x", 50)

		top, err := f.svc.TopProjects(ctx, 3)
		require.NoError(t, err)
		require.Len(t, top, 3)
		assert.Equal(t, []uint64{ids[6], ids[5], ids[1]}, []uint64{top[0].ID, top[1].ID, top[2].ID})

		all, err := f.svc.TopProjects(ctx, 50)
		require.NoError(t, err)
		assert.Len(t, all, 7)
		assert.Equal(t, ids[4], all[3].ID)
		assert.Equal(t, ids[0], all[4].ID)
	})
}

func TestStatsSummarizesLedger(t *testing.T) {
	eachStore(t, ledger.Config{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		released := f.register(t, "alice", 10, time.Hour)
		refunding := f.register(t, "bob", 10, time.Hour)
		f.register(t, "carol", 10, 3*time.Hour)
		f.donate(t, released, "x", 15)
		f.donate(t, refunding, "y", 4)
		f.donate(t, refunding, "z", 3)

		f.clock.Advance(time.Hour)
		_, err := f.svc.Finalize(ctx, released, "alice")
		require.NoError(t, err)
		_, err = f.svc.Finalize(ctx, refunding, "bob")
		require.NoError(t, err)
		_, err = f.svc.ClaimRefund(ctx, refunding, "y")
		require.NoError(t, err)

		stats, err := f.svc.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, stats.ProjectsByStatus[domain.StatusActive])
		assert.EqualValues(t, 1, stats.ProjectsByStatus[domain.StatusReleased])
		assert.EqualValues(t, 1, stats.ProjectsByStatus[domain.StatusRefunding])
		assert.EqualValues(t, 3, stats.EscrowTotal)
		assert.EqualValues(t, 19, stats.PaidOutTotal)
	})
}
