package domain

import (
	"context"
	"time"
)

// Store persists ledger state. WithTx runs fn inside one transaction; when fn
// returns an error every write made through tx is discarded. View runs fn in
// a read-only snapshot that never contends with writers; fn must not write.
// Neither waits for a competing writer: contention surfaces as ErrConflict.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Tx is the set of primitives available inside a transaction.
type Tx interface {
	ProjectRepository
	ContributionRepository
	AccountRepository
	ReviewRepository
}

// ProjectRepository owns project records and the id counter.
type ProjectRepository interface {
	// CreateProject allocates the next sequential id and stores p under it.
	CreateProject(ctx context.Context, p Project) (uint64, error)
	GetProject(ctx context.Context, id uint64) (Project, error)
	// LockProject reads p and holds it for the rest of the transaction. A
	// competing holder yields ErrConflict instead of waiting.
	LockProject(ctx context.Context, id uint64) (Project, error)
	CountProjects(ctx context.Context) (uint64, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error)
	// UpdateProjectStatus moves id from -> to; ErrConflict when the stored status is not from.
	UpdateProjectStatus(ctx context.Context, id uint64, from, to Status, at time.Time) error
	Stats(ctx context.Context) (LedgerStats, error)
}

// ContributionRepository owns the pooled balance and per-donor records.
type ContributionRepository interface {
	// ApplyDonation credits amount to the donor record, the project total and the escrow.
	ApplyDonation(ctx context.Context, projectID uint64, donor string, amount int64, at time.Time) (DonationTotals, error)
	Contribution(ctx context.Context, projectID uint64, donor string) (int64, error)
	ListContributions(ctx context.Context, projectID uint64) ([]Contribution, error)
	// ClearContribution zeroes the donor record, removing it from the total and the escrow.
	ClearContribution(ctx context.Context, projectID uint64, donor string, at time.Time) (int64, error)
	// ReleaseEscrow zeroes the pooled balance and returns what it held.
	ReleaseEscrow(ctx context.Context, projectID uint64) (int64, error)
}

// AccountRepository owns payout balances and the journal.
type AccountRepository interface {
	CreditAccount(ctx context.Context, account string, amount int64, at time.Time) (int64, error)
	AccountBalance(ctx context.Context, account string) (int64, error)
	AppendEntry(ctx context.Context, entry LedgerEntry) error
	ListEntries(ctx context.Context, projectID uint64) ([]LedgerEntry, error)
}

// ReviewRepository owns review windows and votes.
type ReviewRepository interface {
	// CreateReviewWindow returns ErrAlreadyExists when one is stored.
	CreateReviewWindow(ctx context.Context, w ReviewWindow) error
	GetReviewWindow(ctx context.Context, projectID uint64) (ReviewWindow, error)
	// CreateReviewVote stores v and bumps the window tally. It returns
	// ErrAlreadyExists when the reviewer already voted.
	CreateReviewVote(ctx context.Context, v ReviewVote) error
	GetReviewVote(ctx context.Context, projectID uint64, reviewer string) (ReviewVote, error)
	ListReviewVotes(ctx context.Context, projectID uint64) ([]ReviewVote, error)
}
