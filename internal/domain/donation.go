package domain

import "time"

// Contribution is the cumulative amount a donor has put into one project.
type Contribution struct {
	ProjectID      uint64
	Donor          string
	Amount         int64
	FirstDonatedAt time.Time
	UpdatedAt      time.Time
}

// DonationTotals is the state of a project right after a donation is applied.
type DonationTotals struct {
	TotalDonated  int64
	EscrowBalance int64
	Contribution  int64
}

// EntryKind enumerates journal entry types.
type EntryKind string

const (
	EntryDonation EntryKind = "donation"
	EntryRelease  EntryKind = "release"
	EntryRefund   EntryKind = "refund"
)

// LedgerEntry is one append-only journal line. Donation entries record the
// donor as Account; release and refund entries record the credited account.
type LedgerEntry struct {
	ID        string
	ProjectID uint64
	Kind      EntryKind
	Account   string
	Amount    int64
	Country   string
	CreatedAt time.Time
}
