package domain

import "time"

// ReviewWindow exists once review has been enabled for a project. Whether it
// is open is always decided by comparing VotingDeadline with the clock.
type ReviewWindow struct {
	ProjectID      uint64
	VotingDeadline time.Time
	PositiveCount  uint64
	NegativeCount  uint64
	EnabledAt      time.Time
}

// OpenAt reports whether votes are accepted at now.
func (w ReviewWindow) OpenAt(now time.Time) bool {
	return now.Before(w.VotingDeadline)
}

// ReviewVote is the single vote a reviewer may cast on a project.
type ReviewVote struct {
	ProjectID   uint64
	Reviewer    string
	IsPositive  bool
	Comment     string
	SubmittedAt time.Time
}

// ReviewResult is the tally shown to donors.
type ReviewResult struct {
	Enabled        bool
	VotingDeadline time.Time
	PositiveCount  uint64
	NegativeCount  uint64
}
