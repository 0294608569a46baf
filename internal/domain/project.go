package domain

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
	"time"
)

// Status enumerates the funding lifecycle of a project.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusActive
	StatusSuccessful
	StatusReleased
	StatusRefunding
)

var statusNames = map[Status]string{
	StatusActive:     "active",
	StatusSuccessful: "successful",
	StatusReleased:   "released",
	StatusRefunding:  "refunding",
}

// transitions lists every legal move. Nothing leads back to Active and the
// terminal states have no outgoing edges.
var transitions = map[Status][]Status{
	StatusActive:     {StatusSuccessful, StatusReleased, StatusRefunding},
	StatusSuccessful: {StatusReleased},
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is a member of the closed enumeration.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is in the transition table.
func (s Status) CanTransitionTo(next Status) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns a state error for any move outside the table.
func ValidateTransition(from, to Status) error {
	if !from.CanTransitionTo(to) {
		return State(CodeStatusTransition, fmt.Sprintf("status cannot move from %s to %s", from, to))
	}
	return nil
}

// ParseStatus resolves a status name; the empty string yields StatusUnknown.
func ParseStatus(value string) (Status, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return StatusUnknown, nil
	}
	for status, name := range statusNames {
		if name == value {
			return status, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown status %q", value)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Project is a funding campaign. Records are never deleted.
type Project struct {
	ID                    uint64
	Creator               string
	Title                 string
	Description           string
	Image                 string
	DetailImages          []string
	GoalAmount            int64
	Deadline              time.Time
	ExpertReviewRequested bool
	Status                Status
	// TotalDonated equals the sum of all recorded contributions.
	TotalDonated int64
	// EscrowBalance is the pooled value currently held for the project.
	EscrowBalance int64
	CreatedAt     time.Time
	FinalizedAt   *time.Time
}

// FundableAt reports whether donations are accepted at now.
func (p Project) FundableAt(now time.Time) bool {
	return p.Status == StatusActive && now.Before(p.Deadline)
}

// GoalReached reports whether the recorded total meets the goal.
func (p Project) GoalReached() bool {
	return p.TotalDonated >= p.GoalAmount
}

// FundedPercent is the integer percentage of the goal raised so far. It
// saturates at math.MaxInt64 instead of wrapping.
func (p Project) FundedPercent() int64 {
	if p.GoalAmount <= 0 || p.TotalDonated <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(p.TotalDonated), 100)
	if hi >= uint64(p.GoalAmount) {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uint64(p.GoalAmount))
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

// ProjectFilter narrows ListProjects. Zero values disable a criterion.
type ProjectFilter struct {
	Status Status
	// FundableAt keeps only active projects whose deadline is after the instant.
	FundableAt time.Time
	// DeadlineBefore keeps only projects whose deadline is at or before the instant.
	DeadlineBefore time.Time
	AfterID        uint64
	Limit          int
}

// LedgerStats summarizes the ledger for dashboards and the audit CLI.
type LedgerStats struct {
	ProjectsByStatus map[Status]uint64
	EscrowTotal      int64
	PaidOutTotal     int64
}
