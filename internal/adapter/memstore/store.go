// Package memstore provides an in-process ledger store. Write transactions
// are serialized by one lock and rolled back through an undo log.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"dfund/internal/domain"
)

type contributionKey struct {
	projectID uint64
	donor     string
}

type voteKey struct {
	projectID uint64
	reviewer  string
}

// Store keeps all ledger state in memory. The zero value is not usable; call New.
type Store struct {
	mu sync.RWMutex

	count         uint64
	projects      map[uint64]domain.Project
	contributions map[contributionKey]domain.Contribution
	donors        map[uint64][]string
	accounts      map[string]int64
	entries       []domain.LedgerEntry
	windows       map[uint64]domain.ReviewWindow
	votes         map[voteKey]domain.ReviewVote
	reviewers     map[uint64][]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		projects:      make(map[uint64]domain.Project),
		contributions: make(map[contributionKey]domain.Contribution),
		donors:        make(map[uint64][]string),
		accounts:      make(map[string]int64),
		windows:       make(map[uint64]domain.ReviewWindow),
		votes:         make(map[voteKey]domain.ReviewVote),
		reviewers:     make(map[uint64][]string),
	}
}

// WithTx runs fn with exclusive access to the store. It does not wait: when
// another transaction holds the store it fails with domain.ErrConflict.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.mu.TryLock() {
		return domain.Conflict("store is held by another transaction", nil)
	}
	defer s.mu.Unlock()

	t := &tx{s: s}
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
	}()
	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		t.rollback()
		return err
	}
	return nil
}

// View runs fn under the shared lock. fn must only read.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &tx{s: s})
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

type tx struct {
	s    *Store
	undo []func()
}

func (t *tx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func cloneProject(p domain.Project) domain.Project {
	if p.DetailImages != nil {
		p.DetailImages = append([]string(nil), p.DetailImages...)
	}
	if p.FinalizedAt != nil {
		at := *p.FinalizedAt
		p.FinalizedAt = &at
	}
	return p
}

func (t *tx) putProject(p domain.Project) {
	prev, existed := t.s.projects[p.ID]
	t.s.projects[p.ID] = p
	t.onRollback(func() {
		if existed {
			t.s.projects[p.ID] = prev
		} else {
			delete(t.s.projects, p.ID)
		}
	})
}

func (t *tx) CreateProject(_ context.Context, p domain.Project) (uint64, error) {
	prevCount := t.s.count
	t.s.count++
	t.onRollback(func() { t.s.count = prevCount })

	p = cloneProject(p)
	p.ID = t.s.count
	p.TotalDonated = 0
	p.EscrowBalance = 0
	p.FinalizedAt = nil
	t.putProject(p)
	return p.ID, nil
}

func (t *tx) GetProject(_ context.Context, id uint64) (domain.Project, error) {
	p, ok := t.s.projects[id]
	if !ok {
		return domain.Project{}, domain.ErrNotFound
	}
	return cloneProject(p), nil
}

func (t *tx) LockProject(ctx context.Context, id uint64) (domain.Project, error) {
	return t.GetProject(ctx, id)
}

func (t *tx) CountProjects(context.Context) (uint64, error) {
	return t.s.count, nil
}

func (t *tx) ListProjects(_ context.Context, f domain.ProjectFilter) ([]domain.Project, error) {
	ids := make([]uint64, 0, len(t.s.projects))
	for id := range t.s.projects {
		if id > f.AfterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []domain.Project
	for _, id := range ids {
		p := t.s.projects[id]
		if f.Status != domain.StatusUnknown && p.Status != f.Status {
			continue
		}
		if !f.FundableAt.IsZero() && !p.FundableAt(f.FundableAt) {
			continue
		}
		if !f.DeadlineBefore.IsZero() && p.Deadline.After(f.DeadlineBefore) {
			continue
		}
		out = append(out, cloneProject(p))
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (t *tx) UpdateProjectStatus(_ context.Context, id uint64, from, to domain.Status, at time.Time) error {
	p, ok := t.s.projects[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != from {
		return domain.Conflict("project status changed concurrently", nil)
	}
	p = cloneProject(p)
	p.Status = to
	finalizedAt := at.UTC()
	p.FinalizedAt = &finalizedAt
	t.putProject(p)
	return nil
}

func (t *tx) Stats(context.Context) (domain.LedgerStats, error) {
	stats := domain.LedgerStats{ProjectsByStatus: make(map[domain.Status]uint64)}
	for _, p := range t.s.projects {
		stats.ProjectsByStatus[p.Status]++
		stats.EscrowTotal += p.EscrowBalance
	}
	for _, balance := range t.s.accounts {
		stats.PaidOutTotal += balance
	}
	return stats, nil
}

func (t *tx) putContribution(c domain.Contribution) {
	key := contributionKey{projectID: c.ProjectID, donor: c.Donor}
	prev, existed := t.s.contributions[key]
	t.s.contributions[key] = c
	t.onRollback(func() {
		if existed {
			t.s.contributions[key] = prev
		} else {
			delete(t.s.contributions, key)
		}
	})
	if !existed {
		prevDonors := t.s.donors[c.ProjectID]
		t.s.donors[c.ProjectID] = append(append([]string(nil), prevDonors...), c.Donor)
		t.onRollback(func() { t.s.donors[c.ProjectID] = prevDonors })
	}
}

func (t *tx) ApplyDonation(_ context.Context, projectID uint64, donor string, amount int64, at time.Time) (domain.DonationTotals, error) {
	p, ok := t.s.projects[projectID]
	if !ok {
		return domain.DonationTotals{}, domain.ErrNotFound
	}
	key := contributionKey{projectID: projectID, donor: donor}
	c, existed := t.s.contributions[key]
	if !existed {
		c = domain.Contribution{ProjectID: projectID, Donor: donor, FirstDonatedAt: at.UTC()}
	}
	c.Amount += amount
	c.UpdatedAt = at.UTC()
	t.putContribution(c)

	p = cloneProject(p)
	p.TotalDonated += amount
	p.EscrowBalance += amount
	t.putProject(p)
	return domain.DonationTotals{
		TotalDonated:  p.TotalDonated,
		EscrowBalance: p.EscrowBalance,
		Contribution:  c.Amount,
	}, nil
}

func (t *tx) Contribution(_ context.Context, projectID uint64, donor string) (int64, error) {
	return t.s.contributions[contributionKey{projectID: projectID, donor: donor}].Amount, nil
}

func (t *tx) ListContributions(_ context.Context, projectID uint64) ([]domain.Contribution, error) {
	donors := t.s.donors[projectID]
	out := make([]domain.Contribution, 0, len(donors))
	for _, donor := range donors {
		out = append(out, t.s.contributions[contributionKey{projectID: projectID, donor: donor}])
	}
	return out, nil
}

func (t *tx) ClearContribution(_ context.Context, projectID uint64, donor string, at time.Time) (int64, error) {
	p, ok := t.s.projects[projectID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	c, ok := t.s.contributions[contributionKey{projectID: projectID, donor: donor}]
	if !ok || c.Amount == 0 {
		return 0, nil
	}
	amount := c.Amount
	c.Amount = 0
	c.UpdatedAt = at.UTC()
	t.putContribution(c)

	p = cloneProject(p)
	p.TotalDonated -= amount
	p.EscrowBalance -= amount
	t.putProject(p)
	return amount, nil
}

func (t *tx) ReleaseEscrow(_ context.Context, projectID uint64) (int64, error) {
	p, ok := t.s.projects[projectID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	amount := p.EscrowBalance
	p = cloneProject(p)
	p.EscrowBalance = 0
	t.putProject(p)
	return amount, nil
}

func (t *tx) CreditAccount(_ context.Context, account string, amount int64, _ time.Time) (int64, error) {
	prev, existed := t.s.accounts[account]
	t.s.accounts[account] = prev + amount
	t.onRollback(func() {
		if existed {
			t.s.accounts[account] = prev
		} else {
			delete(t.s.accounts, account)
		}
	})
	return prev + amount, nil
}

func (t *tx) AccountBalance(_ context.Context, account string) (int64, error) {
	return t.s.accounts[account], nil
}

func (t *tx) AppendEntry(_ context.Context, entry domain.LedgerEntry) error {
	prevLen := len(t.s.entries)
	t.s.entries = append(t.s.entries, entry)
	t.onRollback(func() { t.s.entries = t.s.entries[:prevLen] })
	return nil
}

func (t *tx) ListEntries(_ context.Context, projectID uint64) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, e := range t.s.entries {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *tx) CreateReviewWindow(_ context.Context, w domain.ReviewWindow) error {
	if _, ok := t.s.windows[w.ProjectID]; ok {
		return domain.ErrAlreadyExists
	}
	w.PositiveCount, w.NegativeCount = 0, 0
	t.s.windows[w.ProjectID] = w
	t.onRollback(func() { delete(t.s.windows, w.ProjectID) })
	return nil
}

func (t *tx) GetReviewWindow(_ context.Context, projectID uint64) (domain.ReviewWindow, error) {
	w, ok := t.s.windows[projectID]
	if !ok {
		return domain.ReviewWindow{}, domain.ErrNotFound
	}
	return w, nil
}

func (t *tx) CreateReviewVote(_ context.Context, v domain.ReviewVote) error {
	key := voteKey{projectID: v.ProjectID, reviewer: v.Reviewer}
	if _, ok := t.s.votes[key]; ok {
		return domain.ErrAlreadyExists
	}
	w, ok := t.s.windows[v.ProjectID]
	if !ok {
		return domain.ErrNotFound
	}
	prevWindow := w
	if v.IsPositive {
		w.PositiveCount++
	} else {
		w.NegativeCount++
	}
	t.s.windows[v.ProjectID] = w
	t.s.votes[key] = v
	prevReviewers := t.s.reviewers[v.ProjectID]
	t.s.reviewers[v.ProjectID] = append(append([]string(nil), prevReviewers...), v.Reviewer)
	t.onRollback(func() {
		t.s.windows[v.ProjectID] = prevWindow
		delete(t.s.votes, key)
		t.s.reviewers[v.ProjectID] = prevReviewers
	})
	return nil
}

func (t *tx) GetReviewVote(_ context.Context, projectID uint64, reviewer string) (domain.ReviewVote, error) {
	v, ok := t.s.votes[voteKey{projectID: projectID, reviewer: reviewer}]
	if !ok {
		return domain.ReviewVote{}, domain.ErrNotFound
	}
	return v, nil
}

func (t *tx) ListReviewVotes(_ context.Context, projectID uint64) ([]domain.ReviewVote, error) {
	reviewers := t.s.reviewers[projectID]
	out := make([]domain.ReviewVote, 0, len(reviewers))
	for _, reviewer := range reviewers {
		out = append(out, t.s.votes[voteKey{projectID: projectID, reviewer: reviewer}])
	}
	return out, nil
}

var _ domain.Store = (*Store)(nil)
var _ domain.Tx = (*tx)(nil)
