// Package repo implements the ledger store on PostgreSQL. Every statement is
// a marked query from sqlinline executed through infra.SQLRunner.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dfund/internal/domain"
	"dfund/internal/infra"
	"dfund/internal/sqlinline"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// StorePG implements domain.Store using PostgreSQL.
type StorePG struct {
	runner *infra.SQLRunner
}

// NewStore wraps runner. Call Migrate before first use.
func NewStore(runner *infra.SQLRunner) *StorePG {
	return &StorePG{runner: runner}
}

// WithTx runs fn in one read-committed transaction. Rows touched through
// LockProject stay locked until it ends.
func (s *StorePG) WithTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	err := s.runner.InTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(r *infra.SQLRunner) error {
		return fn(ctx, &txPG{q: r})
	})
	return mapError(err)
}

// View runs fn in a read-only transaction.
func (s *StorePG) View(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}
	err := s.runner.InTx(ctx, opts, func(r *infra.SQLRunner) error {
		return fn(ctx, &txPG{q: r})
	})
	return mapError(err)
}

// Close releases the pool.
func (s *StorePG) Close() error {
	if s.runner != nil && s.runner.Pool != nil {
		s.runner.Pool.Close()
	}
	return nil
}

type txPG struct {
	q infra.SQLExecutor
}

func scanProject(row pgx.Row) (domain.Project, error) {
	var (
		p      domain.Project
		id     int64
		status int16
	)
	err := row.Scan(
		&id,
		&p.Creator,
		&p.Title,
		&p.Description,
		&p.Image,
		&p.DetailImages,
		&p.GoalAmount,
		&p.Deadline,
		&p.ExpertReviewRequested,
		&status,
		&p.TotalDonated,
		&p.EscrowBalance,
		&p.CreatedAt,
		&p.FinalizedAt,
	)
	if err != nil {
		return domain.Project{}, mapError(err)
	}
	p.ID = uint64(id)
	p.Status = domain.Status(status)
	p.Deadline = p.Deadline.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	if p.FinalizedAt != nil {
		at := p.FinalizedAt.UTC()
		p.FinalizedAt = &at
	}
	return p, nil
}

func (t *txPG) CreateProject(ctx context.Context, p domain.Project) (uint64, error) {
	var id int64
	if err := t.q.QueryRow(ctx, sqlinline.QNextProjectID).Scan(&id); err != nil {
		return 0, mapError(err)
	}
	details := p.DetailImages
	if details == nil {
		details = []string{}
	}
	_, err := t.q.Exec(ctx, sqlinline.QInsertProject,
		id,
		p.Creator,
		p.Title,
		p.Description,
		p.Image,
		details,
		p.GoalAmount,
		p.Deadline,
		p.ExpertReviewRequested,
		int16(p.Status),
		p.CreatedAt,
	)
	if err != nil {
		return 0, mapError(err)
	}
	return uint64(id), nil
}

func (t *txPG) GetProject(ctx context.Context, id uint64) (domain.Project, error) {
	return scanProject(t.q.QueryRow(ctx, sqlinline.QGetProject, int64(id)))
}

// LockProject takes the row lock with NOWAIT; a competing holder yields ErrConflict.
func (t *txPG) LockProject(ctx context.Context, id uint64) (domain.Project, error) {
	return scanProject(t.q.QueryRow(ctx, sqlinline.QLockProject, int64(id)))
}

func (t *txPG) CountProjects(ctx context.Context) (uint64, error) {
	var count int64
	if err := t.q.QueryRow(ctx, sqlinline.QCountProjects).Scan(&count); err != nil {
		return 0, mapError(err)
	}
	return uint64(count), nil
}

func (t *txPG) ListProjects(ctx context.Context, f domain.ProjectFilter) ([]domain.Project, error) {
	var fundableAt, deadlineBefore *time.Time
	if !f.FundableAt.IsZero() {
		fundableAt = &f.FundableAt
	}
	if !f.DeadlineBefore.IsZero() {
		deadlineBefore = &f.DeadlineBefore
	}
	var limit *int
	if f.Limit > 0 {
		limit = &f.Limit
	}
	rows, err := t.q.Query(ctx, sqlinline.QListProjects,
		int64(f.AfterID), int16(f.Status), fundableAt, deadlineBefore, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var items []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return items, nil
}

func (t *txPG) UpdateProjectStatus(ctx context.Context, id uint64, from, to domain.Status, at time.Time) error {
	tag, err := t.q.Exec(ctx, sqlinline.QUpdateProjectStatus, int64(id), int16(from), int16(to), at)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := t.GetProject(ctx, id); err != nil {
		return err
	}
	return domain.Conflict("project status changed concurrently", nil)
}

func (t *txPG) Stats(ctx context.Context) (domain.LedgerStats, error) {
	stats := domain.LedgerStats{ProjectsByStatus: make(map[domain.Status]uint64)}
	rows, err := t.q.Query(ctx, sqlinline.QProjectStatusCounts)
	if err != nil {
		return stats, mapError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status int16
			count  int64
			escrow int64
		)
		if err := rows.Scan(&status, &count, &escrow); err != nil {
			return stats, mapError(err)
		}
		stats.ProjectsByStatus[domain.Status(status)] = uint64(count)
		stats.EscrowTotal += escrow
	}
	if err := rows.Err(); err != nil {
		return stats, mapError(err)
	}
	if err := t.q.QueryRow(ctx, sqlinline.QAccountsTotal).Scan(&stats.PaidOutTotal); err != nil {
		return stats, mapError(err)
	}
	return stats, nil
}

func (t *txPG) ApplyDonation(ctx context.Context, projectID uint64, donor string, amount int64, at time.Time) (domain.DonationTotals, error) {
	var totals domain.DonationTotals
	if err := t.q.QueryRow(ctx, sqlinline.QUpsertContribution, int64(projectID), donor, amount, at).Scan(&totals.Contribution); err != nil {
		return totals, mapError(err)
	}
	if err := t.q.QueryRow(ctx, sqlinline.QCreditProjectEscrow, int64(projectID), amount).Scan(&totals.TotalDonated, &totals.EscrowBalance); err != nil {
		return totals, mapError(err)
	}
	return totals, nil
}

func (t *txPG) Contribution(ctx context.Context, projectID uint64, donor string) (int64, error) {
	var amount int64
	err := t.q.QueryRow(ctx, sqlinline.QGetContribution, int64(projectID), donor).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, mapError(err)
	}
	return amount, nil
}

func (t *txPG) ListContributions(ctx context.Context, projectID uint64) ([]domain.Contribution, error) {
	rows, err := t.q.Query(ctx, sqlinline.QListContributions, int64(projectID))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var items []domain.Contribution
	for rows.Next() {
		var (
			c   domain.Contribution
			pid int64
		)
		if err := rows.Scan(&pid, &c.Donor, &c.Amount, &c.FirstDonatedAt, &c.UpdatedAt); err != nil {
			return nil, mapError(err)
		}
		c.ProjectID = uint64(pid)
		c.FirstDonatedAt = c.FirstDonatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return items, nil
}

func (t *txPG) ClearContribution(ctx context.Context, projectID uint64, donor string, at time.Time) (int64, error) {
	amount, err := t.Contribution(ctx, projectID, donor)
	if err != nil || amount == 0 {
		return 0, err
	}
	if _, err := t.q.Exec(ctx, sqlinline.QZeroContribution, int64(projectID), donor, at); err != nil {
		return 0, mapError(err)
	}
	if _, err := t.q.Exec(ctx, sqlinline.QDebitProjectEscrow, int64(projectID), amount); err != nil {
		return 0, mapError(err)
	}
	return amount, nil
}

func (t *txPG) ReleaseEscrow(ctx context.Context, projectID uint64) (int64, error) {
	var amount int64
	if err := t.q.QueryRow(ctx, sqlinline.QReleaseEscrow, int64(projectID)).Scan(&amount); err != nil {
		return 0, mapError(err)
	}
	return amount, nil
}

func (t *txPG) CreditAccount(ctx context.Context, account string, amount int64, at time.Time) (int64, error) {
	var balance int64
	if err := t.q.QueryRow(ctx, sqlinline.QCreditAccount, account, amount, at).Scan(&balance); err != nil {
		return 0, mapError(err)
	}
	return balance, nil
}

func (t *txPG) AccountBalance(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := t.q.QueryRow(ctx, sqlinline.QGetAccountBalance, account).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, mapError(err)
	}
	return balance, nil
}

func (t *txPG) AppendEntry(ctx context.Context, e domain.LedgerEntry) error {
	_, err := t.q.Exec(ctx, sqlinline.QInsertLedgerEntry,
		e.ID, int64(e.ProjectID), string(e.Kind), e.Account, e.Amount, e.Country, e.CreatedAt)
	return mapError(err)
}

func (t *txPG) ListEntries(ctx context.Context, projectID uint64) ([]domain.LedgerEntry, error) {
	rows, err := t.q.Query(ctx, sqlinline.QListLedgerEntries, int64(projectID))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var items []domain.LedgerEntry
	for rows.Next() {
		var (
			e    domain.LedgerEntry
			pid  int64
			kind string
		)
		if err := rows.Scan(&e.ID, &pid, &kind, &e.Account, &e.Amount, &e.Country, &e.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		e.ProjectID = uint64(pid)
		e.Kind = domain.EntryKind(kind)
		e.CreatedAt = e.CreatedAt.UTC()
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return items, nil
}

func (t *txPG) CreateReviewWindow(ctx context.Context, w domain.ReviewWindow) error {
	_, err := t.q.Exec(ctx, sqlinline.QInsertReviewWindow, int64(w.ProjectID), w.VotingDeadline, w.EnabledAt)
	return mapError(err)
}

func (t *txPG) GetReviewWindow(ctx context.Context, projectID uint64) (domain.ReviewWindow, error) {
	var (
		w             domain.ReviewWindow
		pid, pos, neg int64
	)
	err := t.q.QueryRow(ctx, sqlinline.QGetReviewWindow, int64(projectID)).
		Scan(&pid, &w.VotingDeadline, &pos, &neg, &w.EnabledAt)
	if err != nil {
		return domain.ReviewWindow{}, mapError(err)
	}
	w.ProjectID = uint64(pid)
	w.PositiveCount = uint64(pos)
	w.NegativeCount = uint64(neg)
	w.VotingDeadline = w.VotingDeadline.UTC()
	w.EnabledAt = w.EnabledAt.UTC()
	return w, nil
}

func (t *txPG) CreateReviewVote(ctx context.Context, v domain.ReviewVote) error {
	if _, err := t.q.Exec(ctx, sqlinline.QInsertReviewVote,
		int64(v.ProjectID), v.Reviewer, v.IsPositive, v.Comment, v.SubmittedAt); err != nil {
		return mapError(err)
	}
	_, err := t.q.Exec(ctx, sqlinline.QBumpReviewTally, int64(v.ProjectID), v.IsPositive)
	return mapError(err)
}

func scanVote(row pgx.Row) (domain.ReviewVote, error) {
	var (
		v   domain.ReviewVote
		pid int64
	)
	if err := row.Scan(&pid, &v.Reviewer, &v.IsPositive, &v.Comment, &v.SubmittedAt); err != nil {
		return domain.ReviewVote{}, mapError(err)
	}
	v.ProjectID = uint64(pid)
	v.SubmittedAt = v.SubmittedAt.UTC()
	return v, nil
}

func (t *txPG) GetReviewVote(ctx context.Context, projectID uint64, reviewer string) (domain.ReviewVote, error) {
	return scanVote(t.q.QueryRow(ctx, sqlinline.QGetReviewVote, int64(projectID), reviewer))
}

func (t *txPG) ListReviewVotes(ctx context.Context, projectID uint64) ([]domain.ReviewVote, error) {
	rows, err := t.q.Query(ctx, sqlinline.QListReviewVotes, int64(projectID))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var items []domain.ReviewVote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return items, nil
}

// mapError translates driver failures into the domain storage sentinels.
// Errors already classified by the domain pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != "" || errors.Is(err, domain.ErrAlreadyExists) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return domain.ErrAlreadyExists
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
			return domain.Conflict("project is being updated by another request", err)
		}
	}
	return fmt.Errorf("postgres: %w", err)
}

var _ domain.Store = (*StorePG)(nil)
var _ domain.Tx = (*txPG)(nil)
