// Package sqlite provides a SQLite-backed ledger store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"dfund/internal/adapter/sqlite/migrations"
	"dfund/internal/domain"
	"dfund/internal/infra/sqlitemigrate"
)

// Store persists ledger state in SQLite. Write transactions begin IMMEDIATE,
// so a transaction holds the database write lock from its first statement.
// The busy timeout is zero: a second writer fails with SQLITE_BUSY at once
// and surfaces as domain.ErrConflict. Reads go through a separate query-only
// handle and see WAL snapshots without touching the write lock.
type Store struct {
	sqlDB  *sql.DB
	readDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

const (
	writePragmas = "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(0)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	readPragmas  = "?_pragma=query_only(1)&_pragma=busy_timeout(0)"
)

// Open opens a SQLite ledger store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	file := "file:" + filepath.Clean(path)
	sqlDB, err := sql.Open("sqlite", file+writePragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	readDB, err := sql.Open("sqlite", file+readPragmas)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open sqlite read handle: %w", err)
	}
	return &Store{sqlDB: sqlDB, readDB: readDB}, nil
}

// Close closes both SQLite handles.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return errors.Join(s.readDB.Close(), s.sqlDB.Close())
}

// WithTx runs fn in one immediate transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	if err := fn(ctx, &tx{tx: sqlTx, sq: sq.StatementBuilder}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

// View runs fn in a read-only snapshot transaction.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if s == nil || s.readDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sqlTx, err := s.readDB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return classify("begin read transaction", err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	return fn(ctx, &tx{tx: sqlTx, sq: sq.StatementBuilder})
}

type tx struct {
	tx *sql.Tx
	sq sq.StatementBuilderType
}

const projectColumns = `id, creator, title, description, image, detail_images, goal_amount, deadline,
       expert_review_requested, status, total_donated, escrow_balance, created_at, finalized_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var (
		p            domain.Project
		detailImages string
		deadline     int64
		status       int64
		createdAt    int64
		finalizedAt  sql.NullInt64
	)
	if err := row.Scan(
		&p.ID,
		&p.Creator,
		&p.Title,
		&p.Description,
		&p.Image,
		&detailImages,
		&p.GoalAmount,
		&deadline,
		&p.ExpertReviewRequested,
		&status,
		&p.TotalDonated,
		&p.EscrowBalance,
		&createdAt,
		&finalizedAt,
	); err != nil {
		return domain.Project{}, err
	}
	if err := json.Unmarshal([]byte(detailImages), &p.DetailImages); err != nil {
		return domain.Project{}, fmt.Errorf("decode detail images: %w", err)
	}
	p.Deadline = fromMillis(deadline)
	p.Status = domain.Status(status)
	p.CreatedAt = fromMillis(createdAt)
	if finalizedAt.Valid {
		at := fromMillis(finalizedAt.Int64)
		p.FinalizedAt = &at
	}
	return p, nil
}

func (t *tx) CreateProject(ctx context.Context, p domain.Project) (uint64, error) {
	var id uint64
	err := t.tx.QueryRowContext(ctx,
		`UPDATE ledger_counters SET value = value + 1 WHERE name = 'projects' RETURNING value`,
	).Scan(&id)
	if err != nil {
		return 0, classify("allocate project id", err)
	}
	details := p.DetailImages
	if details == nil {
		details = []string{}
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return 0, fmt.Errorf("encode detail images: %w", err)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO projects (
		   id, creator, title, description, image, detail_images, goal_amount, deadline,
		   expert_review_requested, status, total_donated, escrow_balance, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`,
		id,
		p.Creator,
		p.Title,
		p.Description,
		p.Image,
		string(encoded),
		p.GoalAmount,
		toMillis(p.Deadline),
		p.ExpertReviewRequested,
		int64(p.Status),
		toMillis(p.CreatedAt),
	)
	if err != nil {
		return 0, classify("create project", err)
	}
	return id, nil
}

func (t *tx) GetProject(ctx context.Context, id uint64) (domain.Project, error) {
	p, err := scanProject(t.tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if err != nil {
		return domain.Project{}, classify("get project", err)
	}
	return p, nil
}

// LockProject is a plain read: the immediate transaction already holds the write lock.
func (t *tx) LockProject(ctx context.Context, id uint64) (domain.Project, error) {
	return t.GetProject(ctx, id)
}

func (t *tx) CountProjects(ctx context.Context) (uint64, error) {
	var count uint64
	if err := t.tx.QueryRowContext(ctx, `SELECT value FROM ledger_counters WHERE name = 'projects'`).Scan(&count); err != nil {
		return 0, classify("count projects", err)
	}
	return count, nil
}

func (t *tx) ListProjects(ctx context.Context, f domain.ProjectFilter) ([]domain.Project, error) {
	q := t.sq.Select(projectColumns).From("projects").Where(sq.Gt{"id": f.AfterID})
	if f.Status != domain.StatusUnknown {
		q = q.Where(sq.Eq{"status": int64(f.Status)})
	}
	if !f.FundableAt.IsZero() {
		q = q.Where(sq.Eq{"status": int64(domain.StatusActive)}).Where(sq.Gt{"deadline": toMillis(f.FundableAt)})
	}
	if !f.DeadlineBefore.IsZero() {
		q = q.Where(sq.LtOrEq{"deadline": toMillis(f.DeadlineBefore)})
	}
	q = q.OrderBy("id ASC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list projects: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list projects", err)
	}
	defer rows.Close()

	var out []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list projects", err)
	}
	return out, nil
}

func (t *tx) UpdateProjectStatus(ctx context.Context, id uint64, from, to domain.Status, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE projects SET status = ?, finalized_at = ? WHERE id = ? AND status = ?`,
		int64(to), toMillis(at), id, int64(from),
	)
	if err != nil {
		return classify("update project status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project status: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := t.GetProject(ctx, id); err != nil {
		return err
	}
	return domain.Conflict("project status changed concurrently", nil)
}

func (t *tx) Stats(ctx context.Context) (domain.LedgerStats, error) {
	stats := domain.LedgerStats{ProjectsByStatus: make(map[domain.Status]uint64)}
	rows, err := t.tx.QueryContext(ctx, `SELECT status, COUNT(*), COALESCE(SUM(escrow_balance), 0) FROM projects GROUP BY status`)
	if err != nil {
		return stats, classify("project stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status int64
			count  uint64
			escrow int64
		)
		if err := rows.Scan(&status, &count, &escrow); err != nil {
			return stats, fmt.Errorf("project stats: %w", err)
		}
		stats.ProjectsByStatus[domain.Status(status)] = count
		stats.EscrowTotal += escrow
	}
	if err := rows.Err(); err != nil {
		return stats, classify("project stats", err)
	}
	if err := t.tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(balance), 0) FROM accounts`).Scan(&stats.PaidOutTotal); err != nil {
		return stats, classify("account stats", err)
	}
	return stats, nil
}

func (t *tx) ApplyDonation(ctx context.Context, projectID uint64, donor string, amount int64, at time.Time) (domain.DonationTotals, error) {
	var totals domain.DonationTotals
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO contributions (project_id, donor, amount, first_donated_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (project_id, donor) DO UPDATE
		   SET amount = amount + excluded.amount, updated_at = excluded.updated_at
		 RETURNING amount`,
		projectID, donor, amount, toMillis(at), toMillis(at),
	).Scan(&totals.Contribution)
	if err != nil {
		return totals, classify("record contribution", err)
	}
	err = t.tx.QueryRowContext(ctx,
		`UPDATE projects
		    SET total_donated = total_donated + ?, escrow_balance = escrow_balance + ?
		  WHERE id = ?
		 RETURNING total_donated, escrow_balance`,
		amount, amount, projectID,
	).Scan(&totals.TotalDonated, &totals.EscrowBalance)
	if err != nil {
		return totals, classify("credit project escrow", err)
	}
	return totals, nil
}

func (t *tx) Contribution(ctx context.Context, projectID uint64, donor string) (int64, error) {
	var amount int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT amount FROM contributions WHERE project_id = ? AND donor = ?`, projectID, donor,
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, classify("get contribution", err)
	}
	return amount, nil
}

func (t *tx) ListContributions(ctx context.Context, projectID uint64) ([]domain.Contribution, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT project_id, donor, amount, first_donated_at, updated_at
		   FROM contributions WHERE project_id = ? ORDER BY seq ASC`, projectID)
	if err != nil {
		return nil, classify("list contributions", err)
	}
	defer rows.Close()
	var out []domain.Contribution
	for rows.Next() {
		var (
			c                  domain.Contribution
			first, lastUpdated int64
		)
		if err := rows.Scan(&c.ProjectID, &c.Donor, &c.Amount, &first, &lastUpdated); err != nil {
			return nil, fmt.Errorf("list contributions: %w", err)
		}
		c.FirstDonatedAt = fromMillis(first)
		c.UpdatedAt = fromMillis(lastUpdated)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list contributions", err)
	}
	return out, nil
}

func (t *tx) ClearContribution(ctx context.Context, projectID uint64, donor string, at time.Time) (int64, error) {
	amount, err := t.Contribution(ctx, projectID, donor)
	if err != nil || amount == 0 {
		return 0, err
	}
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE contributions SET amount = 0, updated_at = ? WHERE project_id = ? AND donor = ?`,
		toMillis(at), projectID, donor,
	); err != nil {
		return 0, classify("clear contribution", err)
	}
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE projects
		    SET total_donated = total_donated - ?, escrow_balance = escrow_balance - ?
		  WHERE id = ?`,
		amount, amount, projectID,
	); err != nil {
		return 0, classify("debit project escrow", err)
	}
	return amount, nil
}

func (t *tx) ReleaseEscrow(ctx context.Context, projectID uint64) (int64, error) {
	var amount int64
	if err := t.tx.QueryRowContext(ctx, `SELECT escrow_balance FROM projects WHERE id = ?`, projectID).Scan(&amount); err != nil {
		return 0, classify("read escrow", err)
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE projects SET escrow_balance = 0 WHERE id = ?`, projectID); err != nil {
		return 0, classify("release escrow", err)
	}
	return amount, nil
}

func (t *tx) CreditAccount(ctx context.Context, account string, amount int64, at time.Time) (int64, error) {
	var balance int64
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO accounts (account, balance, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (account) DO UPDATE
		   SET balance = balance + excluded.balance, updated_at = excluded.updated_at
		 RETURNING balance`,
		account, amount, toMillis(at),
	).Scan(&balance)
	if err != nil {
		return 0, classify("credit account", err)
	}
	return balance, nil
}

func (t *tx) AccountBalance(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := t.tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE account = ?`, account).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, classify("get account balance", err)
	}
	return balance, nil
}

func (t *tx) AppendEntry(ctx context.Context, e domain.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, project_id, kind, account, amount, country, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, string(e.Kind), e.Account, e.Amount, e.Country, toMillis(e.CreatedAt),
	)
	if err != nil {
		return classify("append ledger entry", err)
	}
	return nil
}

func (t *tx) ListEntries(ctx context.Context, projectID uint64) ([]domain.LedgerEntry, error) {
	query, args, err := t.sq.
		Select("id", "project_id", "kind", "account", "amount", "country", "created_at").
		From("ledger_entries").
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list ledger entries: %w", err)
	}
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list ledger entries", err)
	}
	defer rows.Close()
	var out []domain.LedgerEntry
	for rows.Next() {
		var (
			e         domain.LedgerEntry
			kind      string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &kind, &e.Account, &e.Amount, &e.Country, &createdAt); err != nil {
			return nil, fmt.Errorf("list ledger entries: %w", err)
		}
		e.Kind = domain.EntryKind(kind)
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list ledger entries", err)
	}
	return out, nil
}

func (t *tx) CreateReviewWindow(ctx context.Context, w domain.ReviewWindow) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO review_windows (project_id, voting_deadline, enabled_at) VALUES (?, ?, ?)`,
		w.ProjectID, toMillis(w.VotingDeadline), toMillis(w.EnabledAt),
	)
	if err != nil {
		return classify("create review window", err)
	}
	return nil
}

func (t *tx) GetReviewWindow(ctx context.Context, projectID uint64) (domain.ReviewWindow, error) {
	var (
		w                 domain.ReviewWindow
		deadline, enabled int64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT project_id, voting_deadline, positive_count, negative_count, enabled_at
		   FROM review_windows WHERE project_id = ?`, projectID,
	).Scan(&w.ProjectID, &deadline, &w.PositiveCount, &w.NegativeCount, &enabled)
	if err != nil {
		return domain.ReviewWindow{}, classify("get review window", err)
	}
	w.VotingDeadline = fromMillis(deadline)
	w.EnabledAt = fromMillis(enabled)
	return w, nil
}

func (t *tx) CreateReviewVote(ctx context.Context, v domain.ReviewVote) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO review_votes (project_id, reviewer, is_positive, comment, submitted_at)
		 VALUES (?, ?, ?, ?, ?)`,
		v.ProjectID, v.Reviewer, v.IsPositive, v.Comment, toMillis(v.SubmittedAt),
	)
	if err != nil {
		return classify("create review vote", err)
	}
	column := "negative_count"
	if v.IsPositive {
		column = "positive_count"
	}
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE review_windows SET `+column+` = `+column+` + 1 WHERE project_id = ?`, v.ProjectID,
	); err != nil {
		return classify("update review tally", err)
	}
	return nil
}

func (t *tx) GetReviewVote(ctx context.Context, projectID uint64, reviewer string) (domain.ReviewVote, error) {
	var (
		v           domain.ReviewVote
		submittedAt int64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT project_id, reviewer, is_positive, comment, submitted_at
		   FROM review_votes WHERE project_id = ? AND reviewer = ?`, projectID, reviewer,
	).Scan(&v.ProjectID, &v.Reviewer, &v.IsPositive, &v.Comment, &submittedAt)
	if err != nil {
		return domain.ReviewVote{}, classify("get review vote", err)
	}
	v.SubmittedAt = fromMillis(submittedAt)
	return v, nil
}

func (t *tx) ListReviewVotes(ctx context.Context, projectID uint64) ([]domain.ReviewVote, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT project_id, reviewer, is_positive, comment, submitted_at
		   FROM review_votes WHERE project_id = ? ORDER BY seq ASC`, projectID)
	if err != nil {
		return nil, classify("list review votes", err)
	}
	defer rows.Close()
	var out []domain.ReviewVote
	for rows.Next() {
		var (
			v           domain.ReviewVote
			submittedAt int64
		)
		if err := rows.Scan(&v.ProjectID, &v.Reviewer, &v.IsPositive, &v.Comment, &submittedAt); err != nil {
			return nil, fmt.Errorf("list review votes: %w", err)
		}
		v.SubmittedAt = fromMillis(submittedAt)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list review votes", err)
	}
	return out, nil
}

// classify maps driver errors onto the domain storage sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return domain.ErrAlreadyExists
		}
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return domain.Conflict(op+": database is busy", err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ domain.Store = (*Store)(nil)
var _ domain.Tx = (*tx)(nil)
