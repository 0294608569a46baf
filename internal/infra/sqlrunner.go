package infra

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor defines the contract required by stores for executing marked SQL.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// SQLRunner executes queries that carry a "--sql <uuid>" marker line and logs
// every statement under that marker.
type SQLRunner struct {
	Pool   *pgxpool.Pool
	Logger zerolog.Logger

	q querier
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{Pool: pool, Logger: logger}
}

// InTx runs fn against a runner bound to one transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func (r *SQLRunner) InTx(ctx context.Context, opts pgx.TxOptions, fn func(tx *SQLRunner) error) error {
	if r.Pool == nil {
		return errors.New("sql runner has no pool")
	}
	tx, err := r.Pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txRunner := &SQLRunner{Pool: r.Pool, Logger: r.Logger, q: tx}
	if err := fn(txRunner); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.Logger.Warn().Err(rbErr).Msg("sql rollback failed")
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	return nil
}

func (r *SQLRunner) conn() querier {
	if r.q != nil {
		return r.q
	}
	return r.Pool
}

// statement starts the per-statement log context for a marked query.
func (r *SQLRunner) statement(query, op string) (zerolog.Logger, string, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		r.Logger.Error().Err(err).Str("op", op).Msg("rejected unmarked sql")
		return r.Logger, "", err
	}
	return r.Logger.With().Str("sql", marker).Str("op", op).Logger(), body, nil
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	log, body, err := r.statement(query, "exec")
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.conn().Exec(ctx, body, args...)
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("sql failed")
		return tag, err
	}
	log.Debug().Int64("rows", tag.RowsAffected()).Dur("duration", time.Since(start)).Msg("sql ok")
	return tag, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	log, body, err := r.statement(query, "query_row")
	if err != nil {
		return errorRow{err: err}
	}
	return loggingRow{row: r.conn().QueryRow(ctx, body, args...), log: log, start: time.Now()}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	log, body, err := r.statement(query, "query")
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.conn().Query(ctx, body, args...)
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("sql failed")
		return nil, err
	}
	return &loggingRows{Rows: rows, log: log, start: start}, nil
}

type loggingRow struct {
	row   pgx.Row
	log   zerolog.Logger
	start time.Time
}

// Scan logs driver failures. A missing row is an expected outcome.
func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	switch {
	case err == nil || errors.Is(err, pgx.ErrNoRows):
		l.log.Debug().Bool("found", err == nil).Dur("duration", time.Since(l.start)).Msg("sql ok")
	default:
		l.log.Error().Err(err).Dur("duration", time.Since(l.start)).Msg("sql failed")
	}
	return err
}

type loggingRows struct {
	pgx.Rows
	log    zerolog.Logger
	start  time.Time
	count  int
	closed bool
}

func (l *loggingRows) Next() bool {
	if l.Rows.Next() {
		l.count++
		return true
	}
	return false
}

func (l *loggingRows) Close() {
	l.Rows.Close()
	if l.closed {
		return
	}
	l.closed = true
	if err := l.Rows.Err(); err != nil {
		l.log.Error().Err(err).Int("rows", l.count).Dur("duration", time.Since(l.start)).Msg("sql failed")
		return
	}
	l.log.Debug().Int("rows", l.count).Dur("duration", time.Since(l.start)).Msg("sql ok")
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

func extractMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	lines := strings.Split(trimmed, "\n")
	if len(lines) == 0 {
		return "", "", errors.New("empty query")
	}
	markerLine := strings.TrimSpace(lines[0])
	if !markerRegexp.MatchString(markerLine) {
		return "", "", errors.New("sql marker missing or invalid")
	}
	return strings.TrimSpace(strings.TrimPrefix(markerLine, "--sql ")), strings.Join(lines[1:], "\n"), nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
