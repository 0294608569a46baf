package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"dfund/internal/adapter"
	"dfund/internal/domain"
	"dfund/internal/infra"
	"dfund/internal/ledger"
)

const pageSize = 200

type options struct {
	projectID uint64
	asJSON    bool
	timeout   time.Duration
}

func main() {
	cfg, opts, err := parseArgs(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		exitWithError(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	logger := infra.NewLoggerTo(os.Stderr, "cli", os.Getenv("LOG_LEVEL")).With().Str("cmd", "ledgeraudit").Logger()
	store, err := adapter.OpenStore(ctx, cfg, logger)
	if err != nil {
		exitWithError(fmt.Errorf("failed to open store: %w", err))
	}
	defer store.Close()

	svc := ledger.New(store, ledger.Config{Logger: logger})
	failed, err := run(ctx, svc, os.Stdout, opts)
	if err != nil {
		exitWithError(err)
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d project(s) violate ledger invariants\n", failed)
		os.Exit(2)
	}
}

// parseArgs reads flags, falling back to the same environment keys and
// defaults the API server uses.
func parseArgs(args []string, getenv func(string) string) (*infra.Config, options, error) {
	envOr := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	var (
		opts       options
		driverFlag string
		dbURLFlag  string
		sqliteFlag string
	)
	fs := flag.NewFlagSet("ledgeraudit", flag.ContinueOnError)
	fs.StringVar(&driverFlag, "driver", envOr("STORAGE_DRIVER", infra.StorageSQLite), "storage driver (sqlite, postgres)")
	fs.StringVar(&dbURLFlag, "database-url", getenv("DATABASE_URL"), "postgres connection string")
	fs.StringVar(&sqliteFlag, "sqlite", envOr("SQLITE_PATH", "dfund.db"), "sqlite database path")
	fs.Uint64Var(&opts.projectID, "project", 0, "audit a single project id (0 audits every project)")
	fs.BoolVar(&opts.asJSON, "json", false, "print reports as JSON lines")
	fs.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return nil, opts, err
	}

	cfg := &infra.Config{
		StorageDriver: strings.ToLower(strings.TrimSpace(driverFlag)),
		DatabaseURL:   strings.TrimSpace(dbURLFlag),
		SQLitePath:    strings.TrimSpace(sqliteFlag),
		ServiceName:   "dfund-ledgeraudit",
		DBMaxConns:    2,
	}
	switch cfg.StorageDriver {
	case infra.StoragePostgres:
		if cfg.DatabaseURL == "" {
			return nil, opts, errors.New("-database-url or DATABASE_URL is required")
		}
	case infra.StorageSQLite:
		if cfg.SQLitePath == "" {
			return nil, opts, errors.New("-sqlite is required")
		}
	default:
		return nil, opts, fmt.Errorf("unsupported driver %q", cfg.StorageDriver)
	}
	return cfg, opts, nil
}

// run audits the selected projects and returns how many failed.
func run(ctx context.Context, svc *ledger.Service, out io.Writer, opts options) (int, error) {
	ids, err := projectIDs(ctx, svc, opts.projectID)
	if err != nil {
		return 0, err
	}

	failed := 0
	enc := json.NewEncoder(out)
	for _, id := range ids {
		report, err := svc.Audit(ctx, id)
		if err != nil {
			return failed, fmt.Errorf("audit project %d: %w", id, err)
		}
		if !report.OK() {
			failed++
		}
		if opts.asJSON {
			if err := enc.Encode(report); err != nil {
				return failed, err
			}
			continue
		}
		printReport(out, report)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		return failed, fmt.Errorf("load stats: %w", err)
	}
	if !opts.asJSON {
		fmt.Fprintf(out, "projects=%d failed=%d escrow_total=%d paid_out_total=%d\n",
			len(ids), failed, stats.EscrowTotal, stats.PaidOutTotal)
	}
	return failed, nil
}

func projectIDs(ctx context.Context, svc *ledger.Service, only uint64) ([]uint64, error) {
	if only != 0 {
		return []uint64{only}, nil
	}
	var (
		ids   []uint64
		after uint64
	)
	for {
		page, err := svc.ListProjects(ctx, domain.ProjectFilter{AfterID: after, Limit: pageSize})
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		for _, p := range page {
			ids = append(ids, p.ID)
			after = p.ID
		}
		if len(page) < pageSize {
			return ids, nil
		}
	}
}

func printReport(out io.Writer, r ledger.AuditReport) {
	state := "ok"
	if !r.OK() {
		state = "FAIL"
	}
	fmt.Fprintf(out, "project=%d status=%s total=%d escrow=%d donated=%d released=%d refunded=%d %s\n",
		r.ProjectID, r.Status, r.TotalDonated, r.EscrowBalance, r.Donated, r.Released, r.Refunded, state)
	for _, v := range r.Violations {
		fmt.Fprintf(out, "  - %s\n", v)
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
