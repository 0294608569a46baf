package repo

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"dfund/internal/adapter/repo/migrations"
	"dfund/internal/infra"
	"dfund/internal/sqlinline"
)

// Migrate applies the embedded schema files in lexical order. Concurrent
// callers serialize on an advisory lock, so several processes may start at once.
func Migrate(ctx context.Context, runner *infra.SQLRunner) error {
	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	if _, err := runner.Exec(ctx, sqlinline.QEnsureSchemaMigrations); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	for _, name := range files {
		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		up := upSection(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}
		err = runner.InTx(ctx, pgx.TxOptions{}, func(tx *infra.SQLRunner) error {
			if _, err := tx.Exec(ctx, sqlinline.QLockSchemaMigrations); err != nil {
				return err
			}
			var applied bool
			if err := tx.QueryRow(ctx, sqlinline.QMigrationApplied, name).Scan(&applied); err != nil {
				return err
			}
			if applied {
				return nil
			}
			if _, err := tx.Exec(ctx, sqlinline.MigrationMarker+up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, sqlinline.QRecordMigration, name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func upSection(content string) string {
	const upMarker, downMarker = "-- +migrate Up", "-- +migrate Down"
	idx := strings.Index(content, upMarker)
	if idx == -1 {
		return content
	}
	body := content[idx+len(upMarker):]
	if end := strings.Index(body, downMarker); end != -1 {
		body = body[:end]
	}
	return body
}
