package infra

import (
	"bytes"
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestExtractMarker(t *testing.T) {
	marker, body, err := extractMarker("\n--sql 08b7ccca-a55b-40b4-8749-3052459d1d4b\nselect 1;\n")
	require.NoError(t, err)
	require.Equal(t, "08b7ccca-a55b-40b4-8749-3052459d1d4b", marker)
	require.Equal(t, "select 1;", body)
}

func TestExtractMarkerRejectsUnmarkedSQL(t *testing.T) {
	for _, query := range []string{"select 1;", "--sql not-a-uuid\nselect 1;", "-- comment\nselect 1;"} {
		_, _, err := extractMarker(query)
		require.Error(t, err, query)
	}
}

func TestQueryRowWithoutMarkerFailsBeforeTouchingPool(t *testing.T) {
	r := NewSQLRunner(nil, zerolog.Nop())
	var n int
	err := r.QueryRow(context.Background(), "select 1").Scan(&n)
	require.ErrorContains(t, err, "marker")
}

func TestInTxRequiresPool(t *testing.T) {
	r := NewSQLRunner(nil, zerolog.Nop())
	require.Error(t, r.InTx(context.Background(), pgx.TxOptions{}, func(*SQLRunner) error { return nil }))
}

func TestUnmarkedExecIsLoggedAndRejected(t *testing.T) {
	var buf bytes.Buffer
	r := NewSQLRunner(nil, zerolog.New(&buf))
	_, err := r.Exec(context.Background(), "delete from projects")
	require.Error(t, err)
	require.Contains(t, buf.String(), `"op":"exec"`)
	require.Contains(t, buf.String(), "rejected unmarked sql")
}
