package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExec struct {
	sql []string
	err error
}

func (r *recordingExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = append(r.sql, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), r.err
}

func TestMigrateAppliesSchema(t *testing.T) {
	exec := &recordingExec{}
	require.NoError(t, Migrate(context.Background(), exec))
	require.Len(t, exec.sql, 1)
	for _, table := range []string{"accounts", "ledger_balances", "indicators", "report_configurations"} {
		assert.Contains(t, exec.sql[0], "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.Contains(t, exec.sql[0], "UNIQUE (office_code, account_code, balance_date)")
}

func TestMigrateWrapsError(t *testing.T) {
	err := Migrate(context.Background(), &recordingExec{err: errors.New("permission denied")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}
