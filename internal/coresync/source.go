package coresync

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/coopfin/backoffice/internal/ledger"
)

// MySQLSource reads balances and account names from the core banking database.
type MySQLSource struct {
	db *sql.DB
}

// OpenMySQLSource opens a pooled connection to the core database. parseTime is forced
// so DATE columns scan into time.Time.
func OpenMySQLSource(dsn string) (*MySQLSource, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("coresync: parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("coresync: connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)
	return NewMySQLSource(db), nil
}

// NewMySQLSource wraps an existing database handle.
func NewMySQLSource(db *sql.DB) *MySQLSource {
	return &MySQLSource{db: db}
}

// Close releases the pool.
func (s *MySQLSource) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *MySQLSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ListAccounts returns the chart of accounts.
func (s *MySQLSource) ListAccounts(ctx context.Context) ([]ledger.AccountName, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, name FROM gl_accounts ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("coresync: list accounts: %w", err)
	}
	defer rows.Close()

	var out []ledger.AccountName
	for rows.Next() {
		var acc ledger.AccountName
		if err := rows.Scan(&acc.Code, &acc.Name); err != nil {
			return nil, fmt.Errorf("coresync: scan account: %w", err)
		}
		acc.Code = strings.TrimSpace(acc.Code)
		out = append(out, acc)
	}
	return out, rows.Err()
}

// ListBalances returns balances dated on or after since. Codes are trimmed because
// the core schema stores them as padded CHAR columns.
func (s *MySQLSource) ListBalances(ctx context.Context, since time.Time) ([]ledger.BalanceRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT office_code, account_code, balance_date, amount
FROM gl_balances WHERE balance_date >= ? ORDER BY balance_date, office_code, account_code`, since)
	if err != nil {
		return nil, fmt.Errorf("coresync: list balances: %w", err)
	}
	defer rows.Close()

	var out []ledger.BalanceRow
	for rows.Next() {
		var row ledger.BalanceRow
		if err := rows.Scan(&row.OfficeCode, &row.AccountCode, &row.Date, &row.Amount); err != nil {
			return nil, fmt.Errorf("coresync: scan balance: %w", err)
		}
		row.OfficeCode = strings.TrimSpace(row.OfficeCode)
		row.AccountCode = strings.TrimSpace(row.AccountCode)
		out = append(out, row)
	}
	return out, rows.Err()
}
