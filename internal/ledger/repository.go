package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/coopfin/backoffice/internal/platform/db"
)

const (
	// DefaultChunkSize bounds the number of account codes per balance query.
	DefaultChunkSize = 30
	fetchParallelism = 4
	upsertBatchSize  = 500
)

// Querier is the subset of pgx used for reads.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository is the Postgres-backed balance store.
type Repository struct {
	db        Querier
	pool      *pgxpool.Pool
	chunkSize int
}

// NewRepository wires a pgx pool. chunkSize <= 0 selects DefaultChunkSize.
func NewRepository(pool *pgxpool.Pool, chunkSize int) *Repository {
	repo := newRepository(pool, chunkSize)
	repo.pool = pool
	return repo
}

func newRepository(q Querier, chunkSize int) *Repository {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Repository{db: q, chunkSize: chunkSize}
}

const balancesSQL = `SELECT office_code, account_code, balance_date, amount
FROM ledger_balances
WHERE office_code = $1 AND balance_date BETWEEN $2 AND $3 AND account_code = ANY($4)
ORDER BY balance_date, account_code, id`

const allBalancesSQL = `SELECT office_code, account_code, balance_date, amount
FROM ledger_balances
WHERE office_code = $1 AND balance_date BETWEEN $2 AND $3
ORDER BY balance_date, account_code, id`

// FetchBalances returns balance rows for the office and range. The account filter is
// split into chunks queried concurrently; results are merged in chunk order so the
// output is stable between calls. An empty code list returns every account.
func (r *Repository) FetchBalances(ctx context.Context, office string, start, end time.Time, codes []string) ([]BalanceRow, error) {
	codes = UniqueCodes(codes)
	if len(codes) == 0 {
		return r.queryBalances(ctx, allBalancesSQL, office, start, end)
	}
	chunks := Chunk(codes, r.chunkSize)
	results := make([][]BalanceRow, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallelism)
	for i, chunk := range chunks {
		g.Go(func() error {
			rows, err := r.queryBalances(gctx, balancesSQL, office, start, end, chunk)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var merged []BalanceRow
	for _, rows := range results {
		merged = append(merged, rows...)
	}
	return merged, nil
}

func (r *Repository) queryBalances(ctx context.Context, query string, args ...any) ([]BalanceRow, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: query balances: %w", err)
	}
	defer rows.Close()

	var out []BalanceRow
	for rows.Next() {
		var row BalanceRow
		if err := rows.Scan(&row.OfficeCode, &row.AccountCode, &row.Date, &row.Amount); err != nil {
			return nil, fmt.Errorf("ledger: scan balance: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate balances: %w", err)
	}
	return out, nil
}

// FetchAccountNames resolves display names for the given codes.
func (r *Repository) FetchAccountNames(ctx context.Context, codes []string) ([]AccountName, error) {
	codes = UniqueCodes(codes)
	if len(codes) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT code, name FROM accounts WHERE code = ANY($1) ORDER BY code`, codes)
	if err != nil {
		return nil, fmt.Errorf("ledger: query account names: %w", err)
	}
	defer rows.Close()

	var out []AccountName
	for rows.Next() {
		var name AccountName
		if err := rows.Scan(&name.Code, &name.Name); err != nil {
			return nil, fmt.Errorf("ledger: scan account name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ListOffices returns the distinct office codes present in the mirror.
func (r *Repository) ListOffices(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT office_code FROM ledger_balances ORDER BY office_code`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list offices: %w", err)
	}
	defer rows.Close()

	var offices []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("ledger: scan office: %w", err)
		}
		offices = append(offices, code)
	}
	return offices, rows.Err()
}

const upsertAccountSQL = `INSERT INTO accounts (code, name, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()`

const upsertBalanceSQL = `INSERT INTO ledger_balances (office_code, account_code, balance_date, amount, synced_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (office_code, account_code, balance_date)
DO UPDATE SET amount = EXCLUDED.amount, synced_at = NOW()`

// SaveMirror upserts accounts and balances in a single transaction.
func (r *Repository) SaveMirror(ctx context.Context, accounts []AccountName, balances []BalanceRow) error {
	if r.pool == nil {
		return fmt.Errorf("ledger: pool not configured")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for start := 0; start < len(accounts); start += upsertBatchSize {
			end := min(start+upsertBatchSize, len(accounts))
			batch := &pgx.Batch{}
			for _, acc := range accounts[start:end] {
				batch.Queue(upsertAccountSQL, acc.Code, acc.Name)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("ledger: upsert accounts: %w", err)
			}
		}
		for start := 0; start < len(balances); start += upsertBatchSize {
			end := min(start+upsertBatchSize, len(balances))
			batch := &pgx.Batch{}
			for _, row := range balances[start:end] {
				batch.Queue(upsertBalanceSQL, row.OfficeCode, row.AccountCode, row.Date, row.Amount)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("ledger: upsert balances: %w", err)
			}
		}
		return nil
	})
}
