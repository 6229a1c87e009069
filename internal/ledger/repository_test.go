package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRows struct {
	data [][]any
	idx  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.idx-1], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: want %d columns got %d", len(row), len(dest))
	}
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = row[i].(string)
		case *float64:
			*ptr = row[i].(float64)
		case *time.Time:
			*ptr = row[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported dest %T", d)
		}
	}
	return nil
}

type fakeQuerier struct {
	mu      sync.Mutex
	calls   [][]string
	balance map[string][]float64
	err     error
}

func (q *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	day := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	if len(args) < 4 {
		q.calls = append(q.calls, nil)
		return &fakeRows{data: [][]any{{"001", "9999", day, 1.0}}}, nil
	}
	codes := args[3].([]string)
	q.calls = append(q.calls, codes)
	var data [][]any
	for _, code := range codes {
		for _, amount := range q.balance[code] {
			data = append(data, []any{args[0].(string), code, day, amount})
		}
	}
	return &fakeRows{data: data}, nil
}

func TestFetchBalancesChunksAndMergesInOrder(t *testing.T) {
	q := &fakeQuerier{balance: map[string][]float64{"1101": {500}, "1102": {200}, "2101": {50}}}
	repo := newRepository(q, 2)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	rows, err := repo.FetchBalances(context.Background(), "001", start, end, []string{"1101", "1102", "1101", "2101", " "})
	require.NoError(t, err)

	require.Len(t, q.calls, 2)
	codes := make([]string, 0, len(rows))
	for _, row := range rows {
		codes = append(codes, row.AccountCode)
		assert.Equal(t, "001", row.OfficeCode)
	}
	assert.Equal(t, []string{"1101", "1102", "2101"}, codes)
}

func TestFetchBalancesWithoutCodesQueriesAllAccounts(t *testing.T) {
	q := &fakeQuerier{}
	repo := newRepository(q, 0)
	rows, err := repo.FetchBalances(context.Background(), "001", time.Time{}, time.Time{}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "9999", rows[0].AccountCode)
	assert.Equal(t, DefaultChunkSize, repo.chunkSize)
}

func TestFetchBalancesWrapsQueryError(t *testing.T) {
	boom := errors.New("connection reset")
	repo := newRepository(&fakeQuerier{err: boom}, 10)
	_, err := repo.FetchBalances(context.Background(), "001", time.Time{}, time.Time{}, []string{"1101"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
