package coresync

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQLSourceListBalances(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM gl_balances WHERE balance_date >= ?")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"office_code", "account_code", "balance_date", "amount"}).
			AddRow("001", "1101", jan, 500.0).
			AddRow("001", "1102", jan, 200.0))

	rows, err := NewMySQLSource(db).ListBalances(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1102", rows[1].AccountCode)
	assert.Equal(t, "2024-01-31", rows[0].DateKey())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLSourceTrimsPaddedCodes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM gl_balances")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"office_code", "account_code", "balance_date", "amount"}).
			AddRow("001 ", "1101  ", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), 500.0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM gl_accounts")).
		WillReturnRows(sqlmock.NewRows([]string{"code", "name"}).AddRow("1101  ", "Caja"))

	source := NewMySQLSource(db)
	rows, err := source.ListBalances(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "001", rows[0].OfficeCode)
	assert.Equal(t, "1101", rows[0].AccountCode)

	accounts, err := source.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1101", accounts[0].Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLSourceListAccounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT code, name FROM gl_accounts")).
		WillReturnRows(sqlmock.NewRows([]string{"code", "name"}).AddRow("1101", "Caja"))

	accounts, err := NewMySQLSource(db).ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Caja", accounts[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLSourceWrapsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("server has gone away")
	mock.ExpectQuery("gl_accounts").WillReturnError(boom)

	_, err = NewMySQLSource(db).ListAccounts(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "coresync: list accounts")
}
