package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopfin/backoffice/internal/ledger"
	"github.com/coopfin/backoffice/internal/platform/httpx"
)

func date(s string) time.Time {
	t, err := ledger.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

type stubStore struct {
	rows      []ledger.BalanceRow
	names     map[string]string
	err       error
	calls     int
	nameCalls [][]string
}

func (s *stubStore) FetchBalances(ctx context.Context, office string, start, end time.Time, codes []string) ([]ledger.BalanceRow, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	var out []ledger.BalanceRow
	for _, r := range s.rows {
		if r.OfficeCode != office || r.Date.Before(start) || r.Date.After(end) {
			continue
		}
		if len(codes) > 0 && !want[r.AccountCode] {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *stubStore) FetchAccountNames(ctx context.Context, codes []string) ([]ledger.AccountName, error) {
	s.nameCalls = append(s.nameCalls, append([]string(nil), codes...))
	var out []ledger.AccountName
	for _, c := range codes {
		if n, ok := s.names[c]; ok {
			out = append(out, ledger.AccountName{Code: c, Name: n})
		}
	}
	return out, nil
}

func liquidezStore() *stubStore {
	return &stubStore{
		rows: []ledger.BalanceRow{
			{OfficeCode: "001", AccountCode: "1101", Date: date("2024-01-31"), Amount: 500},
			{OfficeCode: "001", AccountCode: "1102", Date: date("2024-01-31"), Amount: 200},
			{OfficeCode: "001", AccountCode: "1101", Date: date("2024-02-29"), Amount: 600},
			{OfficeCode: "001", AccountCode: "1102", Date: date("2024-02-29"), Amount: 150},
			{OfficeCode: "002", AccountCode: "1101", Date: date("2024-02-29"), Amount: 9999},
		},
		names: map[string]string{"1101": "Caja", "1102": "Bancos"},
	}
}

func liquidezConfig() ReportConfiguration {
	return ReportConfiguration{
		Name:       "liquidez",
		Categories: []Category{{Name: "Liquidez", Accounts: []string{"1101", "1102"}}},
		IsActive:   true,
	}
}

func TestGenerateReportDatesMonthly(t *testing.T) {
	got := GenerateReportDates(DateRange{Start: date("2024-01-15"), End: date("2024-03-20")}, GranularityMonthly)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-20"}, got)
}

func TestGenerateReportDatesMonthlyEndOnMonthEnd(t *testing.T) {
	got := GenerateReportDates(DateRange{Start: date("2024-01-01"), End: date("2024-02-29")}, GranularityMonthly)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29"}, got)
}

func TestGenerateReportDatesDaily(t *testing.T) {
	got := GenerateReportDates(DateRange{Start: date("2024-03-01"), End: date("2024-03-03")}, GranularityDaily)
	assert.Equal(t, []string{"2024-03-01", "2024-03-02", "2024-03-03"}, got)
}

func TestGenerateReportDatesEmpty(t *testing.T) {
	assert.Empty(t, GenerateReportDates(DateRange{Start: date("2024-03-03"), End: date("2024-03-01")}, GranularityDaily))
	assert.Empty(t, GenerateReportDates(DateRange{Start: date("2024-03-01"), End: date("2024-03-03")}, Granularity("weekly")))
}

func TestCountReportDatesBoundsGeneratedDates(t *testing.T) {
	cases := []struct {
		rng DateRange
		g   Granularity
	}{
		{DateRange{Start: date("2024-01-01"), End: date("2024-12-31")}, GranularityDaily},
		{DateRange{Start: date("2024-01-15"), End: date("2024-03-10")}, GranularityMonthly},
		{DateRange{Start: date("2023-12-31"), End: date("2024-02-29")}, GranularityMonthly},
		{DateRange{Start: date("2024-03-01"), End: date("2024-01-01")}, GranularityDaily},
	}
	for _, tc := range cases {
		assert.GreaterOrEqual(t, CountReportDates(tc.rng, tc.g), len(GenerateReportDates(tc.rng, tc.g)))
	}
	assert.Equal(t, 366, CountReportDates(cases[0].rng, GranularityDaily))
	assert.Zero(t, CountReportDates(cases[3].rng, GranularityDaily))
}

func TestComputeDelta(t *testing.T) {
	assert.Equal(t, Delta{Absolute: 50, Percent: 100}, ComputeDelta(0, 50))
	assert.Equal(t, Delta{Absolute: 0, Percent: 0}, ComputeDelta(0, 0))
	assert.Equal(t, Delta{Absolute: -50, Percent: -25}, ComputeDelta(200, 150))
	assert.Equal(t, Delta{Absolute: -10, Percent: -100}, ComputeDelta(0, -10))
	assert.Equal(t, Delta{Absolute: 50, Percent: 7.14}, ComputeDelta(700, 750))
}

func TestBuildLiquidezScenario(t *testing.T) {
	store := liquidezStore()
	builder := NewReportBuilder(store, store, 0)

	report, err := builder.Build(context.Background(), liquidezConfig(), "001",
		DateRange{Start: date("2024-01-01"), End: date("2024-02-29")}, GranularityMonthly)
	require.NoError(t, err)

	require.Equal(t, []string{"2024-01-31", "2024-02-29"}, report.Dates)
	require.Len(t, report.Categories, 1)
	cat := report.Categories[0]
	assert.Equal(t, 700.0, cat.TotalsByDate["2024-01-31"])
	assert.Equal(t, 750.0, cat.TotalsByDate["2024-02-29"])
	assert.Equal(t, Delta{Absolute: 50, Percent: 7.14}, cat.Deltas["2024-02-29"])
	assert.NotContains(t, cat.Deltas, "2024-01-31")

	require.Len(t, cat.Accounts, 2)
	assert.Equal(t, "Caja", cat.Accounts[0].Name)
	assert.Equal(t, Delta{Absolute: -50, Percent: -25}, cat.Accounts[1].Deltas["2024-02-29"])
	assert.Equal(t, 750.0, report.GrandTotalsByDate["2024-02-29"])
	assert.Equal(t, cat.Deltas["2024-02-29"], report.GrandDeltas["2024-02-29"])
}

func TestBuildMissingDateDefaultsToZero(t *testing.T) {
	store := liquidezStore()
	cfg := liquidezConfig()
	cfg.Categories = append(cfg.Categories, Category{Name: "Otros", Accounts: []string{"3101"}})
	builder := NewReportBuilder(store, store, 0)

	report, err := builder.Build(context.Background(), cfg, "001",
		DateRange{Start: date("2024-01-01"), End: date("2024-02-29")}, GranularityMonthly)
	require.NoError(t, err)

	line := report.Categories[1].Accounts[0]
	assert.Equal(t, "3101", line.Name)
	v, ok := line.ValuesByDate["2024-01-31"]
	assert.True(t, ok)
	assert.Zero(t, v)
	assert.Equal(t, Delta{}, line.Deltas["2024-02-29"])
}

func TestBuildIsIdempotent(t *testing.T) {
	store := liquidezStore()
	builder := NewReportBuilder(store, store, 0)
	rng := DateRange{Start: date("2024-01-01"), End: date("2024-02-29")}

	first, err := builder.Build(context.Background(), liquidezConfig(), "001", rng, GranularityMonthly)
	require.NoError(t, err)
	second, err := builder.Build(context.Background(), liquidezConfig(), "001", rng, GranularityMonthly)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestBuildUnknownGranularityIsEmpty(t *testing.T) {
	store := liquidezStore()
	builder := NewReportBuilder(store, store, 0)
	report, err := builder.Build(context.Background(), liquidezConfig(), "001",
		DateRange{Start: date("2024-01-01"), End: date("2024-02-29")}, Granularity("quarterly"))
	require.NoError(t, err)
	assert.Empty(t, report.Dates)
	assert.Empty(t, report.Categories)
	assert.Zero(t, store.calls)
}

func TestBuildPropagatesStoreError(t *testing.T) {
	store := &stubStore{err: errors.New("connection reset")}
	builder := NewReportBuilder(store, store, 0)
	_, err := builder.Build(context.Background(), liquidezConfig(), "001",
		DateRange{Start: date("2024-01-01"), End: date("2024-02-29")}, GranularityMonthly)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestBuildRejectsOversizedRange(t *testing.T) {
	store := liquidezStore()
	builder := NewReportBuilder(store, store, 0)
	_, err := builder.Build(context.Background(), liquidezConfig(), "001",
		DateRange{Start: date("0001-01-01"), End: date("9999-12-31")}, GranularityDaily)
	require.ErrorIs(t, err, ErrRangeTooLarge)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Zero(t, store.calls)
}

func TestBuildStopsWhenContextDone(t *testing.T) {
	store := liquidezStore()
	builder := NewReportBuilder(store, store, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := builder.Build(ctx, liquidezConfig(), "001",
		DateRange{Start: date("2024-01-01"), End: date("2024-02-29")}, GranularityDaily)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAssembleReportNormalisesTimeOfDay(t *testing.T) {
	rows := []ledger.BalanceRow{
		{OfficeCode: "001", AccountCode: "1101", Date: time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC), Amount: 400},
		{OfficeCode: "001", AccountCode: "1102", Date: time.Date(2024, 1, 31, 18, 30, 0, 0, time.UTC), Amount: 300},
	}
	report := AssembleReport(liquidezConfig(), "001", GranularityMonthly, []string{"2024-01-31"}, rows, nil)

	assert.Equal(t, []string{"2024-01-31"}, report.Dates)
	assert.Equal(t, 400.0, report.Categories[0].Accounts[0].ValuesByDate["2024-01-31"])
	assert.Equal(t, 700.0, report.GrandTotalsByDate["2024-01-31"])
}

func TestResolveAccountNamesBatches(t *testing.T) {
	store := &stubStore{names: map[string]string{"c1": "Uno"}}
	codes := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		codes = append(codes, "c"+string(rune('a'+i)))
	}
	codes = append(codes, "c1", "c1")

	names, err := ResolveAccountNames(context.Background(), store, codes, 50)
	require.NoError(t, err)
	assert.Equal(t, "Uno", names["c1"])
	require.Len(t, store.nameCalls, 3)
	for _, batch := range store.nameCalls {
		assert.LessOrEqual(t, len(batch), MaxNameBatch)
	}
}
