package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopfin/backoffice/internal/analytics"
)

func TestWriteReportCSV(t *testing.T) {
	report := analytics.ReportResult{
		Name:  "liquidez",
		Dates: []string{"2024-01-31", "2024-02-29"},
		Categories: []analytics.CategoryReport{{
			Name: "Liquidez",
			Accounts: []analytics.AccountReport{
				{Code: "1101", Name: "Caja", ValuesByDate: map[string]float64{"2024-01-31": 500, "2024-02-29": 600}},
				{Code: "1102", Name: "Bancos", ValuesByDate: map[string]float64{"2024-01-31": 200, "2024-02-29": 150}},
			},
			TotalsByDate: map[string]float64{"2024-01-31": 700, "2024-02-29": 750},
		}},
		GrandTotalsByDate: map[string]float64{"2024-01-31": 700, "2024-02-29": 750},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteReportCSV(buf, report))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, []string{"Category", "Account", "Name", "2024-01-31", "2024-02-29"}, records[0])
	assert.Equal(t, []string{"Liquidez", "1101", "Caja", "500.00", "600.00"}, records[1])
	assert.Equal(t, []string{"Liquidez", "", "Total", "700.00", "750.00"}, records[3])
	assert.Equal(t, []string{"", "", "Grand Total", "700.00", "750.00"}, records[4])
}

func TestWriteKPICSV(t *testing.T) {
	agg := analytics.Aggregation{
		Status: analytics.StatusComputed,
		Dates:  []string{"2024-01-31"},
		ByDate: map[string][]analytics.KPIResult{
			"2024-01-31": {{Date: "2024-01-31", IndicatorID: "liq", OfficeCode: "001", Value: 2.5,
				Components: analytics.KPIComponents{Numerator: 500, Denominator: 200}}},
		},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, WriteKPICSV(buf, agg))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"2024-01-31", "liq", "001", "2.50", "500.00", "200.00"}, records[1])
}
