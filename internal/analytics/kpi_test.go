package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopfin/backoffice/internal/ledger"
)

func TestComputeKPIZeroDenominator(t *testing.T) {
	ind := Indicator{
		ID:          "liq",
		Numerator:   SimpleFormula("1101"),
		Denominator: SimpleFormula("9999"),
	}
	cases := [][]ledger.BalanceRow{
		nil,
		{row("1101", 500)},
		{row("1101", -12), row("9999", 0)},
	}
	for _, rows := range cases {
		comp, err := ComputeKPI(ind, rows)
		require.NoError(t, err)
		assert.Zero(t, comp.Value)
		assert.Zero(t, comp.Components.Denominator)
	}
}

func TestComputeKPIRatio(t *testing.T) {
	ind := Indicator{
		ID:          "liq",
		Numerator:   SimpleFormula("1101", "1102"),
		Denominator: SimpleFormula("2101"),
	}
	comp, err := ComputeKPI(ind, []ledger.BalanceRow{row("1101", 300), row("1102", 100), row("2101", 200)})
	require.NoError(t, err)
	assert.Equal(t, 2.0, comp.Value)
	assert.Equal(t, 400.0, comp.Components.Numerator)
	assert.Equal(t, map[string]float64{"2101": 200}, comp.Components.Detail.Denominator)
}

func TestAggregateIsolatesFailingIndicator(t *testing.T) {
	good := Indicator{ID: "good", Numerator: SimpleFormula("1101"), Denominator: SimpleFormula("2101")}
	bad := Indicator{
		ID:          "bad",
		Numerator:   WeightedFormula(Component{Accounts: AccountCodes{"1101"}, Coefficient: math.NaN()}),
		Denominator: SimpleFormula("2101"),
	}
	other := Indicator{ID: "other", Numerator: SimpleFormula("2101"), Denominator: SimpleFormula("2101")}

	counter := NewFailureCounter(prometheus.NewRegistry())
	agg := NewAggregator(nil, counter)

	jan := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	rows := []ledger.BalanceRow{
		{OfficeCode: "001", AccountCode: "1101", Date: feb, Amount: 300},
		{OfficeCode: "001", AccountCode: "2101", Date: feb, Amount: 100},
		{OfficeCode: "001", AccountCode: "1101", Date: jan, Amount: 50},
		{OfficeCode: "001", AccountCode: "2101", Date: jan, Amount: 100},
	}

	out := agg.Aggregate([]Indicator{good, bad, other}, "001", rows)
	require.Equal(t, StatusComputed, out.Status)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29"}, out.Dates)

	results := out.ByDate["2024-02-29"]
	require.Len(t, results, 3)
	assert.Equal(t, "good", results[0].IndicatorID)
	assert.Equal(t, 3.0, results[0].Value)
	assert.Equal(t, "bad", results[1].IndicatorID)
	assert.Zero(t, results[1].Value)
	assert.Equal(t, 1.0, results[1].Components.Denominator)
	assert.Equal(t, 1.0, results[2].Value)
	assert.Equal(t, "001", results[2].OfficeCode)

	assert.Equal(t, 0.5, out.ByDate["2024-01-31"][0].Value)
	assert.Equal(t, 2.0, testutil.ToFloat64(counter))
}

func TestAggregateNoData(t *testing.T) {
	out := Aggregate([]Indicator{{ID: "x"}}, "001", nil)
	assert.Equal(t, StatusNoData, out.Status)
	assert.Empty(t, out.Dates)
	assert.NotNil(t, out.ByDate)
	assert.Empty(t, out.ByDate)
}

func TestAggregateAllZeroIsComputed(t *testing.T) {
	ind := Indicator{ID: "x", Numerator: SimpleFormula("1"), Denominator: SimpleFormula("2")}
	out := Aggregate([]Indicator{ind}, "001", []ledger.BalanceRow{row("1", 0)})
	assert.Equal(t, StatusComputed, out.Status)
	require.Len(t, out.ByDate["2024-01-31"], 1)
	assert.Zero(t, out.ByDate["2024-01-31"][0].Value)
}

func TestAggregateRecoversPanickingIndicator(t *testing.T) {
	counter := NewFailureCounter(prometheus.NewRegistry())
	agg := NewAggregator(nil, counter)
	agg.compute = func(ind Indicator, rows []ledger.BalanceRow) (KPIComputation, error) {
		if ind.ID == "boom" {
			var detail map[string]float64
			detail["x"] = 1
		}
		return ComputeKPI(ind, rows)
	}

	good := Indicator{ID: "good", Numerator: SimpleFormula("1101"), Denominator: SimpleFormula("2101")}
	boom := Indicator{ID: "boom", Numerator: SimpleFormula("1101"), Denominator: SimpleFormula("2101")}
	rows := []ledger.BalanceRow{row("1101", 300), row("2101", 100)}

	out := agg.Aggregate([]Indicator{boom, good}, "001", rows)
	require.Equal(t, StatusComputed, out.Status)
	results := out.ByDate["2024-01-31"]
	require.Len(t, results, 2)
	assert.Equal(t, "boom", results[0].IndicatorID)
	assert.Zero(t, results[0].Value)
	assert.Equal(t, 1.0, results[0].Components.Denominator)
	assert.Equal(t, "good", results[1].IndicatorID)
	assert.Equal(t, 3.0, results[1].Value)
	assert.Equal(t, 1.0, testutil.ToFloat64(counter))
}

func TestAggregateGroupsByCalendarDay(t *testing.T) {
	ind := Indicator{ID: "liq", Numerator: SimpleFormula("1101"), Denominator: SimpleFormula("2101")}
	rows := []ledger.BalanceRow{
		{OfficeCode: "001", AccountCode: "1101", Date: time.Date(2024, 3, 1, 8, 15, 0, 0, time.UTC), Amount: 300},
		{OfficeCode: "001", AccountCode: "2101", Date: time.Date(2024, 3, 1, 22, 45, 30, 0, time.UTC), Amount: 150},
	}

	out := Aggregate([]Indicator{ind}, "001", rows)
	assert.Equal(t, []string{"2024-03-01"}, out.Dates)
	require.Len(t, out.ByDate["2024-03-01"], 1)
	assert.Equal(t, 2.0, out.ByDate["2024-03-01"][0].Value)
}
