package analytics

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopfin/backoffice/internal/ledger"
)

var day = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

func row(code string, amount float64) ledger.BalanceRow {
	return ledger.BalanceRow{OfficeCode: "001", AccountCode: code, Date: day, Amount: amount}
}

func TestFormulaDecodeShapes(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		kind FormulaKind
	}{
		{"array", `["1101", 1102]`, FormulaSimple},
		{"accounts object", `{"accounts": ["1101"]}`, FormulaSimple},
		{"base only", `{"base": ["1101"]}`, FormulaBaseAdjust},
		{"base add subtract", `{"base": ["1"], "add": ["2"], "subtract": ["3"]}`, FormulaBaseAdjust},
		{"weighted", `{"components": [{"accounts": ["101"], "coefficient": 2}]}`, FormulaWeighted},
		{"weighted missing coefficient", `{"components": [{"accounts": ["101"]}]}`, FormulaInvalid},
		{"mixed", `{"accounts": ["1"], "base": ["2"]}`, FormulaInvalid},
		{"unknown object", `{"foo": 1}`, FormulaInvalid},
		{"scalar", `"1101"`, FormulaInvalid},
		{"bad codes", `[true]`, FormulaInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var f Formula
			require.NoError(t, json.Unmarshal([]byte(tc.doc), &f))
			assert.Equal(t, tc.kind, f.Kind)
		})
	}
}

func TestFormulaNumericCodesCompareAsStrings(t *testing.T) {
	var f Formula
	require.NoError(t, json.Unmarshal([]byte(`[1101]`), &f))
	assert.Equal(t, []string{"1101"}, f.Codes())

	eval, err := Evaluate([]ledger.BalanceRow{row("1101", 10), row("11010", 99)}, f, false)
	require.NoError(t, err)
	assert.Equal(t, 10.0, eval.Total)
}

func TestFormulaInvalidRoundTrips(t *testing.T) {
	var f Formula
	require.NoError(t, json.Unmarshal([]byte(`{"foo": 1}`), &f))
	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"foo": 1}`, string(out))
}

func TestEvaluateSimpleAbsolute(t *testing.T) {
	rows := []ledger.BalanceRow{row("1101", -40), row("1102", 25), row("2101", 1000)}

	eval, err := Evaluate(rows, SimpleFormula("1101", "1102"), false)
	require.NoError(t, err)
	assert.Equal(t, -15.0, eval.Total)

	eval, err = Evaluate(rows, SimpleFormula("1101", "1102"), true)
	require.NoError(t, err)
	assert.Equal(t, 65.0, eval.Total)
	assert.Equal(t, map[string]float64{"1101": 40, "1102": 25}, eval.ByAccount)
}

func TestEvaluateBaseAdjustNegatesSubtract(t *testing.T) {
	rows := []ledger.BalanceRow{row("1", 100), row("2", 20), row("3", 30)}
	eval, err := Evaluate(rows, BaseAdjustFormula([]string{"1"}, []string{"2"}, []string{"3"}), false)
	require.NoError(t, err)
	assert.Equal(t, 90.0, eval.Total)
	assert.Equal(t, -30.0, eval.ByAccount["3"])
}

func TestEvaluateWeighted(t *testing.T) {
	rows := []ledger.BalanceRow{row("101", 100), row("202", 30)}
	f := WeightedFormula(
		Component{Accounts: AccountCodes{"101"}, Coefficient: 2},
		Component{Accounts: AccountCodes{"202"}, Coefficient: -1},
	)
	eval, err := Evaluate(rows, f, false)
	require.NoError(t, err)
	assert.Equal(t, 170.0, eval.Total)
	assert.Equal(t, map[string]float64{"101": 200, "202": -30}, eval.ByAccount)
}

func TestEvaluateWeightedRejectsNonFinite(t *testing.T) {
	f := WeightedFormula(Component{Accounts: AccountCodes{"101"}, Coefficient: math.Inf(1)})
	_, err := Evaluate([]ledger.BalanceRow{row("101", 1)}, f, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNonFiniteCoefficient))
}

func TestEvaluateInvalidIsZero(t *testing.T) {
	var f Formula
	require.NoError(t, json.Unmarshal([]byte(`{"nope": true}`), &f))
	eval, err := Evaluate([]ledger.BalanceRow{row("1101", 50)}, f, false)
	require.NoError(t, err)
	assert.Zero(t, eval.Total)
	assert.Empty(t, eval.ByAccount)
}

func TestEvaluateDuplicateCodeLastWriteWins(t *testing.T) {
	rows := []ledger.BalanceRow{row("1101", 10), row("1101", 15)}
	eval, err := Evaluate(rows, SimpleFormula("1101"), false)
	require.NoError(t, err)
	assert.Equal(t, 25.0, eval.Total)
	assert.Equal(t, 15.0, eval.ByAccount["1101"])
}
