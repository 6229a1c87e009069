package analytics

import (
	"errors"
	"fmt"

	"github.com/coopfin/backoffice/internal/ledger"
	"github.com/coopfin/backoffice/internal/platform/httpx"
)

var (
	// ErrConfigurationNotFound occurs when a named report configuration is absent or inactive.
	ErrConfigurationNotFound = fmt.Errorf("analytics: report configuration %w", httpx.ErrNotFound)
	// ErrIndicatorNotFound occurs when requested indicators are not configured.
	ErrIndicatorNotFound = fmt.Errorf("analytics: indicator %w", httpx.ErrNotFound)
	// ErrNonFiniteCoefficient occurs when a weighted component carries NaN or Inf.
	ErrNonFiniteCoefficient = errors.New("analytics: non-finite coefficient")
	// ErrRangeTooLarge occurs when a report range would produce more dates than allowed.
	ErrRangeTooLarge = fmt.Errorf("analytics: report range too large: %w", httpx.ErrValidation)
	// ErrIndicatorPanic wraps a recovered panic raised while computing one indicator.
	ErrIndicatorPanic = errors.New("analytics: indicator computation panicked")
)

// Indicator is a financial ratio defined by numerator and denominator formulas.
type Indicator struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Numerator           Formula `json:"numerator"`
	Denominator         Formula `json:"denominator"`
	NumeratorAbsolute   bool    `json:"numerator_absolute"`
	DenominatorAbsolute bool    `json:"denominator_absolute"`
	Color               string  `json:"color,omitempty"`
}

// AccountCodes lists every code referenced by the indicator.
func (i Indicator) AccountCodes() []string {
	return ledger.UniqueCodes(append(i.Numerator.Codes(), i.Denominator.Codes()...))
}

// Category groups account codes under a report heading.
type Category struct {
	Name     string   `json:"name" validate:"required"`
	Accounts []string `json:"accounts" validate:"required,min=1,dive,required"`
}

// ReportConfiguration names the categories and accounts of a trend report.
type ReportConfiguration struct {
	Name        string     `json:"name" validate:"required,max=120"`
	Description string     `json:"description"`
	Categories  []Category `json:"categories" validate:"required,min=1,dive"`
	IsActive    bool       `json:"is_active"`
}

// AccountCodes lists every configured code once, in configuration order.
func (c ReportConfiguration) AccountCodes() []string {
	var codes []string
	for _, cat := range c.Categories {
		codes = append(codes, cat.Accounts...)
	}
	return ledger.UniqueCodes(codes)
}

// KPIDetail carries per-account contributions for numerator and denominator.
type KPIDetail struct {
	Numerator   map[string]float64 `json:"numerator,omitempty"`
	Denominator map[string]float64 `json:"denominator,omitempty"`
}

// KPIComponents exposes the evaluated numerator and denominator.
type KPIComponents struct {
	Numerator   float64   `json:"numerator"`
	Denominator float64   `json:"denominator"`
	Detail      KPIDetail `json:"detail"`
}

// KPIComputation is the outcome of one indicator over one day of balances.
type KPIComputation struct {
	Value      float64       `json:"value"`
	Components KPIComponents `json:"components"`
}

// KPIResult is a KPIComputation bound to its date, indicator and office.
type KPIResult struct {
	Date        string        `json:"date"`
	IndicatorID string        `json:"indicator_id"`
	OfficeCode  string        `json:"office_code"`
	Value       float64       `json:"value"`
	Components  KPIComponents `json:"components"`
}

// AggregationStatus tells "no balances available" apart from computed results.
type AggregationStatus string

const (
	// StatusNoData means the balance query returned no rows.
	StatusNoData AggregationStatus = "no_data"
	// StatusComputed means at least one date was evaluated.
	StatusComputed AggregationStatus = "computed"
)

// Aggregation maps each balance date to the KPI results computed for it.
type Aggregation struct {
	Status     AggregationStatus      `json:"status"`
	OfficeCode string                 `json:"office_code"`
	Dates      []string               `json:"dates"`
	ByDate     map[string][]KPIResult `json:"by_date"`
}

// Delta is a period-over-period change.
type Delta struct {
	Absolute float64 `json:"absolute"`
	Percent  float64 `json:"percent"`
}

// AccountReport is one account line of a trend report.
type AccountReport struct {
	Code         string             `json:"code"`
	Name         string             `json:"name"`
	ValuesByDate map[string]float64 `json:"values_by_date"`
	Deltas       map[string]Delta   `json:"deltas"`
}

// CategoryReport aggregates the account lines of one category.
type CategoryReport struct {
	Name         string             `json:"name"`
	Accounts     []AccountReport    `json:"accounts"`
	TotalsByDate map[string]float64 `json:"totals_by_date"`
	Deltas       map[string]Delta   `json:"deltas"`
}

// ReportResult is the full trend table for one configuration and office.
type ReportResult struct {
	Name              string             `json:"name"`
	OfficeCode        string             `json:"office_code"`
	Granularity       Granularity        `json:"granularity"`
	Dates             []string           `json:"dates"`
	Categories        []CategoryReport   `json:"categories"`
	GrandTotalsByDate map[string]float64 `json:"grand_totals_by_date"`
	GrandDeltas       map[string]Delta   `json:"grand_deltas"`
}
