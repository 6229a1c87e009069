package analytics

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coopfin/backoffice/internal/ledger"
)

// Aggregator groups balances by day and evaluates every indicator per day. A
// failure in one indicator is isolated to that (date, indicator) pair.
type Aggregator struct {
	logger   *slog.Logger
	failures prometheus.Counter
	compute  func(Indicator, []ledger.BalanceRow) (KPIComputation, error)
}

// NewAggregator builds an Aggregator. Both arguments are optional.
func NewAggregator(logger *slog.Logger, failures prometheus.Counter) *Aggregator {
	return &Aggregator{logger: logger, failures: failures, compute: ComputeKPI}
}

// NewFailureCounter registers the per-indicator failure counter on reg.
func NewFailureCounter(reg prometheus.Registerer) prometheus.Counter {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coop_kpi_indicator_failures_total",
		Help: "Indicator computations replaced by a zero placeholder.",
	})
	if reg != nil {
		reg.MustRegister(counter)
	}
	return counter
}

// Aggregate computes one KPIResult per indicator per distinct calendar day in rows.
// Empty input yields StatusNoData; results inside a day follow indicator order.
func (a *Aggregator) Aggregate(indicators []Indicator, office string, rows []ledger.BalanceRow) Aggregation {
	out := Aggregation{
		Status:     StatusNoData,
		OfficeCode: office,
		Dates:      []string{},
		ByDate:     map[string][]KPIResult{},
	}
	if len(rows) == 0 {
		return out
	}
	out.Status = StatusComputed

	buckets := make(map[string][]ledger.BalanceRow)
	for _, row := range rows {
		key := row.DateKey()
		buckets[key] = append(buckets[key], row)
	}
	for date := range buckets {
		out.Dates = append(out.Dates, date)
	}
	sort.Strings(out.Dates)

	for _, date := range out.Dates {
		dayRows := buckets[date]
		results := make([]KPIResult, 0, len(indicators))
		for _, ind := range indicators {
			comp, err := a.safeCompute(ind, dayRows)
			if err != nil {
				a.logFailure(ind, office, date, err)
				comp = placeholderKPI()
			}
			results = append(results, KPIResult{
				Date:        date,
				IndicatorID: ind.ID,
				OfficeCode:  office,
				Value:       comp.Value,
				Components:  comp.Components,
			})
		}
		out.ByDate[date] = results
	}
	return out
}

// Aggregate runs a default Aggregator.
func Aggregate(indicators []Indicator, office string, rows []ledger.BalanceRow) Aggregation {
	return NewAggregator(nil, nil).Aggregate(indicators, office, rows)
}

func (a *Aggregator) safeCompute(ind Indicator, rows []ledger.BalanceRow) (comp KPIComputation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrIndicatorPanic, r)
		}
	}()
	return a.compute(ind, rows)
}

func placeholderKPI() KPIComputation {
	return KPIComputation{Components: KPIComponents{Numerator: 0, Denominator: 1}}
}

func (a *Aggregator) logFailure(ind Indicator, office, date string, err error) {
	if a.failures != nil {
		a.failures.Inc()
	}
	logger := a.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("indicator computation failed",
		slog.String("indicator_id", ind.ID),
		slog.String("office", office),
		slog.String("date", date),
		slog.Any("error", err),
	)
}
