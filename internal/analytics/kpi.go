package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/coopfin/backoffice/internal/ledger"
)

// ComputeKPI evaluates numerator and denominator over rows of a single day. A zero
// denominator yields value 0 with totals and detail still populated.
func ComputeKPI(ind Indicator, rows []ledger.BalanceRow) (KPIComputation, error) {
	num, err := Evaluate(rows, ind.Numerator, ind.NumeratorAbsolute)
	if err != nil {
		return KPIComputation{}, fmt.Errorf("numerator: %w", err)
	}
	den, err := Evaluate(rows, ind.Denominator, ind.DenominatorAbsolute)
	if err != nil {
		return KPIComputation{}, fmt.Errorf("denominator: %w", err)
	}
	out := KPIComputation{
		Components: KPIComponents{
			Numerator:   num.Total,
			Denominator: den.Total,
			Detail: KPIDetail{
				Numerator:   num.ByAccount,
				Denominator: den.ByAccount,
			},
		},
	}
	if den.Total != 0 {
		out.Value = num.Total / den.Total
	}
	return out, nil
}

// KPIFilter defines the scope for KPI aggregation.
type KPIFilter struct {
	Office       string
	From         time.Time
	To           time.Time
	IndicatorIDs []string
}

// GetKPISeries resolves indicators, fetches their balances and aggregates them by
// date using cache-aware lookups.
func (s *Service) GetKPISeries(ctx context.Context, filter KPIFilter) (Aggregation, error) {
	loader := func(ctx context.Context) (Aggregation, error) {
		indicators, err := s.indicators.FetchIndicators(ctx, filter.IndicatorIDs)
		if err != nil {
			return Aggregation{}, fmt.Errorf("analytics: load indicators: %w", err)
		}
		if len(indicators) == 0 || (len(filter.IndicatorIDs) > 0 && len(indicators) < len(ledger.UniqueCodes(filter.IndicatorIDs))) {
			return Aggregation{}, ErrIndicatorNotFound
		}
		var codes []string
		for _, ind := range indicators {
			codes = append(codes, ind.AccountCodes()...)
		}
		rows, err := s.store.FetchBalances(ctx, filter.Office, filter.From, filter.To, ledger.UniqueCodes(codes))
		if err != nil {
			return Aggregation{}, err
		}
		return s.aggregator.Aggregate(indicators, filter.Office, rows), nil
	}

	ids := ledger.UniqueCodes(filter.IndicatorIDs)
	sort.Strings(ids)
	keyBase := keyKPI(filter.Office, filter.From, filter.To, strings.Join(ids, ","))
	return fetchCached(ctx, s, keyBase, loader)
}
