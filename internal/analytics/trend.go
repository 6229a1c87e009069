package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/coopfin/backoffice/internal/ledger"
)

// Granularity controls how report dates are generated.
type Granularity string

const (
	// GranularityDaily reports every calendar day in range.
	GranularityDaily Granularity = "daily"
	// GranularityMonthly reports month-ends in range plus the range end.
	GranularityMonthly Granularity = "monthly"
)

// ParseGranularity normalises a period string. Unknown values report false.
func ParseGranularity(value string) (Granularity, bool) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(value))); g {
	case GranularityDaily, GranularityMonthly:
		return g, true
	default:
		return g, false
	}
}

// DateRange is an inclusive calendar range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

const sharedLoadTimeout = 30 * time.Second

// DefaultMaxReportDates bounds the dates of one report, about ten years of days.
const DefaultMaxReportDates = 3660

// CountReportDates returns an upper bound on len(GenerateReportDates(rng, g)) without
// generating the dates.
func CountReportDates(rng DateRange, g Granularity) int {
	start, end := calendarDay(rng.Start), calendarDay(rng.End)
	if start.After(end) {
		return 0
	}
	switch g {
	case GranularityDaily:
		return int((end.Unix()-start.Unix())/86400) + 1
	case GranularityMonthly:
		months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
		return months + 2
	default:
		return 0
	}
}

// GenerateReportDates lists the report dates for rng in ascending order. Monthly
// reports use each month-end inside the range and always include the range end.
// A reversed range or an unknown granularity yields an empty list.
func GenerateReportDates(rng DateRange, g Granularity) []string {
	dates := []string{}
	start, end := calendarDay(rng.Start), calendarDay(rng.End)
	if start.After(end) {
		return dates
	}
	switch g {
	case GranularityDaily:
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			dates = append(dates, ledger.DateKey(d))
		}
	case GranularityMonthly:
		seen := make(map[string]struct{})
		for m := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(end); m = m.AddDate(0, 1, 0) {
			last := m.AddDate(0, 1, -1)
			if last.Before(start) || last.After(end) {
				continue
			}
			key := ledger.DateKey(last)
			seen[key] = struct{}{}
			dates = append(dates, key)
		}
		if key := ledger.DateKey(end); !hasKey(seen, key) {
			dates = append(dates, key)
		}
		sort.Strings(dates)
	}
	return dates
}

func hasKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// BalanceFetcher is the balance query the report builder depends on.
type BalanceFetcher interface {
	FetchBalances(ctx context.Context, office string, start, end time.Time, codes []string) ([]ledger.BalanceRow, error)
}

// ReportBuilder produces trend reports from injected collaborators.
type ReportBuilder struct {
	balances  BalanceFetcher
	names     AccountNameFetcher
	nameBatch int
	maxDates  int
}

// NewReportBuilder wires the balance and account-name collaborators. Reports are
// limited to DefaultMaxReportDates dates.
func NewReportBuilder(balances BalanceFetcher, names AccountNameFetcher, nameBatch int) *ReportBuilder {
	return &ReportBuilder{balances: balances, names: names, nameBatch: nameBatch, maxDates: DefaultMaxReportDates}
}

// Build generates the report dates, fetches balances for every configured account and
// assembles totals and deltas. Collaborator errors are returned wrapped. Ranges
// producing more than the configured number of dates fail with ErrRangeTooLarge.
func (b *ReportBuilder) Build(ctx context.Context, cfg ReportConfiguration, office string, rng DateRange, g Granularity) (ReportResult, error) {
	if n := CountReportDates(rng, g); b.maxDates > 0 && n > b.maxDates {
		return ReportResult{}, fmt.Errorf("%w: %d dates exceed the limit of %d", ErrRangeTooLarge, n, b.maxDates)
	}
	dates := GenerateReportDates(rng, g)
	if len(dates) == 0 {
		return emptyReport(cfg.Name, office, g), nil
	}
	codes := cfg.AccountCodes()
	rows, err := b.balances.FetchBalances(ctx, office, calendarDay(rng.Start), calendarDay(rng.End), codes)
	if err != nil {
		return ReportResult{}, fmt.Errorf("analytics: report %s balances: %w", cfg.Name, err)
	}
	names, err := ResolveAccountNames(ctx, b.names, codes, b.nameBatch)
	if err != nil {
		return ReportResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ReportResult{}, err
	}
	return AssembleReport(cfg, office, g, dates, rows, names), nil
}

func emptyReport(name, office string, g Granularity) ReportResult {
	return ReportResult{
		Name:              name,
		OfficeCode:        office,
		Granularity:       g,
		Dates:             []string{},
		Categories:        []CategoryReport{},
		GrandTotalsByDate: map[string]float64{},
		GrandDeltas:       map[string]Delta{},
	}
}

// AssembleReport sums rows onto the given dates. Every (account, date) pair gets a
// value, zero when no row exists.
func AssembleReport(cfg ReportConfiguration, office string, g Granularity, dates []string, rows []ledger.BalanceRow, names map[string]string) ReportResult {
	out := emptyReport(cfg.Name, office, g)
	out.Dates = append(out.Dates, dates...)

	wanted := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		wanted[d] = struct{}{}
	}
	sums := make(map[string]map[string]float64)
	for _, row := range rows {
		key := row.DateKey()
		if _, ok := wanted[key]; !ok {
			continue
		}
		byDate, ok := sums[row.AccountCode]
		if !ok {
			byDate = make(map[string]float64)
			sums[row.AccountCode] = byDate
		}
		byDate[key] += row.Amount
	}

	for _, d := range dates {
		out.GrandTotalsByDate[d] = 0
	}
	for _, cat := range cfg.Categories {
		report := CategoryReport{
			Name:         cat.Name,
			Accounts:     make([]AccountReport, 0, len(cat.Accounts)),
			TotalsByDate: make(map[string]float64, len(dates)),
		}
		for _, code := range cat.Accounts {
			line := AccountReport{
				Code:         code,
				Name:         names[code],
				ValuesByDate: make(map[string]float64, len(dates)),
			}
			if line.Name == "" {
				line.Name = code
			}
			for _, d := range dates {
				v := sums[code][d]
				line.ValuesByDate[d] = v
				report.TotalsByDate[d] += v
			}
			line.Deltas = deltaSeries(dates, line.ValuesByDate)
			report.Accounts = append(report.Accounts, line)
		}
		for _, d := range dates {
			if _, ok := report.TotalsByDate[d]; !ok {
				report.TotalsByDate[d] = 0
			}
			out.GrandTotalsByDate[d] += report.TotalsByDate[d]
		}
		report.Deltas = deltaSeries(dates, report.TotalsByDate)
		out.Categories = append(out.Categories, report)
	}
	out.GrandDeltas = deltaSeries(dates, out.GrandTotalsByDate)
	return out
}

// ReportFilter selects a configuration, office and period for GetTrendReport.
type ReportFilter struct {
	Name   string
	Office string
	From   time.Time
	To     time.Time
	Period string
}

// GetTrendReport builds a trend report with caching. Concurrent identical requests
// share one build, which runs detached from the first caller's cancellation but keeps
// its deadline.
func (s *Service) GetTrendReport(ctx context.Context, filter ReportFilter) (ReportResult, error) {
	g, _ := ParseGranularity(filter.Period)
	loader := func(ctx context.Context) (ReportResult, error) {
		cfg, err := s.configs.FetchConfiguration(ctx, filter.Name)
		if err != nil {
			return ReportResult{}, fmt.Errorf("analytics: load configuration: %w", err)
		}
		if cfg == nil || !cfg.IsActive {
			return ReportResult{}, ErrConfigurationNotFound
		}
		return s.builder.Build(ctx, *cfg, filter.Office, DateRange{Start: filter.From, End: filter.To}, g)
	}

	keyBase := keyReport(filter.Name, filter.Office, filter.From, filter.To, string(g))
	v, err, _ := s.flight.Do(keyBase, func() (interface{}, error) {
		shared, cancel := detach(ctx)
		defer cancel()
		return fetchCached(shared, s, keyBase, loader)
	})
	if err != nil {
		return ReportResult{}, err
	}
	return v.(ReportResult), nil
}

// detach keeps ctx values and deadline but drops its cancellation. Without a deadline
// the shared load is bounded by sharedLoadTimeout.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(base, deadline)
	}
	return context.WithTimeout(base, sharedLoadTimeout)
}
