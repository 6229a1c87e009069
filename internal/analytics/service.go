package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/coopfin/backoffice/internal/ledger"
)

// IndicatorFetcher loads indicator definitions. An empty id list means every active
// indicator.
type IndicatorFetcher interface {
	FetchIndicators(ctx context.Context, ids []string) ([]Indicator, error)
}

// ConfigurationFetcher loads report configurations. FetchConfiguration returns nil
// without error when the name is unknown.
type ConfigurationFetcher interface {
	FetchConfiguration(ctx context.Context, name string) (*ReportConfiguration, error)
	ListActiveConfigurations(ctx context.Context) ([]ReportConfiguration, error)
}

// ServiceConfig carries the optional collaborators of Service. A positive
// MaxReportDates overrides DefaultMaxReportDates.
type ServiceConfig struct {
	Cache          *Cache
	Logger         *slog.Logger
	Registerer     prometheus.Registerer
	NameBatchSize  int
	MaxReportDates int
}

// Service coordinates the calculation engine with the balance store, the catalog and
// the cache layer.
type Service struct {
	store      ledger.Store
	indicators IndicatorFetcher
	configs    ConfigurationFetcher
	cache      *Cache
	aggregator *Aggregator
	builder    *ReportBuilder
	flight     singleflight.Group
	logger     *slog.Logger
}

// NewService wires the engine dependencies.
func NewService(store ledger.Store, indicators IndicatorFetcher, configs ConfigurationFetcher, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	builder := NewReportBuilder(store, store, cfg.NameBatchSize)
	if cfg.MaxReportDates > 0 {
		builder.maxDates = cfg.MaxReportDates
	}
	return &Service{
		store:      store,
		indicators: indicators,
		configs:    configs,
		cache:      cfg.Cache,
		aggregator: NewAggregator(logger, NewFailureCounter(cfg.Registerer)),
		builder:    builder,
		logger:     logger,
	}
}

// Invalidate bumps the cache version so the next request recomputes.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// WarmupSummary reports what Warmup populated.
type WarmupSummary struct {
	Office  string
	Reports int
	Skipped int
}

// Warmup primes the KPI series and every active report for office over [from, to].
// Reports whose configuration disappears while warming are skipped.
func (s *Service) Warmup(ctx context.Context, office string, from, to time.Time, period Granularity) (WarmupSummary, error) {
	summary := WarmupSummary{Office: office}
	if _, err := s.GetKPISeries(ctx, KPIFilter{Office: office, From: from, To: to}); err != nil && !errors.Is(err, ErrIndicatorNotFound) {
		return summary, fmt.Errorf("analytics: warm kpis %s: %w", office, err)
	}
	configs, err := s.configs.ListActiveConfigurations(ctx)
	if err != nil {
		return summary, fmt.Errorf("analytics: list configurations: %w", err)
	}
	for _, cfg := range configs {
		_, err := s.GetTrendReport(ctx, ReportFilter{Name: cfg.Name, Office: office, From: from, To: to, Period: string(period)})
		switch {
		case errors.Is(err, ErrConfigurationNotFound):
			summary.Skipped++
		case err != nil:
			return summary, fmt.Errorf("analytics: warm report %s: %w", cfg.Name, err)
		default:
			summary.Reports++
		}
	}
	return summary, nil
}
