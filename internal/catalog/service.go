package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/coopfin/backoffice/internal/analytics"
	"github.com/coopfin/backoffice/internal/ledger"
	"github.com/coopfin/backoffice/internal/platform/httpx"
)

// Store is the persistence contract of the catalog.
type Store interface {
	ListIndicators(ctx context.Context, activeOnly bool) ([]IndicatorRecord, error)
	GetIndicators(ctx context.Context, ids []string) ([]IndicatorRecord, error)
	GetIndicator(ctx context.Context, id string) (IndicatorRecord, error)
	SaveIndicator(ctx context.Context, rec IndicatorRecord) error
	DeleteIndicator(ctx context.Context, id string) error
	ListConfigurations(ctx context.Context, activeOnly bool) ([]ConfigurationRecord, error)
	GetConfiguration(ctx context.Context, name string) (ConfigurationRecord, error)
	SaveConfiguration(ctx context.Context, rec ConfigurationRecord) error
	DeleteConfiguration(ctx context.Context, name string) error
}

// CacheBumper invalidates derived analytics after a catalog change.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service validates and stores catalog entries and serves them to the engine.
type Service struct {
	store    Store
	cache    CacheBumper
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the catalog service. cache may be nil.
func NewService(store Store, cache CacheBumper, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		cache:    cache,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(fields, ", "))
}

func (s *Service) changed(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump analytics cache", slog.Any("error", err))
	}
}

// ListIndicators returns every indicator.
func (s *Service) ListIndicators(ctx context.Context) ([]IndicatorRecord, error) {
	return s.store.ListIndicators(ctx, false)
}

// GetIndicator returns one indicator.
func (s *Service) GetIndicator(ctx context.Context, id string) (IndicatorRecord, error) {
	return s.store.GetIndicator(ctx, id)
}

func (s *Service) buildIndicator(id string, in IndicatorInput) (IndicatorRecord, error) {
	if err := s.check(in); err != nil {
		return IndicatorRecord{}, err
	}
	if in.Numerator.Kind == "" || in.Denominator.Kind == "" {
		return IndicatorRecord{}, fmt.Errorf("%w: %v", httpx.ErrValidation, ErrFormulaRequired)
	}
	rec := IndicatorRecord{
		Indicator: analytics.Indicator{
			ID:                  id,
			Name:                strings.TrimSpace(in.Name),
			Numerator:           in.Numerator,
			Denominator:         in.Denominator,
			NumeratorAbsolute:   in.NumeratorAbsolute,
			DenominatorAbsolute: in.DenominatorAbsolute,
			Color:               in.Color,
		},
		Active:    in.Active == nil || *in.Active,
		UpdatedAt: s.now(),
	}
	rec.setKinds()
	return rec, nil
}

// CreateIndicator stores a new indicator under a generated id. Formulas of an
// unrecognised shape are accepted and reported with kind "invalid".
func (s *Service) CreateIndicator(ctx context.Context, in IndicatorInput) (IndicatorRecord, error) {
	rec, err := s.buildIndicator(uuid.NewString(), in)
	if err != nil {
		return IndicatorRecord{}, err
	}
	if err := s.store.SaveIndicator(ctx, rec); err != nil {
		return IndicatorRecord{}, err
	}
	if rec.NumeratorKind == analytics.FormulaInvalid || rec.DenominatorKind == analytics.FormulaInvalid {
		s.logger.Warn("indicator stored with unrecognised formula", slog.String("indicator_id", rec.ID))
	}
	s.changed(ctx)
	return rec, nil
}

// UpdateIndicator replaces an existing indicator.
func (s *Service) UpdateIndicator(ctx context.Context, id string, in IndicatorInput) (IndicatorRecord, error) {
	if _, err := s.store.GetIndicator(ctx, id); err != nil {
		return IndicatorRecord{}, err
	}
	rec, err := s.buildIndicator(id, in)
	if err != nil {
		return IndicatorRecord{}, err
	}
	if err := s.store.SaveIndicator(ctx, rec); err != nil {
		return IndicatorRecord{}, err
	}
	s.changed(ctx)
	return rec, nil
}

// DeleteIndicator removes an indicator.
func (s *Service) DeleteIndicator(ctx context.Context, id string) error {
	if err := s.store.DeleteIndicator(ctx, id); err != nil {
		return err
	}
	s.changed(ctx)
	return nil
}

// ListConfigurations returns every report configuration.
func (s *Service) ListConfigurations(ctx context.Context) ([]ConfigurationRecord, error) {
	return s.store.ListConfigurations(ctx, false)
}

// GetConfiguration returns a report configuration by name.
func (s *Service) GetConfiguration(ctx context.Context, name string) (ConfigurationRecord, error) {
	return s.store.GetConfiguration(ctx, name)
}

// SaveConfiguration validates and upserts a report configuration.
func (s *Service) SaveConfiguration(ctx context.Context, cfg analytics.ReportConfiguration) (ConfigurationRecord, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	for i := range cfg.Categories {
		cfg.Categories[i].Accounts = ledger.UniqueCodes(cfg.Categories[i].Accounts)
	}
	if err := s.check(cfg); err != nil {
		return ConfigurationRecord{}, err
	}
	rec := ConfigurationRecord{ReportConfiguration: cfg, UpdatedAt: s.now()}
	if err := s.store.SaveConfiguration(ctx, rec); err != nil {
		return ConfigurationRecord{}, err
	}
	s.changed(ctx)
	return rec, nil
}

// DeleteConfiguration removes a report configuration.
func (s *Service) DeleteConfiguration(ctx context.Context, name string) error {
	if err := s.store.DeleteConfiguration(ctx, name); err != nil {
		return err
	}
	s.changed(ctx)
	return nil
}

// FetchIndicators returns the active indicators with the given ids, or all active
// indicators when ids is empty. Unknown or inactive ids are left out.
func (s *Service) FetchIndicators(ctx context.Context, ids []string) ([]analytics.Indicator, error) {
	var (
		recs []IndicatorRecord
		err  error
	)
	ids = ledger.UniqueCodes(ids)
	if len(ids) == 0 {
		recs, err = s.store.ListIndicators(ctx, true)
	} else {
		recs, err = s.store.GetIndicators(ctx, ids)
	}
	if err != nil {
		return nil, err
	}
	byID := make(map[string]analytics.Indicator, len(recs))
	for _, rec := range recs {
		if rec.Active {
			byID[rec.ID] = rec.Indicator
		}
	}
	out := make([]analytics.Indicator, 0, len(recs))
	if len(ids) == 0 {
		for _, rec := range recs {
			if ind, ok := byID[rec.ID]; ok {
				out = append(out, ind)
			}
		}
		return out, nil
	}
	for _, id := range ids {
		if ind, ok := byID[id]; ok {
			out = append(out, ind)
		}
	}
	return out, nil
}

// FetchConfiguration returns the named configuration, or nil when it does not exist.
func (s *Service) FetchConfiguration(ctx context.Context, name string) (*analytics.ReportConfiguration, error) {
	rec, err := s.store.GetConfiguration(ctx, name)
	if errors.Is(err, ErrConfigurationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec.ReportConfiguration, nil
}

// ListActiveConfigurations returns the configurations the warmup job should build.
func (s *Service) ListActiveConfigurations(ctx context.Context) ([]analytics.ReportConfiguration, error) {
	recs, err := s.store.ListConfigurations(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]analytics.ReportConfiguration, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.ReportConfiguration)
	}
	return out, nil
}
