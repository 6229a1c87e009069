package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/coopfin/backoffice/internal/analytics"
	"github.com/coopfin/backoffice/internal/platform/httpx"
)

var (
	// ErrIndicatorNotFound is returned when an indicator id is unknown.
	ErrIndicatorNotFound = fmt.Errorf("catalog: indicator %w", httpx.ErrNotFound)
	// ErrConfigurationNotFound is returned when a report configuration name is unknown.
	ErrConfigurationNotFound = fmt.Errorf("catalog: report configuration %w", httpx.ErrNotFound)
	// ErrDuplicateIndicator is returned when an indicator name is already taken.
	ErrDuplicateIndicator = fmt.Errorf("catalog: indicator name %w", httpx.ErrDuplicate)
	// ErrFormulaRequired is returned when numerator or denominator is missing.
	ErrFormulaRequired = errors.New("catalog: numerator and denominator are required")
)

// IndicatorInput is the writable part of an indicator.
type IndicatorInput struct {
	Name                string            `json:"name" validate:"required,max=120"`
	Numerator           analytics.Formula `json:"numerator"`
	Denominator         analytics.Formula `json:"denominator"`
	NumeratorAbsolute   bool              `json:"numerator_absolute"`
	DenominatorAbsolute bool              `json:"denominator_absolute"`
	Color               string            `json:"color" validate:"omitempty,hexcolor"`
	Active              *bool             `json:"active"`
}

// IndicatorRecord is a stored indicator with its bookkeeping fields.
type IndicatorRecord struct {
	analytics.Indicator
	Active          bool                  `json:"active"`
	NumeratorKind   analytics.FormulaKind `json:"numerator_kind"`
	DenominatorKind analytics.FormulaKind `json:"denominator_kind"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func (r *IndicatorRecord) setKinds() {
	r.NumeratorKind = r.Numerator.Kind
	r.DenominatorKind = r.Denominator.Kind
}

// ConfigurationRecord is a stored report configuration.
type ConfigurationRecord struct {
	analytics.ReportConfiguration
	UpdatedAt time.Time `json:"updated_at"`
}
