package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists indicators and report configurations as JSONB documents.
type Repository struct {
	db DBTX
}

// NewRepository constructs a Postgres repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const indicatorColumns = `id, name, numerator, denominator, numerator_absolute, denominator_absolute, color, active, updated_at`

func scanIndicator(row pgx.Row) (IndicatorRecord, error) {
	var (
		rec      IndicatorRecord
		num, den []byte
	)
	if err := row.Scan(&rec.ID, &rec.Name, &num, &den, &rec.NumeratorAbsolute, &rec.DenominatorAbsolute, &rec.Color, &rec.Active, &rec.UpdatedAt); err != nil {
		return IndicatorRecord{}, err
	}
	if err := json.Unmarshal(num, &rec.Numerator); err != nil {
		return IndicatorRecord{}, fmt.Errorf("catalog: decode numerator %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal(den, &rec.Denominator); err != nil {
		return IndicatorRecord{}, fmt.Errorf("catalog: decode denominator %s: %w", rec.ID, err)
	}
	rec.setKinds()
	return rec, nil
}

func collectIndicators(rows pgx.Rows) ([]IndicatorRecord, error) {
	defer rows.Close()
	var out []IndicatorRecord
	for rows.Next() {
		rec, err := scanIndicator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListIndicators returns indicators ordered by name.
func (r *Repository) ListIndicators(ctx context.Context, activeOnly bool) ([]IndicatorRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+indicatorColumns+` FROM indicators
WHERE ($1::boolean IS FALSE OR active) ORDER BY name, id`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("catalog: list indicators: %w", err)
	}
	return collectIndicators(rows)
}

// GetIndicators loads the indicators with the given ids.
func (r *Repository) GetIndicators(ctx context.Context, ids []string) ([]IndicatorRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+indicatorColumns+` FROM indicators WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog: get indicators: %w", err)
	}
	return collectIndicators(rows)
}

// GetIndicator loads one indicator.
func (r *Repository) GetIndicator(ctx context.Context, id string) (IndicatorRecord, error) {
	rec, err := scanIndicator(r.db.QueryRow(ctx, `SELECT `+indicatorColumns+` FROM indicators WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return IndicatorRecord{}, ErrIndicatorNotFound
	}
	if err != nil {
		return IndicatorRecord{}, fmt.Errorf("catalog: get indicator: %w", err)
	}
	return rec, nil
}

// SaveIndicator inserts or replaces an indicator keyed by id.
func (r *Repository) SaveIndicator(ctx context.Context, rec IndicatorRecord) error {
	num, err := json.Marshal(rec.Numerator)
	if err != nil {
		return err
	}
	den, err := json.Marshal(rec.Denominator)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO indicators (`+indicatorColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, numerator = EXCLUDED.numerator,
  denominator = EXCLUDED.denominator, numerator_absolute = EXCLUDED.numerator_absolute,
  denominator_absolute = EXCLUDED.denominator_absolute, color = EXCLUDED.color,
  active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.Name, num, den, rec.NumeratorAbsolute, rec.DenominatorAbsolute, rec.Color, rec.Active, rec.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateIndicator
	}
	if err != nil {
		return fmt.Errorf("catalog: save indicator: %w", err)
	}
	return nil
}

// DeleteIndicator removes an indicator.
func (r *Repository) DeleteIndicator(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM indicators WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete indicator: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIndicatorNotFound
	}
	return nil
}

const configurationColumns = `name, description, categories, is_active, updated_at`

func scanConfiguration(row pgx.Row) (ConfigurationRecord, error) {
	var (
		rec  ConfigurationRecord
		cats []byte
	)
	if err := row.Scan(&rec.Name, &rec.Description, &cats, &rec.IsActive, &rec.UpdatedAt); err != nil {
		return ConfigurationRecord{}, err
	}
	if err := json.Unmarshal(cats, &rec.Categories); err != nil {
		return ConfigurationRecord{}, fmt.Errorf("catalog: decode categories %s: %w", rec.Name, err)
	}
	return rec, nil
}

// ListConfigurations returns report configurations ordered by name.
func (r *Repository) ListConfigurations(ctx context.Context, activeOnly bool) ([]ConfigurationRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+configurationColumns+` FROM report_configurations
WHERE ($1::boolean IS FALSE OR is_active) ORDER BY name`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("catalog: list configurations: %w", err)
	}
	defer rows.Close()
	var out []ConfigurationRecord
	for rows.Next() {
		rec, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetConfiguration loads a report configuration by name.
func (r *Repository) GetConfiguration(ctx context.Context, name string) (ConfigurationRecord, error) {
	rec, err := scanConfiguration(r.db.QueryRow(ctx, `SELECT `+configurationColumns+` FROM report_configurations WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return ConfigurationRecord{}, ErrConfigurationNotFound
	}
	if err != nil {
		return ConfigurationRecord{}, fmt.Errorf("catalog: get configuration: %w", err)
	}
	return rec, nil
}

// SaveConfiguration upserts a report configuration keyed by name.
func (r *Repository) SaveConfiguration(ctx context.Context, rec ConfigurationRecord) error {
	cats, err := json.Marshal(rec.Categories)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO report_configurations (`+configurationColumns+`)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description,
  categories = EXCLUDED.categories, is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`,
		rec.Name, rec.Description, cats, rec.IsActive, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("catalog: save configuration: %w", err)
	}
	return nil
}

// DeleteConfiguration removes a report configuration.
func (r *Repository) DeleteConfiguration(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM report_configurations WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("catalog: delete configuration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigurationNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
