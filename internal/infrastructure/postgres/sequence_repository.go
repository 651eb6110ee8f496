package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/facturacion-sri/internal/domain"
	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/internal/domain/repository"
)

var (
	_ repository.SequenceRepository     = (*SequenceRepo)(nil)
	_ repository.UsageCounterRepository = (*CounterRepo)(nil)
)

// SequenceRepo secuenciales por serie en sri_sequences.
type SequenceRepo struct {
	q Querier
}

// NewSequenceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSequenceRepository(q Querier) *SequenceRepo {
	return &SequenceRepo{q: q}
}

// Next devuelve el próximo secuencial libre. Una serie nueva empieza en 1.
func (r *SequenceRepo) Next(ctx context.Context, s entity.SequenceSeries) (int64, error) {
	query := `
		SELECT next_value FROM sri_sequences
		WHERE establishment = $1 AND emission_point = $2 AND document_type = $3 AND environment = $4`
	var next int64
	err := r.q.QueryRow(ctx, query, s.Establishment, s.EmissionPoint, s.DocumentType, s.Environment).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get sequence %s: %w", s.Key(), err)
	}
	return next, nil
}

// Advance consume used con un UPDATE optimista: si otra emisión ya avanzó la
// serie, no hay fila afectada y se devuelve domain.ErrSequenceConflict.
func (r *SequenceRepo) Advance(ctx context.Context, s entity.SequenceSeries, used int64) error {
	if used == 1 {
		tag, err := r.q.Exec(ctx, `
			INSERT INTO sri_sequences (establishment, emission_point, document_type, environment, next_value)
			VALUES ($1, $2, $3, $4, 2)
			ON CONFLICT (establishment, emission_point, document_type, environment) DO NOTHING`,
			s.Establishment, s.EmissionPoint, s.DocumentType, s.Environment)
		if err != nil {
			return fmt.Errorf("insert sequence %s: %w", s.Key(), err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE sri_sequences SET next_value = $5 + 1, updated_at = NOW()
		WHERE establishment = $1 AND emission_point = $2 AND document_type = $3 AND environment = $4
			AND next_value = $5`,
		s.Establishment, s.EmissionPoint, s.DocumentType, s.Environment, used)
	if err != nil {
		return fmt.Errorf("advance sequence %s: %w", s.Key(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("serie %s, secuencial %d: %w", s.Key(), used, domain.ErrSequenceConflict)
	}
	return nil
}

// Seed fija el próximo secuencial de una serie (migración desde otro sistema).
func (r *SequenceRepo) Seed(ctx context.Context, s entity.SequenceSeries, next int64) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO sri_sequences (establishment, emission_point, document_type, environment, next_value)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (establishment, emission_point, document_type, environment)
		DO UPDATE SET next_value = GREATEST(sri_sequences.next_value, EXCLUDED.next_value), updated_at = NOW()`,
		s.Establishment, s.EmissionPoint, s.DocumentType, s.Environment, next)
	if err != nil {
		return fmt.Errorf("seed sequence %s: %w", s.Key(), err)
	}
	return nil
}

// CounterRepo contadores de uso en sri_counters.
type CounterRepo struct {
	q Querier
}

// NewCounterRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCounterRepository(q Querier) *CounterRepo {
	return &CounterRepo{q: q}
}

// Get devuelve el valor del contador; 0 si no existe.
func (r *CounterRepo) Get(ctx context.Context, name string) (int64, error) {
	var v int64
	err := r.q.QueryRow(ctx, `SELECT value FROM sri_counters WHERE name = $1`, name).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter %s: %w", name, err)
	}
	return v, nil
}

// Increment suma uno y devuelve el nuevo valor.
func (r *CounterRepo) Increment(ctx context.Context, name string) (int64, error) {
	var v int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO sri_counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = sri_counters.value + 1
		RETURNING value`, name).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	return v, nil
}
