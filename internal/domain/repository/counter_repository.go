package repository

import (
	"context"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
)

// SequenceRepository contadores de secuenciales por serie.
type SequenceRepository interface {
	// Next devuelve el próximo secuencial libre de la serie sin consumirlo.
	Next(ctx context.Context, series entity.SequenceSeries) (int64, error)
	// Advance marca used como consumido. Falla con domain.ErrSequenceConflict
	// si la serie ya no apunta a used.
	Advance(ctx context.Context, series entity.SequenceSeries, used int64) error
}

// UsageCounterRepository contadores de uso (plan gratuito).
type UsageCounterRepository interface {
	Get(ctx context.Context, name string) (int64, error)
	Increment(ctx context.Context, name string) (int64, error)
}
