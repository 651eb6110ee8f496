package repository

import (
	"context"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
)

// CreditNoteRepository puerto de lectura de notas de crédito y escritura de su estado de emisión.
type CreditNoteRepository interface {
	GetForEmission(ctx context.Context, id string) (*entity.CreditNote, error)
	SaveEmission(ctx context.Context, id string, state *entity.EmissionState) error
}
