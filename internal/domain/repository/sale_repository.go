package repository

import (
	"context"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
)

// SaleRepository puerto de lectura de ventas y escritura de su estado de emisión.
type SaleRepository interface {
	// GetForEmission devuelve la venta con sus líneas y estado de emisión; nil, nil si no existe.
	GetForEmission(ctx context.Context, id string) (*entity.Sale, error)
	// SaveEmission persiste el estado. Nunca sobrescribe un estado AUTHORIZED.
	SaveEmission(ctx context.Context, id string, state *entity.EmissionState) error
}
