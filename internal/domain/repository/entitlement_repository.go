package repository

import (
	"context"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
)

// EntitlementRepository caché persistida de las compuertas de licencia y suscripción.
type EntitlementRepository interface {
	// Get devuelve nil, nil si la compuerta nunca se validó.
	Get(ctx context.Context, gate string) (*entity.EntitlementRecord, error)
	Save(ctx context.Context, record *entity.EntitlementRecord) error
	UpdateRemainingDocs(ctx context.Context, gate string, remaining int64) error
}

// CredentialRepository certificado de firma vigente.
type CredentialRepository interface {
	// GetActive devuelve nil, nil si no hay certificado cargado.
	GetActive(ctx context.Context) (*entity.SigningCredential, error)
	Save(ctx context.Context, cred *entity.SigningCredential) error
}
