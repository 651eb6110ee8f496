package emission

import (
	"context"
	"time"

	"github.com/jhoicas/facturacion-sri/internal/application/dto"
	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/internal/domain/repository"
	infrasri "github.com/jhoicas/facturacion-sri/internal/infrastructure/sri"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

// EmissionTxRunner ejecuta fn dentro de una transacción que incluye el estado de emisión
// y los contadores, de modo que el avance del secuencial y el cambio de estado son atómicos.
type EmissionTxRunner interface {
	RunEmission(ctx context.Context, fn func(
		saleRepo repository.SaleRepository,
		noteRepo repository.CreditNoteRepository,
		seqRepo repository.SequenceRepository,
		usageRepo repository.UsageCounterRepository,
	) error) error
}

// TaxGateway protocolo de dos fases con el SRI (infrastructure/sri.Gateway).
type TaxGateway interface {
	Submit(ctx context.Context, env sri.Environment, signedXML []byte, accessKey string) (*sri.AuthorityResult, error)
	QueryAuthorization(ctx context.Context, env sri.Environment, accessKey string) (*sri.AuthorityResult, error)
}

// Composer construye el XML sin firmar (infrastructure/sri.XMLBuilderService).
type Composer interface {
	BuildInvoice(ctx *infrasri.InvoiceBuildContext) ([]byte, error)
	BuildCreditNote(ctx *infrasri.CreditNoteBuildContext) ([]byte, error)
}

// EntitlementGate compuerta de suscripción (application/entitlement.Service).
type EntitlementGate interface {
	AuthorizeEmission(ctx context.Context) (*entity.EntitlementSnapshot, error)
	RecordConsumption(ctx context.Context, snap *entity.EntitlementSnapshot, accessKey string)
	CheckEntitlement(ctx context.Context) (*dto.EntitlementSnapshot, error)
}

// CredentialChecker valida el certificado antes de firmar (signer.CheckCredential).
type CredentialChecker func(cred sri.Credential, now time.Time) error

// Metrics observador de emisiones (infrastructure/metrics).
type Metrics interface {
	ObserveEmission(documentType, status string, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveEmission(string, string, time.Duration) {}
