// Package sri implementa la generación del XML de comprobantes electrónicos del SRI
// (Ecuador) y el cliente del protocolo de recepción y autorización offline.
package sri

import (
	"time"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	domsri "github.com/jhoicas/facturacion-sri/internal/domain/sri"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

// Issuer datos del emisor que van en infoTributaria y en la cabecera del comprobante.
type Issuer struct {
	Environment          sri.Environment
	RUC                  string
	BusinessName         string // razonSocial
	TradeName            string // nombreComercial (opcional)
	MainAddress          string // dirMatriz
	EstablishmentAddress string // dirEstablecimiento
	Establishment        string
	EmissionPoint        string
	Regime               string // GENERAL | RIMPE_EMPRENDEDOR | RIMPE_NEGOCIO_POPULAR
	KeepsAccounting      bool   // obligadoContabilidad
	SpecialTaxpayer      string // contribuyenteEspecial (opcional)
}

// InvoiceBuildContext datos necesarios para construir el XML de una factura.
type InvoiceBuildContext struct {
	Issuer    Issuer
	AccessKey sri.AccessKey
	Sequence  int64
	IssueDate time.Time
	Sale      *entity.Sale
	Customer  *entity.Customer // nil = consumidor final
	Taxes     *domsri.Breakdown
}

// CreditNoteBuildContext datos necesarios para construir el XML de una nota de crédito.
type CreditNoteBuildContext struct {
	Issuer    Issuer
	AccessKey sri.AccessKey
	Sequence  int64
	IssueDate time.Time
	Note      *entity.CreditNote
	Customer  *entity.Customer
	Taxes     *domsri.Breakdown

	// Factura que se modifica.
	ModifiedDocumentNumber string // EEE-PPP-SSSSSSSSS
	ModifiedDocumentDate   time.Time
}

// Longitudes máximas de campos alfanuméricos (ficha técnica, tablas de formato).
const (
	maxBusinessName = 300
	maxAddress      = 300
	maxDescription  = 300
	maxCode         = 25
	maxReason       = 300
	maxAdditional   = 300
)
