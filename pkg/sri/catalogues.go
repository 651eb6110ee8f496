// Package sri contiene catálogos, clave de acceso y contratos de la facturación
// electrónica del SRI (Ecuador), según la Ficha Técnica de Comprobantes Electrónicos
// esquema offline.
package sri

// =============================================================================
// Tabla 3 - Tipos de comprobante
// =============================================================================

const (
	DocumentTypeInvoice    = "01" // Factura
	DocumentTypeCreditNote = "04" // Nota de crédito
)

// Versiones de esquema XSD usadas por el emisor.
const (
	InvoiceSchemaVersion    = "2.0.0"
	CreditNoteSchemaVersion = "1.1.0"
)

// =============================================================================
// Tabla 2 - Tipo de emisión
// =============================================================================

const (
	EmissionTypeNormal = "1" // Emisión normal (única vigente en esquema offline)
)

// =============================================================================
// Tabla 6 - Tipo de identificación del comprador
// =============================================================================

const (
	BuyerIDTypeRUC        = "04"
	BuyerIDTypeCedula     = "05"
	BuyerIDTypePasaporte  = "06"
	BuyerIDTypeConsumidor = "07" // Venta a consumidor final
	BuyerIDTypeExterior   = "08" // Identificación del exterior
	FinalConsumerID       = "9999999999999"
	FinalConsumerName     = "CONSUMIDOR FINAL"
)

// =============================================================================
// Tabla 16 - Impuestos
// =============================================================================

const (
	TaxCodeIVA = "2"
)

// Tabla 17 - Código de porcentaje de IVA.
const (
	VATPercentZero      = "0" // 0%
	VATPercentTwelve    = "2" // 12% (tarifa histórica)
	VATPercentFourteen  = "3" // 14% (tarifa histórica)
	VATPercentFifteen   = "4" // 15%
	VATPercentFive      = "5" // 5% (tarifa reducida)
	VATPercentNotObject = "6" // No objeto de impuesto
	VATPercentExempt    = "7" // Exento de IVA
)

// VATPercentCodes relaciona la tarifa (en puntos porcentuales) con su código.
var VATPercentCodes = map[int64]string{
	0:  VATPercentZero,
	5:  VATPercentFive,
	12: VATPercentTwelve,
	14: VATPercentFourteen,
	15: VATPercentFifteen,
}

// =============================================================================
// Tabla 24 - Formas de pago
// =============================================================================

const (
	PaymentSinSistemaFinanciero = "01" // Efectivo
	PaymentTarjetaDebito        = "16"
	PaymentTarjetaCredito       = "19"
	PaymentOtrosSistemaFinanc   = "20" // Transferencias y otros con utilización del sistema financiero
)

// Regímenes del contribuyente que se imprimen en infoTributaria/contribuyenteRimpe.
const (
	RegimeGeneral          = "GENERAL"
	RegimeRimpeEmprendedor = "RIMPE_EMPRENDEDOR"
	RegimeRimpePopular     = "RIMPE_NEGOCIO_POPULAR"
)

// RegimeLegend devuelve la leyenda de contribuyenteRimpe o "" si el régimen no la lleva.
func RegimeLegend(regime string) string {
	switch regime {
	case RegimeRimpeEmprendedor:
		return "CONTRIBUYENTE RÉGIMEN RIMPE"
	case RegimeRimpePopular:
		return "CONTRIBUYENTE NEGOCIO POPULAR - RÉGIMEN RIMPE"
	}
	return ""
}

// Moneda y valores fijos del esquema.
const (
	CurrencyDollar = "DOLAR"
	DocumentNodeID = "comprobante" // atributo id del nodo raíz, referenciado por la firma
)
