package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrConflict     = errors.New("conflicto con el estado actual")

	// Emisión electrónica.
	ErrAlreadyAuthorized      = errors.New("el comprobante ya está autorizado por el SRI")
	ErrEntitlementDenied      = errors.New("suscripción de facturación electrónica no autorizada")
	ErrEntitlementUnavailable = errors.New("servidor de suscripciones no disponible")
	ErrLicenseInactive        = errors.New("licencia inactiva o no activada en este equipo")
	ErrInconsistentEmission   = errors.New("estado de emisión inconsistente, requiere revisión manual")
	ErrSequenceConflict       = errors.New("el secuencial fue tomado por otra emisión")
	ErrSeriesBusy             = errors.New("otra emisión de la misma serie sigue en curso")
	ErrReferenceNotAuthorized = errors.New("la factura de referencia no está autorizada")
	ErrCredentialNotLoaded    = errors.New("no hay certificado de firma electrónica cargado")
)
