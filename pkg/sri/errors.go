package sri

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAccessKeyInput indica que algún campo de la clave no tiene el ancho o formato esperado.
	ErrInvalidAccessKeyInput = errors.New("sri: datos inválidos para generar la clave de acceso")
	// ErrInvalidAccessKey indica una clave de 49 dígitos mal formada o con dígito verificador incorrecto.
	ErrInvalidAccessKey = errors.New("sri: clave de acceso inválida")
	// ErrTransport agrupa fallos de red o timeout contra el SRI o el servidor de suscripciones.
	ErrTransport = errors.New("sri: error de conexión")
	// ErrSigning agrupa fallos de firma electrónica (certificado, contraseña, proceso firmador).
	ErrSigning = errors.New("sri: error de firma electrónica")
	// ErrUnsupportedVATRate tarifa de IVA sin código de porcentaje conocido.
	ErrUnsupportedVATRate = errors.New("sri: tarifa de IVA no soportada")
	// ErrInvalidEnvironment ambiente distinto de pruebas (1) o producción (2).
	ErrInvalidEnvironment = errors.New("sri: ambiente inválido")
)

// TransportError describe un fallo de conectividad tras agotar los reintentos de una fase.
type TransportError struct {
	Op       string // "recepcion", "autorizacion", "suscripcion", ...
	Endpoint string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("sri: %s en %s falló tras %d intentos: %v", e.Op, e.Endpoint, e.Attempts, e.Err)
	}
	return fmt.Sprintf("sri: %s en %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is permite errors.Is(err, ErrTransport).
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// SigningError describe un fallo del puerto de firma. No se reintenta.
type SigningError struct {
	Reason string
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sri: firma electrónica: %s: %v", e.Reason, e.Err)
	}
	return "sri: firma electrónica: " + e.Reason
}

func (e *SigningError) Unwrap() error { return e.Err }

// Is permite errors.Is(err, ErrSigning).
func (e *SigningError) Is(target error) bool { return target == ErrSigning }

// NewSigningError construye un SigningError con causa opcional.
func NewSigningError(reason string, err error) *SigningError {
	return &SigningError{Reason: reason, Err: err}
}
