package sri

import (
	"fmt"
	"strings"
)

// AuthorityStatus estado devuelto por los web services del SRI, más los estados
// locales EN_PROCESO (reintentos agotados) y SIN_CONEXION.
type AuthorityStatus string

const (
	StatusRecibida     AuthorityStatus = "RECIBIDA"
	StatusDevuelta     AuthorityStatus = "DEVUELTA"
	StatusAutorizado   AuthorityStatus = "AUTORIZADO"
	StatusNoAutorizado AuthorityStatus = "NO AUTORIZADO"
	StatusRechazado    AuthorityStatus = "RECHAZADO"
	StatusEnProceso    AuthorityStatus = "EN_PROCESO"
	StatusSinConexion  AuthorityStatus = "SIN_CONEXION"
)

// CodeAlreadyInProcess identificador de "clave de acceso en procesamiento": la
// recepción ya ocurrió en un intento anterior.
const CodeAlreadyInProcess = "70"

// AuthorityMessage mensaje del SRI (recepción o autorización).
type AuthorityMessage struct {
	Identifier     string
	Message        string
	AdditionalInfo string
	Type           string // ERROR | ADVERTENCIA | INFORMATIVO
}

func (m AuthorityMessage) String() string {
	var b strings.Builder
	if m.Identifier != "" {
		fmt.Fprintf(&b, "Error %s - ", m.Identifier)
	}
	b.WriteString(m.Message)
	if m.AdditionalInfo != "" {
		b.WriteString(" - ")
		b.WriteString(m.AdditionalInfo)
	}
	return b.String()
}

// AuthorityResult resultado consolidado del protocolo de dos fases.
type AuthorityResult struct {
	Status              AuthorityStatus
	AccessKey           string
	AuthorizationNumber string
	AuthorizationDate   string
	// Comprobante XML autorizado que devuelve el SRI en la consulta.
	Comprobante string
	Messages    []AuthorityMessage
	// Detail texto libre para estados locales (EN_PROCESO, SIN_CONEXION).
	Detail string
}

// Authorized éxito terminal.
func (r *AuthorityResult) Authorized() bool { return r != nil && r.Status == StatusAutorizado }

// Rejected rechazo terminal: DEVUELTA en recepción o NO AUTORIZADO/RECHAZADO en autorización.
func (r *AuthorityResult) Rejected() bool {
	if r == nil {
		return false
	}
	switch r.Status {
	case StatusDevuelta, StatusNoAutorizado, StatusRechazado:
		return true
	}
	return false
}

// Message texto para el operador: mensajes del SRI unidos por " | ".
func (r *AuthorityResult) Message() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Messages)+1)
	for _, m := range r.Messages {
		if s := m.String(); s != "" {
			parts = append(parts, s)
		}
	}
	if r.Detail != "" {
		parts = append(parts, r.Detail)
	}
	if len(parts) == 0 {
		return string(r.Status)
	}
	return strings.Join(parts, " | ")
}

// HasCode indica si algún mensaje trae el identificador dado.
func (r *AuthorityResult) HasCode(code string) bool {
	if r == nil {
		return false
	}
	for _, m := range r.Messages {
		if strings.TrimSpace(m.Identifier) == code {
			return true
		}
	}
	return false
}
