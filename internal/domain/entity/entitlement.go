package entity

import (
	"strings"
	"time"
)

// Nombres de las compuertas que comparten la caché de autorización.
const (
	GateSubscription = "subscription"
	GateLicense      = "license"
)

// PlanKind familia de plan, que define cómo se evalúa offline.
type PlanKind string

const (
	PlanLifetime PlanKind = "lifetime" // autorizado mientras esté en caché como tal
	PlanCalendar PlanKind = "calendar" // requiere hoy <= fecha de expiración
	PlanQuota    PlanKind = "quota"    // requiere documentos restantes > 0
	PlanUnknown  PlanKind = "unknown"
)

// PlanKindFor clasifica el nombre de plan que devuelve el servidor.
func PlanKindFor(plan string, lifetime bool) PlanKind {
	if lifetime {
		return PlanLifetime
	}
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case "lifetime", "perpetua", "vitalicio", "vitalicia":
		return PlanLifetime
	case "mensual", "semestral", "anual", "trial", "prueba":
		return PlanCalendar
	case "paquete":
		return PlanQuota
	}
	return PlanUnknown
}

// EntitlementRecord última respuesta conocida del servidor de suscripciones/licencias.
type EntitlementRecord struct {
	Gate            string
	Authorized      bool
	Plan            string
	Kind            PlanKind
	ExpiryDate      *time.Time
	RemainingDocs   *int64
	Lifetime        bool
	Message         string
	Business        string // licencia: nombre del negocio
	Email           string
	LastOnlineCheck *time.Time
	UpdatedAt       time.Time
}

// EntitlementSnapshot resultado evaluado de una compuerta.
type EntitlementSnapshot struct {
	EntitlementRecord
	// Offline la respuesta sale de la caché dentro del periodo de gracia.
	Offline bool
}
