package sri

import (
	"fmt"
	"strings"
)

// Environment ambiente de emisión del SRI. El valor numérico es el dígito que viaja
// en la clave de acceso y en infoTributaria/ambiente.
type Environment int

const (
	EnvironmentTest       Environment = 1 // Pruebas (celcer)
	EnvironmentProduction Environment = 2 // Producción (cel)
)

// ParseEnvironment acepta "pruebas"/"test"/"1" y "produccion"/"producción"/"production"/"2".
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "pruebas", "test", "testing":
		return EnvironmentTest, nil
	case "2", "produccion", "producción", "production", "prod":
		return EnvironmentProduction, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidEnvironment, s)
}

// Valid indica si el ambiente es uno de los dos reconocidos.
func (e Environment) Valid() bool {
	return e == EnvironmentTest || e == EnvironmentProduction
}

// Code devuelve el dígito del ambiente ("1" o "2").
func (e Environment) Code() string {
	return fmt.Sprintf("%d", int(e))
}

func (e Environment) String() string {
	switch e {
	case EnvironmentTest:
		return "pruebas"
	case EnvironmentProduction:
		return "produccion"
	}
	return fmt.Sprintf("ambiente(%d)", int(e))
}

// URLs de los web services offline del SRI.
const (
	ReceptionTestURL           = "https://celcer.sri.gob.ec/comprobantes-electronicos-ws/RecepcionComprobantesOffline"
	ReceptionProductionURL     = "https://cel.sri.gob.ec/comprobantes-electronicos-ws/RecepcionComprobantesOffline"
	AuthorizationTestURL       = "https://celcer.sri.gob.ec/comprobantes-electronicos-ws/AutorizacionComprobantesOffline"
	AuthorizationProductionURL = "https://cel.sri.gob.ec/comprobantes-electronicos-ws/AutorizacionComprobantesOffline"
)

// EndpointSet URLs de recepción y autorización para un ambiente, junto con su política TLS.
type EndpointSet struct {
	Reception     string
	Authorization string
	// InsecureTLS solo es true en pruebas: el certificado de celcer suele no validar.
	InsecureTLS bool
}

// Endpoints devuelve los endpoints del ambiente. Cualquier valor distinto de
// producción se trata como pruebas, así un ambiente mal cargado nunca emite en producción.
func Endpoints(env Environment) EndpointSet {
	if env == EnvironmentProduction {
		return EndpointSet{
			Reception:     ReceptionProductionURL,
			Authorization: AuthorizationProductionURL,
		}
	}
	return EndpointSet{
		Reception:     ReceptionTestURL,
		Authorization: AuthorizationTestURL,
		InsecureTLS:   true,
	}
}
