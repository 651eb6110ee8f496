package entity

import (
	"strconv"
	"time"
)

// EmissionStatus estado de la emisión electrónica de un comprobante.
type EmissionStatus string

const (
	EmissionNone       EmissionStatus = "NONE"
	EmissionPending    EmissionStatus = "PENDING"
	EmissionAuthorized EmissionStatus = "AUTHORIZED"
	EmissionRejected   EmissionStatus = "REJECTED"
)

// EmissionState datos persistidos por comprobante para poder reanudar un envío
// sin generar nunca una segunda clave de acceso.
type EmissionState struct {
	Status              EmissionStatus
	AccessKey           string
	SignedXML           []byte
	AuthorizationNumber string
	AuthorizationDate   string
	DocumentNumber      string // EEE-PPP-SSSSSSSSS, se asigna con la clave
	Message             string
	UpdatedAt           time.Time
}

// IsAuthorized AUTHORIZED es terminal y de escritura única.
func (s EmissionState) IsAuthorized() bool { return s.Status == EmissionAuthorized }

// HasAccessKey indica si ya hay clave reservada.
func (s EmissionState) HasAccessKey() bool { return s.AccessKey != "" }

// HasSignedXML indica si ya hay documento firmado guardado.
func (s EmissionState) HasSignedXML() bool { return len(s.SignedXML) > 0 }

// SequenceSeries identifica un contador de secuenciales: por establecimiento,
// punto de emisión, tipo de comprobante y ambiente.
type SequenceSeries struct {
	Establishment string
	EmissionPoint string
	DocumentType  string
	Environment   int
}

// Key clave estable de la serie, usada también para serializar emisiones en memoria.
func (s SequenceSeries) Key() string {
	return s.Establishment + "-" + s.EmissionPoint + "/" + s.DocumentType + "/" + strconv.Itoa(s.Environment)
}

// Contadores de uso.
const (
	CounterInvoicesUsed    = "sri_facturas_usadas"
	CounterCreditNotesUsed = "sri_notas_credito_usadas"
)
