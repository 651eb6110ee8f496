package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

// ErrConfigIncomplete el perfil tributario no permite emitir comprobantes.
var ErrConfigIncomplete = errors.New("configuración SRI incompleta")

// Implementaciones del puerto de firma.
const (
	SignerExternal = "external"
	SignerNative   = "native"
)

// SRIConfig perfil tributario del emisor y parámetros de emisión.
type SRIConfig struct {
	Environment          int // 1 = pruebas, 2 = producción
	RUC                  string
	BusinessName         string
	TradeName            string
	MainAddress          string
	EstablishmentAddress string
	Establishment        string
	EmissionPoint        string
	Regime               string
	KeepsAccounting      bool
	SpecialTaxpayer      string
	StandardVATRate      int
	ReducedVATRate       int

	Signer        string // external | native
	SignerCommand string
	SignerScript  string
	CertPath      string // .p12 a importar en sri_credentials (cmd/sri_cert)
	CertPassword  string

	EmissionTimeoutSec int
}

// Env ambiente tipado.
func (c SRIConfig) Env() sri.Environment { return sri.Environment(c.Environment) }

// Validate verifica que el perfil permita emitir. El error envuelve ErrConfigIncomplete
// y nombra los campos faltantes o inválidos.
func (c SRIConfig) Validate() error {
	var missing []string
	if err := sri.ValidateRUC(c.RUC); err != nil {
		missing = append(missing, "SRI_RUC")
	}
	if strings.TrimSpace(c.BusinessName) == "" {
		missing = append(missing, "SRI_RAZON_SOCIAL")
	}
	if strings.TrimSpace(c.MainAddress) == "" {
		missing = append(missing, "SRI_DIR_MATRIZ")
	}
	if !threeDigits(c.Establishment) {
		missing = append(missing, "SRI_ESTABLECIMIENTO")
	}
	if !threeDigits(c.EmissionPoint) {
		missing = append(missing, "SRI_PUNTO_EMISION")
	}
	if !c.Env().Valid() {
		missing = append(missing, "SRI_AMBIENTE")
	}
	switch c.Regime {
	case sri.RegimeGeneral, sri.RegimeRimpeEmprendedor, sri.RegimeRimpePopular:
	default:
		missing = append(missing, "SRI_REGIMEN")
	}
	if c.StandardVATRate <= 0 {
		missing = append(missing, "SRI_IVA_GENERAL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

func threeDigits(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
