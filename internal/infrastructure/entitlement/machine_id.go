package entitlement

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// DefaultMachineIDPaths ubicaciones del identificador de máquina en Linux.
var DefaultMachineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// MachineID lee el primer archivo disponible y devuelve su huella corta.
func MachineID(paths ...string) (string, error) {
	if len(paths) == 0 {
		paths = DefaultMachineIDPaths
	}
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(raw)); id != "" {
			return Fingerprint(id), nil
		}
	}
	return "", fmt.Errorf("entitlement: no se pudo obtener el identificador de esta máquina (%s)", strings.Join(paths, ", "))
}

// Fingerprint primeros 8 caracteres hex (mayúsculas) del SHA-256, fáciles de dictar por teléfono.
func Fingerprint(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return strings.ToUpper(hex.EncodeToString(h[:])[:8])
}
