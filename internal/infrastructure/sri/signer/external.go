// Firma delegada a un proceso externo (node + script firmador) vía stdin/stdout.

package signer

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/jhoicas/facturacion-sri/pkg/sri"
	"github.com/rs/zerolog"
)

// PasswordEnv variable de entorno con la contraseña del .p12 para el firmador externo.
// No viaja como argumento para que no aparezca en la lista de procesos.
const PasswordEnv = "SRI_P12_PASSWORD"

// ExternalSigner ejecuta `command args... <raíz> <ruta p12>` con la contraseña en PasswordEnv,
// envía el XML por stdin y lee el XML firmado de stdout.
type ExternalSigner struct {
	command string
	args    []string
	tempDir string
	log     zerolog.Logger
}

// NewExternalSigner crea el firmador. args suele ser la ruta del script (p.ej. scripts/firmar-xml.cjs).
// tempDir vacío usa el directorio temporal del sistema.
func NewExternalSigner(command string, args []string, tempDir string, log zerolog.Logger) *ExternalSigner {
	return &ExternalSigner{command: command, args: args, tempDir: tempDir, log: log}
}

// Sign implementa sri.Signer. El .p12 se escribe en un archivo temporal con permisos 0600
// que se elimina siempre al terminar.
func (s *ExternalSigner) Sign(ctx context.Context, unsignedXML []byte, cred sri.Credential, root sri.RootTag) ([]byte, error) {
	if cred.Empty() {
		return nil, sri.NewSigningError("no hay certificado de firma cargado", nil)
	}
	if len(bytes.TrimSpace(unsignedXML)) == 0 {
		return nil, sri.NewSigningError("XML vacío", nil)
	}

	f, err := os.CreateTemp(s.tempDir, "firma-*.p12")
	if err != nil {
		return nil, sri.NewSigningError("crear p12 temporal", err)
	}
	p12Path := f.Name()
	defer os.Remove(p12Path)

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		return nil, sri.NewSigningError("permisos p12 temporal", err)
	}
	if _, err := f.Write(cred.P12); err != nil {
		f.Close()
		return nil, sri.NewSigningError("escribir p12 temporal", err)
	}
	if err := f.Close(); err != nil {
		return nil, sri.NewSigningError("cerrar p12 temporal", err)
	}

	args := append(append([]string{}, s.args...), string(root), p12Path)
	cmd := exec.CommandContext(ctx, s.command, args...)
	cmd.Env = append(os.Environ(), PasswordEnv+"="+cred.Password)
	cmd.Stdin = bytes.NewReader(unsignedXML)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.log.Debug().Str("root", string(root)).Str("command", s.command).Msg("firma: ejecutando firmador externo")
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "el firmador externo terminó con error"
		}
		s.log.Error().Err(err).Str("stderr", msg).Msg("firma: firmador externo falló")
		return nil, sri.NewSigningError(msg, err)
	}
	if stdout.Len() == 0 {
		return nil, sri.NewSigningError("la firma no generó resultado; verifique el certificado P12", nil)
	}
	s.log.Debug().Int("bytes", stdout.Len()).Msg("firma: XML firmado")
	return stdout.Bytes(), nil
}

var _ sri.Signer = (*ExternalSigner)(nil)
