// Carga del certificado de firma desde PKCS#12.

package signer

import (
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/jhoicas/facturacion-sri/pkg/sri"
	"golang.org/x/crypto/pkcs12"
)

// KeyPair llave privada RSA y certificado hoja de un .p12.
type KeyPair struct {
	Key  *rsa.PrivateKey
	Cert *x509.Certificate
}

// LoadFromP12 lee un archivo .p12/.pfx y lo decodifica.
func LoadFromP12(path, password string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sri.NewSigningError("leer p12", err)
	}
	return DecodeP12(data, password)
}

// DecodeP12 decodifica el contenido de un .p12. pkcs12.Decode devuelve solo el certificado hoja,
// que es lo que el SRI necesita en KeyInfo.
func DecodeP12(data []byte, password string) (*KeyPair, error) {
	if len(data) == 0 {
		return nil, sri.NewSigningError("no hay certificado de firma cargado", nil)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, sri.NewSigningError("decodificar p12 (contraseña incorrecta o archivo dañado)", err)
	}
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, sri.NewSigningError("el certificado debe incluir llave privada RSA", nil)
	}
	return &KeyPair{Key: key, Cert: cert}, nil
}

// CheckValidity rechaza certificados vencidos o aún no vigentes en la fecha indicada.
func CheckValidity(cert *x509.Certificate, now time.Time) error {
	if cert == nil {
		return sri.NewSigningError("certificado ausente", nil)
	}
	if now.After(cert.NotAfter) {
		return sri.NewSigningError(fmt.Sprintf("certificado vencido el %s", cert.NotAfter.Format("02/01/2006")), nil)
	}
	if now.Before(cert.NotBefore) {
		return sri.NewSigningError(fmt.Sprintf("certificado vigente desde el %s", cert.NotBefore.Format("02/01/2006")), nil)
	}
	return nil
}

// CheckCredential valida que la credencial esté cargada, que la contraseña abra el .p12
// y que el certificado esté vigente en now. Se ejecuta antes de cada firma.
func CheckCredential(cred sri.Credential, now time.Time) error {
	if cred.Empty() {
		return sri.NewSigningError("no hay certificado de firma cargado", nil)
	}
	kp, err := DecodeP12(cred.P12, cred.Password)
	if err != nil {
		return err
	}
	return CheckValidity(kp.Cert, now)
}

// CertDigestAndIssuerSerial devuelve el digest SHA-1 del certificado (Base64), el emisor y el serial decimal para XAdES.
func CertDigestAndIssuerSerial(cert *x509.Certificate) (digestB64 string, issuerName string, serial string) {
	h := sha1.Sum(cert.Raw)
	digestB64 = base64.StdEncoding.EncodeToString(h[:])
	issuerName = cert.Issuer.String()
	serial = cert.SerialNumber.String()
	return digestB64, issuerName, serial
}
