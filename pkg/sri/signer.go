package sri

import "context"

// RootTag nombre del nodo raíz que el firmador debe envolver.
type RootTag string

const (
	RootTagInvoice    RootTag = "factura"
	RootTagCreditNote RootTag = "notaCredito"
)

// RootTagFor devuelve el nodo raíz según el tipo de comprobante.
func RootTagFor(documentType string) RootTag {
	if documentType == DocumentTypeCreditNote {
		return RootTagCreditNote
	}
	return RootTagInvoice
}

// Credential certificado de firma electrónica (PKCS#12) y su contraseña.
type Credential struct {
	P12      []byte
	Password string
}

// Empty indica que no hay certificado cargado.
func (c Credential) Empty() bool { return len(c.P12) == 0 }

// Signer firma el XML de un comprobante según el perfil XAdES-BES del SRI.
// Devuelve el mismo documento con el bloque ds:Signature como último hijo del raíz.
// Cualquier fallo se reporta como *SigningError.
type Signer interface {
	Sign(ctx context.Context, unsignedXML []byte, cred Credential, root RootTag) ([]byte, error)
}
