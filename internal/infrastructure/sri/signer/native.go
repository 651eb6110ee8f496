// Firma XAdES-BES nativa para comprobantes del SRI.
// Inserta <ds:Signature> como último hijo del nodo raíz (factura, notaCredito).

package signer

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"math/big"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
	"github.com/ucarion/c14n"
)

// NativeSigner implementa sri.Signer sin procesos externos.
type NativeSigner struct {
	now func() time.Time
}

// NewNativeSigner crea el firmador.
func NewNativeSigner() *NativeSigner {
	return &NativeSigner{now: time.Now}
}

// Sign decodifica el .p12, valida su vigencia y firma el documento.
func (s *NativeSigner) Sign(ctx context.Context, unsignedXML []byte, cred sri.Credential, root sri.RootTag) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, sri.NewSigningError("firma cancelada", err)
	}
	kp, err := DecodeP12(cred.P12, cred.Password)
	if err != nil {
		return nil, err
	}
	if err := CheckValidity(kp.Cert, s.now()); err != nil {
		return nil, err
	}
	return s.signWith(unsignedXML, kp, root)
}

func (s *NativeSigner) signWith(unsignedXML []byte, kp *KeyPair, root sri.RootTag) ([]byte, error) {
	if len(bytes.TrimSpace(unsignedXML)) == 0 {
		return nil, sri.NewSigningError("XML vacío", nil)
	}
	doc := etree.NewDocument()
	doc.WriteSettings.CanonicalEndTags = true
	if err := doc.ReadFromBytes(unsignedXML); err != nil {
		return nil, sri.NewSigningError("parsear XML", err)
	}
	rootEl := doc.Root()
	if rootEl == nil || rootEl.Tag != string(root) {
		return nil, sri.NewSigningError("el documento no tiene raíz <"+string(root)+">", nil)
	}
	if rootEl.SelectAttrValue("id", "") != ComprobanteElementID {
		return nil, sri.NewSigningError(`la raíz debe tener id="`+ComprobanteElementID+`"`, nil)
	}

	// 1) Digest del comprobante (transformación enveloped: aún no hay firma)
	canonicalDoc, err := canonicalElement(rootEl)
	if err != nil {
		return nil, sri.NewSigningError("canonicalizar comprobante", err)
	}
	docDigest := digestB64(canonicalDoc)

	sig := newSignatureParts(kp, s.now())

	// 2) Digest de SignedProperties y KeyInfo, con los namespaces que heredan dentro de ds:Signature
	propsDigest, err := digestFragment(sig.signedProperties(nsDecl))
	if err != nil {
		return nil, sri.NewSigningError("canonicalizar SignedProperties", err)
	}
	keyInfoDigest, err := digestFragment(sig.keyInfo(nsDecl))
	if err != nil {
		return nil, sri.NewSigningError("canonicalizar KeyInfo", err)
	}

	// 3) SignedInfo firmado con RSA-SHA1
	canonicalSignedInfo, err := canonicalize([]byte(sig.signedInfo(nsDecl, propsDigest, keyInfoDigest, docDigest)))
	if err != nil {
		return nil, sri.NewSigningError("canonicalizar SignedInfo", err)
	}
	h := sha1.Sum(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, kp.Key, crypto.SHA1, h[:])
	if err != nil {
		return nil, sri.NewSigningError("firmar SignedInfo", err)
	}

	// 4) Inyectar como último hijo del raíz
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(sig.full(propsDigest, keyInfoDigest, docDigest, base64.StdEncoding.EncodeToString(signatureValue))); err != nil {
		return nil, sri.NewSigningError("parsear Signature", err)
	}
	rootEl.AddChild(sigDoc.Root())

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, sri.NewSigningError("serializar XML firmado", err)
	}
	return out, nil
}

// nsDecl namespaces declarados en ds:Signature; los fragmentos firmados los heredan.
const nsDecl = ` xmlns:ds="` + NamespaceDS + `" xmlns:etsi="` + NamespaceXAdES + `"`

type signatureParts struct {
	id          string
	certB64     string
	certDigest  string
	issuerName  string
	serial      string
	modulus     string
	exponent    string
	signingTime string
}

func newSignatureParts(kp *KeyPair, now time.Time) *signatureParts {
	certDigest, issuer, serial := CertDigestAndIssuerSerial(kp.Cert)
	return &signatureParts{
		id:          "Signature-" + uuid.NewString(),
		certB64:     base64.StdEncoding.EncodeToString(kp.Cert.Raw),
		certDigest:  certDigest,
		issuerName:  issuer,
		serial:      serial,
		modulus:     base64.StdEncoding.EncodeToString(kp.Key.PublicKey.N.Bytes()),
		exponent:    base64.StdEncoding.EncodeToString(big.NewInt(int64(kp.Key.PublicKey.E)).Bytes()),
		signingTime: now.Format("2006-01-02T15:04:05-07:00"),
	}
}

func (p *signatureParts) signedPropertiesID() string { return p.id + "-SignedProperties" }
func (p *signatureParts) keyInfoID() string          { return p.id + "-Certificate" }
func (p *signatureParts) referenceID() string        { return p.id + "-Reference" }

func (p *signatureParts) signedProperties(decl string) string {
	var sb strings.Builder
	sb.WriteString(`<etsi:SignedProperties` + decl + ` Id="` + p.signedPropertiesID() + `">`)
	sb.WriteString(`<etsi:SignedSignatureProperties>`)
	sb.WriteString(`<etsi:SigningTime>` + p.signingTime + `</etsi:SigningTime>`)
	sb.WriteString(`<etsi:SigningCertificate><etsi:Cert><etsi:CertDigest>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + AlgSHA1 + `"></ds:DigestMethod>`)
	sb.WriteString(`<ds:DigestValue>` + p.certDigest + `</ds:DigestValue></etsi:CertDigest>`)
	sb.WriteString(`<etsi:IssuerSerial><ds:X509IssuerName>` + escapeText(p.issuerName) + `</ds:X509IssuerName>`)
	sb.WriteString(`<ds:X509SerialNumber>` + p.serial + `</ds:X509SerialNumber></etsi:IssuerSerial>`)
	sb.WriteString(`</etsi:Cert></etsi:SigningCertificate></etsi:SignedSignatureProperties>`)
	sb.WriteString(`<etsi:SignedDataObjectProperties><etsi:DataObjectFormat ObjectReference="#` + p.referenceID() + `">`)
	sb.WriteString(`<etsi:Description>contenido comprobante</etsi:Description><etsi:MimeType>text/xml</etsi:MimeType>`)
	sb.WriteString(`</etsi:DataObjectFormat></etsi:SignedDataObjectProperties>`)
	sb.WriteString(`</etsi:SignedProperties>`)
	return sb.String()
}

func (p *signatureParts) keyInfo(decl string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:KeyInfo` + decl + ` Id="` + p.keyInfoID() + `">`)
	sb.WriteString(`<ds:X509Data><ds:X509Certificate>` + p.certB64 + `</ds:X509Certificate></ds:X509Data>`)
	sb.WriteString(`<ds:KeyValue><ds:RSAKeyValue><ds:Modulus>` + p.modulus + `</ds:Modulus>`)
	sb.WriteString(`<ds:Exponent>` + p.exponent + `</ds:Exponent></ds:RSAKeyValue></ds:KeyValue>`)
	sb.WriteString(`</ds:KeyInfo>`)
	return sb.String()
}

func (p *signatureParts) signedInfo(decl, propsDigest, keyInfoDigest, docDigest string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo` + decl + `>`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + AlgC14N + `"></ds:CanonicalizationMethod>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + AlgRSASHA1 + `"></ds:SignatureMethod>`)
	sb.WriteString(reference(`Type="`+TypeSignedProps+`" URI="#`+p.signedPropertiesID()+`"`, "", propsDigest))
	sb.WriteString(reference(`URI="#`+p.keyInfoID()+`"`, "", keyInfoDigest))
	sb.WriteString(reference(`Id="`+p.referenceID()+`" URI="#`+ComprobanteElementID+`"`,
		`<ds:Transforms><ds:Transform Algorithm="`+TransformEnveloped+`"></ds:Transform></ds:Transforms>`, docDigest))
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

func reference(attrs, transforms, digest string) string {
	return `<ds:Reference ` + attrs + `>` + transforms +
		`<ds:DigestMethod Algorithm="` + AlgSHA1 + `"></ds:DigestMethod>` +
		`<ds:DigestValue>` + digest + `</ds:DigestValue></ds:Reference>`
}

func (p *signatureParts) full(propsDigest, keyInfoDigest, docDigest, signatureValue string) string {
	var sb strings.Builder
	sb.WriteString(`<ds:Signature` + nsDecl + ` Id="` + p.id + `">`)
	sb.WriteString(p.signedInfo("", propsDigest, keyInfoDigest, docDigest))
	sb.WriteString(`<ds:SignatureValue>` + signatureValue + `</ds:SignatureValue>`)
	sb.WriteString(p.keyInfo(""))
	sb.WriteString(`<ds:Object Id="` + p.id + `-Object"><etsi:QualifyingProperties Target="#` + p.id + `">`)
	sb.WriteString(p.signedProperties(""))
	sb.WriteString(`</etsi:QualifyingProperties></ds:Object>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

// canonicalElement serializa el elemento sin declaración XML y lo canonicaliza.
func canonicalElement(el *etree.Element) ([]byte, error) {
	d := etree.NewDocumentWithRoot(el.Copy())
	d.WriteSettings.CanonicalEndTags = true
	raw, err := d.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return canonicalize(raw)
}

func canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func digestFragment(fragment string) (string, error) {
	canon, err := canonicalize([]byte(fragment))
	if err != nil {
		return "", err
	}
	return digestB64(canon), nil
}

func digestB64(data []byte) string {
	h := sha1.Sum(data)
	return base64.StdEncoding.EncodeToString(h[:])
}

func escapeText(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

var _ sri.Signer = (*NativeSigner)(nil)
