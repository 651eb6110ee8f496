package sri

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

const (
	soapNS          = "http://schemas.xmlsoap.org/soap/envelope/"
	receptionNS     = "http://ec.gob.sri.ws.recepcion"
	authorizationNS = "http://ec.gob.sri.ws.autorizacion"

	receptionTimeout     = 60 * time.Second
	authorizationTimeout = 30 * time.Second
	maxResponseSize      = 4 << 20 // el XML autorizado viaja dentro de la respuesta
)

// ── Puerto (interfaz) ──────────────────────────────────────────────────────────

// Transport un viaje de ida y vuelta por fase. Los errores de red se devuelven
// como *sri.TransportError; un SOAP Fault como *SOAPFault.
type Transport interface {
	Receive(ctx context.Context, env sri.Environment, signedXML []byte) (*sri.AuthorityResult, error)
	Authorize(ctx context.Context, env sri.Environment, accessKey string) (*sri.AuthorityResult, error)
}

// SOAPFault error de protocolo devuelto por el web service.
type SOAPFault struct {
	Code   string
	String string
}

func (f *SOAPFault) Error() string {
	return fmt.Sprintf("soap fault [%s]: %s", f.Code, f.String)
}

// ── Implementación SOAP ────────────────────────────────────────────────────────

// SOAPClient implementa Transport contra los web services offline del SRI.
// Usa net/http: el protocolo son dos sobres fijos y no amerita un generador WSDL.
type SOAPClient struct {
	endpoints func(sri.Environment) sri.EndpointSet
	secure    *http.Client
	insecure  *http.Client
}

// NewSOAPClient construye el cliente con los endpoints oficiales.
func NewSOAPClient() *SOAPClient {
	return NewSOAPClientWithEndpoints(sri.Endpoints, nil)
}

// NewSOAPClientWithEndpoints permite sustituir la resolución de endpoints y el
// cliente HTTP base (tests con httptest, proxies corporativos).
func NewSOAPClientWithEndpoints(endpoints func(sri.Environment) sri.EndpointSet, base *http.Client) *SOAPClient {
	if endpoints == nil {
		endpoints = sri.Endpoints
	}
	if base == nil {
		base = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	insecure := *base
	if t, ok := base.Transport.(*http.Transport); ok {
		clone := t.Clone()
		if clone.TLSClientConfig == nil {
			clone.TLSClientConfig = &tls.Config{}
		}
		clone.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // solo ambiente de pruebas (celcer)
		insecure.Transport = clone
	}
	return &SOAPClient{endpoints: endpoints, secure: base, insecure: &insecure}
}

var _ Transport = (*SOAPClient)(nil)

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	XmlnsS  string   `xml:"xmlns:soapenv,attr"`
	XmlnsEc string   `xml:"xmlns:ec,attr"`
	Header  struct{} `xml:"soapenv:Header"`
	Body    soapBody `xml:"soapenv:Body"`
}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soapenv:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type validarComprobante struct {
	XMLName xml.Name `xml:"ec:validarComprobante"`
	XML     string   `xml:"xml"`
}

type autorizacionComprobante struct {
	XMLName   xml.Name `xml:"ec:autorizacionComprobante"`
	AccessKey string   `xml:"claveAccesoComprobante"`
}

// ── Estructuras de respuesta SOAP ─────────────────────────────────────────────
// encoding/xml compara nombres locales, así que ns2:estado y estado son iguales.

type soapResponseEnvelope struct {
	Body struct {
		Reception     *receptionResponse     `xml:"validarComprobanteResponse>RespuestaRecepcionComprobante"`
		Authorization *authorizationResponse `xml:"autorizacionComprobanteResponse>RespuestaAutorizacionComprobante"`
		Fault         *soapFaultBody         `xml:"Fault"`
	} `xml:"Body"`
}

type receptionResponse struct {
	Estado       string `xml:"estado"`
	Comprobantes []struct {
		ClaveAcceso string        `xml:"claveAcceso"`
		Mensajes    []mensajeResp `xml:"mensajes>mensaje"`
	} `xml:"comprobantes>comprobante"`
}

type authorizationResponse struct {
	ClaveAccesoConsultada string             `xml:"claveAccesoConsultada"`
	NumeroComprobantes    string             `xml:"numeroComprobantes"`
	Autorizaciones        []autorizacionResp `xml:"autorizaciones>autorizacion"`
}

type autorizacionResp struct {
	Estado             string        `xml:"estado"`
	NumeroAutorizacion string        `xml:"numeroAutorizacion"`
	FechaAutorizacion  string        `xml:"fechaAutorizacion"`
	Ambiente           string        `xml:"ambiente"`
	Comprobante        string        `xml:"comprobante"`
	Mensajes           []mensajeResp `xml:"mensajes>mensaje"`
}

type mensajeResp struct {
	Identificador        string `xml:"identificador"`
	Mensaje              string `xml:"mensaje"`
	InformacionAdicional string `xml:"informacionAdicional"`
	Tipo                 string `xml:"tipo"`
}

type soapFaultBody struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── Recepción ─────────────────────────────────────────────────────────────────

// Receive envía el XML firmado en base64 (validarComprobante). Un solo intento.
func (c *SOAPClient) Receive(ctx context.Context, env sri.Environment, signedXML []byte) (*sri.AuthorityResult, error) {
	ctx, cancel := context.WithTimeout(ctx, receptionTimeout)
	defer cancel()

	url := c.endpoints(env).Reception
	raw, err := c.call(ctx, env, url, receptionNS, validarComprobante{
		XML: base64.StdEncoding.EncodeToString(signedXML),
	}, "recepcion")
	if err != nil {
		return nil, err
	}
	envResp, err := decode(raw, url, "recepcion")
	if err != nil {
		return nil, err
	}
	r := envResp.Body.Reception
	if r == nil {
		return nil, &sri.TransportError{Op: "recepcion", Endpoint: url, Attempts: 1,
			Err: fmt.Errorf("respuesta sin RespuestaRecepcionComprobante: %s", snippet(raw))}
	}
	res := &sri.AuthorityResult{Status: sri.AuthorityStatus(strings.TrimSpace(r.Estado))}
	for _, comp := range r.Comprobantes {
		if res.AccessKey == "" {
			res.AccessKey = strings.TrimSpace(comp.ClaveAcceso)
		}
		res.Messages = append(res.Messages, toMessages(comp.Mensajes)...)
	}
	return res, nil
}

// ── Autorización ──────────────────────────────────────────────────────────────

// Authorize consulta autorizacionComprobante por clave de acceso. Un solo intento.
// Si el SRI devuelve varias autorizaciones para la clave, gana la AUTORIZADO.
func (c *SOAPClient) Authorize(ctx context.Context, env sri.Environment, accessKey string) (*sri.AuthorityResult, error) {
	ctx, cancel := context.WithTimeout(ctx, authorizationTimeout)
	defer cancel()

	url := c.endpoints(env).Authorization
	raw, err := c.call(ctx, env, url, authorizationNS, autorizacionComprobante{AccessKey: accessKey}, "autorizacion")
	if err != nil {
		return nil, err
	}
	envResp, err := decode(raw, url, "autorizacion")
	if err != nil {
		return nil, err
	}
	r := envResp.Body.Authorization
	res := &sri.AuthorityResult{Status: sri.StatusEnProceso, AccessKey: accessKey}
	if r == nil || len(r.Autorizaciones) == 0 {
		res.Detail = "el SRI no devolvió autorizaciones para la clave"
		return res, nil
	}
	chosen := r.Autorizaciones[0]
	for _, a := range r.Autorizaciones {
		if strings.TrimSpace(a.Estado) == string(sri.StatusAutorizado) {
			chosen = a
			break
		}
	}
	estado := strings.TrimSpace(chosen.Estado)
	switch estado {
	case string(sri.StatusAutorizado), string(sri.StatusNoAutorizado), string(sri.StatusRechazado):
		res.Status = sri.AuthorityStatus(estado)
	default:
		res.Detail = "estado " + estado
	}
	res.AuthorizationNumber = strings.TrimSpace(chosen.NumeroAutorizacion)
	res.AuthorizationDate = strings.TrimSpace(chosen.FechaAutorizacion)
	res.Comprobante = strings.TrimSpace(chosen.Comprobante)
	res.Messages = toMessages(chosen.Mensajes)
	return res, nil
}

// ── HTTP ──────────────────────────────────────────────────────────────────────

func (c *SOAPClient) call(ctx context.Context, env sri.Environment, url, ns string, body interface{}, op string) ([]byte, error) {
	payload, err := xml.Marshal(soapEnvelope{
		XmlnsS:  soapNS,
		XmlnsEc: ns,
		Body:    soapBody{Content: body},
	})
	if err != nil {
		return nil, fmt.Errorf("soap: serializar envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return nil, fmt.Errorf("soap: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")

	client := c.secure
	if c.endpoints(env).InsecureTLS {
		client = c.insecure
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &sri.TransportError{Op: op, Endpoint: url, Attempts: 1, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &sri.TransportError{Op: op, Endpoint: url, Attempts: 1, Err: fmt.Errorf("leer respuesta: %w", err)}
	}
	// Un 500 con Fault se interpreta en decode; cualquier otro error HTTP es de conectividad.
	if resp.StatusCode >= 300 && !bytes.Contains(raw, []byte("Fault")) {
		return nil, &sri.TransportError{Op: op, Endpoint: url, Attempts: 1,
			Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(raw))}
	}
	return raw, nil
}

func decode(raw []byte, url, op string) (*soapResponseEnvelope, error) {
	var envResp soapResponseEnvelope
	if err := xml.Unmarshal(raw, &envResp); err != nil {
		return nil, &sri.TransportError{Op: op, Endpoint: url, Attempts: 1,
			Err: fmt.Errorf("respuesta SOAP ilegible: %w", err)}
	}
	if f := envResp.Body.Fault; f != nil {
		return nil, &SOAPFault{Code: strings.TrimSpace(f.FaultCode), String: strings.TrimSpace(f.FaultString)}
	}
	return &envResp, nil
}

func toMessages(in []mensajeResp) []sri.AuthorityMessage {
	out := make([]sri.AuthorityMessage, 0, len(in))
	for _, m := range in {
		out = append(out, sri.AuthorityMessage{
			Identifier:     strings.TrimSpace(m.Identificador),
			Message:        strings.TrimSpace(m.Mensaje),
			AdditionalInfo: strings.TrimSpace(m.InformacionAdicional),
			Type:           strings.TrimSpace(m.Tipo),
		})
	}
	return out
}

func snippet(raw []byte) string {
	const max = 300
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// IsFault indica si err es un SOAP Fault del SRI.
func IsFault(err error) bool {
	var f *SOAPFault
	return errors.As(err, &f)
}
