package sri_test

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infrasri "github.com/jhoicas/facturacion-sri/internal/infrastructure/sri"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

const receptionOK = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>
<ns2:validarComprobanteResponse xmlns:ns2="http://ec.gob.sri.ws.recepcion">
<RespuestaRecepcionComprobante><estado>RECIBIDA</estado><comprobantes></comprobantes></RespuestaRecepcionComprobante>
</ns2:validarComprobanteResponse></soap:Body></soap:Envelope>`

const receptionDevuelta = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>
<ns2:validarComprobanteResponse xmlns:ns2="http://ec.gob.sri.ws.recepcion">
<RespuestaRecepcionComprobante><ns2:estado>DEVUELTA</ns2:estado><comprobantes><comprobante>
<claveAcceso>1502202601179001167400110010020000000011234567818</claveAcceso>
<mensajes><mensaje><identificador>70</identificador><mensaje>CLAVE DE ACCESO EN PROCESAMIENTO</mensaje>
<informacionAdicional>La clave de acceso 150220... está en procesamiento</informacionAdicional><tipo>ERROR</tipo></mensaje></mensajes>
</comprobante></comprobantes></RespuestaRecepcionComprobante>
</ns2:validarComprobanteResponse></soap:Body></soap:Envelope>`

const authorizationOK = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>
<ns2:autorizacionComprobanteResponse xmlns:ns2="http://ec.gob.sri.ws.autorizacion">
<RespuestaAutorizacionComprobante><claveAccesoConsultada>1502202601179001167400110010020000000011234567818</claveAccesoConsultada>
<numeroComprobantes>2</numeroComprobantes><autorizaciones>
<autorizacion><estado>NO AUTORIZADO</estado><mensajes><mensaje><identificador>43</identificador><mensaje>CLAVE ACCESO REGISTRADA</mensaje></mensaje></mensajes></autorizacion>
<autorizacion><estado>AUTORIZADO</estado><numeroAutorizacion>1502202601179001167400110010020000000011234567818</numeroAutorizacion>
<fechaAutorizacion>2026-02-15T10:31:00-05:00</fechaAutorizacion><ambiente>PRUEBAS</ambiente>
<comprobante><![CDATA[<?xml version="1.0" encoding="UTF-8"?><factura id="comprobante"></factura>]]></comprobante><mensajes></mensajes></autorizacion>
</autorizaciones></RespuestaAutorizacionComprobante>
</ns2:autorizacionComprobanteResponse></soap:Body></soap:Envelope>`

const authorizationEmpty = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>
<ns2:autorizacionComprobanteResponse xmlns:ns2="http://ec.gob.sri.ws.autorizacion">
<RespuestaAutorizacionComprobante><claveAccesoConsultada>x</claveAccesoConsultada><numeroComprobantes>0</numeroComprobantes><autorizaciones></autorizaciones></RespuestaAutorizacionComprobante>
</ns2:autorizacionComprobanteResponse></soap:Body></soap:Envelope>`

const fault = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>
<soap:Fault><faultcode>soap:Client</faultcode><faultstring>Unmarshalling Error</faultstring></soap:Fault></soap:Body></soap:Envelope>`

// sriServer simula recepción y autorización; guarda el último cuerpo recibido.
func sriServer(t *testing.T, reception, authorization string, status int) (*infrasri.SOAPClient, *string) {
	t.Helper()
	var last string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		last = string(body)
		assert.Equal(t, "text/xml; charset=utf-8", r.Header.Get("Content-Type"))
		w.WriteHeader(status)
		if strings.HasSuffix(r.URL.Path, "/recepcion") {
			_, _ = io.WriteString(w, reception)
			return
		}
		_, _ = io.WriteString(w, authorization)
	}))
	t.Cleanup(srv.Close)

	endpoints := func(env sri.Environment) sri.EndpointSet {
		return sri.EndpointSet{
			Reception:     srv.URL + "/recepcion",
			Authorization: srv.URL + "/autorizacion",
			InsecureTLS:   env != sri.EnvironmentProduction,
		}
	}
	return infrasri.NewSOAPClientWithEndpoints(endpoints, srv.Client()), &last
}

func TestSOAPClient_ReceiveEnviaBase64(t *testing.T) {
	client, last := sriServer(t, receptionOK, "", http.StatusOK)
	signed := []byte(`<?xml version="1.0" encoding="UTF-8"?><factura id="comprobante"></factura>`)

	res, err := client.Receive(context.Background(), sri.EnvironmentTest, signed)
	require.NoError(t, err)
	assert.Equal(t, sri.StatusRecibida, res.Status)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(*last))
	payload := doc.FindElement("//validarComprobante/xml")
	require.NotNil(t, payload)
	decoded, err := base64.StdEncoding.DecodeString(payload.Text())
	require.NoError(t, err)
	assert.Equal(t, signed, decoded)
	assert.NotContains(t, *last, "/>", "sobre sin etiquetas autocerradas")
}

func TestSOAPClient_ReceiveDevueltaConPrefijos(t *testing.T) {
	client, _ := sriServer(t, receptionDevuelta, "", http.StatusOK)

	res, err := client.Receive(context.Background(), sri.EnvironmentProduction, []byte("x"))
	require.NoError(t, err)

	assert.Equal(t, sri.StatusDevuelta, res.Status)
	assert.True(t, res.HasCode(sri.CodeAlreadyInProcess))
	assert.Equal(t, "1502202601179001167400110010020000000011234567818", res.AccessKey)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "CLAVE DE ACCESO EN PROCESAMIENTO", res.Messages[0].Message)
}

func TestSOAPClient_AuthorizePrefiereAutorizado(t *testing.T) {
	client, last := sriServer(t, "", authorizationOK, http.StatusOK)

	res, err := client.Authorize(context.Background(), sri.EnvironmentTest, testKey.String())
	require.NoError(t, err)

	assert.True(t, res.Authorized())
	assert.Equal(t, testKey.String(), res.AuthorizationNumber)
	assert.Equal(t, "2026-02-15T10:31:00-05:00", res.AuthorizationDate)
	assert.Contains(t, res.Comprobante, `<factura id="comprobante">`)
	assert.Contains(t, *last, "<claveAccesoComprobante>"+testKey.String()+"</claveAccesoComprobante>")
}

func TestSOAPClient_AuthorizeSinAutorizaciones(t *testing.T) {
	client, _ := sriServer(t, "", authorizationEmpty, http.StatusOK)

	res, err := client.Authorize(context.Background(), sri.EnvironmentTest, testKey.String())
	require.NoError(t, err)
	assert.Equal(t, sri.StatusEnProceso, res.Status)
}

func TestSOAPClient_Fault(t *testing.T) {
	client, _ := sriServer(t, fault, fault, http.StatusInternalServerError)

	_, err := client.Receive(context.Background(), sri.EnvironmentTest, []byte("x"))
	require.Error(t, err)
	assert.True(t, infrasri.IsFault(err))
	assert.NotErrorIs(t, err, sri.ErrTransport)
}

func TestSOAPClient_ErrorHTTPEsDeConexion(t *testing.T) {
	client, _ := sriServer(t, "bad gateway", "bad gateway", http.StatusBadGateway)

	_, err := client.Authorize(context.Background(), sri.EnvironmentTest, testKey.String())
	assert.ErrorIs(t, err, sri.ErrTransport)
}

func TestSOAPClient_ServidorCaido(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := infrasri.NewSOAPClientWithEndpoints(func(sri.Environment) sri.EndpointSet {
		return sri.EndpointSet{Reception: url, Authorization: url}
	}, nil)

	_, err := client.Receive(context.Background(), sri.EnvironmentTest, []byte("x"))
	assert.ErrorIs(t, err, sri.ErrTransport)
}
