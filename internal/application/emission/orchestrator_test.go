package emission_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-sri/internal/application/dto"
	"github.com/jhoicas/facturacion-sri/internal/application/emission"
	"github.com/jhoicas/facturacion-sri/internal/domain"
	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	infrasri "github.com/jhoicas/facturacion-sri/internal/infrastructure/sri"
	"github.com/jhoicas/facturacion-sri/pkg/config"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

// Clave esperada para 15/02/2026, RUC 1790011674001, pruebas, 001-002, secuencial 1, código 12345678.
const expectedKey = "1502202601179001167400110010020000000011234567818"

var issueTime = time.Date(2026, 2, 15, 10, 30, 0, 0, time.UTC)

func perfil() config.SRIConfig {
	return config.SRIConfig{
		Environment:          1,
		RUC:                  "1790011674001",
		BusinessName:         "DISTRIBUIDORA EJEMPLO S.A.",
		MainAddress:          "Av. Amazonas N34-451, Quito",
		EstablishmentAddress: "Av. Amazonas N34-451",
		Establishment:        "001",
		EmissionPoint:        "002",
		Regime:               sri.RegimeGeneral,
		StandardVATRate:      15,
		ReducedVATRate:       5,
	}
}

func venta(id string) *entity.Sale {
	return &entity.Sale{
		ID:            id,
		Number:        "V-0001",
		IssuedAt:      issueTime,
		PaymentMethod: "EFECTIVO",
		Total:         decimal.RequireFromString("23.00"),
		Items: []entity.SaleItem{{
			ProductCode: "A1",
			Description: "Arroz 10kg",
			Quantity:    decimal.NewFromInt(2),
			UnitPrice:   decimal.RequireFromString("10.00"),
			VATRate:     decimal.NewFromInt(15),
		}},
	}
}

var (
	recibida   = &sri.AuthorityResult{Status: sri.StatusRecibida}
	enProceso  = &sri.AuthorityResult{Status: sri.StatusEnProceso}
	autorizado = &sri.AuthorityResult{
		Status:              sri.StatusAutorizado,
		AuthorizationNumber: expectedKey,
		AuthorizationDate:   "2026-02-15T10:31:00-05:00",
	}
	sinConexion = &sri.TransportError{Op: "recepcion", Endpoint: "celcer", Attempts: 1, Err: errors.New("connection refused")}
)

func always(res *sri.AuthorityResult, err error) func(int) (*sri.AuthorityResult, error) {
	return func(int) (*sri.AuthorityResult, error) { return res, err }
}

type harness struct {
	store   *store
	tr      *transport
	signer  *fakeSigner
	gate    *fakeGate
	metrics *metricsSpy
	orch    *emission.Orchestrator
}

func newHarness(t *testing.T, cfg config.SRIConfig, opts ...emission.Option) *harness {
	t.Helper()
	h := &harness{
		store:   newStore(),
		tr:      &transport{receiveFn: always(recibida, nil), authorizeFn: always(autorizado, nil)},
		signer:  &fakeSigner{},
		gate:    &fakeGate{},
		metrics: &metricsSpy{},
	}
	gateway := infrasri.NewGateway(h.tr, zerolog.Nop(),
		infrasri.WithSleeper(func(context.Context, time.Duration) error { return nil }))

	h.orch = emission.NewOrchestrator(emission.Deps{
		Sales:       salesRepo{h.store},
		Notes:       notesRepo{h.store},
		Customers:   customersRepo{h.store},
		Sequences:   sequencesRepo{h.store},
		Credentials: credentialsRepo{h.store},
		Tx:          txRunner{h.store},
		Keys:        sri.NewAccessKeyGeneratorWithNonce(func() (string, error) { return "12345678", nil }),
		Composer:    infrasri.NewXMLBuilderService(),
		Signer:      h.signer,
		Gateway:     gateway,
		Gate:        h.gate,
	}, cfg, zerolog.Nop(), append([]emission.Option{
		emission.WithClock(func() time.Time { return issueTime }),
		emission.WithMetrics(h.metrics),
	}, opts...)...)
	return h
}

func (h *harness) sale(id string) entity.Sale {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return *h.store.sales[id]
}

func invoiceSeries() entity.SequenceSeries {
	return entity.SequenceSeries{Establishment: "001", EmissionPoint: "002", DocumentType: sri.DocumentTypeInvoice, Environment: 1}
}

// ──────────────────────────────────────────────────────────────────────────────
// Primera emisión
// ──────────────────────────────────────────────────────────────────────────────

func TestEmitInvoice_PrimeraEmisionAutorizada(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")

	out, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, string(sri.StatusAutorizado), out.Status)
	assert.Equal(t, expectedKey, out.AccessKey)
	assert.Len(t, out.AccessKey, 49)
	assert.Equal(t, byte('1'), out.AccessKey[23], "ambiente de pruebas en la posición 24")
	assert.Equal(t, "001-002-000000001", out.AssignedDocumentNumber)
	assert.Equal(t, expectedKey, out.AuthorizationNumber)

	sale := h.sale("v1")
	assert.Equal(t, entity.EmissionAuthorized, sale.Emission.Status)
	assert.Equal(t, expectedKey, sale.Emission.AccessKey)
	assert.True(t, sale.Emission.HasSignedXML())
	assert.Equal(t, "2026-02-15T10:31:00-05:00", sale.Emission.AuthorizationDate)

	assert.Equal(t, int64(2), h.store.next[invoiceSeries().Key()], "secuencial avanzado")
	assert.Equal(t, int64(1), h.store.counters[entity.CounterInvoicesUsed])
	assert.Equal(t, []string{expectedKey}, h.gate.consumed)
	assert.Equal(t, []sri.RootTag{sri.RootTagInvoice}, h.signer.roots)
	assert.Equal(t, []string{"01:AUTORIZADO"}, h.metrics.statuses)
}

func TestEmitInvoice_XMLFirmadoLlevaLaClave(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")

	_, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)

	require.Len(t, h.tr.received, 1)
	key, err := emission.AccessKeyFromXML(h.tr.received[0])
	require.NoError(t, err)
	assert.Equal(t, expectedKey, key)
	assert.Equal(t, []sri.Environment{sri.EnvironmentTest, sri.EnvironmentTest}, h.tr.envs)
}

func TestEmitInvoice_ClienteInexistente(t *testing.T) {
	h := newHarness(t, perfil())
	v := venta("v1")
	v.CustomerID = "no-existe"
	h.store.sales["v1"] = v

	_, err := h.orch.EmitInvoice(context.Background(), "v1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, h.store.nextCalls)
}

func TestEmitInvoice_VentaInexistente(t *testing.T) {
	h := newHarness(t, perfil())

	_, err := h.orch.EmitInvoice(context.Background(), "nada")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ──────────────────────────────────────────────────────────────────────────────
// AUTHORIZED es terminal
// ──────────────────────────────────────────────────────────────────────────────

func TestEmitInvoice_YaAutorizadaNoTocaSecuencial(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")

	_, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)

	_, err = h.orch.EmitInvoice(context.Background(), "v1")
	assert.ErrorIs(t, err, domain.ErrAlreadyAuthorized)

	assert.Equal(t, 1, h.store.nextCalls)
	assert.Equal(t, 1, h.store.advanceCalls)
	assert.Equal(t, int64(2), h.store.next[invoiceSeries().Key()])
	assert.Equal(t, 1, h.tr.receiveCalls())
	assert.Equal(t, 1, h.signer.calls)
	assert.Len(t, h.gate.consumed, 1)
}

// ──────────────────────────────────────────────────────────────────────────────
// Reanudación de PENDING
// ──────────────────────────────────────────────────────────────────────────────

func TestEmitInvoice_ReenviosDePendienteNuncaGeneranOtraClave(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")

	// 1. Sin conexión en recepción: PENDING con clave y XML firmado.
	h.tr.receiveFn = always(nil, sinConexion)
	out, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.Error(t, err)
	assert.ErrorIs(t, err, sri.ErrTransport)
	require.NotNil(t, out)
	assert.Equal(t, string(sri.StatusSinConexion), out.Status)
	assert.Equal(t, "001-002-000000001", out.AssignedDocumentNumber)
	first := h.sale("v1").Emission
	assert.Equal(t, entity.EmissionPending, first.Status)
	assert.Equal(t, expectedKey, first.AccessKey)
	assert.Zero(t, h.store.counters[entity.CounterInvoicesUsed], "sin autorización no se cobra")
	assert.Empty(t, h.gate.consumed)

	// 2. Reenvío: la consulta no lo conoce y la autorización queda en proceso.
	h.tr.receiveFn = always(recibida, nil)
	h.tr.authorizeFn = always(enProceso, nil)
	out, err = h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, string(sri.StatusEnProceso), out.Status)
	assert.Equal(t, expectedKey, out.AccessKey)

	// 3. Segundo reenvío: ya autorizado en la consulta previa.
	h.tr.authorizeFn = always(autorizado, nil)
	out, err = h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)
	assert.True(t, out.Success)

	for _, k := range h.tr.keys {
		assert.Equal(t, expectedKey, k)
	}
	for _, st := range h.store.saved {
		assert.Equal(t, expectedKey, st.AccessKey)
	}
	for _, body := range h.tr.received[1:] {
		assert.Equal(t, h.tr.received[0], body, "mismos bytes firmados")
	}
	assert.Equal(t, 1, h.store.nextCalls)
	assert.Equal(t, 1, h.store.advanceCalls)
	assert.Equal(t, 1, h.signer.calls)
	assert.Equal(t, int64(1), h.store.counters[entity.CounterInvoicesUsed])
	assert.Len(t, h.gate.consumed, 1)
	assert.Equal(t, 1, h.gate.authorized, "la reanudación no pasa por la compuerta")
}

func TestEmitInvoice_ReanudaAutorizadaSinReenviar(t *testing.T) {
	h := newHarness(t, perfil())
	v := venta("v1")
	v.Emission = entity.EmissionState{
		Status:         entity.EmissionPending,
		AccessKey:      expectedKey,
		SignedXML:      []byte("<factura id=\"comprobante\"></factura>"),
		DocumentNumber: "001-002-000000001",
	}
	h.store.sales["v1"] = v

	out, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Zero(t, h.tr.receiveCalls())
	assert.Equal(t, 1, h.tr.authCalls)
	assert.Zero(t, h.store.nextCalls)
	assert.Zero(t, h.signer.calls)
	assert.Equal(t, entity.EmissionAuthorized, h.sale("v1").Emission.Status)
	assert.Equal(t, "<factura id=\"comprobante\"></factura>", string(h.sale("v1").Emission.SignedXML))
}

func TestEmitInvoice_ReanudaConAmbienteDeLaClave(t *testing.T) {
	cfg := perfil()
	cfg.Environment = 2
	h := newHarness(t, cfg)
	v := venta("v1")
	v.Emission = entity.EmissionState{Status: entity.EmissionPending, AccessKey: expectedKey, SignedXML: []byte("<factura></factura>")}
	h.store.sales["v1"] = v

	_, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)

	assert.Equal(t, []sri.Environment{sri.EnvironmentTest}, h.tr.envs)
	assert.Equal(t, "001-002-000000001", h.sale("v1").Emission.DocumentNumber)
}

func TestEmitInvoice_ReanudaRechazada(t *testing.T) {
	h := newHarness(t, perfil())
	v := venta("v1")
	v.Emission = entity.EmissionState{Status: entity.EmissionPending, AccessKey: expectedKey, SignedXML: []byte("<factura></factura>")}
	h.store.sales["v1"] = v
	h.tr.authorizeFn = func(call int) (*sri.AuthorityResult, error) {
		if call == 0 {
			return nil, errors.New("timeout")
		}
		return &sri.AuthorityResult{
			Status:   sri.StatusNoAutorizado,
			Messages: []sri.AuthorityMessage{{Identifier: "39", Message: "FIRMA INVALIDA"}},
		}, nil
	}

	out, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, string(sri.StatusNoAutorizado), out.Status)
	assert.Contains(t, out.Message, "FIRMA INVALIDA")
	assert.Equal(t, entity.EmissionRejected, h.sale("v1").Emission.Status)
	assert.Zero(t, h.store.advanceCalls)
	assert.Zero(t, h.store.counters[entity.CounterInvoicesUsed])
	assert.Empty(t, h.gate.consumed)
}

func TestEmitInvoice_EnProcesoLuegoNoAutorizadaNoConsume(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")
	h.tr.authorizeFn = always(enProceso, nil)

	out, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, string(sri.StatusEnProceso), out.Status)
	assert.Equal(t, int64(2), h.store.next[invoiceSeries().Key()], "el número queda asignado")
	assert.Zero(t, h.store.counters[entity.CounterInvoicesUsed])
	assert.Empty(t, h.gate.consumed)

	h.tr.authorizeFn = always(&sri.AuthorityResult{
		Status:   sri.StatusNoAutorizado,
		Messages: []sri.AuthorityMessage{{Identifier: "39", Message: "FIRMA INVALIDA"}},
	}, nil)
	out, err = h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)

	assert.Equal(t, string(sri.StatusNoAutorizado), out.Status)
	assert.Equal(t, entity.EmissionRejected, h.sale("v1").Emission.Status)
	assert.Zero(t, h.store.counters[entity.CounterInvoicesUsed])
	assert.Empty(t, h.gate.consumed)
	assert.Equal(t, 1, h.store.advanceCalls)
}

func TestEmitInvoice_EnProcesoLuegoAutorizadaConsumeUnaVez(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")
	h.tr.authorizeFn = always(enProceso, nil)

	_, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)
	assert.Empty(t, h.gate.consumed)

	h.tr.authorizeFn = always(autorizado, nil)
	out, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)
	assert.True(t, out.Success)

	_, err = h.orch.EmitInvoice(context.Background(), "v1")
	assert.ErrorIs(t, err, domain.ErrAlreadyAuthorized)

	assert.Equal(t, []string{expectedKey}, h.gate.consumed)
	assert.Equal(t, int64(1), h.store.counters[entity.CounterInvoicesUsed])
	assert.Equal(t, 1, h.store.advanceCalls)
}

// ──────────────────────────────────────────────────────────────────────────────
// Estados parciales
// ──────────────────────────────────────────────────────────────────────────────

func TestEmitInvoice_PendienteSinClaveLaRecuperaDelXML(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")
	h.tr.receiveFn = always(nil, sinConexion)
	_, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.Error(t, err)

	// Se pierde la clave pero queda el XML firmado.
	h.store.mu.Lock()
	h.store.sales["v1"].Emission.AccessKey = ""
	h.store.mu.Unlock()

	h.tr.receiveFn = always(recibida, nil)
	out, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)

	assert.Equal(t, expectedKey, out.AccessKey)
	assert.Equal(t, 1, h.store.nextCalls)
	assert.Equal(t, expectedKey, h.sale("v1").Emission.AccessKey)
}

func TestEmitInvoice_PendienteSinXMLNoAutorizadaEsInconsistente(t *testing.T) {
	h := newHarness(t, perfil())
	v := venta("v1")
	v.Emission = entity.EmissionState{Status: entity.EmissionPending, AccessKey: expectedKey}
	h.store.sales["v1"] = v
	h.tr.authorizeFn = always(enProceso, nil)

	_, err := h.orch.EmitInvoice(context.Background(), "v1")
	assert.ErrorIs(t, err, domain.ErrInconsistentEmission)
	assert.Zero(t, h.tr.receiveCalls())
	assert.Zero(t, h.store.nextCalls)
	assert.Empty(t, h.store.saved)
}

func TestEmitInvoice_PendienteSinXMLAutorizadaUsaComprobanteDelSRI(t *testing.T) {
	h := newHarness(t, perfil())
	v := venta("v1")
	v.Emission = entity.EmissionState{Status: entity.EmissionPending, AccessKey: expectedKey}
	h.store.sales["v1"] = v
	res := *autorizado
	res.Comprobante = "<factura>autorizada</factura>"
	h.tr.authorizeFn = always(&res, nil)

	out, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, "<factura>autorizada</factura>", string(h.sale("v1").Emission.SignedXML))
}

func TestEmitInvoice_PendienteSinClaveNiXML(t *testing.T) {
	h := newHarness(t, perfil())
	v := venta("v1")
	v.Emission = entity.EmissionState{Status: entity.EmissionPending}
	h.store.sales["v1"] = v

	_, err := h.orch.EmitInvoice(context.Background(), "v1")
	assert.ErrorIs(t, err, domain.ErrInconsistentEmission)
	assert.Zero(t, h.tr.authCalls)
	assert.Zero(t, h.store.nextCalls)
}

// ──────────────────────────────────────────────────────────────────────────────
// Protocolo de dos fases
// ──────────────────────────────────────────────────────────────────────────────

func TestEmitInvoice_Codigo70NoReenvia(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")
	h.tr.receiveFn = always(&sri.AuthorityResult{
		Status:   sri.StatusDevuelta,
		Messages: []sri.AuthorityMessage{{Identifier: "70", Message: "CLAVE DE ACCESO EN PROCESAMIENTO"}},
	}, nil)

	out, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, 1, h.tr.receiveCalls())
	assert.Equal(t, []string{expectedKey}, h.tr.keys)
}

func TestEmitInvoice_OchoConsultasEnProcesoQuedaPendiente(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")
	h.tr.authorizeFn = always(enProceso, nil)

	out, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, string(sri.StatusEnProceso), out.Status)
	assert.Equal(t, 8, h.tr.authCalls)

	st := h.sale("v1").Emission
	assert.Equal(t, entity.EmissionPending, st.Status)
	assert.Equal(t, expectedKey, st.AccessKey)
	assert.True(t, st.HasSignedXML())
	assert.Equal(t, "001-002-000000001", st.DocumentNumber)
	assert.Equal(t, int64(2), h.store.next[invoiceSeries().Key()], "el número queda asignado a la venta")
}

func TestEmitInvoice_DevueltaNoAvanzaSecuencial(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")
	h.tr.receiveFn = always(&sri.AuthorityResult{
		Status:   sri.StatusDevuelta,
		Messages: []sri.AuthorityMessage{{Identifier: "35", Message: "ARCHIVO NO CUMPLE ESTRUCTURA XML"}},
	}, nil)

	out, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, string(sri.StatusDevuelta), out.Status)
	assert.Equal(t, "Error 35 - ARCHIVO NO CUMPLE ESTRUCTURA XML", out.Message)
	assert.Empty(t, out.AssignedDocumentNumber)

	st := h.sale("v1").Emission
	assert.Equal(t, entity.EmissionRejected, st.Status)
	assert.False(t, st.HasSignedXML())
	assert.Zero(t, h.store.advanceCalls)
	assert.Zero(t, h.store.counters[entity.CounterInvoicesUsed])
	assert.Empty(t, h.gate.consumed)
	assert.Zero(t, h.tr.authCalls)
}

func TestEmitInvoice_RechazadaSeReemiteDesdeCero(t *testing.T) {
	h := newHarness(t, perfil())
	v := venta("v1")
	v.Emission = entity.EmissionState{Status: entity.EmissionRejected, AccessKey: expectedKey, Message: "Error 35"}
	h.store.sales["v1"] = v

	out, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, 1, h.signer.calls)
	assert.Equal(t, 1, h.store.nextCalls)
	assert.Equal(t, 1, h.gate.authorized)
}

// ──────────────────────────────────────────────────────────────────────────────
// Errores previos al envío
// ──────────────────────────────────────────────────────────────────────────────

func TestEmitInvoice_SuscripcionDenegada(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")
	h.gate.err = domain.ErrEntitlementDenied

	_, err := h.orch.EmitInvoice(context.Background(), "v1")
	assert.ErrorIs(t, err, domain.ErrEntitlementDenied)
	assert.Zero(t, h.store.nextCalls)
	assert.Zero(t, h.signer.calls)
	assert.Empty(t, h.store.saved)
}

func TestEmitInvoice_PerfilIncompleto(t *testing.T) {
	cfg := perfil()
	cfg.RUC = ""
	h := newHarness(t, cfg)
	h.store.sales["v1"] = venta("v1")

	_, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.ErrorIs(t, err, config.ErrConfigIncomplete)
	assert.Contains(t, err.Error(), "SRI_RUC")
	assert.Zero(t, h.store.nextCalls)
}

func TestEmitInvoice_SinCertificado(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")
	h.store.credential = nil

	_, err := h.orch.EmitInvoice(context.Background(), "v1")
	assert.ErrorIs(t, err, sri.ErrSigning)
	assert.ErrorIs(t, err, domain.ErrCredentialNotLoaded)
	assert.Zero(t, h.store.advanceCalls)
	assert.Empty(t, h.store.saved)
	assert.Zero(t, h.tr.receiveCalls())
}

func TestEmitInvoice_ErrorDelFirmadorSeTipifica(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")
	h.signer.err = errors.New("proceso terminado")

	_, err := h.orch.EmitInvoice(context.Background(), "v1")
	var se *sri.SigningError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "proceso terminado")
	assert.Equal(t, []string{"01:ERROR_FIRMA"}, h.metrics.statuses)
}

func TestEmitInvoice_SinLineas(t *testing.T) {
	h := newHarness(t, perfil())
	v := venta("v1")
	v.Items = nil
	h.store.sales["v1"] = v

	_, err := h.orch.EmitInvoice(context.Background(), "v1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, h.store.nextCalls)
}

// ──────────────────────────────────────────────────────────────────────────────
// Secuenciales y concurrencia
// ──────────────────────────────────────────────────────────────────────────────

func TestEmitInvoice_ConflictoDeSecuencialGuardaEstado(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")
	h.store.conflict = true

	out, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, entity.EmissionAuthorized, h.sale("v1").Emission.Status)
	assert.Equal(t, int64(1), h.store.counters[entity.CounterInvoicesUsed], "autorizada cuenta aunque la serie choque")
	assert.Equal(t, 1, h.store.advanceCalls)
}

func TestEmitInvoice_VentasConsecutivasUsanSecuencialesDistintos(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")
	h.store.sales["v2"] = venta("v2")

	a, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)
	b, err := h.orch.EmitInvoice(context.Background(), "v2")
	require.NoError(t, err)

	assert.Equal(t, "001-002-000000001", a.AssignedDocumentNumber)
	assert.Equal(t, "001-002-000000002", b.AssignedDocumentNumber)
	assert.NotEqual(t, a.AccessKey, b.AccessKey)
	assert.Equal(t, int64(2), h.store.counters[entity.CounterInvoicesUsed])
}

func TestEmitInvoice_LlamadasConcurrentesMismaVenta(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = h.orch.EmitInvoice(context.Background(), "v1")
		}(i)
	}
	wg.Wait()

	for _, err := range results {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrAlreadyAuthorized)
		}
	}
	assert.Equal(t, 1, h.store.nextCalls)
	assert.Equal(t, 1, h.signer.calls)
	assert.Equal(t, int64(2), h.store.next[invoiceSeries().Key()])
}

func TestEmitInvoice_SesionVencidaIgualGuardaPendiente(t *testing.T) {
	h := newHarness(t, perfil(), emission.WithTimeout(20*time.Millisecond))
	h.store.sales["v1"] = venta("v1")
	h.tr.hold = make(chan struct{})

	out, err := h.orch.EmitInvoice(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, string(sri.StatusEnProceso), out.Status)

	st := h.sale("v1").Emission
	assert.Equal(t, entity.EmissionPending, st.Status)
	assert.Equal(t, expectedKey, st.AccessKey)
	assert.True(t, st.HasSignedXML())
	assert.Equal(t, int64(2), h.store.next[invoiceSeries().Key()])
}

func TestEmitInvoice_SerieOcupadaRespetaElContexto(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")
	h.store.sales["v2"] = venta("v2")
	h.tr.hold = make(chan struct{})
	h.tr.entered = make(chan struct{}, 16)

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.EmitInvoice(context.Background(), "v1")
		done <- err
	}()
	<-h.tr.entered // v1 consulta autorización con la serie tomada

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.orch.EmitInvoice(ctx, "v2")
	require.ErrorIs(t, err, domain.ErrSeriesBusy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(h.tr.hold)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.store.nextCalls, "v2 no llegó a leer el secuencial")
	assert.Empty(t, h.sale("v2").Emission.AccessKey)
}

func TestEmitInvoice_SerieOcupadaEsperaAcotada(t *testing.T) {
	h := newHarness(t, perfil(), emission.WithSeriesWait(20*time.Millisecond))
	h.store.sales["v1"] = venta("v1")
	h.store.sales["v2"] = venta("v2")
	h.tr.hold = make(chan struct{})
	h.tr.entered = make(chan struct{}, 16)

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.EmitInvoice(context.Background(), "v1")
		done <- err
	}()
	<-h.tr.entered

	_, err := h.orch.EmitInvoice(context.Background(), "v2")
	assert.ErrorIs(t, err, domain.ErrSeriesBusy)

	close(h.tr.hold)
	require.NoError(t, <-done)
}

func TestEmitInvoice_ContextoCanceladoTrasFirmarNoInterrumpeElEnvio(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = venta("v1")
	ctx, cancel := context.WithCancel(context.Background())
	h.tr.receiveFn = func(int) (*sri.AuthorityResult, error) {
		cancel()
		return recibida, nil
	}

	out, err := h.orch.EmitInvoice(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, out.Success)
}

// ──────────────────────────────────────────────────────────────────────────────
// Notas de crédito
// ──────────────────────────────────────────────────────────────────────────────

func ventaAutorizada(id string) *entity.Sale {
	v := venta(id)
	v.CustomerID = "c1"
	v.Emission = entity.EmissionState{
		Status:         entity.EmissionAuthorized,
		AccessKey:      expectedKey,
		DocumentNumber: "001-002-000000001",
	}
	return v
}

func nota(id, saleID string) *entity.CreditNote {
	return &entity.CreditNote{
		ID:       id,
		SaleID:   saleID,
		IssuedAt: issueTime,
		Reason:   "Devolución parcial",
		Total:    decimal.RequireFromString("11.50"),
		Items: []entity.SaleItem{{
			ProductCode: "A1",
			Description: "Arroz 10kg",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.RequireFromString("10.00"),
			VATRate:     decimal.NewFromInt(15),
		}},
	}
}

func TestEmitCreditNote_ReferenciaFacturaAutorizada(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = ventaAutorizada("v1")
	h.store.customers["c1"] = &entity.Customer{ID: "c1", IdentificationType: "CEDULA", Identification: "1710034065", Name: "Juan Pérez"}
	h.store.notes["n1"] = nota("n1", "v1")

	out, err := h.orch.EmitCreditNote(context.Background(), "n1")
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, "04", sri.AccessKey(out.AccessKey).DocumentType())
	assert.Equal(t, "001-002-000000001", out.AssignedDocumentNumber, "serie propia de notas de crédito")
	assert.Zero(t, h.gate.authorized, "las notas de crédito no consumen suscripción")
	assert.Empty(t, h.gate.consumed)
	assert.Equal(t, []sri.RootTag{sri.RootTagCreditNote}, h.signer.roots)
	assert.Equal(t, int64(1), h.store.counters[entity.CounterCreditNotesUsed])

	require.Len(t, h.tr.received, 1)
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(h.tr.received[0]))
	info := doc.FindElement("/notaCredito/infoNotaCredito")
	require.NotNil(t, info)
	assert.Equal(t, "001-002-000000001", info.FindElement("numDocModificado").Text())
	assert.Equal(t, "15/02/2026", info.FindElement("fechaEmisionDocSustento").Text())
	assert.Equal(t, "1710034065", info.FindElement("identificacionComprador").Text())

	assert.Equal(t, entity.EmissionAuthorized, h.store.notes["n1"].Emission.Status)
	assert.Equal(t, entity.EmissionAuthorized, h.sale("v1").Emission.Status, "la factura no cambia")
}

func TestEmitCreditNote_FacturaNoAutorizada(t *testing.T) {
	h := newHarness(t, perfil())
	v := venta("v1")
	v.Emission = entity.EmissionState{Status: entity.EmissionPending, AccessKey: expectedKey}
	h.store.sales["v1"] = v
	h.store.notes["n1"] = nota("n1", "v1")

	_, err := h.orch.EmitCreditNote(context.Background(), "n1")
	assert.ErrorIs(t, err, domain.ErrReferenceNotAuthorized)
	assert.Zero(t, h.store.nextCalls)
	assert.Zero(t, h.signer.calls)
}

func TestEmitCreditNote_YaAutorizada(t *testing.T) {
	h := newHarness(t, perfil())
	h.store.sales["v1"] = ventaAutorizada("v1")
	n := nota("n1", "v1")
	n.Emission = entity.EmissionState{Status: entity.EmissionAuthorized, AccessKey: expectedKey}
	h.store.notes["n1"] = n

	_, err := h.orch.EmitCreditNote(context.Background(), "n1")
	assert.ErrorIs(t, err, domain.ErrAlreadyAuthorized)
}

func TestEmitCreditNote_Inexistente(t *testing.T) {
	h := newHarness(t, perfil())

	_, err := h.orch.EmitCreditNote(context.Background(), "n9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ──────────────────────────────────────────────────────────────────────────────
// Suscripción y utilidades
// ──────────────────────────────────────────────────────────────────────────────

func TestCheckEntitlement_Delegado(t *testing.T) {
	h := newHarness(t, perfil())
	h.gate.checkResult = &dto.EntitlementSnapshot{Gate: entity.GateSubscription, Authorized: true, Plan: "anual"}

	snap, err := h.orch.CheckEntitlement(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "anual", snap.Plan)
}

func TestAccessKeyFromXML(t *testing.T) {
	key, err := emission.AccessKeyFromXML([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<factura id="comprobante"><infoTributaria><claveAcceso>` + expectedKey + `</claveAcceso></infoTributaria></factura>`))
	require.NoError(t, err)
	assert.Equal(t, expectedKey, key)

	_, err = emission.AccessKeyFromXML([]byte("<factura></factura>"))
	assert.Error(t, err)

	_, err = emission.AccessKeyFromXML([]byte("no es xml <"))
	assert.Error(t, err)
}
