// Package entitlement implementa el cliente del servidor de suscripciones y licencias
// (validar-suscripcion, validar-licencia, activar-licencia, consumir-documento).
package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jhoicas/facturacion-sri/internal/domain"
	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

// ErrNotConfigured no hay URL del servidor; la compuerta opera con la caché.
var ErrNotConfigured = errors.New("entitlement: servidor de suscripciones no configurado")

const (
	pathSubscription = "/validar-suscripcion"
	pathLicense      = "/validar-licencia"
	pathActivate     = "/activar-licencia"
	pathConsume      = "/consumir-documento"

	maxResponseSize = 64 * 1024
)

// Client cliente JSON del servidor de suscripciones.
// Usa net/http de la stdlib, igual que el resto de adaptadores HTTP salientes.
type Client struct {
	baseURL    string
	apiKey     string
	machineID  string
	httpClient *http.Client
}

// NewClient construye el cliente con timeout de red de 10 s.
// Si baseURL está vacío todas las llamadas fallan con ErrNotConfigured (envuelto como error de conexión).
func NewClient(baseURL, apiKey, machineID string) *Client {
	return NewClientWithHTTP(baseURL, apiKey, machineID, &http.Client{Timeout: 10 * time.Second})
}

// NewClientWithHTTP permite inyectar el http.Client (tests con httptest).
func NewClientWithHTTP(baseURL, apiKey, machineID string, hc *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		machineID:  machineID,
		httpClient: hc,
	}
}

// MachineID identificador del equipo enviado al servidor.
func (c *Client) MachineID() string { return c.machineID }

// ── Estructuras del protocolo ─────────────────────────────────────────────────

type subscriptionResponse struct {
	Autorizado    bool    `json:"autorizado"`
	Plan          *string `json:"plan"`
	FechaHasta    *string `json:"fecha_hasta"`
	DocsRestantes *int64  `json:"docs_restantes"`
	EsLifetime    *bool   `json:"es_lifetime"`
	Mensaje       *string `json:"mensaje"`
}

type licenseResponse struct {
	Activa  bool    `json:"activa"`
	Ok      bool    `json:"ok"`
	Negocio *string `json:"negocio"`
	Email   *string `json:"email"`
	Tipo    *string `json:"tipo"`
	Emitida *string `json:"emitida"`
	Mensaje *string `json:"mensaje"`
}

type consumeResponse struct {
	Ok            bool   `json:"ok"`
	DocsRestantes *int64 `json:"docs_restantes"`
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// FetchSubscription valida la suscripción SRI de este equipo.
func (c *Client) FetchSubscription(ctx context.Context) (*entity.EntitlementRecord, error) {
	var out subscriptionResponse
	if err := c.post(ctx, pathSubscription, "suscripcion", map[string]string{"machine_id": c.machineID}, &out); err != nil {
		return nil, err
	}
	rec := &entity.EntitlementRecord{
		Gate:          entity.GateSubscription,
		Authorized:    out.Autorizado,
		Plan:          deref(out.Plan),
		RemainingDocs: out.DocsRestantes,
		Lifetime:      out.EsLifetime != nil && *out.EsLifetime,
		Message:       deref(out.Mensaje),
	}
	rec.Kind = entity.PlanKindFor(rec.Plan, rec.Lifetime)
	rec.ExpiryDate = parseDate(deref(out.FechaHasta))
	if rec.Message == "" {
		if rec.Authorized {
			rec.Message = "Suscripción activa"
		} else {
			rec.Message = "Sin suscripción activa"
		}
	}
	return rec, nil
}

// FetchLicense revalida la licencia de uso de este equipo.
func (c *Client) FetchLicense(ctx context.Context) (*entity.EntitlementRecord, error) {
	var out licenseResponse
	if err := c.post(ctx, pathLicense, "licencia", map[string]string{"machine_id": c.machineID}, &out); err != nil {
		return nil, err
	}
	rec := licenseRecord(out, out.Activa)
	if rec.Message == "" {
		if rec.Authorized {
			rec.Message = "Licencia activa"
		} else {
			rec.Message = "Licencia inactiva"
		}
	}
	return rec, nil
}

// ActivateLicense activa un código de licencia para este equipo.
func (c *Client) ActivateLicense(ctx context.Context, code string) (*entity.EntitlementRecord, error) {
	var out licenseResponse
	body := map[string]string{"codigo": code, "machine_id": c.machineID}
	if err := c.post(ctx, pathActivate, "activar-licencia", body, &out); err != nil {
		return nil, err
	}
	if !out.Ok {
		msg := deref(out.Mensaje)
		if msg == "" {
			msg = "código de activación inválido o ya utilizado"
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrLicenseInactive, msg)
	}
	rec := licenseRecord(out, true)
	if rec.Plan == "" {
		rec.Plan = "perpetua"
		rec.Kind = entity.PlanLifetime
	}
	if rec.Message == "" {
		rec.Message = "Licencia activada"
	}
	return rec, nil
}

// ConsumeDocument descuenta un documento del paquete y devuelve los restantes.
func (c *Client) ConsumeDocument(ctx context.Context, accessKey string) (int64, error) {
	var out consumeResponse
	body := map[string]string{"machine_id": c.machineID, "clave_acceso": accessKey}
	if err := c.post(ctx, pathConsume, "consumir-documento", body, &out); err != nil {
		return 0, err
	}
	if !out.Ok {
		return 0, fmt.Errorf("%w: no se pudo consumir el documento", domain.ErrEntitlementDenied)
	}
	if out.DocsRestantes == nil {
		return 0, nil
	}
	return *out.DocsRestantes, nil
}

// ── Transporte ────────────────────────────────────────────────────────────────

// post envía JSON y decodifica la respuesta. Red, timeout y HTTP 5xx devuelven *sri.TransportError
// (la compuerta cae a la caché); 4xx devuelve domain.ErrEntitlementUnavailable con el mensaje del servidor.
func (c *Client) post(ctx context.Context, path, op string, payload interface{}, out interface{}) error {
	if c.baseURL == "" {
		return &sri.TransportError{Op: op, Err: ErrNotConfigured}
	}
	url := c.baseURL + path

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("entitlement: serializar request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("entitlement: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &sri.TransportError{Op: op, Endpoint: url, Attempts: 1, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &sri.TransportError{Op: op, Endpoint: url, Attempts: 1, Err: err}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return &sri.TransportError{Op: op, Endpoint: url, Attempts: 1, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", domain.ErrEntitlementUnavailable, serverMessage(raw, resp.StatusCode))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: respuesta inválida: %v", domain.ErrEntitlementUnavailable, err)
	}
	return nil
}

func serverMessage(raw []byte, status int) string {
	var m struct {
		Mensaje string `json:"mensaje"`
	}
	if json.Unmarshal(raw, &m) == nil && m.Mensaje != "" {
		return m.Mensaje
	}
	return fmt.Sprintf("error del servidor (HTTP %d)", status)
}

func licenseRecord(out licenseResponse, active bool) *entity.EntitlementRecord {
	rec := &entity.EntitlementRecord{
		Gate:       entity.GateLicense,
		Authorized: active,
		Plan:       deref(out.Tipo),
		Business:   deref(out.Negocio),
		Email:      deref(out.Email),
		Message:    deref(out.Mensaje),
	}
	rec.Kind = entity.PlanKindFor(rec.Plan, false)
	rec.Lifetime = rec.Kind == entity.PlanLifetime
	// Licencia anual: vence un año después de emitida.
	if issued := parseDate(deref(out.Emitida)); issued != nil && strings.EqualFold(rec.Plan, "anual") {
		exp := issued.AddDate(1, 0, 0)
		rec.ExpiryDate = &exp
	}
	return rec
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// parseDate acepta YYYY-MM-DD o un timestamp ISO-8601 (solo se usa la fecha).
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if len(s) < 10 {
		return nil
	}
	t, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return nil
	}
	return &t
}
