package sri

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

// Calendarios de reintento. El primer intento no espera.
var (
	ReceptionSchedule     = []time.Duration{0, 3 * time.Second, 5 * time.Second}
	AuthorizationSchedule = []time.Duration{
		0, 3 * time.Second, 5 * time.Second, 8 * time.Second,
		12 * time.Second, 15 * time.Second, 20 * time.Second, 25 * time.Second,
	}
)

// Sleeper espera d o hasta que ctx termine.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep implementación real de Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Observer recibe cada intento contra el SRI (métricas).
type Observer interface {
	ObserveAttempt(phase, outcome string)
}

type noopObserver struct{}

func (noopObserver) ObserveAttempt(string, string) {}

// Gateway protocolo de dos fases: recepción y luego consulta de autorización
// con reintentos acotados.
type Gateway struct {
	transport     Transport
	sleep         Sleeper
	reception     []time.Duration
	authorization []time.Duration
	observer      Observer
	log           zerolog.Logger
}

// GatewayOption configura el Gateway.
type GatewayOption func(*Gateway)

// WithSleeper sustituye la espera (tests sin demoras reales).
func WithSleeper(s Sleeper) GatewayOption {
	return func(g *Gateway) { g.sleep = s }
}

// WithSchedules sustituye los calendarios de reintento.
func WithSchedules(reception, authorization []time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.reception = reception
		g.authorization = authorization
	}
}

// WithObserver registra un observador de intentos.
func WithObserver(o Observer) GatewayOption {
	return func(g *Gateway) { g.observer = o }
}

// NewGateway construye el gateway sobre un Transport.
func NewGateway(t Transport, log zerolog.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		transport:     t,
		sleep:         ContextSleep,
		reception:     ReceptionSchedule,
		authorization: AuthorizationSchedule,
		observer:      noopObserver{},
		log:           log,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Submit ejecuta las dos fases con la misma clave de acceso.
//   - DEVUELTA (salvo código 70) → resultado rechazado, sin consultar autorización.
//   - Código 70 → la recepción ya ocurrió; se pasa directo a la consulta.
//   - Recepción sin conexión tras 3 intentos → *sri.TransportError.
//   - Consulta agotada sin estado terminal → StatusEnProceso (no es error).
func (g *Gateway) Submit(ctx context.Context, env sri.Environment, signedXML []byte, accessKey string) (*sri.AuthorityResult, error) {
	rejected, err := g.receive(ctx, env, signedXML, accessKey)
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return rejected, nil
	}
	return g.PollAuthorization(ctx, env, accessKey), nil
}

// receive devuelve (nil, nil) si el comprobante quedó recibido.
func (g *Gateway) receive(ctx context.Context, env sri.Environment, signedXML []byte, accessKey string) (*sri.AuthorityResult, error) {
	var lastErr error
	for attempt, delay := range g.reception {
		if err := g.sleep(ctx, delay); err != nil {
			return nil, &sri.TransportError{Op: "recepcion", Endpoint: sri.Endpoints(env).Reception, Attempts: attempt, Err: err}
		}
		res, err := g.transport.Receive(ctx, env, signedXML)
		if err != nil {
			var fault *SOAPFault
			if errors.As(err, &fault) {
				g.observer.ObserveAttempt("recepcion", "fault")
				return &sri.AuthorityResult{
					Status:    sri.StatusDevuelta,
					AccessKey: accessKey,
					Messages:  []sri.AuthorityMessage{{Identifier: fault.Code, Message: fault.String, Type: "ERROR"}},
				}, nil
			}
			g.observer.ObserveAttempt("recepcion", "transport_error")
			g.log.Warn().Err(err).Int("attempt", attempt+1).Str("access_key", accessKey).Msg("sri recepción sin conexión")
			lastErr = err
			continue
		}

		switch {
		case res.Status == sri.StatusRecibida:
			g.observer.ObserveAttempt("recepcion", "recibida")
			return nil, nil
		case res.HasCode(sri.CodeAlreadyInProcess):
			g.observer.ObserveAttempt("recepcion", "en_procesamiento")
			g.log.Info().Str("access_key", accessKey).Msg("sri recepción: clave ya en procesamiento, se consulta autorización")
			return nil, nil
		default:
			g.observer.ObserveAttempt("recepcion", "devuelta")
			if res.AccessKey == "" {
				res.AccessKey = accessKey
			}
			if res.Status != sri.StatusDevuelta {
				res.Detail = "estado de recepción inesperado: " + string(res.Status)
				res.Status = sri.StatusDevuelta
			}
			return res, nil
		}
	}
	var te *sri.TransportError
	if errors.As(lastErr, &te) {
		return nil, &sri.TransportError{Op: te.Op, Endpoint: te.Endpoint, Attempts: len(g.reception), Err: te.Err}
	}
	return nil, &sri.TransportError{Op: "recepcion", Endpoint: sri.Endpoints(env).Reception, Attempts: len(g.reception), Err: lastErr}
}

// PollAuthorization consulta la autorización según el calendario. Los fallos de
// red y los Fault cuentan como "aún en proceso": la recepción ya ocurrió y el
// comprobante queda pendiente y reanudable.
func (g *Gateway) PollAuthorization(ctx context.Context, env sri.Environment, accessKey string) *sri.AuthorityResult {
	var lastDetail string
	for attempt, delay := range g.authorization {
		if err := g.sleep(ctx, delay); err != nil {
			lastDetail = "consulta interrumpida: " + err.Error()
			break
		}
		res, err := g.transport.Authorize(ctx, env, accessKey)
		if err != nil {
			g.observer.ObserveAttempt("autorizacion", "error")
			g.log.Warn().Err(err).Int("attempt", attempt+1).Str("access_key", accessKey).Msg("sri autorización: error en consulta")
			lastDetail = err.Error()
			continue
		}
		if res.Authorized() || res.Rejected() {
			g.observer.ObserveAttempt("autorizacion", string(res.Status))
			return res
		}
		g.observer.ObserveAttempt("autorizacion", "en_proceso")
		lastDetail = res.Message()
	}
	detail := "El SRI aún procesa el comprobante; reintente la emisión más tarde"
	if lastDetail != "" {
		detail += " (" + lastDetail + ")"
	}
	return &sri.AuthorityResult{Status: sri.StatusEnProceso, AccessKey: accessKey, Detail: detail}
}

// QueryAuthorization una sola consulta, usada al reanudar un comprobante pendiente.
func (g *Gateway) QueryAuthorization(ctx context.Context, env sri.Environment, accessKey string) (*sri.AuthorityResult, error) {
	res, err := g.transport.Authorize(ctx, env, accessKey)
	if err != nil {
		g.observer.ObserveAttempt("consulta", "error")
		return nil, err
	}
	g.observer.ObserveAttempt("consulta", string(res.Status))
	return res, nil
}
