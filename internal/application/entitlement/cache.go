package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/internal/domain/repository"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
	"github.com/rs/zerolog"
)

// DefaultGraceDays días calendario que una compuerta opera con la caché sin conexión.
const DefaultGraceDays = 7

// Fetcher consulta el estado online de una compuerta.
type Fetcher interface {
	Fetch(ctx context.Context) (*entity.EntitlementRecord, error)
}

// FetcherFunc adapta una función a Fetcher.
type FetcherFunc func(ctx context.Context) (*entity.EntitlementRecord, error)

// Fetch implementa Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context) (*entity.EntitlementRecord, error) { return f(ctx) }

// Observer recibe el resultado de cada verificación (métricas).
type Observer interface {
	ObserveEntitlement(gate string, offline, authorized bool)
}

type noopObserver struct{}

func (noopObserver) ObserveEntitlement(string, bool, bool) {}

// Gate compuerta con validación online y caché persistida con periodo de gracia.
type Gate struct {
	name      string
	fetcher   Fetcher
	store     repository.EntitlementRepository
	now       func() time.Time
	graceDays int
	observer  Observer
	log       zerolog.Logger
}

// GateOption configura una compuerta.
type GateOption func(*Gate)

// WithClock reemplaza el reloj.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// WithGraceDays cambia los días de gracia offline.
func WithGraceDays(days int) GateOption {
	return func(g *Gate) { g.graceDays = days }
}

// WithGateObserver registra un observador de resultados.
func WithGateObserver(o Observer) GateOption {
	return func(g *Gate) { g.observer = o }
}

// NewGate crea la compuerta name (entity.GateSubscription, entity.GateLicense).
func NewGate(name string, fetcher Fetcher, store repository.EntitlementRepository, log zerolog.Logger, opts ...GateOption) *Gate {
	g := &Gate{
		name:      name,
		fetcher:   fetcher,
		store:     store,
		now:       time.Now,
		graceDays: DefaultGraceDays,
		observer:  noopObserver{},
		log:       log.With().Str("gate", name).Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name nombre de la compuerta.
func (g *Gate) Name() string { return g.name }

// Check valida online y, si el servidor no responde, evalúa la caché.
// Errores del servidor que no son de conexión (4xx) se devuelven al caller.
func (g *Gate) Check(ctx context.Context) (*entity.EntitlementSnapshot, error) {
	now := g.now()
	rec, err := g.fetcher.Fetch(ctx)
	if err == nil {
		rec.Gate = g.name
		rec.LastOnlineCheck = &now
		rec.UpdatedAt = now
		if saveErr := g.store.Save(ctx, rec); saveErr != nil {
			g.log.Warn().Err(saveErr).Msg("entitlement: no se pudo guardar la caché")
		}
		snap := &entity.EntitlementSnapshot{EntitlementRecord: *rec}
		g.observer.ObserveEntitlement(g.name, false, snap.Authorized)
		return snap, nil
	}
	if !errors.Is(err, sri.ErrTransport) {
		return nil, err
	}
	g.log.Info().Err(err).Msg("entitlement: sin conexión, usando caché")

	cached, err := g.store.Get(ctx, g.name)
	if err != nil {
		return nil, err
	}
	snap := g.offline(cached, now)
	g.observer.ObserveEntitlement(g.name, true, snap.Authorized)
	return snap, nil
}

func (g *Gate) offline(cached *entity.EntitlementRecord, now time.Time) *entity.EntitlementSnapshot {
	if cached == nil {
		return denied(g.name, "Sin conexión y sin validación previa; conéctese a internet")
	}
	if cached.LastOnlineCheck == nil {
		return denied(g.name, "Validación expirada; conéctese a internet")
	}
	if days := CalendarDaysBetween(*cached.LastOnlineCheck, now); days > g.graceDays {
		snap := denied(g.name, "Sin conexión por más de los días de gracia; conéctese a internet para revalidar")
		snap.Plan, snap.Kind = cached.Plan, cached.Kind
		snap.LastOnlineCheck = cached.LastOnlineCheck
		return snap
	}
	snap := &entity.EntitlementSnapshot{EntitlementRecord: *cached, Offline: true}
	snap.Authorized = Evaluate(cached, now)
	if cached.Message == "" {
		snap.Message = "Usando caché offline"
	} else {
		snap.Message = cached.Message + " (offline)"
	}
	return snap
}

func denied(gate, msg string) *entity.EntitlementSnapshot {
	return &entity.EntitlementSnapshot{
		EntitlementRecord: entity.EntitlementRecord{Gate: gate, Kind: entity.PlanUnknown, Message: msg},
		Offline:           true,
	}
}

// Evaluate aplica las reglas del plan a un registro en caché.
// Un registro que el servidor dejó como no autorizado sigue sin autorización.
func Evaluate(rec *entity.EntitlementRecord, today time.Time) bool {
	if rec == nil || !rec.Authorized {
		return false
	}
	switch rec.Kind {
	case entity.PlanLifetime:
		return true
	case entity.PlanCalendar:
		if rec.ExpiryDate == nil {
			return true
		}
		return !dateOf(today).After(dateOf(*rec.ExpiryDate))
	case entity.PlanQuota:
		return rec.RemainingDocs != nil && *rec.RemainingDocs > 0
	}
	return rec.Authorized
}

// CalendarDaysBetween días calendario (zona de to) entre dos instantes; nunca negativo.
func CalendarDaysBetween(from, to time.Time) int {
	d := int(dateOf(to).Sub(dateOf(from.In(to.Location()))).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
