// Package entitlement implementa las compuertas de suscripción SRI y licencia de uso,
// con caché persistida y periodo de gracia offline.
package entitlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/facturacion-sri/internal/application/dto"
	"github.com/jhoicas/facturacion-sri/internal/domain"
	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/internal/domain/repository"
	"github.com/rs/zerolog"
)

// DefaultFreeQuota facturas que se pueden emitir sin suscripción.
const DefaultFreeQuota = 10

// PlanFree plan sintético mientras dura el cupo gratuito.
const PlanFree = "gratis"

// Server operaciones del servidor de suscripciones fuera de la validación.
type Server interface {
	ActivateLicense(ctx context.Context, code string) (*entity.EntitlementRecord, error)
	ConsumeDocument(ctx context.Context, accessKey string) (int64, error)
	MachineID() string
}

// UsageReader lectura del contador de uso del plan gratuito.
type UsageReader interface {
	Get(ctx context.Context, name string) (int64, error)
}

// Service casos de uso de suscripción y licencia.
type Service struct {
	subscription *Gate
	license      *Gate
	server       Server
	store        repository.EntitlementRepository
	usage        UsageReader
	freeQuota    int64
	log          zerolog.Logger
}

// NewService construye el servicio. freeQuota <= 0 desactiva el plan gratuito.
func NewService(subscription, license *Gate, server Server, store repository.EntitlementRepository, usage UsageReader, freeQuota int64, log zerolog.Logger) *Service {
	return &Service{
		subscription: subscription,
		license:      license,
		server:       server,
		store:        store,
		usage:        usage,
		freeQuota:    freeQuota,
		log:          log,
	}
}

// CheckEntitlement estado de la suscripción de facturación electrónica.
func (s *Service) CheckEntitlement(ctx context.Context) (*dto.EntitlementSnapshot, error) {
	used, err := s.usage.Get(ctx, entity.CounterInvoicesUsed)
	if err != nil {
		return nil, fmt.Errorf("leer contador de uso: %w", err)
	}
	if used < s.freeQuota {
		out := toDTO(s.freeSnapshot(used))
		out.FreeQuota, out.FreeUsed = s.freeQuota, used
		return out, nil
	}
	snap, err := s.subscription.Check(ctx)
	if err != nil {
		return nil, err
	}
	out := toDTO(snap)
	out.FreeQuota, out.FreeUsed = s.freeQuota, used
	return out, nil
}

// AuthorizeEmission decide si se puede emitir una factura. Mientras quede cupo gratuito
// no consulta el servidor. Devuelve domain.ErrEntitlementDenied si la suscripción no autoriza.
func (s *Service) AuthorizeEmission(ctx context.Context) (*entity.EntitlementSnapshot, error) {
	used, err := s.usage.Get(ctx, entity.CounterInvoicesUsed)
	if err != nil {
		return nil, fmt.Errorf("leer contador de uso: %w", err)
	}
	if used < s.freeQuota {
		return s.freeSnapshot(used), nil
	}
	snap, err := s.subscription.Check(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.Authorized {
		return snap, fmt.Errorf("%w: %s", domain.ErrEntitlementDenied, snap.Message)
	}
	return snap, nil
}

// RecordConsumption descuenta un documento en planes por paquete. Es best-effort: los fallos solo se registran.
// Con snap nil (factura autorizada al reanudar) se usa el plan de la caché, salvo que la
// factura haya entrado en el cupo gratuito; el contador ya incluye la factura autorizada.
func (s *Service) RecordConsumption(ctx context.Context, snap *entity.EntitlementSnapshot, accessKey string) {
	if snap == nil {
		snap = s.cachedPlan(ctx)
	}
	if snap == nil || snap.Kind != entity.PlanQuota {
		return
	}
	remaining, err := s.server.ConsumeDocument(ctx, accessKey)
	if err != nil {
		s.log.Warn().Err(err).Str("access_key", accessKey).Msg("entitlement: no se pudo consumir documento del paquete")
		return
	}
	if err := s.store.UpdateRemainingDocs(ctx, entity.GateSubscription, remaining); err != nil {
		s.log.Warn().Err(err).Msg("entitlement: no se pudo actualizar documentos restantes")
	}
}

func (s *Service) cachedPlan(ctx context.Context) *entity.EntitlementSnapshot {
	used, err := s.usage.Get(ctx, entity.CounterInvoicesUsed)
	if err != nil {
		s.log.Warn().Err(err).Msg("entitlement: no se pudo leer el contador de uso")
		return nil
	}
	if used <= s.freeQuota {
		return nil
	}
	rec, err := s.store.Get(ctx, entity.GateSubscription)
	if err != nil || rec == nil {
		if err != nil {
			s.log.Warn().Err(err).Msg("entitlement: no se pudo leer la suscripción en caché")
		}
		return nil
	}
	return &entity.EntitlementSnapshot{EntitlementRecord: *rec}
}

// CheckLicense estado de la licencia de uso de este equipo.
func (s *Service) CheckLicense(ctx context.Context) (*dto.EntitlementSnapshot, error) {
	snap, err := s.license.Check(ctx)
	if err != nil {
		return nil, err
	}
	out := toDTO(snap)
	out.MachineID = s.server.MachineID()
	return out, nil
}

// LicenseActive usado por el middleware HTTP.
func (s *Service) LicenseActive(ctx context.Context) (bool, error) {
	snap, err := s.license.Check(ctx)
	if err != nil {
		return false, err
	}
	return snap.Authorized, nil
}

// ActivateLicense activa un código y guarda el resultado en la caché de la licencia.
func (s *Service) ActivateLicense(ctx context.Context, code string) (*dto.EntitlementSnapshot, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: ingrese el código de activación", domain.ErrInvalidInput)
	}
	rec, err := s.server.ActivateLicense(ctx, code)
	if err != nil {
		return nil, err
	}
	now := s.license.now()
	rec.Gate = entity.GateLicense
	rec.LastOnlineCheck = &now
	rec.UpdatedAt = now
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("guardar licencia: %w", err)
	}
	s.log.Info().Str("business", rec.Business).Str("plan", rec.Plan).Msg("entitlement: licencia activada")
	out := toDTO(&entity.EntitlementSnapshot{EntitlementRecord: *rec})
	out.MachineID = s.server.MachineID()
	return out, nil
}

func (s *Service) freeSnapshot(used int64) *entity.EntitlementSnapshot {
	remaining := s.freeQuota - used
	return &entity.EntitlementSnapshot{EntitlementRecord: entity.EntitlementRecord{
		Gate:          entity.GateSubscription,
		Authorized:    true,
		Plan:          PlanFree,
		Kind:          entity.PlanUnknown,
		RemainingDocs: &remaining,
		Message:       fmt.Sprintf("Plan gratuito: %d de %d facturas usadas", used, s.freeQuota),
	}}
}

func toDTO(snap *entity.EntitlementSnapshot) *dto.EntitlementSnapshot {
	out := &dto.EntitlementSnapshot{
		Gate:          snap.Gate,
		Authorized:    snap.Authorized,
		Plan:          snap.Plan,
		PlanKind:      string(snap.Kind),
		RemainingDocs: snap.RemainingDocs,
		Lifetime:      snap.Lifetime,
		Message:       snap.Message,
		Offline:       snap.Offline,
		Business:      snap.Business,
		Email:         snap.Email,
	}
	if snap.ExpiryDate != nil {
		out.ExpiryDate = snap.ExpiryDate.Format("2006-01-02")
	}
	if snap.LastOnlineCheck != nil {
		out.LastCheck = snap.LastOnlineCheck.Format(time.RFC3339)
	}
	return out
}
