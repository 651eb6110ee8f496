package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/internal/domain/repository"
)

var _ repository.EntitlementRepository = (*EntitlementRepo)(nil)

// EntitlementRepo caché de compuertas en entitlement_cache (una fila por compuerta).
type EntitlementRepo struct {
	q Querier
}

// NewEntitlementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewEntitlementRepository(q Querier) *EntitlementRepo {
	return &EntitlementRepo{q: q}
}

// Get devuelve la última respuesta cacheada; nil, nil si la compuerta nunca se validó.
func (r *EntitlementRepo) Get(ctx context.Context, gate string) (*entity.EntitlementRecord, error) {
	query := `
		SELECT gate, authorized, plan, kind, expiry_date, remaining_docs, lifetime, message,
			business, email, last_online_check, updated_at
		FROM entitlement_cache WHERE gate = $1`
	var (
		rec                     entity.EntitlementRecord
		kind                    string
		message, business, mail *string
	)
	err := r.q.QueryRow(ctx, query, gate).Scan(
		&rec.Gate, &rec.Authorized, &rec.Plan, &kind, &rec.ExpiryDate, &rec.RemainingDocs, &rec.Lifetime,
		&message, &business, &mail, &rec.LastOnlineCheck, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entitlement %s: %w", gate, err)
	}
	rec.Kind = entity.PlanKind(kind)
	rec.Message, rec.Business, rec.Email = deref(message), deref(business), deref(mail)
	return &rec, nil
}

// Save reemplaza la fila de la compuerta.
func (r *EntitlementRepo) Save(ctx context.Context, rec *entity.EntitlementRecord) error {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	query := `
		INSERT INTO entitlement_cache (gate, authorized, plan, kind, expiry_date, remaining_docs, lifetime,
			message, business, email, last_online_check, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (gate) DO UPDATE SET
			authorized = EXCLUDED.authorized, plan = EXCLUDED.plan, kind = EXCLUDED.kind,
			expiry_date = EXCLUDED.expiry_date, remaining_docs = EXCLUDED.remaining_docs,
			lifetime = EXCLUDED.lifetime, message = EXCLUDED.message, business = EXCLUDED.business,
			email = EXCLUDED.email, last_online_check = EXCLUDED.last_online_check,
			updated_at = EXCLUDED.updated_at`
	_, err := r.q.Exec(ctx, query,
		rec.Gate, rec.Authorized, rec.Plan, string(rec.Kind), rec.ExpiryDate, rec.RemainingDocs, rec.Lifetime,
		nullIfEmpty(rec.Message), nullIfEmpty(rec.Business), nullIfEmpty(rec.Email), rec.LastOnlineCheck, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("save entitlement %s: %w", rec.Gate, err)
	}
	return nil
}

// UpdateRemainingDocs actualiza el saldo de un plan por paquete tras consumir un documento.
func (r *EntitlementRepo) UpdateRemainingDocs(ctx context.Context, gate string, remaining int64) error {
	_, err := r.q.Exec(ctx,
		`UPDATE entitlement_cache SET remaining_docs = $2, updated_at = NOW() WHERE gate = $1`,
		gate, remaining)
	if err != nil {
		return fmt.Errorf("update remaining docs %s: %w", gate, err)
	}
	return nil
}
