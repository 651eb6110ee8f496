package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/facturacion-sri/internal/domain"
	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/internal/domain/repository"
)

var _ repository.CredentialRepository = (*CredentialRepo)(nil)

// CredentialRepo certificados de firma en sri_credentials. Solo uno está activo.
type CredentialRepo struct {
	q Querier
}

// NewCredentialRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCredentialRepository(q Querier) *CredentialRepo {
	return &CredentialRepo{q: q}
}

// GetActive devuelve el certificado vigente; nil, nil si no hay ninguno cargado.
func (r *CredentialRepo) GetActive(ctx context.Context) (*entity.SigningCredential, error) {
	query := `
		SELECT id, p12, password, subject, not_after, created_at
		FROM sri_credentials WHERE active ORDER BY created_at DESC LIMIT 1`
	var (
		c        entity.SigningCredential
		subject  *string
		notAfter *time.Time
	)
	err := r.q.QueryRow(ctx, query).Scan(&c.ID, &c.P12, &c.Password, &subject, &notAfter, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active credential: %w", err)
	}
	c.Subject = deref(subject)
	if notAfter != nil {
		c.NotAfter = *notAfter
	}
	return &c, nil
}

// Save carga un certificado nuevo y desactiva los anteriores en una sola sentencia.
func (r *CredentialRepo) Save(ctx context.Context, c *entity.SigningCredential) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	var notAfter *time.Time
	if !c.NotAfter.IsZero() {
		notAfter = &c.NotAfter
	}
	query := `
		WITH retired AS (
			UPDATE sri_credentials SET active = false WHERE active
		)
		INSERT INTO sri_credentials (id, p12, password, subject, not_after, active, created_at)
		VALUES ($1, $2, $3, $4, $5, true, $6)`
	_, err := r.q.Exec(ctx, query, c.ID, c.P12, c.Password, nullIfEmpty(c.Subject), notAfter, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("credential %s: %w", c.ID, domain.ErrConflict)
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}
