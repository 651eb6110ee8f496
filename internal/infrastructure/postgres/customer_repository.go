package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/internal/domain/repository"
)

var _ repository.CustomerRepository = (*CustomerRepo)(nil)

// CustomerRepo implementación de CustomerRepository (usable con pool o tx).
type CustomerRepo struct {
	q Querier
}

// NewCustomerRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCustomerRepository(q Querier) *CustomerRepo {
	return &CustomerRepo{q: q}
}

// GetByID obtiene un cliente por ID.
func (r *CustomerRepo) GetByID(ctx context.Context, id string) (*entity.Customer, error) {
	query := `
		SELECT id, identification_type, identification, name, address, email, phone, created_at, updated_at
		FROM customers WHERE id = $1`
	var (
		c                     entity.Customer
		address, email, phone *string
	)
	err := r.q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.IdentificationType, &c.Identification, &c.Name, &address, &email, &phone, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	c.Address, c.Email, c.Phone = deref(address), deref(email), deref(phone)
	return &c, nil
}

// Import inserta el cliente si su identificación no existe. Devuelve true si se insertó.
// Lo usa cmd/seed_sri para cargar la cartera inicial.
func (r *CustomerRepo) Import(ctx context.Context, c *entity.Customer) (bool, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	tag, err := r.q.Exec(ctx, `
		INSERT INTO customers (id, identification_type, identification, name, address, email, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (identification) DO NOTHING`,
		c.ID, c.IdentificationType, c.Identification, c.Name,
		nullIfEmpty(c.Address), nullIfEmpty(c.Email), nullIfEmpty(c.Phone),
	)
	if err != nil {
		return false, fmt.Errorf("import customer %s: %w", c.Identification, err)
	}
	return tag.RowsAffected() == 1, nil
}
