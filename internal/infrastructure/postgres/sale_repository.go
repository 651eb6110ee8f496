package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/internal/domain/repository"
)

var _ repository.SaleRepository = (*SaleRepo)(nil)

// SaleRepo implementación de SaleRepository (usable con pool o tx).
// Las ventas las escribe el POS; aquí solo se actualizan las columnas sri_*.
type SaleRepo struct {
	q Querier
}

// NewSaleRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSaleRepository(q Querier) *SaleRepo {
	return &SaleRepo{q: q}
}

// GetForEmission obtiene la venta con sus líneas y su estado de emisión.
func (r *SaleRepo) GetForEmission(ctx context.Context, id string) (*entity.Sale, error) {
	query := `
		SELECT id, number, customer_id, issued_at, payment_method, subtotal, discount, tax, total,
			` + emissionColumns + `
		FROM sales WHERE id = $1`
	var (
		s          entity.Sale
		customerID *string
		em         emissionRow
	)
	dest := append([]any{&s.ID, &s.Number, &customerID, &s.IssuedAt, &s.PaymentMethod,
		&s.Subtotal, &s.Discount, &s.Tax, &s.Total}, em.dest()...)
	if err := r.q.QueryRow(ctx, query, id).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}
	s.CustomerID = deref(customerID)
	s.Emission = em.state()

	items, err := listItems(ctx, r.q, "sale_items", "sale_id", id)
	if err != nil {
		return nil, err
	}
	s.Items = items
	return &s, nil
}

// SaveEmission persiste el estado de emisión; no toca ventas ya autorizadas.
func (r *SaleRepo) SaveEmission(ctx context.Context, id string, state *entity.EmissionState) error {
	return saveEmission(ctx, r.q, "sales", id, state)
}

// listItems lee las líneas de una venta o nota de crédito en su orden original.
func listItems(ctx context.Context, q Querier, table, fk, parentID string) ([]entity.SaleItem, error) {
	query := fmt.Sprintf(`
		SELECT id, product_code, description, quantity, unit_price, discount, vat_rate, exempt
		FROM %s WHERE %s = $1 ORDER BY position, id`, table, fk)
	rows, err := q.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var items []entity.SaleItem
	for rows.Next() {
		var it entity.SaleItem
		if err := rows.Scan(&it.ID, &it.ProductCode, &it.Description, &it.Quantity, &it.UnitPrice,
			&it.Discount, &it.VATRate, &it.Exempt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
