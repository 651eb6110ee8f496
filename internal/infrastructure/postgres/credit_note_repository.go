package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/internal/domain/repository"
)

var _ repository.CreditNoteRepository = (*CreditNoteRepo)(nil)

// CreditNoteRepo implementación de CreditNoteRepository (usable con pool o tx).
type CreditNoteRepo struct {
	q Querier
}

// NewCreditNoteRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCreditNoteRepository(q Querier) *CreditNoteRepo {
	return &CreditNoteRepo{q: q}
}

// GetForEmission obtiene la nota de crédito con sus líneas y su estado de emisión.
func (r *CreditNoteRepo) GetForEmission(ctx context.Context, id string) (*entity.CreditNote, error) {
	query := `
		SELECT id, number, sale_id, customer_id, issued_at, reason, total,
			` + emissionColumns + `
		FROM credit_notes WHERE id = $1`
	var (
		n          entity.CreditNote
		customerID *string
		em         emissionRow
	)
	dest := append([]any{&n.ID, &n.Number, &n.SaleID, &customerID, &n.IssuedAt, &n.Reason, &n.Total}, em.dest()...)
	if err := r.q.QueryRow(ctx, query, id).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get credit note: %w", err)
	}
	n.CustomerID = deref(customerID)
	n.Emission = em.state()

	items, err := listItems(ctx, r.q, "credit_note_items", "credit_note_id", id)
	if err != nil {
		return nil, err
	}
	n.Items = items
	return &n, nil
}

// SaveEmission persiste el estado de emisión; no toca notas ya autorizadas.
func (r *CreditNoteRepo) SaveEmission(ctx context.Context, id string, state *entity.EmissionState) error {
	return saveEmission(ctx, r.q, "credit_notes", id, state)
}
