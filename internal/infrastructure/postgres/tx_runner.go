package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/facturacion-sri/internal/application/emission"
	"github.com/jhoicas/facturacion-sri/internal/domain/repository"
)

// Ensure TxRunner implements emission.EmissionTxRunner.
var _ emission.EmissionTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunEmission inicia una transacción con los repos de estado de emisión, secuenciales
// y contadores, ejecuta fn y hace Commit o Rollback.
func (r *TxRunner) RunEmission(ctx context.Context, fn func(
	saleRepo repository.SaleRepository,
	noteRepo repository.CreditNoteRepository,
	seqRepo repository.SequenceRepository,
	usageRepo repository.UsageCounterRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewSaleRepository(tx), NewCreditNoteRepository(tx), NewSequenceRepository(tx), NewCounterRepository(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
