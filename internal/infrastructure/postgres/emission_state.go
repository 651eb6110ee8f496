package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/facturacion-sri/internal/domain"
	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
)

// Columnas de emisión, idénticas en sales y credit_notes.
const emissionColumns = `sri_status, sri_access_key, sri_signed_xml, sri_authorization_number,
	sri_authorization_date, sri_document_number, sri_message, sri_updated_at`

// emissionRow destino de Scan de las columnas de emisión (todas anulables salvo el estado).
type emissionRow struct {
	status     string
	accessKey  *string
	signedXML  []byte
	authNumber *string
	authDate   *string
	docNumber  *string
	message    *string
	updatedAt  *time.Time
}

func (e *emissionRow) dest() []any {
	return []any{&e.status, &e.accessKey, &e.signedXML, &e.authNumber, &e.authDate, &e.docNumber, &e.message, &e.updatedAt}
}

func (e *emissionRow) state() entity.EmissionState {
	st := entity.EmissionState{
		Status:              entity.EmissionStatus(e.status),
		AccessKey:           deref(e.accessKey),
		SignedXML:           e.signedXML,
		AuthorizationNumber: deref(e.authNumber),
		AuthorizationDate:   deref(e.authDate),
		DocumentNumber:      deref(e.docNumber),
		Message:             deref(e.message),
	}
	if st.Status == "" {
		st.Status = entity.EmissionNone
	}
	if e.updatedAt != nil {
		st.UpdatedAt = *e.updatedAt
	}
	return st
}

// saveEmission actualiza el estado de emisión de table. Un registro AUTHORIZED
// nunca se sobrescribe: la actualización no lo alcanza y se devuelve nil.
func saveEmission(ctx context.Context, q Querier, table, id string, st *entity.EmissionState) error {
	updatedAt := st.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	query := fmt.Sprintf(`
		UPDATE %s SET
			sri_status = $2, sri_access_key = $3, sri_signed_xml = $4, sri_authorization_number = $5,
			sri_authorization_date = $6, sri_document_number = $7, sri_message = $8, sri_updated_at = $9
		WHERE id = $1 AND sri_status <> 'AUTHORIZED'`, table)
	tag, err := q.Exec(ctx, query,
		id, string(st.Status), nullIfEmpty(st.AccessKey), st.SignedXML, nullIfEmpty(st.AuthorizationNumber),
		nullIfEmpty(st.AuthorizationDate), nullIfEmpty(st.DocumentNumber), nullIfEmpty(st.Message), updatedAt,
	)
	if err != nil {
		return fmt.Errorf("update %s emission: %w", table, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := q.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table), id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s: %w", table, err)
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", table, id, domain.ErrNotFound)
	}
	return nil
}
