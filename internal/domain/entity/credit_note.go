package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditNote nota de crédito que anula total o parcialmente una factura autorizada.
type CreditNote struct {
	ID         string
	Number     string
	SaleID     string
	CustomerID string
	IssuedAt   time.Time
	Reason     string
	Total      decimal.Decimal
	Items      []SaleItem
	Emission   EmissionState
}
