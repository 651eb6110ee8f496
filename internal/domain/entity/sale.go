package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale venta del POS proyectada para su emisión como factura electrónica.
type Sale struct {
	ID            string
	Number        string // número interno del POS
	CustomerID    string
	IssuedAt      time.Time
	PaymentMethod string // EFECTIVO | TRANSFERENCIA | TARJETA_CREDITO | TARJETA_DEBITO
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	Items         []SaleItem
	Emission      EmissionState
}

// SaleItem línea de una venta o de una nota de crédito.
type SaleItem struct {
	ID          string
	ProductCode string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal // sin IVA
	Discount    decimal.Decimal
	VATRate     decimal.Decimal // en puntos porcentuales: 0, 5, 15
	Exempt      bool            // exento de IVA (distinto de tarifa 0%)
}
