package entity

import "time"

// Customer comprador de una venta. Los registros los administra el POS; aquí solo se leen.
type Customer struct {
	ID                 string
	IdentificationType string // RUC | CEDULA | PASAPORTE | CONSUMIDOR_FINAL
	Identification     string
	Name               string
	Address            string
	Email              string
	Phone              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsFinalConsumer indica si la venta se emite a consumidor final.
func (c *Customer) IsFinalConsumer() bool {
	return c == nil || c.IdentificationType == "CONSUMIDOR_FINAL" || c.Identification == "" || c.Identification == "9999999999999"
}
