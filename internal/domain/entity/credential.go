package entity

import "time"

// SigningCredential certificado .p12 cargado por el contribuyente.
type SigningCredential struct {
	ID        string
	P12       []byte
	Password  string
	Subject   string
	NotAfter  time.Time
	CreatedAt time.Time
}
