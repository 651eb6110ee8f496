package dto

// EmissionOutcome resultado de POST /api/v1/sri/invoices/:saleId/emit y /credit-notes/:id/emit.
// Status es el estado devuelto por el SRI (AUTORIZADO, DEVUELTA, NO AUTORIZADO, RECHAZADO,
// EN_PROCESO) o SIN_CONEXION cuando la recepción no respondió.
type EmissionOutcome struct {
	Success                bool   `json:"success"`
	Status                 string `json:"status"`
	AccessKey              string `json:"access_key"`
	AuthorizationNumber    string `json:"authorization_number,omitempty"`
	AuthorizationDate      string `json:"authorization_date,omitempty"`
	Message                string `json:"message"`
	AssignedDocumentNumber string `json:"assigned_document_number,omitempty"` // EEE-PPP-SSSSSSSSS
}

// EmissionErrorResponse error de emisión que aun así deja un resultado utilizable
// (por ejemplo SIN_CONEXION: el comprobante quedó pendiente con su clave).
type EmissionErrorResponse struct {
	ErrorResponse
	Outcome *EmissionOutcome `json:"outcome,omitempty"`
}
