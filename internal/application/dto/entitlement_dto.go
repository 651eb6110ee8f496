package dto

// EntitlementSnapshot estado de una compuerta (suscripción SRI o licencia).
type EntitlementSnapshot struct {
	Gate          string `json:"gate"`
	Authorized    bool   `json:"authorized"`
	Plan          string `json:"plan"`
	PlanKind      string `json:"plan_kind"`
	ExpiryDate    string `json:"expiry_date,omitempty"` // YYYY-MM-DD
	RemainingDocs *int64 `json:"remaining_docs,omitempty"`
	Lifetime      bool   `json:"lifetime"`
	Message       string `json:"message"`
	Offline       bool   `json:"offline"`
	LastCheck     string `json:"last_check,omitempty"`

	// Plan gratuito (solo suscripción).
	FreeQuota int64 `json:"free_quota,omitempty"`
	FreeUsed  int64 `json:"free_used,omitempty"`

	// Licencia.
	Business  string `json:"business,omitempty"`
	Email     string `json:"email,omitempty"`
	MachineID string `json:"machine_id,omitempty"`
}

// ActivateLicenseRequest body para POST /api/v1/license/activate.
type ActivateLicenseRequest struct {
	Code string `json:"code"`
}
