package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturacion-sri/internal/application/dto"
)

// LicenseService casos de uso de la licencia del equipo (*entitlement.Service).
type LicenseService interface {
	CheckLicense(ctx context.Context) (*dto.EntitlementSnapshot, error)
	ActivateLicense(ctx context.Context, code string) (*dto.EntitlementSnapshot, error)
}

// LicenseHandler consulta y activa la licencia.
type LicenseHandler struct {
	svc LicenseService
}

// NewLicenseHandler construye el handler.
func NewLicenseHandler(svc LicenseService) *LicenseHandler {
	return &LicenseHandler{svc: svc}
}

// Get estado de la licencia, con el identificador del equipo.
// GET /api/v1/license
func (h *LicenseHandler) Get(c *fiber.Ctx) error {
	snap, err := h.svc.CheckLicense(c.Context())
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(snap)
}

// Activate activa un código de licencia en este equipo.
// POST /api/v1/license/activate
func (h *LicenseHandler) Activate(c *fiber.Ctx) error {
	var in dto.ActivateLicenseRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	snap, err := h.svc.ActivateLicense(c.Context(), in.Code)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(snap)
}
