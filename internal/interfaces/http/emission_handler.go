package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/jhoicas/facturacion-sri/internal/application/dto"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

// Emitter casos de uso de emisión (lo implementa *emission.Orchestrator).
type Emitter interface {
	EmitInvoice(ctx context.Context, saleID string) (*dto.EmissionOutcome, error)
	EmitCreditNote(ctx context.Context, noteID string) (*dto.EmissionOutcome, error)
	CheckEntitlement(ctx context.Context) (*dto.EntitlementSnapshot, error)
}

// EmissionHandler maneja las peticiones de emisión electrónica (protegido).
type EmissionHandler struct {
	uc Emitter
}

// NewEmissionHandler construye el handler.
func NewEmissionHandler(uc Emitter) *EmissionHandler {
	return &EmissionHandler{uc: uc}
}

// EmitInvoice emite o reanuda la factura de una venta.
// POST /api/v1/sri/invoices/:saleId/emit
func (h *EmissionHandler) EmitInvoice(c *fiber.Ctx) error {
	id := c.Params("saleId")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "saleId debe ser un UUID"})
	}
	out, err := h.uc.EmitInvoice(c.Context(), id)
	return respondEmission(c, out, err)
}

// EmitCreditNote emite o reanuda una nota de crédito.
// POST /api/v1/sri/credit-notes/:id/emit
func (h *EmissionHandler) EmitCreditNote(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id debe ser un UUID"})
	}
	out, err := h.uc.EmitCreditNote(c.Context(), id)
	return respondEmission(c, out, err)
}

// Entitlement estado de la suscripción de facturación electrónica.
// GET /api/v1/sri/entitlement
func (h *EmissionHandler) Entitlement(c *fiber.Ctx) error {
	snap, err := h.uc.CheckEntitlement(c.Context())
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(snap)
}

// respondEmission: rechazos del SRI son respuestas de negocio (200 con success=false);
// EN_PROCESO es 202 porque la autorización sigue pendiente.
func respondEmission(c *fiber.Ctx, out *dto.EmissionOutcome, err error) error {
	if err != nil {
		return writeError(c, err, out)
	}
	if out.Status == string(sri.StatusEnProceso) {
		return c.Status(fiber.StatusAccepted).JSON(out)
	}
	return c.JSON(out)
}
