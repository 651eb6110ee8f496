package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturacion-sri/internal/application/dto"
	"github.com/jhoicas/facturacion-sri/internal/domain"
	"github.com/jhoicas/facturacion-sri/pkg/config"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Se evalúan en orden; gana la primera coincidencia.
var errorMappings = []errorMapping{
	{domain.ErrEntitlementUnavailable, fiber.StatusServiceUnavailable, "ENTITLEMENT_UNAVAILABLE"},
	{domain.ErrEntitlementDenied, fiber.StatusPaymentRequired, "ENTITLEMENT_DENIED"},
	{domain.ErrLicenseInactive, fiber.StatusForbidden, "LICENSE_INACTIVE"},
	{config.ErrConfigIncomplete, fiber.StatusPreconditionFailed, "CONFIG_INCOMPLETE"},
	{sri.ErrSigning, fiber.StatusUnprocessableEntity, "SIGNING_FAILED"},
	{sri.ErrTransport, fiber.StatusBadGateway, "SRI_UNREACHABLE"},
	{domain.ErrSeriesBusy, fiber.StatusServiceUnavailable, "SERIES_BUSY"},
	{domain.ErrAlreadyAuthorized, fiber.StatusConflict, "ALREADY_AUTHORIZED"},
	{domain.ErrInconsistentEmission, fiber.StatusConflict, "INCONSISTENT_EMISSION"},
	{domain.ErrReferenceNotAuthorized, fiber.StatusConflict, "REFERENCE_NOT_AUTHORIZED"},
	{domain.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{domain.ErrInvalidInput, fiber.StatusBadRequest, "VALIDATION"},
}

// statusFor traduce un error de aplicación a código HTTP y código de error de la API.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return fiber.StatusInternalServerError, "INTERNAL"
}

// writeError responde con el error mapeado. Si hay resultado de emisión lo adjunta.
func writeError(c *fiber.Ctx, err error, outcome *dto.EmissionOutcome) error {
	status, code := statusFor(err)
	body := dto.ErrorResponse{Code: code, Message: err.Error()}
	if outcome != nil {
		return c.Status(status).JSON(dto.EmissionErrorResponse{ErrorResponse: body, Outcome: outcome})
	}
	return c.Status(status).JSON(body)
}
