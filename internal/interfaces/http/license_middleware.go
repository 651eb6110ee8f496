package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturacion-sri/internal/application/dto"
	"github.com/jhoicas/facturacion-sri/internal/domain"
)

// licenseChecker es el contrato mínimo que necesita el middleware.
// Lo implementa *entitlement.Service.
type licenseChecker interface {
	LicenseActive(ctx context.Context) (bool, error)
}

// RequireLicense bloquea las rutas de emisión si la licencia del equipo no está activa.
// Usa la misma caché que la suscripción: sin conexión, la licencia sigue valiendo
// durante el periodo de gracia.
//   - 403 LICENSE_INACTIVE   → licencia no activada, vencida o fuera de gracia.
//   - 503 LICENSE_CHECK_FAILED → el servidor respondió con error y no hay forma de decidir.
func RequireLicense(checker licenseChecker, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		active, err := checker.LicenseActive(c.Context())
		if err != nil {
			if errors.Is(err, domain.ErrLicenseInactive) {
				return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "LICENSE_INACTIVE", Message: err.Error()})
			}
			log.Error().Err(err).Msg("licencia: no se pudo verificar")
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Code:    "LICENSE_CHECK_FAILED",
				Message: "no se pudo verificar la licencia, intente más tarde",
			})
		}
		if !active {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Code:    "LICENSE_INACTIVE",
				Message: domain.ErrLicenseInactive.Error(),
			})
		}
		return c.Next()
	}
}
