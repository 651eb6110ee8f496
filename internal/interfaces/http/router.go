package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturacion-sri/internal/infrastructure/metrics"
	"github.com/jhoicas/facturacion-sri/pkg/jwt"
)

// License lo que el router necesita de la licencia: consulta, activación y compuerta.
type License interface {
	LicenseService
	licenseChecker
}

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Emission        Emitter
	License         License
	Metrics         *metrics.Metrics // nil = sin /metrics
	MetricsPath     string
	JWTSecret       string
	Establishment   string // establecimiento SRI de este punto de emisión
	LicenseRequired bool
	Log             zerolog.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Use(recover.New())

	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		app.Use(deps.Metrics.Middleware(path))
		app.Get(path, adaptor.HTTPHandler(deps.Metrics.Handler()))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Rutas protegidas (requieren Bearer Token)
	v1 := app.Group("/api/v1", AuthMiddleware(deps.JWTSecret))

	// Licencia
	licenseHandler := NewLicenseHandler(deps.License)
	license := v1.Group("/license")
	license.Get("/", licenseHandler.Get)
	license.Post("/activate", RequireRole(jwt.RoleAdmin), licenseHandler.Activate)

	// Emisión SRI
	sriGroup := v1.Group("/sri")
	if deps.LicenseRequired {
		sriGroup.Use(RequireLicense(deps.License, deps.Log))
	}
	emissionHandler := NewEmissionHandler(deps.Emission)
	sriGroup.Get("/entitlement", RequireRole(jwt.RoleAdmin, jwt.RoleCashier, jwt.RoleAuditor), emissionHandler.Entitlement)
	emitters := []fiber.Handler{RequireRole(jwt.RoleAdmin, jwt.RoleCashier), RequireEstablishment(deps.Establishment)}
	sriGroup.Post("/invoices/:saleId/emit", append(emitters, emissionHandler.EmitInvoice)...)
	sriGroup.Post("/credit-notes/:id/emit", append(emitters, emissionHandler.EmitCreditNote)...)
}
