package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturacion-sri/internal/application/emission"
	appentitlement "github.com/jhoicas/facturacion-sri/internal/application/entitlement"
	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	infraentitlement "github.com/jhoicas/facturacion-sri/internal/infrastructure/entitlement"
	"github.com/jhoicas/facturacion-sri/internal/infrastructure/metrics"
	"github.com/jhoicas/facturacion-sri/internal/infrastructure/postgres"
	infrasri "github.com/jhoicas/facturacion-sri/internal/infrastructure/sri"
	"github.com/jhoicas/facturacion-sri/internal/infrastructure/sri/signer"
	httpRouter "github.com/jhoicas/facturacion-sri/internal/interfaces/http"
	"github.com/jhoicas/facturacion-sri/pkg/config"
	"github.com/jhoicas/facturacion-sri/pkg/logger"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name,
	})
	zl := log.Zerolog()
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("sri_ambiente", cfg.SRI.Env().String()).
		Msg("iniciando aplicación")

	// El perfil incompleto no impide arrancar: la emisión responde 412 hasta que se complete.
	if err := cfg.SRI.Validate(); err != nil {
		log.Warn().Err(err).Msg("perfil SRI incompleto, la emisión quedará bloqueada")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	saleRepo := postgres.NewSaleRepository(pool)
	noteRepo := postgres.NewCreditNoteRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	sequenceRepo := postgres.NewSequenceRepository(pool)
	counterRepo := postgres.NewCounterRepository(pool)
	entitlementRepo := postgres.NewEntitlementRepository(pool)
	credentialRepo := postgres.NewCredentialRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	// ═══ Suscripción y licencia ═══
	machineID, err := infraentitlement.MachineID(cfg.Entitlement.MachineIDPath)
	if err != nil {
		log.Warn().Err(err).Msg("sin identificador de máquina, se usa el nombre del host")
		host, _ := os.Hostname()
		machineID = infraentitlement.Fingerprint(host)
	}
	entClient := infraentitlement.NewClient(cfg.Entitlement.APIURL, cfg.Entitlement.APIKey, machineID)
	gateOpts := []appentitlement.GateOption{appentitlement.WithGraceDays(cfg.Entitlement.GraceDays)}
	if m != nil {
		gateOpts = append(gateOpts, appentitlement.WithGateObserver(m))
	}
	subscriptionGate := appentitlement.NewGate(entity.GateSubscription,
		appentitlement.FetcherFunc(entClient.FetchSubscription), entitlementRepo, zl, gateOpts...)
	licenseGate := appentitlement.NewGate(entity.GateLicense,
		appentitlement.FetcherFunc(entClient.FetchLicense), entitlementRepo, zl, gateOpts...)
	entitlementSvc := appentitlement.NewService(subscriptionGate, licenseGate, entClient,
		entitlementRepo, counterRepo, int64(cfg.Entitlement.FreeQuota), zl)

	// ═══ Firma y SRI ═══
	var sriSigner sri.Signer
	switch cfg.SRI.Signer {
	case config.SignerNative:
		sriSigner = signer.NewNativeSigner()
	default:
		sriSigner = signer.NewExternalSigner(cfg.SRI.SignerCommand, []string{cfg.SRI.SignerScript}, "", zl)
	}
	log.Info().Str("signer", cfg.SRI.Signer).Str("machine_id", machineID).Msg("firma electrónica configurada")

	gatewayOpts := []infrasri.GatewayOption{}
	if m != nil {
		gatewayOpts = append(gatewayOpts, infrasri.WithObserver(m))
	}
	gateway := infrasri.NewGateway(infrasri.NewSOAPClient(), zl, gatewayOpts...)

	orchestratorOpts := []emission.Option{}
	if m != nil {
		orchestratorOpts = append(orchestratorOpts, emission.WithMetrics(m))
	}
	orchestrator := emission.NewOrchestrator(emission.Deps{
		Sales:           saleRepo,
		Notes:           noteRepo,
		Customers:       customerRepo,
		Sequences:       sequenceRepo,
		Credentials:     credentialRepo,
		Tx:              txRunner,
		Composer:        infrasri.NewXMLBuilderService(),
		Signer:          sriSigner,
		Gateway:         gateway,
		Gate:            entitlementSvc,
		CheckCredential: signer.CheckCredential,
	}, cfg.SRI, zl, orchestratorOpts...)

	// La emisión puede esperar hasta el tope de la sesión con el SRI.
	writeTimeout := time.Duration(cfg.SRI.EmissionTimeoutSec)*time.Second + 10*time.Second
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: writeTimeout,
		IdleTimeout:  time.Second * 60,
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Emission:        orchestrator,
		License:         entitlementSvc,
		Metrics:         m,
		MetricsPath:     cfg.Metrics.Path,
		JWTSecret:       cfg.JWT.Secret,
		Establishment:   cfg.SRI.Establishment,
		LicenseRequired: cfg.Entitlement.LicenseRequired,
		Log:             zl,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
