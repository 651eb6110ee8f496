// Package emission orquesta la emisión electrónica de facturas y notas de crédito
// ante el SRI: secuencial → clave de acceso → XML → firma → recepción/autorización → estado.
package emission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/facturacion-sri/internal/application/dto"
	"github.com/jhoicas/facturacion-sri/internal/domain"
	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/internal/domain/repository"
	domsri "github.com/jhoicas/facturacion-sri/internal/domain/sri"
	infrasri "github.com/jhoicas/facturacion-sri/internal/infrastructure/sri"
	"github.com/jhoicas/facturacion-sri/pkg/config"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

const (
	// DefaultTimeout tope de la sesión con el SRI una vez firmado el comprobante.
	DefaultTimeout = 180 * time.Second
	// DefaultSeriesWait espera máxima por una emisión en curso de la misma serie.
	DefaultSeriesWait = 30 * time.Second
	// persistTimeout tope para guardar el estado; no comparte plazo con la sesión del SRI.
	persistTimeout = 15 * time.Second
)

// Deps dependencias del orquestador.
type Deps struct {
	Sales       repository.SaleRepository
	Notes       repository.CreditNoteRepository
	Customers   repository.CustomerRepository
	Sequences   repository.SequenceRepository
	Credentials repository.CredentialRepository
	Tx          EmissionTxRunner
	Keys        *sri.AccessKeyGenerator
	Composer    Composer
	Signer      sri.Signer
	Gateway     TaxGateway
	Gate        EntitlementGate
	// CheckCredential opcional; se ejecuta antes de firmar.
	CheckCredential CredentialChecker
}

// Option configura el orquestador.
type Option func(*Orchestrator)

// WithClock fija el reloj (fecha de emisión y marcas de actualización).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMetrics registra duración y resultado de cada emisión.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTimeout cambia el tope de la sesión con el SRI.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithSeriesWait cambia la espera máxima por la serie antes de responder ErrSeriesBusy.
func WithSeriesWait(d time.Duration) Option {
	return func(o *Orchestrator) { o.seriesWait = d }
}

// Orchestrator es el único escritor del estado de emisión. Las llamadas concurrentes
// sobre el mismo comprobante se colapsan en una sola y las emisiones de una misma
// serie se serializan entre la lectura del secuencial y su avance.
type Orchestrator struct {
	deps       Deps
	cfg        config.SRIConfig
	metrics    Metrics
	now        func() time.Time
	timeout    time.Duration
	seriesWait time.Duration
	log        zerolog.Logger

	flight   singleflight.Group
	seriesMu sync.Mutex
	series   map[string]chan struct{}
}

// NewOrchestrator construye el orquestador.
func NewOrchestrator(deps Deps, cfg config.SRIConfig, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:       deps,
		cfg:        cfg,
		metrics:    noopMetrics{},
		now:        time.Now,
		timeout:    DefaultTimeout,
		seriesWait: DefaultSeriesWait,
		log:        log,
		series:     make(map[string]chan struct{}),
	}
	if cfg.EmissionTimeoutSec > 0 {
		o.timeout = time.Duration(cfg.EmissionTimeoutSec) * time.Second
	}
	if o.deps.Keys == nil {
		o.deps.Keys = sri.NewAccessKeyGenerator()
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// document lo que difiere entre factura y nota de crédito dentro del flujo común.
type document struct {
	docType string
	id      string
	state   entity.EmissionState
	counter string
	build   func(key sri.AccessKey, seq int64, issue time.Time) ([]byte, error)
	save    func(ctx context.Context, sales repository.SaleRepository, notes repository.CreditNoteRepository, st *entity.EmissionState) error
	// authorized se llama una sola vez, cuando el comprobante queda AUTHORIZED.
	authorized func(ctx context.Context, accessKey string)

	// Se completan al reservar el número.
	series   entity.SequenceSeries
	sequence int64
	advanced bool
}

// EmitInvoice emite (o reanuda) la factura electrónica de una venta.
func (o *Orchestrator) EmitInvoice(ctx context.Context, saleID string) (*dto.EmissionOutcome, error) {
	return o.single(sri.DocumentTypeInvoice+":"+saleID, func() (*dto.EmissionOutcome, error) {
		return o.emitInvoice(ctx, saleID)
	})
}

// EmitCreditNote emite (o reanuda) una nota de crédito sobre una factura autorizada.
func (o *Orchestrator) EmitCreditNote(ctx context.Context, noteID string) (*dto.EmissionOutcome, error) {
	return o.single(sri.DocumentTypeCreditNote+":"+noteID, func() (*dto.EmissionOutcome, error) {
		return o.emitCreditNote(ctx, noteID)
	})
}

// CheckEntitlement estado de la suscripción para el operador.
func (o *Orchestrator) CheckEntitlement(ctx context.Context) (*dto.EntitlementSnapshot, error) {
	return o.deps.Gate.CheckEntitlement(ctx)
}

func (o *Orchestrator) single(key string, fn func() (*dto.EmissionOutcome, error)) (*dto.EmissionOutcome, error) {
	v, err, _ := o.flight.Do(key, func() (interface{}, error) {
		return fn()
	})
	out, _ := v.(*dto.EmissionOutcome)
	return out, err
}

func (o *Orchestrator) emitInvoice(ctx context.Context, saleID string) (*dto.EmissionOutcome, error) {
	log := o.log.With().Str("sale_id", saleID).Str("attempt_id", uuid.NewString()).Logger()

	// ═══════════════════════════════════════════════════════════════════════════
	// 0. Estado actual: AUTHORIZED es terminal, PENDING se reanuda
	// ═══════════════════════════════════════════════════════════════════════════
	sale, err := o.deps.Sales.GetForEmission(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("cargar venta %s: %w", saleID, err)
	}
	if sale == nil {
		return nil, fmt.Errorf("venta %s: %w", saleID, domain.ErrNotFound)
	}
	doc := &document{
		docType: sri.DocumentTypeInvoice,
		id:      sale.ID,
		state:   sale.Emission,
		counter: entity.CounterInvoicesUsed,
		save: func(ctx context.Context, sales repository.SaleRepository, _ repository.CreditNoteRepository, st *entity.EmissionState) error {
			return sales.SaveEmission(ctx, sale.ID, st)
		},
	}
	if doc.state.IsAuthorized() {
		return nil, fmt.Errorf("venta %s: %w", saleID, domain.ErrAlreadyAuthorized)
	}
	// Al reanudar no hay snapshot: el servicio resuelve el plan desde la caché.
	var snap *entity.EntitlementSnapshot
	doc.authorized = func(ctx context.Context, accessKey string) {
		o.deps.Gate.RecordConsumption(ctx, snap, accessKey)
	}
	if doc.state.Status == entity.EmissionPending {
		return o.resume(ctx, doc, log)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 1. Compuerta de suscripción y perfil tributario
	// ═══════════════════════════════════════════════════════════════════════════
	snap, err = o.deps.Gate.AuthorizeEmission(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("sri: emisión bloqueada por la suscripción")
		return nil, err
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	customer, err := o.customer(ctx, sale.CustomerID)
	if err != nil {
		return nil, err
	}
	taxes, err := o.taxes(sale.Items, log)
	if err != nil {
		return nil, err
	}
	if !taxes.MatchesStored(sale.Total) {
		log.Warn().
			Str("total_venta", sale.Total.StringFixed(2)).
			Str("total_calculado", taxes.Total.StringFixed(2)).
			Msg("sri: el total recalculado difiere del total de la venta")
	}

	doc.build = func(key sri.AccessKey, seq int64, issue time.Time) ([]byte, error) {
		return o.deps.Composer.BuildInvoice(&infrasri.InvoiceBuildContext{
			Issuer:    o.issuer(),
			AccessKey: key,
			Sequence:  seq,
			IssueDate: issue,
			Sale:      sale,
			Customer:  customer,
			Taxes:     taxes,
		})
	}

	return o.emit(ctx, doc, log)
}

func (o *Orchestrator) emitCreditNote(ctx context.Context, noteID string) (*dto.EmissionOutcome, error) {
	log := o.log.With().Str("credit_note_id", noteID).Str("attempt_id", uuid.NewString()).Logger()

	note, err := o.deps.Notes.GetForEmission(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("cargar nota de crédito %s: %w", noteID, err)
	}
	if note == nil {
		return nil, fmt.Errorf("nota de crédito %s: %w", noteID, domain.ErrNotFound)
	}
	doc := &document{
		docType: sri.DocumentTypeCreditNote,
		id:      note.ID,
		state:   note.Emission,
		counter: entity.CounterCreditNotesUsed,
		save: func(ctx context.Context, _ repository.SaleRepository, notes repository.CreditNoteRepository, st *entity.EmissionState) error {
			return notes.SaveEmission(ctx, note.ID, st)
		},
	}
	if doc.state.IsAuthorized() {
		return nil, fmt.Errorf("nota de crédito %s: %w", noteID, domain.ErrAlreadyAuthorized)
	}
	if doc.state.Status == entity.EmissionPending {
		return o.resume(ctx, doc, log)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 1. Factura modificada: debe estar autorizada
	// ═══════════════════════════════════════════════════════════════════════════
	sale, err := o.deps.Sales.GetForEmission(ctx, note.SaleID)
	if err != nil {
		return nil, fmt.Errorf("cargar venta %s: %w", note.SaleID, err)
	}
	if sale == nil {
		return nil, fmt.Errorf("venta de referencia %s: %w", note.SaleID, domain.ErrNotFound)
	}
	if !sale.Emission.IsAuthorized() {
		return nil, fmt.Errorf("venta %s (%s): %w", sale.ID, sale.Emission.Status, domain.ErrReferenceNotAuthorized)
	}
	saleKey := sri.AccessKey(sale.Emission.AccessKey)
	modNumber := sale.Emission.DocumentNumber
	if modNumber == "" {
		if modNumber, err = saleKey.DocumentNumber(); err != nil {
			return nil, fmt.Errorf("%w: venta %s sin número de comprobante", domain.ErrInconsistentEmission, sale.ID)
		}
	}
	modDate, err := saleKey.IssueDate()
	if err != nil {
		modDate = sale.IssuedAt
	}

	customerID := note.CustomerID
	if customerID == "" {
		customerID = sale.CustomerID
	}
	customer, err := o.customer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	taxes, err := o.taxes(note.Items, log)
	if err != nil {
		return nil, err
	}

	doc.build = func(key sri.AccessKey, seq int64, issue time.Time) ([]byte, error) {
		return o.deps.Composer.BuildCreditNote(&infrasri.CreditNoteBuildContext{
			Issuer:                 o.issuer(),
			AccessKey:              key,
			Sequence:               seq,
			IssueDate:              issue,
			Note:                   note,
			Customer:               customer,
			Taxes:                  taxes,
			ModifiedDocumentNumber: modNumber,
			ModifiedDocumentDate:   modDate,
		})
	}
	return o.emit(ctx, doc, log)
}

// emit primer envío: reserva número, genera clave, construye, firma y envía.
func (o *Orchestrator) emit(ctx context.Context, doc *document, log zerolog.Logger) (*dto.EmissionOutcome, error) {
	started := o.now()
	doc.series = entity.SequenceSeries{
		Establishment: o.cfg.Establishment,
		EmissionPoint: o.cfg.EmissionPoint,
		DocumentType:  doc.docType,
		Environment:   o.cfg.Environment,
	}
	// La serie queda tomada hasta persistir: el avance del secuencial depende del resultado del SRI.
	unlock, err := o.lockSeries(ctx, doc.series.Key())
	if err != nil {
		log.Warn().Err(err).Str("series", doc.series.Key()).Msg("sri: serie ocupada por otra emisión")
		return nil, err
	}
	defer unlock()

	// ═══════════════════════════════════════════════════════════════════════════
	// 2. Secuencial y clave de acceso
	// ═══════════════════════════════════════════════════════════════════════════
	seq, err := o.deps.Sequences.Next(ctx, doc.series)
	if err != nil {
		return nil, fmt.Errorf("obtener secuencial: %w", err)
	}
	doc.sequence = seq

	env := o.cfg.Env()
	issue := o.now()
	key, err := o.deps.Keys.Generate(sri.AccessKeyParams{
		IssueDate:     issue,
		DocumentType:  doc.docType,
		RUC:           o.cfg.RUC,
		Environment:   env,
		Establishment: o.cfg.Establishment,
		EmissionPoint: o.cfg.EmissionPoint,
		Sequence:      seq,
		EmissionType:  sri.EmissionTypeNormal,
	})
	if err != nil {
		return nil, err
	}
	number := sri.DocumentNumber(o.cfg.Establishment, o.cfg.EmissionPoint, seq)
	log = log.With().Str("access_key", key.String()).Str("document_number", number).Logger()

	// ═══════════════════════════════════════════════════════════════════════════
	// 3. XML y firma
	// ═══════════════════════════════════════════════════════════════════════════
	unsigned, err := doc.build(key, seq, issue)
	if err != nil {
		return nil, fmt.Errorf("construir XML: %w", err)
	}
	signed, err := o.sign(ctx, unsigned, doc.docType)
	if err != nil {
		log.Error().Err(err).Msg("sri: firma fallida")
		o.metrics.ObserveEmission(doc.docType, "ERROR_FIRMA", o.now().Sub(started))
		return nil, err
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 4. Envío: desde aquí el comprobante puede llegar al SRI y no se cancela con el llamador
	// ═══════════════════════════════════════════════════════════════════════════
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	state := &entity.EmissionState{
		AccessKey:      key.String(),
		SignedXML:      signed,
		DocumentNumber: number,
	}
	res, subErr := o.deps.Gateway.Submit(sctx, env, signed, key.String())
	status := o.apply(state, res, subErr)
	if state.Status == entity.EmissionRejected {
		// El número no se consume: el próximo intento genera clave nueva.
		state.SignedXML = nil
		state.DocumentNumber = ""
	}
	doc.advanced = state.Status != entity.EmissionRejected

	if err := o.persist(ctx, doc, state, log); err != nil {
		return nil, err
	}
	return o.finish(doc, state, status, subErr, started, log)
}

// resume reenvía un comprobante PENDING con la misma clave y los mismos bytes firmados.
func (o *Orchestrator) resume(ctx context.Context, doc *document, log zerolog.Logger) (*dto.EmissionOutcome, error) {
	started := o.now()
	state := doc.state

	if !state.HasAccessKey() {
		if !state.HasSignedXML() {
			return nil, fmt.Errorf("%w: comprobante %s pendiente sin clave de acceso ni XML firmado", domain.ErrInconsistentEmission, doc.id)
		}
		recovered, err := AccessKeyFromXML(state.SignedXML)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInconsistentEmission, err)
		}
		log.Warn().Str("access_key", recovered).Msg("sri: clave de acceso recuperada del XML firmado")
		state.AccessKey = recovered
	}
	key := sri.AccessKey(state.AccessKey)
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInconsistentEmission, err)
	}
	// El ambiente sale de la clave: un cambio de SRI_AMBIENTE no altera un envío en curso.
	env, err := sri.ParseEnvironment(key.EnvironmentDigit())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInconsistentEmission, err)
	}
	if state.DocumentNumber == "" {
		state.DocumentNumber, _ = key.DocumentNumber()
	}
	log = log.With().Str("access_key", key.String()).Bool("resume", true).Logger()

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	// ═══════════════════════════════════════════════════════════════════════════
	// Consulta previa: un intento anterior pudo haber quedado autorizado
	// ═══════════════════════════════════════════════════════════════════════════
	res, qErr := o.deps.Gateway.QueryAuthorization(sctx, env, key.String())
	if qErr == nil && res.Authorized() {
		if !state.HasSignedXML() && res.Comprobante != "" {
			state.SignedXML = []byte(res.Comprobante)
		}
		status := o.apply(&state, res, nil)
		if err := o.persist(ctx, doc, &state, log); err != nil {
			return nil, err
		}
		return o.finish(doc, &state, status, nil, started, log)
	}
	if !state.HasSignedXML() {
		detail := "el SRI no lo reporta como autorizado"
		if qErr != nil {
			detail = qErr.Error()
		}
		return nil, fmt.Errorf("%w: clave %s sin XML firmado (%s)", domain.ErrInconsistentEmission, key, detail)
	}

	res, subErr := o.deps.Gateway.Submit(sctx, env, state.SignedXML, key.String())
	status := o.apply(&state, res, subErr)
	if state.Status == entity.EmissionRejected {
		state.SignedXML = nil
	}
	if err := o.persist(ctx, doc, &state, log); err != nil {
		return nil, err
	}
	return o.finish(doc, &state, status, subErr, started, log)
}

// apply traduce el resultado del SRI al estado persistido y devuelve el estado a reportar.
func (o *Orchestrator) apply(state *entity.EmissionState, res *sri.AuthorityResult, subErr error) sri.AuthorityStatus {
	state.UpdatedAt = o.now()
	switch {
	case subErr != nil:
		state.Status = entity.EmissionPending
		state.Message = subErr.Error()
		return sri.StatusSinConexion
	case res.Authorized():
		state.Status = entity.EmissionAuthorized
		state.AuthorizationNumber = res.AuthorizationNumber
		if state.AuthorizationNumber == "" {
			state.AuthorizationNumber = state.AccessKey
		}
		state.AuthorizationDate = res.AuthorizationDate
		state.Message = ""
		return res.Status
	case res.Rejected():
		state.Status = entity.EmissionRejected
		state.Message = res.Message()
		return res.Status
	case res == nil:
		state.Status = entity.EmissionPending
		state.Message = "respuesta vacía del SRI"
		return sri.StatusEnProceso
	default:
		state.Status = entity.EmissionPending
		state.Message = res.Message()
		return res.Status
	}
}

// persist guarda el estado en una transacción propia, con plazo independiente del llamador y
// de la sesión con el SRI. Si el documento se quedó con su número avanza la serie; si quedó
// AUTHORIZED incrementa el contador de uso.
func (o *Orchestrator) persist(ctx context.Context, doc *document, state *entity.EmissionState, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	authorized := state.Status == entity.EmissionAuthorized
	countUsage := func(ctx context.Context, usage repository.UsageCounterRepository) error {
		if !authorized {
			return nil
		}
		_, err := usage.Increment(ctx, doc.counter)
		return err
	}
	err := o.deps.Tx.RunEmission(ctx, func(
		sales repository.SaleRepository,
		notes repository.CreditNoteRepository,
		seqs repository.SequenceRepository,
		usage repository.UsageCounterRepository,
	) error {
		if doc.advanced {
			if err := seqs.Advance(ctx, doc.series, doc.sequence); err != nil {
				return err
			}
		}
		if err := countUsage(ctx, usage); err != nil {
			return err
		}
		return doc.save(ctx, sales, notes, state)
	})
	if errors.Is(err, domain.ErrSequenceConflict) {
		log.Error().Err(err).Int64("sequence", doc.sequence).
			Msg("sri: el secuencial ya fue consumido por otra emisión; se guarda el estado sin avanzar la serie")
		err = o.deps.Tx.RunEmission(ctx, func(
			sales repository.SaleRepository,
			notes repository.CreditNoteRepository,
			_ repository.SequenceRepository,
			usage repository.UsageCounterRepository,
		) error {
			if err := countUsage(ctx, usage); err != nil {
				return err
			}
			return doc.save(ctx, sales, notes, state)
		})
	}
	if err != nil {
		log.Error().Err(err).Str("status", string(state.Status)).Msg("sri: no se pudo persistir el estado de emisión")
		return fmt.Errorf("persistir estado de emisión: %w", err)
	}
	if authorized && doc.authorized != nil {
		doc.authorized(ctx, state.AccessKey)
	}
	return nil
}

func (o *Orchestrator) finish(doc *document, state *entity.EmissionState, status sri.AuthorityStatus, subErr error, started time.Time, log zerolog.Logger) (*dto.EmissionOutcome, error) {
	o.metrics.ObserveEmission(doc.docType, string(status), o.now().Sub(started))

	out := &dto.EmissionOutcome{
		Success:             state.Status == entity.EmissionAuthorized,
		Status:              string(status),
		AccessKey:           state.AccessKey,
		AuthorizationNumber: state.AuthorizationNumber,
		AuthorizationDate:   state.AuthorizationDate,
		Message:             state.Message,
	}
	if state.Status != entity.EmissionRejected {
		out.AssignedDocumentNumber = state.DocumentNumber
	}

	ev := log.Info()
	if subErr != nil || state.Status == entity.EmissionRejected {
		ev = log.Warn().Err(subErr)
	}
	ev.Str("status", string(status)).Str("estado", string(state.Status)).Msg("sri: emisión procesada")

	if subErr != nil {
		return out, subErr
	}
	return out, nil
}

func (o *Orchestrator) sign(ctx context.Context, unsigned []byte, docType string) ([]byte, error) {
	stored, err := o.deps.Credentials.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("cargar certificado de firma: %w", err)
	}
	if stored == nil || len(stored.P12) == 0 {
		return nil, sri.NewSigningError("no hay certificado de firma cargado", domain.ErrCredentialNotLoaded)
	}
	cred := sri.Credential{P12: stored.P12, Password: stored.Password}
	if o.deps.CheckCredential != nil {
		if err := o.deps.CheckCredential(cred, o.now()); err != nil {
			return nil, asSigningError(err)
		}
	}
	signed, err := o.deps.Signer.Sign(ctx, unsigned, cred, sri.RootTagFor(docType))
	if err != nil {
		return nil, asSigningError(err)
	}
	return signed, nil
}

func asSigningError(err error) error {
	var se *sri.SigningError
	if errors.As(err, &se) {
		return err
	}
	return sri.NewSigningError("firma rechazada", err)
}

func (o *Orchestrator) customer(ctx context.Context, id string) (*entity.Customer, error) {
	if id == "" {
		return nil, nil // consumidor final
	}
	c, err := o.deps.Customers.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cargar cliente %s: %w", id, err)
	}
	if c == nil {
		return nil, fmt.Errorf("cliente %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (o *Orchestrator) taxes(items []entity.SaleItem, log zerolog.Logger) (*domsri.Breakdown, error) {
	b, err := domsri.Compute(items, domsri.Rates{
		Standard: decimal.NewFromInt(int64(o.cfg.StandardVATRate)),
		Reduced:  decimal.NewFromInt(int64(o.cfg.ReducedVATRate)),
	})
	if err != nil {
		log.Warn().Err(err).Msg("sri: no se pudieron calcular los impuestos")
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return b, nil
}

func (o *Orchestrator) issuer() infrasri.Issuer {
	return infrasri.Issuer{
		Environment:          o.cfg.Env(),
		RUC:                  o.cfg.RUC,
		BusinessName:         o.cfg.BusinessName,
		TradeName:            o.cfg.TradeName,
		MainAddress:          o.cfg.MainAddress,
		EstablishmentAddress: o.cfg.EstablishmentAddress,
		Establishment:        o.cfg.Establishment,
		EmissionPoint:        o.cfg.EmissionPoint,
		Regime:               o.cfg.Regime,
		KeepsAccounting:      o.cfg.KeepsAccounting,
		SpecialTaxpayer:      o.cfg.SpecialTaxpayer,
	}
}

// lockSeries toma la serie o se rinde cuando vence ctx o la espera máxima.
func (o *Orchestrator) lockSeries(ctx context.Context, key string) (func(), error) {
	o.seriesMu.Lock()
	sem, ok := o.series[key]
	if !ok {
		sem = make(chan struct{}, 1)
		o.series[key] = sem
	}
	o.seriesMu.Unlock()

	wait := time.NewTimer(o.seriesWait)
	defer wait.Stop()
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("serie %s: %w: %w", key, domain.ErrSeriesBusy, ctx.Err())
	case <-wait.C:
		return nil, fmt.Errorf("serie %s: %w", key, domain.ErrSeriesBusy)
	}
}

// AccessKeyFromXML lee infoTributaria/claveAcceso de un comprobante firmado.
func AccessKeyFromXML(signed []byte) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signed); err != nil {
		return "", fmt.Errorf("leer XML firmado: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return "", errors.New("XML firmado sin nodo raíz")
	}
	el := root.FindElement("./infoTributaria/claveAcceso")
	if el == nil || el.Text() == "" {
		return "", errors.New("XML firmado sin infoTributaria/claveAcceso")
	}
	return el.Text(), nil
}
