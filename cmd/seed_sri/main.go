// seed_sri prepara la base de datos de emisión electrónica SRI.
//
// Uso:
//
//	go run ./cmd/seed_sri -sql esquema.sql            # solo escribe el esquema a un archivo
//	go run ./cmd/seed_sri -apply                      # crea las tablas en la DB configurada
//	go run ./cmd/seed_sri -factura 1532 -nota 48      # próximos secuenciales (migración desde otro sistema)
//	go run ./cmd/seed_sri -clientes clientes.csv -latin1
//	go run ./cmd/seed_sri -token cajero -usuario caja1  # token de operador para el POS
//
// El CSV de clientes usa ';' como separador: identificacion;nombre;direccion;email;telefono.
// Los secuenciales se siembran para el establecimiento, punto y ambiente de la configuración.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/internal/infrastructure/postgres"
	"github.com/jhoicas/facturacion-sri/pkg/config"
	"github.com/jhoicas/facturacion-sri/pkg/jwt"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

func main() {
	var (
		sqlOut   = flag.String("sql", "", "escribe el esquema en este archivo y termina")
		apply    = flag.Bool("apply", false, "crea las tablas en la base de datos")
		invoices = flag.Int64("factura", 0, "próximo secuencial de facturas")
		notes    = flag.Int64("nota", 0, "próximo secuencial de notas de crédito")
		clients  = flag.String("clientes", "", "CSV de clientes a importar")
		latin1   = flag.Bool("latin1", false, "el CSV está en ISO-8859-1 (exportaciones de Excel)")
		role     = flag.String("token", "", "emite un token de operador con este rol (admin, cajero, contador) y termina")
		user     = flag.String("usuario", "pos", "usuario del token de operador")
		minutes  = flag.Int("minutos", 0, "vigencia del token; 0 usa JWT_EXPIRATION_MINUTES")
	)
	flag.Parse()

	if *sqlOut != "" {
		if err := writeSchema(*sqlOut); err != nil {
			fail("Escribir esquema", err)
		}
		fmt.Printf("Generado: %s\n", *sqlOut)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fail("Cargar configuración", err)
	}
	if *role != "" {
		tok, err := operatorToken(cfg, *role, *user, *minutes)
		if err != nil {
			fail("Emitir token", err)
		}
		fmt.Println(tok)
		return
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		fail("Conectar a PostgreSQL", err)
	}
	defer pool.Close()

	if *apply {
		if err := postgres.Migrate(ctx, pool); err != nil {
			fail("Crear tablas", err)
		}
		fmt.Println("Esquema aplicado")
	}

	seqRepo := postgres.NewSequenceRepository(pool)
	for docType, next := range map[string]int64{
		sri.DocumentTypeInvoice:    *invoices,
		sri.DocumentTypeCreditNote: *notes,
	} {
		if next <= 0 {
			continue
		}
		series := entity.SequenceSeries{
			Establishment: cfg.SRI.Establishment,
			EmissionPoint: cfg.SRI.EmissionPoint,
			DocumentType:  docType,
			Environment:   cfg.SRI.Environment,
		}
		if err := seqRepo.Seed(ctx, series, next); err != nil {
			fail("Sembrar secuencial", err)
		}
		fmt.Printf("Serie %s: próximo secuencial %09d\n", series.Key(), next)
	}

	if *clients != "" {
		f, err := os.Open(*clients)
		if err != nil {
			fail("Abrir CSV", err)
		}
		defer f.Close()

		var r io.Reader = f
		if *latin1 {
			r = transform.NewReader(f, charmap.ISO8859_1.NewDecoder())
		}
		customers, skipped, err := parseCustomers(r)
		if err != nil {
			fail("Leer CSV", err)
		}
		customerRepo := postgres.NewCustomerRepository(pool)
		inserted := 0
		for i := range customers {
			ok, err := customerRepo.Import(ctx, &customers[i])
			if err != nil {
				fail("Importar cliente", err)
			}
			if ok {
				inserted++
			}
		}
		fmt.Printf("Clientes: %d importados, %d ya existían, %d filas inválidas\n",
			inserted, len(customers)-inserted, skipped)
	}
}

// operatorToken firma un token acotado al establecimiento configurado.
func operatorToken(cfg *config.Config, role, user string, minutes int) (string, error) {
	switch role {
	case jwt.RoleAdmin, jwt.RoleCashier, jwt.RoleAuditor:
	default:
		return "", fmt.Errorf("rol desconocido %q", role)
	}
	if minutes <= 0 {
		minutes = cfg.JWT.Expiration
	}
	return jwt.Generate(cfg.JWT.Secret, user, cfg.SRI.Establishment, role, cfg.JWT.Issuer, minutes)
}

func writeSchema(path string) error {
	ms, err := postgres.Migrations()
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, m := range ms {
		fmt.Fprintf(&b, "-- %s\n%s\n", m.Name, m.SQL)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// parseCustomers lee el CSV de clientes. Las filas sin identificación o nombre se omiten;
// la primera fila se descarta si es encabezado.
func parseCustomers(r io.Reader) ([]entity.Customer, int, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		out     []entity.Customer
		skipped int
		first   = true
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, err
		}
		if first {
			first = false
			if len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "identificacion") {
				continue
			}
		}
		field := func(i int) string {
			if i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		id, name := field(0), field(1)
		if id == "" || name == "" || id == sri.FinalConsumerID {
			skipped++
			continue
		}
		out = append(out, entity.Customer{
			IdentificationType: identificationType(id),
			Identification:     id,
			Name:               name,
			Address:            field(2),
			Email:              field(3),
			Phone:              field(4),
		})
	}
	return out, skipped, nil
}

func identificationType(id string) string {
	switch sri.BuyerIdentificationType("", id) {
	case sri.BuyerIDTypeRUC:
		return "RUC"
	case sri.BuyerIDTypeCedula:
		return "CEDULA"
	}
	return "PASAPORTE"
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}
