// sri_cert diagnostica un certificado de firma electrónica (.p12) y, con -import,
// lo carga como credencial activa en sri_credentials.
//
// Uso:
//
//	go run ./cmd/sri_cert [-p12 ruta] [-password clave] [-import]
//
// Sin flags usa SRI_CERT_PATH y SRI_CERT_PASSWORD.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/internal/infrastructure/postgres"
	"github.com/jhoicas/facturacion-sri/internal/infrastructure/sri/signer"
	"github.com/jhoicas/facturacion-sri/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargar configuración: %v\n", err)
		os.Exit(1)
	}
	var (
		certPath = flag.String("p12", cfg.SRI.CertPath, "ruta del archivo .p12")
		certPass = flag.String("password", cfg.SRI.CertPassword, "contraseña del .p12")
		doImport = flag.Bool("import", false, "guardar como credencial activa")
	)
	flag.Parse()

	fmt.Println("🔍 DIAGNÓSTICO DE CERTIFICADO SRI")
	fmt.Println("----------------------------------")
	fmt.Printf("📂 Intentando leer: %s\n", *certPath)

	p12Data, err := os.ReadFile(*certPath)
	if err != nil {
		fmt.Println("\n❌ ERROR DE ARCHIVO:")
		fmt.Printf("   Detalle técnico: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Archivo encontrado. Tamaño: %d bytes\n", len(p12Data))

	fmt.Println("\n🔐 Intentando decodificar PKCS#12 con la contraseña...")
	kp, err := signer.DecodeP12(p12Data, *certPass)
	if err != nil {
		fmt.Println("\n❌ ERROR DE CONTRASEÑA O FORMATO:")
		fmt.Printf("   Detalle técnico: %v\n", err)
		os.Exit(1)
	}

	now := time.Now()
	_, issuer, serial := signer.CertDigestAndIssuerSerial(kp.Cert)
	fmt.Printf("   Titular:  %s\n", kp.Cert.Subject.String())
	fmt.Printf("   Emisor:   %s\n", issuer)
	fmt.Printf("   Serie:    %s\n", serial)
	fmt.Printf("   Vigencia: %s → %s\n", kp.Cert.NotBefore.Format("02/01/2006"), kp.Cert.NotAfter.Format("02/01/2006"))

	if err := signer.CheckValidity(kp.Cert, now); err != nil {
		fmt.Println("\n❌ CERTIFICADO NO VIGENTE:")
		fmt.Printf("   %v\n", err)
		os.Exit(1)
	}
	if days := int(kp.Cert.NotAfter.Sub(now).Hours() / 24); days <= 30 {
		fmt.Printf("\n⚠️  El certificado vence en %d días\n", days)
	}
	fmt.Println("\n✨ ¡ÉXITO! El certificado y la contraseña son correctos.")

	if !*doImport {
		return
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "conexión a PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	cred := &entity.SigningCredential{
		P12:      p12Data,
		Password: *certPass,
		Subject:  kp.Cert.Subject.CommonName,
		NotAfter: kp.Cert.NotAfter,
	}
	if err := postgres.NewCredentialRepository(pool).Save(ctx, cred); err != nil {
		fmt.Fprintf(os.Stderr, "guardar credencial: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("💾 Credencial %s activa; las anteriores quedaron desactivadas\n", cred.ID)
}
