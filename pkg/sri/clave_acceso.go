package sri

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// AccessKeyLength longitud fija de la clave de acceso.
const AccessKeyLength = 49

// Posiciones (base 0) de los segmentos dentro de la clave.
const (
	keyDateEnd        = 8
	keyDocTypeEnd     = 10
	keyRUCEnd         = 23
	keyEnvironmentEnd = 24
	keyEstabEnd       = 27
	keyPointEnd       = 30
	keySequenceEnd    = 39
	keyNonceEnd       = 47
)

// AccessKey clave de acceso de 49 dígitos de un comprobante.
type AccessKey string

// AccessKeyParams campos que componen la clave, en el orden de la ficha técnica.
type AccessKeyParams struct {
	IssueDate     time.Time
	DocumentType  string // 2 dígitos: 01 factura, 04 nota de crédito
	RUC           string // 13 dígitos
	Environment   Environment
	Establishment string // 3 dígitos
	EmissionPoint string // 3 dígitos
	Sequence      int64  // se rellena a 9 dígitos
	EmissionType  string // 1 dígito, normalmente EmissionTypeNormal
}

// NonceFunc devuelve el código numérico aleatorio de 8 dígitos.
type NonceFunc func() (string, error)

// AccessKeyGenerator genera claves de acceso. Lo único no determinista es el código numérico.
type AccessKeyGenerator struct {
	nonce NonceFunc
}

// NewAccessKeyGenerator construye el generador con un código numérico de crypto/rand.
func NewAccessKeyGenerator() *AccessKeyGenerator {
	return &AccessKeyGenerator{nonce: randomNonce}
}

// NewAccessKeyGeneratorWithNonce permite fijar el código numérico (tests, reproducción de claves).
func NewAccessKeyGeneratorWithNonce(fn NonceFunc) *AccessKeyGenerator {
	if fn == nil {
		fn = randomNonce
	}
	return &AccessKeyGenerator{nonce: fn}
}

// Generate arma la clave: fecha(8) + tipo(2) + RUC(13) + ambiente(1) + estab(3) +
// ptoEmi(3) + secuencial(9) + código numérico(8) + tipo emisión(1) + dígito verificador(1).
func (g *AccessKeyGenerator) Generate(p AccessKeyParams) (AccessKey, error) {
	if p.IssueDate.IsZero() {
		return "", fmt.Errorf("%w: fecha de emisión vacía", ErrInvalidAccessKeyInput)
	}
	if !p.Environment.Valid() {
		return "", fmt.Errorf("%w: ambiente %d", ErrInvalidAccessKeyInput, int(p.Environment))
	}
	if p.Sequence < 1 || p.Sequence > 999999999 {
		return "", fmt.Errorf("%w: secuencial %d fuera de rango", ErrInvalidAccessKeyInput, p.Sequence)
	}
	emissionType := p.EmissionType
	if emissionType == "" {
		emissionType = EmissionTypeNormal
	}
	fields := []struct {
		name, value string
		width       int
	}{
		{"tipo de comprobante", p.DocumentType, 2},
		{"RUC", p.RUC, 13},
		{"establecimiento", p.Establishment, 3},
		{"punto de emisión", p.EmissionPoint, 3},
		{"tipo de emisión", emissionType, 1},
	}
	for _, f := range fields {
		if len(f.value) != f.width || !isDigits(f.value) {
			return "", fmt.Errorf("%w: %s debe tener %d dígitos, se recibió %q", ErrInvalidAccessKeyInput, f.name, f.width, f.value)
		}
	}

	nonce, err := g.nonce()
	if err != nil {
		return "", fmt.Errorf("sri: código numérico: %w", err)
	}
	if len(nonce) != 8 || !isDigits(nonce) {
		return "", fmt.Errorf("%w: código numérico %q", ErrInvalidAccessKeyInput, nonce)
	}

	base := p.IssueDate.Format("02012006") +
		p.DocumentType +
		p.RUC +
		p.Environment.Code() +
		p.Establishment +
		p.EmissionPoint +
		FormatSequence(p.Sequence) +
		nonce +
		emissionType

	dv, err := CheckDigit(base)
	if err != nil {
		return "", err
	}
	return AccessKey(base + string(dv)), nil
}

// CheckDigit calcula el dígito verificador módulo 11 de los 48 dígitos previos.
// Pesos 2..7 desde el dígito más a la derecha; 11 → 0 y 10 → 1.
func CheckDigit(digits string) (byte, error) {
	if len(digits) != AccessKeyLength-1 || !isDigits(digits) {
		return 0, fmt.Errorf("%w: se esperaban %d dígitos, se recibieron %q", ErrInvalidAccessKeyInput, AccessKeyLength-1, digits)
	}
	sum := 0
	for i := 0; i < len(digits); i++ {
		d := int(digits[len(digits)-1-i] - '0')
		sum += d * (2 + i%6)
	}
	check := 11 - sum%11
	switch check {
	case 11:
		check = 0
	case 10:
		check = 1
	}
	return byte('0' + check), nil
}

// Validate verifica longitud, que sean dígitos y el dígito verificador.
func (k AccessKey) Validate() error {
	s := string(k)
	if len(s) != AccessKeyLength || !isDigits(s) {
		return fmt.Errorf("%w: %q", ErrInvalidAccessKey, s)
	}
	dv, err := CheckDigit(s[:AccessKeyLength-1])
	if err != nil {
		return err
	}
	if s[AccessKeyLength-1] != dv {
		return fmt.Errorf("%w: dígito verificador esperado %c, recibido %c", ErrInvalidAccessKey, dv, s[AccessKeyLength-1])
	}
	return nil
}

func (k AccessKey) String() string { return string(k) }

// EnvironmentDigit devuelve el dígito de ambiente (posición 24).
func (k AccessKey) EnvironmentDigit() string {
	if len(k) != AccessKeyLength {
		return ""
	}
	return string(k[keyRUCEnd:keyEnvironmentEnd])
}

// DocumentType devuelve el tipo de comprobante embebido.
func (k AccessKey) DocumentType() string {
	if len(k) != AccessKeyLength {
		return ""
	}
	return string(k[keyDateEnd:keyDocTypeEnd])
}

// Sequence devuelve el secuencial embebido.
func (k AccessKey) Sequence() (int64, error) {
	if len(k) != AccessKeyLength {
		return 0, ErrInvalidAccessKey
	}
	return strconv.ParseInt(string(k[keyPointEnd:keySequenceEnd]), 10, 64)
}

// IssueDate devuelve la fecha de emisión embebida (ddmmaaaa).
func (k AccessKey) IssueDate() (time.Time, error) {
	if len(k) != AccessKeyLength {
		return time.Time{}, ErrInvalidAccessKey
	}
	return time.Parse("02012006", string(k[:keyDateEnd]))
}

// DocumentNumber reconstruye el número legal "EEE-PPP-SSSSSSSSS" desde la clave.
func (k AccessKey) DocumentNumber() (string, error) {
	seq, err := k.Sequence()
	if err != nil {
		return "", err
	}
	return DocumentNumber(string(k[keyEnvironmentEnd:keyEstabEnd]), string(k[keyEstabEnd:keyPointEnd]), seq), nil
}

// Nonce devuelve el código numérico de 8 dígitos.
func (k AccessKey) Nonce() string {
	if len(k) != AccessKeyLength {
		return ""
	}
	return string(k[keySequenceEnd:keyNonceEnd])
}

// FormatSequence rellena el secuencial a 9 dígitos.
func FormatSequence(seq int64) string {
	return fmt.Sprintf("%09d", seq)
}

// DocumentNumber arma el número legal "EEE-PPP-SSSSSSSSS".
func DocumentNumber(establishment, emissionPoint string, seq int64) string {
	return establishment + "-" + emissionPoint + "-" + FormatSequence(seq)
}

func randomNonce() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%08d", n.Int64()), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
