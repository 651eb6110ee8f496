// Package sri contiene el cálculo de impuestos por línea y por tarifa de IVA que
// alimenta los totales de los comprobantes electrónicos del SRI.
package sri

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

// Bucket grupo de tarifa de IVA.
type Bucket string

const (
	BucketExempt   Bucket = "exempt"   // 0%, exento, no objeto
	BucketReduced  Bucket = "reduced"  // tarifa reducida (5%)
	BucketStandard Bucket = "standard" // tarifa general (15%, o tarifas históricas)
)

var hundred = decimal.NewFromInt(100)

// Rates tarifas vigentes del perfil tributario.
type Rates struct {
	Standard decimal.Decimal
	Reduced  decimal.Decimal
}

// DefaultRates tarifas vigentes desde abril de 2024.
func DefaultRates() Rates {
	return Rates{Standard: decimal.NewFromInt(15), Reduced: decimal.NewFromInt(5)}
}

// LineTax impuesto calculado de una línea.
type LineTax struct {
	Item        entity.SaleItem
	Base        decimal.Decimal // precioTotalSinImpuesto, 2 decimales
	Tax         decimal.Decimal // valor del IVA, 2 decimales
	Rate        decimal.Decimal
	PercentCode string
	Bucket      Bucket
}

// TaxTotal total por código de porcentaje.
type TaxTotal struct {
	PercentCode string
	Rate        decimal.Decimal
	Bucket      Bucket
	Base        decimal.Decimal
	Tax         decimal.Decimal
}

// Breakdown desglose completo de un comprobante.
type Breakdown struct {
	Lines         []LineTax
	Totals        []TaxTotal // ordenados por código de porcentaje
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	TotalTax      decimal.Decimal
	Total         decimal.Decimal
}

// Compute calcula base e IVA por línea, redondeando cada línea a 2 decimales, y
// agrega por código de porcentaje. Los totales son la suma de los valores ya
// redondeados, así que sumar de nuevo las líneas reproduce los totales.
func Compute(items []entity.SaleItem, rates Rates) (*Breakdown, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("sri: el comprobante debe tener al menos una línea")
	}
	b := &Breakdown{}
	byCode := map[string]*TaxTotal{}
	for _, it := range items {
		code, bucket, err := classify(it, rates)
		if err != nil {
			return nil, fmt.Errorf("línea %q: %w", it.Description, err)
		}
		base := it.Quantity.Mul(it.UnitPrice).Sub(it.Discount).Round(2)
		rate := it.VATRate
		if bucket == BucketExempt {
			rate = decimal.Zero
		}
		tax := base.Mul(rate).Div(hundred).Round(2)

		b.Lines = append(b.Lines, LineTax{
			Item:        it,
			Base:        base,
			Tax:         tax,
			Rate:        rate,
			PercentCode: code,
			Bucket:      bucket,
		})
		t, ok := byCode[code]
		if !ok {
			t = &TaxTotal{PercentCode: code, Rate: rate, Bucket: bucket}
			byCode[code] = t
		}
		t.Base = t.Base.Add(base)
		t.Tax = t.Tax.Add(tax)

		b.Subtotal = b.Subtotal.Add(base)
		b.TotalDiscount = b.TotalDiscount.Add(it.Discount.Round(2))
		b.TotalTax = b.TotalTax.Add(tax)
	}
	codes := make([]string, 0, len(byCode))
	for c := range byCode {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	for _, c := range codes {
		b.Totals = append(b.Totals, *byCode[c])
	}
	b.Total = b.Subtotal.Add(b.TotalTax)
	return b, nil
}

// MatchesStored compara el total calculado con el guardado por el POS.
// Una diferencia no bloquea la emisión: el SRI es quien rechaza.
func (b *Breakdown) MatchesStored(stored decimal.Decimal) bool {
	return b.Total.Equal(stored.Round(2))
}

func classify(it entity.SaleItem, rates Rates) (string, Bucket, error) {
	if it.Exempt {
		return sri.VATPercentExempt, BucketExempt, nil
	}
	if it.VATRate.IsZero() {
		return sri.VATPercentZero, BucketExempt, nil
	}
	code, ok := sri.VATPercentCodes[it.VATRate.IntPart()]
	if !ok || !it.VATRate.IsInteger() {
		return "", "", fmt.Errorf("%w: %s%%", sri.ErrUnsupportedVATRate, it.VATRate.String())
	}
	if it.VATRate.Equal(rates.Reduced) {
		return code, BucketReduced, nil
	}
	return code, BucketStandard, nil
}
