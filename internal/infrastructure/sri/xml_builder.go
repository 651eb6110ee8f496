package sri

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-sri/internal/domain/entity"
	domsri "github.com/jhoicas/facturacion-sri/internal/domain/sri"
	"github.com/jhoicas/facturacion-sri/pkg/sri"
)

// XMLBuilderService construye el XML sin firmar de facturas y notas de crédito.
type XMLBuilderService struct{}

// NewXMLBuilderService construye el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// BuildInvoice genera <factura id="comprobante" version="2.0.0">.
// encoding/xml escribe siempre etiqueta de cierre explícita, nunca <x/>.
func (s *XMLBuilderService) BuildInvoice(ctx *InvoiceBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Sale == nil || ctx.Taxes == nil {
		return nil, fmt.Errorf("sri xml: se requieren venta y desglose de impuestos")
	}
	w := newXMLWriter()
	w.open("factura", attr("id", sri.DocumentNodeID), attr("version", sri.InvoiceSchemaVersion))

	// ═══ infoTributaria ═══
	writeInfoTributaria(w, ctx.Issuer, ctx.AccessKey, sri.DocumentTypeInvoice, ctx.Sequence)

	// ═══ infoFactura ═══
	buyer := buyerOf(ctx.Customer)
	taxes := ctx.Taxes
	w.open("infoFactura")
	w.leaf("fechaEmision", formatDate(ctx.IssueDate))
	w.leaf("dirEstablecimiento", field(ctx.Issuer.EstablishmentAddress, maxAddress))
	if ctx.Issuer.SpecialTaxpayer != "" {
		w.leaf("contribuyenteEspecial", ctx.Issuer.SpecialTaxpayer)
	}
	w.leaf("obligadoContabilidad", yesNo(ctx.Issuer.KeepsAccounting))
	w.leaf("tipoIdentificacionComprador", buyer.idType)
	w.leaf("razonSocialComprador", buyer.name)
	w.leaf("identificacionComprador", buyer.id)
	if buyer.address != "" {
		w.leaf("direccionComprador", buyer.address)
	}
	w.leaf("totalSinImpuestos", money(taxes.Subtotal))
	w.leaf("totalDescuento", money(taxes.TotalDiscount))
	w.open("totalConImpuestos")
	for _, t := range taxes.Totals {
		w.open("totalImpuesto")
		w.leaf("codigo", sri.TaxCodeIVA)
		w.leaf("codigoPorcentaje", t.PercentCode)
		w.leaf("baseImponible", money(t.Base))
		w.leaf("valor", money(t.Tax))
		w.close("totalImpuesto")
	}
	w.close("totalConImpuestos")
	w.leaf("propina", money(decimal.Zero))
	w.leaf("importeTotal", money(taxes.Total))
	w.leaf("moneda", sri.CurrencyDollar)
	w.open("pagos")
	w.open("pago")
	w.leaf("formaPago", PaymentCodeFor(ctx.Sale.PaymentMethod))
	w.leaf("total", money(taxes.Total))
	w.close("pago")
	w.close("pagos")
	w.close("infoFactura")

	// ═══ detalles ═══
	writeDetails(w, taxes.Lines, "codigoPrincipal")

	// ═══ infoAdicional ═══
	writeAdditionalInfo(w, ctx.Customer)

	w.close("factura")
	return w.bytes()
}

// BuildCreditNote genera <notaCredito id="comprobante" version="1.1.0">.
func (s *XMLBuilderService) BuildCreditNote(ctx *CreditNoteBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Note == nil || ctx.Taxes == nil {
		return nil, fmt.Errorf("sri xml: se requieren nota de crédito y desglose de impuestos")
	}
	if ctx.ModifiedDocumentNumber == "" {
		return nil, fmt.Errorf("sri xml: la nota de crédito debe referenciar la factura modificada")
	}
	w := newXMLWriter()
	w.open("notaCredito", attr("id", sri.DocumentNodeID), attr("version", sri.CreditNoteSchemaVersion))

	writeInfoTributaria(w, ctx.Issuer, ctx.AccessKey, sri.DocumentTypeCreditNote, ctx.Sequence)

	buyer := buyerOf(ctx.Customer)
	taxes := ctx.Taxes
	w.open("infoNotaCredito")
	w.leaf("fechaEmision", formatDate(ctx.IssueDate))
	w.leaf("dirEstablecimiento", field(ctx.Issuer.EstablishmentAddress, maxAddress))
	w.leaf("tipoIdentificacionComprador", buyer.idType)
	w.leaf("razonSocialComprador", buyer.name)
	w.leaf("identificacionComprador", buyer.id)
	if ctx.Issuer.SpecialTaxpayer != "" {
		w.leaf("contribuyenteEspecial", ctx.Issuer.SpecialTaxpayer)
	}
	w.leaf("obligadoContabilidad", yesNo(ctx.Issuer.KeepsAccounting))
	w.leaf("codDocModificado", sri.DocumentTypeInvoice)
	w.leaf("numDocModificado", ctx.ModifiedDocumentNumber)
	w.leaf("fechaEmisionDocSustento", formatDate(ctx.ModifiedDocumentDate))
	w.leaf("totalSinImpuestos", money(taxes.Subtotal))
	w.leaf("valorModificacion", money(taxes.Total))
	w.leaf("moneda", sri.CurrencyDollar)
	w.open("totalConImpuestos")
	for _, t := range taxes.Totals {
		w.open("totalImpuesto")
		w.leaf("codigo", sri.TaxCodeIVA)
		w.leaf("codigoPorcentaje", t.PercentCode)
		w.leaf("baseImponible", money(t.Base))
		w.leaf("valor", money(t.Tax))
		w.close("totalImpuesto")
	}
	w.close("totalConImpuestos")
	reason := field(ctx.Note.Reason, maxReason)
	if reason == "" {
		reason = "DEVOLUCION"
	}
	w.leaf("motivo", reason)
	w.close("infoNotaCredito")

	writeDetails(w, taxes.Lines, "codigoInterno")
	writeAdditionalInfo(w, ctx.Customer)

	w.close("notaCredito")
	return w.bytes()
}

func writeInfoTributaria(w *xmlWriter, is Issuer, key sri.AccessKey, docType string, seq int64) {
	w.open("infoTributaria")
	w.leaf("ambiente", is.Environment.Code())
	w.leaf("tipoEmision", sri.EmissionTypeNormal)
	w.leaf("razonSocial", field(is.BusinessName, maxBusinessName))
	if tn := field(is.TradeName, maxBusinessName); tn != "" {
		w.leaf("nombreComercial", tn)
	}
	w.leaf("ruc", is.RUC)
	w.leaf("claveAcceso", key.String())
	w.leaf("codDoc", docType)
	w.leaf("estab", is.Establishment)
	w.leaf("ptoEmi", is.EmissionPoint)
	w.leaf("secuencial", sri.FormatSequence(seq))
	w.leaf("dirMatriz", field(is.MainAddress, maxAddress))
	if legend := sri.RegimeLegend(is.Regime); legend != "" {
		w.leaf("contribuyenteRimpe", legend)
	}
	w.close("infoTributaria")
}

func writeDetails(w *xmlWriter, lines []domsri.LineTax, codeTag string) {
	w.open("detalles")
	for _, l := range lines {
		w.open("detalle")
		code := field(l.Item.ProductCode, maxCode)
		if code == "" {
			code = "SIN-CODIGO"
		}
		w.leaf(codeTag, code)
		w.leaf("descripcion", field(l.Item.Description, maxDescription))
		w.leaf("cantidad", quantity(l.Item.Quantity))
		w.leaf("precioUnitario", quantity(l.Item.UnitPrice))
		w.leaf("descuento", money(l.Item.Discount))
		w.leaf("precioTotalSinImpuesto", money(l.Base))
		w.open("impuestos")
		w.open("impuesto")
		w.leaf("codigo", sri.TaxCodeIVA)
		w.leaf("codigoPorcentaje", l.PercentCode)
		w.leaf("tarifa", money(l.Rate))
		w.leaf("baseImponible", money(l.Base))
		w.leaf("valor", money(l.Tax))
		w.close("impuesto")
		w.close("impuestos")
		w.close("detalle")
	}
	w.close("detalles")
}

// writeAdditionalInfo omite el bloque completo si no hay campos: un campoAdicional vacío es rechazado.
func writeAdditionalInfo(w *xmlWriter, c *entity.Customer) {
	if c == nil {
		return
	}
	fields := []struct{ name, value string }{
		{"Email", field(c.Email, maxAdditional)},
		{"Direccion", field(c.Address, maxAdditional)},
		{"Telefono", field(c.Phone, maxAdditional)},
	}
	var present bool
	for _, f := range fields {
		if f.value != "" {
			present = true
			break
		}
	}
	if !present {
		return
	}
	w.open("infoAdicional")
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		w.open("campoAdicional", attr("nombre", f.name))
		w.text(f.value)
		w.close("campoAdicional")
	}
	w.close("infoAdicional")
}

type buyer struct {
	idType, id, name, address string
}

func buyerOf(c *entity.Customer) buyer {
	if c.IsFinalConsumer() {
		return buyer{
			idType: sri.BuyerIDTypeConsumidor,
			id:     sri.FinalConsumerID,
			name:   sri.FinalConsumerName,
		}
	}
	id := strings.TrimSpace(c.Identification)
	name := field(c.Name, maxBusinessName)
	if name == "" {
		name = sri.FinalConsumerName
	}
	return buyer{
		idType:  sri.BuyerIdentificationType(c.IdentificationType, id),
		id:      id,
		name:    name,
		address: field(c.Address, maxAddress),
	}
}

// PaymentCodeFor traduce el medio de pago del POS a la tabla 24 del SRI.
func PaymentCodeFor(method string) string {
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case "TRANSFERENCIA", "DEPOSITO", "DEPÓSITO":
		return sri.PaymentOtrosSistemaFinanc
	case "TARJETA", "TARJETA_CREDITO":
		return sri.PaymentTarjetaCredito
	case "TARJETA_DEBITO":
		return sri.PaymentTarjetaDebito
	}
	return sri.PaymentSinSistemaFinanciero
}

func money(d decimal.Decimal) string    { return d.Round(2).StringFixed(2) }
func quantity(d decimal.Decimal) string { return d.Round(6).StringFixed(6) }
func formatDate(t time.Time) string     { return t.Format("02/01/2006") }

func yesNo(b bool) string {
	if b {
		return "SI"
	}
	return "NO"
}

// ─── xmlWriter ─────────────────────────────────────────────

// xmlWriter envuelve xml.Encoder guardando el primer error.
type xmlWriter struct {
	buf bytes.Buffer
	enc *xml.Encoder
	err error
}

func newXMLWriter() *xmlWriter {
	w := &xmlWriter{}
	w.buf.WriteString(xml.Header)
	w.enc = xml.NewEncoder(&w.buf)
	w.enc.Indent("", "  ")
	return w
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func (w *xmlWriter) token(t xml.Token) {
	if w.err != nil {
		return
	}
	w.err = w.enc.EncodeToken(t)
}

func (w *xmlWriter) open(local string, attrs ...xml.Attr) {
	w.token(xml.StartElement{Name: xml.Name{Local: local}, Attr: attrs})
}

func (w *xmlWriter) close(local string) {
	w.token(xml.EndElement{Name: xml.Name{Local: local}})
}

func (w *xmlWriter) text(s string) {
	w.token(xml.CharData(s))
}

func (w *xmlWriter) leaf(local, value string) {
	w.open(local)
	w.text(value)
	w.close(local)
}

func (w *xmlWriter) bytes() ([]byte, error) {
	if w.err == nil {
		w.err = w.enc.Flush()
	}
	if w.err != nil {
		return nil, fmt.Errorf("sri xml: %w", w.err)
	}
	return w.buf.Bytes(), nil
}
