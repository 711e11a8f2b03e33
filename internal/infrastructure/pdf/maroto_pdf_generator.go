// Package pdf genera la representación impresa de un CFDI validado.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Emisor + RFC        │  Serie-Folio + Fecha + Tipo   │
//	│  RECEPTOR: Nombre + RFC + Uso CFDI                           │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Cant | Clave | Descripción | V. Unit | Importe        │
//	│  TOTALES: Subtotal / Descuento / Traslados / Retenciones      │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TIMBRE: UUID + QR + sellos + cadena original del timbre     │
//	│  VALIDACIÓN: resultado + diagnósticos                        │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-validator/internal/domain/entity"
	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorWhite   = &props.Color{Red: 255, Green: 255, Blue: 255}
	colorRed     = &props.Color{Red: 170, Green: 20, Blue: 20}
	colorGreen   = &props.Color{Red: 20, Green: 120, Blue: 40}
)

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoPDFGenerator representación impresa con Maroto v2.
type MarotoPDFGenerator struct {
	chains *cfdi.ChainGenerator
}

// NewMarotoPDFGenerator construye el generador; chains deriva la cadena original del timbre.
func NewMarotoPDFGenerator(chains *cfdi.ChainGenerator) *MarotoPDFGenerator {
	return &MarotoPDFGenerator{chains: chains}
}

// Generate genera el PDF y devuelve sus bytes. report es opcional: sin él se omite
// el bloque de validación.
func (g *MarotoPDFGenerator) Generate(comprobante *cfdi.Node, report *entity.ValidationReport) ([]byte, error) {
	if comprobante == nil || !cfdi.IsComprobante(comprobante) {
		return nil, fmt.Errorf("pdf: se requiere un nodo Comprobante")
	}
	emisor := comprobante.Child(cfdi.SlotEmisor)
	receptor := comprobante.Child(cfdi.SlotReceptor)
	if emisor == nil || receptor == nil {
		return nil, fmt.Errorf("pdf: el comprobante no tiene emisor o receptor")
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Representación impresa de un CFDI", true).
		WithAuthor(emisor.Value("Rfc"), true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(comprobante, emisor))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(receptorRow(receptor))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	m.AddRows(tableDetailRows(comprobante.Find(cfdi.SlotConceptos, cfdi.SlotConcepto))...)

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(comprobante))

	if tfd := cfdi.StampOf(comprobante); tfd != nil {
		m.AddRows(line.NewRow(3))
		m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
		m.AddRows(g.stampRows(comprobante, tfd)...)
	}
	if report != nil {
		m.AddRows(line.NewRow(3))
		m.AddRows(validationRows(report)...)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: nombre + RFC del emisor (izq) y serie-folio + fecha (der).
func headerRow(comprobante, emisor *cfdi.Node) core.Row {
	folio := strings.TrimSpace(comprobante.Value("Serie") + " " + comprobante.Value("Folio"))
	return row.New(18).Add(
		col.New(7).Add(
			text.New(nonEmpty(emisor.Value("Nombre"), emisor.Value("Rfc")), props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("RFC: %s   |   Régimen: %s", emisor.Value("Rfc"), nonEmpty(emisor.Value("RegimenFiscal"), "—")), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(voucherLabel(comprobante.Value("TipoDeComprobante"))+" CFDI "+comprobante.Value("Version"), props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right, Color: colorPrimary, Top: 1,
			}),
			text.New(nonEmpty(folio, "Sin folio"), props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Fecha: "+comprobante.Value("Fecha")+"   Lugar: "+comprobante.Value("LugarExpedicion"), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

func receptorRow(receptor *cfdi.Node) core.Row {
	return row.New(14).Add(
		col.New(12).Add(
			text.New("RECEPTOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(nonEmpty(receptor.Value("Nombre"), receptor.Value("Rfc")), props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New(fmt.Sprintf("RFC: %s   |   Uso CFDI: %s", receptor.Value("Rfc"), nonEmpty(receptor.Value("UsoCFDI"), "—")), props.Text{
				Size: 8, Top: 12, Color: colorGray,
			}),
		),
	)
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorWhite, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Cant.", 1, align.Center),
		h("Clave", 2, align.Left),
		h("Descripción", 5, align.Left),
		h("Valor unit.", 2, align.Right),
		h("Importe", 2, align.Right),
	).WithStyle(&props.Cell{BackgroundColor: colorPrimary})
}

// tableDetailRows: una fila por concepto.
func tableDetailRows(conceptos []*cfdi.Node) []core.Row {
	result := make([]core.Row, 0, len(conceptos))
	for _, c := range conceptos {
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(
				c.Value("Cantidad"),
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(2).Add(text.New(
				c.Value("ClaveProdServ")+" / "+c.Value("ClaveUnidad"),
				props.Text{Size: 7, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(5).Add(text.New(
				c.Value("Descripcion"),
				props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				money(c, "ValorUnitario"),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(2).Add(text.New(
				money(c, "Importe"),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return result
}

// totalsRow: bloque de totales alineado a la derecha.
func totalsRow(comprobante *cfdi.Node) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	traslados, retenciones := "$0.00", "$0.00"
	if imp := comprobante.Child(cfdi.SlotImpuestos); imp != nil {
		traslados = money(imp, "TotalImpuestosTrasladados")
		retenciones = money(imp, "TotalImpuestosRetenidos")
	}

	return row.New(30).Add(
		col.New(6),
		col.New(3).Add(
			label("Subtotal:"),
			label("Descuento:"),
			label("Impuestos trasladados:"),
			label("Impuestos retenidos:"),
			text.New("TOTAL "+comprobante.Value("Moneda")+":", props.Text{
				Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 2,
			}),
		),
		col.New(3).Add(
			value(money(comprobante, "SubTotal")),
			value(money(comprobante, "Descuento")),
			value(traslados),
			value(retenciones),
			text.New(money(comprobante, "Total"), props.Text{
				Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 1,
			}),
		),
	)
}

// stampRows: datos del timbre, QR de verificación, sellos y cadena original del timbre.
func (g *MarotoPDFGenerator) stampRows(comprobante, tfd *cfdi.Node) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("TIMBRE FISCAL DIGITAL", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
	}

	details := fmt.Sprintf("Folio fiscal: %s\nFecha de certificación: %s\nCertificado SAT: %s\nCertificado emisor: %s",
		tfd.Value("UUID"), tfd.Value("FechaTimbrado"), tfd.Value("NoCertificadoSAT"), comprobante.Value("NoCertificado"))
	if rfc := tfd.Value("RfcProvCertif"); rfc != "" {
		details += "\nRFC del PAC: " + rfc
	}

	info := col.New(8).Add(text.New(details, props.Text{Size: 8, Top: 4, Left: 3}))
	if data, err := cfdi.ExpressionOf(comprobante); err == nil {
		if expr, err := sat.Expression(data); err == nil {
			rows = append(rows, row.New(45).Add(
				col.New(4).Add(code.NewQr(expr, props.Rect{Percent: 95, Center: true})),
				info,
			))
		} else {
			rows = append(rows, row.New(30).Add(col.New(4), info))
		}
	} else {
		rows = append(rows, row.New(30).Add(col.New(4), info))
	}

	rows = append(rows, longText("Sello digital del CFDI:", comprobante.Value("Sello"))...)
	rows = append(rows, longText("Sello digital del SAT:", tfd.Value("SelloSAT"))...)
	if g.chains != nil {
		if chain, err := g.chains.ChainOf(tfd); err == nil {
			rows = append(rows, longText("Cadena original del complemento de certificación digital del SAT:", chain)...)
		}
	}

	rows = append(rows, row.New(8).Add(col.New(12).Add(
		text.New("Este documento es una representación impresa de un CFDI.", props.Text{
			Size: 6.5, Color: colorGray, Top: 2,
		}),
	)))
	return rows
}

// validationRows: resultado de la validación y sus diagnósticos.
func validationRows(report *entity.ValidationReport) []core.Row {
	color := colorGreen
	if !report.Accepted() {
		color = colorRed
	}
	rows := []core.Row{
		row.New(7).Add(col.New(12).Add(
			text.New(fmt.Sprintf("VALIDACIÓN: %s (etapa %s)", report.Outcome, report.Stage), props.Text{
				Style: fontstyle.Bold, Size: 9, Color: color, Top: 1,
			}),
		)),
	}
	for _, d := range report.Diagnostics {
		rows = append(rows, row.New(4).Add(col.New(12).Add(
			text.New(fmt.Sprintf("[%s] %s: %s", d.Severity, d.Code, d.Message), props.Text{
				Size: 7, Color: colorGray, Left: 2,
			}),
		)))
	}
	return rows
}

// ── helpers ───────────────────────────────────────────────────────────────────

func longText(title, value string) []core.Row {
	if value == "" {
		return nil
	}
	rows := []core.Row{row.New(5).Add(col.New(12).Add(
		text.New(title, props.Text{Style: fontstyle.Bold, Size: 7, Top: 1}),
	))}
	for _, chunk := range splitEvery(value, 110) {
		rows = append(rows, row.New(4).Add(col.New(12).Add(
			text.New(chunk, props.Text{Size: 6.5, Color: colorGray, Top: 0.5, Left: 2}),
		)))
	}
	return rows
}

func voucherLabel(tipo string) string {
	switch tipo {
	case sat.TipoComprobanteIngreso:
		return "INGRESO"
	case sat.TipoComprobanteEgreso:
		return "EGRESO"
	case sat.TipoComprobanteTraslado:
		return "TRASLADO"
	case sat.TipoComprobanteNomina:
		return "NÓMINA"
	case sat.TipoComprobantePago:
		return "PAGO"
	default:
		return tipo
	}
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// money formatea un atributo decimal; ausente o inválido se muestra como $0.00.
func money(n *cfdi.Node, attr string) string {
	d, err := n.Decimal(attr)
	if err != nil {
		d = decimal.Zero
	}
	return formatMoney(d)
}

// formatMoney separa miles con coma y deja dos decimales.
// Ej: 1234567.5 → "$1,234,567.50"
func formatMoney(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	s := d.StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	n := len(intPart)
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(intPart) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, c)
	}
	return sign + "$" + string(buf) + frac
}

// splitEvery divide s en trozos de max n caracteres.
func splitEvery(s string, n int) []string {
	var parts []string
	for len(s) > n {
		parts = append(parts, s[:n])
		s = s[n:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
