package cfdi

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

// Códigos de hallazgo de las reglas de negocio.
const (
	IssueInvalidRFC          = "RFC_INVALIDO"
	IssueInvalidUUID         = "UUID_INVALIDO"
	IssueInvalidDecimal      = "DECIMAL_INVALIDO"
	IssueInvalidDate         = "FECHA_INVALIDA"
	IssueInvalidCatalogValue = "CATALOGO_INVALIDO"
	IssueTotalMismatch       = "TOTAL_INCONSISTENTE"
	IssueAmountMismatch      = "IMPORTE_INCONSISTENTE"
)

// RuleOptions ajustes de las reglas de negocio.
type RuleOptions struct {
	StrictRFC bool          // exige dígito verificador en los RFC
	Tolerance decimal.Decimal // diferencia admitida en totales; cero = 0.01
}

// RegisterBusinessRules registra las reglas de negocio sobre los tipos del registro por defecto.
func RegisterBusinessRules(r *Registry, opts RuleOptions) {
	if opts.Tolerance.IsZero() {
		opts.Tolerance = decimal.New(1, -2)
	}

	for _, typ := range r.Types() {
		desc, _ := r.Descriptor(typ)
		r.RegisterValidator(typ, valueFormats(desc))
	}

	for _, v := range []cfdiVariant{variantCFDI33, variantCFDI40} {
		r.RegisterValidator(v.t(SlotEmisor), rfcAttribute("Rfc", opts.StrictRFC))
		r.RegisterValidator(v.t(SlotReceptor), rfcAttribute("Rfc", opts.StrictRFC))
		r.RegisterValidator(v.t(SlotCfdiRelacionado), uuidAttribute("UUID"))
		r.RegisterValidator(v.t("Comprobante"), voucherType)
		r.RegisterValidator(v.t("Comprobante"), totals(opts.Tolerance))
		r.RegisterValidator(v.t(SlotConcepto), conceptAmount(opts.Tolerance))
		r.RegisterValidator(v.t(SlotTraslado), taxCatalogs)
		r.RegisterValidator(v.t(SlotRetencion), taxCatalogs)
		r.RegisterValidator(v.t("ConceptoTraslado"), taxCatalogs)
		r.RegisterValidator(v.t("ConceptoRetencion"), taxCatalogs)
	}
	r.RegisterValidator(variantCFDI40.t(SlotACuentaTerceros), rfcAttribute("RfcACuentaTerceros", opts.StrictRFC))
	r.RegisterValidator(TypeTFD10, uuidAttribute("UUID"))
	r.RegisterValidator(TypeTFD11, uuidAttribute("UUID"))
	r.RegisterValidator(TypeTFD11, rfcAttribute("RfcProvCertif", opts.StrictRFC))
}

// valueFormats comprueba decimales y fechas declarados en el descriptor.
func valueFormats(desc *Descriptor) Validator {
	return func(n *Node) []Issue {
		var issues []Issue
		for _, spec := range desc.Attributes {
			v, ok := n.Attr(spec.Name)
			if !ok {
				continue
			}
			switch spec.Kind {
			case KindDecimal:
				if !canonical(KindDecimal, v) {
					issues = append(issues, issue(n, IssueInvalidDecimal, "%s=%q no es un decimal", spec.Primary(), v))
				}
			case KindDateTime:
				if !canonical(KindDateTime, v) {
					issues = append(issues, issue(n, IssueInvalidDate, "%s=%q no cumple AAAA-MM-DDThh:mm:ss", spec.Primary(), v))
				}
			}
		}
		return issues
	}
}

func rfcAttribute(name string, strict bool) Validator {
	parse := sat.ParseRFC
	if strict {
		parse = sat.ParseRFCStrict
	}
	return func(n *Node) []Issue {
		v, ok := n.Attr(name)
		if !ok {
			return nil
		}
		if _, err := parse(v); err != nil {
			return []Issue{issue(n, IssueInvalidRFC, "%s: %v", name, err)}
		}
		return nil
	}
}

func uuidAttribute(name string) Validator {
	return func(n *Node) []Issue {
		v, ok := n.Attr(name)
		if !ok {
			return nil
		}
		if _, err := uuid.Parse(v); err != nil || len(v) != 36 {
			return []Issue{issue(n, IssueInvalidUUID, "%s=%q no es un UUID", name, v)}
		}
		return nil
	}
}

func voucherType(n *Node) []Issue {
	if v := n.Value("TipoDeComprobante"); !sat.ValidTipoDeComprobante[v] {
		return []Issue{issue(n, IssueInvalidCatalogValue, "TipoDeComprobante=%q fuera de catálogo", v)}
	}
	return nil
}

func taxCatalogs(n *Node) []Issue {
	var issues []Issue
	if v, ok := n.Attr("Impuesto"); ok && !sat.ValidImpuesto[v] {
		issues = append(issues, issue(n, IssueInvalidCatalogValue, "Impuesto=%q fuera de catálogo", v))
	}
	if v, ok := n.Attr("TipoFactor"); ok && !sat.ValidTipoFactor[v] {
		issues = append(issues, issue(n, IssueInvalidCatalogValue, "TipoFactor=%q fuera de catálogo", v))
	}
	return issues
}

// totals: Total = SubTotal - Descuento + trasladados - retenidos (+ impuestos locales).
func totals(tolerance decimal.Decimal) Validator {
	return func(n *Node) []Issue {
		subtotal, err1 := n.Decimal("SubTotal")
		total, err2 := n.Decimal("Total")
		if err1 != nil || err2 != nil {
			return nil // valueFormats ya lo reporta
		}
		expected := subtotal.Sub(optionalDecimal(n, "Descuento"))
		if taxes := n.Child(SlotImpuestos); taxes != nil {
			expected = expected.
				Add(optionalDecimal(taxes, "TotalImpuestosTrasladados")).
				Sub(optionalDecimal(taxes, "TotalImpuestosRetenidos"))
		}
		if local := n.FindExtension(SlotComplemento, TypeImpLocal); local != nil {
			expected = expected.
				Add(optionalDecimal(local, "TotaldeTraslados")).
				Sub(optionalDecimal(local, "TotaldeRetenciones"))
		}
		if expected.Sub(total).Abs().GreaterThan(tolerance) {
			return []Issue{issue(n, IssueTotalMismatch, "Total=%s, calculado %s", total.String(), expected.StringFixed(2))}
		}
		return nil
	}
}

// conceptAmount: Importe = Cantidad × ValorUnitario. Solo advertencia: el SAT admite
// redondeos con límites que dependen de los decimales de cada valor.
func conceptAmount(tolerance decimal.Decimal) Validator {
	return func(n *Node) []Issue {
		qty, err1 := n.Decimal("Cantidad")
		unit, err2 := n.Decimal("ValorUnitario")
		amount, err3 := n.Decimal("Importe")
		if err1 != nil || err2 != nil || err3 != nil {
			return nil
		}
		expected := qty.Mul(unit)
		if expected.Sub(amount).Abs().GreaterThan(tolerance) {
			is := issue(n, IssueAmountMismatch, "Importe=%s, Cantidad×ValorUnitario=%s", amount.String(), expected.String())
			is.Warning = true
			return []Issue{is}
		}
		return nil
	}
}

func optionalDecimal(n *Node, name string) decimal.Decimal {
	d, err := n.Decimal(name)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func issue(n *Node, code, format string, args ...any) Issue {
	return Issue{Code: code, NodeType: n.Type(), Message: fmt.Sprintf(format, args...)}
}
