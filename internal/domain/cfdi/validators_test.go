package cfdi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
)

func rulesRegistry(t *testing.T, opts cfdi.RuleOptions) *cfdi.Registry {
	t.Helper()
	reg := cfdi.MustDefaultRegistry()
	cfdi.RegisterBusinessRules(reg, opts)
	return reg
}

func codes(issues []cfdi.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.Code)
	}
	return out
}

func comprobanteConImpuestos(t *testing.T, reg *cfdi.Registry, total, trasladados string) *cfdi.Node {
	t.Helper()
	attrs := comprobante40Attrs()
	attrs["Total"] = total
	impuestos := mustBuild(t, build(t, reg, "cfdi40:Impuestos", map[string]string{"TotalImpuestosTrasladados": trasladados}))
	return mustBuild(t, build(t, reg, cfdi.TypeComprobante40, attrs).
		Append("Emisor", mustBuild(t, build(t, reg, "cfdi40:Emisor", map[string]string{
			"Rfc": "EKU9003173C9", "Nombre": "ESCUELA KEMPER URGATE", "RegimenFiscal": "601",
		}))).
		Append("Impuestos", impuestos))
}

func TestBusinessRules_TotalCuadra(t *testing.T) {
	reg := rulesRegistry(t, cfdi.RuleOptions{})
	root := comprobanteConImpuestos(t, reg, "116.00", "16.00")
	assert.Empty(t, reg.Validate(root))
}

func TestBusinessRules_TotalInconsistente(t *testing.T) {
	reg := rulesRegistry(t, cfdi.RuleOptions{})
	root := comprobanteConImpuestos(t, reg, "120.00", "16.00")

	issues := reg.Validate(root)
	require.Len(t, issues, 1)
	assert.Equal(t, cfdi.IssueTotalMismatch, issues[0].Code)
	assert.Equal(t, cfdi.TypeComprobante40, issues[0].NodeType)
	assert.False(t, issues[0].Warning)
}

func TestBusinessRules_FormatosYCatalogos(t *testing.T) {
	reg := rulesRegistry(t, cfdi.RuleOptions{})
	attrs := comprobante40Attrs()
	attrs["TipoDeComprobante"] = "Z"
	attrs["SubTotal"] = "cien"
	root := mustBuild(t, build(t, reg, cfdi.TypeComprobante40, attrs).Lenient().
		Append("Emisor", mustBuild(t, build(t, reg, "cfdi40:Emisor", map[string]string{
			"Rfc": "NO-ES-RFC", "Nombre": "X", "RegimenFiscal": "601",
		}))))

	got := codes(reg.Validate(root))
	assert.ElementsMatch(t, []string{cfdi.IssueInvalidDecimal, cfdi.IssueInvalidCatalogValue, cfdi.IssueInvalidRFC}, got)
}

func TestBusinessRules_RFCEstricto(t *testing.T) {
	emisor := map[string]string{"Rfc": "COSC8001137N0", "Nombre": "X", "RegimenFiscal": "612"}

	lenient := rulesRegistry(t, cfdi.RuleOptions{})
	assert.Empty(t, lenient.Validate(mustBuild(t, build(t, lenient, "cfdi40:Emisor", emisor))))

	strict := rulesRegistry(t, cfdi.RuleOptions{StrictRFC: true})
	issues := strict.Validate(mustBuild(t, build(t, strict, "cfdi40:Emisor", emisor)))
	require.Len(t, issues, 1)
	assert.Equal(t, cfdi.IssueInvalidRFC, issues[0].Code)
}

func TestBusinessRules_UUIDDelTimbre(t *testing.T) {
	reg := rulesRegistry(t, cfdi.RuleOptions{})

	attrs := tfd11Attrs()
	attrs["UUID"] = "5FB2822E-396D-4725-8521-CDC4BDD20CCF"
	assert.Empty(t, reg.Validate(mustBuild(t, build(t, reg, cfdi.TypeTFD11, attrs))))

	attrs["UUID"] = "ABC-123"
	assert.Equal(t, []string{cfdi.IssueInvalidUUID}, codes(reg.Validate(mustBuild(t, build(t, reg, cfdi.TypeTFD11, attrs)))))
}

func TestBusinessRules_ImporteConceptoEsAdvertencia(t *testing.T) {
	reg := rulesRegistry(t, cfdi.RuleOptions{})
	concepto := mustBuild(t, build(t, reg, "cfdi40:Concepto", map[string]string{
		"ClaveProdServ": "01010101",
		"Cantidad":      "2",
		"ClaveUnidad":   "H87",
		"Descripcion":   "Pieza",
		"ValorUnitario": "10.00",
		"Importe":       "25.00",
		"ObjetoImp":     "02",
	}))

	issues := reg.Validate(concepto)
	require.Len(t, issues, 1)
	assert.Equal(t, cfdi.IssueAmountMismatch, issues[0].Code)
	assert.True(t, issues[0].Warning)
}
