package cfdi_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
)

// ── Helpers ──────────────────────────────────────────────────────────────────

func descriptor(t *testing.T, reg *cfdi.Registry, typ string) *cfdi.Descriptor {
	t.Helper()
	d, ok := reg.Descriptor(typ)
	require.True(t, ok, "tipo %s no registrado", typ)
	return d
}

func build(t *testing.T, reg *cfdi.Registry, typ string, attrs map[string]string) *cfdi.Builder {
	t.Helper()
	b := cfdi.NewBuilder(descriptor(t, reg, typ))
	for k, v := range attrs {
		b.Set(k, v)
	}
	return b
}

func mustBuild(t *testing.T, b *cfdi.Builder) *cfdi.Node {
	t.Helper()
	n, err := b.Build()
	require.NoError(t, err)
	return n
}

func tfd11Attrs() map[string]string {
	return map[string]string{
		"Version":          "1.1",
		"UUID":             "ABC-123",
		"FechaTimbrado":    "2019-09-06T10:09:46",
		"RfcProvCertif":    "XAXX010101000",
		"SelloCFD":         "SIGDATA",
		"NoCertificadoSAT": "00001000000400002033",
		"SelloSAT":         "SATSIG",
	}
}

// ── Descriptor ───────────────────────────────────────────────────────────────

func TestDescriptor_Validate(t *testing.T) {
	ok := &cfdi.Descriptor{
		Type: "x:Nodo", ElementName: "Nodo",
		Attributes: []cfdi.AttributeSpec{cfdi.Req("Uno", "Uno", "one"), cfdi.Opt("Dos", "Dos", "two")},
		Children:   []cfdi.ChildSpec{cfdi.Child("Hijo", "Hijo", "x:Hijo")},
	}
	assert.NoError(t, ok.Validate())

	dupAlias := &cfdi.Descriptor{
		Type: "x:Nodo", ElementName: "Nodo",
		Attributes: []cfdi.AttributeSpec{cfdi.Req("Uno", "Uno", "id"), cfdi.Opt("Dos", "Dos", "id")},
	}
	assert.Error(t, dupAlias.Validate(), "dos atributos no pueden compartir alias")

	dupName := &cfdi.Descriptor{
		Type: "x:Nodo", ElementName: "Nodo",
		Attributes: []cfdi.AttributeSpec{cfdi.Req("Uno", "Uno", "")},
		Children:   []cfdi.ChildSpec{cfdi.Child("Uno", "Otro", "x:Otro")},
	}
	assert.Error(t, dupName.Validate(), "atributos y ranuras comparten espacio de nombres canónicos")

	assert.Equal(t, []string{"Uno"}, cfdi.Req("Uno", "Uno", "Uno").Aliases)
}

func TestDefaultRegistry_Consistente(t *testing.T) {
	reg, err := cfdi.NewDefaultRegistry()
	require.NoError(t, err)

	for _, typ := range reg.Types() {
		d := descriptor(t, reg, typ)
		assert.NoError(t, d.Validate(), typ)
	}

	root := descriptor(t, reg, cfdi.TypeComprobante40)
	assert.Equal(t, "cfdi:Comprobante", root.QualifiedName())
	spec, ok := root.Attribute("Fecha")
	require.True(t, ok)
	assert.Equal(t, []string{"Fecha", "date"}, spec.Aliases)
	assert.Equal(t, cfdi.KindDateTime, spec.Kind)
}

func TestRegistry_LookupPorVersion(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	attrs := func(m map[string]string) func(string) (string, bool) {
		return func(name string) (string, bool) {
			v, ok := m[name]
			return v, ok
		}
	}
	const tfdNS = "http://www.sat.gob.mx/TimbreFiscalDigital"

	d, ok := reg.Lookup(tfdNS, "TimbreFiscalDigital", attrs(map[string]string{"Version": "1.1"}))
	require.True(t, ok)
	assert.Equal(t, cfdi.TypeTFD11, d.Type)

	d, ok = reg.Lookup(tfdNS, "TimbreFiscalDigital", attrs(map[string]string{"version": "1.0"}))
	require.True(t, ok)
	assert.Equal(t, cfdi.TypeTFD10, d.Type)

	_, ok = reg.Lookup(tfdNS, "TimbreFiscalDigital", attrs(map[string]string{"Version": "2.0"}))
	assert.False(t, ok)

	_, ok = reg.Lookup("http://example.com/otro", "TimbreFiscalDigital", attrs(nil))
	assert.False(t, ok)
}

func TestRegistry_TipoDuplicado(t *testing.T) {
	reg := cfdi.NewRegistry()
	d := &cfdi.Descriptor{Type: "x:Nodo", ElementName: "Nodo"}
	require.NoError(t, reg.RegisterComplement(d))
	assert.Error(t, reg.RegisterComplement(d))
}

// ── Builder ──────────────────────────────────────────────────────────────────

func TestBuilder_FaltaObligatorio(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	attrs := tfd11Attrs()
	delete(attrs, "UUID")

	_, err := build(t, reg, cfdi.TypeTFD11, attrs).Build()
	require.Error(t, err)
	assert.True(t, cfdi.IsMappingError(err, cfdi.MissingRequiredAttribute))

	var me *cfdi.MappingError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "UUID", me.Name)
	assert.Equal(t, cfdi.TypeTFD11, me.NodeType)
}

func TestBuilder_AtributoNoDeclarado(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	_, err := build(t, reg, cfdi.TypeTFD11, tfd11Attrs()).Set("Inventado", "x").Build()
	assert.True(t, cfdi.IsMappingError(err, cfdi.UnknownAttribute))
}

func TestBuilder_ValorNoCanonico(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	cases := []struct {
		typ, attr, value string
	}{
		{cfdi.TypeTFD11, "FechaTimbrado", "2019-09-06 10:09:46"},
		{cfdi.TypeTFD11, "FechaTimbrado", "2019-09-06T10:09:46.5"},
		{"cfdi40:Retencion", "Importe", "1e3"},
		{"cfdi40:Retencion", "Importe", "+16.00"},
		{"cfdi40:Retencion", "Importe", " 16.00"},
	}
	for _, tc := range cases {
		t.Run(tc.attr+"="+tc.value, func(t *testing.T) {
			attrs := map[string]string{"Impuesto": "002", "Importe": "16.00"}
			if tc.typ == cfdi.TypeTFD11 {
				attrs = tfd11Attrs()
			}
			attrs[tc.attr] = tc.value

			_, err := build(t, reg, tc.typ, attrs).Build()
			require.Error(t, err)
			assert.True(t, cfdi.IsMappingError(err, cfdi.InvalidValue))
			assert.Contains(t, err.Error(), tc.value)

			n, err := build(t, reg, tc.typ, attrs).Lenient().Build()
			require.NoError(t, err, "el mapeo de documentos recibidos conserva el valor")
			assert.Equal(t, tc.value, n.Value(tc.attr))
		})
	}
}

func TestBuilder_ValorCanonico(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	for _, v := range []string{"16", "16.00", "-0.50", "0"} {
		_, err := build(t, reg, "cfdi40:Retencion", map[string]string{"Impuesto": "002", "Importe": v}).Build()
		assert.NoError(t, err, v)
	}
}

func TestBuilder_RanuraOneUltimoGana(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	first := mustBuild(t, build(t, reg, "cfdi40:Emisor", map[string]string{"Rfc": "AAA010101AAA", "Nombre": "UNO", "RegimenFiscal": "601"}))
	second := mustBuild(t, build(t, reg, "cfdi40:Emisor", map[string]string{"Rfc": "BBB010101BB1", "Nombre": "DOS", "RegimenFiscal": "601"}))

	holder := cfdi.NewBuilder(&cfdi.Descriptor{
		Type: "x:Raiz", ElementName: "Raiz",
		Children: []cfdi.ChildSpec{cfdi.Child("Emisor", "Emisor", "cfdi40:Emisor")},
	})
	root := mustBuild(t, holder.Append("Emisor", first).Append("Emisor", second))

	require.NotNil(t, root.Child("Emisor"))
	assert.Equal(t, "DOS", root.Child("Emisor").Value("Nombre"))
	assert.Len(t, root.Children("Emisor"), 1)
}

func TestBuilder_RanuraManyConservaOrden(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	b := cfdi.NewBuilder(descriptor(t, reg, "cfdi40:CfdiRelacionados")).Set("TipoRelacion", "04")
	uuids := []string{"11111111-1111-1111-1111-111111111111", "22222222-2222-2222-2222-222222222222", "33333333-3333-3333-3333-333333333333"}
	for _, u := range uuids {
		b.Append("CfdiRelacionado", mustBuild(t, build(t, reg, "cfdi40:CfdiRelacionado", map[string]string{"UUID": u})))
	}
	n := mustBuild(t, b)

	got := n.Children("CfdiRelacionado")
	require.Len(t, got, 3)
	for i, u := range uuids {
		assert.Equal(t, u, got[i].Value("UUID"))
	}
}

func TestBuilder_HijoCompartidoOTipoIncorrecto(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	child := mustBuild(t, build(t, reg, "cfdi40:CfdiRelacionado", map[string]string{"UUID": "x"}))

	_ = mustBuild(t, cfdi.NewBuilder(descriptor(t, reg, "cfdi40:CfdiRelacionados")).
		Set("TipoRelacion", "04").Append("CfdiRelacionado", child))

	_, err := cfdi.NewBuilder(descriptor(t, reg, "cfdi40:CfdiRelacionados")).
		Set("TipoRelacion", "04").Append("CfdiRelacionado", child).Build()
	assert.True(t, cfdi.IsMappingError(err, cfdi.InvalidChild), "un nodo no puede tener dos padres")

	tfd := mustBuild(t, build(t, reg, cfdi.TypeTFD11, tfd11Attrs()))
	_, err = cfdi.NewBuilder(descriptor(t, reg, "cfdi40:CfdiRelacionados")).
		Set("TipoRelacion", "04").Append("CfdiRelacionado", tfd).Build()
	assert.True(t, cfdi.IsMappingError(err, cfdi.InvalidChild))
}

func TestBuilder_NoReutilizable(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	b := build(t, reg, cfdi.TypeTFD11, tfd11Attrs())
	_ = mustBuild(t, b)
	_, err := b.Build()
	assert.Error(t, err)
}

func TestNode_DecimalYFecha(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	n := mustBuild(t, build(t, reg, "cfdi40:Retencion", nil).
		Set("Impuesto", "002").
		SetDecimalFixed("Importe", decimal.RequireFromString("16"), 2))

	assert.Equal(t, "16.00", n.Value("Importe"))
	d, err := n.Decimal("Importe")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromInt(16)))

	_, err = n.Decimal("Base")
	assert.Error(t, err)

	tfd := mustBuild(t, build(t, reg, cfdi.TypeTFD11, tfd11Attrs()))
	ts, err := tfd.DateTime("FechaTimbrado")
	require.NoError(t, err)
	assert.Equal(t, 2019, ts.Year())
	assert.Equal(t, 10, ts.Hour())
}
