package cfdi_test

import (
	"crypto"
	"crypto/sha1"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
)

func TestChainOf_TimbreFiscal11(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	gen := cfdi.NewDefaultChainGenerator()
	tfd := mustBuild(t, build(t, reg, cfdi.TypeTFD11, tfd11Attrs()))

	chain, err := gen.ChainOf(tfd)
	require.NoError(t, err)
	assert.Equal(t, "||1.1|ABC-123|2019-09-06T10:09:46|XAXX010101000|SIGDATA|00001000000400002033||", chain)

	_, digest, hash, err := gen.Digest(tfd)
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA256, hash)
	want := sha256.Sum256([]byte(chain))
	assert.Equal(t, want[:], digest)
}

func TestChainOf_OpcionalPresenteVacio(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	attrs := tfd11Attrs()
	attrs["Leyenda"] = ""
	tfd := mustBuild(t, build(t, reg, cfdi.TypeTFD11, attrs))

	chain, err := cfdi.NewDefaultChainGenerator().ChainOf(tfd)
	require.NoError(t, err)
	assert.Equal(t, "||1.1|ABC-123|2019-09-06T10:09:46|XAXX010101000||SIGDATA|00001000000400002033||", chain)
}

func TestChainOf_NormalizaEspacios(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	attrs := tfd11Attrs()
	attrs["Leyenda"] = "  texto \n\t con   espacios "
	tfd := mustBuild(t, build(t, reg, cfdi.TypeTFD11, attrs))

	chain, err := cfdi.NewDefaultChainGenerator().ChainOf(tfd)
	require.NoError(t, err)
	assert.Contains(t, chain, "|texto con espacios|")
}

func TestDigest_TimbreFiscal10UsaSHA1(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	tfd := mustBuild(t, build(t, reg, cfdi.TypeTFD10, map[string]string{
		"Version":          "1.0",
		"UUID":             "ABC-123",
		"FechaTimbrado":    "2012-01-01T00:00:00",
		"SelloCFD":         "SIG",
		"NoCertificadoSAT": "00001000000100000801",
		"SelloSAT":         "SAT",
	}))

	chain, digest, hash, err := cfdi.NewDefaultChainGenerator().Digest(tfd)
	require.NoError(t, err)
	assert.Equal(t, "||1.0|ABC-123|2012-01-01T00:00:00|SIG|00001000000100000801||", chain)
	assert.Equal(t, crypto.SHA1, hash)
	want := sha1.Sum([]byte(chain))
	assert.Equal(t, want[:], digest)
}

func TestChainOf_FechaMalFormada(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	attrs := tfd11Attrs()
	attrs["FechaTimbrado"] = "2019-09-06 10:09:46"
	tfd := mustBuild(t, build(t, reg, cfdi.TypeTFD11, attrs).Lenient())

	_, err := cfdi.NewDefaultChainGenerator().ChainOf(tfd)
	require.Error(t, err)
	assert.True(t, cfdi.IsChainError(err, cfdi.MalformedField))
}

func TestChainOf_SinRegla(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	tfd := mustBuild(t, build(t, reg, cfdi.TypeTFD11, tfd11Attrs()))

	_, err := cfdi.NewChainGenerator().ChainOf(tfd)
	assert.True(t, cfdi.IsChainError(err, cfdi.UnsupportedNode))
}

func TestChainOf_ObligatorioAusente(t *testing.T) {
	desc := &cfdi.Descriptor{
		Type: "x:Nodo", ElementName: "Nodo",
		Attributes: []cfdi.AttributeSpec{cfdi.Opt("A", "A", ""), cfdi.Opt("B", "B", "")},
	}
	gen := cfdi.NewChainGenerator()
	gen.Register(cfdi.Rule{Type: "x:Nodo", Steps: []cfdi.Step{cfdi.Required("A"), cfdi.Required("B")}})

	n := mustBuild(t, cfdi.NewBuilder(desc).Set("A", "1"))
	_, err := gen.ChainOf(n)
	require.Error(t, err)
	assert.True(t, cfdi.IsChainError(err, cfdi.IncompleteChain))

	var ce *cfdi.ChainError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "B", ce.Field)
}

func TestDigest_SinAlgoritmo(t *testing.T) {
	desc := &cfdi.Descriptor{Type: "x:Nodo", ElementName: "Nodo", Attributes: []cfdi.AttributeSpec{cfdi.Req("A", "A", "")}}
	gen := cfdi.NewChainGenerator()
	gen.Register(cfdi.Rule{Type: "x:Nodo", Steps: []cfdi.Step{cfdi.Required("A")}})

	n := mustBuild(t, cfdi.NewBuilder(desc).Set("A", "1"))
	chain, err := gen.ChainOf(n)
	require.NoError(t, err)
	assert.Equal(t, "||1||", chain)

	_, _, _, err = gen.Digest(n)
	assert.Error(t, err, "un nodo que no es raíz firmada no tiene algoritmo")
}

func TestChainOf_ComprobanteExcluyeTimbre(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	gen := cfdi.NewDefaultChainGenerator()

	tfd := mustBuild(t, build(t, reg, cfdi.TypeTFD11, tfd11Attrs()))
	complemento := mustBuild(t, cfdi.NewBuilder(descriptor(t, reg, "cfdi40:Complemento")).Extend(tfd))
	root := mustBuild(t, build(t, reg, cfdi.TypeComprobante40, comprobante40Attrs()).
		Append("Emisor", mustBuild(t, build(t, reg, "cfdi40:Emisor", map[string]string{
			"Rfc": "EKU9003173C9", "Nombre": "ESCUELA KEMPER URGATE", "RegimenFiscal": "601",
		}))).
		Append("Complemento", complemento))

	chain, err := gen.ChainOf(root)
	require.NoError(t, err)
	assert.Equal(t,
		"||4.0|A|1|2023-01-01T12:00:00|30001000000400002434|100.00|MXN|116.00|I|01|PUE|45079"+
			"|EKU9003173C9|ESCUELA KEMPER URGATE|601||",
		chain)
	assert.NotContains(t, chain, "SIGDATA")
	assert.True(t, gen.Supports(cfdi.TypeTFD11))
}

func TestChainOf_ComplementoSinRegla(t *testing.T) {
	reg := cfdi.MustDefaultRegistry()
	require.NoError(t, reg.RegisterComplement(&cfdi.Descriptor{
		Type: "otro:Complemento", ElementName: "Otro", NamespaceURI: "http://example.com/otro",
	}))
	otro := mustBuild(t, cfdi.NewBuilder(descriptor(t, reg, "otro:Complemento")))
	complemento := mustBuild(t, cfdi.NewBuilder(descriptor(t, reg, "cfdi40:Complemento")).Extend(otro))
	root := mustBuild(t, build(t, reg, cfdi.TypeComprobante40, comprobante40Attrs()).Append("Complemento", complemento))

	_, err := cfdi.NewDefaultChainGenerator().ChainOf(root)
	assert.True(t, cfdi.IsChainError(err, cfdi.UnsupportedNode))
}

func TestNormalizeSpace(t *testing.T) {
	assert.Equal(t, "a b c", cfdi.NormalizeSpace("  a \t b\r\n c "))
	assert.Equal(t, "", cfdi.NormalizeSpace(" \n "))
	assert.Equal(t, "a\u00a0b", cfdi.NormalizeSpace("a\u00a0b"), "el espacio no separable se conserva")
}

func comprobante40Attrs() map[string]string {
	return map[string]string{
		"Version":           "4.0",
		"Serie":             "A",
		"Folio":             "1",
		"Fecha":             "2023-01-01T12:00:00",
		"Sello":             "SIGDATA",
		"NoCertificado":     "30001000000400002434",
		"Certificado":       "MIIB",
		"SubTotal":          "100.00",
		"Moneda":            "MXN",
		"Total":             "116.00",
		"TipoDeComprobante": "I",
		"Exportacion":       "01",
		"MetodoPago":        "PUE",
		"LugarExpedicion":   "45079",
	}
}
