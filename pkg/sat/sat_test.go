package sat_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

// ── RFC ──────────────────────────────────────────────────────────────────────

func TestParseRFC_Clasificacion(t *testing.T) {
	cases := map[string]sat.RFCKind{
		"XAXX010101000": sat.RFCGenericNational,
		"XEXX010101000": sat.RFCGenericForeign,
		"VECJ880326180": sat.RFCNaturalPerson,
		"ABC680524P76":  sat.RFCLegalEntity,
	}
	for input, want := range cases {
		t.Run(input, func(t *testing.T) {
			rfc, err := sat.ParseRFC(input)
			require.NoError(t, err)
			assert.Equal(t, want, rfc.Kind())
			assert.Equal(t, input, rfc.String())

			lower, err := sat.ParseRFC("  " + toLower(input) + " ")
			require.NoError(t, err, "minúsculas y espacios deben normalizarse")
			assert.Equal(t, rfc, lower)
		})
	}
}

func TestParseRFC_Invalidos(t *testing.T) {
	for _, input := range []string{"", "A1C680524P76", "ABC681324P76", "ABCD", "VECJ8803261800", "ABC680230P76"} {
		_, err := sat.ParseRFC(input)
		assert.ErrorIs(t, err, sat.ErrInvalidRFC, "entrada %q", input)
	}
}

func TestParseRFC_EnieYAmpersand(t *testing.T) {
	rfc, err := sat.ParseRFC("ñañ851212ab1")
	require.NoError(t, err)
	assert.Equal(t, "ÑAÑ851212AB1", rfc.String())
	assert.Equal(t, sat.RFCLegalEntity, rfc.Kind(), "12 runas aunque sean 14 bytes")

	rfc, err = sat.ParseRFC("A&B010101AB1")
	require.NoError(t, err)
	assert.Equal(t, sat.RFCLegalEntity, rfc.Kind())
}

func TestParseRFCStrict_DigitoVerificador(t *testing.T) {
	rfc, err := sat.ParseRFCStrict("EKU9003173C9")
	require.NoError(t, err)
	assert.True(t, rfc.CheckSumMatches())

	rfc, err = sat.ParseRFCStrict("COSC8001137NA")
	require.NoError(t, err)
	assert.Equal(t, sat.RFCNaturalPerson, rfc.Kind())

	_, err = sat.ParseRFCStrict("COSC8001137N0")
	assert.ErrorIs(t, err, sat.ErrInvalidRFC)

	lenient, err := sat.ParseRFC("COSC8001137N0")
	require.NoError(t, err, "sin modo estricto el dígito no se exige")
	assert.False(t, lenient.CheckSumMatches())

	_, err = sat.ParseRFCStrict("XAXX010101000")
	assert.NoError(t, err, "los genéricos están exentos del dígito")
}

func TestRFCCheckDigit(t *testing.T) {
	assert.Equal(t, 'A', sat.RFCCheckDigit("COSC8001137NA"))
	assert.Equal(t, '9', sat.RFCCheckDigit("EKU9003173C9"))
	assert.Equal(t, rune(0), sat.RFCCheckDigit("ABC"))
}

// ── Fechas ───────────────────────────────────────────────────────────────────

func TestParseDateTime_ZonaFija(t *testing.T) {
	ts, err := sat.ParseDateTime("2019-09-06T10:09:46")
	require.NoError(t, err)
	_, offset := ts.Zone()
	assert.Equal(t, -6*3600, offset)
	assert.Equal(t, "2019-09-06T10:09:46", sat.FormatDateTime(ts))
	assert.Equal(t, "2019-09-06T10:09:46", sat.FormatDateTime(ts.UTC()), "el formato se expresa siempre en UTC-6")

	_, err = sat.ParseDateTime("2019-09-06 10:09:46")
	assert.Error(t, err)
}

// ── Expresiones ──────────────────────────────────────────────────────────────

func TestExpression_URLVerificacion(t *testing.T) {
	data := sat.ExpressionData{
		Version:     "4.0",
		IssuerRFC:   "EKU9003173C9",
		ReceiverRFC: "A&B010101AB1",
		Total:       decimal.RequireFromString("1160.50"),
		UUID:        "ee4f9f1d-7f1c-4a9b-9f0e-2b5a8e3c6d7f",
		Seal:        "AbCdEfGhIjKlMnOpQrStUvWxYz==",
	}
	expr, err := sat.Expression(data)
	require.NoError(t, err)
	assert.Equal(t, sat.VerificationURL+
		"?id=EE4F9F1D-7F1C-4A9B-9F0E-2B5A8E3C6D7F&re=EKU9003173C9&rr=A&amp;B010101AB1&tt=1160.5&fe=UvWxYz==", expr)

	data.Seal = "corto"
	_, err = sat.Expression(data)
	assert.Error(t, err)
}

func TestExpression_TotalEntero(t *testing.T) {
	expr, err := sat.Expression(sat.ExpressionData{
		IssuerRFC: "EKU9003173C9", ReceiverRFC: "XAXX010101000",
		Total: decimal.NewFromInt(100), UUID: "abc", Seal: "12345678",
	})
	require.NoError(t, err)
	assert.Contains(t, expr, "&tt=100.0&")
}

func TestStatusExpression_TotalRelleno(t *testing.T) {
	expr := sat.StatusExpression(sat.ExpressionData{
		IssuerRFC:   "EKU9003173C9",
		ReceiverRFC: "XAXX010101000",
		Total:       decimal.RequireFromString("1234.56"),
		UUID:        "abc",
	})
	assert.Equal(t, "?re=EKU9003173C9&rr=XAXX010101000&tt=0000001234.560000&id=ABC", expr)
}

// ── helper ───────────────────────────────────────────────────────────────────

func toLower(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + ('a' - 'A')
		}
	}
	return string(out)
}
