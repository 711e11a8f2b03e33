package pdf

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-validator/internal/domain/entity"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/xmlmap"
)

func decodeFixture(t *testing.T, replacer *strings.Replacer) *cfdi.Node {
	t.Helper()
	data, err := os.ReadFile("../sat/xmlmap/testdata/cfdi40.xml")
	require.NoError(t, err)
	if replacer != nil {
		data = []byte(replacer.Replace(string(data)))
	}
	node, err := xmlmap.NewMapper(cfdi.MustDefaultRegistry()).Decode(data)
	require.NoError(t, err)
	return node
}

func TestGenerate_ConTimbreYReporte(t *testing.T) {
	// Sello de más de 8 caracteres para que se imprima el QR.
	node := decodeFixture(t, strings.NewReplacer(`"SIGDATA"`, `"SIGDATA12345678"`))
	report := &entity.ValidationReport{
		Outcome: entity.OutcomeRejected,
		Stage:   entity.StageChainDerived,
		Diagnostics: []entity.Diagnostic{
			{Severity: entity.SeverityError, Code: "SELLO_INVALIDO", Message: "el sello no corresponde"},
		},
		ValidatedAt: time.Now(),
	}

	out, err := NewMarotoPDFGenerator(cfdi.NewDefaultChainGenerator()).Generate(node, report)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGenerate_SinQRNiReporte(t *testing.T) {
	node := decodeFixture(t, nil)
	out, err := NewMarotoPDFGenerator(nil).Generate(node, nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGenerate_NodoNoComprobante(t *testing.T) {
	node := decodeFixture(t, nil)
	_, err := NewMarotoPDFGenerator(nil).Generate(cfdi.StampOf(node), nil)
	assert.Error(t, err)

	_, err = NewMarotoPDFGenerator(nil).Generate(nil, nil)
	assert.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$0.00", formatMoney(decimal.Zero))
	assert.Equal(t, "$999.50", formatMoney(decimal.RequireFromString("999.5")))
	assert.Equal(t, "$1,234,567.89", formatMoney(decimal.RequireFromString("1234567.891")))
	assert.Equal(t, "-$1,000.00", formatMoney(decimal.RequireFromString("-1000")))
}

func TestSplitEvery(t *testing.T) {
	assert.Equal(t, []string{"abc", "def", "g"}, splitEvery("abcdefg", 3))
	assert.Nil(t, splitEvery("", 3))
}
