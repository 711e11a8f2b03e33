package sat

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ExpressionData datos de un CFDI timbrado necesarios para su verificación pública.
type ExpressionData struct {
	Version     string // "3.3" o "4.0"
	IssuerRFC   string
	ReceiverRFC string
	Total       decimal.Decimal
	UUID        string
	Seal        string // Sello del emisor; se usan sus últimos 8 caracteres
}

// Expression devuelve la URL de verificación que se imprime en el código QR.
//
//	https://verificacfdi.facturaelectronica.sat.gob.mx/default.aspx?id=<uuid>&re=<rfc>&rr=<rfc>&tt=<total>&fe=<sello>
func Expression(d ExpressionData) (string, error) {
	if d.UUID == "" || d.IssuerRFC == "" || d.ReceiverRFC == "" {
		return "", fmt.Errorf("sat: expresión incompleta (uuid, re y rr son obligatorios)")
	}
	if len(d.Seal) < 8 {
		return "", fmt.Errorf("sat: el sello debe tener al menos 8 caracteres")
	}
	var sb strings.Builder
	sb.WriteString(VerificationURL)
	sb.WriteString("?id=" + strings.ToUpper(d.UUID))
	sb.WriteString("&re=" + escapeRFC(d.IssuerRFC))
	sb.WriteString("&rr=" + escapeRFC(d.ReceiverRFC))
	sb.WriteString("&tt=" + formatQRTotal(d.Total))
	sb.WriteString("&fe=" + d.Seal[len(d.Seal)-8:])
	return sb.String(), nil
}

// StatusExpression devuelve la expresión impresa que recibe el servicio ConsultaCFDIService:
//
//	?re=<rfc>&rr=<rfc>&tt=0000000001234.560000&id=<uuid>
func StatusExpression(d ExpressionData) string {
	return fmt.Sprintf("?re=%s&rr=%s&tt=%s&id=%s",
		escapeRFC(d.IssuerRFC), escapeRFC(d.ReceiverRFC), formatPaddedTotal(d.Total), strings.ToUpper(d.UUID))
}

// formatQRTotal: hasta 6 decimales sin ceros a la derecha, conservando al menos uno.
func formatQRTotal(total decimal.Decimal) string {
	s := strings.TrimRight(total.StringFixed(6), "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

// formatPaddedTotal: 6 decimales y relleno con ceros a la izquierda hasta 17 posiciones.
func formatPaddedTotal(total decimal.Decimal) string {
	s := total.StringFixed(6)
	if len(s) < 17 {
		s = strings.Repeat("0", 17-len(s)) + s
	}
	return s
}

// el & es válido en RFC y debe escaparse como entidad.
func escapeRFC(rfc string) string {
	return strings.ReplaceAll(rfc, "&", "&amp;")
}
