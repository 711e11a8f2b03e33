package cfdi

import (
	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

// StampOf devuelve el timbre (1.1 o 1.0) del Complemento del comprobante, o nil.
func StampOf(comprobante *Node) *Node {
	if tfd := comprobante.FindExtension(SlotComplemento, TypeTFD11); tfd != nil {
		return tfd
	}
	return comprobante.FindExtension(SlotComplemento, TypeTFD10)
}

// IsComprobante indica si el nodo es la raíz de un CFDI 3.3 o 4.0.
func IsComprobante(n *Node) bool {
	t := n.Type()
	return t == TypeComprobante33 || t == TypeComprobante40
}

// ExpressionOf datos de verificación pública de un comprobante timbrado.
func ExpressionOf(comprobante *Node) (sat.ExpressionData, error) {
	data := sat.ExpressionData{
		Version: comprobante.Value("Version"),
		Seal:    comprobante.Value("Sello"),
	}
	if e := comprobante.Child(SlotEmisor); e != nil {
		data.IssuerRFC = e.Value("Rfc")
	}
	if r := comprobante.Child(SlotReceptor); r != nil {
		data.ReceiverRFC = r.Value("Rfc")
	}
	if tfd := StampOf(comprobante); tfd != nil {
		data.UUID = tfd.Value("UUID")
	}
	total, err := comprobante.Decimal("Total")
	if err != nil {
		return data, err
	}
	data.Total = total
	return data, nil
}
