package cfdi

import (
	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

// Etiquetas de tipo de los nodos principales. Los tipos anidados se nombran
// <variante>:<Elemento>, con prefijo "Concepto" para los impuestos por concepto.
const (
	TypeComprobante33 = "cfdi33:Comprobante"
	TypeComprobante40 = "cfdi40:Comprobante"
)

// Nombres de ranura usados por reglas y validadores.
const (
	SlotInformacionGlobal = "InformacionGlobal"
	SlotCfdiRelacionados  = "CfdiRelacionados"
	SlotCfdiRelacionado   = "CfdiRelacionado"
	SlotEmisor            = "Emisor"
	SlotReceptor          = "Receptor"
	SlotConceptos         = "Conceptos"
	SlotConcepto          = "Concepto"
	SlotImpuestos         = "Impuestos"
	SlotTraslados         = "Traslados"
	SlotTraslado          = "Traslado"
	SlotRetenciones       = "Retenciones"
	SlotRetencion         = "Retencion"
	SlotACuentaTerceros   = "ACuentaTerceros"
	SlotInfoAduanera      = "InformacionAduanera"
	SlotCuentaPredial     = "CuentaPredial"
	SlotComplementoConc   = "ComplementoConcepto"
	SlotParte             = "Parte"
	SlotComplemento       = "Complemento"
	SlotAddenda           = "Addenda"
)

// variante de esquema del comprobante.
type cfdiVariant struct {
	tag       string // cfdi33 | cfdi40
	version   string
	namespace string
	schema    string
}

func (v cfdiVariant) is40() bool { return v.version == "4.0" }

func (v cfdiVariant) t(name string) string { return v.tag + ":" + name }

func (v cfdiVariant) node(name string, attrs []AttributeSpec, children ...ChildSpec) *Descriptor {
	return &Descriptor{
		Type:            v.t(name),
		ElementName:     name,
		NamespacePrefix: "cfdi",
		NamespaceURI:    v.namespace,
		Attributes:      attrs,
		Children:        children,
	}
}

// req/opt: nombre canónico igual al atributo del SAT más alias en inglés.
func req(name, alt string) AttributeSpec { return Req(name, name, alt) }
func opt(name, alt string) AttributeSpec { return Opt(name, name, alt) }

// reqIf obligatorio solo en 4.0 (opcional en 3.3).
func (v cfdiVariant) reqIf(name, alt string) AttributeSpec {
	if v.is40() {
		return req(name, alt)
	}
	return opt(name, alt)
}

func one(element, typ string) ChildSpec  { return Child(element, element, typ) }
func many(element, typ string) ChildSpec { return Children(element, element, typ) }

// cfdiDescriptors devuelve el Comprobante y todos sus tipos anidados.
func cfdiDescriptors(v cfdiVariant) (*Descriptor, []*Descriptor) {
	comprobanteAttrs := []AttributeSpec{
		req("Version", "version"),
		opt("Serie", "series"),
		opt("Folio", "folio"),
		req("Fecha", "date").DateTime(),
		req("Sello", "seal"),
		opt("FormaPago", "paymentForm"),
		req("NoCertificado", "certificateNumber"),
		req("Certificado", "certificate"),
		opt("CondicionesDePago", "paymentConditions"),
		req("SubTotal", "subtotal").Decimal(),
		opt("Descuento", "discount").Decimal(),
		req("Moneda", "currency"),
		opt("TipoCambio", "exchangeRate").Decimal(),
		req("Total", "total").Decimal(),
		req("TipoDeComprobante", "voucherType"),
	}
	if v.is40() {
		comprobanteAttrs = append(comprobanteAttrs, req("Exportacion", "export"))
	}
	comprobanteAttrs = append(comprobanteAttrs,
		opt("MetodoPago", "paymentMethod"),
		req("LugarExpedicion", "expeditionPlace"),
		opt("Confirmacion", "confirmation"),
	)

	var comprobanteChildren []ChildSpec
	if v.is40() {
		comprobanteChildren = append(comprobanteChildren,
			one(SlotInformacionGlobal, v.t(SlotInformacionGlobal)),
			many(SlotCfdiRelacionados, v.t(SlotCfdiRelacionados)),
		)
	} else {
		comprobanteChildren = append(comprobanteChildren, one(SlotCfdiRelacionados, v.t(SlotCfdiRelacionados)))
	}
	comprobanteChildren = append(comprobanteChildren,
		one(SlotEmisor, v.t(SlotEmisor)),
		one(SlotReceptor, v.t(SlotReceptor)),
		one(SlotConceptos, v.t(SlotConceptos)),
		one(SlotImpuestos, v.t(SlotImpuestos)),
		one(SlotComplemento, v.t(SlotComplemento)),
		one(SlotAddenda, v.t(SlotAddenda)),
	)

	root := v.node("Comprobante", comprobanteAttrs, comprobanteChildren...)
	root.Version = v.version
	root.BaseAttributes = []BaseAttribute{
		{Name: "xmlns:cfdi", Value: v.namespace},
		{Name: "xmlns:xsi", Value: sat.NamespaceXSI},
		{Name: "xsi:schemaLocation", Value: v.namespace + " " + v.schema},
	}

	emisorAttrs := []AttributeSpec{req("Rfc", "rfc"), v.reqIf("Nombre", "name"), req("RegimenFiscal", "taxRegime")}
	if v.is40() {
		emisorAttrs = append(emisorAttrs, opt("FacAtrAdquirente", "acquirerOperationNumber"))
	}

	receptorAttrs := []AttributeSpec{req("Rfc", "rfc"), v.reqIf("Nombre", "name")}
	if v.is40() {
		receptorAttrs = append(receptorAttrs, req("DomicilioFiscalReceptor", "taxAddress"))
	}
	receptorAttrs = append(receptorAttrs, opt("ResidenciaFiscal", "taxResidence"), opt("NumRegIdTrib", "foreignTaxId"))
	if v.is40() {
		receptorAttrs = append(receptorAttrs, req("RegimenFiscalReceptor", "taxRegime"))
	}
	receptorAttrs = append(receptorAttrs, req("UsoCFDI", "cfdiUse"))

	conceptoAttrs := []AttributeSpec{
		req("ClaveProdServ", "productCode"),
		opt("NoIdentificacion", "identificationNumber"),
		req("Cantidad", "quantity").Decimal(),
		req("ClaveUnidad", "unitCode"),
		opt("Unidad", "unit"),
		req("Descripcion", "description"),
		req("ValorUnitario", "unitValue").Decimal(),
		req("Importe", "amount").Decimal(),
		opt("Descuento", "discount").Decimal(),
	}
	if v.is40() {
		conceptoAttrs = append(conceptoAttrs, req("ObjetoImp", "taxObject"))
	}
	conceptoChildren := []ChildSpec{one(SlotImpuestos, v.t("ConceptoImpuestos"))}
	if v.is40() {
		conceptoChildren = append(conceptoChildren,
			one(SlotACuentaTerceros, v.t(SlotACuentaTerceros)),
			many(SlotInfoAduanera, v.t(SlotInfoAduanera)),
			many(SlotCuentaPredial, v.t(SlotCuentaPredial)),
		)
	} else {
		conceptoChildren = append(conceptoChildren,
			many(SlotInfoAduanera, v.t(SlotInfoAduanera)),
			one(SlotCuentaPredial, v.t(SlotCuentaPredial)),
		)
	}
	conceptoChildren = append(conceptoChildren,
		one(SlotComplementoConc, v.t(SlotComplementoConc)),
		many(SlotParte, v.t(SlotParte)),
	)

	trasladoDocAttrs := []AttributeSpec{
		req("Impuesto", "tax"),
		req("TipoFactor", "factorType"),
		req("TasaOCuota", "rateOrQuota").Decimal(),
		req("Importe", "amount").Decimal(),
	}
	if v.is40() {
		trasladoDocAttrs = []AttributeSpec{
			req("Base", "base").Decimal(),
			req("Impuesto", "tax"),
			req("TipoFactor", "factorType"),
			opt("TasaOCuota", "rateOrQuota").Decimal(),
			opt("Importe", "amount").Decimal(),
		}
	}

	complemento := v.node(SlotComplemento, nil)
	complemento.Extensible = true
	complementoConcepto := v.node(SlotComplementoConc, nil)
	complementoConcepto.Extensible = true
	addenda := v.node(SlotAddenda, nil)
	addenda.Opaque = true

	nested := []*Descriptor{
		v.node(SlotCfdiRelacionados, []AttributeSpec{req("TipoRelacion", "relationType")},
			many(SlotCfdiRelacionado, v.t(SlotCfdiRelacionado))),
		v.node(SlotCfdiRelacionado, []AttributeSpec{req("UUID", "uuid")}),
		v.node(SlotEmisor, emisorAttrs),
		v.node(SlotReceptor, receptorAttrs),
		v.node(SlotConceptos, nil, many(SlotConcepto, v.t(SlotConcepto))),
		v.node(SlotConcepto, conceptoAttrs, conceptoChildren...),
		{
			Type: v.t("ConceptoImpuestos"), ElementName: SlotImpuestos, NamespacePrefix: "cfdi", NamespaceURI: v.namespace,
			Children: []ChildSpec{
				one(SlotTraslados, v.t("ConceptoTraslados")),
				one(SlotRetenciones, v.t("ConceptoRetenciones")),
			},
		},
		{
			Type: v.t("ConceptoTraslados"), ElementName: SlotTraslados, NamespacePrefix: "cfdi", NamespaceURI: v.namespace,
			Children: []ChildSpec{many(SlotTraslado, v.t("ConceptoTraslado"))},
		},
		{
			Type: v.t("ConceptoTraslado"), ElementName: SlotTraslado, NamespacePrefix: "cfdi", NamespaceURI: v.namespace,
			Attributes: []AttributeSpec{
				req("Base", "base").Decimal(),
				req("Impuesto", "tax"),
				req("TipoFactor", "factorType"),
				opt("TasaOCuota", "rateOrQuota").Decimal(),
				opt("Importe", "amount").Decimal(),
			},
		},
		{
			Type: v.t("ConceptoRetenciones"), ElementName: SlotRetenciones, NamespacePrefix: "cfdi", NamespaceURI: v.namespace,
			Children: []ChildSpec{many(SlotRetencion, v.t("ConceptoRetencion"))},
		},
		{
			Type: v.t("ConceptoRetencion"), ElementName: SlotRetencion, NamespacePrefix: "cfdi", NamespaceURI: v.namespace,
			Attributes: []AttributeSpec{
				req("Base", "base").Decimal(),
				req("Impuesto", "tax"),
				req("TipoFactor", "factorType"),
				req("TasaOCuota", "rateOrQuota").Decimal(),
				req("Importe", "amount").Decimal(),
			},
		},
		v.node(SlotInfoAduanera, []AttributeSpec{req("NumeroPedimento", "customsNumber")}),
		v.node(SlotCuentaPredial, []AttributeSpec{req("Numero", "number")}),
		complementoConcepto,
		v.node(SlotParte, []AttributeSpec{
			req("ClaveProdServ", "productCode"),
			opt("NoIdentificacion", "identificationNumber"),
			req("Cantidad", "quantity").Decimal(),
			opt("Unidad", "unit"),
			req("Descripcion", "description"),
			opt("ValorUnitario", "unitValue").Decimal(),
			opt("Importe", "amount").Decimal(),
		}, many(SlotInfoAduanera, v.t(SlotInfoAduanera))),
		v.node(SlotImpuestos, []AttributeSpec{
			opt("TotalImpuestosRetenidos", "totalWithheld").Decimal(),
			opt("TotalImpuestosTrasladados", "totalTransferred").Decimal(),
		}, one(SlotRetenciones, v.t(SlotRetenciones)), one(SlotTraslados, v.t(SlotTraslados))),
		v.node(SlotRetenciones, nil, many(SlotRetencion, v.t(SlotRetencion))),
		v.node(SlotRetencion, []AttributeSpec{req("Impuesto", "tax"), req("Importe", "amount").Decimal()}),
		v.node(SlotTraslados, nil, many(SlotTraslado, v.t(SlotTraslado))),
		v.node(SlotTraslado, trasladoDocAttrs),
		complemento,
		addenda,
	}

	if v.is40() {
		nested = append(nested,
			v.node(SlotInformacionGlobal, []AttributeSpec{
				req("Periodicidad", "periodicity"),
				req("Meses", "months"),
				req("Año", "year").Integer(),
			}),
			v.node(SlotACuentaTerceros, []AttributeSpec{
				req("RfcACuentaTerceros", "rfc"),
				req("NombreACuentaTerceros", "name"),
				req("RegimenFiscalACuentaTerceros", "taxRegime"),
				req("DomicilioFiscalACuentaTerceros", "taxAddress"),
			}),
		)
	}
	return root, nested
}

var (
	variantCFDI33 = cfdiVariant{tag: "cfdi33", version: "3.3", namespace: sat.NamespaceCFDI33, schema: sat.SchemaCFDI33}
	variantCFDI40 = cfdiVariant{tag: "cfdi40", version: "4.0", namespace: sat.NamespaceCFDI40, schema: sat.SchemaCFDI40}
)
