package cfdi

import "crypto"

// Reglas de cadena original transcritas de las hojas XSLT publicadas por el SAT
// (cadenaoriginal_3_3.xslt, cadenaoriginal_4_0.xslt, cadenaoriginal_TFD_1_0.xslt,
// cadenaoriginal_TFD_1_1.xslt e implocal.xslt). El orden de los pasos es el orden
// de la hoja de transformación.

func cfdiRules(v cfdiVariant) []Rule {
	comprobante := []Step{
		Required("Version"),
		Optional("Serie"),
		Optional("Folio"),
		Required("Fecha"),
		Optional("FormaPago"),
		Required("NoCertificado"),
		Optional("CondicionesDePago"),
		Required("SubTotal"),
		Optional("Descuento"),
		Required("Moneda"),
		Optional("TipoCambio"),
		Required("Total"),
		Required("TipoDeComprobante"),
	}
	if v.is40() {
		comprobante = append(comprobante, Required("Exportacion"))
	}
	comprobante = append(comprobante,
		Optional("MetodoPago"),
		Required("LugarExpedicion"),
		Optional("Confirmacion"),
	)
	if v.is40() {
		comprobante = append(comprobante, Each(SlotInformacionGlobal))
	}
	comprobante = append(comprobante,
		Each(SlotCfdiRelacionados),
		Each(SlotEmisor),
		Each(SlotReceptor),
		Each(SlotConceptos, SlotConcepto),
		Each(SlotImpuestos),
		Each(SlotComplemento),
	)

	emisor := []Step{Required("Rfc"), Optional("Nombre"), Required("RegimenFiscal")}
	receptor := []Step{Required("Rfc"), Optional("Nombre"), Optional("ResidenciaFiscal"), Optional("NumRegIdTrib"), Required("UsoCFDI")}
	if v.is40() {
		emisor = []Step{Required("Rfc"), Required("Nombre"), Required("RegimenFiscal"), Optional("FacAtrAdquirente")}
		receptor = []Step{
			Required("Rfc"), Required("Nombre"), Required("DomicilioFiscalReceptor"),
			Optional("ResidenciaFiscal"), Optional("NumRegIdTrib"),
			Required("RegimenFiscalReceptor"), Required("UsoCFDI"),
		}
	}

	concepto := []Step{
		Required("ClaveProdServ"),
		Optional("NoIdentificacion"),
		Required("Cantidad"),
		Required("ClaveUnidad"),
		Optional("Unidad"),
		Required("Descripcion"),
		Required("ValorUnitario"),
		Required("Importe"),
		Optional("Descuento"),
	}
	if v.is40() {
		concepto = append(concepto, Required("ObjetoImp"))
	}
	concepto = append(concepto,
		Each(SlotImpuestos, SlotTraslados, SlotTraslado),
		Each(SlotImpuestos, SlotRetenciones, SlotRetencion),
	)
	if v.is40() {
		concepto = append(concepto, Each(SlotACuentaTerceros))
	}
	concepto = append(concepto,
		Each(SlotInfoAduanera),
		Each(SlotCuentaPredial),
		Each(SlotComplementoConc),
		Each(SlotParte),
	)

	trasladoDoc := []Step{Required("Impuesto"), Required("TipoFactor"), Required("TasaOCuota"), Required("Importe")}
	if v.is40() {
		trasladoDoc = []Step{Required("Base"), Required("Impuesto"), Required("TipoFactor"), Optional("TasaOCuota"), Optional("Importe")}
	}

	rules := []Rule{
		{Type: v.t("Comprobante"), Hash: crypto.SHA256, Steps: comprobante},
		{Type: v.t(SlotCfdiRelacionados), Steps: []Step{Required("TipoRelacion"), Each(SlotCfdiRelacionado)}},
		{Type: v.t(SlotCfdiRelacionado), Steps: []Step{Required("UUID")}},
		{Type: v.t(SlotEmisor), Steps: emisor},
		{Type: v.t(SlotReceptor), Steps: receptor},
		{Type: v.t(SlotConcepto), Steps: concepto},
		{Type: v.t("ConceptoTraslado"), Steps: []Step{
			Required("Base"), Required("Impuesto"), Required("TipoFactor"), Optional("TasaOCuota"), Optional("Importe"),
		}},
		{Type: v.t("ConceptoRetencion"), Steps: []Step{
			Required("Base"), Required("Impuesto"), Required("TipoFactor"), Required("TasaOCuota"), Required("Importe"),
		}},
		{Type: v.t(SlotInfoAduanera), Steps: []Step{Required("NumeroPedimento")}},
		{Type: v.t(SlotCuentaPredial), Steps: []Step{Required("Numero")}},
		{Type: v.t(SlotComplementoConc), Steps: []Step{Extensions()}},
		{Type: v.t(SlotParte), Steps: []Step{
			Required("ClaveProdServ"), Optional("NoIdentificacion"), Required("Cantidad"), Optional("Unidad"),
			Required("Descripcion"), Optional("ValorUnitario"), Optional("Importe"),
			Each(SlotInfoAduanera),
		}},
		{Type: v.t(SlotImpuestos), Steps: []Step{
			Each(SlotRetenciones, SlotRetencion),
			Optional("TotalImpuestosRetenidos"),
			Each(SlotTraslados, SlotTraslado),
			Optional("TotalImpuestosTrasladados"),
		}},
		{Type: v.t(SlotRetencion), Steps: []Step{Required("Impuesto"), Required("Importe")}},
		{Type: v.t(SlotTraslado), Steps: trasladoDoc},
		// El timbre se agrega después del sellado: no forma parte de la cadena del comprobante.
		{Type: v.t(SlotComplemento), Steps: []Step{Extensions(TypeTFD10, TypeTFD11)}},
	}
	if v.is40() {
		rules = append(rules,
			Rule{Type: v.t(SlotInformacionGlobal), Steps: []Step{Required("Periodicidad"), Required("Meses"), Required("Año")}},
			Rule{Type: v.t(SlotACuentaTerceros), Steps: []Step{
				Required("RfcACuentaTerceros"), Required("NombreACuentaTerceros"),
				Required("RegimenFiscalACuentaTerceros"), Required("DomicilioFiscalACuentaTerceros"),
			}},
		)
	}
	return rules
}

func tfdRules() []Rule {
	return []Rule{
		{Type: TypeTFD10, Hash: crypto.SHA1, Steps: []Step{
			Required("Version"), Required("UUID"), Required("FechaTimbrado"),
			Required("SelloCFD"), Required("NoCertificadoSAT"),
		}},
		{Type: TypeTFD11, Hash: crypto.SHA256, Steps: []Step{
			Required("Version"), Required("UUID"), Required("FechaTimbrado"), Required("RfcProvCertif"),
			Optional("Leyenda"), Required("SelloCFD"), Required("NoCertificadoSAT"),
		}},
	}
}

func impLocalRules() []Rule {
	return []Rule{
		{Type: TypeImpLocal, Steps: []Step{
			Required("version"), Required("TotaldeRetenciones"), Required("TotaldeTraslados"),
			Each("RetencionesLocales"), Each("TrasladosLocales"),
		}},
		{Type: typeRetLocal, Steps: []Step{Required("ImpLocRetenido"), Required("TasadeRetencion"), Required("Importe")}},
		{Type: typeTrasLocal, Steps: []Step{Required("ImpLocTrasladado"), Required("TasadeTraslado"), Required("Importe")}},
	}
}

// NewDefaultChainGenerator registra las reglas de todos los tipos del registro por defecto.
func NewDefaultChainGenerator() *ChainGenerator {
	g := NewChainGenerator()
	g.Register(cfdiRules(variantCFDI33)...)
	g.Register(cfdiRules(variantCFDI40)...)
	g.Register(tfdRules()...)
	g.Register(impLocalRules()...)
	return g
}
