package cfdi

import (
	"fmt"

	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

const (
	TypeTFD10     = "tfd10:TimbreFiscalDigital"
	TypeTFD11     = "tfd11:TimbreFiscalDigital"
	TypeImpLocal  = "implocal10:ImpuestosLocales"
	typeRetLocal  = "implocal10:RetencionesLocales"
	typeTrasLocal = "implocal10:TrasladosLocales"
)

// tfd11 Timbre Fiscal Digital 1.1 (CFDI 3.3 y 4.0).
func tfd11() *Descriptor {
	return &Descriptor{
		Type:            TypeTFD11,
		ElementName:     "TimbreFiscalDigital",
		NamespacePrefix: "tfd",
		NamespaceURI:    sat.NamespaceTFD,
		Version:         "1.1",
		BaseAttributes: []BaseAttribute{
			{Name: "xmlns:tfd", Value: sat.NamespaceTFD},
			{Name: "xmlns:xsi", Value: sat.NamespaceXSI},
			{Name: "xsi:schemaLocation", Value: sat.NamespaceTFD + " " + sat.SchemaTFD11},
		},
		Attributes: []AttributeSpec{
			Req("Version", "Version", "version"),
			Req("UUID", "UUID", "uuid"),
			Req("FechaTimbrado", "FechaTimbrado", "stampDate").DateTime(),
			Req("RfcProvCertif", "RfcProvCertif", "certificateProviderRfc"),
			Opt("Leyenda", "Leyenda", "legend"),
			Req("SelloCFD", "SelloCFD", "cfdiSignature"),
			Req("NoCertificadoSAT", "NoCertificadoSAT", "satCertificateNumber"),
			Req("SelloSAT", "SelloSAT", "satSignature"),
		},
	}
}

// tfd10 Timbre Fiscal Digital 1.0 (CFDI 3.2); atributos en minúscula inicial.
func tfd10() *Descriptor {
	return &Descriptor{
		Type:            TypeTFD10,
		ElementName:     "TimbreFiscalDigital",
		NamespacePrefix: "tfd",
		NamespaceURI:    sat.NamespaceTFD,
		Version:         "1.0",
		BaseAttributes: []BaseAttribute{
			{Name: "xmlns:tfd", Value: sat.NamespaceTFD},
			{Name: "xmlns:xsi", Value: sat.NamespaceXSI},
			{Name: "xsi:schemaLocation", Value: sat.NamespaceTFD + " " + sat.SchemaTFD10},
		},
		Attributes: []AttributeSpec{
			Req("Version", "version", ""),
			Req("UUID", "UUID", "uuid"),
			Req("FechaTimbrado", "FechaTimbrado", "stampDate").DateTime(),
			Req("SelloCFD", "selloCFD", "cfdiSignature"),
			Req("NoCertificadoSAT", "noCertificadoSAT", "satCertificateNumber"),
			Req("SelloSAT", "selloSAT", "satSignature"),
		},
	}
}

// impLocal10 complemento de impuestos locales 1.0. Sirve también como ejemplo de
// complemento conectado al motor mediante RegisterComplement.
func impLocal10() (*Descriptor, []*Descriptor) {
	node := func(typ, element string, attrs []AttributeSpec, children ...ChildSpec) *Descriptor {
		return &Descriptor{
			Type:            typ,
			ElementName:     element,
			NamespacePrefix: "implocal",
			NamespaceURI:    sat.NamespaceImpLocal,
			Attributes:      attrs,
			Children:        children,
		}
	}
	root := node(TypeImpLocal, "ImpuestosLocales", []AttributeSpec{
		Req("version", "version", ""),
		Req("TotaldeRetenciones", "TotaldeRetenciones", "totalWithheld").Decimal(),
		Req("TotaldeTraslados", "TotaldeTraslados", "totalTransferred").Decimal(),
	},
		Children("RetencionesLocales", "RetencionesLocales", typeRetLocal),
		Children("TrasladosLocales", "TrasladosLocales", typeTrasLocal),
	)
	root.Version = "1.0"
	root.BaseAttributes = []BaseAttribute{
		{Name: "xmlns:implocal", Value: sat.NamespaceImpLocal},
		{Name: "xmlns:xsi", Value: sat.NamespaceXSI},
		{Name: "xsi:schemaLocation", Value: sat.NamespaceImpLocal + " " + sat.SchemaImpLocal},
	}
	return root, []*Descriptor{
		node(typeRetLocal, "RetencionesLocales", []AttributeSpec{
			Req("ImpLocRetenido", "ImpLocRetenido", "localTax"),
			Req("TasadeRetencion", "TasadeRetencion", "rate").Decimal(),
			Req("Importe", "Importe", "amount").Decimal(),
		}),
		node(typeTrasLocal, "TrasladosLocales", []AttributeSpec{
			Req("ImpLocTrasladado", "ImpLocTrasladado", "localTax"),
			Req("TasadeTraslado", "TasadeTraslado", "rate").Decimal(),
			Req("Importe", "Importe", "amount").Decimal(),
		}),
	}
}

// NewDefaultRegistry registra CFDI 3.3, CFDI 4.0, Timbre Fiscal Digital 1.0/1.1 e
// impuestos locales 1.0.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, v := range []cfdiVariant{variantCFDI33, variantCFDI40} {
		root, nested := cfdiDescriptors(v)
		if err := r.RegisterDocument(root, nested...); err != nil {
			return nil, err
		}
	}
	if err := r.RegisterComplement(tfd10()); err != nil {
		return nil, err
	}
	if err := r.RegisterComplement(tfd11()); err != nil {
		return nil, err
	}
	root, nested := impLocal10()
	if err := r.RegisterComplement(root, nested...); err != nil {
		return nil, err
	}
	if err := r.Check(); err != nil {
		return nil, fmt.Errorf("cfdi: registro por defecto inconsistente: %w", err)
	}
	return r, nil
}

// MustDefaultRegistry igual que NewDefaultRegistry pero hace panic si falla.
func MustDefaultRegistry() *Registry {
	r, err := NewDefaultRegistry()
	if err != nil {
		panic(err)
	}
	return r
}
