// Package sat contiene catálogos, espacios de nombres y validaciones alineados al
// Anexo 20 de la Resolución Miscelánea Fiscal (CFDI 3.3 y 4.0, SAT México).
package sat

import "time"

// =============================================================================
// Espacios de nombres y ubicaciones de esquema
// =============================================================================

const (
	NamespaceXSI = "http://www.w3.org/2001/XMLSchema-instance"

	NamespaceCFDI33 = "http://www.sat.gob.mx/cfd/3"
	SchemaCFDI33    = "http://www.sat.gob.mx/sitio_internet/cfd/3/cfdv33.xsd"

	NamespaceCFDI40 = "http://www.sat.gob.mx/cfd/4"
	SchemaCFDI40    = "http://www.sat.gob.mx/sitio_internet/cfd/4/cfdv40.xsd"

	// El Timbre Fiscal Digital 1.0 y 1.1 comparten espacio de nombres; se distinguen por versión.
	NamespaceTFD = "http://www.sat.gob.mx/TimbreFiscalDigital"
	SchemaTFD10  = "http://www.sat.gob.mx/sitio_internet/TimbreFiscalDigital/TimbreFiscalDigital.xsd"
	SchemaTFD11  = "http://www.sat.gob.mx/sitio_internet/cfd/TimbreFiscalDigital/TimbreFiscalDigitalv11.xsd"

	NamespaceImpLocal = "http://www.sat.gob.mx/implocal"
	SchemaImpLocal    = "http://www.sat.gob.mx/sitio_internet/cfd/implocal/implocal.xsd"
)

// =============================================================================
// Servicios públicos
// =============================================================================

const (
	// Repositorio de certificados de sello (CSD) y del SAT. Ruta: /<6>/<6>/<2>/<2>/<2>/<numero>.cer
	CertificateRepositoryURL = "https://rdc.sat.gob.mx/rccf"
	// Verificación pública de CFDI (código QR de la representación impresa).
	VerificationURL = "https://verificacfdi.facturaelectronica.sat.gob.mx/default.aspx"
	// Servicio SOAP de consulta de estado de CFDI.
	StatusServiceURL = "https://consultaqr.facturaelectronica.sat.gob.mx/ConsultaCFDIService.svc"
)

// CertificateNumberLength longitud del número de certificado en el esquema de consulta en línea.
const CertificateNumberLength = 20

// =============================================================================
// Fechas
// =============================================================================

// DateTimeLayout formato de fecha de los atributos Fecha y FechaTimbrado (sin zona).
const DateTimeLayout = "2006-01-02T15:04:05"

// Location zona horaria fija (UTC-6) con la que se interpretan las fechas sin zona.
var Location = time.FixedZone("CST", -6*60*60)

// FormatDateTime formatea t en la zona fija del SAT.
func FormatDateTime(t time.Time) string {
	return t.In(Location).Format(DateTimeLayout)
}

// ParseDateTime interpreta una fecha AAAA-MM-DDThh:mm:ss en la zona fija del SAT.
func ParseDateTime(s string) (time.Time, error) {
	return time.ParseInLocation(DateTimeLayout, s, Location)
}

// =============================================================================
// c_TipoDeComprobante
// =============================================================================

const (
	TipoComprobanteIngreso  = "I"
	TipoComprobanteEgreso   = "E"
	TipoComprobanteTraslado = "T"
	TipoComprobanteNomina   = "N"
	TipoComprobantePago     = "P"
)

// ValidTipoDeComprobante tipos de comprobante admitidos.
var ValidTipoDeComprobante = map[string]bool{
	TipoComprobanteIngreso:  true,
	TipoComprobanteEgreso:   true,
	TipoComprobanteTraslado: true,
	TipoComprobanteNomina:   true,
	TipoComprobantePago:     true,
}

// =============================================================================
// c_Impuesto y c_TipoFactor
// =============================================================================

const (
	ImpuestoISR  = "001"
	ImpuestoIVA  = "002"
	ImpuestoIEPS = "003"

	TipoFactorTasa   = "Tasa"
	TipoFactorCuota  = "Cuota"
	TipoFactorExento = "Exento"
)

// ValidImpuesto claves de impuesto federal.
var ValidImpuesto = map[string]bool{ImpuestoISR: true, ImpuestoIVA: true, ImpuestoIEPS: true}

// ValidTipoFactor tipos de factor.
var ValidTipoFactor = map[string]bool{TipoFactorTasa: true, TipoFactorCuota: true, TipoFactorExento: true}
