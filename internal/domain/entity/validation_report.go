package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stage etapa alcanzada por la validación de un documento.
type Stage string

// Etapas en el orden en que se recorren. El rechazo no es una etapa: un reporte
// rechazado conserva la última etapa superada.
const (
	StageUnparsed            Stage = "UNPARSED"
	StageSchemaValid         Stage = "SCHEMA_VALID"
	StageModelBuilt          Stage = "MODEL_BUILT"
	StageChainDerived        Stage = "CHAIN_DERIVED"
	StageSignatureVerified   Stage = "SIGNATURE_VERIFIED"
	StageCertificateVerified Stage = "CERTIFICATE_VERIFIED"
	StageAccepted            Stage = "ACCEPTED"
)

// Rank posición de la etapa en el recorrido; -1 si es desconocida.
func (s Stage) Rank() int {
	switch s {
	case StageUnparsed:
		return 0
	case StageSchemaValid:
		return 1
	case StageModelBuilt:
		return 2
	case StageChainDerived:
		return 3
	case StageSignatureVerified:
		return 4
	case StageCertificateVerified:
		return 5
	case StageAccepted:
		return 6
	default:
		return -1
	}
}

// Severity gravedad de un diagnóstico. Solo Error impide la aceptación.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Diagnostic hallazgo de una etapa.
type Diagnostic struct {
	Stage    Stage    `json:"stage"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Path     string   `json:"path,omitempty"`
}

// Resultado global.
const (
	OutcomeAccepted = "ACCEPTED"
	OutcomeRejected = "REJECTED"
)

// ValidationReport resultado de validar un CFDI.
type ValidationReport struct {
	ID                   string // identificador de la ejecución
	DocumentDigest       string // SHA-256 (hex) del documento canonicalizado
	Version              string
	UUID                 string // folio fiscal del timbre
	IssuerRFC            string
	ReceiverRFC          string
	Total                decimal.Decimal
	IssuedAt             *time.Time
	CertificateNumber    string
	SATCertificateNumber string
	Stage                Stage // última etapa superada
	Outcome              string
	RejectReason         string
	Diagnostics          []Diagnostic
	ValidatedAt          time.Time
	Duration             time.Duration
}

// Accepted indica si el documento fue aceptado.
func (r *ValidationReport) Accepted() bool { return r.Outcome == OutcomeAccepted }

// Errors diagnósticos con severidad Error.
func (r *ValidationReport) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}
