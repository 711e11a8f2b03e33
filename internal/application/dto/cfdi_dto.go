package dto

import (
	"encoding/hex"
	"time"

	"github.com/jhoicas/cfdi-validator/internal/application/validation"
	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-validator/internal/domain/entity"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/status"
	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

// DiagnosticResponse hallazgo de una etapa de validación.
type DiagnosticResponse struct {
	Stage    string `json:"stage" yaml:"stage"`
	Severity string `json:"severity" yaml:"severity"`
	Code     string `json:"code" yaml:"code"`
	Message  string `json:"message" yaml:"message"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
}

// ValidationResponse reporte de validación de un CFDI.
type ValidationResponse struct {
	ID                   string               `json:"id" yaml:"id"`
	Outcome              string               `json:"outcome" yaml:"outcome"`
	Stage                string               `json:"stage" yaml:"stage"`
	RejectReason         string               `json:"reject_reason,omitempty" yaml:"reject_reason,omitempty"`
	DocumentDigest       string               `json:"document_digest" yaml:"document_digest"`
	Version              string               `json:"version,omitempty" yaml:"version,omitempty"`
	UUID                 string               `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	IssuerRFC            string               `json:"issuer_rfc,omitempty" yaml:"issuer_rfc,omitempty"`
	ReceiverRFC          string               `json:"receiver_rfc,omitempty" yaml:"receiver_rfc,omitempty"`
	Total                string               `json:"total,omitempty" yaml:"total,omitempty"`
	IssuedAt             *time.Time           `json:"issued_at,omitempty" yaml:"issued_at,omitempty"`
	CertificateNumber    string               `json:"certificate_number,omitempty" yaml:"certificate_number,omitempty"`
	SATCertificateNumber string               `json:"sat_certificate_number,omitempty" yaml:"sat_certificate_number,omitempty"`
	Diagnostics          []DiagnosticResponse `json:"diagnostics" yaml:"diagnostics"`
	ValidatedAt          time.Time            `json:"validated_at" yaml:"validated_at"`
	DurationMS           int64                `json:"duration_ms" yaml:"duration_ms"`
	Chain                string               `json:"chain,omitempty" yaml:"chain,omitempty"`
	StampChain           string               `json:"stamp_chain,omitempty" yaml:"stamp_chain,omitempty"`
}

// NewValidationResponse convierte un reporte. Las cadenas originales se incluyen
// solo si res no es nil.
func NewValidationResponse(rep *entity.ValidationReport, res *validation.Result) ValidationResponse {
	out := ValidationResponse{
		ID:                   rep.ID,
		Outcome:              rep.Outcome,
		Stage:                string(rep.Stage),
		RejectReason:         rep.RejectReason,
		DocumentDigest:       rep.DocumentDigest,
		Version:              rep.Version,
		UUID:                 rep.UUID,
		IssuerRFC:            rep.IssuerRFC,
		ReceiverRFC:          rep.ReceiverRFC,
		IssuedAt:             rep.IssuedAt,
		CertificateNumber:    rep.CertificateNumber,
		SATCertificateNumber: rep.SATCertificateNumber,
		Diagnostics:          make([]DiagnosticResponse, 0, len(rep.Diagnostics)),
		ValidatedAt:          rep.ValidatedAt,
		DurationMS:           rep.Duration.Milliseconds(),
	}
	if !rep.Total.IsZero() || rep.Version != "" {
		out.Total = rep.Total.StringFixed(2)
	}
	for _, d := range rep.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, DiagnosticResponse{
			Stage:    string(d.Stage),
			Severity: string(d.Severity),
			Code:     d.Code,
			Message:  d.Message,
			Path:     d.Path,
		})
	}
	if res != nil {
		out.Chain = res.Chain
		out.StampChain = res.StampChain
	}
	return out
}

// BatchItemResponse resultado de un archivo del lote.
type BatchItemResponse struct {
	Name   string              `json:"name" yaml:"name"`
	Report *ValidationResponse `json:"report,omitempty" yaml:"report,omitempty"`
	Error  string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// BatchResponse resultado de un lote.
type BatchResponse struct {
	Summary validation.Summary  `json:"summary" yaml:"summary"`
	Items   []BatchItemResponse `json:"items" yaml:"items"`
}

// NewBatchResponse convierte los resultados de un lote conservando el orden.
func NewBatchResponse(results []validation.ItemResult, withChains bool) BatchResponse {
	out := BatchResponse{Summary: validation.Summarize(results), Items: make([]BatchItemResponse, 0, len(results))}
	for _, r := range results {
		item := BatchItemResponse{Name: r.Name}
		switch {
		case r.Err != nil:
			item.Error = r.Err.Error()
		case r.Result != nil:
			var res *validation.Result
			if withChains {
				res = r.Result
			}
			rep := NewValidationResponse(r.Result.Report, res)
			item.Report = &rep
		}
		out.Items = append(out.Items, item)
	}
	return out
}

// ChainResponse cadena original de un nodo.
type ChainResponse struct {
	Type      string `json:"type" yaml:"type"`
	Chain     string `json:"chain" yaml:"chain"`
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Digest    string `json:"digest" yaml:"digest"` // hex
}

// ChainsResponse cadenas del comprobante y, si está timbrado, del timbre.
type ChainsResponse struct {
	Comprobante ChainResponse  `json:"comprobante" yaml:"comprobante"`
	Timbre      *ChainResponse `json:"timbre,omitempty" yaml:"timbre,omitempty"`
}

// NewChainsResponse genera las cadenas del comprobante y de su timbre.
func NewChainsResponse(chains *cfdi.ChainGenerator, comprobante *cfdi.Node) (ChainsResponse, error) {
	var out ChainsResponse
	resp, err := chainOf(chains, comprobante)
	if err != nil {
		return out, err
	}
	out.Comprobante = resp
	if tfd := cfdi.StampOf(comprobante); tfd != nil {
		resp, err := chainOf(chains, tfd)
		if err != nil {
			return out, err
		}
		out.Timbre = &resp
	}
	return out, nil
}

func chainOf(chains *cfdi.ChainGenerator, n *cfdi.Node) (ChainResponse, error) {
	chain, digest, hash, err := chains.Digest(n)
	if err != nil {
		return ChainResponse{}, err
	}
	return ChainResponse{Type: n.Type(), Chain: chain, Algorithm: hash.String(), Digest: hex.EncodeToString(digest)}, nil
}

// RFCResponse resultado de validar un RFC.
type RFCResponse struct {
	Input           string `json:"input" yaml:"input"`
	Valid           bool   `json:"valid" yaml:"valid"`
	RFC             string `json:"rfc,omitempty" yaml:"rfc,omitempty"`
	Kind            string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Generic         bool   `json:"generic" yaml:"generic"`
	CheckDigitValid bool   `json:"check_digit_valid" yaml:"check_digit_valid"`
	Error           string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewRFCResponse valida un RFC. Con strict se exige el dígito verificador.
func NewRFCResponse(input string, strict bool) RFCResponse {
	parse := sat.ParseRFC
	if strict {
		parse = sat.ParseRFCStrict
	}
	out := RFCResponse{Input: input}
	r, err := parse(input)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Valid = true
	out.RFC = r.String()
	out.Kind = r.Kind().String()
	out.Generic = r.IsGeneric()
	out.CheckDigitValid = r.IsGeneric() || r.CheckSumMatches()
	return out
}

// StatusResponse estado de un CFDI en el SAT.
type StatusResponse struct {
	UUID       string        `json:"uuid" yaml:"uuid"`
	Expression string        `json:"expression" yaml:"expression"`
	Found      bool          `json:"found" yaml:"found"`
	Active     bool          `json:"active" yaml:"active"`
	Status     status.Status `json:"status" yaml:"status"`
}

// NewStatusResponse combina la respuesta del servicio con la expresión consultada.
func NewStatusResponse(data sat.ExpressionData, st *status.Status) StatusResponse {
	return StatusResponse{
		UUID:       data.UUID,
		Expression: sat.StatusExpression(data),
		Found:      st.Found(),
		Active:     st.Active(),
		Status:     *st,
	}
}

// ReportListResponse página de reportes.
type ReportListResponse struct {
	Items []ValidationResponse `json:"items"`
	Page  PageResponse         `json:"page"`
}
