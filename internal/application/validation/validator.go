// Package validation orquesta la validación completa de un CFDI:
//
//	Esquema → Modelo → Cadena original → Sellos → Certificados → Aceptado
//
// Cada etapa agrega diagnósticos en lugar de abortar cuando la siguiente puede
// ejecutarse de forma independiente. Solo un modelo imposible de construir detiene
// el recorrido. Un documento con cualquier diagnóstico de severidad ERROR se rechaza
// y el reporte conserva la última etapa superada.
package validation

import (
	"context"
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-validator/internal/domain/entity"
	"github.com/jhoicas/cfdi-validator/internal/domain/repository"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/certificate"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/resolver"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/schema"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/xmlmap"
	"github.com/jhoicas/cfdi-validator/pkg/logger"
)

// Códigos de diagnóstico del orquestador. Los errores de mapeo y de cadena usan el
// nombre de su tipo (MISSING_REQUIRED_ATTRIBUTE, UNSUPPORTED_NODE, ...) y las reglas
// de negocio sus propios códigos.
const (
	CodeSchema                = "ESQUEMA"
	CodeSchemaSkipped         = "ESQUEMA_OMITIDO"
	CodeMalformed             = "XML_MAL_FORMADO"
	CodeNotComprobante        = "NO_ES_COMPROBANTE"
	CodeMissingStamp          = "SIN_TIMBRE"
	CodeCertificateUnresolved = "CERTIFICADO_NO_RESUELTO"
	CodeCertificateInvalid    = "CERTIFICADO_INVALIDO"
	CodeCertificateMismatch   = "CERTIFICADO_DISTINTO"
	CodeSealInvalid           = "SELLO_INVALIDO"
	CodeSealCFDMismatch       = "SELLO_CFD_DISTINTO"
	CodeSATSealInvalid        = "SELLO_SAT_INVALIDO"
	CodeNotAuthentic          = "CERTIFICADO_NO_AUTENTICO"
	CodeVerificationError     = "VERIFICACION_INCOMPLETA"
	CodeRFCMismatch           = "RFC_CERTIFICADO_DISTINTO"
	CodeRevoked               = "CERTIFICADO_REVOCADO"
	CodeOCSPUnavailable       = "OCSP_NO_DISPONIBLE"
	CodeRawDigest             = "HUELLA_SIN_C14N"
)

// Config ajustes del recorrido.
type Config struct {
	SchemaSet    schema.Set // nil = schema.DefaultSet()
	RequireStamp bool       // rechaza comprobantes sin Timbre Fiscal Digital
}

// Deps colaboradores del orquestador. Mapper y Chains son obligatorios; el resto es
// opcional. Sin Certs se usa el certificado embebido; sin Trust la verificación de
// cadena da VerificationError y el documento se rechaza.
type Deps struct {
	Schema   schema.Validator
	Mapper   *xmlmap.Mapper
	Chains   *cfdi.ChainGenerator
	Certs    resolver.Resolver
	Trust    certificate.Authority
	OCSP     RevocationChecker
	Reports  repository.ValidationReportRepository
	Observer ReportObserver
	Logger   *logger.Logger
}

// Validator orquestador de validación. Es seguro para uso concurrente.
type Validator struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

// NewValidator construye el orquestador.
func NewValidator(deps Deps, cfg Config) *Validator {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if cfg.SchemaSet == nil {
		cfg.SchemaSet = schema.DefaultSet()
	}
	return &Validator{deps: deps, cfg: cfg, now: time.Now}
}

// Result reporte más los artefactos derivados que consumen la API y la CLI.
type Result struct {
	Report      *entity.ValidationReport
	Comprobante *cfdi.Node // nil si el modelo no pudo construirse
	Chain       string     // cadena original del comprobante
	StampChain  string     // cadena original del timbre
}

// Validate recorre todas las etapas sobre un documento. Nunca devuelve un documento
// parcialmente validado como aceptado. ctx acota la resolución de certificados y la
// consulta OCSP.
func (v *Validator) Validate(ctx context.Context, data []byte) *Result {
	start := v.now()
	rep := &entity.ValidationReport{
		ID:          uuid.NewString(),
		Stage:       entity.StageUnparsed,
		ValidatedAt: start.UTC(),
	}
	r := &run{report: rep, current: entity.StageUnparsed}
	res := &Result{Report: rep}
	log := v.deps.Logger.Child("run_id", rep.ID)

	rep.DocumentDigest = v.fingerprint(r, data)

	// ═══════════════════════════════════════════════════════════════════════
	// 1. Esquema
	// ═══════════════════════════════════════════════════════════════════════
	r.begin(entity.StageSchemaValid)
	if v.deps.Schema == nil {
		r.add(entity.SeverityInfo, CodeSchemaSkipped, "", "revisión de esquema no configurada")
	} else {
		ok, errs := v.deps.Schema.Validate(data, v.cfg.SchemaSet)
		for _, e := range errs {
			r.add(entity.SeverityError, CodeSchema, "", e)
		}
		if !ok && len(errs) == 0 {
			r.add(entity.SeverityError, CodeSchema, "", "documento rechazado por el esquema")
		}
	}
	r.pass()
	log.Debug().Str("stage", string(entity.StageSchemaValid)).Bool("failed", r.failed).Msg("validation: esquema")

	// ═══════════════════════════════════════════════════════════════════════
	// 2. Modelo (un fallo aquí detiene el recorrido)
	// ═══════════════════════════════════════════════════════════════════════
	r.begin(entity.StageModelBuilt)
	root := v.buildModel(r, data)
	if root == nil {
		return v.finish(ctx, log, res, start)
	}
	res.Comprobante = root
	summarize(rep, root)

	for _, is := range v.deps.Mapper.Registry().Validate(root) {
		sev := entity.SeverityError
		if is.Warning {
			sev = entity.SeverityWarning
		}
		r.add(sev, is.Code, is.NodeType, is.Message)
	}
	tfd := cfdi.StampOf(root)
	if tfd == nil && v.cfg.RequireStamp {
		r.add(entity.SeverityError, CodeMissingStamp, cfdi.SlotComplemento, "el comprobante no tiene Timbre Fiscal Digital")
	}
	r.pass()

	// ═══════════════════════════════════════════════════════════════════════
	// 3. Cadena original
	// ═══════════════════════════════════════════════════════════════════════
	r.begin(entity.StageChainDerived)
	seal := digestOf(r, v.deps.Chains, root)
	res.Chain = seal.chain
	var stamp digest
	if tfd != nil {
		stamp = digestOf(r, v.deps.Chains, tfd)
		res.StampChain = stamp.chain
	}
	r.pass()

	// ═══════════════════════════════════════════════════════════════════════
	// 4. Sellos
	// ═══════════════════════════════════════════════════════════════════════
	r.begin(entity.StageSignatureVerified)
	signer := v.signerCertificate(ctx, r, root)
	if signer != nil && seal.ok() && !certificate.VerifySignatureBase64(seal.hash, seal.sum, root.Value("Sello"), signer) {
		r.add(entity.SeverityError, CodeSealInvalid, "Sello",
			fmt.Sprintf("el sello no corresponde a la cadena original con el certificado %s", certificate.Number(signer)))
	}
	var satCert *x509.Certificate
	if tfd != nil {
		if tfd.Value("SelloCFD") != root.Value("Sello") {
			r.add(entity.SeverityError, CodeSealCFDMismatch, "SelloCFD", "el SelloCFD del timbre no es el Sello del comprobante")
		}
		satCert = v.resolveRequired(ctx, r, tfd.Value("NoCertificadoSAT"), "NoCertificadoSAT")
		if satCert != nil && stamp.ok() && !certificate.VerifySignatureBase64(stamp.hash, stamp.sum, tfd.Value("SelloSAT"), satCert) {
			r.add(entity.SeverityError, CodeSATSealInvalid, "SelloSAT",
				fmt.Sprintf("el sello del SAT no corresponde a la cadena del timbre con el certificado %s", certificate.Number(satCert)))
		}
	}
	r.pass()

	// ═══════════════════════════════════════════════════════════════════════
	// 5. Certificados
	// ═══════════════════════════════════════════════════════════════════════
	r.begin(entity.StageCertificateVerified)
	if signer != nil {
		at := timeOrZero(root, "Fecha")
		v.verifyChain(r, signer, at, "Certificado")
		if rfc := certificate.RFC(signer); rfc != "" && rep.IssuerRFC != "" && !strings.EqualFold(rfc, rep.IssuerRFC) {
			r.add(entity.SeverityError, CodeRFCMismatch, "Emisor",
				fmt.Sprintf("el certificado pertenece a %s, el emisor es %s", rfc, rep.IssuerRFC))
		}
		v.checkRevocation(ctx, r, signer)
	}
	if satCert != nil {
		v.verifyChain(r, satCert, timeOrZero(tfd, "FechaTimbrado"), "NoCertificadoSAT")
	}
	r.pass()

	return v.finish(ctx, log, res, start)
}

// ── Etapas ───────────────────────────────────────────────────────────────────

// fingerprint SHA-256 del documento canonicalizado (C14N). Si no se puede
// canonicalizar se usa el contenido tal cual.
func (v *Validator) fingerprint(r *run, data []byte) string {
	canon, err := xmlmap.Canonicalize(data)
	if err != nil {
		r.add(entity.SeverityInfo, CodeRawDigest, "", "huella calculada sobre el contenido sin canonicalizar")
		canon = data
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

func (v *Validator) buildModel(r *run, data []byte) *cfdi.Node {
	doc, err := xmlmap.ParseDocument(data)
	if err != nil {
		r.add(entity.SeverityError, CodeMalformed, "", err.Error())
		return nil
	}
	root, err := v.deps.Mapper.FromRoot(doc.Root())
	if err != nil {
		code, path := CodeMalformed, ""
		var me *cfdi.MappingError
		if errors.As(err, &me) {
			code, path = me.Kind.String(), me.NodeType
		}
		r.add(entity.SeverityError, code, path, err.Error())
		return nil
	}
	if !cfdi.IsComprobante(root) {
		r.add(entity.SeverityError, CodeNotComprobante, root.Type(), "la raíz no es un Comprobante CFDI 3.3 o 4.0")
		return nil
	}
	return root
}

// digest cadena original y su hash; sum vacío si no pudo derivarse.
type digest struct {
	chain string
	sum   []byte
	hash  crypto.Hash
}

func (d digest) ok() bool { return len(d.sum) > 0 }

func digestOf(r *run, chains *cfdi.ChainGenerator, n *cfdi.Node) digest {
	chain, sum, hash, err := chains.Digest(n)
	if err != nil {
		code := "CHAIN_ERROR"
		var ce *cfdi.ChainError
		if errors.As(err, &ce) {
			code = ce.Kind.String()
		}
		r.add(entity.SeverityError, code, n.Type(), err.Error())
		return digest{}
	}
	return digest{chain: chain, sum: sum, hash: hash}
}

// signerCertificate certificado del emisor: el resuelto por NoCertificado, o el
// embebido en Certificado si la resolución no lo encuentra o falla la red.
func (v *Validator) signerCertificate(ctx context.Context, r *run, root *cfdi.Node) *x509.Certificate {
	number := root.Value("NoCertificado")

	var embedded *x509.Certificate
	if b64 := root.Value("Certificado"); b64 != "" {
		cert, err := certificate.ParseBase64(b64)
		if err != nil {
			r.add(entity.SeverityError, CodeCertificateInvalid, "Certificado", "certificado embebido ilegible: "+err.Error())
		} else {
			embedded = cert
			if got := certificate.Number(cert); got != certificate.SanitizeNumber(number) {
				r.add(entity.SeverityError, CodeCertificateMismatch, "NoCertificado",
					fmt.Sprintf("NoCertificado %s no corresponde al certificado embebido (%s)", number, got))
			}
		}
	}

	resolved, err := v.resolve(ctx, number)
	switch {
	case err == nil:
		if embedded != nil && !resolved.Equal(embedded) {
			r.add(entity.SeverityError, CodeCertificateMismatch, "Certificado",
				fmt.Sprintf("el certificado embebido no es el publicado para %s", number))
		}
		return resolved
	case resolver.CodeOf(err) == resolver.InvalidCertificateNumber:
		r.add(entity.SeverityError, CodeCertificateUnresolved, "NoCertificado", err.Error())
		return embedded
	case embedded != nil:
		r.add(entity.SeverityWarning, CodeCertificateUnresolved, "NoCertificado", err.Error()+"; se usa el certificado embebido")
		return embedded
	default:
		r.add(entity.SeverityError, CodeCertificateUnresolved, "NoCertificado", err.Error())
		return nil
	}
}

// resolveRequired resuelve un certificado sin alternativa: cualquier falla es error.
func (v *Validator) resolveRequired(ctx context.Context, r *run, number, path string) *x509.Certificate {
	cert, err := v.resolve(ctx, number)
	if err != nil {
		r.add(entity.SeverityError, CodeCertificateUnresolved, path, err.Error())
		return nil
	}
	return cert
}

func (v *Validator) resolve(ctx context.Context, number string) (*x509.Certificate, error) {
	if v.deps.Certs == nil {
		return nil, &resolver.ResolutionError{Code: resolver.NotFound, Number: number, Err: errors.New("sin resolvedor configurado")}
	}
	pemText, err := v.deps.Certs.Resolve(ctx, number)
	if err != nil {
		return nil, err
	}
	cert, err := certificate.Parse([]byte(pemText))
	if err != nil {
		return nil, fmt.Errorf("certificado %s: %w", number, err)
	}
	return cert, nil
}

// verifyChain verificación de tres estados; VerificationError nunca se trata como aprobada.
func (v *Validator) verifyChain(r *run, cert *x509.Certificate, at time.Time, path string) {
	result := certificate.VerificationError
	if v.deps.Trust != nil {
		result = v.deps.Trust.VerifyCert(cert, at)
	}
	switch result {
	case certificate.Authentic:
	case certificate.NotAuthentic:
		r.add(entity.SeverityError, CodeNotAuthentic, path,
			fmt.Sprintf("el certificado %s no fue emitido por una autoridad confiable o no estaba vigente", certificate.Number(cert)))
	default:
		r.add(entity.SeverityError, CodeVerificationError, path,
			fmt.Sprintf("no se pudo completar la verificación del certificado %s", certificate.Number(cert)))
	}
}

func (v *Validator) checkRevocation(ctx context.Context, r *run, cert *x509.Certificate) {
	if v.deps.OCSP == nil {
		return
	}
	result, err := v.deps.OCSP.Check(ctx, cert)
	switch result {
	case certificate.Authentic:
	case certificate.NotAuthentic:
		r.add(entity.SeverityError, CodeRevoked, "Certificado", errText(err, "certificado revocado"))
	default:
		r.add(entity.SeverityWarning, CodeOCSPUnavailable, "Certificado", errText(err, "estado de revocación desconocido"))
	}
}

// finish cierra el reporte: resultado, duración, bitácora, métricas y persistencia.
func (v *Validator) finish(ctx context.Context, log *logger.Logger, res *Result, start time.Time) *Result {
	rep := res.Report
	if firstErr, failed := firstError(rep.Diagnostics); failed {
		rep.Outcome = entity.OutcomeRejected
		rep.RejectReason = firstErr.Code + ": " + firstErr.Message
	} else {
		rep.Stage = entity.StageAccepted
		rep.Outcome = entity.OutcomeAccepted
	}
	rep.Duration = v.now().Sub(start)

	log.Info().
		Str("outcome", rep.Outcome).
		Str("stage", string(rep.Stage)).
		Str("uuid", rep.UUID).
		Str("issuer", rep.IssuerRFC).
		Int("diagnostics", len(rep.Diagnostics)).
		Dur("duration", rep.Duration).
		Msg("validation: documento procesado")

	if v.deps.Observer != nil {
		v.deps.Observer.ObserveReport(rep)
	}
	if v.deps.Reports != nil {
		if err := v.deps.Reports.Save(ctx, rep); err != nil {
			log.Error().Err(err).Msg("validation: no se pudo guardar el reporte")
		}
	}
	return res
}

// ── helpers ──────────────────────────────────────────────────────────────────

// run estado de una validación en curso.
type run struct {
	report   *entity.ValidationReport
	current  entity.Stage
	stageErr bool // la etapa en curso registró errores
	failed   bool // alguna etapa falló; las siguientes ya no avanzan
}

func (r *run) begin(stage entity.Stage) {
	r.current = stage
	r.stageErr = false
}

// pass avanza la etapa alcanzada si esta y todas las anteriores terminaron sin errores.
func (r *run) pass() {
	if r.stageErr {
		r.failed = true
	}
	if !r.failed && r.current.Rank() > r.report.Stage.Rank() {
		r.report.Stage = r.current
	}
}

func (r *run) add(sev entity.Severity, code, path, msg string) {
	if sev == entity.SeverityError {
		r.stageErr = true
	}
	r.report.Diagnostics = append(r.report.Diagnostics, entity.Diagnostic{
		Stage:    r.current,
		Severity: sev,
		Code:     code,
		Message:  msg,
		Path:     path,
	})
}

// summarize copia al reporte los datos de identificación del comprobante.
func summarize(rep *entity.ValidationReport, root *cfdi.Node) {
	rep.Version = root.Value("Version")
	rep.CertificateNumber = root.Value("NoCertificado")
	if e := root.Child(cfdi.SlotEmisor); e != nil {
		rep.IssuerRFC = strings.ToUpper(e.Value("Rfc"))
	}
	if rc := root.Child(cfdi.SlotReceptor); rc != nil {
		rep.ReceiverRFC = strings.ToUpper(rc.Value("Rfc"))
	}
	if total, err := root.Decimal("Total"); err == nil {
		rep.Total = total
	}
	if t, err := root.DateTime("Fecha"); err == nil {
		rep.IssuedAt = &t
	}
	if tfd := cfdi.StampOf(root); tfd != nil {
		rep.UUID = strings.ToUpper(tfd.Value("UUID"))
		rep.SATCertificateNumber = tfd.Value("NoCertificadoSAT")
	}
}

func timeOrZero(n *cfdi.Node, attr string) time.Time {
	t, err := n.DateTime(attr)
	if err != nil {
		return time.Time{}
	}
	return t
}

func firstError(diags []entity.Diagnostic) (entity.Diagnostic, bool) {
	for _, d := range diags {
		if d.Severity == entity.SeverityError {
			return d, true
		}
	}
	return entity.Diagnostic{}, false
}

func errText(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
