package validation_test

import (
	"context"
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cfdi-validator/internal/application/validation"
	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-validator/internal/domain/entity"
	"github.com/jhoicas/cfdi-validator/internal/domain/repository"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/certificate"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/certificate/certtest"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/credential"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/resolver"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/schema"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/xmlmap"
)

const (
	emisorNumber = "30001000000400002434"
	satNumber    = "00001000000505211329"
	folio        = "5fb2822e-396d-4725-8521-cdc4bdd20ccf"
)

// fixture comprobante sellado y timbrado con una AC de prueba.
type fixture struct {
	root   *certtest.Authority
	emisor *certtest.Leaf
	pac    *certtest.Leaf
	mapper *xmlmap.Mapper
	chains *cfdi.ChainGenerator
	certs  string // directorio del resolvedor local
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := certtest.NewAuthority(t, "AC RAIZ PRUEBA")
	f := &fixture{
		root:   root,
		emisor: root.Issue(t, certtest.LeafOptions{Number: emisorNumber, RFC: "EKU9003173C9", Name: "ESCUELA KEMPER URGATE"}),
		pac:    root.Issue(t, certtest.LeafOptions{Number: satNumber, RFC: "SAT970701NN3"}),
		chains: cfdi.NewDefaultChainGenerator(),
		certs:  t.TempDir(),
	}
	reg := cfdi.MustDefaultRegistry()
	cfdi.RegisterBusinessRules(reg, cfdi.RuleOptions{})
	f.mapper = xmlmap.NewMapper(reg)
	f.publish(t, f.emisor)
	f.publish(t, f.pac)
	return f
}

func (f *fixture) publish(t *testing.T, leaf *certtest.Leaf) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.certs, leaf.Number+".cer"), leaf.DER, 0o600))
}

// document devuelve el XML sellado; con stamp agrega el timbre.
func (f *fixture) document(t *testing.T, stamp bool) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/unsigned40.xml")
	require.NoError(t, err)
	doc, err := xmlmap.ParseDocument(data)
	require.NoError(t, err)

	emisorCred, err := credential.New(f.emisor.Cert, f.emisor.Key)
	require.NoError(t, err)
	require.NoError(t, credential.NewSealer(emisorCred, f.mapper, f.chains).Seal(doc))

	if stamp {
		pacCred, err := credential.New(f.pac.Cert, f.pac.Key)
		require.NoError(t, err)
		require.NoError(t, credential.NewSealer(pacCred, f.mapper, f.chains).Stamp(doc, credential.StampOptions{
			UUID:          folio,
			FechaTimbrado: time.Date(2023, 3, 10, 15, 31, 0, 0, time.UTC),
		}))
	}
	out, err := doc.WriteToBytes()
	require.NoError(t, err)
	return out
}

func (f *fixture) trust(t *testing.T) *certificate.TrustStore {
	t.Helper()
	ts, err := certificate.NewTrustStore(f.root.PEM)
	require.NoError(t, err)
	return ts
}

func (f *fixture) deps(t *testing.T) validation.Deps {
	return validation.Deps{
		Schema: schema.NewChecker(),
		Mapper: f.mapper,
		Chains: f.chains,
		Certs:  resolver.NewLocal(f.certs, nil),
		Trust:  f.trust(t),
	}
}

func codes(rep *entity.ValidationReport, sev entity.Severity) []string {
	var out []string
	for _, d := range rep.Diagnostics {
		if d.Severity == sev {
			out = append(out, d.Code)
		}
	}
	return out
}

// ── Dobles ───────────────────────────────────────────────────────────────────

type fakeOCSP struct {
	result certificate.Result
	err    error
}

func (f fakeOCSP) Check(context.Context, *x509.Certificate) (certificate.Result, error) {
	return f.result, f.err
}

type memoryReports struct {
	repository.ValidationReportRepository
	mu    sync.Mutex
	saved []*entity.ValidationReport
	err   error
}

func (m *memoryReports) Save(_ context.Context, r *entity.ValidationReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, r)
	return m.err
}

type countingObserver struct {
	mu      sync.Mutex
	reports []*entity.ValidationReport
}

func (c *countingObserver) ObserveReport(r *entity.ValidationReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
}

// ── Recorrido completo ───────────────────────────────────────────────────────

func TestValidate_Aceptado(t *testing.T) {
	f := newFixture(t)
	reports := &memoryReports{}
	observer := &countingObserver{}
	d := f.deps(t)
	d.Reports, d.Observer = reports, observer

	res := validation.NewValidator(d, validation.Config{RequireStamp: true}).Validate(context.Background(), f.document(t, true))
	rep := res.Report

	assert.Empty(t, rep.Errors())
	assert.True(t, rep.Accepted())
	assert.Equal(t, entity.StageAccepted, rep.Stage)
	assert.Empty(t, rep.RejectReason)
	assert.Equal(t, "4.0", rep.Version)
	assert.Equal(t, strings.ToUpper(folio), rep.UUID)
	assert.Equal(t, "EKU9003173C9", rep.IssuerRFC)
	assert.Equal(t, "XAXX010101000", rep.ReceiverRFC)
	assert.Equal(t, "232", rep.Total.String())
	assert.Equal(t, emisorNumber, rep.CertificateNumber)
	assert.Equal(t, satNumber, rep.SATCertificateNumber)
	require.NotNil(t, rep.IssuedAt)
	assert.Len(t, rep.DocumentDigest, 64)
	assert.NotEmpty(t, rep.ID)

	require.NotNil(t, res.Comprobante)
	assert.True(t, strings.HasPrefix(res.Chain, "||4.0|B|15|"))
	assert.True(t, strings.HasPrefix(res.StampChain, "||1.1|"+strings.ToUpper(folio)+"|"))

	require.Len(t, reports.saved, 1)
	assert.Same(t, rep, reports.saved[0])
	require.Len(t, observer.reports, 1)
}

func TestValidate_HuellaPorDocumento(t *testing.T) {
	f := newFixture(t)
	data := f.document(t, true)
	v := validation.NewValidator(f.deps(t), validation.Config{})

	a := v.Validate(context.Background(), data).Report
	b := v.Validate(context.Background(), data).Report
	assert.Equal(t, a.DocumentDigest, b.DocumentDigest)
	assert.NotEqual(t, a.ID, b.ID)

	c := v.Validate(context.Background(), f.document(t, false)).Report
	assert.NotEqual(t, a.DocumentDigest, c.DocumentDigest)
}

func TestValidate_SinTimbreSeAceptaSiNoSeExige(t *testing.T) {
	f := newFixture(t)
	rep := validation.NewValidator(f.deps(t), validation.Config{}).Validate(context.Background(), f.document(t, false)).Report
	assert.True(t, rep.Accepted(), "%v", rep.Diagnostics)
	assert.Empty(t, rep.UUID)
}

func TestValidate_SinTimbreExigido(t *testing.T) {
	f := newFixture(t)
	rep := validation.NewValidator(f.deps(t), validation.Config{RequireStamp: true}).Validate(context.Background(), f.document(t, false)).Report
	assert.False(t, rep.Accepted())
	assert.Equal(t, entity.StageSchemaValid, rep.Stage)
	assert.Contains(t, codes(rep, entity.SeverityError), validation.CodeMissingStamp)
}

// ── Sellos ───────────────────────────────────────────────────────────────────

func TestValidate_SelloAlterado(t *testing.T) {
	f := newFixture(t)
	data := strings.Replace(string(f.document(t, true)), `Nombre="PUBLICO EN GENERAL"`, `Nombre="OTRO RECEPTOR"`, 1)

	rep := validation.NewValidator(f.deps(t), validation.Config{}).Validate(context.Background(), []byte(data)).Report
	assert.False(t, rep.Accepted())
	assert.Equal(t, entity.OutcomeRejected, rep.Outcome)
	assert.Equal(t, entity.StageChainDerived, rep.Stage, "el rechazo conserva la última etapa superada")
	assert.Equal(t, []string{validation.CodeSealInvalid}, codes(rep, entity.SeverityError))
	assert.True(t, strings.HasPrefix(rep.RejectReason, validation.CodeSealInvalid+": "))
}

func TestValidate_SelloCFDDistinto(t *testing.T) {
	f := newFixture(t)
	doc, err := xmlmap.ParseDocument(f.document(t, true))
	require.NoError(t, err)
	tfd := doc.FindElement("//TimbreFiscalDigital")
	require.NotNil(t, tfd)
	tfd.CreateAttr("SelloCFD", "AAAA"+tfd.SelectAttrValue("SelloCFD", ""))
	data, err := doc.WriteToBytes()
	require.NoError(t, err)

	rep := validation.NewValidator(f.deps(t), validation.Config{}).Validate(context.Background(), data).Report
	errs := codes(rep, entity.SeverityError)
	assert.Contains(t, errs, validation.CodeSealCFDMismatch)
	assert.Contains(t, errs, validation.CodeSATSealInvalid, "SelloCFD forma parte de la cadena del timbre")
}

// ── Certificados ─────────────────────────────────────────────────────────────

func TestValidate_RaizNoConfiable(t *testing.T) {
	f := newFixture(t)
	other, err := certificate.NewTrustStore(certtest.NewAuthority(t, "OTRA AC").PEM)
	require.NoError(t, err)
	d := f.deps(t)
	d.Trust = other

	rep := validation.NewValidator(d, validation.Config{}).Validate(context.Background(), f.document(t, true)).Report
	assert.False(t, rep.Accepted())
	assert.Equal(t, entity.StageSignatureVerified, rep.Stage)
	assert.Equal(t, []string{validation.CodeNotAuthentic, validation.CodeNotAuthentic}, codes(rep, entity.SeverityError))
}

func TestValidate_SinAlmacenDeConfianzaNoSeAcepta(t *testing.T) {
	f := newFixture(t)
	d := f.deps(t)
	d.Trust = nil

	rep := validation.NewValidator(d, validation.Config{}).Validate(context.Background(), f.document(t, true)).Report
	assert.False(t, rep.Accepted())
	assert.Contains(t, codes(rep, entity.SeverityError), validation.CodeVerificationError)
}

func TestValidate_CertificadoNoPublicadoUsaElEmbebido(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.certs, emisorNumber+".cer")))

	rep := validation.NewValidator(f.deps(t), validation.Config{}).Validate(context.Background(), f.document(t, true)).Report
	assert.True(t, rep.Accepted(), "%v", rep.Diagnostics)
	assert.Equal(t, []string{validation.CodeCertificateUnresolved}, codes(rep, entity.SeverityWarning))
}

func TestValidate_CertificadoSATNoPublicado(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.certs, satNumber+".cer")))

	rep := validation.NewValidator(f.deps(t), validation.Config{}).Validate(context.Background(), f.document(t, true)).Report
	assert.False(t, rep.Accepted())
	assert.Equal(t, []string{validation.CodeCertificateUnresolved}, codes(rep, entity.SeverityError))
}

func TestValidate_CertificadoPublicadoDistinto(t *testing.T) {
	f := newFixture(t)
	impostor := f.root.Issue(t, certtest.LeafOptions{Number: emisorNumber, RFC: "EKU9003173C9"})
	f.publish(t, impostor)

	rep := validation.NewValidator(f.deps(t), validation.Config{}).Validate(context.Background(), f.document(t, true)).Report
	errs := codes(rep, entity.SeverityError)
	assert.Contains(t, errs, validation.CodeCertificateMismatch)
	assert.Contains(t, errs, validation.CodeSealInvalid)
}

func TestValidate_RFCDelCertificadoDistinto(t *testing.T) {
	f := newFixture(t)
	f.emisor = f.root.Issue(t, certtest.LeafOptions{Number: emisorNumber, RFC: "AAA010101AAA"})
	f.publish(t, f.emisor)

	rep := validation.NewValidator(f.deps(t), validation.Config{}).Validate(context.Background(), f.document(t, true)).Report
	assert.Equal(t, []string{validation.CodeRFCMismatch}, codes(rep, entity.SeverityError))
	assert.Equal(t, entity.StageSignatureVerified, rep.Stage)
}

func TestValidate_Revocacion(t *testing.T) {
	f := newFixture(t)
	data := f.document(t, true)

	d := f.deps(t)
	d.OCSP = fakeOCSP{result: certificate.NotAuthentic, err: errors.New("ocsp: certificado revocado")}
	rep := validation.NewValidator(d, validation.Config{}).Validate(context.Background(), data).Report
	assert.Equal(t, []string{validation.CodeRevoked}, codes(rep, entity.SeverityError))

	d.OCSP = fakeOCSP{result: certificate.VerificationError, err: errors.New("ocsp: sin respuesta")}
	rep = validation.NewValidator(d, validation.Config{}).Validate(context.Background(), data).Report
	assert.True(t, rep.Accepted())
	assert.Equal(t, []string{validation.CodeOCSPUnavailable}, codes(rep, entity.SeverityWarning))

	d.OCSP = fakeOCSP{result: certificate.Authentic}
	rep = validation.NewValidator(d, validation.Config{}).Validate(context.Background(), data).Report
	assert.True(t, rep.Accepted())
	assert.Empty(t, codes(rep, entity.SeverityWarning))
}

// ── Documentos inválidos ─────────────────────────────────────────────────────

func TestValidate_XMLMalFormadoSeDetiene(t *testing.T) {
	f := newFixture(t)
	reports := &memoryReports{err: errors.New("sin conexión")}
	d := f.deps(t)
	d.Reports = reports

	res := validation.NewValidator(d, validation.Config{}).Validate(context.Background(), []byte(`<cfdi:Comprobante Version="4.0"`))
	assert.Nil(t, res.Comprobante)
	assert.Empty(t, res.Chain)
	assert.Equal(t, entity.StageUnparsed, res.Report.Stage)
	assert.Equal(t, entity.OutcomeRejected, res.Report.Outcome)
	assert.Contains(t, codes(res.Report, entity.SeverityError), validation.CodeMalformed)
	assert.Len(t, res.Report.DocumentDigest, 64)
	assert.Len(t, reports.saved, 1, "un fallo al guardar no altera el resultado")
}

func TestValidate_RaizNoEsComprobante(t *testing.T) {
	f := newFixture(t)
	doc := `<tfd:TimbreFiscalDigital xmlns:tfd="http://www.sat.gob.mx/TimbreFiscalDigital" Version="1.1" UUID="` + folio +
		`" FechaTimbrado="2023-03-10T09:31:00" RfcProvCertif="SAT970701NN3" SelloCFD="x" NoCertificadoSAT="` + satNumber + `" SelloSAT="y"/>`
	d := f.deps(t)
	d.Schema = nil

	rep := validation.NewValidator(d, validation.Config{}).Validate(context.Background(), []byte(doc)).Report
	assert.Equal(t, []string{validation.CodeNotComprobante}, codes(rep, entity.SeverityError))
	assert.Contains(t, codes(rep, entity.SeverityInfo), validation.CodeSchemaSkipped)
}

func TestValidate_FaltaAtributoObligatorio(t *testing.T) {
	f := newFixture(t)
	data := strings.Replace(string(f.document(t, true)), ` LugarExpedicion="45079"`, "", 1)

	rep := validation.NewValidator(f.deps(t), validation.Config{}).Validate(context.Background(), []byte(data)).Report
	assert.Equal(t, entity.StageSchemaValid, rep.Stage)
	assert.Contains(t, codes(rep, entity.SeverityError), cfdi.MissingRequiredAttribute.String())
}

func TestValidate_TotalInconsistente(t *testing.T) {
	f := newFixture(t)
	data := strings.Replace(string(f.document(t, true)), `Total="232.00"`, `Total="300.00"`, 1)

	rep := validation.NewValidator(f.deps(t), validation.Config{}).Validate(context.Background(), []byte(data)).Report
	errs := codes(rep, entity.SeverityError)
	assert.Equal(t, cfdi.IssueTotalMismatch, errs[0])
	assert.Contains(t, errs, validation.CodeSealInvalid)
	assert.Equal(t, entity.StageSchemaValid, rep.Stage)
}
