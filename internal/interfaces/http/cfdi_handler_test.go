package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cfdi-validator/internal/application/dto"
	"github.com/jhoicas/cfdi-validator/internal/application/validation"
	"github.com/jhoicas/cfdi-validator/internal/domain"
	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-validator/internal/domain/entity"
	"github.com/jhoicas/cfdi-validator/internal/domain/repository"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/metrics"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/certificate"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/certificate/certtest"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/credential"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/resolver"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/status"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/xmlmap"
	apphttp "github.com/jhoicas/cfdi-validator/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/cfdi-validator/pkg/jwt"
)

const (
	emisorNumber = "30001000000400002434"
	satNumber    = "00001000000505211329"
)

// ──────────────────────────────────────────────────────────────────────────────
// Entorno de prueba
// ──────────────────────────────────────────────────────────────────────────────

type env struct {
	app       *fiber.App
	stamped   []byte
	unstamped []byte
	collector *metrics.Collector
	querier   *fakeQuerier
	reports   *memoryReports
}

type fakeQuerier struct {
	status *status.Status
	err    error
}

func (q *fakeQuerier) Consulta(context.Context, string) (*status.Status, error) {
	return q.status, q.err
}

type fakePDF struct{}

func (fakePDF) Generate(n *cfdi.Node, _ *entity.ValidationReport) ([]byte, error) {
	if n == nil {
		return nil, errors.New("sin comprobante")
	}
	return []byte("%PDF-1.3 prueba"), nil
}

type memoryReports struct {
	repository.ValidationReportRepository
	byID map[string]*entity.ValidationReport
}

func (m *memoryReports) Save(_ context.Context, r *entity.ValidationReport) error {
	m.byID[r.ID] = r
	return nil
}

func (m *memoryReports) GetByID(_ context.Context, id string) (*entity.ValidationReport, error) {
	r, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := certtest.NewAuthority(t, "AC RAIZ PRUEBA")
	emisor := root.Issue(t, certtest.LeafOptions{Number: emisorNumber, RFC: "EKU9003173C9"})
	pac := root.Issue(t, certtest.LeafOptions{Number: satNumber, RFC: "SAT970701NN3"})

	certDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(certDir, emisorNumber+".cer"), emisor.DER, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(certDir, satNumber+".cer"), pac.PEM, 0o600))

	mapper := xmlmap.NewMapper(cfdi.MustDefaultRegistry())
	chains := cfdi.NewDefaultChainGenerator()
	trust, err := certificate.NewTrustStore(root.PEM)
	require.NoError(t, err)

	e := &env{
		collector: metrics.NewCollector(false),
		querier:   &fakeQuerier{status: &status.Status{CodigoEstatus: "S - Comprobante obtenido satisfactoriamente.", Estado: "Vigente"}},
		reports:   &memoryReports{byID: map[string]*entity.ValidationReport{}},
	}
	e.unstamped, e.stamped = sealed(t, mapper, chains, emisor, pac)

	certs := resolver.NewLocal(certDir, e.collector)
	validator := validation.NewValidator(validation.Deps{
		Mapper:   mapper,
		Chains:   chains,
		Certs:    certs,
		Trust:    trust,
		Reports:  e.reports,
		Observer: e.collector,
	}, validation.Config{})

	e.app = fiber.New()
	apphttp.Router(e.app, apphttp.RouterDeps{
		CFDI: apphttp.CFDIHandlerDeps{
			Validator: validator,
			Batch:     validation.NewBatch(validator, 2),
			Mapper:    mapper,
			Chains:    chains,
			Status:    validation.NewStatusService(mapper, e.querier, e.collector, nil),
			PDF:       fakePDF{},
			MaxBatch:  3,
		},
		Certs:     certs,
		Reports:   e.reports,
		Metrics:   e.collector.Handler(),
		JWTSecret: testJWTSecret,
		Service:   "cfdi-validator",
	})
	return e
}

// sealed devuelve el comprobante sellado sin timbre y el mismo ya timbrado.
func sealed(t *testing.T, mapper *xmlmap.Mapper, chains *cfdi.ChainGenerator, emisor, pac *certtest.Leaf) ([]byte, []byte) {
	t.Helper()
	data, err := os.ReadFile("testdata/unsigned40.xml")
	require.NoError(t, err)
	doc, err := xmlmap.ParseDocument(data)
	require.NoError(t, err)

	cred, err := credential.New(emisor.Cert, emisor.Key)
	require.NoError(t, err)
	require.NoError(t, credential.NewSealer(cred, mapper, chains).Seal(doc))
	unstamped, err := doc.WriteToBytes()
	require.NoError(t, err)

	pacCred, err := credential.New(pac.Cert, pac.Key)
	require.NoError(t, err)
	require.NoError(t, credential.NewSealer(pacCred, mapper, chains).Stamp(doc, credential.StampOptions{
		UUID:          "5fb2822e-396d-4725-8521-cdc4bdd20ccf",
		FechaTimbrado: time.Date(2023, 3, 10, 15, 31, 0, 0, time.UTC),
	}))
	stamped, err := doc.WriteToBytes()
	require.NoError(t, err)
	return unstamped, stamped
}

func (e *env) do(t *testing.T, method, path string, body []byte, role string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/xml")
	if role != "" {
		req.Header.Set("Authorization", tokenForRole(t, role))
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Rutas públicas
// ──────────────────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodGet, "/health", nil, "")
	body := decode[map[string]string](t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestRFC_Publico(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/api/rfc/eku9003173c9", nil, "")
	out := decode[dto.RFCResponse](t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Valid)
	assert.Equal(t, "EKU9003173C9", out.RFC)
	assert.Equal(t, "PERSONA_MORAL", out.Kind)

	resp = e.do(t, http.MethodGet, "/api/rfc/ABC", nil, "")
	out = decode[dto.RFCResponse](t, resp)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.False(t, out.Valid)
	assert.NotEmpty(t, out.Error)
}

// ──────────────────────────────────────────────────────────────────────────────
// Validación
// ──────────────────────────────────────────────────────────────────────────────

func TestValidate_SinToken(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/api/cfdi/validate", e.stamped, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestValidate_Aceptado(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/api/cfdi/validate?chains=true", e.stamped, pkgjwt.RoleIntegrador)
	out := decode[dto.ValidationResponse](t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode, "%v", out.Diagnostics)
	assert.Equal(t, entity.OutcomeAccepted, out.Outcome)
	assert.Equal(t, string(entity.StageAccepted), out.Stage)
	assert.Equal(t, "5FB2822E-396D-4725-8521-CDC4BDD20CCF", out.UUID)
	assert.Equal(t, "232.00", out.Total)
	assert.True(t, strings.HasPrefix(out.Chain, "||4.0|"))
	assert.NotEmpty(t, out.StampChain)
	assert.Contains(t, e.reports.byID, out.ID, "el reporte se guarda")
}

func TestValidate_Rechazado(t *testing.T) {
	e := newEnv(t)
	tampered := bytes.Replace(e.stamped, []byte(`Folio="15"`), []byte(`Folio="16"`), 1)
	resp := e.do(t, http.MethodPost, "/api/cfdi/validate", tampered, pkgjwt.RoleIntegrador)
	out := decode[dto.ValidationResponse](t, resp)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, entity.OutcomeRejected, out.Outcome)
	assert.True(t, strings.HasPrefix(out.RejectReason, validation.CodeSealInvalid))
	assert.Empty(t, out.Chain, "sin ?chains no se incluyen cadenas")
}

func TestValidate_CuerpoVacio(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/api/cfdi/validate", nil, pkgjwt.RoleIntegrador)
	out := decode[dto.ErrorResponse](t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "EMPTY_BODY", out.Code)
}

func TestValidateBatch(t *testing.T) {
	e := newEnv(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("files", "a.xml")
	require.NoError(t, err)
	_, err = part.Write(e.stamped)
	require.NoError(t, err)
	part, err = w.CreateFormFile("files", "b.xml")
	require.NoError(t, err)
	_, err = io.WriteString(part, "<roto")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/cfdi/validate/batch", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", tokenForRole(t, pkgjwt.RoleIntegrador))
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	out := decode[dto.BatchResponse](t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, validation.Summary{Total: 2, Accepted: 1, Rejected: 1}, out.Summary)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "a.xml", out.Items[0].Name)
	assert.Equal(t, "b.xml", out.Items[1].Name)
}

// ──────────────────────────────────────────────────────────────────────────────
// Cadena, estado y PDF
// ──────────────────────────────────────────────────────────────────────────────

func TestChain(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/api/cfdi/chain", e.stamped, pkgjwt.RoleAuditor)
	out := decode[dto.ChainsResponse](t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, cfdi.TypeComprobante40, out.Comprobante.Type)
	assert.True(t, strings.HasPrefix(out.Comprobante.Chain, "||4.0|B|15|"))
	assert.Equal(t, "SHA-256", out.Comprobante.Algorithm)
	assert.Len(t, out.Comprobante.Digest, 64)
	require.NotNil(t, out.Timbre)
	assert.Equal(t, cfdi.TypeTFD11, out.Timbre.Type)
}

func TestChain_XMLInvalido(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/api/cfdi/chain", []byte("<roto"), pkgjwt.RoleAuditor)
	out := decode[dto.ErrorResponse](t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_XML", out.Code)
}

func TestStatus(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/api/cfdi/status", e.stamped, pkgjwt.RoleAuditor)
	out := decode[dto.StatusResponse](t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Found)
	assert.True(t, out.Active)
	assert.Equal(t, "?re=EKU9003173C9&rr=XAXX010101000&tt=0000000232.000000&id=5FB2822E-396D-4725-8521-CDC4BDD20CCF", out.Expression)
}

func TestStatus_Errores(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/api/cfdi/status", e.unstamped, pkgjwt.RoleAuditor)
	out := decode[dto.ErrorResponse](t, resp)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "NOT_STAMPED", out.Code)

	e.querier.err = errors.New("soap: timeout")
	resp = e.do(t, http.MethodPost, "/api/cfdi/status", e.stamped, pkgjwt.RoleAuditor)
	out = decode[dto.ErrorResponse](t, resp)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "STATUS_UNAVAILABLE", out.Code)
}

func TestPDF(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/api/cfdi/pdf", e.stamped, pkgjwt.RoleIntegrador)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "5fb2822e-396d-4725-8521-cdc4bdd20ccf.pdf")
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}

// ──────────────────────────────────────────────────────────────────────────────
// Certificados, reportes y métricas
// ──────────────────────────────────────────────────────────────────────────────

func TestCertificate(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/api/certificates/"+emisorNumber, nil, pkgjwt.RoleAdmin)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(string(body), "-----BEGIN CERTIFICATE-----"))

	for _, number := range []string{"abc", "123"} {
		resp = e.do(t, http.MethodGet, "/api/certificates/"+number, nil, pkgjwt.RoleAdmin)
		assert.Equal(t, http.StatusBadRequest, decodeStatus(t, resp), number)
	}

	resp = e.do(t, http.MethodGet, "/api/certificates/99999000000400002434", nil, pkgjwt.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, decodeStatus(t, resp))
}

func decodeStatus(t *testing.T, resp *http.Response) int {
	t.Helper()
	out := decode[dto.ErrorResponse](t, resp)
	assert.NotEmpty(t, out.Code)
	return resp.StatusCode
}

func TestReports(t *testing.T) {
	e := newEnv(t)
	out := decode[dto.ValidationResponse](t, e.do(t, http.MethodPost, "/api/cfdi/validate", e.stamped, pkgjwt.RoleIntegrador))

	resp := e.do(t, http.MethodGet, "/api/reports/"+out.ID, nil, pkgjwt.RoleAuditor)
	got := decode[dto.ValidationResponse](t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, out.ID, got.ID)

	resp = e.do(t, http.MethodGet, "/api/reports/no-existe", nil, pkgjwt.RoleAuditor)
	assert.Equal(t, http.StatusNotFound, decodeStatus(t, resp))

	resp = e.do(t, http.MethodGet, "/api/reports/"+out.ID, nil, pkgjwt.RoleIntegrador)
	assert.Equal(t, http.StatusForbidden, decodeStatus(t, resp))
}

func TestMetrics(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/api/cfdi/validate", e.stamped, pkgjwt.RoleIntegrador)
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/metrics", nil, "")
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `cfdi_validations_total{outcome="ACCEPTED"} 1`)
	assert.Contains(t, string(body), `cfdi_certificates_resolved_total{source="local"} 2`)
}
