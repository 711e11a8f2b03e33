// Package status consulta el estado de un CFDI en el servicio ConsultaCFDIService del SAT.
package status

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

const (
	soapNS        = "http://schemas.xmlsoap.org/soap/envelope/"
	soapNSTempuri = "http://tempuri.org/"
	soapAction    = "http://tempuri.org/IConsultaCFDIService/Consulta"
)

// ── Puerto (interfaz) ──────────────────────────────────────────────────────────

// Status respuesta del servicio. Los textos se conservan tal como los devuelve el SAT.
type Status struct {
	CodigoEstatus      string `json:"codigo_estatus"`      // "S - Comprobante obtenido satisfactoriamente." | "N - 602: ..."
	Estado             string `json:"estado"`              // Vigente | Cancelado | No Encontrado
	EsCancelable       string `json:"es_cancelable"`       // Cancelable sin aceptación | Cancelable con aceptación | No cancelable
	EstatusCancelacion string `json:"estatus_cancelacion"` // vacío si no hay solicitud
	ValidacionEFOS     string `json:"validacion_efos,omitempty"`
}

// Found indica si el SAT localizó el comprobante.
func (s *Status) Found() bool { return strings.HasPrefix(s.CodigoEstatus, "S") }

// Active indica si el comprobante está vigente.
func (s *Status) Active() bool { return strings.EqualFold(s.Estado, "Vigente") }

// Querier define el puerto de consulta; para tests se puede inyectar un mock.
type Querier interface {
	// Consulta recibe la expresión impresa (?re=..&rr=..&tt=..&id=..).
	Consulta(ctx context.Context, expression string) (*Status, error)
}

// FaultError SOAP Fault devuelto por el servicio.
type FaultError struct {
	Code    string
	Message string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("soap: fault [%s]: %s", e.Code, e.Message)
}

// ── Implementación SOAP ────────────────────────────────────────────────────────

// SOAPClient implementa Querier contra ConsultaCFDIService.
type SOAPClient struct {
	url        string
	httpClient *http.Client
}

// NewSOAPClient construye el cliente. url vacía usa el servicio productivo del SAT y
// timeout <= 0 deja 30 s: el servicio suele tardar varios segundos en responder.
func NewSOAPClient(url string, timeout time.Duration) *SOAPClient {
	if url == "" {
		url = sat.StatusServiceURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SOAPClient{url: url, httpClient: &http.Client{Timeout: timeout}}
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	XmlnsS  string   `xml:"xmlns:soapenv,attr"`
	XmlnsT  string   `xml:"xmlns:tem,attr"`
	Header  struct{} `xml:"soapenv:Header"`
	Body    soapBody `xml:"soapenv:Body"`
}

type soapBody struct {
	Consulta consultaBody `xml:"tem:Consulta"`
}

type consultaBody struct {
	Expresion cdata `xml:"tem:expresionImpresa"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	Response *consultaResponse `xml:"ConsultaResponse"`
	Fault    *soapFault        `xml:"Fault"`
}

type consultaResponse struct {
	Result *consultaResult `xml:"ConsultaResult"`
}

type consultaResult struct {
	CodigoEstatus      string `xml:"CodigoEstatus"`
	EsCancelable       string `xml:"EsCancelable"`
	Estado             string `xml:"Estado"`
	EstatusCancelacion string `xml:"EstatusCancelacion"`
	ValidacionEFOS     string `xml:"ValidacionEFOS"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── Consulta ──────────────────────────────────────────────────────────────────

// Consulta envía la expresión impresa al servicio. Una sola petición, sin reintentos.
func (c *SOAPClient) Consulta(ctx context.Context, expression string) (*Status, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("soap: expresión vacía")
	}
	envelope := soapEnvelope{
		XmlnsS: soapNS,
		XmlnsT: soapNSTempuri,
		Body:   soapBody{Consulta: consultaBody{Expresion: cdata{Value: expression}}},
	}
	payload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("soap: serializar envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("soap: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("soap: timeout o cancelación: %w", ctx.Err())
		}
		return nil, fmt.Errorf("soap: llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return nil, fmt.Errorf("soap: leer respuesta: %w", err)
	}
	return parseResponse(resp.StatusCode, rawBody)
}

// parseResponse desempaqueta la respuesta. Un Fault se reporta aunque venga con HTTP 500.
func parseResponse(statusCode int, rawBody []byte) (*Status, error) {
	var envResp soapResponseEnvelope
	if err := xml.Unmarshal(rawBody, &envResp); err != nil {
		return nil, fmt.Errorf("soap: respuesta no interpretable (HTTP %d): %w", statusCode, err)
	}
	if f := envResp.Body.Fault; f != nil {
		return nil, &FaultError{Code: f.FaultCode, Message: f.FaultString}
	}
	if statusCode < 200 || statusCode > 299 {
		return nil, fmt.Errorf("soap: HTTP %d", statusCode)
	}
	if envResp.Body.Response == nil || envResp.Body.Response.Result == nil {
		return nil, fmt.Errorf("soap: respuesta vacía o inesperada")
	}
	r := envResp.Body.Response.Result
	return &Status{
		CodigoEstatus:      strings.TrimSpace(r.CodigoEstatus),
		Estado:             strings.TrimSpace(r.Estado),
		EsCancelable:       strings.TrimSpace(r.EsCancelable),
		EstatusCancelacion: strings.TrimSpace(r.EstatusCancelacion),
		ValidacionEFOS:     strings.TrimSpace(r.ValidacionEFOS),
	}, nil
}

var _ Querier = (*SOAPClient)(nil)
