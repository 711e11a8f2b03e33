package certificate

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"
)

// OCSPChecker consulta el estado de revocación de un certificado en el respondedor
// OCSP de la autoridad. Una sola petición, sin reintentos.
type OCSPChecker struct {
	url    string
	client *http.Client
	trust  Authority
}

// NewOCSPChecker crea el verificador. El emisor de cada certificado se busca en trust.
func NewOCSPChecker(url string, trust Authority, timeout time.Duration) *OCSPChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OCSPChecker{url: url, client: &http.Client{Timeout: timeout}, trust: trust}
}

// Check devuelve Authentic (vigente), NotAuthentic (revocado) o VerificationError
// (estado desconocido, emisor ausente o falla de red) junto con la causa.
func (c *OCSPChecker) Check(ctx context.Context, cert *x509.Certificate) (Result, error) {
	if c.trust == nil {
		return VerificationError, fmt.Errorf("certificate: ocsp: sin almacén de confianza")
	}
	issuer, ok := c.trust.Issuer(cert)
	if !ok {
		return VerificationError, fmt.Errorf("certificate: ocsp: emisor de %s no está en el almacén de confianza", Number(cert))
	}
	reqBody, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{Hash: crypto.SHA256})
	if err != nil {
		return VerificationError, fmt.Errorf("certificate: ocsp: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return VerificationError, fmt.Errorf("certificate: ocsp: %w", err)
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")

	resp, err := c.client.Do(req)
	if err != nil {
		return VerificationError, fmt.Errorf("certificate: ocsp: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return VerificationError, fmt.Errorf("certificate: ocsp: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return VerificationError, fmt.Errorf("certificate: ocsp: leer respuesta: %w", err)
	}
	parsed, err := ocsp.ParseResponseForCert(body, cert, issuer)
	if err != nil {
		return VerificationError, fmt.Errorf("certificate: ocsp: %w", err)
	}
	switch parsed.Status {
	case ocsp.Good:
		return Authentic, nil
	case ocsp.Revoked:
		return NotAuthentic, fmt.Errorf("certificate: revocado el %s", parsed.RevokedAt.Format(time.RFC3339))
	default:
		return VerificationError, fmt.Errorf("certificate: ocsp: estado desconocido")
	}
}
