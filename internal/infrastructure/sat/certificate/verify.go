package certificate

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Result resultado de tres estados. VerificationError significa que la verificación no
// pudo completarse; nunca debe tratarse como aprobada.
type Result int

const (
	VerificationError Result = -1
	NotAuthentic      Result = 0
	Authentic         Result = 1
)

func (r Result) String() string {
	switch r {
	case Authentic:
		return "AUTHENTIC"
	case NotAuthentic:
		return "NOT_AUTHENTIC"
	default:
		return "VERIFICATION_ERROR"
	}
}

// ── Almacén de confianza ─────────────────────────────────────────────────────

// Authority verifica cadenas de emisión contra un conjunto de certificados confiables.
// La implementan TrustStore y TrustWatcher.
type Authority interface {
	VerifyCert(cert *x509.Certificate, at time.Time) Result
	Issuer(cert *x509.Certificate) (*x509.Certificate, bool)
}

var (
	_ Authority = (*TrustStore)(nil)
	_ Authority = (*TrustWatcher)(nil)
)

// TrustStore certificados raíz e intermedios de la autoridad (AC del SAT).
type TrustStore struct {
	roots         *x509.CertPool
	intermediates *x509.CertPool
	all           []*x509.Certificate
	rootCount     int
}

// NewTrustStore construye el almacén a partir de un paquete PEM. Los certificados
// autofirmados quedan como raíz; el resto como intermedios.
func NewTrustStore(bundle []byte) (*TrustStore, error) {
	ts := &TrustStore{roots: x509.NewCertPool(), intermediates: x509.NewCertPool()}
	rest := bundle
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != pemType {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("certificate: paquete de confianza: %w", err)
		}
		ts.Add(cert)
	}
	if len(bytes.TrimSpace(rest)) > 0 && len(ts.all) == 0 {
		// Paquete en DER de un solo certificado.
		cert, err := x509.ParseCertificate(bytes.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("certificate: paquete de confianza: %w", err)
		}
		ts.Add(cert)
	}
	if ts.rootCount == 0 {
		return nil, errors.New("certificate: el paquete de confianza no contiene certificados raíz")
	}
	return ts, nil
}

// LoadTrustStore lee el paquete de confianza desde un archivo.
func LoadTrustStore(path string) (*TrustStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("certificate: leer paquete de confianza: %w", err)
	}
	return NewTrustStore(data)
}

// Add incorpora un certificado al almacén.
func (t *TrustStore) Add(cert *x509.Certificate) {
	if isSelfSigned(cert) {
		t.roots.AddCert(cert)
		t.rootCount++
	} else {
		t.intermediates.AddCert(cert)
	}
	t.all = append(t.all, cert)
}

// Len número de certificados del almacén.
func (t *TrustStore) Len() int {
	if t == nil {
		return 0
	}
	return len(t.all)
}

// Issuer busca en el almacén el certificado que emitió a cert.
func (t *TrustStore) Issuer(cert *x509.Certificate) (*x509.Certificate, bool) {
	if t == nil || cert == nil {
		return nil, false
	}
	for _, c := range t.all {
		if bytes.Equal(c.RawSubject, cert.RawIssuer) && cert.CheckSignatureFrom(c) == nil {
			return c, true
		}
	}
	return nil, false
}

func isSelfSigned(cert *x509.Certificate) bool {
	return bytes.Equal(cert.RawSubject, cert.RawIssuer) && cert.CheckSignatureFrom(cert) == nil
}

// VerifyCertificateChain verifica la cadena de emisión con la fecha actual.
func (t *TrustStore) VerifyCertificateChain(pemData []byte) Result {
	return t.VerifyCertificateChainAt(pemData, time.Time{})
}

// VerifyCertificateChainAt verifica la cadena de emisión en un instante dado (la
// fecha de emisión del comprobante, típicamente). Un tiempo cero usa la hora actual.
//
// Un certificado ilegible o un almacén vacío dan VerificationError; un emisor no
// confiable, una firma inválida o un certificado fuera de vigencia dan NotAuthentic.
func (t *TrustStore) VerifyCertificateChainAt(pemData []byte, at time.Time) Result {
	if t == nil || t.rootCount == 0 {
		return VerificationError
	}
	cert, err := Parse(pemData)
	if err != nil {
		return VerificationError
	}
	return t.verify(cert, at)
}

// VerifyCert igual que VerifyCertificateChainAt pero sobre un certificado ya interpretado.
func (t *TrustStore) VerifyCert(cert *x509.Certificate, at time.Time) Result {
	if t == nil || t.rootCount == 0 || cert == nil {
		return VerificationError
	}
	return t.verify(cert, at)
}

func (t *TrustStore) verify(cert *x509.Certificate, at time.Time) Result {
	_, err := cert.Verify(x509.VerifyOptions{
		Roots:         t.roots,
		Intermediates: t.intermediates,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		// Emisor desconocido, firma de la AC inválida, fuera de vigencia o uso no permitido.
		return NotAuthentic
	}
	return Authentic
}

// ── Firma ────────────────────────────────────────────────────────────────────

// VerifySignature verifica una firma RSA PKCS#1 v1.5 sobre el digest de la cadena
// original. Claves no RSA, digest de longitud incorrecta o firma inválida dan false.
func VerifySignature(hash crypto.Hash, digest, signature []byte, cert *x509.Certificate) bool {
	if cert == nil || !hash.Available() || len(digest) != hash.Size() || len(signature) == 0 {
		return false
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return false
	}
	return rsa.VerifyPKCS1v15(pub, hash, digest, signature) == nil
}

// VerifySignatureBase64 igual que VerifySignature con la firma tal como viene en el
// atributo Sello (base64, se toleran espacios y saltos de línea).
func VerifySignatureBase64(hash crypto.Hash, digest []byte, signature string, cert *x509.Certificate) bool {
	sig, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(signature), ""))
	if err != nil {
		return false
	}
	return VerifySignature(hash, digest, sig, cert)
}
