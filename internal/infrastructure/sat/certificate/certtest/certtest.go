// Package certtest genera autoridades y certificados de sello para pruebas.
package certtest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"sync"
	"testing"
	"time"
)

// OIDUniqueIdentifier x500UniqueIdentifier: el SAT guarda ahí "RFC / CURP".
var OIDUniqueIdentifier = asn1.ObjectIdentifier{2, 5, 4, 45}

var (
	keyOnce sync.Once
	keys    []*rsa.PrivateKey
	keyErr  error
	keyNext int
	keyMu   sync.Mutex
)

// key reparte llaves de un conjunto pregenerado: generar RSA de 2048 bits por prueba es lento.
func key(tb testing.TB) *rsa.PrivateKey {
	tb.Helper()
	keyOnce.Do(func() {
		for i := 0; i < 6; i++ {
			k, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				keyErr = err
				return
			}
			keys = append(keys, k)
		}
	})
	if keyErr != nil {
		tb.Fatalf("certtest: generar llave: %v", keyErr)
	}
	keyMu.Lock()
	defer keyMu.Unlock()
	k := keys[keyNext%len(keys)]
	keyNext++
	return k
}

// Authority autoridad certificadora de prueba (raíz autofirmada o intermedia).
type Authority struct {
	Cert *x509.Certificate
	Key  *rsa.PrivateKey
	PEM  []byte
}

// NewAuthority crea una raíz autofirmada vigente de 2000 a 2099.
func NewAuthority(tb testing.TB, commonName string) *Authority {
	tb.Helper()
	k := key(tb)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{"Servicio de Administración Tributaria"}},
		NotBefore:             time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:              time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	return signAuthority(tb, tmpl, tmpl, k, k)
}

// Intermediate crea una autoridad intermedia firmada por a.
func (a *Authority) Intermediate(tb testing.TB, commonName string) *Authority {
	tb.Helper()
	k := key(tb)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             a.Cert.NotBefore,
		NotAfter:              a.Cert.NotAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	return signAuthority(tb, tmpl, a.Cert, k, a.Key)
}

func signAuthority(tb testing.TB, tmpl, parent *x509.Certificate, k, parentKey *rsa.PrivateKey) *Authority {
	tb.Helper()
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &k.PublicKey, parentKey)
	if err != nil {
		tb.Fatalf("certtest: crear autoridad: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		tb.Fatalf("certtest: interpretar autoridad: %v", err)
	}
	return &Authority{Cert: cert, Key: k, PEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})}
}

// Leaf certificado de sello emitido por una autoridad de prueba.
type Leaf struct {
	Cert   *x509.Certificate
	Key    *rsa.PrivateKey
	DER    []byte
	PEM    []byte
	Number string
}

// LeafOptions datos del certificado de sello. Vigencia por omisión: 2020 a 2030.
type LeafOptions struct {
	Number    string // 20 dígitos; el serial los codifica en ASCII
	RFC       string
	Name      string
	NotBefore time.Time
	NotAfter  time.Time
}

// Issue emite un certificado de sello.
func (a *Authority) Issue(tb testing.TB, opts LeafOptions) *Leaf {
	tb.Helper()
	if opts.NotBefore.IsZero() {
		opts.NotBefore = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if opts.Name == "" {
		opts.Name = "CONTRIBUYENTE DE PRUEBA"
	}
	k := key(tb)
	subject := pkix.Name{CommonName: opts.Name}
	if opts.RFC != "" {
		subject.ExtraNames = []pkix.AttributeTypeAndValue{{Type: OIDUniqueIdentifier, Value: opts.RFC + " / "}}
	}
	tmpl := &x509.Certificate{
		SerialNumber: new(big.Int).SetBytes([]byte(opts.Number)),
		Subject:      subject,
		NotBefore:    opts.NotBefore,
		NotAfter:     opts.NotAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, a.Cert, &k.PublicKey, a.Key)
	if err != nil {
		tb.Fatalf("certtest: emitir certificado: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		tb.Fatalf("certtest: interpretar certificado: %v", err)
	}
	return &Leaf{
		Cert:   cert,
		Key:    k,
		DER:    der,
		PEM:    pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		Number: opts.Number,
	}
}

// Base64 DER en base64, como en el atributo Certificado.
func (l *Leaf) Base64() string { return base64.StdEncoding.EncodeToString(l.DER) }

// Sign firma el digest con RSA PKCS#1 v1.5 y devuelve el sello en base64.
func (l *Leaf) Sign(tb testing.TB, hash crypto.Hash, digest []byte) string {
	tb.Helper()
	sig, err := rsa.SignPKCS1v15(rand.Reader, l.Key, hash, digest)
	if err != nil {
		tb.Fatalf("certtest: firmar: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

// SignChain calcula el digest de la cadena y la firma.
func (l *Leaf) SignChain(tb testing.TB, hash crypto.Hash, chain string) string {
	tb.Helper()
	h := hash.New()
	h.Write([]byte(chain))
	return l.Sign(tb, hash, h.Sum(nil))
}
