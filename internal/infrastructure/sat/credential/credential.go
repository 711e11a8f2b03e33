// Carga del Certificado de Sello Digital (CSD) desde .p12/.pfx (PKCS#12) o par .cer/.key.

package credential

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/certificate"
)

// ErrKeyMismatch la llave privada no corresponde al certificado.
var ErrKeyMismatch = errors.New("credential: la llave privada no corresponde al certificado")

// Credential certificado de sello y su llave privada RSA.
type Credential struct {
	Certificate *x509.Certificate
	Key         *rsa.PrivateKey
}

// New arma la credencial y comprueba que la llave pertenezca al certificado.
func New(cert *x509.Certificate, key crypto.PrivateKey) (*Credential, error) {
	if cert == nil {
		return nil, fmt.Errorf("credential: certificado nil")
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("credential: el CSD debe incluir llave privada RSA")
	}
	c := &Credential{Certificate: cert, Key: priv}
	if !c.BelongsTo(&priv.PublicKey) {
		return nil, ErrKeyMismatch
	}
	return c, nil
}

// LoadFromP12 carga certificado y llave privada desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
func LoadFromP12(path, password string) (*Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("decodificar p12: %w", err)
	}
	return New(cert, priv)
}

// LoadFromPEM carga el certificado (.cer en DER o PEM) y la llave (PKCS#8 o PKCS#1, DER o
// PEM, sin cifrar). Con keyPath vacío la llave se busca en el mismo archivo del certificado.
func LoadFromPEM(certPath, keyPath string) (*Credential, error) {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("leer certificado: %w", err)
	}
	cert, err := certificate.Parse(certData)
	if err != nil {
		return nil, err
	}
	keyData := certData
	if keyPath != "" {
		if keyData, err = os.ReadFile(keyPath); err != nil {
			return nil, fmt.Errorf("leer llave: %w", err)
		}
	}
	key, err := parseKey(keyData)
	if err != nil {
		return nil, err
	}
	return New(cert, key)
}

func parseKey(data []byte) (crypto.PrivateKey, error) {
	der := data
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if strings.HasSuffix(block.Type, "PRIVATE KEY") {
			if strings.Contains(block.Type, "ENCRYPTED") {
				return nil, fmt.Errorf("credential: llave cifrada; conviértala a PKCS#8 sin contraseña")
			}
			der = block.Bytes
			break
		}
	}
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	return nil, fmt.Errorf("credential: llave privada no reconocida")
}

// Number número de certificado (20 dígitos).
func (c *Credential) Number() string { return certificate.Number(c.Certificate) }

// CertificateBase64 DER en base64, para el atributo Certificado.
func (c *Credential) CertificateBase64() string { return certificate.Base64(c.Certificate) }

// RFC del titular según el x500UniqueIdentifier del sujeto; vacío si no lo trae.
func (c *Credential) RFC() string { return certificate.RFC(c.Certificate) }

// BelongsTo indica si la llave pública corresponde a la del certificado.
func (c *Credential) BelongsTo(pub *rsa.PublicKey) bool {
	certKey, ok := c.Certificate.PublicKey.(*rsa.PublicKey)
	return ok && pub != nil && certKey.Equal(pub)
}

// Sign firma un digest con RSA PKCS#1 v1.5.
func (c *Credential) Sign(hash crypto.Hash, digest []byte) ([]byte, error) {
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.Key, hash, digest)
	if err != nil {
		return nil, fmt.Errorf("credential: firmar: %w", err)
	}
	return sig, nil
}

// SignChain firma una cadena original y devuelve el sello en base64.
func (c *Credential) SignChain(hash crypto.Hash, chain string) (string, error) {
	if !hash.Available() {
		return "", fmt.Errorf("credential: algoritmo %v no disponible", hash)
	}
	h := hash.New()
	h.Write([]byte(chain))
	sig, err := c.Sign(hash, h.Sum(nil))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
