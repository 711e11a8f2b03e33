// Package certificate normaliza certificados de sello digital (CSD) a PEM y
// verifica su cadena de emisión y las firmas RSA de los comprobantes.
package certificate

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	pemType   = "CERTIFICATE"
	pemHeader = "-----BEGIN " + pemType + "-----"
)

// ErrMalformed el contenido no es un certificado X.509 legible.
var ErrMalformed = errors.New("certificate: certificado mal formado")

// CoerceToPEM devuelve el certificado en PEM. Si ya empieza con el encabezado PEM se
// devuelve sin cambios; en otro caso se trata como DER y se codifica en base64 con
// líneas de 64 caracteres.
func CoerceToPEM(data []byte) string {
	if IsPEM(data) {
		return string(data)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: data}))
}

// IsPEM indica si el contenido empieza (ignorando espacios iniciales) con el encabezado PEM.
func IsPEM(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeftFunc(data, unicode.IsSpace), []byte(pemHeader))
}

// FromBase64 decodifica el atributo Certificado del comprobante (DER en base64) a PEM.
func FromBase64(s string) (string, error) {
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return "", fmt.Errorf("%w: base64: %v", ErrMalformed, err)
	}
	if len(der) == 0 {
		return "", fmt.Errorf("%w: vacío", ErrMalformed)
	}
	return CoerceToPEM(der), nil
}

// Parse interpreta PEM o DER.
func Parse(data []byte) (*x509.Certificate, error) {
	der := data
	if IsPEM(data) {
		block, _ := pem.Decode(bytes.TrimLeftFunc(data, unicode.IsSpace))
		if block == nil || block.Type != pemType {
			return nil, fmt.Errorf("%w: bloque PEM inválido", ErrMalformed)
		}
		der = block.Bytes
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return cert, nil
}

// ParseBase64 interpreta el atributo Certificado del comprobante.
func ParseBase64(s string) (*x509.Certificate, error) {
	p, err := FromBase64(s)
	if err != nil {
		return nil, err
	}
	return Parse([]byte(p))
}

// Base64 devuelve el DER en base64, tal como va en el atributo Certificado.
func Base64(cert *x509.Certificate) string {
	return base64.StdEncoding.EncodeToString(cert.Raw)
}

// Number devuelve el número de certificado del SAT. El serial del CSD codifica los
// dígitos en ASCII (0x3330... → "30..."); si no son dígitos se usa la forma decimal.
func Number(cert *x509.Certificate) string {
	if cert == nil || cert.SerialNumber == nil {
		return ""
	}
	raw := cert.SerialNumber.Bytes()
	if len(raw) > 0 && isDigits(raw) {
		return string(raw)
	}
	return cert.SerialNumber.String()
}

// oidUniqueIdentifier x500UniqueIdentifier: el SAT guarda ahí "RFC / CURP" o "RFC / RFC representante".
var oidUniqueIdentifier = asn1.ObjectIdentifier{2, 5, 4, 45}

// RFC del titular según el x500UniqueIdentifier del sujeto; vacío si no lo trae.
func RFC(cert *x509.Certificate) string {
	if cert == nil {
		return ""
	}
	for _, name := range cert.Subject.Names {
		if !name.Type.Equal(oidUniqueIdentifier) {
			continue
		}
		s, _ := name.Value.(string)
		rfc, _, _ := strings.Cut(s, "/")
		return strings.ToUpper(strings.TrimSpace(rfc))
	}
	return ""
}

// SanitizeNumber conserva únicamente los dígitos de un número de certificado.
func SanitizeNumber(number string) string {
	var sb strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func isDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
