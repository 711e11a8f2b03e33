package cli

import (
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/certificate"
)

// certInfo datos de un certificado de sello.
type certInfo struct {
	Number    string    `json:"number" yaml:"number"`
	RFC       string    `json:"rfc,omitempty" yaml:"rfc,omitempty"`
	Subject   string    `json:"subject" yaml:"subject"`
	Issuer    string    `json:"issuer" yaml:"issuer"`
	NotBefore time.Time `json:"not_before" yaml:"not_before"`
	NotAfter  time.Time `json:"not_after" yaml:"not_after"`
	Trust     string    `json:"trust" yaml:"trust"` // AUTHENTIC, NOT_AUTHENTIC o VERIFICATION_ERROR
}

func (a *app) describe(cert *x509.Certificate, trust certificate.Authority) certInfo {
	result := certificate.VerificationError
	if trust != nil {
		result = trust.VerifyCert(cert, time.Time{})
	}
	return certInfo{
		Number:    certificate.Number(cert),
		RFC:       certificate.RFC(cert),
		Subject:   cert.Subject.String(),
		Issuer:    cert.Issuer.String(),
		NotBefore: cert.NotBefore.UTC(),
		NotAfter:  cert.NotAfter.UTC(),
		Trust:     result.String(),
	}
}

func (a *app) certCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Certificados del repositorio del SAT",
	}

	var out string
	fetch := &cobra.Command{
		Use:   "fetch <número>",
		Short: "Obtiene un certificado por número (almacén local, caché o repositorio)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.build(cmd)
			if err != nil {
				return err
			}
			pemText, err := c.Certs.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), pemText)
				return err
			}
			return os.WriteFile(out, []byte(pemText), 0o644)
		},
	}
	fetch.Flags().StringVar(&out, "out", "", "Archivo destino (por omisión la salida estándar)")

	inspect := &cobra.Command{
		Use:   "inspect <archivo>",
		Short: "Muestra número, RFC, vigencia y confianza de un certificado (.cer DER o PEM)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cert, err := certificate.Parse(data)
			if err != nil {
				return err
			}
			c, err := a.build(cmd)
			if err != nil {
				return err
			}
			return a.write(cmd.OutOrStdout(), a.describe(cert, c.Trust))
		},
	}

	cmd.AddCommand(fetch, inspect)
	return cmd
}
