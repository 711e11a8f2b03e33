package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/credential"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/xmlmap"
)

// csdFlags ubicación del Certificado de Sello Digital.
type csdFlags struct {
	cert     string
	key      string
	p12      string
	password string
}

func (f *csdFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.cert, "cert", "", "Certificado .cer (DER o PEM)")
	cmd.Flags().StringVar(&f.key, "key", "", "Llave privada PKCS#8 o PKCS#1 sin cifrar")
	cmd.Flags().StringVar(&f.p12, "p12", "", "Archivo .p12/.pfx con certificado y llave")
	cmd.Flags().StringVar(&f.password, "password", "", "Contraseña del .p12")
	cmd.MarkFlagsMutuallyExclusive("cert", "p12")
}

func (f *csdFlags) load() (*credential.Credential, error) {
	switch {
	case f.p12 != "":
		return credential.LoadFromP12(f.p12, f.password)
	case f.cert != "":
		return credential.LoadFromPEM(f.cert, f.key)
	default:
		return nil, errors.New("indique --cert/--key o --p12")
	}
}

// csdReport resultado de revisar un CSD.
type csdReport struct {
	certInfo   `yaml:",inline"`
	KeyMatches bool `json:"key_matches" yaml:"key_matches"`
}

func (a *app) csdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csd",
		Short: "Certificados de Sello Digital del emisor",
	}

	var checkFlags csdFlags
	check := &cobra.Command{
		Use:   "check",
		Short: "Verifica que la llave corresponda al certificado y que este sea confiable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cred, err := checkFlags.load()
			if err != nil {
				return err
			}
			c, err := a.build(cmd)
			if err != nil {
				return err
			}
			return a.write(cmd.OutOrStdout(), csdReport{
				certInfo:   a.describe(cred.Certificate, c.Trust),
				KeyMatches: true,
			})
		},
	}
	checkFlags.register(check)

	var (
		sealFlags csdFlags
		out       string
	)
	seal := &cobra.Command{
		Use:   "seal <archivo>",
		Short: "Sella un comprobante: NoCertificado, Certificado y Sello",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := sealFlags.load()
			if err != nil {
				return err
			}
			c, err := a.build(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			doc, err := xmlmap.ParseDocument(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := credential.NewSealer(cred, c.Mapper, c.Chains).Seal(doc); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			sealed, err := doc.WriteToBytes()
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(sealed)
				return err
			}
			return os.WriteFile(out, sealed, 0o644)
		},
	}
	sealFlags.register(seal)
	seal.Flags().StringVar(&out, "out", "", "Archivo destino (por omisión la salida estándar)")

	cmd.AddCommand(check, seal)
	return cmd
}
