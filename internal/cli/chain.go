package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhoicas/cfdi-validator/internal/application/dto"
	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

func (a *app) chainCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "chain <archivo>",
		Short: "Genera la cadena original del comprobante y de su timbre",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.build(cmd)
			if err != nil {
				return err
			}
			root, err := decodeFile(c.Mapper.Decode, args[0])
			if err != nil {
				return err
			}
			out, err := dto.NewChainsResponse(c.Chains, root)
			if err != nil {
				return err
			}
			if raw {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), out.Comprobante.Chain)
				return err
			}
			return a.write(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Imprimir solo la cadena del comprobante, sin formato")
	return cmd
}

func (a *app) rfcCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "rfc <rfc>",
		Short: "Valida y clasifica un RFC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("strict") {
				strict = a.cfg.SAT.StrictRFC
			}
			out := dto.NewRFCResponse(args[0], strict)
			if err := a.write(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !out.Valid {
				return errRejected
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exigir dígito verificador (por omisión SAT_STRICT_RFC)")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <archivo>",
		Short: "Consulta el estado del comprobante timbrado en el SAT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.build(cmd)
			if err != nil {
				return err
			}
			svc, err := c.StatusService()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			expr, st, err := svc.QueryDocument(cmd.Context(), data)
			if err != nil {
				return err
			}
			out := statusOutput{StatusResponse: dto.NewStatusResponse(expr, st)}
			if url, err := sat.Expression(expr); err == nil {
				out.VerificationURL = url
			}
			return a.write(cmd.OutOrStdout(), out)
		},
	}
}

// statusOutput respuesta de la API más la URL del código QR.
type statusOutput struct {
	dto.StatusResponse `yaml:",inline"`
	VerificationURL    string `json:"verification_url,omitempty" yaml:"verification_url,omitempty"`
}

func decodeFile(decode func([]byte) (*cfdi.Node, error), path string) (*cfdi.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !cfdi.IsComprobante(root) {
		return nil, fmt.Errorf("%s: la raíz %s no es un comprobante", path, root.Type())
	}
	return root, nil
}
