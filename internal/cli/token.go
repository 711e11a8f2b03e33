package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jhoicas/cfdi-validator/pkg/jwt"
)

var roles = []string{jwt.RoleAdmin, jwt.RoleAuditor, jwt.RoleIntegrador}

// tokenCmd emite tokens de acceso a la API firmados con JWT_SECRET.
func (a *app) tokenCmd() *cobra.Command {
	var (
		clientID string
		role     string
		minutes  int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Emite un token Bearer para un cliente de la API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if clientID == "" {
				return fmt.Errorf("--client es obligatorio")
			}
			if !slices.Contains(roles, role) {
				return fmt.Errorf("rol %q no reconocido %v", role, roles)
			}
			if minutes <= 0 {
				minutes = a.cfg.JWT.Expiration
			}
			token, err := jwt.Generate(a.cfg.JWT.Secret, clientID, role, a.cfg.JWT.Issuer, minutes)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "Identificador del sistema cliente")
	cmd.Flags().StringVar(&role, "role", jwt.RoleIntegrador, "Rol: admin, auditor o integrador")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "Vigencia en minutos (0 = JWT_EXPIRATION_MINUTES)")
	return cmd
}
