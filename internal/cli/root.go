// Package cli comandos de la herramienta de línea de comandos cfdi.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jhoicas/cfdi-validator/internal/bootstrap"
	"github.com/jhoicas/cfdi-validator/pkg/config"
	"github.com/jhoicas/cfdi-validator/pkg/logger"
)

// Version se fija al compilar con -ldflags.
var Version = "dev"

// errRejected indica que algún documento no superó la validación. La salida ya se escribió.
var errRejected = errors.New("hay documentos rechazados")

// app estado compartido por los comandos de una ejecución.
type app struct {
	format   string
	logLevel string

	cfg        *config.Config
	log        *logger.Logger
	components *bootstrap.Components
}

// NewRootCommand construye el árbol de comandos.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "cfdi",
		Short:             "Validación de CFDI contra la infraestructura del SAT",
		Long:              "Valida sellos, certificados y timbres de Comprobantes Fiscales Digitales por Internet (CFDI 3.3 y 4.0).",
		Version:           Version,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch a.format {
			case "json", "yaml":
			default:
				return fmt.Errorf("formato %q no soportado (json, yaml)", a.format)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			level := a.logLevel
			if level == "" {
				level = cfg.App.LogLevel
			}
			a.log = logger.New(logger.Config{Env: cfg.App.Env, Level: level, Output: cmd.ErrOrStderr()})
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.components != nil {
				a.components.Close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.format, "output", "o", "json", "Formato de salida: json o yaml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Nivel de bitácora (debug, info, warn, error)")

	root.AddCommand(
		a.validateCmd(),
		a.chainCmd(),
		a.rfcCmd(),
		a.certCmd(),
		a.statusCmd(),
		a.csdCmd(),
		a.tokenCmd(),
	)
	return root
}

// Execute ejecuta la CLI y termina el proceso con código 1 ante cualquier error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		if !errors.Is(err, errRejected) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// build arma los componentes de validación una sola vez por ejecución.
func (a *app) build(cmd *cobra.Command) (*bootstrap.Components, error) {
	if a.components != nil {
		return a.components, nil
	}
	c, err := bootstrap.Build(cmd.Context(), a.cfg, a.log, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	a.components = c
	return c, nil
}

// write serializa v en el formato elegido.
func (a *app) write(w io.Writer, v any) error {
	if a.format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
