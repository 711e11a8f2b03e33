package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/jhoicas/cfdi-validator/internal/application/dto"
	"github.com/jhoicas/cfdi-validator/internal/application/validation"
)

func (a *app) validateCmd() *cobra.Command {
	var (
		withChains bool
		workers    int
	)
	cmd := &cobra.Command{
		Use:   "validate <archivo|patrón>...",
		Short: "Valida uno o varios CFDI",
		Long: `Valida esquema, modelo, cadena original, sellos y certificados de cada documento.
Los patrones admiten ** (por ejemplo "facturas/**/*.xml"). Termina con código 1 si
algún documento se rechaza.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandPatterns(args)
			if err != nil {
				return err
			}
			c, err := a.build(cmd)
			if err != nil {
				return err
			}

			batch := c.Batch
			if workers > 0 {
				batch = validation.NewBatch(c.Validator, workers)
			}
			results, items, pos := readItems(files, os.ReadFile)
			for i, r := range batch.Run(cmd.Context(), items) {
				results[pos[i]] = r
			}
			out := dto.NewBatchResponse(results, withChains)
			if err := a.write(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if out.Summary.Rejected > 0 || out.Summary.Skipped > 0 {
				return errRejected
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withChains, "chains", false, "Incluir las cadenas originales en la salida")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Documentos en paralelo (0 = VALIDATION_WORKERS)")
	return cmd
}

// readItems lee los archivos. Un archivo ilegible queda como resultado con Err y no
// detiene el lote; items son los legibles y pos su posición en files.
func readItems(files []string, read func(string) ([]byte, error)) (results []validation.ItemResult, items []validation.Item, pos []int) {
	results = make([]validation.ItemResult, len(files))
	for i, f := range files {
		data, err := read(f)
		if err != nil {
			results[i] = validation.ItemResult{Name: f, Err: fmt.Errorf("leer %s: %w", f, err)}
			continue
		}
		items = append(items, validation.Item{Name: f, Data: data})
		pos = append(pos, i)
	}
	return results, items, pos
}

// expandPatterns resuelve los patrones en archivos, sin directorios ni repetidos, en el
// orden en que aparecen.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, fmt.Errorf("patrón %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%s: sin coincidencias", p)
		}
		for _, m := range matches {
			m = filepath.Clean(m)
			if seen[m] {
				continue
			}
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("ningún archivo que validar")
	}
	return files, nil
}
