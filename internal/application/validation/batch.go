package validation

import (
	"context"
	"sync"
)

// Item documento de un lote.
type Item struct {
	Name string // nombre de archivo o identificador del cliente
	Data []byte
}

// ItemResult resultado de un documento del lote. Err solo se llena si el documento no
// llegó a procesarse (contexto cancelado o archivo ilegible).
type ItemResult struct {
	Name   string
	Result *Result
	Err    error
}

// Batch valida lotes con concurrencia acotada.
type Batch struct {
	validator *Validator
	workers   int
}

// NewBatch crea el procesador de lotes. workers <= 0 usa uno solo.
func NewBatch(v *Validator, workers int) *Batch {
	if workers <= 0 {
		workers = 1
	}
	return &Batch{validator: v, workers: workers}
}

// Run valida todos los documentos y devuelve los resultados en el orden de entrada.
// Al cancelarse ctx los documentos pendientes se marcan con ctx.Err().
func (b *Batch) Run(ctx context.Context, items []Item) []ItemResult {
	out := make([]ItemResult, len(items))
	if len(items) == 0 {
		return out
	}

	throttle := make(chan struct{}, b.workers)
	var wg sync.WaitGroup

	for i, item := range items {
		out[i].Name = item.Name

		select {
		case <-ctx.Done():
			out[i].Err = ctx.Err()
			continue
		case throttle <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, item Item) {
			defer wg.Done()
			defer func() { <-throttle }()

			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return
			}
			out[i].Result = b.validator.Validate(ctx, item.Data)
		}(i, item)
	}

	wg.Wait()
	return out
}

// Summary totales de un lote.
type Summary struct {
	Total    int `json:"total" yaml:"total"`
	Accepted int `json:"accepted" yaml:"accepted"`
	Rejected int `json:"rejected" yaml:"rejected"`
	Skipped  int `json:"skipped" yaml:"skipped"`
}

// Summarize cuenta aceptados, rechazados y omitidos.
func Summarize(results []ItemResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Result == nil:
			s.Skipped++
		case r.Result.Report.Accepted():
			s.Accepted++
		default:
			s.Rejected++
		}
	}
	return s
}
