package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/certificate"
)

// Local busca <dir>/<dígitos>.cer. Solo lectura; no requiere sincronización.
type Local struct {
	dir      string
	observer Observer
}

// NewLocal crea el resolvedor local. observer puede ser nil.
func NewLocal(dir string, observer Observer) *Local {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Local{dir: dir, observer: observer}
}

// Resolve implementa Resolver. Solo falla con NotFound: un número sin dígitos
// simplemente no tiene archivo. La longitud la valida el resolvedor en línea.
func (l *Local) Resolve(_ context.Context, number string) (string, error) {
	digits := certificate.SanitizeNumber(number)
	if digits == "" {
		return "", l.fail(NotFound, number, errors.New("el número no contiene dígitos"))
	}
	if l.dir == "" {
		return "", l.fail(NotFound, digits, errors.New("sin directorio local"))
	}
	data, err := os.ReadFile(filepath.Join(l.dir, digits+".cer"))
	if err != nil {
		return "", l.fail(NotFound, digits, err)
	}
	if len(data) == 0 {
		return "", l.fail(NotFound, digits, errors.New("archivo vacío"))
	}
	l.observer.Resolved(SourceLocal, digits)
	return certificate.CoerceToPEM(data), nil
}

func (l *Local) fail(code Code, number string, err error) error {
	l.observer.Failed(code, number, err)
	return &ResolutionError{Code: code, Number: number, Err: err}
}
