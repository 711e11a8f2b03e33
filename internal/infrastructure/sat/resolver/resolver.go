// Package resolver obtiene el certificado (PEM) correspondiente a un número de
// certificado: primero en un directorio local y después en el repositorio público
// del SAT, con caché en disco.
package resolver

import (
	"context"
	"errors"
	"fmt"
)

// Code código de resultado de la resolución.
type Code int

const (
	NoError                  Code = 0
	NotFound                 Code = 1
	NetworkError             Code = 2
	InvalidCertificateNumber Code = 3
)

func (c Code) String() string {
	switch c {
	case NoError:
		return "NO_ERROR"
	case NotFound:
		return "NOT_FOUND"
	case NetworkError:
		return "NETWORK_ERROR"
	case InvalidCertificateNumber:
		return "INVALID_CERTIFICATE_NUMBER"
	default:
		return fmt.Sprintf("CODE(%d)", int(c))
	}
}

// ResolutionError falla tipada de la resolución.
type ResolutionError struct {
	Code   Code
	Number string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolver: %s %q: %v", e.Code, e.Number, e.Err)
	}
	return fmt.Sprintf("resolver: %s %q", e.Code, e.Number)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// CodeOf extrae el código de un error de resolución; nil da NoError y cualquier otro
// error da NetworkError.
func CodeOf(err error) Code {
	if err == nil {
		return NoError
	}
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Code
	}
	return NetworkError
}

// Resolver capacidad común de los resolvedores.
type Resolver interface {
	Resolve(ctx context.Context, number string) (string, error)
}

// Source origen del certificado resuelto.
type Source string

const (
	SourceLocal   Source = "local"
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
	SourceStale   Source = "stale"
)

// Observer recibe los eventos de resolución (métricas, bitácora). Los resolvedores no
// escriben bitácora por su cuenta.
type Observer interface {
	Resolved(source Source, number string)
	Failed(code Code, number string, err error)
	CacheWriteFailed(number string, err error)
}

type nopObserver struct{}

func (nopObserver) Resolved(Source, string)         {}
func (nopObserver) Failed(Code, string, error)      {}
func (nopObserver) CacheWriteFailed(string, error) {}

// ── Cadena ───────────────────────────────────────────────────────────────────

// Chain prueba los resolvedores en orden y pasa al siguiente solo ante NotFound.
type Chain []Resolver

// Resolve implementa Resolver.
func (c Chain) Resolve(ctx context.Context, number string) (string, error) {
	err := error(&ResolutionError{Code: NotFound, Number: number})
	for _, r := range c {
		var pem string
		pem, err = r.Resolve(ctx, number)
		if err == nil {
			return pem, nil
		}
		if CodeOf(err) != NotFound {
			return "", err
		}
	}
	return "", err
}
