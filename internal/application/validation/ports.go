package validation

import (
	"context"
	"crypto/x509"

	"github.com/jhoicas/cfdi-validator/internal/domain/entity"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/certificate"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/status"
)

// RevocationChecker consulta de revocación del certificado del emisor (OCSP).
type RevocationChecker interface {
	Check(ctx context.Context, cert *x509.Certificate) (certificate.Result, error)
}

// ReportObserver recibe cada reporte terminado (métricas).
type ReportObserver interface {
	ObserveReport(r *entity.ValidationReport)
}

// StatusObserver recibe el resultado de cada consulta de estado.
type StatusObserver interface {
	ObserveStatus(err error)
}

var (
	_ RevocationChecker = (*certificate.OCSPChecker)(nil)
	_ status.Querier    = (*status.SOAPClient)(nil)
)
