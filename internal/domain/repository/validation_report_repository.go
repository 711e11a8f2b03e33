package repository

import (
	"context"
	"time"

	"github.com/jhoicas/cfdi-validator/internal/domain/entity"
)

// ReportFilter criterios de búsqueda de reportes.
type ReportFilter struct {
	IssuerRFC string
	Outcome   string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// ValidationReportRepository define el puerto de persistencia de reportes de validación.
type ValidationReportRepository interface {
	Save(ctx context.Context, report *entity.ValidationReport) error
	// GetByID devuelve domain.ErrNotFound si el reporte no existe.
	GetByID(ctx context.Context, id string) (*entity.ValidationReport, error)
	// ListByUUID historial de validaciones de un mismo folio fiscal, más reciente primero.
	ListByUUID(ctx context.Context, uuid string) ([]*entity.ValidationReport, error)
	List(ctx context.Context, filter ReportFilter) ([]*entity.ValidationReport, error)
}
