package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/cfdi-validator/internal/domain"
	"github.com/jhoicas/cfdi-validator/internal/domain/entity"
	"github.com/jhoicas/cfdi-validator/internal/domain/repository"
)

var _ repository.ValidationReportRepository = (*ValidationReportRepo)(nil)

const reportColumns = `id, document_digest, version, uuid, issuer_rfc, receiver_rfc, total, issued_at,
	       certificate_number, sat_certificate_number, stage, outcome, reject_reason,
	       diagnostics, validated_at, duration_ms`

// ValidationReportRepo implementación de ValidationReportRepository (usable con pool o tx).
type ValidationReportRepo struct {
	q Querier
}

// NewValidationReportRepository construye el adaptador. Pasar pool o tx (Querier).
func NewValidationReportRepository(q Querier) *ValidationReportRepo {
	return &ValidationReportRepo{q: q}
}

// Save persiste el reporte; asigna ID si viene vacío.
func (r *ValidationReportRepo) Save(ctx context.Context, report *entity.ValidationReport) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	diagnostics := report.Diagnostics
	if diagnostics == nil {
		diagnostics = []entity.Diagnostic{}
	}
	diagJSON, err := json.Marshal(diagnostics)
	if err != nil {
		return fmt.Errorf("encode diagnostics: %w", err)
	}
	query := `
		INSERT INTO cfdi_validation_reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err = r.q.Exec(ctx, query,
		report.ID, report.DocumentDigest, report.Version,
		nullIfEmpty(report.UUID), nullIfEmpty(report.IssuerRFC), nullIfEmpty(report.ReceiverRFC),
		report.Total, report.IssuedAt,
		nullIfEmpty(report.CertificateNumber), nullIfEmpty(report.SATCertificateNumber),
		string(report.Stage), report.Outcome, nullIfEmpty(report.RejectReason),
		diagJSON, report.ValidatedAt, report.Duration.Milliseconds(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("validation report %s: %w", report.ID, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert validation report: %w", err)
	}
	return nil
}

// GetByID obtiene un reporte; domain.ErrNotFound si no existe.
func (r *ValidationReportRepo) GetByID(ctx context.Context, id string) (*entity.ValidationReport, error) {
	query := `SELECT ` + reportColumns + ` FROM cfdi_validation_reports WHERE id = $1`
	report, err := scanReport(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get validation report: %w", err)
	}
	return report, nil
}

// ListByUUID historial de un folio fiscal.
func (r *ValidationReportRepo) ListByUUID(ctx context.Context, folio string) ([]*entity.ValidationReport, error) {
	query := `SELECT ` + reportColumns + ` FROM cfdi_validation_reports
		WHERE uuid = $1 ORDER BY validated_at DESC`
	return r.list(ctx, query, strings.ToUpper(folio))
}

// List busca reportes por emisor, resultado y rango de fechas.
func (r *ValidationReportRepo) List(ctx context.Context, filter repository.ReportFilter) ([]*entity.ValidationReport, error) {
	query, args := buildListQuery(filter)
	return r.list(ctx, query, args...)
}

func buildListQuery(filter repository.ReportFilter) (string, []any) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.IssuerRFC != "" {
		add("issuer_rfc = $%d", strings.ToUpper(filter.IssuerRFC))
	}
	if filter.Outcome != "" {
		add("outcome = $%d", filter.Outcome)
	}
	if filter.From != nil {
		add("validated_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("validated_at < $%d", *filter.To)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + reportColumns + ` FROM cfdi_validation_reports`)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	args = append(args, limit, max(filter.Offset, 0))
	fmt.Fprintf(&sb, " ORDER BY validated_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return sb.String(), args
}

func (r *ValidationReportRepo) list(ctx context.Context, query string, args ...any) ([]*entity.ValidationReport, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list validation reports: %w", err)
	}
	defer rows.Close()

	var out []*entity.ValidationReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan validation report: %w", err)
		}
		out = append(out, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list validation reports: %w", err)
	}
	return out, nil
}

func scanReport(row pgx.Row) (*entity.ValidationReport, error) {
	var rep entity.ValidationReport
	var folio, issuer, receiver, certNumber, satCertNumber, reason *string
	var stage string
	var diagJSON []byte
	var durationMS int64
	err := row.Scan(
		&rep.ID, &rep.DocumentDigest, &rep.Version, &folio, &issuer, &receiver,
		&rep.Total, &rep.IssuedAt, &certNumber, &satCertNumber,
		&stage, &rep.Outcome, &reason, &diagJSON, &rep.ValidatedAt, &durationMS,
	)
	if err != nil {
		return nil, err
	}
	rep.UUID = derefStr(folio)
	rep.IssuerRFC = derefStr(issuer)
	rep.ReceiverRFC = derefStr(receiver)
	rep.CertificateNumber = derefStr(certNumber)
	rep.SATCertificateNumber = derefStr(satCertNumber)
	rep.RejectReason = derefStr(reason)
	rep.Stage = entity.Stage(stage)
	rep.Duration = time.Duration(durationMS) * time.Millisecond
	if len(diagJSON) > 0 {
		if err := json.Unmarshal(diagJSON, &rep.Diagnostics); err != nil {
			return nil, fmt.Errorf("decode diagnostics: %w", err)
		}
	}
	return &rep, nil
}
