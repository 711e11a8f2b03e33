package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/cfdi-validator/internal/application/dto"
	"github.com/jhoicas/cfdi-validator/internal/domain"
	"github.com/jhoicas/cfdi-validator/internal/domain/entity"
	"github.com/jhoicas/cfdi-validator/internal/domain/repository"
)

// ReportHandler consulta el historial de validaciones (protegido).
type ReportHandler struct {
	repo repository.ValidationReportRepository
}

// NewReportHandler construye el handler.
func NewReportHandler(repo repository.ValidationReportRepository) *ReportHandler {
	return &ReportHandler{repo: repo}
}

// List godoc
// @Summary      Historial de validaciones
// @Tags         reportes
// @Security     Bearer
// @Produce      json
// @Param        issuer   query  string  false  "RFC del emisor"
// @Param        outcome  query  string  false  "ACCEPTED | REJECTED"
// @Param        from     query  string  false  "Desde (YYYY-MM-DD)"
// @Param        to       query  string  false  "Hasta (YYYY-MM-DD, inclusive)"
// @Param        limit    query  int     false  "Máx. 100 (default 20)"
// @Param        offset   query  int     false  "Desplazamiento"
// @Success      200  {object}  dto.ReportListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/reports [get]
func (h *ReportHandler) List(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()
	if page.Limit > 100 {
		page.Limit = 100
	}
	filter := repository.ReportFilter{
		IssuerRFC: c.Query("issuer"),
		Outcome:   c.Query("outcome"),
		Limit:     page.Limit,
		Offset:    page.Offset,
	}
	if filter.Outcome != "" && filter.Outcome != entity.OutcomeAccepted && filter.Outcome != entity.OutcomeRejected {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "outcome debe ser ACCEPTED o REJECTED"})
	}
	var err error
	if filter.From, err = dateQuery(c, "from", 0); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "from: formato YYYY-MM-DD"})
	}
	if filter.To, err = dateQuery(c, "to", 24*time.Hour); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "to: formato YYYY-MM-DD"})
	}

	reports, err := h.repo.List(c.UserContext(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	out := dto.ReportListResponse{
		Items: make([]dto.ValidationResponse, 0, len(reports)),
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
	}
	for _, r := range reports {
		out.Items = append(out.Items, dto.NewValidationResponse(r, nil))
	}
	return c.JSON(out)
}

// GetByID godoc
// @Summary      Reporte de validación
// @Tags         reportes
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "ID de la ejecución"
// @Success      200  {object}  dto.ValidationResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/reports/{id} [get]
func (h *ReportHandler) GetByID(c *fiber.Ctx) error {
	rep, err := h.repo.GetByID(c.UserContext(), c.Params("id"))
	if errors.Is(err, domain.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "reporte no encontrado"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(dto.NewValidationResponse(rep, nil))
}

// ListByUUID godoc
// @Summary      Validaciones de un folio fiscal
// @Tags         reportes
// @Security     Bearer
// @Produce      json
// @Param        uuid  path  string  true  "UUID del timbre"
// @Success      200  {array}  dto.ValidationResponse
// @Router       /api/reports/uuid/{uuid} [get]
func (h *ReportHandler) ListByUUID(c *fiber.Ctx) error {
	reports, err := h.repo.ListByUUID(c.UserContext(), c.Params("uuid"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	out := make([]dto.ValidationResponse, 0, len(reports))
	for _, r := range reports {
		out = append(out, dto.NewValidationResponse(r, nil))
	}
	return c.JSON(out)
}

// dateQuery lee YYYY-MM-DD en UTC desplazado por shift; vacío da nil.
func dateQuery(c *fiber.Ctx, key string, shift time.Duration) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	t = t.Add(shift)
	return &t, nil
}
