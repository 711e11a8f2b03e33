package http

import (
	"errors"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/cfdi-validator/internal/application/dto"
	"github.com/jhoicas/cfdi-validator/internal/application/validation"
	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-validator/internal/domain/entity"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/xmlmap"
	"github.com/jhoicas/cfdi-validator/pkg/logger"
)

// PDFRenderer representación impresa de un comprobante validado.
type PDFRenderer interface {
	Generate(comprobante *cfdi.Node, report *entity.ValidationReport) ([]byte, error)
}

// CFDIHandler maneja validación, cadena original, estado y PDF de comprobantes.
type CFDIHandler struct {
	validator *validation.Validator
	batch     *validation.Batch
	mapper    *xmlmap.Mapper
	chains    *cfdi.ChainGenerator
	status    *validation.StatusService
	pdf       PDFRenderer
	maxBatch  int
	log       *logger.Logger
}

// CFDIHandlerDeps colaboradores del handler. Status y PDF pueden ser nil: sus rutas
// responden 503.
type CFDIHandlerDeps struct {
	Validator *validation.Validator
	Batch     *validation.Batch
	Mapper    *xmlmap.Mapper
	Chains    *cfdi.ChainGenerator
	Status    *validation.StatusService
	PDF       PDFRenderer
	MaxBatch  int // archivos por lote; 0 = 100
	Logger    *logger.Logger
}

// NewCFDIHandler construye el handler.
func NewCFDIHandler(d CFDIHandlerDeps) *CFDIHandler {
	if d.MaxBatch <= 0 {
		d.MaxBatch = 100
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return &CFDIHandler{
		validator: d.Validator,
		batch:     d.Batch,
		mapper:    d.Mapper,
		chains:    d.Chains,
		status:    d.Status,
		pdf:       d.PDF,
		maxBatch:  d.MaxBatch,
		log:       d.Logger,
	}
}

// Validate godoc
// @Summary      Validar un CFDI
// @Description  Recorre esquema, modelo, cadena original, sellos y certificados. Responde 200 si el
//               comprobante se acepta y 422 con los diagnósticos si se rechaza.
// @Tags         cfdi
// @Security     Bearer
// @Accept       xml
// @Produce      json
// @Param        chains  query  bool  false  "Incluir cadenas originales en la respuesta"
// @Success      200  {object}  dto.ValidationResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ValidationResponse
// @Router       /api/cfdi/validate [post]
func (h *CFDIHandler) Validate(c *fiber.Ctx) error {
	body, err := xmlBody(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "EMPTY_BODY", Message: err.Error()})
	}
	res := h.validator.Validate(c.UserContext(), body)
	var chains *validation.Result
	if c.QueryBool("chains") {
		chains = res
	}
	out := dto.NewValidationResponse(res.Report, chains)
	if !res.Report.Accepted() {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(out)
	}
	return c.JSON(out)
}

// ValidateBatch godoc
// @Summary      Validar un lote de CFDI
// @Description  Recibe archivos en el campo multipart "files" y los valida en paralelo. El orden de
//               la respuesta es el de los archivos recibidos.
// @Tags         cfdi
// @Security     Bearer
// @Accept       mpfd
// @Produce      json
// @Param        files  formData  file  true  "Comprobantes XML"
// @Success      200  {object}  dto.BatchResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      413  {object}  dto.ErrorResponse
// @Router       /api/cfdi/validate/batch [post]
func (h *CFDIHandler) ValidateBatch(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "se esperaba multipart/form-data"})
	}
	files := form.File["files"]
	if len(files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "campo 'files' requerido"})
	}
	if len(files) > h.maxBatch {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(dto.ErrorResponse{Code: "BATCH_TOO_LARGE", Message: "demasiados archivos en el lote"})
	}
	items := make([]validation.Item, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: fh.Filename + ": " + err.Error()})
		}
		items = append(items, validation.Item{Name: fh.Filename, Data: data})
	}
	results := h.batch.Run(c.UserContext(), items)
	return c.JSON(dto.NewBatchResponse(results, c.QueryBool("chains")))
}

// Chain godoc
// @Summary      Cadena original
// @Description  Deriva la cadena original del comprobante y del timbre, con su digest.
// @Tags         cfdi
// @Security     Bearer
// @Accept       xml
// @Produce      json
// @Success      200  {object}  dto.ChainsResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/cfdi/chain [post]
func (h *CFDIHandler) Chain(c *fiber.Ctx) error {
	root, ok, err := h.decode(c)
	if !ok {
		return err
	}
	out, err := dto.NewChainsResponse(h.chains, root)
	if err != nil {
		return chainFailure(c, err)
	}
	return c.JSON(out)
}

// Status godoc
// @Summary      Estado en el SAT
// @Description  Consulta ConsultaCFDIService con la expresión del comprobante timbrado.
// @Tags         cfdi
// @Security     Bearer
// @Accept       xml
// @Produce      json
// @Success      200  {object}  dto.StatusResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/cfdi/status [post]
func (h *CFDIHandler) Status(c *fiber.Ctx) error {
	if h.status == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "STATUS_DISABLED", Message: "consulta de estado no configurada"})
	}
	root, ok, err := h.decode(c)
	if !ok {
		return err
	}
	data, st, err := h.status.Query(c.UserContext(), root)
	if err != nil {
		if errors.Is(err, validation.ErrNotStamped) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "NOT_STAMPED", Message: "el comprobante no tiene timbre fiscal"})
		}
		if errors.Is(err, validation.ErrStatusUnavailable) {
			return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "STATUS_UNAVAILABLE", Message: err.Error()})
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	}
	return c.JSON(dto.NewStatusResponse(data, st))
}

// PDF godoc
// @Summary      Representación impresa
// @Description  Valida el comprobante y genera su representación impresa con el resultado de la
//               validación y el código QR de verificación.
// @Tags         cfdi
// @Security     Bearer
// @Accept       xml
// @Produce      application/pdf
// @Success      200
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ValidationResponse
// @Router       /api/cfdi/pdf [post]
func (h *CFDIHandler) PDF(c *fiber.Ctx) error {
	if h.pdf == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "PDF_DISABLED", Message: "generación de PDF no configurada"})
	}
	body, err := xmlBody(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "EMPTY_BODY", Message: err.Error()})
	}
	res := h.validator.Validate(c.UserContext(), body)
	if res.Comprobante == nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.NewValidationResponse(res.Report, nil))
	}
	out, err := h.pdf.Generate(res.Comprobante, res.Report)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", res.Report.ID).Msg("pdf: generación fallida")
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	name := res.Report.UUID
	if name == "" {
		name = res.Report.ID
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+strings.ToLower(name)+`.pdf"`)
	return c.Send(out)
}

// ── helpers ──────────────────────────────────────────────────────────────────

// xmlBody copia el cuerpo: fasthttp reutiliza el buffer al terminar el handler.
func xmlBody(c *fiber.Ctx) ([]byte, error) {
	body := c.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, errors.New("cuerpo XML requerido")
	}
	return append([]byte(nil), body...), nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// decode mapea el cuerpo. Con ok=false la respuesta de error ya está escrita y err
// es el resultado de escribirla.
func (h *CFDIHandler) decode(c *fiber.Ctx) (root *cfdi.Node, ok bool, err error) {
	body, err := xmlBody(c)
	if err != nil {
		return nil, false, c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "EMPTY_BODY", Message: err.Error()})
	}
	root, err = h.mapper.Decode(body)
	if err != nil {
		var me *cfdi.MappingError
		if errors.As(err, &me) {
			return nil, false, c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: me.Kind.String(), Message: err.Error()})
		}
		return nil, false, c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_XML", Message: err.Error()})
	}
	if !cfdi.IsComprobante(root) {
		return nil, false, c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "NO_ES_COMPROBANTE", Message: root.Type() + " no es un comprobante"})
	}
	return root, true, nil
}

func chainFailure(c *fiber.Ctx, err error) error {
	code := "CHAIN_ERROR"
	var ce *cfdi.ChainError
	if errors.As(err, &ce) {
		code = ce.Kind.String()
	}
	return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: code, Message: err.Error()})
}
