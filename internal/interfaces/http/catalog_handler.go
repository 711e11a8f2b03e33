package http

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/cfdi-validator/internal/application/dto"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/certificate"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/resolver"
	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

// CatalogHandler consultas sin documento: RFC y certificados publicados.
type CatalogHandler struct {
	certs     resolver.Resolver
	strictRFC bool
}

// NewCatalogHandler construye el handler. strictRFC es el valor por defecto de ?strict.
func NewCatalogHandler(certs resolver.Resolver, strictRFC bool) *CatalogHandler {
	return &CatalogHandler{certs: certs, strictRFC: strictRFC}
}

// RFC godoc
// @Summary      Validar un RFC
// @Description  Valida estructura y fecha del RFC y lo clasifica (persona física, moral o genérico).
//               Con strict=true exige además el dígito verificador.
// @Tags         catalogos
// @Produce      json
// @Param        rfc     path   string  true   "RFC (el & se envía como %26)"
// @Param        strict  query  bool    false  "Exigir dígito verificador"
// @Success      200  {object}  dto.RFCResponse
// @Failure      422  {object}  dto.RFCResponse
// @Router       /api/rfc/{rfc} [get]
func (h *CatalogHandler) RFC(c *fiber.Ctx) error {
	raw, err := url.PathUnescape(c.Params("rfc"))
	if err != nil {
		raw = c.Params("rfc")
	}
	out := dto.NewRFCResponse(raw, c.QueryBool("strict", h.strictRFC))
	if !out.Valid {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(out)
	}
	return c.JSON(out)
}

// Certificate godoc
// @Summary      Certificado por número
// @Description  Devuelve en PEM el certificado publicado por el SAT para un número de 20 dígitos.
//               Usa el almacén local, la caché en disco y el repositorio público, en ese orden.
// @Tags         catalogos
// @Security     Bearer
// @Produce      application/x-pem-file
// @Param        number  path  string  true  "Número de certificado"
// @Success      200  {string}  string
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/certificates/{number} [get]
func (h *CatalogHandler) Certificate(c *fiber.Ctx) error {
	number := certificate.SanitizeNumber(c.Params("number"))
	if len(number) != sat.CertificateNumberLength {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_CERTIFICATE_NUMBER", Message: "el número debe tener 20 dígitos"})
	}
	pemText, err := h.certs.Resolve(c.UserContext(), number)
	if err != nil {
		switch resolver.CodeOf(err) {
		case resolver.InvalidCertificateNumber:
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_CERTIFICATE_NUMBER", Message: "el número debe tener 20 dígitos"})
		case resolver.NotFound:
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "certificado no encontrado"})
		default:
			return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "NETWORK_ERROR", Message: err.Error()})
		}
	}
	c.Set(fiber.HeaderContentType, "application/x-pem-file")
	return c.SendString(pemText)
}
