package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jhoicas/cfdi-validator/internal/domain/repository"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/resolver"
	"github.com/jhoicas/cfdi-validator/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	CFDI      CFDIHandlerDeps
	Certs     resolver.Resolver
	StrictRFC bool
	Reports   repository.ValidationReportRepository // nil = sin rutas de historial
	Metrics   nethttp.Handler                       // nil = sin /metrics
	JWTSecret string
	Service   string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": deps.Service})
	})
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	api := app.Group("/api")

	// RFC (público)
	catalog := NewCatalogHandler(deps.Certs, deps.StrictRFC)
	api.Get("/rfc/:rfc", catalog.RFC)

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// CFDI: los sistemas integradores validan; auditoría también puede consultar
	cfdiHandler := NewCFDIHandler(deps.CFDI)
	docs := protected.Group("/cfdi", RequireRole(jwt.RoleAdmin, jwt.RoleIntegrador, jwt.RoleAuditor))
	docs.Post("/validate", cfdiHandler.Validate)
	docs.Post("/validate/batch", cfdiHandler.ValidateBatch)
	docs.Post("/chain", cfdiHandler.Chain)
	docs.Post("/status", cfdiHandler.Status)
	docs.Post("/pdf", cfdiHandler.PDF)

	// Certificados
	protected.Get("/certificates/:number", catalog.Certificate)

	// Historial (admin y auditoría)
	if deps.Reports != nil {
		reportHandler := NewReportHandler(deps.Reports)
		reports := protected.Group("/reports", RequireRole(jwt.RoleAdmin, jwt.RoleAuditor))
		reports.Get("/", reportHandler.List)
		reports.Get("/uuid/:uuid", reportHandler.ListByUUID)
		reports.Get("/:id", reportHandler.GetByID)
	}
}
