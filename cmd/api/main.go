package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/cfdi-validator/internal/bootstrap"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/metrics"
	infrapdf "github.com/jhoicas/cfdi-validator/internal/infrastructure/pdf"
	httpRouter "github.com/jhoicas/cfdi-validator/internal/interfaces/http"
	"github.com/jhoicas/cfdi-validator/pkg/config"
	"github.com/jhoicas/cfdi-validator/pkg/logger"
)

const swaggerFile = "./docs/swagger.json"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT_SECRET es obligatorio")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	collector := metrics.NewCollector(true)
	components, err := bootstrap.Build(ctx, cfg, log, bootstrap.Options{
		WatchTrust: true,
		Persist:    true,
		Metrics:    collector,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("armado de la validación")
	}
	defer components.Close()

	// PDF: representación impresa con QR de verificación
	pdfGenerator := infrapdf.NewMarotoPDFGenerator(components.Chains)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    16 * 1024 * 1024,
		ReadTimeout:  time.Second * 30,
		WriteTimeout: time.Second * 60,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs (requiere `swag init`)
	if _, err := os.Stat(swaggerFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: swaggerFile,
			Path:     "docs",
			Title:    "CFDI Validator API",
		}))
	}

	deps := httpRouter.RouterDeps{
		CFDI: httpRouter.CFDIHandlerDeps{
			Validator: components.Validator,
			Batch:     components.Batch,
			Mapper:    components.Mapper,
			Chains:    components.Chains,
			Status:    components.Status,
			PDF:       pdfGenerator,
			MaxBatch:  cfg.SAT.MaxBatch,
			Logger:    log,
		},
		Certs:     components.Certs,
		StrictRFC: cfg.SAT.StrictRFC,
		Reports:   components.Reports,
		Metrics:   collector.Handler(),
		JWTSecret: cfg.JWT.Secret,
		Service:   cfg.App.Name,
	}
	httpRouter.Router(app, deps)

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
