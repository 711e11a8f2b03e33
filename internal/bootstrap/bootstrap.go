// Package bootstrap arma las piezas de validación a partir de la configuración. Lo
// comparten la API y la CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/cfdi-validator/internal/application/validation"
	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-validator/internal/domain/repository"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/metrics"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/postgres"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/certificate"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/resolver"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/schema"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/status"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/xmlmap"
	"github.com/jhoicas/cfdi-validator/pkg/config"
	"github.com/jhoicas/cfdi-validator/pkg/logger"
)

// Options ajustes de armado que no vienen de la configuración.
type Options struct {
	WatchTrust bool               // recarga el paquete de confianza cuando cambia el archivo
	Persist    bool               // guarda reportes si hay base de datos configurada
	Metrics    *metrics.Collector // nil = sin métricas
}

// Components piezas listas para usar.
type Components struct {
	Registry  *cfdi.Registry
	Mapper    *xmlmap.Mapper
	Chains    *cfdi.ChainGenerator
	Certs     resolver.Resolver
	Online    *resolver.Online
	Trust     certificate.Authority // nil sin SAT_TRUST_BUNDLE
	Validator *validation.Validator
	Batch     *validation.Batch
	Status    *validation.StatusService // nil sin SAT_STATUS_URL
	Reports   repository.ValidationReportRepository

	closers []func()
}

// Close libera la vigilancia del paquete de confianza y el pool de la base de datos.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build arma los componentes. Un paquete de confianza ilegible o una base de datos
// inaccesible son errores; la ausencia de ambos solo se registra.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Components, error) {
	c := &Components{}

	c.Registry = cfdi.MustDefaultRegistry()
	cfdi.RegisterBusinessRules(c.Registry, cfdi.RuleOptions{StrictRFC: cfg.SAT.StrictRFC})
	c.Mapper = xmlmap.NewMapper(c.Registry)
	c.Chains = cfdi.NewDefaultChainGenerator()

	// ── Resolución de certificados ──
	var observer resolver.Observer
	var reportObserver validation.ReportObserver
	var statusObserver validation.StatusObserver
	if opts.Metrics != nil {
		observer = opts.Metrics
		reportObserver = opts.Metrics
		statusObserver = opts.Metrics
	}
	c.Online = resolver.NewOnline(resolver.OnlineOptions{
		BaseURL:        cfg.SAT.CertBaseURL,
		CacheDir:       cfg.SAT.CacheDir,
		ConnectTimeout: cfg.SAT.ConnectTimeout,
		Timeout:        cfg.SAT.FetchTimeout,
		MaxAge:         cfg.SAT.CacheMaxAge,
		RateLimit:      float64(cfg.SAT.FetchRate),
		Burst:          cfg.SAT.FetchBurst,
		Observer:       observer,
	})
	if cfg.SAT.LocalCertDir != "" {
		c.Certs = resolver.Chain{resolver.NewLocal(cfg.SAT.LocalCertDir, observer), c.Online}
	} else {
		c.Certs = c.Online
	}

	// ── Confianza ──
	if err := c.buildTrust(ctx, cfg, log, opts.WatchTrust); err != nil {
		c.Close()
		return nil, err
	}
	var ocsp validation.RevocationChecker
	if cfg.SAT.OCSPURL != "" && c.Trust != nil {
		ocsp = certificate.NewOCSPChecker(cfg.SAT.OCSPURL, c.Trust, cfg.SAT.FetchTimeout)
	}

	// ── Persistencia ──
	if opts.Persist && cfg.DB.Enabled() {
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("bootstrap: conexión a PostgreSQL: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		if err := c.buildReports(ctx, pool); err != nil {
			c.Close()
			return nil, err
		}
	}

	deps := validation.Deps{
		Schema:   schema.NewChecker(),
		Mapper:   c.Mapper,
		Chains:   c.Chains,
		Certs:    c.Certs,
		Trust:    c.Trust,
		OCSP:     ocsp,
		Reports:  c.Reports,
		Observer: reportObserver,
		Logger:   log,
	}
	c.Validator = validation.NewValidator(deps, validation.Config{RequireStamp: cfg.SAT.RequireStamp})
	c.Batch = validation.NewBatch(c.Validator, cfg.SAT.Workers)

	if cfg.SAT.StatusURL != "" {
		c.Status = validation.NewStatusService(c.Mapper, status.NewSOAPClient(cfg.SAT.StatusURL, cfg.SAT.StatusTimeout), statusObserver, log)
	}
	return c, nil
}

func (c *Components) buildTrust(ctx context.Context, cfg *config.Config, log *logger.Logger, watch bool) error {
	if cfg.SAT.TrustBundle == "" {
		log.Warn().Msg("bootstrap: SAT_TRUST_BUNDLE vacío; la verificación de certificados rechazará todos los documentos")
		return nil
	}
	if !watch {
		store, err := certificate.LoadTrustStore(cfg.SAT.TrustBundle)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		c.Trust = store
		return nil
	}
	w, err := certificate.NewTrustWatcher(cfg.SAT.TrustBundle, func(store *certificate.TrustStore, err error) {
		if err != nil {
			log.Error().Err(err).Str("path", cfg.SAT.TrustBundle).Msg("bootstrap: recarga del paquete de confianza")
			return
		}
		log.Info().Int("certificates", store.Len()).Msg("bootstrap: paquete de confianza recargado")
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	watchCtx, cancel := context.WithCancel(ctx)
	w.Start(watchCtx)
	c.closers = append(c.closers, func() {
		cancel()
		_ = w.Close()
	})
	c.Trust = w
	log.Info().Int("certificates", w.Store().Len()).Str("path", cfg.SAT.TrustBundle).Msg("bootstrap: paquete de confianza cargado")
	return nil
}

func (c *Components) buildReports(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	c.Reports = postgres.NewValidationReportRepository(pool)
	return nil
}

// ErrNoStatus la consulta de estado no está configurada.
var ErrNoStatus = errors.New("bootstrap: SAT_STATUS_URL vacío")

// StatusService devuelve el servicio de estado o ErrNoStatus.
func (c *Components) StatusService() (*validation.StatusService, error) {
	if c.Status == nil {
		return nil, ErrNoStatus
	}
	return c.Status, nil
}
