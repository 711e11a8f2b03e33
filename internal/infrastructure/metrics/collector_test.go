package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cfdi-validator/internal/domain/entity"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/metrics"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/resolver"
)

func TestCollector_ObserveReport(t *testing.T) {
	c := metrics.NewCollector(false)
	c.ObserveReport(&entity.ValidationReport{
		Outcome: entity.OutcomeRejected,
		Stage:   entity.StageChainDerived,
		Diagnostics: []entity.Diagnostic{
			{Severity: entity.SeverityError},
			{Severity: entity.SeverityWarning},
			{Severity: entity.SeverityError},
		},
		Duration: 20 * time.Millisecond,
	})

	n, err := testutil.GatherAndCount(c.Registry(), "cfdi_validations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	problems, err := testutil.GatherAndLint(c.Registry())
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestCollector_Observer(t *testing.T) {
	c := metrics.NewCollector(false)
	var obs resolver.Observer = c
	obs.Resolved(resolver.SourceCache, "30001000000400002434")
	obs.Resolved(resolver.SourceCache, "30001000000400002434")
	obs.Resolved(resolver.SourceNetwork, "30001000000400002434")
	obs.Failed(resolver.NetworkError, "30001000000400002434", errors.New("timeout"))
	obs.CacheWriteFailed("30001000000400002434", errors.New("disco lleno"))
	c.ObserveStatus(nil)

	n, err := testutil.GatherAndCount(c.Registry(), "cfdi_certificates_resolved_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "una serie por origen")

	n, err = testutil.GatherAndCount(c.Registry(), "cfdi_certificates_failed_total", "cfdi_certificates_cache_write_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCollector_Handler(t *testing.T) {
	c := metrics.NewCollector(false)
	c.Resolved(resolver.SourceLocal, "1")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `cfdi_certificates_resolved_total{source="local"} 1`)
}
