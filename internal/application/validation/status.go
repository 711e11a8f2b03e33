package validation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jhoicas/cfdi-validator/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/status"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/xmlmap"
	"github.com/jhoicas/cfdi-validator/pkg/logger"
	"github.com/jhoicas/cfdi-validator/pkg/sat"
)

var (
	// ErrNotStamped el comprobante no tiene UUID: no puede consultarse en el SAT.
	ErrNotStamped = errors.New("validation: comprobante sin timbre")
	// ErrStatusUnavailable envuelve las fallas del servicio de consulta.
	ErrStatusUnavailable = errors.New("validation: servicio de estado no disponible")
)

// StatusService consulta el estado de un comprobante timbrado en el SAT.
type StatusService struct {
	mapper   *xmlmap.Mapper
	querier  status.Querier
	observer StatusObserver
	log      *logger.Logger
}

// NewStatusService crea el servicio. observer y log pueden ser nil.
func NewStatusService(mapper *xmlmap.Mapper, querier status.Querier, observer StatusObserver, log *logger.Logger) *StatusService {
	if log == nil {
		log = logger.Nop()
	}
	return &StatusService{mapper: mapper, querier: querier, observer: observer, log: log}
}

// QueryDocument decodifica el XML y consulta su estado. Devuelve también los datos
// de verificación con que se armó la expresión.
func (s *StatusService) QueryDocument(ctx context.Context, data []byte) (sat.ExpressionData, *status.Status, error) {
	root, err := s.mapper.Decode(data)
	if err != nil {
		return sat.ExpressionData{}, nil, err
	}
	return s.Query(ctx, root)
}

// Query consulta el estado del comprobante ya mapeado.
func (s *StatusService) Query(ctx context.Context, comprobante *cfdi.Node) (sat.ExpressionData, *status.Status, error) {
	if !cfdi.IsComprobante(comprobante) {
		return sat.ExpressionData{}, nil, fmt.Errorf("validation: %s no es un comprobante", comprobante.Type())
	}
	data, err := cfdi.ExpressionOf(comprobante)
	if err != nil {
		return data, nil, fmt.Errorf("validation: total inválido: %w", err)
	}
	if data.UUID == "" {
		return data, nil, ErrNotStamped
	}
	st, err := s.QueryExpression(ctx, data)
	return data, st, err
}

// QueryExpression consulta con los datos de verificación ya extraídos.
func (s *StatusService) QueryExpression(ctx context.Context, data sat.ExpressionData) (*status.Status, error) {
	st, err := s.querier.Consulta(ctx, sat.StatusExpression(data))
	if s.observer != nil {
		s.observer.ObserveStatus(err)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("uuid", data.UUID).Msg("status: consulta fallida")
		return nil, fmt.Errorf("%w: %w", ErrStatusUnavailable, err)
	}
	s.log.Info().Str("uuid", data.UUID).Str("estado", st.Estado).Msg("status: consulta")
	return st, nil
}
