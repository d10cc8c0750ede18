package realtime

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/sos_unifio/backend/internal/metrics"
	"github.com/sos_unifio/backend/internal/models"
	"github.com/sos_unifio/backend/internal/service"
)

// Submitter accepts inbound occurrences. *service.Dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, o models.Occurrence, attempted []string) (models.Occurrence, *models.IncomingCall, bool, error)
}

// Ingest hands an inbound occurrence to the dispatcher and records the
// outcome under source (feed, webhook, simulator).
func Ingest(ctx context.Context, sub Submitter, logger zerolog.Logger, source string, in InboundOccurrence) (models.Occurrence, *models.IncomingCall, error) {
	occ, call, created, err := sub.Submit(ctx, in.Occurrence, in.Attempted)
	switch {
	case errors.Is(err, service.ErrNoEligibleResponder):
		metrics.RealtimeEvents.WithLabelValues(source, "escalated").Inc()
		logger.Warn().Str("source", source).Str("occurrence_id", occ.ID).Msg("inbound occurrence escalated")
	case err != nil:
		metrics.RealtimeEvents.WithLabelValues(source, "error").Inc()
		logger.Error().Err(err).Str("source", source).Str("occurrence_id", in.Occurrence.ID).Msg("inbound occurrence failed")
	case !created:
		metrics.RealtimeEvents.WithLabelValues(source, "duplicate").Inc()
		logger.Debug().Str("source", source).Str("occurrence_id", occ.ID).Msg("inbound occurrence already known")
	default:
		metrics.RealtimeEvents.WithLabelValues(source, "dispatched").Inc()
		ev := logger.Info().Str("source", source).Str("occurrence_id", occ.ID).Str("priority", string(occ.Priority))
		if call != nil {
			ev = ev.Str("call_id", call.ID).Str("responder_id", call.ResponderID)
		}
		ev.Msg("inbound occurrence dispatched")
	}
	return occ, call, err
}
