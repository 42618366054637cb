package observability

import (
	"log/slog"

	"otcswap/core/events"
	"otcswap/core/types"
	"otcswap/native/swap"
)

// EventRecorder bridges engine events into structured logs and the prometheus
// registry. It satisfies events.Emitter so it can be attached directly to the
// swap engine.
type EventRecorder struct {
	log     *slog.Logger
	metrics *SwapMetrics
}

// NewEventRecorder builds a recorder writing to the given logger. A nil logger
// falls back to the default slog logger.
func NewEventRecorder(log *slog.Logger) *EventRecorder {
	if log == nil {
		log = slog.Default()
	}
	return &EventRecorder{log: log, metrics: Swap()}
}

// Emit implements events.Emitter.
func (r *EventRecorder) Emit(evt events.Event) {
	if r == nil || evt == nil {
		return
	}
	switch evt.EventType() {
	case swap.EventTypeOfferCreated:
		r.metrics.OfferOpened()
	case swap.EventTypeOfferSettled:
		r.metrics.OfferSettled()
	case swap.EventTypeOfferCancelled:
		r.metrics.OfferCancelled()
	}
	attrs := []any{slog.String("event", evt.EventType())}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				attrs = append(attrs, slog.String(key, value))
			}
		}
	}
	r.log.Info("swap event", attrs...)
}
