package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dronemed/pkg/metrics"
)

const publishTimeout = 5 * time.Second

// Emitter hands events to a Publisher. A failed publish is logged and counted,
// never returned: the drone record is already persisted at that point.
type Emitter struct {
	publisher Publisher
	logger    *zap.Logger
}

func NewEmitter(publisher Publisher, logger *zap.Logger) *Emitter {
	if publisher == nil {
		publisher = Noop{}
	}
	return &Emitter{publisher: publisher, logger: logger}
}

func (e *Emitter) Emit(ctx context.Context, evt Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := e.publisher.Publish(ctx, evt); err != nil {
		metrics.EventsPublished.WithLabelValues(string(evt.Type), "error").Inc()
		e.logger.Warn("[Emitter] Failed to publish drone event",
			zap.String("type", string(evt.Type)),
			zap.String("serial_number", evt.SerialNumber),
			zap.Error(err))
		return
	}
	metrics.EventsPublished.WithLabelValues(string(evt.Type), "ok").Inc()
}

func (e *Emitter) Close() error {
	return e.publisher.Close()
}
