package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes events to the application log.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info("drone event",
		zap.String("event_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.String("serial_number", e.SerialNumber),
		zap.String("state", e.State),
		zap.Int("battery", e.BatteryCapacity),
		zap.String("code", e.Code),
		zap.String("medication_id", e.MedicationID),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
