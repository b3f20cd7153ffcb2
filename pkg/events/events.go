// Package events publishes drone lifecycle events to an external broker.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeRegistered   Type = "drone.registered"
	TypeLoaded       Type = "drone.loaded"
	TypeLoadRejected Type = "drone.load_rejected"
	TypeStateChanged Type = "drone.state_changed"
)

// Event is the message put on the wire, JSON encoded.
type Event struct {
	ID              string    `json:"id"`
	Type            Type      `json:"type"`
	SerialNumber    string    `json:"serialNumber"`
	State           string    `json:"state"`
	BatteryCapacity int       `json:"batteryCapacity"`
	Code            string    `json:"code,omitempty"`
	MedicationID    string    `json:"medicationId,omitempty"`
	Timestamp       time.Time `json:"ts"`
}

func New(t Type, serialNumber string) Event {
	return Event{
		ID:           uuid.New().String(),
		Type:         t,
		SerialNumber: serialNumber,
		Timestamp:    time.Now().UTC(),
	}
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers encoded events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() error { return nil }
