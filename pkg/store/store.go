// Package store holds the persisted drone and medication collections.
package store

import (
	"context"

	"dronemed/pkg/drone"
	"dronemed/pkg/medication"
)

type (
	// DroneStore is the persisted collection of drones keyed by serial number.
	// FindByID returns (nil, nil) when the serial number is unknown. Save is an upsert.
	DroneStore interface {
		FindByID(ctx context.Context, serialNumber string) (*drone.Drone, error)
		FindAll(ctx context.Context) ([]*drone.Drone, error)
		Save(ctx context.Context, d *drone.Drone) (*drone.Drone, error)
	}

	// Backend is one opened storage engine serving both collections.
	Backend interface {
		Drones() DroneStore
		Medications() medication.Store
		Ping(ctx context.Context) error
		Close() error
	}
)
