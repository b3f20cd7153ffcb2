package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	rowdrone "dronemed/internal/pkg/drone"
	"dronemed/pkg/drone"
	"dronemed/pkg/metrics"
	"dronemed/pkg/store"
)

type droneStore struct {
	db *DB
}

func (db *DB) Drones() store.DroneStore {
	return &droneStore{db: db}
}

const droneColumns = `serial_number, weight_class, weight_limit, battery_capacity, state, loaded_meds`

func scanDrone(scanner interface{ Scan(...any) error }) (*drone.Drone, error) {
	var rec rowdrone.Record
	err := scanner.Scan(
		&rec.SerialNumber,
		&rec.WeightClass,
		&rec.WeightLimit,
		&rec.BatteryCapacity,
		&rec.State,
		&rec.LoadedMeds,
	)
	if err != nil {
		return nil, err
	}
	return rec.ToDrone()
}

func (s *droneStore) FindByID(ctx context.Context, serialNumber string) (*drone.Drone, error) {
	defer metrics.ObserveStore(s.db.driver, "find_drone", time.Now())

	row := s.db.QueryRowContext(ctx, s.db.Q(`SELECT `+droneColumns+` FROM drones WHERE serial_number = ?`), serialNumber)
	d, err := scanDrone(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get drone %s", serialNumber)
	}
	return d, nil
}

func (s *droneStore) FindAll(ctx context.Context) ([]*drone.Drone, error) {
	defer metrics.ObserveStore(s.db.driver, "find_all_drones", time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT `+droneColumns+` FROM drones ORDER BY serial_number`)
	if err != nil {
		return nil, errors.Wrap(err, "list drones")
	}
	defer rows.Close()

	result := make([]*drone.Drone, 0)
	for rows.Next() {
		d, err := scanDrone(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan drone")
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate drones")
	}
	return result, nil
}

func (s *droneStore) Save(ctx context.Context, d *drone.Drone) (*drone.Drone, error) {
	defer metrics.ObserveStore(s.db.driver, "save_drone", time.Now())

	rec, err := rowdrone.FromDrone(d)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, s.db.Q(`INSERT INTO drones (`+droneColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (serial_number) DO UPDATE SET
			weight_class = excluded.weight_class,
			weight_limit = excluded.weight_limit,
			battery_capacity = excluded.battery_capacity,
			state = excluded.state,
			loaded_meds = excluded.loaded_meds`),
		rec.SerialNumber, rec.WeightClass, rec.WeightLimit, rec.BatteryCapacity, rec.State, rec.LoadedMeds)
	if err != nil {
		return nil, errors.Wrapf(err, "save drone %s", d.SerialNumber)
	}
	return d, nil
}
