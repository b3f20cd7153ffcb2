// Package drone maps drones to flat storage rows.
package drone

import (
	"encoding/json"

	"github.com/pkg/errors"

	pkgdrone "dronemed/pkg/drone"
)

type (
	//define how a drone is laid out in a table row
	Record struct {
		SerialNumber    string  `db:"serial_number"`    // (100 characters max);
		WeightClass     string  `db:"weight_class"`     // (LIGHT, MIDDLE, CRUISER, HEAVY);
		WeightLimit     float64 `db:"weight_limit"`     // (500gr max);
		BatteryCapacity int     `db:"battery_capacity"` // (percentage);
		State           string  `db:"state"`            // (IDLE, LOADING, LOADED, DELIVERING, DELIVERED, RETURNING).
		LoadedMeds      string  `db:"loaded_meds"`      // json array of medication ids
	}
)

func FromDrone(d *pkgdrone.Drone) (Record, error) {
	meds := d.LoadedMeds
	if meds == nil {
		meds = []string{}
	}

	data, err := json.Marshal(meds)
	if err != nil {
		return Record{}, errors.Wrap(err, "could not encode loaded meds")
	}

	return Record{
		SerialNumber:    d.SerialNumber,
		WeightClass:     string(d.WeightClass),
		WeightLimit:     d.WeightLimit,
		BatteryCapacity: d.BatteryCapacity,
		State:           string(d.State),
		LoadedMeds:      string(data),
	}, nil
}

func (r Record) ToDrone() (*pkgdrone.Drone, error) {
	meds := make([]string, 0)
	if r.LoadedMeds != "" {
		if err := json.Unmarshal([]byte(r.LoadedMeds), &meds); err != nil {
			return nil, errors.Wrapf(err, "could not decode loaded meds of drone %s", r.SerialNumber)
		}
	}

	return &pkgdrone.Drone{
		SerialNumber:    r.SerialNumber,
		WeightClass:     pkgdrone.WeightClass(r.WeightClass),
		WeightLimit:     r.WeightLimit,
		BatteryCapacity: r.BatteryCapacity,
		State:           pkgdrone.State(r.State),
		LoadedMeds:      meds,
	}, nil
}
