// Implements routines for manipulating drone objects.
package drone

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	maxSerialNumberCharacters = 100

	// MaxLoadedMeds caps how many medications a drone may carry at once.
	MaxLoadedMeds = 10
	// MinLoadingBattery is the battery level at or below which loading is refused.
	MinLoadingBattery = 25
	// LoadBatteryCost is drained from the battery on every accepted load.
	LoadBatteryCost = 15
	FullBattery     = 100
)

// allowed weight classes
const (
	WeightClassLight   WeightClass = "LIGHT"
	WeightClassMiddle  WeightClass = "MIDDLE"
	WeightClassCruiser WeightClass = "CRUISER"
	WeightClassHeavy   WeightClass = "HEAVY"
)

// allowed states
const (
	StateIdle       State = "IDLE"
	StateLoading    State = "LOADING"
	StateLoaded     State = "LOADED"
	StateDelivering State = "DELIVERING"
	StateDelivered  State = "DELIVERED"
	StateReturning  State = "RETURNING"
)

var (
	ErrInvalidSerialNumber = errors.New("invalid serial number")
	ErrInvalidWeightClass  = errors.New("invalid weight class")
	ErrInvalidState        = errors.New("invalid state")
)

type (
	WeightClass string
	State       string

	//define what is a drone within the system
	Drone struct {
		SerialNumber    string      `json:"serialNumber" bson:"_id"`
		WeightClass     WeightClass `json:"weightClass" bson:"weightClass"`
		WeightLimit     float64     `json:"weightLimit" bson:"weightLimit"`
		BatteryCapacity int         `json:"batteryCapacity" bson:"batteryCapacity"` // (percentage)
		State           State       `json:"state" bson:"state"`
		LoadedMeds      []string    `json:"loadedMeds" bson:"loadedMeds"` // medication ids, in load order
	}
)

// serial numbers that would be shadowed by the fleet listing routes
var reservedSerialNumbers = map[string]bool{
	"available":   true,
	"loaded":      true,
	"forDelivery": true,
	"delivered":   true,
	"returning":   true,
}

// weight limits per class. CRUISER carries the least despite its name.
var weightLimits = map[WeightClass]float64{
	WeightClassHeavy:   500,
	WeightClassMiddle:  400,
	WeightClassLight:   200,
	WeightClassCruiser: 100,
}

// New returns a freshly registered drone: full battery, IDLE and empty.
func New(serialNumber string, class WeightClass) (*Drone, error) {

	if !validSerialNumber(serialNumber) {
		return nil, errors.Wrapf(ErrInvalidSerialNumber, "%q must have between 1 and %d characters", serialNumber, maxSerialNumberCharacters)
	}

	if reservedSerialNumbers[serialNumber] {
		return nil, errors.Wrapf(ErrInvalidSerialNumber, "%q is reserved", serialNumber)
	}

	if !class.Valid() {
		return nil, errors.Wrapf(ErrInvalidWeightClass, "%q", class)
	}

	return &Drone{
		SerialNumber:    serialNumber,
		WeightClass:     class,
		WeightLimit:     WeightLimitFor(class),
		BatteryCapacity: FullBattery,
		State:           StateIdle,
		LoadedMeds:      make([]string, 0),
	}, nil
}

// WeightLimitFor returns the maximum payload for a weight class, or 0 for an unknown class.
func WeightLimitFor(class WeightClass) float64 {
	return weightLimits[class]
}

// ParseWeightClass accepts the short names (LIGHT), the long names (LIGHT_WEIGHT)
// and the model names (Lightweight), ignoring case.
func ParseWeightClass(s string) (WeightClass, error) {

	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.TrimSuffix(normalized, "_WEIGHT")
	normalized = strings.TrimSuffix(normalized, "WEIGHT")

	class := WeightClass(normalized)
	if !class.Valid() {
		return "", errors.Wrapf(ErrInvalidWeightClass, "%q", s)
	}

	return class, nil
}

func (c WeightClass) Valid() bool {

	switch c {
	case WeightClassLight, WeightClassMiddle, WeightClassCruiser, WeightClassHeavy:
		return true
	}

	return false
}

func ParseState(s string) (State, error) {
	state := State(strings.ToUpper(strings.TrimSpace(s)))
	if !state.Valid() {
		return "", errors.Wrapf(ErrInvalidState, "%q", s)
	}
	return state, nil
}

func (s State) Valid() bool {

	switch s {
	case StateIdle, StateLoading, StateLoaded, StateDelivering, StateDelivered, StateReturning:
		return true
	}

	return false
}

// IsAvailableForLoading reports whether the battery still allows a load.
func (d *Drone) IsAvailableForLoading() bool {
	return d.BatteryCapacity > MinLoadingBattery
}

// IsFull reports whether the drone already carries the maximum number of medications.
func (d *Drone) IsFull() bool {
	return len(d.LoadedMeds) >= MaxLoadedMeds
}

// IsAcceptableLoad reports whether weight fits on top of the already loaded weight.
func (d *Drone) IsAcceptableLoad(weight, loadedWeight float64) bool {
	return weight+loadedWeight <= d.WeightLimit
}

// Load records an accepted medication and drains the battery.
func (d *Drone) Load(medicationID string) {
	d.LoadedMeds = append(d.LoadedMeds, medicationID)
	d.State = StateLoading
	d.BatteryCapacity -= LoadBatteryCost
}

// Clone returns a deep copy, so stores never share the LoadedMeds backing array.
func (d *Drone) Clone() *Drone {
	if d == nil {
		return nil
	}

	c := *d
	c.LoadedMeds = make([]string, len(d.LoadedMeds))
	copy(c.LoadedMeds, d.LoadedMeds)

	return &c
}

func validSerialNumber(serialNumber string) bool {
	return len(serialNumber) > 0 && len(serialNumber) <= maxSerialNumberCharacters
}
