// Package fleet implements the drone lifecycle: registration, load admission
// and the state transitions of a delivery round trip.
package fleet

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dronemed/pkg/drone"
	"dronemed/pkg/events"
	"dronemed/pkg/medication"
	"dronemed/pkg/metrics"
	"dronemed/pkg/store"
)

// Emitter receives an event after every persisted drone mutation.
type Emitter interface {
	Emit(ctx context.Context, evt events.Event)
}

type RegisterRequest struct {
	SerialNumber string `json:"serialNumber"`
	WeightClass  string `json:"weightClass"`
}

type Service struct {
	drones  store.DroneStore
	meds    medication.Store
	emitter Emitter
	locks   *serialLocks
	logger  *zap.Logger
}

func NewService(drones store.DroneStore, meds medication.Store, emitter Emitter, logger *zap.Logger) *Service {
	if emitter == nil {
		emitter = events.NewEmitter(events.Noop{}, logger)
	}
	return &Service{
		drones:  drones,
		meds:    meds,
		emitter: emitter,
		locks:   newSerialLocks(),
		logger:  logger,
	}
}

// RegisterDrone stores a new IDLE drone with a full battery. An existing drone
// with the same serial number is overwritten.
func (s *Service) RegisterDrone(ctx context.Context, req RegisterRequest) (*drone.Drone, error) {
	class, err := drone.ParseWeightClass(req.WeightClass)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidDrone, err.Error())
	}

	d, err := drone.New(req.SerialNumber, class)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidDrone, err.Error())
	}

	unlock := s.locks.lock(d.SerialNumber)
	defer unlock()

	if _, err := s.drones.Save(ctx, d); err != nil {
		s.logger.Error("[DroneService] Failed to register drone",
			zap.String("serial_number", d.SerialNumber),
			zap.Error(err))
		return nil, errors.Wrapf(err, "could not register drone %s", d.SerialNumber)
	}

	metrics.DronesRegistered.Inc()
	s.logger.Info("[DroneService] Drone registered",
		zap.String("serial_number", d.SerialNumber),
		zap.String("weight_class", string(d.WeightClass)),
		zap.Float64("weight_limit", d.WeightLimit))
	s.emit(ctx, events.TypeRegistered, d, "", "")

	return d, nil
}

// GetDroneByID returns ErrDroneNotFound when the serial number is unknown.
func (s *Service) GetDroneByID(ctx context.Context, serialNumber string) (*drone.Drone, error) {
	d, err := s.drones.FindByID(ctx, serialNumber)
	if err != nil {
		return nil, errors.Wrapf(err, "could not get drone %s", serialNumber)
	}
	if d == nil {
		return nil, errors.Wrapf(ErrDroneNotFound, "drone with %s doesn't exist", serialNumber)
	}
	return d, nil
}

// LoadDrone runs the admission check for med and, when it passes, stores the
// medication and assigns it to the drone.
//
// Rejections come back as a Result with a nil error. Count and weight rejections
// still move the drone to LOADED. A loaded medication id that no longer resolves
// yields MEDICATION_NOT_FOUND together with an error wrapping
// medication.ErrMedicationNotFound, since the drone record is inconsistent.
// An invalid med is reported only once the drone is known to exist.
func (s *Service) LoadDrone(ctx context.Context, serialNumber string, med medication.Medication) (Result, error) {
	unlock := s.locks.lock(serialNumber)
	defer unlock()

	res, err := s.loadDrone(ctx, serialNumber, &med)
	if res.Code != "" {
		metrics.LoadOutcomes.WithLabelValues(string(res.Code)).Inc()
	}
	return res, err
}

func (s *Service) loadDrone(ctx context.Context, serialNumber string, med *medication.Medication) (Result, error) {
	d, err := s.drones.FindByID(ctx, serialNumber)
	if err != nil {
		return Result{}, errors.Wrapf(err, "could not get drone %s", serialNumber)
	}
	if d == nil {
		return result(CodeDroneNotFound, "Drone with %s doesn't exist!", serialNumber), nil
	}

	if err := med.Validate(); err != nil {
		return Result{}, err
	}

	if !d.IsAvailableForLoading() {
		return result(CodeBatteryTooLow, "Battery level of drone %s is %d%%, loading requires more than %d%%",
			serialNumber, d.BatteryCapacity, drone.MinLoadingBattery), nil
	}

	loadedWeight, missingID, err := s.totalLoadedWeight(ctx, d)
	if err != nil {
		return Result{}, err
	}
	if missingID != "" {
		s.logger.Error("[DroneService] Loaded medication does not resolve",
			zap.String("serial_number", serialNumber),
			zap.String("medication_id", missingID))
		return result(CodeMedicationNotFound, "Medication with %s not found!", missingID),
			errors.Wrapf(medication.ErrMedicationNotFound, "drone %s references medication %s", serialNumber, missingID)
	}

	if d.IsFull() {
		return s.rejectAsLoaded(ctx, d, med, result(CodeMaxCountReached,
			"Drone %s already carries %d medications", serialNumber, drone.MaxLoadedMeds))
	}

	if !d.IsAcceptableLoad(med.Weight, loadedWeight) {
		return s.rejectAsLoaded(ctx, d, med, result(CodeOverweight,
			"Drone weight Limit exceeded: %.2f loaded + %.2f requested > %.2f limit",
			loadedWeight, med.Weight, d.WeightLimit))
	}

	if _, err := s.meds.Save(ctx, med); err != nil {
		return Result{}, errors.Wrapf(err, "could not save medication %s", med.ID)
	}

	d.Load(med.ID)

	if _, err := s.drones.Save(ctx, d); err != nil {
		return Result{}, errors.Wrapf(err, "could not save drone %s", serialNumber)
	}

	s.logger.Info("[DroneService] Medication loaded",
		zap.String("serial_number", serialNumber),
		zap.String("medication_id", med.ID),
		zap.Float64("loaded_weight", loadedWeight+med.Weight),
		zap.Int("battery", d.BatteryCapacity))
	s.emit(ctx, events.TypeLoaded, d, CodeSuccess, med.ID)

	return result(CodeSuccess, "Medication %s loaded on drone %s", med.ID, serialNumber), nil
}

// rejectAsLoaded marks the drone LOADED, persists it and returns res.
func (s *Service) rejectAsLoaded(ctx context.Context, d *drone.Drone, med *medication.Medication, res Result) (Result, error) {
	d.State = drone.StateLoaded

	if _, err := s.drones.Save(ctx, d); err != nil {
		return Result{}, errors.Wrapf(err, "could not save drone %s", d.SerialNumber)
	}

	s.logger.Info("[DroneService] Load rejected",
		zap.String("serial_number", d.SerialNumber),
		zap.String("medication_id", med.ID),
		zap.String("code", string(res.Code)))
	s.emit(ctx, events.TypeLoadRejected, d, res.Code, med.ID)

	return res, nil
}

// totalLoadedWeight sums the weights of the drone's medications. missingID is
// the first id that does not resolve, in which case the weight is meaningless.
func (s *Service) totalLoadedWeight(ctx context.Context, d *drone.Drone) (total float64, missingID string, err error) {
	loaded := make([]*medication.Medication, 0, len(d.LoadedMeds))
	for _, id := range d.LoadedMeds {
		med, err := s.meds.FindByID(ctx, id)
		if err != nil {
			return 0, "", errors.Wrapf(err, "could not get medication %s", id)
		}
		if med == nil {
			return 0, id, nil
		}
		loaded = append(loaded, med)
	}
	return medication.TotalWeight(loaded), "", nil
}

// GetLoadedMeds resolves the drone's medications, skipping ids that no longer
// resolve. An unknown drone yields an empty list.
func (s *Service) GetLoadedMeds(ctx context.Context, serialNumber string) ([]*medication.Medication, error) {
	meds := make([]*medication.Medication, 0)

	d, err := s.drones.FindByID(ctx, serialNumber)
	if err != nil {
		return nil, errors.Wrapf(err, "could not get drone %s", serialNumber)
	}
	if d == nil {
		return meds, nil
	}

	for _, id := range d.LoadedMeds {
		med, err := s.meds.FindByID(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "could not get medication %s", id)
		}
		if med == nil {
			s.logger.Warn("[DroneService] Skipping unresolved medication",
				zap.String("serial_number", serialNumber),
				zap.String("medication_id", id))
			continue
		}
		meds = append(meds, med)
	}

	return meds, nil
}

func (s *Service) GetAllDrones(ctx context.Context) ([]*drone.Drone, error) {
	all, err := s.drones.FindAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not list drones")
	}
	if all == nil {
		all = make([]*drone.Drone, 0)
	}
	return all, nil
}

// GetDronesByState scans every drone and keeps those in state.
func (s *Service) GetDronesByState(ctx context.Context, state drone.State) ([]*drone.Drone, error) {
	all, err := s.GetAllDrones(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*drone.Drone, 0)
	for _, d := range all {
		if d.State == state {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

func (s *Service) GetIdleDrones(ctx context.Context) ([]*drone.Drone, error) {
	return s.GetDronesByState(ctx, drone.StateIdle)
}

func (s *Service) GetLoadedDrones(ctx context.Context) ([]*drone.Drone, error) {
	return s.GetDronesByState(ctx, drone.StateLoaded)
}

func (s *Service) GetDronesMarkedForDelivery(ctx context.Context) ([]*drone.Drone, error) {
	return s.GetDronesByState(ctx, drone.StateDelivering)
}

func (s *Service) GetDronesMarkedAsDelivered(ctx context.Context) ([]*drone.Drone, error) {
	return s.GetDronesByState(ctx, drone.StateDelivered)
}

func (s *Service) GetReturningDrones(ctx context.Context) ([]*drone.Drone, error) {
	return s.GetDronesByState(ctx, drone.StateReturning)
}

// GetBatteryLevel returns 0 for an unknown drone, same as for an empty battery.
func (s *Service) GetBatteryLevel(ctx context.Context, serialNumber string) (int, error) {
	d, err := s.drones.FindByID(ctx, serialNumber)
	if err != nil {
		return 0, errors.Wrapf(err, "could not get drone %s", serialNumber)
	}
	if d == nil {
		return 0, nil
	}
	return d.BatteryCapacity, nil
}

func (s *Service) SendDroneForDelivery(ctx context.Context, serialNumber string) error {
	return s.transition(ctx, serialNumber, drone.StateDelivering, false)
}

func (s *Service) DeliverDrone(ctx context.Context, serialNumber string) error {
	return s.transition(ctx, serialNumber, drone.StateDelivered, false)
}

// ReturnDrone also unloads the drone.
func (s *Service) ReturnDrone(ctx context.Context, serialNumber string) error {
	return s.transition(ctx, serialNumber, drone.StateReturning, true)
}

// MarkIdle leaves the loaded medications untouched.
func (s *Service) MarkIdle(ctx context.Context, serialNumber string) error {
	return s.transition(ctx, serialNumber, drone.StateIdle, false)
}

// transition sets the drone state, optionally clearing its medications.
// An unknown serial number is silently ignored.
func (s *Service) transition(ctx context.Context, serialNumber string, state drone.State, unload bool) error {
	unlock := s.locks.lock(serialNumber)
	defer unlock()

	d, err := s.drones.FindByID(ctx, serialNumber)
	if err != nil {
		return errors.Wrapf(err, "could not get drone %s", serialNumber)
	}
	if d == nil {
		s.logger.Debug("[DroneService] Ignoring transition of unknown drone",
			zap.String("serial_number", serialNumber),
			zap.String("state", string(state)))
		return nil
	}

	from := d.State
	d.State = state
	if unload {
		d.LoadedMeds = make([]string, 0)
	}

	if _, err := s.drones.Save(ctx, d); err != nil {
		return errors.Wrapf(err, "could not save drone %s", serialNumber)
	}

	metrics.StateTransitions.WithLabelValues(string(state)).Inc()
	s.logger.Info("[DroneService] Drone state changed",
		zap.String("serial_number", serialNumber),
		zap.String("from", string(from)),
		zap.String("to", string(state)))
	s.emit(ctx, events.TypeStateChanged, d, "", "")

	return nil
}

func (s *Service) emit(ctx context.Context, t events.Type, d *drone.Drone, code Code, medicationID string) {
	evt := events.New(t, d.SerialNumber)
	evt.State = string(d.State)
	evt.BatteryCapacity = d.BatteryCapacity
	evt.Code = string(code)
	evt.MedicationID = medicationID
	s.emitter.Emit(ctx, evt)
}
