package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"dronemed/pkg/drone"
	"dronemed/pkg/medication"
	"dronemed/pkg/metrics"
)

const memoryBackend = "memory"

// Memory keeps both collections in process. Values are copied in and out,
// so callers never alias stored records.
type Memory struct {
	drones *memoryDrones
	meds   *memoryMedications
}

func NewMemory() *Memory {
	return &Memory{
		drones: &memoryDrones{items: make(map[string]*drone.Drone)},
		meds:   &memoryMedications{items: make(map[string]*medication.Medication)},
	}
}

func (m *Memory) Drones() DroneStore { return m.drones }

func (m *Memory) Medications() medication.Store { return m.meds }

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() error { return nil }

type memoryDrones struct {
	mu    sync.RWMutex
	items map[string]*drone.Drone // use SerialNumber as key
}

func (s *memoryDrones) FindByID(ctx context.Context, serialNumber string) (*drone.Drone, error) {
	defer metrics.ObserveStore(memoryBackend, "find_drone", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.items[serialNumber].Clone(), nil
}

// FindAll returns drones ordered by serial number.
func (s *memoryDrones) FindAll(ctx context.Context) ([]*drone.Drone, error) {
	defer metrics.ObserveStore(memoryBackend, "find_all_drones", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	result := make([]*drone.Drone, 0, len(s.items))
	for _, v := range s.items {
		result = append(result, v.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].SerialNumber < result[j].SerialNumber })

	return result, nil
}

func (s *memoryDrones) Save(ctx context.Context, d *drone.Drone) (*drone.Drone, error) {
	defer metrics.ObserveStore(memoryBackend, "save_drone", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.items[d.SerialNumber] = d.Clone()
	s.mu.Unlock()

	return d, nil
}

type memoryMedications struct {
	mu    sync.RWMutex
	items map[string]*medication.Medication
}

func (s *memoryMedications) FindByID(ctx context.Context, id string) (*medication.Medication, error) {
	defer metrics.ObserveStore(memoryBackend, "find_medication", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.items[id].Clone(), nil
}

// FindAll returns medications ordered by id.
func (s *memoryMedications) FindAll(ctx context.Context) ([]*medication.Medication, error) {
	defer metrics.ObserveStore(memoryBackend, "find_all_medications", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	result := make([]*medication.Medication, 0, len(s.items))
	for _, v := range s.items {
		result = append(result, v.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

func (s *memoryMedications) Save(ctx context.Context, m *medication.Medication) (*medication.Medication, error) {
	defer metrics.ObserveStore(memoryBackend, "save_medication", time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.items[m.ID] = m.Clone()
	s.mu.Unlock()

	return m, nil
}
