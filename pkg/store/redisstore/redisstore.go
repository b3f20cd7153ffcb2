// Package redisstore keeps drones and medications as JSON documents in Redis,
// with one index set per collection for full scans.
package redisstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"dronemed/pkg/config"
	"dronemed/pkg/drone"
	"dronemed/pkg/medication"
	"dronemed/pkg/metrics"
	"dronemed/pkg/store"
)

const (
	backendName = "redis"

	allDronesKey      = "dronemed:drones"
	allMedicationsKey = "dronemed:medications"
)

func droneKey(serialNumber string) string {
	return "dronemed:drone:" + serialNumber
}

func medicationKey(id string) string {
	return "dronemed:medication:" + id
}

type Store struct {
	client *redis.Client
}

func Open(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}

	return New(client), nil
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Drones() store.DroneStore {
	return &droneStore{client: s.client}
}

func (s *Store) Medications() medication.Store {
	return &medicationStore{client: s.client}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

// getJSON loads key into dst. It reports false when the key does not exist.
func getJSON(ctx context.Context, client *redis.Client, key string, dst any) (bool, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, dst)
}

// putJSON writes the document and registers its id in the index set in one pipeline.
func putJSON(ctx context.Context, client *redis.Client, key, indexKey, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	pipe := client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, indexKey, id)
	_, err = pipe.Exec(ctx)
	return err
}

// members returns the sorted ids of an index set.
func members(ctx context.Context, client *redis.Client, indexKey string) ([]string, error) {
	ids, err := client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

type droneStore struct {
	client *redis.Client
}

func (s *droneStore) FindByID(ctx context.Context, serialNumber string) (*drone.Drone, error) {
	defer metrics.ObserveStore(backendName, "find_drone", time.Now())

	var d drone.Drone
	ok, err := getJSON(ctx, s.client, droneKey(serialNumber), &d)
	if err != nil {
		return nil, errors.Wrapf(err, "get drone %s", serialNumber)
	}
	if !ok {
		return nil, nil
	}
	if d.LoadedMeds == nil {
		d.LoadedMeds = make([]string, 0)
	}
	return &d, nil
}

func (s *droneStore) FindAll(ctx context.Context) ([]*drone.Drone, error) {
	defer metrics.ObserveStore(backendName, "find_all_drones", time.Now())

	ids, err := members(ctx, s.client, allDronesKey)
	if err != nil {
		return nil, errors.Wrap(err, "list drones")
	}

	result := make([]*drone.Drone, 0, len(ids))
	for _, id := range ids {
		var d drone.Drone
		ok, err := getJSON(ctx, s.client, droneKey(id), &d)
		if err != nil {
			return nil, errors.Wrapf(err, "get drone %s", id)
		}
		if !ok {
			continue
		}
		if d.LoadedMeds == nil {
			d.LoadedMeds = make([]string, 0)
		}
		result = append(result, &d)
	}
	return result, nil
}

func (s *droneStore) Save(ctx context.Context, d *drone.Drone) (*drone.Drone, error) {
	defer metrics.ObserveStore(backendName, "save_drone", time.Now())

	if err := putJSON(ctx, s.client, droneKey(d.SerialNumber), allDronesKey, d.SerialNumber, d); err != nil {
		return nil, errors.Wrapf(err, "save drone %s", d.SerialNumber)
	}
	return d, nil
}

type medicationStore struct {
	client *redis.Client
}

func (s *medicationStore) FindByID(ctx context.Context, id string) (*medication.Medication, error) {
	defer metrics.ObserveStore(backendName, "find_medication", time.Now())

	var m medication.Medication
	ok, err := getJSON(ctx, s.client, medicationKey(id), &m)
	if err != nil {
		return nil, errors.Wrapf(err, "get medication %s", id)
	}
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *medicationStore) FindAll(ctx context.Context) ([]*medication.Medication, error) {
	defer metrics.ObserveStore(backendName, "find_all_medications", time.Now())

	ids, err := members(ctx, s.client, allMedicationsKey)
	if err != nil {
		return nil, errors.Wrap(err, "list medications")
	}

	result := make([]*medication.Medication, 0, len(ids))
	for _, id := range ids {
		var m medication.Medication
		ok, err := getJSON(ctx, s.client, medicationKey(id), &m)
		if err != nil {
			return nil, errors.Wrapf(err, "get medication %s", id)
		}
		if ok {
			result = append(result, &m)
		}
	}
	return result, nil
}

func (s *medicationStore) Save(ctx context.Context, m *medication.Medication) (*medication.Medication, error) {
	defer metrics.ObserveStore(backendName, "save_medication", time.Now())

	if err := putJSON(ctx, s.client, medicationKey(m.ID), allMedicationsKey, m.ID, m); err != nil {
		return nil, errors.Wrapf(err, "save medication %s", m.ID)
	}
	return m, nil
}
