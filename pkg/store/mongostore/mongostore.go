// Package mongostore keeps drones and medications as MongoDB documents,
// one collection each, keyed by _id.
package mongostore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"dronemed/pkg/config"
	"dronemed/pkg/drone"
	"dronemed/pkg/medication"
	"dronemed/pkg/metrics"
	"dronemed/pkg/store"
)

const (
	backendName           = "mongo"
	dronesCollection      = "drones"
	medicationsCollection = "medications"
)

var sortByID = options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func Open(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "mongo ping")
	}

	return &Store{client: client, db: client.Database(cfg.Database)}, nil
}

func (s *Store) Drones() store.DroneStore {
	return &droneStore{coll: s.db.Collection(dronesCollection)}
}

func (s *Store) Medications() medication.Store {
	return &medicationStore{coll: s.db.Collection(medicationsCollection)}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type droneStore struct {
	coll *mongo.Collection
}

func (s *droneStore) FindByID(ctx context.Context, serialNumber string) (*drone.Drone, error) {
	defer metrics.ObserveStore(backendName, "find_drone", time.Now())

	var d drone.Drone
	err := s.coll.FindOne(ctx, bson.M{"_id": serialNumber}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get drone %s", serialNumber)
	}
	if d.LoadedMeds == nil {
		d.LoadedMeds = make([]string, 0)
	}
	return &d, nil
}

func (s *droneStore) FindAll(ctx context.Context) ([]*drone.Drone, error) {
	defer metrics.ObserveStore(backendName, "find_all_drones", time.Now())

	cursor, err := s.coll.Find(ctx, bson.M{}, sortByID)
	if err != nil {
		return nil, errors.Wrap(err, "list drones")
	}

	result := make([]*drone.Drone, 0)
	if err := cursor.All(ctx, &result); err != nil {
		return nil, errors.Wrap(err, "decode drones")
	}
	for _, d := range result {
		if d.LoadedMeds == nil {
			d.LoadedMeds = make([]string, 0)
		}
	}
	return result, nil
}

func (s *droneStore) Save(ctx context.Context, d *drone.Drone) (*drone.Drone, error) {
	defer metrics.ObserveStore(backendName, "save_drone", time.Now())

	doc := d.Clone()
	if doc.LoadedMeds == nil {
		doc.LoadedMeds = make([]string, 0)
	}

	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": d.SerialNumber}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, errors.Wrapf(err, "save drone %s", d.SerialNumber)
	}
	return d, nil
}

type medicationStore struct {
	coll *mongo.Collection
}

func (s *medicationStore) FindByID(ctx context.Context, id string) (*medication.Medication, error) {
	defer metrics.ObserveStore(backendName, "find_medication", time.Now())

	var m medication.Medication
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get medication %s", id)
	}
	return &m, nil
}

func (s *medicationStore) FindAll(ctx context.Context) ([]*medication.Medication, error) {
	defer metrics.ObserveStore(backendName, "find_all_medications", time.Now())

	cursor, err := s.coll.Find(ctx, bson.M{}, sortByID)
	if err != nil {
		return nil, errors.Wrap(err, "list medications")
	}

	result := make([]*medication.Medication, 0)
	if err := cursor.All(ctx, &result); err != nil {
		return nil, errors.Wrap(err, "decode medications")
	}
	return result, nil
}

func (s *medicationStore) Save(ctx context.Context, m *medication.Medication) (*medication.Medication, error) {
	defer metrics.ObserveStore(backendName, "save_medication", time.Now())

	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": m.ID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, errors.Wrapf(err, "save medication %s", m.ID)
	}
	return m, nil
}
