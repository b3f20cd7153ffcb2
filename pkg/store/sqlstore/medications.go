package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"dronemed/pkg/medication"
	"dronemed/pkg/metrics"
)

type medicationStore struct {
	db *DB
}

func (db *DB) Medications() medication.Store {
	return &medicationStore{db: db}
}

func (s *medicationStore) FindByID(ctx context.Context, id string) (*medication.Medication, error) {
	defer metrics.ObserveStore(s.db.driver, "find_medication", time.Now())

	var m medication.Medication
	err := s.db.QueryRowContext(ctx, s.db.Q(`SELECT id, name, weight, code, img_url FROM medications WHERE id = ?`), id).
		Scan(&m.ID, &m.Name, &m.Weight, &m.Code, &m.ImgURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get medication %s", id)
	}
	return &m, nil
}

func (s *medicationStore) FindAll(ctx context.Context) ([]*medication.Medication, error) {
	defer metrics.ObserveStore(s.db.driver, "find_all_medications", time.Now())

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, weight, code, img_url FROM medications ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "list medications")
	}
	defer rows.Close()

	result := make([]*medication.Medication, 0)
	for rows.Next() {
		var m medication.Medication
		if err := rows.Scan(&m.ID, &m.Name, &m.Weight, &m.Code, &m.ImgURL); err != nil {
			return nil, errors.Wrap(err, "scan medication")
		}
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate medications")
	}
	return result, nil
}

func (s *medicationStore) Save(ctx context.Context, m *medication.Medication) (*medication.Medication, error) {
	defer metrics.ObserveStore(s.db.driver, "save_medication", time.Now())

	_, err := s.db.ExecContext(ctx, s.db.Q(`INSERT INTO medications (id, name, weight, code, img_url) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			weight = excluded.weight,
			code = excluded.code,
			img_url = excluded.img_url`),
		m.ID, m.Name, m.Weight, m.Code, m.ImgURL)
	if err != nil {
		return nil, errors.Wrapf(err, "save medication %s", m.ID)
	}
	return m, nil
}
