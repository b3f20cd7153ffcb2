package medication

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrMedicationNotFound = errors.New("medication not found")
	ErrInvalidMedication  = errors.New("invalid medication")
)

type (
	//define what is a medication within the system
	Medication struct {
		ID     string  `json:"id" bson:"_id"` // caller supplied, becomes the stored key
		Name   string  `json:"name" bson:"name"`
		Weight float64 `json:"weight" bson:"weight"`
		Code   string  `json:"code" bson:"code"`
		ImgURL string  `json:"img_url" bson:"img_url"`
	}

	// Store is the persisted collection of medications keyed by id.
	// FindByID returns (nil, nil) when the id is unknown.
	Store interface {
		FindByID(ctx context.Context, id string) (*Medication, error)
		FindAll(ctx context.Context) ([]*Medication, error)
		Save(ctx context.Context, m *Medication) (*Medication, error)
	}
)

// Validate checks the only two constraints a medication carries: a key and a non negative weight.
func (m *Medication) Validate() error {

	if m.ID == "" {
		return errors.Wrap(ErrInvalidMedication, "id is required")
	}

	if m.Weight < 0 {
		return errors.Wrapf(ErrInvalidMedication, "weight %v must not be negative", m.Weight)
	}

	return nil
}

func (m *Medication) Clone() *Medication {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// TotalWeight sums the weights of the given medications.
func TotalWeight(meds []*Medication) float64 {

	total := float64(0)

	for _, v := range meds {
		total += v.Weight
	}

	return total
}
