package medication

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Service is a read-through over the medication store.
type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

func (s *Service) GetAllMedications(ctx context.Context) ([]*Medication, error) {
	meds, err := s.store.FindAll(ctx)
	if err != nil {
		s.logger.Error("[MedicationService] Failed to list medications", zap.Error(err))
		return nil, errors.Wrap(err, "could not list medications")
	}

	if meds == nil {
		meds = make([]*Medication, 0)
	}

	return meds, nil
}

// GetMedication returns ErrMedicationNotFound when id is unknown.
func (s *Service) GetMedication(ctx context.Context, id string) (*Medication, error) {
	med, err := s.store.FindByID(ctx, id)
	if err != nil {
		s.logger.Error("[MedicationService] Failed to get medication",
			zap.String("medication_id", id),
			zap.Error(err))
		return nil, errors.Wrapf(err, "could not get medication %s", id)
	}

	if med == nil {
		return nil, errors.Wrapf(ErrMedicationNotFound, "medication with %s not found", id)
	}

	return med, nil
}
