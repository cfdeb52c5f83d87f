package core

import (
	"context"
	"errors"
	"iter"

	"papila/pkg/domain"
)

// DiagnosisStore owns the diagnosis collection. Patients are checked through
// a lookup at creation time only.
type DiagnosisStore struct {
	table    *table[domain.Diagnosis]
	patients domain.PatientLookup
	opts     options
}

// NewDiagnosisStore loads the diagnoses saved at path.
func NewDiagnosisStore(path string, patients domain.PatientLookup, opts ...Option) (*DiagnosisStore, error) {
	if patients == nil {
		return nil, errors.New("diagnosis store requires a patient lookup")
	}
	t, err := openTable[domain.Diagnosis](domain.EntityDiagnosis, path)
	if err != nil {
		return nil, err
	}
	s := &DiagnosisStore{table: t, patients: patients, opts: applyOptions(opts)}
	s.opts.logger.Debug("diagnosis store loaded", "path", path, "records", t.len())
	return s, nil
}

// Path returns the backing file.
func (s *DiagnosisStore) Path() string { return s.table.path }

// Len returns the number of diagnoses.
func (s *DiagnosisStore) Len() int { return s.table.len() }

// Register validates the eye side, then the patient, and stores the diagnosis
// under the next free id.
func (s *DiagnosisStore) Register(ctx context.Context, in domain.NewDiagnosis) (domain.Diagnosis, error) {
	return instrument(ctx, &s.opts, "register_diagnosis", func(ctx context.Context) (domain.Diagnosis, error) {
		if !in.Eye.Valid() {
			return domain.Diagnosis{}, domain.ErrInvalidEyeSide
		}
		ok, err := s.patients.PatientExists(ctx, in.PatientID)
		if err != nil {
			return domain.Diagnosis{}, err
		}
		if !ok {
			return domain.Diagnosis{}, domain.ErrNotFound{Entity: domain.EntityPatient, ID: in.PatientID}
		}
		d, err := s.table.insert(func(id string) (domain.Diagnosis, error) {
			return domain.Diagnosis{
				ID:          id,
				PatientID:   in.PatientID,
				Date:        in.Date,
				Diopter1:    in.Diopter1,
				Diopter2:    in.Diopter2,
				Astigmatism: in.Astigmatism,
				Eye:         in.Eye,
			}, nil
		})
		if err != nil {
			return domain.Diagnosis{}, err
		}
		s.opts.logger.Info("diagnosis registered", "id", d.ID, "patient", d.PatientID, "eye", d.Eye)
		return d, nil
	})
}

// Delete removes diagnosis id. Images referencing it are left in place.
func (s *DiagnosisStore) Delete(ctx context.Context, id string) error {
	_, err := instrument(ctx, &s.opts, "delete_diagnosis", func(context.Context) (domain.Diagnosis, error) {
		d, err := s.table.remove(id)
		if err == nil {
			s.opts.logger.Info("diagnosis deleted", "id", id)
		}
		return d, err
	})
	return err
}

// Get returns diagnosis id or domain.ErrNotFound.
func (s *DiagnosisStore) Get(ctx context.Context, id string) (domain.Diagnosis, error) {
	return s.table.get(id)
}

// FindDiagnosis implements domain.DiagnosisLookup against the loaded collection.
func (s *DiagnosisStore) FindDiagnosis(ctx context.Context, id string) (domain.Diagnosis, error) {
	return s.table.get(id)
}

// List yields the diagnoses of patientID, or all of them when patientID is
// empty.
func (s *DiagnosisStore) List(ctx context.Context, patientID string) iter.Seq[domain.Diagnosis] {
	if patientID == "" {
		return s.table.scan(nil)
	}
	return s.table.scan(func(d domain.Diagnosis) bool { return d.PatientID == patientID })
}
