package core

import (
	"context"
	"iter"

	"papila/pkg/domain"
)

// PatientStore owns the patient collection and its backing file.
type PatientStore struct {
	table *table[domain.Patient]
	opts  options
}

// NewPatientStore loads the patients saved at path. A missing file starts an
// empty collection; an unreadable one fails with a *LoadError.
func NewPatientStore(path string, opts ...Option) (*PatientStore, error) {
	t, err := openTable[domain.Patient](domain.EntityPatient, path)
	if err != nil {
		return nil, err
	}
	s := &PatientStore{table: t, opts: applyOptions(opts)}
	s.opts.logger.Debug("patient store loaded", "path", path, "records", t.len())
	return s, nil
}

// Path returns the backing file.
func (s *PatientStore) Path() string { return s.table.path }

// Len returns the number of patients.
func (s *PatientStore) Len() int { return s.table.len() }

// Register creates a patient under the next free id.
func (s *PatientStore) Register(ctx context.Context, name string, age int, gender string) (domain.Patient, error) {
	return instrument(ctx, &s.opts, "register_patient", func(context.Context) (domain.Patient, error) {
		if age < 0 {
			return domain.Patient{}, domain.ErrInvalidAge
		}
		p, err := s.table.insert(func(id string) (domain.Patient, error) {
			return domain.Patient{ID: id, Name: name, Age: age, Gender: gender}, nil
		})
		if err != nil {
			return domain.Patient{}, err
		}
		s.opts.logger.Info("patient registered", "id", p.ID)
		return p, nil
	})
}

// Update replaces the supplied fields of patient id. An empty update only
// checks that the patient exists.
func (s *PatientStore) Update(ctx context.Context, id string, upd domain.PatientUpdate) (domain.Patient, error) {
	return instrument(ctx, &s.opts, "update_patient", func(context.Context) (domain.Patient, error) {
		if upd.Age != nil && *upd.Age < 0 {
			return domain.Patient{}, domain.ErrInvalidAge
		}
		if upd.Empty() {
			return s.table.get(id)
		}
		p, err := s.table.replace(id, func(cur domain.Patient) (domain.Patient, error) {
			return upd.Apply(cur), nil
		})
		if err != nil {
			return domain.Patient{}, err
		}
		s.opts.logger.Info("patient updated", "id", id)
		return p, nil
	})
}

// Delete removes patient id. Diagnoses referencing it are left in place.
func (s *PatientStore) Delete(ctx context.Context, id string) error {
	_, err := instrument(ctx, &s.opts, "delete_patient", func(context.Context) (domain.Patient, error) {
		p, err := s.table.remove(id)
		if err == nil {
			s.opts.logger.Info("patient deleted", "id", id)
		}
		return p, err
	})
	return err
}

// Get returns patient id or domain.ErrNotFound.
func (s *PatientStore) Get(ctx context.Context, id string) (domain.Patient, error) {
	return s.table.get(id)
}

// List yields every patient in insertion order.
func (s *PatientStore) List(ctx context.Context) iter.Seq[domain.Patient] {
	return s.table.scan(nil)
}

// PatientExists implements domain.PatientLookup against the loaded collection.
func (s *PatientStore) PatientExists(ctx context.Context, id string) (bool, error) {
	_, err := s.table.get(id)
	if domain.IsNotFound(err, domain.EntityPatient) {
		return false, nil
	}
	return err == nil, err
}
