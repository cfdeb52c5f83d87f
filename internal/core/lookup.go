package core

import (
	"context"
	"errors"
	"io/fs"

	"papila/internal/infra/persistence/jsonfile"
	"papila/pkg/domain"
)

// PatientFileLookup answers PatientExists by re-reading the patient file on
// every call. It sees the file as of that read and nothing newer; writers in
// other processes may race with it.
type PatientFileLookup struct {
	Path string
}

// PatientExists reports whether id is a key of the patient file. A missing
// file means no patients; an unparseable one is an error.
func (l PatientFileLookup) PatientExists(ctx context.Context, id string) (bool, error) {
	rows, err := readUpstream[domain.Patient](domain.EntityPatient, l.Path)
	if err != nil || rows == nil {
		return false, err
	}
	return rows.Has(id), nil
}

// DiagnosisFileLookup answers FindDiagnosis by re-reading the diagnosis file
// on every call.
type DiagnosisFileLookup struct {
	Path string
}

// FindDiagnosis returns diagnosis id from the file, or domain.ErrNotFound.
func (l DiagnosisFileLookup) FindDiagnosis(ctx context.Context, id string) (domain.Diagnosis, error) {
	rows, err := readUpstream[domain.Diagnosis](domain.EntityDiagnosis, l.Path)
	if err != nil {
		return domain.Diagnosis{}, err
	}
	if rows != nil {
		if d, ok := rows.Get(id); ok {
			return d, nil
		}
	}
	return domain.Diagnosis{}, domain.ErrNotFound{Entity: domain.EntityDiagnosis, ID: id}
}

// readUpstream returns nil rows and no error for a missing file.
func readUpstream[T any](entity domain.EntityType, path string) (*jsonfile.Collection[T], error) {
	rows, err := jsonfile.Read[T](path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &LoadError{Entity: entity, Path: path, Err: err}
	}
	return rows, nil
}

var (
	_ domain.PatientLookup   = PatientFileLookup{}
	_ domain.PatientLookup   = (*PatientStore)(nil)
	_ domain.DiagnosisLookup = DiagnosisFileLookup{}
	_ domain.DiagnosisLookup = (*DiagnosisStore)(nil)
)
