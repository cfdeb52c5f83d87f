package core

import (
	"context"
	"fmt"

	"papila/internal/blob"
)

// Paths locates the three backing files.
type Paths struct {
	Patients  string
	Diagnoses string
	Images    string
}

// Clinic bundles the three record stores. The stores only see each other
// through the file-backed lookups, never through shared memory.
type Clinic struct {
	Patients  *PatientStore
	Diagnoses *DiagnosisStore
	Images    *ImageStore
}

// OpenClinic loads every store. The first load error stops construction.
func OpenClinic(ctx context.Context, paths Paths, blobs blob.Store, opts ...Option) (*Clinic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	patients, err := NewPatientStore(paths.Patients, opts...)
	if err != nil {
		return nil, err
	}
	diagnoses, err := NewDiagnosisStore(paths.Diagnoses, PatientFileLookup{Path: paths.Patients}, opts...)
	if err != nil {
		return nil, err
	}
	images, err := NewImageStore(paths.Images, DiagnosisFileLookup{Path: paths.Diagnoses}, blobs, opts...)
	if err != nil {
		return nil, err
	}
	return &Clinic{Patients: patients, Diagnoses: diagnoses, Images: images}, nil
}

// Summary is a one-line count of every collection.
func (c *Clinic) Summary() string {
	return fmt.Sprintf("%d patients, %d diagnoses, %d images", c.Patients.Len(), c.Diagnoses.Len(), c.Images.Len())
}
