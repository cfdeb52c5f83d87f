package domain

import "context"

// PatientLookup is the read-only capability the diagnosis store needs from
// the patient collection.
type PatientLookup interface {
	PatientExists(ctx context.Context, id string) (bool, error)
}

// DiagnosisLookup is the read-only capability the image store needs from the
// diagnosis collection. Missing diagnoses yield ErrNotFound.
type DiagnosisLookup interface {
	FindDiagnosis(ctx context.Context, id string) (Diagnosis, error)
}
