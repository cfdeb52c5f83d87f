// Package domain defines the persistent clinic records, value types, and the
// read-only lookup contracts the record stores use to validate references.
package domain

import (
	"fmt"
	"strings"
)

// EntityType identifies the type of record held by a store.
type EntityType string

// Supported entity type identifiers used in errors, logs, and export buckets.
const (
	// EntityPatient identifies a patient record.
	EntityPatient EntityType = "patient"
	// EntityDiagnosis identifies a refractive diagnosis record.
	EntityDiagnosis EntityType = "diagnosis"
	// EntityImage identifies an optic-disc image record.
	EntityImage EntityType = "image"
)

// EyeSide is the closed two-value enumeration used by diagnoses and images.
type EyeSide string

const (
	// EyeRight is oculus dexter.
	EyeRight EyeSide = "OD"
	// EyeLeft is oculus sinister.
	EyeLeft EyeSide = "OS"
)

// EyeSides lists every accepted eye side in display order.
func EyeSides() []EyeSide { return []EyeSide{EyeRight, EyeLeft} }

// Valid reports whether e is one of OD or OS.
func (e EyeSide) Valid() bool {
	return e == EyeRight || e == EyeLeft
}

// Label returns a human readable description of the eye side.
func (e EyeSide) Label() string {
	switch e {
	case EyeRight:
		return "right eye"
	case EyeLeft:
		return "left eye"
	default:
		return string(e)
	}
}

// ParseEyeSide normalises raw input (trim + upper case) and rejects anything
// outside {OD, OS}.
func ParseEyeSide(raw string) (EyeSide, error) {
	e := EyeSide(strings.ToUpper(strings.TrimSpace(raw)))
	if !e.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEyeSide, raw)
	}
	return e, nil
}

// Patient is a registered clinic patient.
type Patient struct {
	ID     string `json:"id"`
	Name   string `json:"nombre"`
	Age    int    `json:"edad"`
	Gender string `json:"genero"`
}

// PatientUpdate carries optional replacement fields. Nil fields keep their
// prior value.
type PatientUpdate struct {
	Name   *string
	Age    *int
	Gender *string
}

// Empty reports whether the update carries no replacement at all.
func (u PatientUpdate) Empty() bool {
	return u.Name == nil && u.Age == nil && u.Gender == nil
}

// Apply returns p with the supplied replacements applied.
func (u PatientUpdate) Apply(p Patient) Patient {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Age != nil {
		p.Age = *u.Age
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	return p
}

// Diagnosis records the refractive readings taken for one eye of a patient.
// Diagnoses are immutable once created.
type Diagnosis struct {
	ID          string  `json:"id"`
	PatientID   string  `json:"id_paciente"`
	Date        string  `json:"fecha"`
	Diopter1    float64 `json:"dioptria_1"`
	Diopter2    float64 `json:"dioptria_2"`
	Astigmatism float64 `json:"astigmatismo"`
	Eye         EyeSide `json:"tipo"`
}

// NewDiagnosis is the input for registering a diagnosis.
type NewDiagnosis struct {
	PatientID   string
	Date        string
	Diopter1    float64
	Diopter2    float64
	Astigmatism float64
	Eye         EyeSide
}

// Image is the metadata of an optic-disc photograph mirrored into the managed
// image directory. File is derived, never user supplied.
type Image struct {
	ID          string  `json:"id"`
	DiagnosisID string  `json:"id_diagnostico"`
	File        string  `json:"archivo"`
	Description string  `json:"descripcion"`
	Eye         EyeSide `json:"tipo_ojo"`
	CaptureDate string  `json:"fecha_captura"`
}

// NewImage is the input for registering an image.
type NewImage struct {
	DiagnosisID string
	SourcePath  string
	Description string
	Eye         EyeSide
	CaptureDate string
}

// ImageFileName derives the stored file name for a patient and eye side.
func ImageFileName(patientID string, eye EyeSide) string {
	return "RET" + patientID + string(eye) + ".jpg"
}
