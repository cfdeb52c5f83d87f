package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"papila/internal/infra/persistence/jsonfile"
	"papila/pkg/domain"
)

func TestPatientFileLookup(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "p.json")
	l := PatientFileLookup{Path: path}
	if ok, err := l.PatientExists(ctx, "001"); ok || err != nil {
		t.Fatalf("absent file means not found: %v %v", ok, err)
	}
	if err := os.WriteFile(path, []byte(`{"001": {"id": "001", "nombre": "A", "edad": 3, "genero": "F"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ok, err := l.PatientExists(ctx, "001"); !ok || err != nil {
		t.Fatalf("expected 001 present: %v %v", ok, err)
	}
	if err := os.WriteFile(path, []byte(`[]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := l.PatientExists(ctx, "001"); !errors.Is(err, jsonfile.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestDiagnosisFileLookup(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "d.json")
	l := DiagnosisFileLookup{Path: path}
	if _, err := l.FindDiagnosis(ctx, "001"); !domain.IsNotFound(err, domain.EntityDiagnosis) {
		t.Fatalf("absent file means not found, got %v", err)
	}
	body := `{"001": {"id": "001", "id_paciente": "004", "fecha": "2025-01-01", "dioptria_1": 1, "dioptria_2": 2, "astigmatismo": 0.5, "tipo": "OS"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	d, err := l.FindDiagnosis(ctx, "001")
	if err != nil || d.PatientID != "004" || d.Eye != domain.EyeLeft {
		t.Fatalf("unexpected diagnosis %+v (%v)", d, err)
	}
	if _, err := l.FindDiagnosis(ctx, "002"); !domain.IsNotFound(err, domain.EntityDiagnosis) {
		t.Fatalf("expected not found, got %v", err)
	}
}
