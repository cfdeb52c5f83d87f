package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseEyeSide(t *testing.T) {
	for _, raw := range []string{"OD", "od", " Os "} {
		if _, err := ParseEyeSide(raw); err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
	}
	for _, raw := range []string{"", "OU", "right", "O D"} {
		_, err := ParseEyeSide(raw)
		if !errors.Is(err, ErrInvalidEyeSide) {
			t.Fatalf("expected ErrInvalidEyeSide for %q, got %v", raw, err)
		}
	}
	if e, _ := ParseEyeSide("os"); e != EyeLeft {
		t.Fatalf("expected OS, got %s", e)
	}
}

func TestPatientUpdateApply(t *testing.T) {
	p := Patient{ID: "001", Name: "Ana", Age: 40, Gender: "F"}
	if !(PatientUpdate{}).Empty() {
		t.Fatalf("zero update should be empty")
	}
	if got := (PatientUpdate{}).Apply(p); got != p {
		t.Fatalf("empty update changed patient: %+v", got)
	}
	age := 0
	name := "Ana María"
	got := PatientUpdate{Name: &name, Age: &age}.Apply(p)
	if got.Name != name || got.Age != 0 || got.Gender != "F" || got.ID != "001" {
		t.Fatalf("unexpected patient %+v", got)
	}
}

func TestImageFileName(t *testing.T) {
	if got := ImageFileName("002", EyeRight); got != "RET002OD.jpg" {
		t.Fatalf("unexpected file name %s", got)
	}
}

func TestIsNotFound(t *testing.T) {
	err := fmt.Errorf("register: %w", ErrNotFound{Entity: EntityPatient, ID: "009"})
	if !IsNotFound(err, EntityPatient) || !IsNotFound(err, "") {
		t.Fatalf("expected not found match")
	}
	if IsNotFound(err, EntityDiagnosis) {
		t.Fatalf("entity mismatch should not match")
	}
	if err.Error() != "register: patient 009 not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
