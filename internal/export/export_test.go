package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"papila/internal/blob"
	"papila/internal/core"
	"papila/pkg/domain"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Patients: []domain.Patient{
			{ID: "001", Name: "Ana", Age: 30, Gender: "F"},
			{ID: "002", Name: "Luis", Age: 41, Gender: "M"},
		},
		Diagnoses: []domain.Diagnosis{
			{ID: "001", PatientID: "002", Date: "2024-01-01", Diopter1: -1.5, Eye: domain.EyeRight},
		},
		ExportedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestCollectReadsEveryStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	clinic, err := core.OpenClinic(ctx, core.Paths{
		Patients:  filepath.Join(dir, "p.json"),
		Diagnoses: filepath.Join(dir, "d.json"),
		Images:    filepath.Join(dir, "i.json"),
	}, blob.NewMemory())
	if err != nil {
		t.Fatalf("open clinic: %v", err)
	}
	for _, name := range []string{"Ana", "Luis"} {
		if _, err := clinic.Patients.Register(ctx, name, 20, "F"); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if _, err := clinic.Diagnoses.Register(ctx, domain.NewDiagnosis{PatientID: "002", Eye: domain.EyeLeft}); err != nil {
		t.Fatalf("register diagnosis: %v", err)
	}
	snap := Collect(ctx, clinic)
	if len(snap.Patients) != 2 || snap.Patients[0].Name != "Ana" {
		t.Fatalf("unexpected patients: %+v", snap.Patients)
	}
	if len(snap.Diagnoses) != 1 || len(snap.Images) != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.ExportedAt.IsZero() {
		t.Fatalf("export time not set")
	}
}

func TestWriteSQLiteUpsertsBuckets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "export.db")
	ctx := context.Background()
	snap := sampleSnapshot()
	if err := Write(ctx, DriverSQLite, path, snap); err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	snap.Patients = snap.Patients[:1]
	if err := Write(ctx, DriverSQLite, path, snap); err != nil {
		t.Fatalf("second export: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != len(Buckets) {
		t.Fatalf("expected %d buckets, got %d", len(Buckets), count)
	}
	var payload []byte
	if err := db.QueryRow(`SELECT payload FROM state WHERE bucket = ?`, "patients").Scan(&payload); err != nil {
		t.Fatalf("select patients: %v", err)
	}
	var patients []domain.Patient
	if err := json.Unmarshal(payload, &patients); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(patients) != 1 || patients[0].Name != "Ana" {
		t.Fatalf("expected overwritten payload, got %+v", patients)
	}
	if err := db.QueryRow(`SELECT payload FROM state WHERE bucket = ?`, "images").Scan(&payload); err != nil {
		t.Fatalf("select images: %v", err)
	}
	if string(payload) != "[]" {
		t.Fatalf("empty collection should export as [], got %s", payload)
	}
}

func TestWritePostgresUsesStateTable(t *testing.T) {
	db, conn := newStubDB()
	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dsn
		return db, nil
	})
	t.Cleanup(restore)

	if err := Write(context.Background(), DriverPostgres, "", sampleSnapshot()); err != nil {
		t.Fatalf("export: %v", err)
	}
	if gotDriver != "pgx" || gotDSN != DefaultPostgresDSN {
		t.Fatalf("unexpected open(%q, %q)", gotDriver, gotDSN)
	}
	if !strings.Contains(conn.execs[0], "JSONB") {
		t.Fatalf("expected state table ddl first, got %q", conn.execs[0])
	}
	if !conn.committed {
		t.Fatalf("transaction not committed")
	}
	var m struct {
		Counts map[string]int `json:"counts"`
	}
	if err := json.Unmarshal(conn.state["meta"], &m); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if m.Counts["patients"] != 2 || m.Counts["diagnoses"] != 1 || m.Counts["images"] != 0 {
		t.Fatalf("unexpected counts: %v", m.Counts)
	}
}

func TestWritePostgresFailures(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*stubConn)
		want  string
	}{
		{"ping", func(c *stubConn) { c.failPing = true }, "ping postgres"},
		{"begin", func(c *stubConn) { c.failBegin = true }, "begin tx"},
		{"upsert", func(c *stubConn) { c.failBucket = "diagnoses" }, "upsert diagnoses"},
		{"commit", func(c *stubConn) { c.failCommit = true }, "commit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, conn := newStubDB()
			tc.setup(conn)
			restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
			defer restore()
			err := WritePostgres(context.Background(), "postgres://stub", sampleSnapshot())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestWritePostgresOpenError(t *testing.T) {
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("boom") })
	defer restore()
	if err := WritePostgres(context.Background(), "x", Snapshot{}); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestWriteUnknownDriver(t *testing.T) {
	if err := Write(context.Background(), "mysql", "", Snapshot{}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
