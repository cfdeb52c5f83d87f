// Package export copies the clinic collections into a SQL database as one
// JSON payload per bucket. The copy is one-way: nothing here is ever read
// back into the backing files.
package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"papila/internal/core"
	"papila/pkg/domain"
)

// Driver names an export sink.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Snapshot is the full content of the three collections at one instant.
type Snapshot struct {
	Patients   []domain.Patient   `json:"patients"`
	Diagnoses  []domain.Diagnosis `json:"diagnoses"`
	Images     []domain.Image     `json:"images"`
	ExportedAt time.Time          `json:"exported_at"`
}

// Collect reads every record from clinic in id order.
func Collect(ctx context.Context, clinic *core.Clinic) Snapshot {
	return Snapshot{
		Patients:   slices.Collect(clinic.Patients.List(ctx)),
		Diagnoses:  slices.Collect(clinic.Diagnoses.List(ctx, "")),
		Images:     slices.Collect(clinic.Images.List(ctx, "")),
		ExportedAt: time.Now().UTC(),
	}
}

// Buckets lists the rows written by every sink, in write order.
var Buckets = []string{"patients", "diagnoses", "images", "meta"}

type meta struct {
	ExportedAt time.Time      `json:"exported_at"`
	Counts     map[string]int `json:"counts"`
}

func (s Snapshot) payload(bucket string) ([]byte, error) {
	switch bucket {
	case "patients":
		return json.Marshal(nonNil(s.Patients))
	case "diagnoses":
		return json.Marshal(nonNil(s.Diagnoses))
	case "images":
		return json.Marshal(nonNil(s.Images))
	case "meta":
		return json.Marshal(meta{
			ExportedAt: s.ExportedAt,
			Counts: map[string]int{
				"patients":  len(s.Patients),
				"diagnoses": len(s.Diagnoses),
				"images":    len(s.Images),
			},
		})
	}
	return nil, fmt.Errorf("unknown bucket %q", bucket)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Write stores snap into the sink selected by driver. For sqlite dsn is a
// file path; for postgres it is a connection string.
func Write(ctx context.Context, driver Driver, dsn string, snap Snapshot) error {
	switch driver {
	case DriverSQLite:
		return WriteSQLite(ctx, dsn, snap)
	case DriverPostgres:
		return WritePostgres(ctx, dsn, snap)
	default:
		return fmt.Errorf("unknown export driver %q", driver)
	}
}

// upsert writes every bucket of snap inside one transaction. insert is the
// dialect's upsert statement taking (bucket, payload).
func upsert(ctx context.Context, db *sql.DB, insert string, snap Snapshot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range Buckets {
		data, err := snap.payload(bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insert, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
