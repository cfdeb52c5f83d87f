package jsonfile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

type record struct {
	ID    string  `json:"id"`
	Name  string  `json:"nombre"`
	Value float64 `json:"valor"`
}

func TestMarshalLayout(t *testing.T) {
	c := New[record]()
	c.Put("002", record{ID: "002", Name: "B&B", Value: 1.5})
	c.Put("001", record{ID: "001", Name: "A", Value: -2})
	got, err := Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{
    "002": {
        "id": "002",
        "nombre": "B&B",
        "valor": 1.5
    },
    "001": {
        "id": "001",
        "nombre": "A",
        "valor": -2
    }
}
`
	if string(got) != want {
		t.Fatalf("unexpected layout:\n%s", got)
	}
	empty, _ := Marshal(New[record]())
	if string(empty) != "{}\n" {
		t.Fatalf("unexpected empty layout %q", empty)
	}
}

func TestRoundTripKeepsOrderAndValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "db.json")
	c := New[record]()
	for _, id := range []string{"003", "001", "010"} {
		c.Put(id, record{ID: id, Name: "n" + id, Value: 0.25})
	}
	if err := Save(path, c); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load[record](path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := slices.Collect(loaded.Keys()); !slices.Equal(got, []string{"003", "001", "010"}) {
		t.Fatalf("unexpected key order %v", got)
	}
	for k, v := range c.All() {
		lv, ok := loaded.Get(k)
		if !ok || lv != v {
			t.Fatalf("record %s mismatch: %+v vs %+v", k, lv, v)
		}
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	c, err := Load[record](path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty collection")
	}
	if _, err := Read[record](path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("read should report not exist, got %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("load must not create the file")
	}
}

func TestLoadCorruptIsParseError(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"garbage":  "not json",
		"array":    `[{"id":"001"}]`,
		"trailing": `{"001":{"id":"001"}} {}`,
		"badvalue": `{"001": "text"}`,
		"empty":    "",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := Load[record](path)
			if !errors.Is(err, ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
		})
	}
}

func TestDeleteAndCloneIndependence(t *testing.T) {
	c := New[record]()
	c.Put("001", record{ID: "001"})
	c.Put("002", record{ID: "002"})
	c.Put("003", record{ID: "003"})
	cp := c.Clone()
	if !cp.Delete("002") {
		t.Fatalf("expected delete to report presence")
	}
	if cp.Delete("002") {
		t.Fatalf("second delete should report absence")
	}
	cp.Put("004", record{ID: "004"})
	if got := slices.Collect(c.Keys()); !slices.Equal(got, []string{"001", "002", "003"}) {
		t.Fatalf("original mutated: %v", got)
	}
	if got := slices.Collect(cp.Keys()); !slices.Equal(got, []string{"001", "003", "004"}) {
		t.Fatalf("unexpected clone keys: %v", got)
	}
	cp.Put("001", record{ID: "001", Name: "updated"})
	if got := slices.Collect(cp.Keys()); got[0] != "001" {
		t.Fatalf("replace must keep position: %v", got)
	}
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	if err := WriteAtomic(path, []byte("{}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteAtomic(path, []byte("{}\n")); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "db.json" {
		t.Fatalf("unexpected dir contents %v", entries)
	}
}
