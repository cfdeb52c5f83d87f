package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"papila/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "imagenes"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStore_PutGetHeadListDelete(t *testing.T) { //nolint:cyclop
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "RET001OD.jpg", bytes.NewReader([]byte("retina")), core.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "RET001OD.jpg" || info.Size != 6 || info.ContentType != "image/jpeg" {
		t.Fatalf("unexpected info %+v", info)
	}
	if !strings.HasPrefix(info.URL, "file://") {
		t.Fatalf("expected file url, got %s", info.URL)
	}
	if _, err := store.Put(ctx, "RET001OD.jpg", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	h, err := store.Head(ctx, "RET001OD.jpg")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if h.ETag != info.ETag {
		t.Fatalf("head etag %s differs from put etag %s", h.ETag, info.ETag)
	}
	_, rc, err := store.Get(ctx, "RET001OD.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(b) != "retina" {
		t.Fatalf("unexpected content %q", b)
	}
	if _, err := store.Put(ctx, "RET002OS.png", bytes.NewReader([]byte("png")), core.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, err := store.List(ctx, "RET001")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "RET001OD.jpg" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, _ := store.List(ctx, "")
	if len(all) != 2 || all[1].ContentType != "image/png" {
		t.Fatalf("unexpected full list %+v", all)
	}
	ok, err := store.Delete(ctx, "RET001OD.jpg")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "RET001OD.jpg")
	if err != nil || ok {
		t.Fatalf("second delete should report absence: %v %v", ok, err)
	}
	if _, err := store.Head(ctx, "RET001OD.jpg"); !errors.Is(err, core.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestStore_WritesPlainFiles(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "RET003OD.jpg", bytes.NewReader([]byte("abc")), core.PutOptions{Metadata: map[string]string{"k": "v"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "RET003OD.jpg" {
		t.Fatalf("unexpected directory contents %v", entries)
	}
	path, _ := store.Path("RET003OD.jpg")
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "abc" {
		t.Fatalf("unexpected file content %q (%v)", data, err)
	}
}

func TestStore_ListSeesForeignFilesAndSkipsTemps(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if err := os.WriteFile(filepath.Join(store.Root(), "RET009OS.jpg"), []byte("legacy"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Root(), ".tmp-123"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	list, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "RET009OS.jpg" || list[0].Size != 6 {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestStore_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"", "  ", "/abs.jpg", "../escape.jpg", "a/../../b.jpg", ".."} {
		if _, err := store.Put(ctx, key, bytes.NewReader(nil), core.PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestStore_PresignURL(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	u, err := store.PresignURL(ctx, "RET001OD.jpg", core.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasPrefix(u, "file://") || !strings.HasSuffix(u, "/imagenes/RET001OD.jpg") {
		t.Fatalf("unexpected url %s", u)
	}
	if _, err := store.PresignURL(ctx, "RET001OD.jpg", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestNewRequiresRoot(t *testing.T) {
	if _, err := New(" "); err == nil {
		t.Fatalf("expected error for blank root")
	}
}
