package core

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"papila/internal/blob"
)

type captureLogger struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureLogger) record(level, msg string, args []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, level+":"+msg+" "+fmt.Sprint(args...))
}

func (c *captureLogger) Debug(msg string, args ...any) { c.record("d", msg, args) }
func (c *captureLogger) Info(msg string, args ...any)  { c.record("i", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.record("w", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.record("e", msg, args) }

func (c *captureLogger) has(prefix string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.ContainsFunc(c.calls, func(s string) bool { return strings.HasPrefix(s, prefix) })
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	return slices.Contains(c.calls, metricsCall{op: op, success: success})
}

type testEnv struct {
	dir    string
	paths  Paths
	blobs  blob.Store
	clinic *Clinic
	log    *captureLogger
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir: dir,
		paths: Paths{
			Patients:  filepath.Join(dir, "data", "db_pacientes.json"),
			Diagnoses: filepath.Join(dir, "data", "db_diagnostico.json"),
			Images:    filepath.Join(dir, "data", "db_imagen.json"),
		},
		log: &captureLogger{},
	}
	var err error
	env.blobs, err = blob.NewFilesystem(filepath.Join(dir, "imagenes"))
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	env.clinic, err = OpenClinic(context.Background(), env.paths, env.blobs, append([]Option{WithLogger(env.log)}, opts...)...)
	if err != nil {
		t.Fatalf("open clinic: %v", err)
	}
	return env
}

func (e *testEnv) source(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, "src", name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func ids[T any](seq iter.Seq[T], id func(T) string) []string {
	var out []string
	for v := range seq {
		out = append(out, id(v))
	}
	return out
}
