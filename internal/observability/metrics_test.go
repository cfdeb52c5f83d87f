package observability

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	ctx := context.Background()
	r := NewPrometheusRecorder("abc")
	r.Observe(ctx, "register_patient", true, 2*time.Millisecond)
	r.Observe(ctx, "register_patient", true, time.Millisecond)
	r.Observe(ctx, "delete_patient", false, time.Millisecond)
	r.Observe(ctx, "", true, time.Millisecond)

	if got := testutil.ToFloat64(r.operations.WithLabelValues("register_patient", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(r.operations.WithLabelValues("delete_patient", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if n := testutil.CollectAndCount(r.latency); n != 2 {
		t.Fatalf("expected 2 latency series, got %d", n)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := NewPrometheusRecorder("abc")
	r.Observe(context.Background(), "register_image", true, time.Millisecond)
	path := filepath.Join(t.TempDir(), "papila.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	body := string(b)
	if !strings.Contains(body, `papila_store_operations_total{operation="register_image",result="success",session="abc"} 1`) {
		t.Fatalf("unexpected textfile:\n%s", body)
	}
}
