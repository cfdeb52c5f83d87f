package core

import (
	"context"
	"time"
)

// Logger is the structured logging surface the stores write to. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder observes the outcome and latency of every store operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts one span per store operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation's error, if any.
type TraceSpan interface {
	End(err error)
}

// CollisionPolicy decides what happens when a new image derives a file name
// that is already stored.
type CollisionPolicy string

const (
	// CollisionReplace overwrites the stored file and logs the records that
	// shared it.
	CollisionReplace CollisionPolicy = "replace"
	// CollisionReject fails the registration with domain.ErrImageConflict.
	CollisionReject CollisionPolicy = "reject"
)

// Valid reports whether p is a known policy.
func (p CollisionPolicy) Valid() bool {
	return p == CollisionReplace || p == CollisionReject
}

// Option configures a store.
type Option func(*options)

type options struct {
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	collision CollisionPolicy
}

func defaultOptions() options {
	return options{
		logger:    noopLogger{},
		metrics:   noopMetricsRecorder{},
		tracer:    noopTracer{},
		collision: CollisionReplace,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithLogger sets the logger. A nil logger keeps the no-op default.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithCollisionPolicy sets the image collision policy. Unknown values keep
// the replace default.
func WithCollisionPolicy(p CollisionPolicy) Option {
	return func(o *options) {
		if p.Valid() {
			o.collision = p
		}
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// instrument runs fn inside a span and reports it to metrics and the log.
func instrument[T any](ctx context.Context, o *options, op string, fn func(context.Context) (T, error)) (T, error) {
	started := time.Now()
	ctx, span := o.tracer.Start(ctx, op)
	out, err := fn(ctx)
	span.End(err)
	elapsed := time.Since(started)
	o.metrics.Observe(ctx, op, err == nil, elapsed)
	if err != nil {
		o.logger.Debug("store operation failed", "op", op, "error", err, "duration", elapsed)
	} else {
		o.logger.Debug("store operation", "op", op, "duration", elapsed)
	}
	return out, err
}
