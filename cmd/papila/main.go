// Command papila is the interactive record keeper for patients, refractive
// diagnoses and optic-disc images.
//
// Usage:
//
//	papila [flags]                 interactive menus
//	papila [flags] export [flags]  copy the collections to sqlite or postgres
//	papila [flags] config          print the effective configuration
//	papila version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"

	"papila/internal/blob"
	"papila/internal/config"
	"papila/internal/console"
	"papila/internal/core"
	"papila/internal/export"
	"papila/internal/observability"
)

// version is set at build time via -ldflags
var version = "dev"

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

// flagValues holds command-line overrides. Only flags the operator actually
// set are applied on top of the loaded configuration.
type flagValues struct {
	configFile string
	envFile    string
	patients   string
	diagnoses  string
	images     string
	imageDir   string
	driver     string
	collision  string
	logLevel   string
	logFormat  string
	logFile    string
	metrics    string
	trace      string
	accessible bool
}

func newFlagSet(stderr io.Writer, v *flagValues) *flag.FlagSet {
	fs := flag.NewFlagSet("papila", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&v.configFile, "config", "", "YAML configuration file")
	fs.StringVar(&v.envFile, "env-file", ".env", "dotenv file with PAPILA_* variables (skipped if missing)")
	fs.StringVar(&v.patients, "patients", "", "patients backing file")
	fs.StringVar(&v.diagnoses, "diagnoses", "", "diagnoses backing file")
	fs.StringVar(&v.images, "images", "", "images backing file")
	fs.StringVar(&v.imageDir, "image-dir", "", "managed image directory (fs driver)")
	fs.StringVar(&v.driver, "blob-driver", "", "image storage driver: fs, s3 or memory")
	fs.StringVar(&v.collision, "collision", "", "image file collision policy: replace or reject")
	fs.StringVar(&v.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&v.logFormat, "log-format", "", "log format: text or json")
	fs.StringVar(&v.logFile, "log-file", "", "append logs to this file instead of stderr")
	fs.StringVar(&v.metrics, "metrics-file", "", "write prometheus metrics to this textfile on exit")
	fs.StringVar(&v.trace, "trace-file", "", "append one JSON line per store operation to this file")
	fs.BoolVar(&v.accessible, "accessible", false, "plain line-based prompts")
	return fs
}

func (v flagValues) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "patients":
			cfg.Data.Patients = v.patients
		case "diagnoses":
			cfg.Data.Diagnoses = v.diagnoses
		case "images":
			cfg.Data.Images = v.images
		case "image-dir":
			cfg.Blob.Dir = v.imageDir
		case "blob-driver":
			cfg.Blob.Driver = blob.Driver(v.driver)
		case "collision":
			cfg.Collision = core.CollisionPolicy(v.collision)
		case "log-level":
			cfg.Log.Level = v.logLevel
		case "log-format":
			cfg.Log.Format = v.logFormat
		case "log-file":
			cfg.Log.File = v.logFile
		case "metrics-file":
			cfg.MetricsFile = v.metrics
		case "trace-file":
			cfg.TraceFile = v.trace
		case "accessible":
			cfg.Accessible = v.accessible
		}
	})
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var v flagValues
	fs := newFlagSet(stderr, &v)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := fs.Args()
	if len(rest) > 0 && rest[0] == "version" {
		fmt.Fprintf(stdout, "papila %s\n", version)
		return 0
	}

	cfg, err := loadConfig(fs, v)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	cmd := ""
	if len(rest) > 0 {
		cmd = rest[0]
	}
	switch cmd {
	case "config":
		out, err := config.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		_, _ = stdout.Write(out)
		return 0
	case "", "export":
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n", cmd)
		return 2
	}

	rt, err := openApp(ctx, cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.close()

	if cmd == "export" {
		return runExport(ctx, rt, rest[1:], stdout, stderr)
	}
	prompt := console.FormPrompter{Accessible: cfg.Accessible, In: stdin, Out: stdout}
	if err := console.New(rt.clinic, prompt, stdout).Run(ctx); err != nil {
		rt.logger.Error("session failed", "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig(fs *flag.FlagSet, v flagValues) (config.Config, error) {
	cfg, err := config.Load(config.Options{File: v.configFile, EnvFiles: []string{v.envFile}})
	if err != nil {
		return config.Config{}, err
	}
	v.apply(fs, &cfg)
	return cfg, cfg.Validate()
}

// app owns everything opened for one session.
type app struct {
	session string
	logger  *slog.Logger
	metrics *observability.PrometheusRecorder
	cfg     config.Config
	clinic  *core.Clinic
	closers []io.Closer
}

func openApp(ctx context.Context, cfg config.Config, stderr io.Writer) (_ *app, err error) {
	rt := &app{session: uuid.NewString(), cfg: cfg}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()
	logOut := stderr
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		rt.closers = append(rt.closers, f)
		logOut = f
	}
	rt.logger = newLogger(cfg.Log, logOut).With("session", rt.session)

	opts := []core.Option{
		core.WithLogger(rt.logger),
		core.WithCollisionPolicy(cfg.Collision),
	}
	if cfg.MetricsFile != "" {
		rt.metrics = observability.NewPrometheusRecorder(rt.session)
		opts = append(opts, core.WithMetricsRecorder(rt.metrics))
	}
	if cfg.TraceFile != "" {
		f, err := os.OpenFile(cfg.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		rt.closers = append(rt.closers, f)
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f, rt.session)))
	}

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open image storage: %w", err)
	}
	rt.clinic, err = core.OpenClinic(ctx, cfg.Data.Paths(), blobs, opts...)
	if err != nil {
		return nil, err
	}
	rt.logger.Info("clinic opened", "summary", rt.clinic.Summary(), "blob_driver", blobs.Driver())
	return rt, nil
}

func (rt *app) close() {
	if rt.metrics != nil {
		if err := rt.metrics.WriteTextfile(rt.cfg.MetricsFile); err != nil && rt.logger != nil {
			rt.logger.Error("write metrics", "path", rt.cfg.MetricsFile, "error", err)
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i].Close()
	}
	rt.closers = nil
	rt.metrics = nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func runExport(ctx context.Context, rt *app, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	driver := fs.String("driver", string(export.DriverSQLite), "export sink: sqlite or postgres")
	dsn := fs.String("dsn", "", "sqlite file path or postgres connection string")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	snap := export.Collect(ctx, rt.clinic)
	if err := export.Write(ctx, export.Driver(*driver), *dsn, snap); err != nil {
		rt.logger.Error("export failed", "driver", *driver, "error", err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	rt.logger.Info("export written", "driver", *driver, "patients", len(snap.Patients),
		"diagnoses", len(snap.Diagnoses), "images", len(snap.Images))
	fmt.Fprintf(stdout, "Exported %d patients, %d diagnoses and %d images to %s.\n",
		len(snap.Patients), len(snap.Diagnoses), len(snap.Images), *driver)
	return 0
}
