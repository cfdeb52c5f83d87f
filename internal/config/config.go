// Package config resolves the runtime settings of papila. Sources are layered
// from lowest to highest precedence: built-in defaults, a YAML file, .env
// files, PAPILA_* environment variables and finally command-line flags (the
// last layer is applied by the caller).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"papila/internal/blob"
	"papila/internal/core"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "PAPILA_"

// Config is the full runtime configuration.
type Config struct {
	Data        DataConfig           `yaml:"data"`
	Blob        blob.Config          `yaml:"blob"`
	Collision   core.CollisionPolicy `yaml:"collision"`
	Log         LogConfig            `yaml:"log"`
	MetricsFile string               `yaml:"metrics_file,omitempty"`
	TraceFile   string               `yaml:"trace_file,omitempty"`
	Accessible  bool                 `yaml:"accessible"`
}

// DataConfig locates the three backing files.
type DataConfig struct {
	Patients  string `yaml:"patients"`
	Diagnoses string `yaml:"diagnoses"`
	Images    string `yaml:"images"`
}

// Paths converts the data section for core.OpenClinic.
func (d DataConfig) Paths() core.Paths {
	return core.Paths{Patients: d.Patients, Diagnoses: d.Diagnoses, Images: d.Images}
}

// LogConfig controls the slog handler built by the command.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file,omitempty"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Data: DataConfig{
			Patients:  "data/db_pacientes.json",
			Diagnoses: "data/db_diagnostico.json",
			Images:    "data/db_imagen.json",
		},
		Blob: blob.Config{
			Driver: blob.DriverFilesystem,
			Dir:    "imagenes",
			S3:     blob.S3Config{Region: "us-east-1", Prefix: "imagenes/"},
		},
		Collision: core.CollisionReplace,
		Log:       LogConfig{Level: "warn", Format: "text"},
	}
}

// LoadFile overlays the YAML file at path onto cfg. Unknown keys are errors.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Marshal renders cfg as YAML. Secrets are masked.
func Marshal(cfg Config) ([]byte, error) {
	if cfg.Blob.S3.SecretAccessKey != "" {
		cfg.Blob.S3.SecretAccessKey = "***"
	}
	if cfg.Blob.S3.SessionToken != "" {
		cfg.Blob.S3.SessionToken = "***"
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

type envVar struct {
	name string
	set  func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

var envVars = []envVar{
	{"PATIENTS_FILE", str(func(c *Config) *string { return &c.Data.Patients })},
	{"DIAGNOSES_FILE", str(func(c *Config) *string { return &c.Data.Diagnoses })},
	{"IMAGES_FILE", str(func(c *Config) *string { return &c.Data.Images })},
	{"IMAGE_DIR", str(func(c *Config) *string { return &c.Blob.Dir })},
	{"BLOB_DRIVER", func(c *Config, v string) error { c.Blob.Driver = blob.Driver(v); return nil }},
	{"BLOB_S3_BUCKET", str(func(c *Config) *string { return &c.Blob.S3.Bucket })},
	{"BLOB_S3_REGION", str(func(c *Config) *string { return &c.Blob.S3.Region })},
	{"BLOB_S3_PREFIX", str(func(c *Config) *string { return &c.Blob.S3.Prefix })},
	{"BLOB_S3_ENDPOINT", str(func(c *Config) *string { return &c.Blob.S3.Endpoint })},
	{"BLOB_S3_ACCESS_KEY_ID", str(func(c *Config) *string { return &c.Blob.S3.AccessKeyID })},
	{"BLOB_S3_SECRET_ACCESS_KEY", str(func(c *Config) *string { return &c.Blob.S3.SecretAccessKey })},
	{"BLOB_S3_SESSION_TOKEN", str(func(c *Config) *string { return &c.Blob.S3.SessionToken })},
	{"BLOB_S3_PATH_STYLE", boolean(func(c *Config) *bool { return &c.Blob.S3.PathStyle })},
	{"COLLISION", func(c *Config, v string) error { c.Collision = core.CollisionPolicy(v); return nil }},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Log.Format })},
	{"LOG_FILE", str(func(c *Config) *string { return &c.Log.File })},
	{"METRICS_FILE", str(func(c *Config) *string { return &c.MetricsFile })},
	{"TRACE_FILE", str(func(c *Config) *string { return &c.TraceFile })},
	{"ACCESSIBLE", boolean(func(c *Config) *bool { return &c.Accessible })},
}

// EnvNames lists every variable ApplyEnv understands.
func EnvNames() []string {
	out := make([]string, 0, len(envVars))
	for _, v := range envVars {
		out = append(out, EnvPrefix+v.name)
	}
	return out
}

// ApplyEnv overlays PAPILA_* variables found through lookup onto cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var errs []error
	for _, v := range envVars {
		raw, ok := lookup(EnvPrefix + v.name)
		if !ok {
			continue
		}
		if err := v.set(cfg, strings.TrimSpace(raw)); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, v.name, err))
		}
	}
	return errors.Join(errs...)
}

// Options selects the sources Load reads.
type Options struct {
	File     string   // YAML file; empty means none
	EnvFiles []string // .env files, missing ones skipped
	Lookup   func(string) (string, bool)
}

// Load resolves defaults, file, .env files and environment, then validates.
func Load(opts Options) (Config, error) {
	cfg := Default()
	if opts.File != "" {
		if err := LoadFile(opts.File, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := LoadDotEnv(opts.EnvFiles...); err != nil {
		return Config{}, err
	}
	if err := ApplyEnv(&cfg, opts.Lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerations and required fields.
func (c Config) Validate() error {
	var errs []error
	if c.Data.Patients == "" || c.Data.Diagnoses == "" || c.Data.Images == "" {
		errs = append(errs, errors.New("data: all three backing files are required"))
	}
	switch blob.Driver(strings.ToLower(string(c.Blob.Driver))) {
	case "", blob.DriverFilesystem:
		if c.Blob.Dir == "" {
			errs = append(errs, errors.New("blob: dir required for the fs driver"))
		}
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob: s3.bucket required for the s3 driver"))
		}
	case blob.DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("blob: unknown driver %q", c.Blob.Driver))
	}
	if !c.Collision.Valid() {
		errs = append(errs, fmt.Errorf("collision: must be %q or %q, got %q", core.CollisionReplace, core.CollisionReject, c.Collision))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log: unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
