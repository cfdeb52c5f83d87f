// Package blob is the entry point to image storage. It re-exports the core
// contract and opens the configured driver; callers never import the infra
// drivers directly.
package blob

import (
	"context"
	"fmt"
	"strings"

	"papila/internal/blob/core"
	fsblob "papila/internal/infra/blob/fs"
	memblob "papila/internal/infra/blob/memory"
	s3blob "papila/internal/infra/blob/s3"
)

type (
	Driver           = core.Driver
	Store            = core.Store
	Info             = core.Info
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrExists      = core.ErrExists
	ErrNotExist    = core.ErrNotExist
)

// Config selects and parameterises a driver.
type Config struct {
	Driver Driver `yaml:"driver"`
	// Dir is the managed image directory for the fs driver.
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`
}

// S3Config carries the bucket settings for the s3 driver.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	PathStyle       bool   `yaml:"path_style"`
}

// Open constructs the store cfg describes. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(strings.ToLower(string(cfg.Driver))) {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.Dir)
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported blob driver %q", cfg.Driver)
	}
}

// NewFilesystem opens the fs driver rooted at dir.
func NewFilesystem(dir string) (Store, error) {
	return fsblob.New(dir)
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return memblob.New()
}

// NewS3 opens the s3 driver.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return s3blob.New(ctx, s3blob.Config{
		Region:          cfg.Region,
		Bucket:          cfg.Bucket,
		Prefix:          cfg.Prefix,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
		PathStyle:       cfg.PathStyle,
	})
}

// NewS3Mock returns an s3 store backed by an in-process fake bucket.
func NewS3Mock(prefix string) Store {
	return s3blob.NewMockForTests(prefix)
}
