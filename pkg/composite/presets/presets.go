// Package presets builds ready-to-use services for common setups.
package presets

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/tendant/simple-composite/pkg/composite"
	"github.com/tendant/simple-composite/pkg/composite/config"
	"github.com/tendant/simple-composite/pkg/composite/metastore/memory"
	fssnapshot "github.com/tendant/simple-composite/pkg/composite/snapshot/fs"
	memorysnapshot "github.com/tendant/simple-composite/pkg/composite/snapshot/memory"
)

// NewDevelopment creates a service for local development: an in-memory
// metadata store and filesystem snapshots under ./dev-data.
//
// The returned cleanup function removes the snapshot directory.
//
//	svc, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (composite.Service, func(), error) {
	cfg := &devConfig{
		snapshotDir: "./dev-data",
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	snapshots, err := fssnapshot.New(fssnapshot.Config{BaseDir: cfg.snapshotDir})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create filesystem snapshots: %w", err)
	}

	svc, err := composite.New(
		composite.WithStore(memory.New()),
		composite.WithSnapshotStore(snapshots),
		composite.WithEventSink(composite.NewLoggingEventSink(cfg.logger)),
		composite.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}

	cleanup := func() {
		os.RemoveAll(cfg.snapshotDir)
	}
	return svc, cleanup, nil
}

// NewTesting creates an isolated in-memory service for tests. Logging is
// discarded and snapshots are kept in memory.
//
//	func TestMyFeature(t *testing.T) {
//	    c := composite.Connect(presets.NewTesting(t))
//	    ...
//	}
func NewTesting(t testing.TB, opts ...TestingOption) composite.Service {
	t.Helper()

	cfg := &testConfig{snapshots: true}
	for _, opt := range opts {
		opt(cfg)
	}

	options := []composite.Option{
		composite.WithStore(memory.New()),
		composite.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	if cfg.snapshots {
		options = append(options, composite.WithSnapshotStore(memorysnapshot.New()))
	}
	options = append(options, cfg.extra...)

	svc, err := composite.New(options...)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	return svc
}

// NewProduction creates a service from the environment (see config.WithEnv).
// It refuses in-memory metadata and snapshot storage.
//
// Required environment variables:
//   - DATABASE_URL: postgres:// or sqlite:// URL
//   - SNAPSHOT_URL: file:// or s3:// URL
func NewProduction(opts ...config.Option) (composite.Service, error) {
	cfg, err := config.Load(append([]config.Option{config.WithEnv("")}, opts...)...)
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseType == "memory" {
		return nil, fmt.Errorf("production preset requires a postgres or sqlite DATABASE_URL (memory not allowed in production)")
	}
	if cfg.Snapshots.Type == "memory" || cfg.Snapshots.Type == "none" {
		return nil, fmt.Errorf("production preset requires persistent snapshot storage (file:// or s3://, got %s)", cfg.Snapshots.Type)
	}

	return cfg.BuildService()
}

// devConfig holds development preset configuration
type devConfig struct {
	snapshotDir string
	logger      *slog.Logger
}

// testConfig holds testing preset configuration
type testConfig struct {
	snapshots bool
	extra     []composite.Option
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevSnapshots sets the development snapshot directory
func WithDevSnapshots(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.snapshotDir = dir
	}
}

// WithDevLogger sets the development logger
func WithDevLogger(logger *slog.Logger) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.logger = logger
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithoutSnapshots leaves snapshot storage unconfigured, so Persist fails
// with ErrSnapshotsDisabled.
func WithoutSnapshots() TestingOption {
	return func(cfg *testConfig) {
		cfg.snapshots = false
	}
}

// WithServiceOptions passes extra options to composite.New
func WithServiceOptions(opts ...composite.Option) TestingOption {
	return func(cfg *testConfig) {
		cfg.extra = append(cfg.extra, opts...)
	}
}
