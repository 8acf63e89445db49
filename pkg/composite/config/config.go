package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-composite/pkg/composite"
	"github.com/tendant/simple-composite/pkg/composite/metastore/memory"
	metapg "github.com/tendant/simple-composite/pkg/composite/metastore/postgres"
	metasqlite "github.com/tendant/simple-composite/pkg/composite/metastore/sqlite"
	"github.com/tendant/simple-composite/pkg/composite/objectkey"
	fssnapshot "github.com/tendant/simple-composite/pkg/composite/snapshot/fs"
	memorysnapshot "github.com/tendant/simple-composite/pkg/composite/snapshot/memory"
	s3snapshot "github.com/tendant/simple-composite/pkg/composite/snapshot/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		Snapshots: SnapshotConfig{
			Type:   "memory",
			Config: map[string]interface{}{},
		},
		KeyLayout:          "git-like",
		KeyPrefix:          "snapshots",
		DuplicatePolicy:    composite.AllowDuplicates,
		EnableEventLogging: true,
	}
}

// ServerConfig represents configuration of the composite metadata service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Metadata store configuration
	DatabaseType string // "memory", "postgres", "sqlite"
	DatabaseURL  string // postgres connection string
	DBSchema     string // Postgres search_path; empty leaves the server default
	SQLitePath   string
	AutoMigrate  bool // apply the Postgres schema on startup

	// InstanceID is mixed into allocated identifiers. Instances sharing a
	// store need distinct values.
	InstanceID uint64

	// Snapshot storage used by Persist. Type "none" disables persistence.
	Snapshots SnapshotConfig
	KeyLayout string // objectkey generator name
	KeyPrefix string

	DuplicatePolicy    composite.DuplicatePolicy
	EnableEventLogging bool

	// EventSinks receive lifecycle events next to the logging sink.
	EventSinks []composite.EventSink
}

// SnapshotConfig represents configuration for the snapshot store
type SnapshotConfig struct {
	Type   string // "none", "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("sqlite path is required when using sqlite")
		}
	default:
		return fmt.Errorf("database_type must be 'memory', 'postgres' or 'sqlite', got %q", c.DatabaseType)
	}

	if c.InstanceID > composite.MaxInstanceID {
		return fmt.Errorf("instance_id must be at most %d, got %d", composite.MaxInstanceID, c.InstanceID)
	}

	switch c.Snapshots.Type {
	case "none", "memory":
	case "fs":
		if getString(c.Snapshots.Config, "base_dir", "") == "" {
			return errors.New("base_dir is required for fs snapshots")
		}
	case "s3":
		if getString(c.Snapshots.Config, "bucket", "") == "" {
			return errors.New("bucket is required for s3 snapshots")
		}
	default:
		return fmt.Errorf("unsupported snapshot storage type: %s", c.Snapshots.Type)
	}

	if _, err := objectkey.NewGenerator(c.KeyLayout, c.KeyPrefix); err != nil {
		return err
	}

	return nil
}

// BuilderOptions returns the options builders created on behalf of this
// configuration should use.
func (c *ServerConfig) BuilderOptions() []composite.BuilderOption {
	return []composite.BuilderOption{composite.WithDuplicatePolicy(c.DuplicatePolicy)}
}

// BuildService creates a Service instance from the server configuration.
// extra is applied after the configured options.
func (c *ServerConfig) BuildService(extra ...composite.Option) (composite.Service, error) {
	var options []composite.Option

	store, err := c.buildMetadataStore()
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata store: %w", err)
	}
	options = append(options, composite.WithStore(store), composite.WithInstanceID(c.InstanceID))

	snapshots, err := c.buildSnapshotStore()
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot store: %w", err)
	}
	if snapshots != nil {
		keys, err := objectkey.NewGenerator(c.KeyLayout, c.KeyPrefix)
		if err != nil {
			return nil, err
		}
		options = append(options, composite.WithSnapshotStore(snapshots), composite.WithKeyGenerator(keys))
	}

	var sinks composite.MultiEventSink
	if c.EnableEventLogging {
		sinks = append(sinks, composite.NewLoggingEventSink(nil))
	}
	sinks = append(sinks, c.EventSinks...)
	switch len(sinks) {
	case 0:
	case 1:
		options = append(options, composite.WithEventSink(sinks[0]))
	default:
		options = append(options, composite.WithEventSink(sinks))
	}

	options = append(options, extra...)
	return composite.New(options...)
}

// buildMetadataStore creates a MetadataStore based on the configuration
func (c *ServerConfig) buildMetadataStore() (composite.MetadataStore, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return metasqlite.Open(c.SQLitePath)
	case "postgres":
		pool, err := newPool(c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		store := metapg.NewWithPool(pool)
		if c.AutoMigrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := store.Migrate(ctx); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func newPool(databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required for postgres")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres and, when schema is set,
// that the search_path can be switched to it.
func PingPostgres(databaseURL, schema string) error {
	pool, err := newPool(databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// buildSnapshotStore creates a SnapshotStore based on the configuration. It
// returns nil when persistence is disabled.
func (c *ServerConfig) buildSnapshotStore() (composite.SnapshotStore, error) {
	cfg := c.Snapshots.Config
	switch c.Snapshots.Type {
	case "none":
		return nil, nil

	case "memory":
		return memorysnapshot.New(), nil

	case "fs":
		return fssnapshot.New(fssnapshot.Config{
			BaseDir: getString(cfg, "base_dir", "./data/snapshots"),
		})

	case "s3":
		return s3snapshot.New(s3snapshot.Config{
			Region:                 getString(cfg, "region", "us-east-1"),
			Bucket:                 getString(cfg, "bucket", ""),
			Prefix:                 getString(cfg, "prefix", ""),
			AccessKeyID:            getString(cfg, "access_key_id", ""),
			SecretAccessKey:        getString(cfg, "secret_access_key", ""),
			Endpoint:               getString(cfg, "endpoint", ""),
			UsePathStyle:           getBool(cfg, "use_path_style", false),
			EnableSSE:              getBool(cfg, "enable_sse", false),
			SSEAlgorithm:           getString(cfg, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(cfg, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(cfg, "create_bucket_if_not_exist", false),
		})

	default:
		return nil, fmt.Errorf("unsupported snapshot storage type: %s", c.Snapshots.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}
