package config

import (
	"errors"
	"fmt"

	"github.com/tendant/simple-composite/pkg/composite"
	"github.com/tendant/simple-composite/pkg/composite/objectkey"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the metadata store backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case "memory":
		case "postgres":
			if url == "" {
				return fmt.Errorf("database URL is required for postgres")
			}
		case "sqlite":
			if url == "" {
				return fmt.Errorf("database path is required for sqlite")
			}
			c.SQLitePath = url
			url = ""
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'sqlite', got: %s", dbType)
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithSQLite stores metadata in the SQLite database at path
func WithSQLite(path string) Option {
	return WithDatabase("sqlite", path)
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate applies the Postgres schema when the service is built
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithInstanceID sets the instance id mixed into allocated identifiers
func WithInstanceID(id uint64) Option {
	return func(c *ServerConfig) error {
		if id > composite.MaxInstanceID {
			return fmt.Errorf("instance id must be at most %d, got: %d", composite.MaxInstanceID, id)
		}
		c.InstanceID = id
		return nil
	}
}

// WithSnapshotStorage sets the snapshot store used by Persist.
// storageType is one of "none", "memory", "fs" or "s3".
func WithSnapshotStorage(storageType string, config map[string]interface{}) Option {
	return func(c *ServerConfig) error {
		switch storageType {
		case "none", "memory", "fs", "s3":
		default:
			return fmt.Errorf("unsupported snapshot storage type: %s", storageType)
		}
		if config == nil {
			config = map[string]interface{}{}
		}
		c.Snapshots = SnapshotConfig{Type: storageType, Config: config}
		return nil
	}
}

// WithFilesystemSnapshots writes snapshots below baseDir
func WithFilesystemSnapshots(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Snapshots = SnapshotConfig{
			Type:   "fs",
			Config: map[string]interface{}{"base_dir": baseDir},
		}
		return nil
	}
}

// WithSnapshotKeys selects the snapshot key layout
func WithSnapshotKeys(layout, prefix string) Option {
	return func(c *ServerConfig) error {
		if _, err := objectkey.NewGenerator(layout, prefix); err != nil {
			return err
		}
		c.KeyLayout = layout
		c.KeyPrefix = prefix
		return nil
	}
}

// WithDuplicatePolicy sets how builders treat repeated members
func WithDuplicatePolicy(p composite.DuplicatePolicy) Option {
	return func(c *ServerConfig) error {
		c.DuplicatePolicy = p
		return nil
	}
}

// WithEventLogging toggles the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithEventSinks adds sinks that receive every lifecycle event
func WithEventSinks(sinks ...composite.EventSink) Option {
	return func(c *ServerConfig) error {
		for _, s := range sinks {
			if s == nil {
				return errors.New("event sink must not be nil")
			}
		}
		c.EventSinks = append(c.EventSinks, sinks...)
		return nil
	}
}
