package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/tendant/simple-composite/pkg/composite"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Server:
//
//	PORT - Server port (default: "8080")
//	ENVIRONMENT - Runtime environment (default: "development")
//	INSTANCE_ID - Identifier instance bits, 0..1023 (default: 0)
//
// Metadata store:
//
//	DATABASE_URL - one of:
//	  "memory" or empty - in-memory store
//	  "postgres://..." / "postgresql://..." - Postgres
//	  "sqlite:///path/to/meta.db" - SQLite file
//	DB_SCHEMA - Postgres search_path
//	AUTO_MIGRATE - apply the Postgres schema on startup
//
// Snapshots:
//
//	SNAPSHOT_URL - one of:
//	  "memory://" - in-memory snapshots (default)
//	  "none" - Persist disabled
//	  "file:///path/to/snapshots" - filesystem
//	  "s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true&prefix=p"
//	SNAPSHOT_KEY_LAYOUT - "git-like" (default), "flat" or "hashed"
//
// Builders:
//
//	DUPLICATE_POLICY - "allow" (default) or "reject"
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}
		if v, ok, err := parseUintEnv(prefix, "INSTANCE_ID"); err != nil {
			return err
		} else if ok {
			c.InstanceID = v
		}

		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		if v, ok := lookupEnv(prefix, "DB_SCHEMA"); ok {
			c.DBSchema = v
		}
		if v, ok, err := parseBoolEnv(prefix, "AUTO_MIGRATE"); err != nil {
			return err
		} else if ok {
			c.AutoMigrate = v
		}

		if err := applySnapshotEnv(prefix, c); err != nil {
			return err
		}
		if v, ok := lookupEnv(prefix, "SNAPSHOT_KEY_LAYOUT"); ok && v != "" {
			c.KeyLayout = v
		}

		if v, ok := lookupEnv(prefix, "DUPLICATE_POLICY"); ok && v != "" {
			p, err := composite.ParseDuplicatePolicy(v)
			if err != nil {
				return fmt.Errorf("invalid %sDUPLICATE_POLICY: %w", prefix, err)
			}
			c.DuplicatePolicy = p
		}
		if v, ok, err := parseBoolEnv(prefix, "EVENT_LOGGING"); err != nil {
			return err
		} else if ok {
			c.EnableEventLogging = v
		}

		return nil
	}
}

// applyDatabaseEnv applies metadata store configuration from environment
func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")

	switch {
	case !hasURL || dbURL == "" || dbURL == "memory":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
	case strings.HasPrefix(dbURL, "sqlite://"):
		path := strings.TrimPrefix(dbURL, "sqlite://")
		if path == "" {
			return fmt.Errorf("sqlite path cannot be empty in DATABASE_URL")
		}
		c.DatabaseType = "sqlite"
		c.DatabaseURL = ""
		c.SQLitePath = path
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgresql://...' or 'sqlite://...')", dbURL)
	}
	return nil
}

// applySnapshotEnv applies snapshot storage configuration from environment
func applySnapshotEnv(prefix string, c *ServerConfig) error {
	raw, hasURL := lookupEnv(prefix, "SNAPSHOT_URL")

	switch {
	case !hasURL || raw == "" || raw == "memory" || raw == "memory://":
		c.Snapshots = SnapshotConfig{Type: "memory", Config: map[string]interface{}{}}
		return nil
	case raw == "none":
		c.Snapshots = SnapshotConfig{Type: "none", Config: map[string]interface{}{}}
		return nil
	case strings.HasPrefix(raw, "file://"):
		path := strings.TrimPrefix(raw, "file://")
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in SNAPSHOT_URL")
		}
		c.Snapshots = SnapshotConfig{Type: "fs", Config: map[string]interface{}{"base_dir": path}}
		return nil
	case strings.HasPrefix(raw, "s3://"):
		return applyS3Snapshots(raw, c)
	}

	return fmt.Errorf("unsupported SNAPSHOT_URL format: %s (use 'memory://', 'none', 'file://...', or 's3://...')", raw)
}

// applyS3Snapshots configures S3 snapshots from
// s3://bucket?region=...&endpoint=...&prefix=...&path_style=true&create_bucket=true
func applyS3Snapshots(raw string, c *ServerConfig) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid SNAPSHOT_URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("S3 bucket name cannot be empty in SNAPSHOT_URL")
	}

	q := u.Query()
	cfg := map[string]interface{}{
		"bucket": u.Host,
		"region": "us-east-1",
	}
	if v := q.Get("region"); v != "" {
		cfg["region"] = v
	}
	if v := q.Get("endpoint"); v != "" {
		cfg["endpoint"] = v
	}
	if v := strings.Trim(u.Path, "/"); v != "" {
		cfg["prefix"] = v
	}
	if v := q.Get("prefix"); v != "" {
		cfg["prefix"] = v
	}
	if v := q.Get("path_style"); v != "" {
		cfg["use_path_style"] = v
	}
	if v := q.Get("create_bucket"); v != "" {
		cfg["create_bucket_if_not_exist"] = v
	}

	if accessKey, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok && accessKey != "" {
		cfg["access_key_id"] = accessKey
	}
	if secretKey, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok && secretKey != "" {
		cfg["secret_access_key"] = secretKey
	}
	if region, ok := os.LookupEnv("AWS_REGION"); ok && region != "" && q.Get("region") == "" {
		cfg["region"] = region
	}

	c.Snapshots = SnapshotConfig{Type: "s3", Config: cfg}
	return nil
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func parseBoolEnv(prefix, key string) (bool, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid boolean for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseUintEnv(prefix, key string) (uint64, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}
