// Package config loads process configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/eunmann/s3-chunkproc/pkg/logging"
)

// Environment variable names.
const (
	EnvChunkSize            = "CHUNK_SIZE"
	EnvStateBackend         = "STATE_BACKEND"
	EnvStateSQLitePath      = "STATE_SQLITE_PATH"
	EnvListingSource        = "LISTING_SOURCE"
	EnvInventoryManifestURI = "INVENTORY_MANIFEST_URI"
	EnvLogDebug             = "LOG_DEBUG"
	EnvLogHuman             = "LOG_HUMAN"
)

// State backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
)

// Listing sources.
const (
	SourceS3        = "s3"
	SourceInventory = "inventory"
)

var (
	// ErrInvalidChunkSize indicates CHUNK_SIZE is missing, not an integer,
	// or not positive.
	ErrInvalidChunkSize = errors.New("CHUNK_SIZE must be a positive integer")
	// ErrInvalidBackend indicates an unknown STATE_BACKEND or a missing
	// setting it depends on.
	ErrInvalidBackend = errors.New("invalid state backend")
	// ErrInvalidSource indicates an unknown LISTING_SOURCE or a missing
	// setting it depends on.
	ErrInvalidSource = errors.New("invalid listing source")
)

// Config is the resolved process configuration.
type Config struct {
	ChunkSize int

	StateBackend    string
	StateSQLitePath string

	ListingSource        string
	InventoryManifestURI string

	LogDebug bool
	LogHuman bool
}

// Load reads configuration from the environment. When envFile is non-empty
// it must exist; otherwise a .env in the working directory is loaded if
// present. Variables already set in the environment take precedence.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.L().Debug().Err(err).Msg(".env file could not be loaded")
	}
	return FromEnv()
}

// FromEnv reads configuration from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		StateBackend:         strings.ToLower(envOr(EnvStateBackend, BackendDynamoDB)),
		StateSQLitePath:      os.Getenv(EnvStateSQLitePath),
		ListingSource:        strings.ToLower(envOr(EnvListingSource, SourceS3)),
		InventoryManifestURI: os.Getenv(EnvInventoryManifestURI),
		LogDebug:             envBool(EnvLogDebug),
		LogHuman:             envBool(EnvLogHuman),
	}

	raw := strings.TrimSpace(os.Getenv(EnvChunkSize))
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return Config{}, fmt.Errorf("%w: got %q", ErrInvalidChunkSize, raw)
	}
	cfg.ChunkSize = n

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the selected backend and source are complete.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidChunkSize, c.ChunkSize)
	}

	switch c.StateBackend {
	case BackendDynamoDB:
	case BackendSQLite:
		if c.StateSQLitePath == "" {
			return fmt.Errorf("%w: %s requires %s", ErrInvalidBackend, BackendSQLite, EnvStateSQLitePath)
		}
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)", ErrInvalidBackend, c.StateBackend, BackendDynamoDB, BackendSQLite)
	}

	switch c.ListingSource {
	case SourceS3:
	case SourceInventory:
		if c.InventoryManifestURI == "" {
			return fmt.Errorf("%w: %s requires %s", ErrInvalidSource, SourceInventory, EnvInventoryManifestURI)
		}
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)", ErrInvalidSource, c.ListingSource, SourceS3, SourceInventory)
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}
