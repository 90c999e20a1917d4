package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Configuration error kinds. Both are surfaced before any service
// interaction takes place.
var (
	// ErrMissingValue indicates a required configuration value is absent.
	ErrMissingValue = errors.New("missing configuration value")

	// ErrMalformedValue indicates a configuration value could not be parsed.
	ErrMalformedValue = errors.New("malformed configuration value")
)

// Environment variable names consumed by the bootstrap.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvRedisURL    = "REDIS_URL"
	EnvDBPassword  = "PREVIEWKIT_DB_PASSWORD"
)

// Defaults applied to service specs that leave timing fields unset.
const (
	DefaultStartupTimeout = 30 * time.Second
	DefaultPollInterval   = 1 * time.Second
)

// LoadConnections reads DATABASE_URL and REDIS_URL from the environment.
// Absent or malformed values are configuration errors; no network
// connection is attempted.
func LoadConnections() (ConnectionConfig, error) {
	var cfg ConnectionConfig

	dbURL, err := requireURL(EnvDatabaseURL, "postgres", "postgresql")
	if err != nil {
		return cfg, err
	}
	redisURL, err := requireURL(EnvRedisURL, "redis", "rediss")
	if err != nil {
		return cfg, err
	}

	cfg.DatabaseURL = dbURL
	cfg.RedisURL = redisURL
	return cfg, nil
}

func requireURL(name string, schemes ...string) (string, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingValue, name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMalformedValue, name, err)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			return raw, nil
		}
	}
	return "", fmt.Errorf("%w: %s: unexpected scheme %q", ErrMalformedValue, name, parsed.Scheme)
}

// LoadManifest reads and validates a bootstrap manifest from path. Service
// timing defaults are filled in, and the credential password is overridden
// by PREVIEWKIT_DB_PASSWORD when set.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest %s: %v", ErrMissingValue, path, err)
	}
	return ParseManifest(data)
}

// ParseManifest parses and validates manifest bytes.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrMalformedValue, err)
	}
	m.applyDefaults()

	if err := validator.New().Struct(&m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrMalformedValue, err)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	for i := range m.Services {
		svc := &m.Services[i]
		if svc.StartupTimeout == 0 {
			svc.StartupTimeout = Duration(DefaultStartupTimeout)
		}
		if svc.PollInterval == 0 {
			svc.PollInterval = Duration(DefaultPollInterval)
		}
	}
	if pw := os.Getenv(EnvDBPassword); pw != "" {
		m.Credential.Password = pw
	}
	// Manifest values may reference the environment.
	m.AdminURL = os.ExpandEnv(m.AdminURL)
	m.DataDir = os.ExpandEnv(m.DataDir)
}
