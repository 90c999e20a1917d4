package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ConnectionConfig holds the connection strings consumed by the migration
// runner, static collection and the handed-off application process. Values
// are read from the environment at invocation time and never mutated.
type ConnectionConfig struct {
	// DatabaseURL is the PostgreSQL connection string (DATABASE_URL).
	DatabaseURL string

	// RedisURL is the cache connection string (REDIS_URL).
	RedisURL string
}

// Credential identifies the database role and database the application
// expects. It is injected into the provisioner rather than baked into it,
// and persists for the lifetime of the container's volume.
type Credential struct {
	// Role is the name of the login role to ensure.
	Role string `yaml:"role" validate:"required"`

	// Password is the role's password. Usually supplied via
	// PREVIEWKIT_DB_PASSWORD rather than the manifest.
	Password string `yaml:"password"`

	// Database is the name of the database owned by Role.
	Database string `yaml:"database" validate:"required"`
}

// ProbeSpec describes how readiness of a started service is checked.
type ProbeSpec struct {
	// Kind selects the probe implementation.
	Kind string `yaml:"kind" validate:"required,oneof=tcp postgres redis command"`

	// Target is the probe argument: an address for tcp, a connection URL
	// for postgres/redis, or a shell command for command probes.
	// Environment references ($VAR) are expanded at probe time.
	Target string `yaml:"target" validate:"required"`
}

// ServiceSpec describes a single background service managed during a
// bootstrap phase.
type ServiceSpec struct {
	// Name identifies the service in logs and the journal.
	Name string `yaml:"name" validate:"required"`

	// Start is the command that launches the service.
	Start []string `yaml:"start" validate:"required,min=1"`

	// Stop is the command that stops the service. Stop failures are
	// logged, never propagated.
	Stop []string `yaml:"stop" validate:"required,min=1"`

	// Probe is the readiness check polled after Start.
	Probe ProbeSpec `yaml:"probe" validate:"required"`

	// StartupTimeout bounds the readiness poll. Zero means DefaultStartupTimeout.
	StartupTimeout Duration `yaml:"startup_timeout"`

	// PollInterval is the delay between readiness checks. Zero means
	// DefaultPollInterval.
	PollInterval Duration `yaml:"poll_interval"`
}

// Commands lists the opaque collaborator invocations the orchestrator
// sequences. The orchestrator only observes their exit status.
type Commands struct {
	// BuildFrontend invokes the frontend bundler.
	BuildFrontend []string `yaml:"build_frontend"`

	// CollectStatic gathers static assets. It must succeed with
	// placeholder connection values; it never requires a live service.
	CollectStatic []string `yaml:"collect_static"`

	// Migrate, when set, replaces the native migration runner with an
	// external migration command.
	Migrate []string `yaml:"migrate"`

	// Seed populates the preview database with demo data after
	// migrations. Optional.
	Seed []string `yaml:"seed"`

	// App is the application serving process the run-time phase hands
	// off to.
	App []string `yaml:"app" validate:"required,min=1"`
}

// Migrations configures the native migration runner.
type Migrations struct {
	// Dir is the directory of ordered .sql migration files.
	Dir string `yaml:"dir"`
}

// Manifest is the full bootstrap description loaded from previewkit.yaml.
type Manifest struct {
	// DataDir is the volume-backed directory holding service state and
	// the bootstrap journal.
	DataDir string `yaml:"data_dir" validate:"required"`

	// AdminURL is the superuser connection string used for provisioning.
	AdminURL string `yaml:"admin_url" validate:"required"`

	// Services are started in order and stopped in reverse order.
	Services []ServiceSpec `yaml:"services" validate:"required,min=1,dive"`

	// Credential is the role/database to ensure during provisioning.
	Credential Credential `yaml:"credential"`

	// Commands are the collaborator invocations.
	Commands Commands `yaml:"commands"`

	// Migrations configures the native migration runner. Ignored when
	// Commands.Migrate is set.
	Migrations Migrations `yaml:"migrations"`
}

// Duration wraps time.Duration with YAML support for values like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
