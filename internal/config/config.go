// Package config provides configuration types for the JIT groups broker.
//
// It follows the same file-based, viper-backed schema style the rest of the
// pack uses: a single typed struct, mapstructure/yaml tags, sensible
// production defaults, and a permissive dev-mode overlay for running the CLI
// against the in-memory adapters with no external setup.
package config

import (
	"os"

	"github.com/spf13/viper"
)

// BrokerConfig is the top-level configuration for the JIT groups broker CLI.
type BrokerConfig struct {
	// LogLevel names a minimum log level.
	// Valid values: "debug", "info", "warn", "warning", "error".
	// The value is validated only: the CLI's loggers do not read it and log
	// at slog's default Info level.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// DevMode enables development defaults (in-memory backend, ephemeral
	// signing key, a permissive example directory domain).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`

	// Policy configures where the §3 policy document is loaded from.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`

	// Directory configures the JIT-group ↔ directory-group mapping.
	Directory DirectoryConfig `yaml:"directory" mapstructure:"directory"`

	// Signing configures the activation token signer.
	Signing SigningConfig `yaml:"signing" mapstructure:"signing"`

	// Activation configures MPA request bounds.
	Activation ActivationConfig `yaml:"activation" mapstructure:"activation"`

	// Backend selects which outbound adapters provision real infrastructure.
	Backend BackendConfig `yaml:"backend" mapstructure:"backend"`

	// Ledger configures the activation/provisioning audit ledger (E.3).
	Ledger LedgerConfig `yaml:"ledger" mapstructure:"ledger"`

	// Metrics configures the optional prometheus collectors.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// Telemetry configures otel tracing/metrics export.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// PolicyConfig locates the §3 policy document on disk.
type PolicyConfig struct {
	// SourcePath is the path to the YAML policy document (E.3).
	SourcePath string `yaml:"source_path" mapstructure:"source_path" validate:"required"`
}

// DirectoryConfig configures the JIT-group naming scheme (§4.1).
type DirectoryConfig struct {
	// Domain is the directory domain every JIT-group email is minted under,
	// e.g. "example.com" for "jit.prod.billing.ops-oncall@example.com".
	Domain string `yaml:"domain" mapstructure:"domain" validate:"required,fqdn"`
}

// SigningConfig configures the activation token signer (§4.6, §6).
type SigningConfig struct {
	// KeyPath is the path to a PEM-encoded Ed25519 private key. Required
	// unless Ephemeral is set.
	KeyPath string `yaml:"key_path" mapstructure:"key_path"`

	// Ephemeral generates a throwaway Ed25519 key pair at process start,
	// for local development only: tokens do not survive a restart.
	Ephemeral bool `yaml:"ephemeral" mapstructure:"ephemeral"`

	// Issuer is the token issuer claim every signed token carries.
	Issuer string `yaml:"issuer" mapstructure:"issuer" validate:"required"`

	// Audience is the token audience claim every signed token carries.
	Audience string `yaml:"audience" mapstructure:"audience" validate:"required"`
}

// ActivationConfig configures MPA reviewer bounds (§4.6).
type ActivationConfig struct {
	// ReviewerMin is the minimum number of reviewers an MPA request may name.
	ReviewerMin int `yaml:"reviewer_min" mapstructure:"reviewer_min" validate:"omitempty,min=1"`

	// ReviewerMax is the maximum number of reviewers an MPA request may name.
	ReviewerMax int `yaml:"reviewer_max" mapstructure:"reviewer_max" validate:"omitempty,min=1"`
}

// BackendConfig selects which outbound adapters back the directory and IAM
// ports (§6).
type BackendConfig struct {
	// Kind selects the outbound adapter pair. "memory" uses the in-memory
	// fakes (dev/test); "gcp" uses the real Admin SDK / Resource Manager
	// clients.
	Kind string `yaml:"kind" mapstructure:"kind" validate:"required,oneof=memory gcp"`

	// GCP configures the real backend. Only consulted when Kind is "gcp".
	GCP GCPConfig `yaml:"gcp" mapstructure:"gcp"`
}

// GCPConfig configures the real GCP-backed adapters.
type GCPConfig struct {
	// Project is a "projects/<id>" resource name. Validate requires it when
	// Kind is "gcp", but it is not passed to either GCP client, and every
	// IAM binding targets the resource its privilege names.
	Project string `yaml:"project" mapstructure:"project"`

	// ImpersonateSubject names a Workspace user for domain-wide delegation.
	// It is not passed to the Directory API client, which runs with
	// Application Default Credentials as they are.
	ImpersonateSubject string `yaml:"impersonate_subject" mapstructure:"impersonate_subject"`
}

// LedgerConfig configures the audit ledger (E.3).
type LedgerConfig struct {
	// Path is the SQLite database file the ledger is stored in.
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
}

// MetricsConfig configures the prometheus collectors.
type MetricsConfig struct {
	// Enabled controls whether the prometheus collectors are created and
	// registered with the default prometheus registerer. No /metrics
	// endpoint is served.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// ListenAddr is validated as a host:port, but nothing binds to it.
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr" validate:"omitempty,hostname_port"`
}

// TelemetryConfig configures otel tracing/metrics export.
type TelemetryConfig struct {
	// Enabled controls whether spans/metrics are exported (stdout exporter).
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// ServiceName identifies this process in exported telemetry.
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// SetDevDefaults applies permissive defaults for development mode, letting
// the CLI run against nothing but a policy file. Applied before validation
// so required fields are satisfied.
func (c *BrokerConfig) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	if c.Directory.Domain == "" {
		c.Directory.Domain = "example.com"
	}
	if c.Backend.Kind == "" {
		c.Backend.Kind = "memory"
	}
	if c.Signing.KeyPath == "" {
		c.Signing.Ephemeral = true
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = "jitbroker-dev.db"
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *BrokerConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Policy.SourcePath == "" {
		c.Policy.SourcePath = "policy.yaml"
	}

	if c.Signing.Issuer == "" {
		c.Signing.Issuer = "jitbroker"
	}
	if c.Signing.Audience == "" {
		c.Signing.Audience = "jitbroker-mpa"
	}

	if c.Activation.ReviewerMin == 0 {
		c.Activation.ReviewerMin = 1
	}
	if c.Activation.ReviewerMax == 0 {
		c.Activation.ReviewerMax = 10
	}

	// Backend defaults to "memory" so the CLI runs out of the box; users
	// wanting real infrastructure set backend.kind: gcp explicitly.
	if !viper.IsSet("backend.kind") && c.Backend.Kind == "" {
		c.Backend.Kind = "memory"
	}

	if c.Ledger.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.Ledger.Path = home + "/.jitbroker/ledger.db"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = "127.0.0.1:9090"
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "jitbroker"
	}
}
