// Package config provides configuration loading for the JIT groups broker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for jitbroker.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("jitbroker")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: JITBROKER_DIRECTORY_DOMAIN
	viper.SetEnvPrefix("JITBROKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a jitbroker config file
// with an explicit YAML extension (.yaml or .yml). This prevents Viper from
// matching the binary "jitbroker" (no extension) in the current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".jitbroker"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "jitbroker"))
		}
	} else {
		paths = append(paths, "/etc/jitbroker")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for jitbroker.yaml or
// .yml. Returns the full path of the first match, or empty string if none
// found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "jitbroker"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds every config key that plausibly needs environment
// variable support.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("log_level")
	_ = viper.BindEnv("dev_mode")

	_ = viper.BindEnv("policy.source_path")

	_ = viper.BindEnv("directory.domain")

	_ = viper.BindEnv("signing.key_path")
	_ = viper.BindEnv("signing.ephemeral")
	_ = viper.BindEnv("signing.issuer")
	_ = viper.BindEnv("signing.audience")

	_ = viper.BindEnv("activation.reviewer_min")
	_ = viper.BindEnv("activation.reviewer_max")

	_ = viper.BindEnv("backend.kind")
	_ = viper.BindEnv("backend.gcp.project")
	_ = viper.BindEnv("backend.gcp.impersonate_subject")

	_ = viper.BindEnv("ledger.path")

	_ = viper.BindEnv("metrics.enabled")
	_ = viper.BindEnv("metrics.listen_addr")

	_ = viper.BindEnv("telemetry.enabled")
	_ = viper.BindEnv("telemetry.service_name")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults and dev defaults, validates, and returns the BrokerConfig.
// Callers that apply CLI flag overrides (e.g. --dev) before dev defaults and
// validation use LoadConfigRaw instead.
func LoadConfig() (*BrokerConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg BrokerConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// NOT apply dev defaults or validate. Use this when CLI flags may override
// DevMode before validation.
func LoadConfigRaw() (*BrokerConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg BrokerConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
