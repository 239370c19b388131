// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable that selects the config file.
const EnvVar = "SEALRUN_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local experimentation with unsigned artifacts.
	Development Environment = "development"
	// Staging is for pre-production pipelines.
	Staging Environment = "staging"
	// Production is for CI gates whose verdicts are relied upon.
	Production Environment = "production"
)

// Config is the master configuration for sealrun.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures where artifacts, logs and inputs live.
	Paths PathsConfig `yaml:"paths"`

	// Signing configures the default signer for the sign command.
	Signing SigningConfig `yaml:"signing"`

	// Verify configures default verification policy.
	Verify VerifyConfig `yaml:"verify"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	Signing *SigningConfig `yaml:"signing,omitempty"`
	Verify  *VerifyConfig  `yaml:"verify,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// OutDir is where seal writes artifacts and manifests.
	OutDir string `yaml:"out_dir"`

	// TransparencyLog is the default append-only log file.
	TransparencyLog string `yaml:"transparency_log"`

	// InputsRoot is the directory relative input paths resolve against.
	InputsRoot string `yaml:"inputs_root"`
}

// SigningConfig configures the signer used by the sign command when
// flags do not say otherwise.
type SigningConfig struct {
	// Algorithm is hmac-sha256 or ed25519.
	Algorithm string `yaml:"algorithm"`

	KeyID   string `yaml:"key_id"`
	KeyFile string `yaml:"key_file"`

	// AgeIdentity decrypts age-encrypted key files.
	AgeIdentity string `yaml:"age_identity"`

	SignerID string `yaml:"signer_id"`
	Role     string `yaml:"role"`

	// ExternalCommand, when set, delegates signing to a subprocess
	// that receives the path of a file holding the hex digest.
	ExternalCommand   string `yaml:"external_command"`
	ExternalAlgorithm string `yaml:"external_algorithm"`
	ExternalHardware  bool   `yaml:"external_hardware"`

	// ExternalTimeout bounds one external signer invocation.
	// Default: 30s
	ExternalTimeout string `yaml:"external_timeout"`
}

// VerifyConfig configures verification policy.
type VerifyConfig struct {
	// Strict turns missing referenced files and soft audit findings
	// into failures. Always true in production.
	Strict bool `yaml:"strict"`

	// RequireMultisig is the minimum number of distinct valid
	// signers. Zero means a single signature suffices.
	RequireMultisig int `yaml:"require_multisig"`

	// Keyring is the YAML keyring used for signature checks.
	Keyring string `yaml:"keyring"`
}

// Default returns the configuration used when no file is selected.
func Default() *Config {
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			OutDir:          ".",
			TransparencyLog: "transparency_log.ndjson",
			InputsRoot:      ".",
		},
		Signing: SigningConfig{
			Algorithm:         "ed25519",
			Role:              "author",
			ExternalAlgorithm: "ed25519",
			ExternalTimeout:   "30s",
		},
	}
}

// Load loads configuration from the file named by SEALRUN_CONFIG.
// It fails when the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your sealrun.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// Resolve returns the configuration for a command: the --config path
// when given, otherwise SEALRUN_CONFIG, otherwise [Default].
func Resolve(flagPath string) (*Config, error) {
	if flagPath != "" {
		return LoadFile(flagPath)
	}
	if os.Getenv(EnvVar) != "" {
		return Load()
	}
	cfg := Default()
	cfg.applyEnvironmentOverrides()
	return cfg, nil
}

// LoadFile loads configuration from a specific file path.
//
// Environment variables never override config values; the only
// expansion is ${VAR} and ${VAR:-default} inside path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables(filepath.Dir(path))

	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides != nil {
		if overrides.Paths != nil {
			if overrides.Paths.OutDir != "" {
				c.Paths.OutDir = overrides.Paths.OutDir
			}
			if overrides.Paths.TransparencyLog != "" {
				c.Paths.TransparencyLog = overrides.Paths.TransparencyLog
			}
			if overrides.Paths.InputsRoot != "" {
				c.Paths.InputsRoot = overrides.Paths.InputsRoot
			}
		}

		if overrides.Signing != nil {
			s := overrides.Signing
			if s.Algorithm != "" {
				c.Signing.Algorithm = s.Algorithm
			}
			if s.KeyID != "" {
				c.Signing.KeyID = s.KeyID
			}
			if s.KeyFile != "" {
				c.Signing.KeyFile = s.KeyFile
			}
			if s.AgeIdentity != "" {
				c.Signing.AgeIdentity = s.AgeIdentity
			}
			if s.SignerID != "" {
				c.Signing.SignerID = s.SignerID
			}
			if s.Role != "" {
				c.Signing.Role = s.Role
			}
			if s.ExternalCommand != "" {
				c.Signing.ExternalCommand = s.ExternalCommand
			}
			if s.ExternalAlgorithm != "" {
				c.Signing.ExternalAlgorithm = s.ExternalAlgorithm
			}
			// ExternalHardware is a bool, so it is always applied.
			c.Signing.ExternalHardware = s.ExternalHardware
			if s.ExternalTimeout != "" {
				c.Signing.ExternalTimeout = s.ExternalTimeout
			}
		}

		if overrides.Verify != nil {
			c.Verify.Strict = overrides.Verify.Strict
			if overrides.Verify.RequireMultisig != 0 {
				c.Verify.RequireMultisig = overrides.Verify.RequireMultisig
			}
			if overrides.Verify.Keyring != "" {
				c.Verify.Keyring = overrides.Verify.Keyring
			}
		}
	}

	if c.Environment == Production {
		c.Verify.Strict = true
	}
}

// expandVariables expands ${VAR} patterns in path fields. CONFIG_DIR
// names the directory holding the config file.
func (c *Config) expandVariables(configDir string) {
	vars := map[string]string{
		"CONFIG_DIR": configDir,
		"HOME":       os.Getenv("HOME"),
	}

	c.Paths.OutDir = expandVars(c.Paths.OutDir, vars)
	c.Paths.TransparencyLog = expandVars(c.Paths.TransparencyLog, vars)
	c.Paths.InputsRoot = expandVars(c.Paths.InputsRoot, vars)
	c.Signing.KeyFile = expandVars(c.Signing.KeyFile, vars)
	c.Signing.AgeIdentity = expandVars(c.Signing.AgeIdentity, vars)
	c.Signing.ExternalCommand = expandVars(c.Signing.ExternalCommand, vars)
	c.Verify.Keyring = expandVars(c.Verify.Keyring, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Provided vars first, then the process environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// ExternalTimeoutDuration parses Signing.ExternalTimeout.
func (c *Config) ExternalTimeoutDuration() (time.Duration, error) {
	if c.Signing.ExternalTimeout == "" {
		return 30 * time.Second, nil
	}
	duration, err := time.ParseDuration(c.Signing.ExternalTimeout)
	if err != nil {
		return 0, fmt.Errorf("signing.external_timeout: %w", err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("signing.external_timeout must be positive, got %s", duration)
	}
	return duration, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.OutDir == "" {
		errs = append(errs, fmt.Errorf("paths.out_dir is required"))
	}

	algorithms := []string{"hmac", "hmac-sha256", "ed25519"}
	if !contains(algorithms, c.Signing.Algorithm) {
		errs = append(errs, fmt.Errorf("signing.algorithm must be one of: %v", algorithms))
	}
	if c.Signing.ExternalCommand != "" && !contains(algorithms, c.Signing.ExternalAlgorithm) {
		errs = append(errs, fmt.Errorf("signing.external_algorithm must be one of: %v", algorithms))
	}
	if _, err := c.ExternalTimeoutDuration(); err != nil {
		errs = append(errs, err)
	}

	if c.Verify.RequireMultisig < 0 {
		errs = append(errs, fmt.Errorf("verify.require_multisig must not be negative"))
	}
	if c.Environment == Production && !c.Verify.Strict {
		errs = append(errs, fmt.Errorf("verify.strict cannot be disabled in production"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the output directory and the directory holding
// the transparency log.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Paths.OutDir}
	if c.Paths.TransparencyLog != "" {
		paths = append(paths, filepath.Dir(c.Paths.TransparencyLog))
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
