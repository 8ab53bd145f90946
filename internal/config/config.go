// ABOUTME: Configuration management for the scanseal CLI
// ABOUTME: Handles project-level configuration files and attestation preferences
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	ConfigFileName     = "scanseal.json"
	ProjectDirName     = ".scanseal"
	DefaultConfigPerms = 0644
)

// ConfigOpts configures how configuration is loaded and managed
type ConfigOpts struct {
	// Override config file path (default: auto-discover)
	ConfigPath string

	// Whether to create default config if none exists
	CreateIfMissing bool

	// Override working directory for auto-discovery
	WorkingDir string
}

// DefaultConfigOpts returns default configuration loading options
func DefaultConfigOpts() *ConfigOpts {
	return &ConfigOpts{
		CreateIfMissing: true,
	}
}

// WithConfigPath sets a custom config file path
func (opts *ConfigOpts) WithConfigPath(path string) *ConfigOpts {
	opts.ConfigPath = path
	return opts
}

// WithWorkingDir sets a custom working directory for auto-discovery
func (opts *ConfigOpts) WithWorkingDir(dir string) *ConfigOpts {
	opts.WorkingDir = dir
	return opts
}

// WithCreateIfMissing controls whether to create default config when missing
func (opts *ConfigOpts) WithCreateIfMissing(create bool) *ConfigOpts {
	opts.CreateIfMissing = create
	return opts
}

// ConfigManager handles configuration loading and management
type ConfigManager struct {
	opts *ConfigOpts
}

// NewConfigManager creates a configuration manager with the given options
func NewConfigManager(opts *ConfigOpts) *ConfigManager {
	if opts == nil {
		opts = DefaultConfigOpts()
	}
	return &ConfigManager{opts: opts}
}

type Config struct {
	Version string `json:"version"`

	// Attestation settings
	Attestation AttestationConfig `json:"attestation"`

	// Verification settings
	Verification VerificationConfig `json:"verification"`

	// Output preferences
	Output OutputConfig `json:"output"`
}

type AttestationConfig struct {
	// AutoAttest enables attestation after scans when running inside CI.
	// It is still gated on CI detection; see cienv.ShouldAutoAttest.
	AutoAttest bool `json:"auto_attest"`

	// Staging switches signing to the Sigstore staging infrastructure
	Staging bool `json:"staging"`

	// Explicit endpoint overrides. These win over the staging flag.
	FulcioURL string `json:"fulcio_url,omitempty"`
	RekorURL  string `json:"rekor_url,omitempty"`
}

type VerificationConfig struct {
	TamperDetection  bool `json:"tamper_detection"`
	MaxAgeDays       int  `json:"max_age_days"`
	MaxDurationHours int  `json:"max_duration_hours"`

	// AllowBuilderVersionChange permits builder version drift between
	// attestations of the same lineage without flagging it
	AllowBuilderVersionChange bool `json:"allow_builder_version_change"`
}

type OutputConfig struct {
	Format  string `json:"format"` // "text", "json"
	Verbose bool   `json:"verbose"`
	Color   bool   `json:"color"`
}

func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Attestation: AttestationConfig{
			AutoAttest: false,
			Staging:    false,
		},
		Verification: VerificationConfig{
			TamperDetection:           true,
			MaxAgeDays:                90,
			MaxDurationHours:          24,
			AllowBuilderVersionChange: true,
		},
		Output: OutputConfig{
			Format:  "text",
			Verbose: false,
			Color:   true,
		},
	}
}

func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("config version is required")
	}

	if c.Output.Format != "text" && c.Output.Format != "json" {
		return fmt.Errorf("invalid output format: %s (must be 'text' or 'json')", c.Output.Format)
	}

	if c.Verification.MaxAgeDays < 0 {
		return fmt.Errorf("max_age_days must not be negative")
	}

	if c.Verification.MaxDurationHours < 0 {
		return fmt.Errorf("max_duration_hours must not be negative")
	}

	return nil
}

// FindProjectDirectory walks up from startPath looking for a .scanseal directory
func FindProjectDirectory(startPath string) (string, error) {
	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentPath := absPath
	for {
		projectPath := filepath.Join(currentPath, ProjectDirName)
		if info, err := os.Stat(projectPath); err == nil && info.IsDir() {
			return projectPath, nil
		}

		parentPath := filepath.Dir(currentPath)
		if parentPath == currentPath {
			return "", fmt.Errorf("no .scanseal directory found")
		}
		currentPath = parentPath
	}
}

func GetConfigPath(projectDir string) string {
	return filepath.Join(projectDir, ConfigFileName)
}

func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func SaveConfig(config *Config, configPath string) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, DefaultConfigPerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadConfig loads configuration using the configured options
func (cm *ConfigManager) LoadConfig() (*Config, string, error) {
	// Use explicit path if provided
	if cm.opts.ConfigPath != "" {
		if _, err := os.Stat(cm.opts.ConfigPath); os.IsNotExist(err) {
			if !cm.opts.CreateIfMissing {
				return nil, "", fmt.Errorf("config file not found: %s", cm.opts.ConfigPath)
			}
			defaultConfig := DefaultConfig()
			if err := SaveConfig(defaultConfig, cm.opts.ConfigPath); err != nil {
				return nil, "", fmt.Errorf("failed to create default config: %w", err)
			}
			return defaultConfig, cm.opts.ConfigPath, nil
		}
		config, err := LoadConfig(cm.opts.ConfigPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", cm.opts.ConfigPath, err)
		}
		return config, cm.opts.ConfigPath, nil
	}

	// Auto-discover from working directory
	wd := cm.opts.WorkingDir
	if wd == "" {
		var err error
		wd, err = os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	projectDir, err := FindProjectDirectory(wd)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find .scanseal directory: %w", err)
	}

	configPath := GetConfigPath(projectDir)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		defaultConfig := DefaultConfig()
		if !cm.opts.CreateIfMissing {
			return defaultConfig, configPath, nil
		}
		if err := SaveConfig(defaultConfig, configPath); err != nil {
			return nil, "", fmt.Errorf("failed to create default config: %w", err)
		}
		return defaultConfig, configPath, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}

	return config, configPath, nil
}
