package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the batch tool configuration.
type Config struct {
	Account   AccountConfig   `yaml:"account"`
	Batch     BatchConfig     `yaml:"batch"`
	Emulator  EmulatorConfig  `yaml:"emulator"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AccountConfig holds the target store account. When both Name and
// Endpoint are empty the tool runs against the in-process emulator.
type AccountConfig struct {
	Name             string `yaml:"name"`
	Endpoint         string `yaml:"endpoint"` // overrides the endpoint derived from Name
	Database         string `yaml:"database"`
	Container        string `yaml:"container"`
	PartitionKeyPath string `yaml:"partition_key_path"`
	AccessKey        string `yaml:"access_key"` // empty = AAD via DefaultAzureCredential
}

// Host returns the account endpoint URL.
func (a AccountConfig) Host() string {
	if a.Endpoint != "" {
		return a.Endpoint
	}
	return fmt.Sprintf("https://%s.documents.azure.com:443/", a.Name)
}

// UseEmulator reports whether no real account is configured.
func (a AccountConfig) UseEmulator() bool {
	return a.Name == "" && a.Endpoint == ""
}

// BatchConfig holds client-side batch execution settings.
type BatchConfig struct {
	ExecutionWindowSec int `yaml:"execution_window_sec"`
}

// Window returns the execution window as a duration.
func (b BatchConfig) Window() time.Duration {
	return time.Duration(b.ExecutionWindowSec) * time.Second
}

// wellKnownEmulatorKey is the fixed key the official local emulator
// ships with; it is public and grants no access to real accounts.
const wellKnownEmulatorKey = "C2y6yDjf5/R+ob0N8A7Cgv30VRDJIWEHLM+4QDU5DE2nQ9nDuVTqobD4b8mGGyPMbIZnqyMsEcaGQy67XIw/Jw=="

// EmulatorConfig holds the in-process emulator settings.
type EmulatorConfig struct {
	MasterKey          string `yaml:"master_key"`
	ExecutionWindowSec int    `yaml:"execution_window_sec"`
}

// Window returns the server-side execution window as a duration.
func (e EmulatorConfig) Window() time.Duration {
	return time.Duration(e.ExecutionWindowSec) * time.Second
}

// TelemetryConfig holds tracing settings.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"` // OTLP HTTP collector, host:port; empty = console only
	Insecure     bool    `yaml:"insecure"`
	Console      bool    `yaml:"console"` // mirror spans to stdout
	SampleRatio  float64 `yaml:"sample_ratio"`
	ServiceName  string  `yaml:"service_name"`
	InstanceName string  `yaml:"instance_name"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// Load reads configuration from a YAML file by environment name (local,
// prod). A .env file in the working directory is applied to the process
// environment first, so ${VAR} references in the YAML can come from it.
func Load(env string) (Config, error) {
	_ = godotenv.Load() // missing .env is fine

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Account.Database == "" {
		c.Account.Database = "demodb"
	}
	if c.Account.Container == "" {
		c.Account.Container = "democontainer"
	}
	if c.Account.PartitionKeyPath == "" {
		c.Account.PartitionKeyPath = "/partitionKey"
	}
	if c.Batch.ExecutionWindowSec <= 0 {
		c.Batch.ExecutionWindowSec = 5
	}
	if c.Emulator.MasterKey == "" {
		c.Emulator.MasterKey = wellKnownEmulatorKey
	}
	if c.Emulator.ExecutionWindowSec <= 0 {
		c.Emulator.ExecutionWindowSec = 5
	}
	if c.Telemetry.SampleRatio <= 0 {
		c.Telemetry.SampleRatio = 1.0
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "cosmosbatch"
	}
	if c.Telemetry.InstanceName == "" {
		if host, err := os.Hostname(); err == nil {
			c.Telemetry.InstanceName = host
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Account.PartitionKeyPath, "/") {
		return fmt.Errorf("account.partition_key_path must start with /, got %q", c.Account.PartitionKeyPath)
	}
	if c.Account.Endpoint != "" &&
		!strings.HasPrefix(c.Account.Endpoint, "http://") &&
		!strings.HasPrefix(c.Account.Endpoint, "https://") {
		return fmt.Errorf("account.endpoint must be an http(s) URL, got %q", c.Account.Endpoint)
	}
	if c.Account.UseEmulator() && c.Account.AccessKey != "" {
		return fmt.Errorf("account.access_key is set but no account name or endpoint is configured")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1], got %g", c.Telemetry.SampleRatio)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
