package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pendergraft/posdeploy/internal/validation"
)

// Configuration errors. They are raised before any on-chain action.
var (
	ErrUnknownNetwork    = errors.New("unknown network")
	ErrMissingSigningKey = errors.New("missing signing key")
	ErrMissingRPCURL     = errors.New("missing RPC endpoint")
)

// Environment variable names.
const (
	EnvPrivateKey      = "PRIVATE_KEY"
	EnvTestnetURL      = "PROVIDER_TESTNET_URL"
	EnvMainnetURL      = "PROVIDER_MAINNET_URL"
	EnvEtherscanAPIKey = "ETHERSCAN_API_KEY"
	EnvEtherscanAPIURL = "ETHERSCAN_API_URL"
)

// DotEnvFile is read from the working directory when present.
// Process environment values take precedence over it.
const DotEnvFile = ".env"

// Config holds all configuration for a deployment run.
// It is built once at process start and never mutated afterwards.
type Config struct {
	Deploy      DeployConfig
	Credentials CredentialsConfig
	Providers   ProvidersConfig
	Explorers   ExplorersConfig
	Etherscan   EtherscanConfig
	Logging     LoggingConfig
	Metrics     MetricsConfig
	Status      StatusConfig
}

// DeployConfig holds the deploy pipeline settings
type DeployConfig struct {
	Network         string
	Contract        string
	ArtifactsDir    string
	CompilerVersion string        // pinned solc version, e.g. "0.8.19"
	PollInterval    int           // seconds between confirmation polls
	ConfirmTimeout  time.Duration // 0 waits forever
	CheckBytecode   bool
}

// CredentialsConfig holds the signing credential.
type CredentialsConfig struct {
	PrivateKey string
}

// ProvidersConfig holds the RPC endpoint per network
type ProvidersConfig struct {
	TestnetURL string
	MainnetURL string
}

// ExplorersConfig holds block explorer base URLs used for display links
type ExplorersConfig struct {
	TestnetURL string
	MainnetURL string
}

// EtherscanConfig holds verification service settings
type EtherscanConfig struct {
	APIKey         string
	APIURL         string
	PollInterval   int // seconds between checkverifystatus polls
	MaxPolls       int
	RequestsPerSec float64 // request budget against the API
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"; empty picks based on the terminal
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool
}

// StatusConfig holds the optional status server settings
type StatusConfig struct {
	Addr string // empty disables the server
}

// Default returns the built-in configuration before any file or environment
// overrides are applied.
func Default() *Config {
	return &Config{
		Deploy: DeployConfig{
			Network:       NetworkGoerli,
			Contract:      "Pos25",
			ArtifactsDir:  ".",
			PollInterval:  4,
			CheckBytecode: true,
		},
		Explorers: ExplorersConfig{
			TestnetURL: "https://goerli.etherscan.io",
			MainnetURL: "https://etherscan.io",
		},
		Etherscan: EtherscanConfig{
			APIURL:         "https://api.etherscan.io/v2/api",
			PollInterval:   5,
			MaxPolls:       10,
			RequestsPerSec: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the project file (if any), then from a
// .env file in the working directory, then from the process environment.
// Later sources win. An empty projectPath searches the working directory
// for the default names.
func Load(projectPath string) (*Config, error) {
	cfg := Default()

	project, _, err := LoadProject(projectPath)
	if err != nil && (projectPath != "" || !errors.Is(err, os.ErrNotExist)) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}
	if project != nil {
		project.apply(cfg)
	}

	env, err := loadEnv(DotEnvFile)
	if err != nil {
		return nil, err
	}

	cfg.Deploy.Network = env.get("POSDEPLOY_NETWORK", cfg.Deploy.Network)
	cfg.Deploy.Contract = env.get("POSDEPLOY_CONTRACT", cfg.Deploy.Contract)
	cfg.Deploy.ArtifactsDir = env.get("POSDEPLOY_ARTIFACTS_DIR", cfg.Deploy.ArtifactsDir)
	cfg.Deploy.CompilerVersion = env.get("POSDEPLOY_COMPILER_VERSION", cfg.Deploy.CompilerVersion)
	cfg.Deploy.PollInterval = env.getInt("POSDEPLOY_POLL_INTERVAL", cfg.Deploy.PollInterval)
	cfg.Deploy.ConfirmTimeout = env.getDuration("POSDEPLOY_CONFIRM_TIMEOUT", cfg.Deploy.ConfirmTimeout)
	cfg.Deploy.CheckBytecode = env.getBool("POSDEPLOY_CHECK_BYTECODE", cfg.Deploy.CheckBytecode)

	cfg.Credentials.PrivateKey = env.get(EnvPrivateKey, cfg.Credentials.PrivateKey)

	cfg.Providers.TestnetURL = env.get(EnvTestnetURL, cfg.Providers.TestnetURL)
	cfg.Providers.MainnetURL = env.get(EnvMainnetURL, cfg.Providers.MainnetURL)

	cfg.Etherscan.APIKey = env.get(EnvEtherscanAPIKey, cfg.Etherscan.APIKey)
	cfg.Etherscan.APIURL = env.get(EnvEtherscanAPIURL, cfg.Etherscan.APIURL)
	cfg.Etherscan.PollInterval = env.getInt("ETHERSCAN_POLL_INTERVAL", cfg.Etherscan.PollInterval)
	cfg.Etherscan.MaxPolls = env.getInt("ETHERSCAN_MAX_POLLS", cfg.Etherscan.MaxPolls)
	cfg.Etherscan.RequestsPerSec = env.getFloat("ETHERSCAN_RATE_LIMIT", cfg.Etherscan.RequestsPerSec)

	cfg.Logging.Level = env.get("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = env.get("LOG_FORMAT", cfg.Logging.Format)

	cfg.Metrics.Enabled = env.getBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Status.Addr = env.get("POSDEPLOY_STATUS_ADDR", cfg.Status.Addr)

	return cfg, nil
}

// Validate checks the settings a deploy run cannot proceed without.
// Errors name the missing field so the operator knows what to set.
func (c *Config) Validate() error {
	if !IsKnownNetwork(c.Deploy.Network) {
		return fmt.Errorf("%w: %q (supported: %s)", ErrUnknownNetwork, c.Deploy.Network, strings.Join(Networks(), ", "))
	}
	if strings.TrimSpace(c.Deploy.Contract) == "" {
		return errors.New("contract name is empty (set POSDEPLOY_CONTRACT or --contract)")
	}
	if c.Deploy.CompilerVersion != "" {
		if err := validation.ValidateCompilerVersion(c.Deploy.CompilerVersion); err != nil {
			return fmt.Errorf("compiler_version: %w", err)
		}
	}
	if c.Deploy.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.Deploy.ConfirmTimeout < 0 {
		return errors.New("confirm timeout cannot be negative")
	}
	if c.Deploy.ConfirmTimeout > 0 && c.Deploy.ConfirmTimeout < time.Second {
		return fmt.Errorf("confirm timeout %s is below 1s (use 0 to wait forever)", c.Deploy.ConfirmTimeout)
	}
	if c.Etherscan.RequestsPerSec <= 0 {
		return errors.New("etherscan rate limit must be positive")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: must be text or json", c.Logging.Format)
	}

	profile, _ := NewResolver(c).Network(c.Deploy.Network)
	return profile.Validate()
}

// envSource layers the process environment over values read from a .env file
type envSource struct {
	file map[string]string
}

// loadEnv reads path with godotenv. A missing file yields an empty layer.
func loadEnv(path string) (envSource, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return envSource{}, nil
		}
		return envSource{}, fmt.Errorf("loading %s: %w", path, err)
	}
	return envSource{file: values}, nil
}

func (e envSource) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return e.file[key]
}

func (e envSource) get(key, defaultValue string) string {
	if value := e.lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func (e envSource) getInt(key string, defaultValue int) int {
	if value := e.lookup(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func (e envSource) getFloat(key string, defaultValue float64) float64 {
	if value := e.lookup(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getDuration accepts a Go duration ("90s", "10m") or whole seconds
func (e envSource) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := e.lookup(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func (e envSource) getBool(key string, defaultValue bool) bool {
	if value := e.lookup(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}
