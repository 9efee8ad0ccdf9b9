package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ProjectFiles is the search order for project config files
var ProjectFiles = []string{"posdeploy.toml", ".posdeploy.toml"}

// ProjectConfig is the project-level TOML configuration.
// Secrets (private key, API key) are only read from the environment.
type ProjectConfig struct {
	Network         string                 `toml:"network,omitempty"`
	Contract        string                 `toml:"contract,omitempty"`
	ArtifactsDir    string                 `toml:"artifacts_dir,omitempty"`
	CompilerVersion string                 `toml:"compiler_version,omitempty"`
	PollInterval    int                    `toml:"poll_interval,omitempty"`
	ConfirmTimeout  int                    `toml:"confirm_timeout,omitempty"` // seconds
	CheckBytecode   *bool                  `toml:"check_bytecode,omitempty"`
	Networks        map[string]NetworkTOML `toml:"networks,omitempty"`
	Etherscan       EtherscanTOML          `toml:"etherscan,omitempty"`
}

// NetworkTOML overrides endpoints of a built-in network
type NetworkTOML struct {
	RPCURL      string `toml:"rpc_url,omitempty"`
	ExplorerURL string `toml:"explorer_url,omitempty"`
}

// EtherscanTOML holds verification service overrides
type EtherscanTOML struct {
	APIURL       string  `toml:"api_url,omitempty"`
	PollInterval int     `toml:"poll_interval,omitempty"`
	MaxPolls     int     `toml:"max_polls,omitempty"`
	RateLimit    float64 `toml:"requests_per_sec,omitempty"`
}

// LoadProject loads the project config. With an empty path it searches
// ProjectFiles in the working directory and returns os.ErrNotExist when none
// is found. It returns the path the config was read from.
func LoadProject(path string) (*ProjectConfig, string, error) {
	if path != "" {
		p, err := loadProjectFromPath(path)
		return p, path, err
	}

	for _, name := range ProjectFiles {
		if _, err := os.Stat(name); err == nil {
			p, err := loadProjectFromPath(name)
			return p, name, err
		}
	}
	return nil, "", os.ErrNotExist
}

func loadProjectFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var project ProjectConfig
	md, err := toml.Decode(string(data), &project)
	if err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}

	for name := range project.Networks {
		if !IsKnownNetwork(name) {
			return nil, fmt.Errorf("%w: [networks.%s] in %s", ErrUnknownNetwork, name, path)
		}
	}

	return &project, nil
}

// apply overlays non-zero project values onto cfg
func (p *ProjectConfig) apply(cfg *Config) {
	if p.Network != "" {
		cfg.Deploy.Network = p.Network
	}
	if p.Contract != "" {
		cfg.Deploy.Contract = p.Contract
	}
	if p.ArtifactsDir != "" {
		cfg.Deploy.ArtifactsDir = p.ArtifactsDir
	}
	if p.CompilerVersion != "" {
		cfg.Deploy.CompilerVersion = p.CompilerVersion
	}
	if p.PollInterval > 0 {
		cfg.Deploy.PollInterval = p.PollInterval
	}
	if p.ConfirmTimeout > 0 {
		cfg.Deploy.ConfirmTimeout = time.Duration(p.ConfirmTimeout) * time.Second
	}
	if p.CheckBytecode != nil {
		cfg.Deploy.CheckBytecode = *p.CheckBytecode
	}

	if n, ok := p.Networks[NetworkGoerli]; ok {
		if n.RPCURL != "" {
			cfg.Providers.TestnetURL = n.RPCURL
		}
		if n.ExplorerURL != "" {
			cfg.Explorers.TestnetURL = n.ExplorerURL
		}
	}
	if n, ok := p.Networks[NetworkMainnet]; ok {
		if n.RPCURL != "" {
			cfg.Providers.MainnetURL = n.RPCURL
		}
		if n.ExplorerURL != "" {
			cfg.Explorers.MainnetURL = n.ExplorerURL
		}
	}

	if p.Etherscan.APIURL != "" {
		cfg.Etherscan.APIURL = p.Etherscan.APIURL
	}
	if p.Etherscan.PollInterval > 0 {
		cfg.Etherscan.PollInterval = p.Etherscan.PollInterval
	}
	if p.Etherscan.MaxPolls > 0 {
		cfg.Etherscan.MaxPolls = p.Etherscan.MaxPolls
	}
	if p.Etherscan.RateLimit > 0 {
		cfg.Etherscan.RequestsPerSec = p.Etherscan.RateLimit
	}
}
