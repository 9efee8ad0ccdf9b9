package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Supported network names.
const (
	NetworkGoerli  = "goerli"
	NetworkMainnet = "mainnet"
)

// NetworkProfile holds the connection parameters for one target network.
type NetworkProfile struct {
	Name        string
	ChainID     int64
	RPCURL      string
	SigningKey  string // hex-encoded private key, never logged
	ExplorerURL string

	rpcEnv string
}

// LogValue keeps the signing key out of structured logs.
func (p NetworkProfile) LogValue() slog.Value {
	key := "(not set)"
	if p.SigningKey != "" {
		key = "(redacted)"
	}
	return slog.GroupValue(
		slog.String("name", p.Name),
		slog.Int64("chain_id", p.ChainID),
		slog.String("rpc_url", p.RPCURL),
		slog.String("signing_key", key),
	)
}

// Validate checks that the profile can be used to sign and send.
// It checks presence only; key format problems surface when signing.
func (p NetworkProfile) Validate() error {
	if p.SigningKey == "" {
		return fmt.Errorf("%w: set %s", ErrMissingSigningKey, EnvPrivateKey)
	}
	if p.RPCURL == "" {
		return fmt.Errorf("%w for %s: set %s", ErrMissingRPCURL, p.Name, p.rpcEnv)
	}
	return nil
}

// AddressURL returns the explorer page for an address on this network.
func (p NetworkProfile) AddressURL(address string) string {
	if p.ExplorerURL == "" {
		return ""
	}
	return strings.TrimSuffix(p.ExplorerURL, "/") + "/address/" + address
}

// VerificationCredential is the verification service API credential.
// An empty APIKey disables verification.
type VerificationCredential struct {
	APIKey string
}

// Present reports whether an API key was configured.
func (v VerificationCredential) Present() bool {
	return strings.TrimSpace(v.APIKey) != ""
}

// Resolver maps network names to profiles using a loaded Config.
// It performs no validation and has no side effects.
type Resolver struct {
	cfg *Config
}

// NewResolver creates a resolver over cfg.
func NewResolver(cfg *Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Network returns the profile for name. The second result is false when
// name is not one of Networks().
func (r *Resolver) Network(name string) (NetworkProfile, bool) {
	switch name {
	case NetworkGoerli:
		return NetworkProfile{
			Name:        NetworkGoerli,
			ChainID:     5,
			RPCURL:      r.cfg.Providers.TestnetURL,
			SigningKey:  r.cfg.Credentials.PrivateKey,
			ExplorerURL: r.cfg.Explorers.TestnetURL,
			rpcEnv:      EnvTestnetURL,
		}, true
	case NetworkMainnet:
		return NetworkProfile{
			Name:        NetworkMainnet,
			ChainID:     1,
			RPCURL:      r.cfg.Providers.MainnetURL,
			SigningKey:  r.cfg.Credentials.PrivateKey,
			ExplorerURL: r.cfg.Explorers.MainnetURL,
			rpcEnv:      EnvMainnetURL,
		}, true
	}
	return NetworkProfile{Name: name}, false
}

// Verification returns the verification service credential.
func (r *Resolver) Verification() VerificationCredential {
	return VerificationCredential{APIKey: r.cfg.Etherscan.APIKey}
}

// Networks returns the supported network names.
func Networks() []string {
	return []string{NetworkGoerli, NetworkMainnet}
}

// IsKnownNetwork reports whether name is a supported network.
func IsKnownNetwork(name string) bool {
	for _, n := range Networks() {
		if n == name {
			return true
		}
	}
	return false
}
