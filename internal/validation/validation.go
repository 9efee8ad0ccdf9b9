// Package validation provides input validation for posdeploy.
package validation

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/mod/semver"
)

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	if !common.IsHexAddress(addr) {
		return errors.New("invalid address: contains non-hex characters")
	}
	if common.HexToAddress(addr) == (common.Address{}) {
		return errors.New("invalid address: zero address")
	}
	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID int64) error {
	if chainID <= 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}

// ValidatePrivateKey checks that key looks like a hex-encoded secp256k1
// private key. The "0x" prefix is optional.
func ValidatePrivateKey(key string) error {
	k := strings.TrimPrefix(key, "0x")
	if k == "" {
		return errors.New("private key is empty")
	}
	if len(k) != 64 {
		return errors.New("invalid private key length: must be 64 hex characters")
	}
	for _, c := range k {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid private key: contains non-hex characters")
		}
	}
	return nil
}

// ValidateCompilerVersion validates a solc version such as "0.8.19",
// "v0.8.19" or the long form "0.8.19+commit.7dd6d404".
func ValidateCompilerVersion(v string) error {
	normalized := "v" + NormalizeCompilerVersion(v)
	if normalized == "v" {
		return errors.New("compiler version cannot be empty")
	}
	if !semver.IsValid(normalized) {
		return errors.New("invalid compiler version: must be in format X.Y.Z")
	}
	mainPart := strings.SplitN(strings.SplitN(normalized[1:], "+", 2)[0], "-", 2)[0]
	if strings.Count(mainPart, ".") < 2 {
		return errors.New("invalid compiler version: must be in format X.Y.Z (major.minor.patch)")
	}
	return nil
}

// NormalizeCompilerVersion strips a leading 'v'
func NormalizeCompilerVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// CompilerVersionMatches reports whether the pinned version and the version
// recorded in an artifact name the same release. Build metadata
// (+commit.xxxx) is ignored.
func CompilerVersionMatches(pinned, actual string) bool {
	p := "v" + NormalizeCompilerVersion(pinned)
	a := "v" + NormalizeCompilerVersion(actual)
	if !semver.IsValid(p) || !semver.IsValid(a) {
		return false
	}
	return semver.Compare(p, a) == 0
}
