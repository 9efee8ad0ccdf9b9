package evm

import (
	"bytes"
	"encoding/binary"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
)

// Match types returned by CompareBytecode
const (
	MatchFull    = "full"
	MatchPartial = "partial"
	MatchNone    = "none"
)

// CBOR metadata marker (Solidity >=0.6.0) - "ipfs" in CBOR
var metadataMarker = []byte{0xa2, 0x64, 0x69, 0x70, 0x66, 0x73}

// Library placeholder pattern: __$<34 hex chars>$__
var libraryPlaceholder = regexp.MustCompile(`__\$[a-f0-9]{34}\$__`)

// BytecodeMatch is the result of comparing on-chain code to an artifact
type BytecodeMatch struct {
	Match   bool
	Type    string // "full", "partial", "none"
	Message string
}

// StripMetadata removes the CBOR metadata solc appends to runtime bytecode.
// The last two bytes hold the big-endian length of the CBOR map.
func StripMetadata(bytecode []byte) []byte {
	if n := len(bytecode); n > 2 {
		cborLen := int(binary.BigEndian.Uint16(bytecode[n-2:]))
		start := n - 2 - cborLen
		if cborLen > 0 && start >= 0 && bytecode[start]&0xf0 == 0xa0 {
			return bytecode[:start]
		}
	}

	// Fall back to the last "ipfs" map marker
	if idx := bytes.LastIndex(bytecode, metadataMarker); idx != -1 {
		return bytecode[:idx]
	}
	return bytecode
}

// CompareBytecode compares deployed bytecode to the artifact's deployed
// bytecode. The artifact may be raw bytes or 0x-prefixed hex.
func CompareBytecode(deployed, artifact []byte) *BytecodeMatch {
	if len(artifact) > 2 && artifact[0] == '0' && artifact[1] == 'x' {
		artifact = common.FromHex(string(artifact))
	}

	if len(deployed) == 0 {
		return &BytecodeMatch{
			Type:    MatchNone,
			Message: "No code at address",
		}
	}

	if bytes.Equal(deployed, artifact) {
		return &BytecodeMatch{
			Match:   true,
			Type:    MatchFull,
			Message: "Bytecode matches exactly including metadata",
		}
	}

	if bytes.Equal(StripMetadata(deployed), StripMetadata(artifact)) {
		return &BytecodeMatch{
			Match:   true,
			Type:    MatchPartial,
			Message: "Executable code matches, metadata differs (different source paths, comments, or build environment)",
		}
	}

	return &BytecodeMatch{
		Type:    MatchNone,
		Message: "Bytecode does not match (immutable variables also cause this)",
	}
}

// HasLibraryPlaceholders checks if bytecode contains unlinked library placeholders
func HasLibraryPlaceholders(bytecode string) bool {
	return libraryPlaceholder.MatchString(bytecode)
}
