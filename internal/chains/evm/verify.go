package evm

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pendergraft/piggyfactory/internal/chains"
)

// Linking errors
var (
	ErrUnlinkedLibraries     = errors.New("bytecode has unlinked library placeholders")
	ErrInvalidLibraryAddress = errors.New("invalid library address")
)

// CBOR metadata marker (Solidity >=0.6.0) - "ipfs" in CBOR
var metadataMarker = []byte{0xa2, 0x64, 0x69, 0x70, 0x66, 0x73}

// Library placeholder pattern: __$<34 hex chars>$__
var libraryPlaceholder = regexp.MustCompile(`__\$[a-f0-9]{34}\$__`)

// StripMetadata removes the CBOR metadata appended to bytecode
func StripMetadata(bytecode []byte) []byte {
	idx := bytes.LastIndex(bytecode, metadataMarker)
	if idx == -1 {
		return bytecode
	}
	// The two bytes before the marker are the CBOR length prefix
	if idx >= 2 {
		return bytecode[:idx-2]
	}
	return bytecode
}

// LibraryPlaceholder returns the link placeholder solc emits for a fully
// qualified library name ("contracts/Math.sol:Math").
func LibraryPlaceholder(fullyQualifiedName string) string {
	h := crypto.Keccak256([]byte(fullyQualifiedName))
	return "__$" + hex.EncodeToString(h)[:34] + "$__"
}

// LinkLibraries substitutes library addresses into hex bytecode. Libraries
// are keyed by fully qualified name. The result keeps the input's 0x prefix.
func LinkLibraries(bytecodeHex string, libraries map[string]string) (string, error) {
	for name, addr := range libraries {
		if !common.IsHexAddress(addr) {
			return "", fmt.Errorf("%w for %s: %q", ErrInvalidLibraryAddress, name, addr)
		}
		addr = strings.ToLower(strings.TrimPrefix(addr, "0x"))
		bytecodeHex = strings.ReplaceAll(bytecodeHex, LibraryPlaceholder(name), addr)
	}
	if HasLibraryPlaceholders([]byte(bytecodeHex)) {
		return "", ErrUnlinkedLibraries
	}
	return bytecodeHex, nil
}

// CompareBytecode compares deployed bytecode to artifact bytecode. The artifact
// may be raw bytes or 0x-prefixed hex text. Libraries are linked into hex
// text before comparing.
func CompareBytecode(deployed, artifact []byte, libraries map[string]string) (*chains.VerifyResult, error) {
	if len(artifact) > 2 && artifact[0] == '0' && artifact[1] == 'x' {
		text := string(artifact)
		if len(libraries) > 0 && HasLibraryPlaceholders(artifact) {
			linked, err := LinkLibraries(text, libraries)
			if err != nil {
				return nil, fmt.Errorf("linking libraries: %w", err)
			}
			text = linked
		}
		if decoded, err := hex.DecodeString(text[2:]); err == nil {
			artifact = decoded
		}
	}

	if bytes.Equal(deployed, artifact) {
		return &chains.VerifyResult{
			Match:     true,
			MatchType: "full",
			Message:   "Bytecode matches exactly including metadata",
		}, nil
	}

	if bytes.Equal(StripMetadata(deployed), StripMetadata(artifact)) {
		return &chains.VerifyResult{
			Match:     true,
			MatchType: "partial",
			Message:   "Executable code matches, metadata differs (different source paths, comments, or build environment)",
		}, nil
	}

	return &chains.VerifyResult{
		Match:     false,
		MatchType: "none",
		Message:   "Bytecode does not match",
	}, nil
}

// HasLibraryPlaceholders checks if bytecode contains library placeholders
func HasLibraryPlaceholders(bytecode []byte) bool {
	return libraryPlaceholder.Match(bytecode)
}
