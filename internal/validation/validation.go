// Package validation provides input validation for piggyfactory.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/mod/semver"
)

// Solidity identifiers: letters, digits, $ and _, not starting with a digit
var identifierRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Future IDs are "<module>#<name>" or a bare identifier
var futureIDRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(#[A-Za-z_$][A-Za-z0-9_$.]*)?$`)

// ValidateContractName validates a contract name as it appears in build artifacts
func ValidateContractName(name string) error {
	if name == "" {
		return errors.New("contract name cannot be empty")
	}
	if len(name) > 128 {
		return errors.New("contract name too long (max 128 chars)")
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid contract name %q: must be a Solidity identifier", name)
	}
	return nil
}

// ValidateModuleID validates an ignition module ID
func ValidateModuleID(id string) error {
	if id == "" {
		return errors.New("module ID cannot be empty")
	}
	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid module ID %q: must be an identifier", id)
	}
	return nil
}

// ValidateFutureID validates a future ID
func ValidateFutureID(id string) error {
	if !futureIDRegex.MatchString(id) {
		return fmt.Errorf("invalid future ID %q", id)
	}
	return nil
}

// ValidateAddress validates an Ethereum address. Mixed-case addresses must carry a valid EIP-55 checksum.
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
	body := addr[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if common.HexToAddress(addr).Hex() != addr {
			return errors.New("invalid address: bad EIP-55 checksum")
		}
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

// NormalizeCompilerVersion turns a solc version such as "0.8.28+commit.7893614a"
// or "v0.8.20" into the "vX.Y.Z" form the semver package expects.
func NormalizeCompilerVersion(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexByte(v, '+'); i >= 0 {
		v = v[:i]
	}
	return "v" + v
}

// CompilerAtLeast reports whether version >= minimum. An empty minimum always passes.
func CompilerAtLeast(version, minimum string) (bool, error) {
	if minimum == "" {
		return true, nil
	}
	min := NormalizeCompilerVersion(minimum)
	if !semver.IsValid(min) {
		return false, fmt.Errorf("invalid minimum compiler version %q", minimum)
	}
	if version == "" {
		return false, errors.New("artifact does not record a compiler version")
	}
	v := NormalizeCompilerVersion(version)
	if !semver.IsValid(v) {
		return false, fmt.Errorf("invalid compiler version %q", version)
	}
	return semver.Compare(v, min) >= 0, nil
}
