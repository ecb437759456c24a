package domain

import (
	"strings"

	"github.com/mr-tron/base58"
)

// solanaAddressLen is the decoded length of an ed25519 public key.
const solanaAddressLen = 32

// NormalizeAddress trims surrounding whitespace. Addresses are case-sensitive.
func NormalizeAddress(s string) string {
	return strings.TrimSpace(s)
}

// IsSolanaAddress reports whether s decodes as a 32-byte base58 public key.
func IsSolanaAddress(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(decoded) == solanaAddressLen
}
