package catalog

import (
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
)

// Hash128 identifies one build of a bundle's bytes: the first 16 bytes of
// the BLAKE3-256 digest of the bundle file. Equal hashes imply identical
// bytes.
type Hash128 [16]byte

// HashBytes computes the content hash of a whole bundle file.
func HashBytes(data []byte) Hash128 {
	sum := blake3.Sum256(data)
	var h Hash128
	copy(h[:], sum[:len(h)])
	return h
}

// NewHasher returns a streaming hasher; pass its Sum(nil) to FromDigest.
func NewHasher() hash.Hash {
	return blake3.New()
}

// FromDigest truncates a full BLAKE3 digest to a Hash128.
func FromDigest(sum []byte) (Hash128, error) {
	var h Hash128
	if len(sum) < len(h) {
		return h, fmt.Errorf("digest too short: %d bytes", len(sum))
	}
	copy(h[:], sum[:len(h)])
	return h, nil
}

// ParseHash128 parses the 32-character lowercase hex form produced by String.
func ParseHash128(s string) (Hash128, error) {
	var h Hash128
	if len(s) != hex.EncodedLen(len(h)) {
		return h, fmt.Errorf("invalid hash length %d", len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return h, nil
}

func (h Hash128) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash was never set.
func (h Hash128) IsZero() bool {
	return h == Hash128{}
}

// MarshalText renders the hash as hex for JSON diagnostics.
func (h Hash128) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText parses the hex form.
func (h *Hash128) UnmarshalText(text []byte) error {
	parsed, err := ParseHash128(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
