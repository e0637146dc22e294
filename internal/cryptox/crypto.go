// Package cryptox holds the digest and random helpers shared by the
// uploader and the reference server.
package cryptox

import (
	"crypto/rand"
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// NewHash returns a streaming BLAKE2b-256 hash.
func NewHash() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only possible with an oversized key
		panic(err)
	}
	return h
}

// HexSum finalizes h as lowercase hex.
func HexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint is the hex BLAKE2b-256 digest of data. A chunked upload sends
// the fingerprint of the whole file with its last chunk.
func Fingerprint(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RandomHex returns size random bytes encoded as hex, so the string is twice
// as long as size.
func RandomHex(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
