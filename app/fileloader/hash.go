package fileloader

import (
	"encoding/hex"
	"fmt"

	"github.com/minio/highwayhash"
)

// defaultHashKey is used when no instance key is configured. Dataset ids only
// need to be stable, not secret.
var defaultHashKey = []byte("brokereye-dataset-fingerprint-01")

// HashBytes returns the hex highwayhash-256 of data under key.
func HashBytes(data []byte, key []byte) (string, error) {
	h, err := highwayhash.New(key)
	if err != nil {
		return "", fmt.Errorf("failed to create hash: %w", err)
	}
	if _, err := h.Write(data); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashParts fingerprints an ordered list of (name, content hash) pairs, so
// that renaming a file inside a directory changes the id.
func hashParts(parts []sourcePart, key []byte) (string, error) {
	h, err := highwayhash.New(key)
	if err != nil {
		return "", fmt.Errorf("failed to create hash: %w", err)
	}
	for _, p := range parts {
		h.Write([]byte(p.name))
		h.Write([]byte{0})
		h.Write([]byte(p.hash))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
