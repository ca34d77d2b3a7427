package persistence

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ComputeContentHash implements C8's contentHash per the Open Question
// resolved in DESIGN.md: blake2b-128 over title, summary, and text
// content joined by the unit separator, hex-encoded.
func ComputeContentHash(title, summary, textContent string) (string, error) {
	h, err := blake2b.New(16, nil)
	if err != nil {
		return "", err
	}
	h.Write([]byte(title))
	h.Write([]byte{0x1f})
	h.Write([]byte(summary))
	h.Write([]byte{0x1f})
	h.Write([]byte(textContent))
	return hex.EncodeToString(h.Sum(nil)), nil
}
