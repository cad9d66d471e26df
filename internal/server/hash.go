// hash.go - SHA-256 of stored files, attached to mirrored objects.
package server

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// sha256Reader hashes everything r yields and returns the hex digest and
// byte count.
func sha256Reader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
