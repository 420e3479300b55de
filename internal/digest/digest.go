// Package digest computes and renders the content-addressing digests used
// throughout Rune: image configs, layers, blobs and manifests are all named
// by the SHA-256 digest of their canonical byte form.
package digest

import (
	"bytes"
	"io"

	"github.com/opencontainers/go-digest"
)

// Algorithm is the only digest algorithm Rune supports.
const Algorithm = digest.SHA256

// Digest re-exports go-digest's type so callers never need to import
// opencontainers/go-digest directly just to name the type.
type Digest = digest.Digest

// Calculate returns the canonical "sha256:<hex>" digest of b.
func Calculate(b []byte) digest.Digest {
	return Algorithm.FromBytes(b)
}

// CalculateString is a convenience wrapper for string payloads (commands,
// instruction debug forms, and the like).
func CalculateString(s string) digest.Digest {
	return Algorithm.FromString(s)
}

// CalculateReader streams r through the digester rather than buffering it,
// for layer content read from disk.
func CalculateReader(r io.Reader) (digest.Digest, error) {
	digester := Algorithm.Digester()
	if _, err := io.Copy(digester.Hash(), r); err != nil {
		return "", err
	}
	return digester.Digest(), nil
}

// Short renders the first 12 hex characters after the "sha256:" prefix —
// the short id used for image ids and layer ids.
func Short(d digest.Digest) string {
	hex := d.Encoded()
	if len(hex) < 12 {
		return hex
	}
	return hex[:12]
}

// Valid reports whether s has the exact canonical shape: "sha256:" followed
// by 64 lowercase hex characters (71 characters total).
func Valid(s string) bool {
	d := digest.Digest(s)
	if d.Algorithm() != Algorithm {
		return false
	}
	return d.Validate() == nil && len(string(d)) == 71
}

// Equal reports byte equality between two digest strings.
func Equal(a, b digest.Digest) bool {
	return bytes.Equal([]byte(a.String()), []byte(b.String()))
}
