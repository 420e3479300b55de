package builder

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/evoker-industries/rune/internal/digest"
)

// RegistryResolver implements RemoteResolver against a real OCI registry via
// go-containerregistry — the builder's one point of network I/O (§4.D
// expansion).
type RegistryResolver struct{}

func (RegistryResolver) ResolveDigest(ref string) (digest.Digest, error) {
	r, err := name.ParseReference(ref)
	if err != nil {
		return "", fmt.Errorf("parse image reference %q: %w", ref, err)
	}

	img, err := remote.Image(r)
	if err != nil {
		return "", fmt.Errorf("resolve remote image %q: %w", ref, err)
	}

	h, err := img.Digest()
	if err != nil {
		return "", fmt.Errorf("read manifest digest for %q: %w", ref, err)
	}

	return digest.Digest(h.Algorithm + ":" + h.Hex), nil
}
