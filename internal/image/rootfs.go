package image

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/evoker-industries/rune/internal/digest"
)

// BlobReader is implemented by the registry blob pool; resolving a rootfs
// needs to read layer tar content back out, the read-side counterpart to
// BlobRemover.
type BlobReader interface {
	GetBlob(d digest.Digest) ([]byte, error)
}

// ResolveRootfs materializes ref's layers, in order, into a directory under
// cacheDir and returns that directory — the runtime.Runtime's
// RootfsResolver hook. Extraction is idempotent: a directory for the image's
// id that carries the .rune-rootfs-complete marker is reused as-is; one
// without the marker is cleared and extracted again.
func (s *Store) ResolveRootfs(ref string, blobs BlobReader, cacheDir string) (string, error) {
	img, ok := s.Get(ref)
	if !ok {
		return "", fmt.Errorf("no such image: %s", ref)
	}

	dest := filepath.Join(cacheDir, img.ID)
	if _, err := os.Stat(filepath.Join(dest, ".rune-rootfs-complete")); err == nil {
		return dest, nil
	}

	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("clear stale rootfs %s: %w", dest, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create rootfs dir %s: %w", dest, err)
	}

	for _, diffID := range img.Spec.RootFS.DiffIDs {
		d := digest.Digest(diffID)
		layer, err := blobs.GetBlob(d)
		if err != nil {
			return "", fmt.Errorf("read layer %s: %w", d, err)
		}
		if err := extractTar(layer, dest); err != nil {
			return "", fmt.Errorf("extract layer %s: %w", d, err)
		}
	}

	marker, err := os.Create(filepath.Join(dest, ".rune-rootfs-complete"))
	if err != nil {
		return "", fmt.Errorf("mark rootfs complete: %w", err)
	}
	marker.Close()

	return dest, nil
}

// extractTar writes a layer's tar stream onto dest, applying later layers
// on top of earlier ones (later entries simply overwrite files at the same
// path, the same semantics an overlay filesystem gives for free but which
// a plain directory tree must apply by extraction order).
func extractTar(layer []byte, dest string) error {
	tr := tar.NewReader(bytes.NewReader(layer))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(dest, hdr.Name)
		if !withinDir(dest, target) {
			return fmt.Errorf("tar entry escapes rootfs: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.CopyN(f, tr, hdr.Size); err != nil && err != io.EOF {
				f.Close()
				return err
			}
			f.Close()
		case tar.TypeSymlink:
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}
}

func withinDir(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
