// Package storage implements the filesystem-backed OCI registry storage
// layer (component E): blobs by digest, manifests by revision/tag, and
// append-only upload files. Grounded on moby-moby's own
// distribution/registry_unit_test.go directory-tree-as-repository shape.
package storage

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evoker-industries/rune/internal/digest"
)

// Store is a filesystem-rooted registry storage backend. All persistent
// state is filesystem-backed (spec.md §5): operations are serialized by the
// filesystem, not an in-memory lock.
type Store struct {
	Root string
}

func New(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) blobPath(d digest.Digest) string {
	return filepath.Join(s.Root, "blobs", "sha256", d.Encoded())
}

func (s *Store) repoDir(name string) string {
	return filepath.Join(s.Root, "repositories", name)
}

func (s *Store) revisionDir(repo string, d digest.Digest) string {
	return filepath.Join(s.repoDir(repo), "_manifests", "revisions", "sha256", d.Encoded())
}

func (s *Store) tagCurrentLink(repo, tag string) string {
	return filepath.Join(s.repoDir(repo), "_manifests", "tags", tag, "current", "link")
}

func (s *Store) tagIndexDir(repo, tag string) string {
	return filepath.Join(s.repoDir(repo), "_manifests", "tags", tag, "index", "sha256")
}

func (s *Store) uploadDir(uuid string) string {
	return filepath.Join(s.Root, "uploads", uuid)
}

func (s *Store) uploadDataPath(uuid string) string {
	return filepath.Join(s.uploadDir(uuid), "data")
}

// --- Blobs ---

func (s *Store) PutBlob(data []byte) (digest.Digest, error) {
	d := digest.Calculate(data)
	path := s.blobPath(d)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", err
	}
	return d, nil
}

func (s *Store) GetBlob(d digest.Digest) ([]byte, error) {
	return os.ReadFile(s.blobPath(d))
}

func (s *Store) HasBlob(d digest.Digest) bool {
	_, err := os.Stat(s.blobPath(d))
	return err == nil
}

func (s *Store) DeleteBlob(d digest.Digest) error {
	return os.Remove(s.blobPath(d))
}

// RemoveBlob satisfies internal/image.BlobRemover.
func (s *Store) RemoveBlob(d digest.Digest) error {
	err := s.DeleteBlob(d)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// MountBlob verifies existence of the blob; blobs are global so no copy is
// needed (spec.md §4.E mount_blob is a no-op beyond this check).
func (s *Store) MountBlob(from, to string, d digest.Digest) error {
	if !s.HasBlob(d) {
		return fmt.Errorf("blob %s not found", d)
	}
	return nil
}

// --- Manifests ---

func isDigestRef(ref string) bool {
	return strings.HasPrefix(ref, "sha256:")
}

// PutManifest digests data, writes the revision, and — when ref is a tag —
// updates the tag's current link and index.
func (s *Store) PutManifest(repo, ref, contentType string, data []byte) (digest.Digest, error) {
	d := digest.Calculate(data)

	revDir := s.revisionDir(repo, d)
	if err := os.MkdirAll(revDir, 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(revDir, "data"), data, 0o640); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(revDir, "content-type"), []byte(contentType), 0o640); err != nil {
		return "", err
	}

	if !isDigestRef(ref) {
		linkPath := s.tagCurrentLink(repo, ref)
		if err := os.MkdirAll(filepath.Dir(linkPath), 0o750); err != nil {
			return "", err
		}
		if err := os.WriteFile(linkPath, []byte(d.String()), 0o640); err != nil {
			return "", err
		}

		indexDir := filepath.Join(s.tagIndexDir(repo, ref), d.Encoded())
		if err := os.MkdirAll(indexDir, 0o750); err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(indexDir, "link"), []byte(d.String()), 0o640); err != nil {
			return "", err
		}
	}

	return d, nil
}

// GetManifest resolves ref (tag or digest) and returns (contentType, bytes).
func (s *Store) GetManifest(repo, ref string) (string, []byte, error) {
	var d digest.Digest
	if isDigestRef(ref) {
		d = digest.Digest(ref)
	} else {
		linkBytes, err := os.ReadFile(s.tagCurrentLink(repo, ref))
		if err != nil {
			return "", nil, fmt.Errorf("tag %s: %w", ref, err)
		}
		d = digest.Digest(strings.TrimSpace(string(linkBytes)))
	}

	revDir := s.revisionDir(repo, d)
	data, err := os.ReadFile(filepath.Join(revDir, "data"))
	if err != nil {
		return "", nil, err
	}
	contentType, err := os.ReadFile(filepath.Join(revDir, "content-type"))
	if err != nil {
		contentType = []byte("")
	}
	return string(contentType), data, nil
}

// DeleteManifest removes the tag directory for a tag ref, or the revision
// directory for a digest ref. Deleting a tag never removes the underlying
// revision; deleting a digest leaves tag indices dangling (spec.md §4.E).
func (s *Store) DeleteManifest(repo, ref string) error {
	if isDigestRef(ref) {
		return os.RemoveAll(s.revisionDir(repo, digest.Digest(ref)))
	}
	return os.RemoveAll(filepath.Join(s.repoDir(repo), "_manifests", "tags", ref))
}

// --- Uploads ---

type UploadSession struct {
	UUID   string
	Repo   string
	Offset int64
}

func (s *Store) NewUpload(uuid, repo string) (*UploadSession, error) {
	dir := s.uploadDir(uuid)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(s.uploadDataPath(uuid), os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, err
	}
	f.Close()
	return &UploadSession{UUID: uuid, Repo: repo}, nil
}

func (s *Store) AppendUpload(u *UploadSession, data []byte) error {
	f, err := os.OpenFile(s.uploadDataPath(u.UUID), os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := f.Write(data)
	u.Offset += int64(n)
	return err
}

func (s *Store) CompleteUpload(u *UploadSession, expected digest.Digest) (digest.Digest, error) {
	data, err := os.ReadFile(s.uploadDataPath(u.UUID))
	if err != nil {
		return "", err
	}
	got := digest.Calculate(data)
	if got.String() != expected.String() {
		return got, fmt.Errorf("digest mismatch: got %s want %s", got, expected)
	}

	dest := s.blobPath(got)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", err
	}
	if err := os.Rename(s.uploadDataPath(u.UUID), dest); err != nil {
		return "", err
	}
	os.RemoveAll(s.uploadDir(u.UUID))
	return got, nil
}

func (s *Store) CancelUpload(u *UploadSession) error {
	return os.RemoveAll(s.uploadDir(u.UUID))
}

// --- Catalog / listing ---

func (s *Store) isRepository(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "_manifests"))
	return err == nil
}

// Catalog walks the repository tree, returning every directory that
// contains a _manifests subdirectory (spec.md §4.E name resolution rule).
func (s *Store) Catalog() ([]string, error) {
	root := filepath.Join(s.Root, "repositories")
	var repos []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if s.isRepository(path) {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}
			repos = append(repos, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(repos)
	return repos, nil
}

// ListTags returns the sorted tag names for repo.
func (s *Store) ListTags(repo string) ([]string, error) {
	tagsDir := filepath.Join(s.repoDir(repo), "_manifests", "tags")
	entries, err := os.ReadDir(tagsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			tags = append(tags, e.Name())
		}
	}
	sort.Strings(tags)
	return tags, nil
}

// GarbageCollect walks every repository's tags, collects the blob digests
// that referencedDigests reports for each tag's current manifest (the caller
// decides how the raw JSON is scanned), and removes any blob not in that set.
func (s *Store) GarbageCollect(referencedDigests func(manifestJSON []byte) []digest.Digest) ([]digest.Digest, error) {
	repos, err := s.Catalog()
	if err != nil {
		return nil, err
	}

	referenced := map[string]bool{}
	for _, repo := range repos {
		tags, err := s.ListTags(repo)
		if err != nil {
			return nil, err
		}
		for _, tag := range tags {
			_, data, err := s.GetManifest(repo, tag)
			if err != nil {
				continue
			}
			for _, d := range referencedDigests(data) {
				referenced[d.String()] = true
			}
		}
	}

	blobRoot := filepath.Join(s.Root, "blobs", "sha256")
	entries, err := os.ReadDir(blobRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var removed []digest.Digest
	for _, e := range entries {
		hexPart := e.Name()
		if _, err := hex.DecodeString(hexPart); err != nil {
			continue
		}
		d := digest.Digest("sha256:" + hexPart)
		if !referenced[d.String()] {
			if err := s.DeleteBlob(d); err == nil {
				removed = append(removed, d)
			}
		}
	}
	return removed, nil
}
