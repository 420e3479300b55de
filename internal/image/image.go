// Package image implements the local content-addressed image store
// (component C): two maps — images by id and tags by "repo:tag" — backed by
// a write-behind SQLite snapshot so a daemon restart rehydrates both.
package image

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/evoker-industries/rune/internal/digest"
	"github.com/evoker-industries/rune/internal/persist"
)

//go:embed schema.sql
var schemaSQL string

// Image is a stored image record. Spec mirrors opencontainers/image-spec's
// v1.Image directly rather than a hand-rolled config struct.
type Image struct {
	ID        string    // 12-hex short form of Digest
	Digest    digest.Digest
	Spec      v1.Image
	RepoTags  []string
	SizeBytes int64
	CreatedAt time.Time
}

// BlobRemover is implemented by the registry blob pool; force-removal of an
// image can ask it to drop layer blobs no longer referenced by any image.
type BlobRemover interface {
	RemoveBlob(d digest.Digest) error
}

// Store is the manager described in spec.md §4.C. The maps are authoritative
// at runtime; db is a write-behind snapshot, consulted only at NewStore time.
type Store struct {
	mu     sync.RWMutex
	images map[string]*Image // id -> Image
	tags   map[string]string // "repo:tag" -> id
	db     *persist.DB
	blobs  BlobRemover
}

// NewStore opens (or creates) the sqlite file at dbPath and rehydrates the
// in-memory maps from it.
func NewStore(dbPath string, blobs BlobRemover) (*Store, error) {
	db, err := persist.Open(dbPath, schemaSQL)
	if err != nil {
		return nil, fmt.Errorf("image store: %w", err)
	}

	s := &Store{
		images: map[string]*Image{},
		tags:   map[string]string{},
		db:     db,
		blobs:  blobs,
	}
	if err := s.rehydrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("image store: rehydrate: %w", err)
	}
	return s, nil
}

func (s *Store) rehydrate() error {
	rows, err := s.db.Query(`SELECT id, digest, spec_json, size_bytes, created_at FROM images`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, digestStr, specJSON, createdAt string
			size                               int64
		)
		if err := rows.Scan(&id, &digestStr, &specJSON, &size, &createdAt); err != nil {
			return err
		}
		var spec v1.Image
		if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
			return fmt.Errorf("decode image spec %s: %w", id, err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			t = time.Time{}
		}
		s.images[id] = &Image{
			ID:        id,
			Digest:    digest.Digest(digestStr),
			Spec:      spec,
			SizeBytes: size,
			CreatedAt: t,
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	tagRows, err := s.db.Query(`SELECT repo_tag, image_id FROM image_tags`)
	if err != nil {
		return err
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var repoTag, id string
		if err := tagRows.Scan(&repoTag, &id); err != nil {
			return err
		}
		s.tags[repoTag] = id
		if img, ok := s.images[id]; ok {
			img.RepoTags = append(img.RepoTags, repoTag)
		}
	}
	return tagRows.Err()
}

func (s *Store) persistImage(img *Image) error {
	specJSON, err := json.Marshal(img.Spec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO images (id, digest, spec_json, size_bytes, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET digest=excluded.digest, spec_json=excluded.spec_json, size_bytes=excluded.size_bytes`,
		img.ID, img.Digest.String(), string(specJSON), img.SizeBytes, img.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) persistTag(repoTag, id string) error {
	_, err := s.db.Exec(
		`INSERT INTO image_tags (repo_tag, image_id) VALUES (?, ?)
		 ON CONFLICT(repo_tag) DO UPDATE SET image_id=excluded.image_id`,
		repoTag, id,
	)
	return err
}

func (s *Store) deleteTagRow(repoTag string) error {
	_, err := s.db.Exec(`DELETE FROM image_tags WHERE repo_tag = ?`, repoTag)
	return err
}

func (s *Store) deleteImageRow(id string) error {
	_, err := s.db.Exec(`DELETE FROM images WHERE id = ?`, id)
	return err
}

// Store inserts img, pointing every tag in img.RepoTags at its id, silently
// overwriting any prior tag->id entries (spec.md §4.C store()).
func (s *Store) Store(img *Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.images[img.ID] = img
	for _, rt := range img.RepoTags {
		s.tags[rt] = img.ID
		if err := s.persistTag(rt, img.ID); err != nil {
			return fmt.Errorf("persist tag %s: %w", rt, err)
		}
	}
	return s.persistImage(img)
}

// ambiguous prefix resolution is not implemented; see DESIGN.md Open
// Question #2 — the first matching id by map iteration order wins.
func (s *Store) resolveLocked(ref string) (*Image, bool) {
	if img, ok := s.images[ref]; ok {
		return img, true
	}
	if id, ok := s.tags[ref]; ok {
		return s.images[id], true
	}
	if len(ref) >= 3 {
		for id, img := range s.images {
			if strings.HasPrefix(id, ref) {
				return img, true
			}
		}
	}
	return nil, false
}

// Get resolves ref by exact id, then tag, then prefix (minimum 3 hex chars).
func (s *Store) Get(ref string) (*Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(ref)
}

// Remove resolves ref, deletes all tags pointing at it, and removes the
// record. With force, also asks the blob remover to drop layer blobs (the
// store does not itself track ownership sharing beyond this single call).
func (s *Store) Remove(ref string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.resolveLocked(ref)
	if !ok {
		return fmt.Errorf("no such image: %s", ref)
	}

	for rt, id := range s.tags {
		if id == img.ID {
			delete(s.tags, rt)
			if err := s.deleteTagRow(rt); err != nil {
				return err
			}
		}
	}
	delete(s.images, img.ID)
	if err := s.deleteImageRow(img.ID); err != nil {
		return err
	}

	if force && s.blobs != nil {
		for _, d := range img.Spec.RootFS.DiffIDs {
			_ = s.blobs.RemoveBlob(digest.Digest(d.String()))
		}
	}
	return nil
}

// Tag resolves sourceRef, and adds target to the tag map and to the image's
// RepoTags if absent.
func (s *Store) Tag(sourceRef, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.resolveLocked(sourceRef)
	if !ok {
		return fmt.Errorf("no such image: %s", sourceRef)
	}

	s.tags[target] = img.ID
	found := false
	for _, rt := range img.RepoTags {
		if rt == target {
			found = true
			break
		}
	}
	if !found {
		img.RepoTags = append(img.RepoTags, target)
	}
	return s.persistTag(target, img.ID)
}

// Prune returns the ids of images with no RepoTags and removes each.
func (s *Store) Prune() ([]string, error) {
	s.mu.Lock()
	var dangling []string
	for id, img := range s.images {
		if len(img.RepoTags) == 0 {
			dangling = append(dangling, id)
		}
	}
	s.mu.Unlock()

	sort.Strings(dangling)
	for _, id := range dangling {
		if err := s.Remove(id, false); err != nil {
			return dangling, err
		}
	}
	return dangling, nil
}

// List returns all images, safe for concurrent readers.
func (s *Store) List() []*Image {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Image, 0, len(s.images))
	for _, img := range s.images {
		out = append(out, img)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Close() error {
	return s.db.Close()
}
