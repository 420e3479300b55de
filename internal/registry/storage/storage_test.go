package storage_test

import (
	"testing"

	"github.com/evoker-industries/rune/internal/digest"
	"github.com/evoker-industries/rune/internal/registry/storage"
)

func TestManifestRoundTripByTagAndDigest(t *testing.T) {
	s := storage.New(t.TempDir())

	data := []byte(`{"schemaVersion":2}`)
	d, err := s.PutManifest("library/nginx", "latest", "application/vnd.oci.image.manifest.v1+json", data)
	if err != nil {
		t.Fatalf("PutManifest() error = %v", err)
	}

	_, gotByTag, err := s.GetManifest("library/nginx", "latest")
	if err != nil {
		t.Fatalf("GetManifest(tag) error = %v", err)
	}
	if string(gotByTag) != string(data) {
		t.Errorf("GetManifest(tag) = %q, want %q", gotByTag, data)
	}

	_, gotByDigest, err := s.GetManifest("library/nginx", d.String())
	if err != nil {
		t.Fatalf("GetManifest(digest) error = %v", err)
	}
	if string(gotByDigest) != string(data) {
		t.Errorf("GetManifest(digest) = %q, want %q", gotByDigest, data)
	}

	expected := digest.Calculate(data)
	if d.String() != expected.String() {
		t.Errorf("stored digest = %s, want %s", d, expected)
	}
}

func TestUploadHappyPath(t *testing.T) {
	// Scenario #5 from spec.md §8.
	s := storage.New(t.TempDir())

	u, err := s.NewUpload("11111111-1111-1111-1111-111111111111", "lib/app")
	if err != nil {
		t.Fatalf("NewUpload() error = %v", err)
	}

	if err := s.AppendUpload(u, []byte("hello world")); err != nil {
		t.Fatalf("AppendUpload() error = %v", err)
	}

	want := digest.Digest("sha256:b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9")
	got, err := s.CompleteUpload(u, want)
	if err != nil {
		t.Fatalf("CompleteUpload() error = %v", err)
	}
	if got.String() != want.String() {
		t.Fatalf("CompleteUpload() digest = %s, want %s", got, want)
	}

	if !s.HasBlob(want) {
		t.Fatal("expected blob to exist after completion")
	}
	blob, err := s.GetBlob(want)
	if err != nil {
		t.Fatalf("GetBlob() error = %v", err)
	}
	if string(blob) != "hello world" {
		t.Errorf("GetBlob() = %q, want %q", blob, "hello world")
	}
}

func TestCompleteUploadDigestMismatch(t *testing.T) {
	s := storage.New(t.TempDir())
	u, err := s.NewUpload("22222222-2222-2222-2222-222222222222", "lib/app")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AppendUpload(u, []byte("hello world")); err != nil {
		t.Fatal(err)
	}
	_, err = s.CompleteUpload(u, digest.Digest("sha256:0000000000000000000000000000000000000000000000000000000000000"))
	if err == nil {
		t.Fatal("expected digest mismatch error")
	}
}

func TestDeleteTagDoesNotRemoveRevision(t *testing.T) {
	s := storage.New(t.TempDir())
	data := []byte(`{"schemaVersion":2}`)
	d, err := s.PutManifest("r", "v1", "application/json", data)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteManifest("r", "v1"); err != nil {
		t.Fatalf("DeleteManifest(tag) error = %v", err)
	}
	if _, _, err := s.GetManifest("r", "v1"); err == nil {
		t.Error("expected tag lookup to fail after tag deletion")
	}
	if _, _, err := s.GetManifest("r", d.String()); err != nil {
		t.Errorf("expected revision to survive tag deletion, got error %v", err)
	}
}

func TestCatalogAndListTags(t *testing.T) {
	s := storage.New(t.TempDir())
	if _, err := s.PutManifest("library/nginx", "latest", "application/json", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PutManifest("library/nginx", "1.0", "application/json", []byte("b")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PutManifest("team/app", "v1", "application/json", []byte("c")); err != nil {
		t.Fatal(err)
	}

	repos, err := s.Catalog()
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("Catalog() = %v, want 2 repos", repos)
	}

	tags, err := s.ListTags("library/nginx")
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	if len(tags) != 2 || tags[0] != "1.0" || tags[1] != "latest" {
		t.Fatalf("ListTags() = %v, want sorted [1.0 latest]", tags)
	}
}

func TestMountBlobVerifiesExistence(t *testing.T) {
	s := storage.New(t.TempDir())
	d, err := s.PutBlob([]byte("shared layer"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MountBlob("a", "b", d); err != nil {
		t.Errorf("MountBlob() error = %v for existing blob", err)
	}
	if err := s.MountBlob("a", "b", digest.Digest("sha256:deadbeef00000000000000000000000000000000000000000000000000beef")); err == nil {
		t.Error("expected error mounting nonexistent blob")
	}
}
