package configstore_test

import (
	"testing"

	"github.com/evoker-industries/rune/internal/configstore"
)

func TestCreateAndGetConfig(t *testing.T) {
	s := configstore.NewStore()
	e, err := s.Create("cfg1", "nginx.conf", configstore.KindConfig, []byte("server {}"), nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if e.Version != 1 {
		t.Errorf("Version = %d, want 1", e.Version)
	}

	got, err := s.Get("cfg1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Payload()) != "server {}" {
		t.Errorf("Payload() = %q, want %q", got.Payload(), "server {}")
	}
}

func TestSecretPayloadHiddenUnlessRevealed(t *testing.T) {
	s := configstore.NewStore()
	e, err := s.Create("sec1", "db-password", configstore.KindSecret, []byte("hunter2"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if e.Payload() != nil {
		t.Error("expected Payload() to return nil for a secret")
	}
	if string(e.Reveal()) != "hunter2" {
		t.Errorf("Reveal() = %q, want hunter2", e.Reveal())
	}
}

func TestUpdateIncrementsVersion(t *testing.T) {
	s := configstore.NewStore()
	if _, err := s.Create("cfg1", "nginx.conf", configstore.KindConfig, []byte("v1"), nil); err != nil {
		t.Fatal(err)
	}
	updated, err := s.Update("cfg1", []byte("v2"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Version != 2 || string(updated.Payload()) != "v2" {
		t.Fatalf("after update: version=%d payload=%q", updated.Version, updated.Payload())
	}
}

func TestListFiltersByKind(t *testing.T) {
	s := configstore.NewStore()
	if _, err := s.Create("cfg1", "a", configstore.KindConfig, []byte("x"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create("sec1", "b", configstore.KindSecret, []byte("y"), nil); err != nil {
		t.Fatal(err)
	}
	if len(s.List(configstore.KindConfig)) != 1 {
		t.Errorf("List(KindConfig) len = %d, want 1", len(s.List(configstore.KindConfig)))
	}
	if len(s.List(configstore.KindSecret)) != 1 {
		t.Errorf("List(KindSecret) len = %d, want 1", len(s.List(configstore.KindSecret)))
	}
}

func TestBase64PayloadRoundTrip(t *testing.T) {
	s := configstore.NewStore()
	e, err := s.Create("cfg1", "a", configstore.KindConfig, []byte("hello"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if e.Base64Payload() != "aGVsbG8=" {
		t.Errorf("Base64Payload() = %q, want aGVsbG8=", e.Base64Payload())
	}
}
