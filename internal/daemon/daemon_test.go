package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/evoker-industries/rune/internal/configstore"
	"github.com/evoker-industries/rune/internal/container"
	"github.com/evoker-industries/rune/internal/containermgr"
	"github.com/evoker-industries/rune/internal/digest"
	"github.com/evoker-industries/rune/internal/image"
	"github.com/evoker-industries/rune/internal/network"
	"github.com/evoker-industries/rune/internal/swarm"
	"github.com/evoker-industries/rune/internal/volume"
)

type fakeRuntime struct{ nextPID int }

func (f *fakeRuntime) Start(cfg *container.Config) (int, error) {
	f.nextPID++
	return f.nextPID, nil
}
func (f *fakeRuntime) Signal(pid int, sig int) error { return nil }
func (f *fakeRuntime) Pause(pid int) error           { return nil }
func (f *fakeRuntime) Unpause(pid int) error         { return nil }

type fakeBlobRemover struct{}

func (fakeBlobRemover) RemoveBlob(d digest.Digest) error { return nil }

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	dir := t.TempDir()

	volumes, err := volume.NewManager(filepath.Join(dir, "volumes"))
	if err != nil {
		t.Fatalf("volume.NewManager: %v", err)
	}
	images, err := image.NewStore(filepath.Join(dir, "images.db"), fakeBlobRemover{})
	if err != nil {
		t.Fatalf("image.NewStore: %v", err)
	}

	d := New(dir, Deps{
		Containers: containermgr.New(&fakeRuntime{}),
		Images:     images,
		Networks:   network.NewManager(),
		Volumes:    volumes,
		Configs:    configstore.NewStore(),
		Secrets:    configstore.NewStore(),
		Swarm:      swarm.NewServiceManager(),
	})
	return d
}

func doRequest(t *testing.T, d *Daemon, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	d.router().ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	d := newTestDaemon(t)
	rec := doRequest(t, d, http.MethodGet, "/_ping", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestVersionAndInfo(t *testing.T) {
	d := newTestDaemon(t)
	for _, path := range []string{"/version", apiPrefix + "/version", "/info"} {
		rec := doRequest(t, d, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: got %d", path, rec.Code)
		}
	}
}

func TestContainerLifecycle(t *testing.T) {
	d := newTestDaemon(t)

	rec := doRequest(t, d, http.MethodPost, "/containers/create?name=web", container.Config{
		ImageRef: "alpine:latest",
		Cmd:      []string{"/bin/sh"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d body=%s", rec.Code, rec.Body.String())
	}
	var created container.Config
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Fatal("expected created container to have an ID")
	}

	rec = doRequest(t, d, http.MethodGet, "/containers/json?all=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: got %d", rec.Code)
	}

	rec = doRequest(t, d, http.MethodPost, "/containers/"+created.ID+"/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, d, http.MethodGet, "/containers/"+created.ID+"/json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: got %d", rec.Code)
	}

	rec = doRequest(t, d, http.MethodPost, "/containers/"+created.ID+"/kill", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("kill: got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, d, http.MethodDelete, "/containers/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove: got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, d, http.MethodGet, "/containers/"+created.ID+"/json", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get-after-remove: got %d, want 404", rec.Code)
	}
}

func TestContainerActionUnknownIDNotFound(t *testing.T) {
	d := newTestDaemon(t)
	rec := doRequest(t, d, http.MethodPost, "/containers/does-not-exist/start", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rec.Code)
	}
}

func TestListImagesNetworksVolumes(t *testing.T) {
	d := newTestDaemon(t)
	for _, path := range []string{"/images/json", "/networks", "/volumes"} {
		rec := doRequest(t, d, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: got %d", path, rec.Code)
		}
		if rec.Body.String() == "" {
			t.Fatalf("%s: empty body", path)
		}
	}
}
