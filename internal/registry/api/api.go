// Package api implements the OCI distribution HTTP protocol engine
// (component F): request routing and the chunked-upload state machine on
// top of internal/registry/storage. Routing uses gorilla/mux, the same
// router moby-moby's own distribution server registers /v2/... routes with,
// because repository names may contain '/' themselves.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/evoker-industries/rune/internal/digest"
	"github.com/evoker-industries/rune/internal/registry/storage"
)

// knownMediaTypes is the set validated against in spec.md §4.F; the two
// Docker v2 types have no OCI constant so they're literal strings, matching
// moby-moby's own media-type switch.
var knownMediaTypes = map[string]bool{
	v1.MediaTypeImageManifest:    true,
	v1.MediaTypeImageIndex:       true,
	"application/vnd.docker.distribution.manifest.v2+json":      true,
	"application/vnd.docker.distribution.manifest.list.v2+json": true,
}

const defaultMaxManifestSize = 4 << 20 // 4 MiB

// Config controls server-wide policy toggles named in spec.md §4.F.
type Config struct {
	MaxManifestSize int64
	DeleteEnabled   bool
}

// session tracks one in-progress chunked upload (spec.md §3 Upload session).
type session struct {
	*storage.UploadSession
	StartedAt   time.Time
	LastChunkAt time.Time
}

// Server implements the /v2/... surface over a storage.Store.
type Server struct {
	store  *storage.Store
	config Config

	mu       sync.Mutex
	sessions map[string]*session

	router *mux.Router
}

func New(store *storage.Store, config Config) *Server {
	if config.MaxManifestSize == 0 {
		config.MaxManifestSize = defaultMaxManifestSize
	}

	s := &Server{
		store:    store,
		config:   config,
		sessions: map[string]*session{},
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/v2/", s.handlePing).Methods(http.MethodGet)
	r.HandleFunc("/v2/_catalog", s.handleCatalog).Methods(http.MethodGet)

	repo := "/v2/{name:.+}"
	r.HandleFunc(repo+"/tags/list", s.handleTagsList).Methods(http.MethodGet)
	r.HandleFunc(repo+"/manifests/{reference}", s.handleManifest).Methods(http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete)
	r.HandleFunc(repo+"/blobs/{digest}", s.handleBlob).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc(repo+"/blobs/uploads/", s.handleStartUpload).Methods(http.MethodPost)
	r.HandleFunc(repo+"/blobs/uploads/{uuid}", s.handleUploadChunk).Methods(http.MethodPatch, http.MethodPut, http.MethodDelete)

	return r
}

func writeOCIError(w http.ResponseWriter, code ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code.HTTPStatus())
	json.NewEncoder(w).Encode(newErrorBody(code, message, nil))
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	repos, err := s.store.Catalog()
	if err != nil {
		writeOCIError(w, NameUnknown, err.Error())
		return
	}
	repos = paginate(repos, r.URL.Query().Get("n"), r.URL.Query().Get("last"))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"repositories": repos})
}

func (s *Server) handleTagsList(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	tags, err := s.store.ListTags(name)
	if err != nil {
		writeOCIError(w, NameUnknown, err.Error())
		return
	}
	tags = paginate(tags, r.URL.Query().Get("n"), r.URL.Query().Get("last"))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"name": name, "tags": tags})
}

// paginate returns items sorted ascending, filtered to those strictly
// greater than last, bounded to n entries (spec.md §4.F pagination rule).
func paginate(items []string, nParam, last string) []string {
	out := items
	if last != "" {
		idx := len(out)
		for i, v := range out {
			if v > last {
				idx = i
				break
			}
		}
		out = out[idx:]
	}
	if nParam != "" {
		if n, err := strconv.Atoi(nParam); err == nil && n >= 0 && n < len(out) {
			out = out[:n]
		}
	}
	return out
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, ref := vars["name"], vars["reference"]

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		contentType, data, err := s.store.GetManifest(name, ref)
		if err != nil {
			writeOCIError(w, ManifestUnknown, err.Error())
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Docker-Content-Digest", digest.Calculate(data).String())
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write(data)

	case http.MethodPut:
		contentType := r.Header.Get("Content-Type")
		body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxManifestSize+1))
		if err != nil {
			writeOCIError(w, ManifestInvalid, err.Error())
			return
		}
		if int64(len(body)) > s.config.MaxManifestSize {
			writeOCIError(w, SizeInvalid, "manifest exceeds maximum size")
			return
		}
		if knownMediaTypes[contentType] {
			// Known types must parse as their schema; unknown types are
			// accepted without validation and recorded as given.
			var schema any = &v1.Manifest{}
			if contentType == v1.MediaTypeImageIndex || contentType == "application/vnd.docker.distribution.manifest.list.v2+json" {
				schema = &v1.Index{}
			}
			if err := json.Unmarshal(body, schema); err != nil {
				writeOCIError(w, ManifestInvalid, err.Error())
				return
			}
		}
		d, err := s.store.PutManifest(name, ref, contentType, body)
		if err != nil {
			writeOCIError(w, ManifestInvalid, err.Error())
			return
		}
		w.Header().Set("Docker-Content-Digest", d.String())
		w.WriteHeader(http.StatusCreated)

	case http.MethodDelete:
		if !s.config.DeleteEnabled {
			writeOCIError(w, Unsupported, "deletion disabled")
			return
		}
		if err := s.store.DeleteManifest(name, ref); err != nil {
			writeOCIError(w, ManifestUnknown, err.Error())
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	d := digest.Digest(vars["digest"])

	if !s.store.HasBlob(d) {
		writeOCIError(w, BlobUnknown, "blob not found")
		return
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	data, err := s.store.GetBlob(d)
	if err != nil {
		writeOCIError(w, BlobUnknown, err.Error())
		return
	}
	w.Write(data)
}

func (s *Server) handleStartUpload(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	q := r.URL.Query()

	if mountDigest := q.Get("mount"); mountDigest != "" {
		d := digest.Digest(mountDigest)
		if s.store.HasBlob(d) {
			w.Header().Set("Docker-Content-Digest", d.String())
			w.WriteHeader(http.StatusCreated)
			return
		}
		// Fall through to a normal upload session if the mount target
		// doesn't exist.
	}

	id := uuid.NewString()
	us, err := s.store.NewUpload(id, name)
	if err != nil {
		writeOCIError(w, BlobUploadInvalid, err.Error())
		return
	}

	s.mu.Lock()
	s.sessions[id] = &session{UploadSession: us, StartedAt: time.Now(), LastChunkAt: time.Now()}
	s.mu.Unlock()

	w.Header().Set("Location", fmt.Sprintf("/v2/%s/blobs/uploads/%s", name, id))
	w.Header().Set("Docker-Upload-UUID", id)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["uuid"]

	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		writeOCIError(w, BlobUploadUnknown, "unknown upload session")
		return
	}

	switch r.Method {
	case http.MethodPatch:
		start, end, ok := parseContentRange(r.Header.Get("Content-Range"))
		if !ok || start != sess.Offset {
			writeOCIError(w, BlobUploadInvalid, "content-range mismatch")
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeOCIError(w, BlobUploadInvalid, err.Error())
			return
		}
		if err := s.store.AppendUpload(sess.UploadSession, body); err != nil {
			writeOCIError(w, BlobUploadInvalid, err.Error())
			return
		}
		sess.LastChunkAt = time.Now()
		_ = end
		w.Header().Set("Range", fmt.Sprintf("0-%d", sess.Offset-1))
		w.WriteHeader(http.StatusAccepted)

	case http.MethodPut:
		expected := digest.Digest(r.URL.Query().Get("digest"))
		if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
			if err := s.store.AppendUpload(sess.UploadSession, body); err != nil {
				writeOCIError(w, BlobUploadInvalid, err.Error())
				return
			}
		}
		got, err := s.store.CompleteUpload(sess.UploadSession, expected)
		if err != nil {
			writeOCIError(w, DigestInvalid, err.Error())
			return
		}
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()

		w.Header().Set("Docker-Content-Digest", got.String())
		w.WriteHeader(http.StatusCreated)

	case http.MethodDelete:
		if err := s.store.CancelUpload(sess.UploadSession); err != nil {
			writeOCIError(w, BlobUploadInvalid, err.Error())
			return
		}
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseContentRange(header string) (start, end int64, ok bool) {
	parts := strings.SplitN(header, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	s, err1 := strconv.ParseInt(parts[0], 10, 64)
	e, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return s, e, true
}
