package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/evoker-industries/rune/internal/container"
	"github.com/evoker-industries/rune/internal/containermgr"
	"github.com/evoker-industries/rune/internal/telemetry"
	"github.com/evoker-industries/rune/version"
)

var tracer = telemetry.Tracer("github.com/evoker-industries/rune/internal/daemon")

// traced wraps h in an OTel span named after the route, so every daemon
// handler produces a span regardless of whether a real exporter is
// installed (telemetry.Setup installs a no-op provider when unconfigured).
func traced(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), name, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()
		h(w, r.WithContext(ctx))
	}
}

// router builds the full daemon route table (spec.md §6 "Daemon HTTP
// surface"), both under apiPrefix and bare, matching the teacher's own
// dual registration style in spirit (the teacher registers a flat set;
// here the versioned API gets a matching unversioned alias).
func (d *Daemon) router() http.Handler {
	r := mux.NewRouter()

	register := func(path string, method string, h http.HandlerFunc) {
		name := method + " " + path
		r.HandleFunc(apiPrefix+path, traced(name, h)).Methods(method)
		r.HandleFunc(path, traced(name, h)).Methods(method)
	}

	register("/version", http.MethodGet, d.handleVersion)
	register("/info", http.MethodGet, d.handleInfo)
	register("/_ping", http.MethodGet, d.handlePing)

	register("/containers/json", http.MethodGet, d.handleListContainers)
	register("/containers/create", http.MethodPost, d.handleCreateContainer)
	register("/containers/{id}/json", http.MethodGet, d.handleGetContainer)
	register("/containers/{id}/start", http.MethodPost, d.handleContainerAction)
	register("/containers/{id}/stop", http.MethodPost, d.handleContainerAction)
	register("/containers/{id}/restart", http.MethodPost, d.handleContainerAction)
	register("/containers/{id}/kill", http.MethodPost, d.handleContainerAction)
	register("/containers/{id}", http.MethodDelete, d.handleRemoveContainer)

	register("/images/json", http.MethodGet, d.handleListImages)
	register("/networks", http.MethodGet, d.handleListNetworks)
	register("/volumes", http.MethodGet, d.handleListVolumes)

	return r
}

func (d *Daemon) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func (d *Daemon) handleInfo(w http.ResponseWriter, r *http.Request) {
	containers := d.deps.Containers.List(true)
	images := d.deps.Images.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"Containers": len(containers),
		"Images":     len(images),
	})
}

func (d *Daemon) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (d *Daemon) handleListContainers(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	writeJSON(w, http.StatusOK, d.deps.Containers.List(all))
}

func (d *Daemon) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	var cfg container.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if name := r.URL.Query().Get("name"); name != "" {
		cfg.Name = name
	}

	created, err := d.deps.Containers.Create(cfg)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (d *Daemon) handleGetContainer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, err := d.deps.Containers.Get(id)
	if err != nil {
		writeJSONError(w, statusForContainerErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (d *Daemon) handleContainerAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	route := mux.CurrentRoute(r)
	tmpl, _ := route.GetPathTemplate()

	var err error
	switch {
	case hasSuffix(tmpl, "/start"):
		err = d.deps.Containers.Start(id)
	case hasSuffix(tmpl, "/stop"):
		err = d.deps.Containers.Stop(id, 10)
	case hasSuffix(tmpl, "/restart"):
		if stopErr := d.deps.Containers.Stop(id, 10); stopErr != nil {
			err = stopErr
			break
		}
		err = d.deps.Containers.Start(id)
	case hasSuffix(tmpl, "/kill"):
		err = d.deps.Containers.Kill(id)
	default:
		err = fmt.Errorf("unknown container action")
	}

	if err != nil {
		writeJSONError(w, statusForContainerErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *Daemon) handleRemoveContainer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	if err := d.deps.Containers.Remove(id, force); err != nil {
		writeJSONError(w, statusForContainerErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *Daemon) handleListImages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.deps.Images.List())
}

func (d *Daemon) handleListNetworks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.deps.Networks.List())
}

func (d *Daemon) handleListVolumes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.deps.Volumes.List())
}

func statusForContainerErr(err error) int {
	switch err.(type) {
	case containermgr.ErrNotFound:
		return http.StatusNotFound
	case containermgr.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
