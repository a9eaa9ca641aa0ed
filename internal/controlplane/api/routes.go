package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"swarmorch/internal/catalog"
	"swarmorch/internal/errdefs"
	"swarmorch/pkg/sdk/types"
)

const (
	maxJSONBody    = 1 << 20
	maxComposeBody = 8 << 20
)

func (s *Server) routes(r chi.Router) {
	r.Get("/health", s.info)
	r.Get("/health/detailed", s.clusterHealth)

	r.Route("/nodes", func(r chi.Router) {
		r.Get("/", s.listNodes)
		r.Get("/{ref}", s.getNode)
		r.Post("/{ref}/drain", s.drainNode)
		r.Post("/{ref}/activate", s.activateNode)
	})

	r.Route("/services", func(r chi.Router) {
		r.Get("/", s.listServices)
		r.Post("/", s.registerService)
		r.Get("/live", s.listLiveServices)
		r.Post("/import", s.importCompose)
		r.Post("/reconcile", s.triggerReconcile)
		r.Get("/{name}", s.getService)
		r.Put("/{name}", s.updateService)
		r.Delete("/{name}", s.deleteService)
		r.Post("/{name}/deploy", s.deployService)
		r.Post("/{name}/stop", s.stopService)
		r.Post("/{name}/scale", s.scaleService)
		r.Get("/{name}/logs", s.serviceLogs)
	})

	r.Route("/registry/repositories", func(r chi.Router) {
		r.Get("/", s.listRepositories)
		r.Get("/*", s.getRepositoryPath)
		r.Delete("/*", s.deleteTag)
	})
}

// --- Health ---

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.Info(r.Context())
	respond(w, r, http.StatusOK, out, err)
}

func (s *Server) clusterHealth(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.ClusterHealth(r.Context())
	respond(w, r, http.StatusOK, out, err)
}

// --- Nodes ---

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.ListNodes(r.Context())
	respond(w, r, http.StatusOK, out, err)
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.GetNode(r.Context(), pathParam(r, "ref"))
	respond(w, r, http.StatusOK, out, err)
}

func (s *Server) drainNode(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.DrainNode(r.Context(), pathParam(r, "ref"))
	respond(w, r, http.StatusOK, out, err)
}

func (s *Server) activateNode(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.ActivateNode(r.Context(), pathParam(r, "ref"))
	respond(w, r, http.StatusOK, out, err)
}

// --- Services ---

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.ListServices(r.Context())
	respond(w, r, http.StatusOK, out, err)
}

func (s *Server) listLiveServices(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.ListLiveServices(r.Context())
	respond(w, r, http.StatusOK, out, err)
}

func (s *Server) getService(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.GetService(r.Context(), pathParam(r, "name"))
	respond(w, r, http.StatusOK, out, err)
}

func (s *Server) registerService(w http.ResponseWriter, r *http.Request) {
	req := types.ServiceRequest{Definition: catalog.DefaultDefinition()}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.api.RegisterService(r.Context(), req)
	respond(w, r, http.StatusCreated, out, err)
}

func (s *Server) updateService(w http.ResponseWriter, r *http.Request) {
	var patch types.ServicePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.api.UpdateService(r.Context(), pathParam(r, "name"), patch)
	respond(w, r, http.StatusOK, out, err)
}

func (s *Server) deleteService(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	purge, err := boolQuery(r, "purge")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if purge {
		out, err := s.api.PurgeService(r.Context(), name)
		respond(w, r, http.StatusOK, out, err)
		return
	}
	if err := s.api.DeleteService(r.Context(), name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.Ack{Message: fmt.Sprintf("service %s removed from catalog", name)})
}

func (s *Server) importCompose(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxComposeBody))
	if err != nil {
		writeError(w, r, errdefs.Invalid("body", err.Error()))
		return
	}
	out, err := s.api.ImportCompose(r.Context(), data, r.URL.Query().Get("project"))
	respond(w, r, http.StatusOK, out, err)
}

func (s *Server) triggerReconcile(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.TriggerReconcile(r.Context())
	respond(w, r, http.StatusOK, out, err)
}

func (s *Server) deployService(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.DeployService(r.Context(), pathParam(r, "name"))
	respond(w, r, http.StatusOK, out, err)
}

func (s *Server) stopService(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.StopService(r.Context(), pathParam(r, "name"))
	respond(w, r, http.StatusOK, out, err)
}

func (s *Server) scaleService(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Replicas *int `json:"replicas"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Replicas == nil {
		writeError(w, r, errdefs.Invalid("replicas", "is required"))
		return
	}
	out, err := s.api.ScaleService(r.Context(), pathParam(r, "name"), *req.Replicas)
	respond(w, r, http.StatusOK, out, err)
}

func (s *Server) serviceLogs(w http.ResponseWriter, r *http.Request) {
	tail := 0
	if raw := r.URL.Query().Get("tail"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, errdefs.Invalid("tail", "must be a non-negative integer"))
			return
		}
		tail = n
	}
	out, err := s.api.ServiceLogs(r.Context(), pathParam(r, "name"), tail)
	respond(w, r, http.StatusOK, out, err)
}

// --- Registry ---

func (s *Server) listRepositories(w http.ResponseWriter, r *http.Request) {
	out, err := s.api.ListRepositories(r.Context())
	respond(w, r, http.StatusOK, out, err)
}

// getRepositoryPath serves both <repo> and <repo>/tags. Repository names
// may contain slashes, so the route is a wildcard.
func (s *Server) getRepositoryPath(w http.ResponseWriter, r *http.Request) {
	rest, err := wildcard(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if repo, ok := strings.CutSuffix(rest, "/tags"); ok && repo != "" {
		tags, err := s.api.ListTags(r.Context(), repo)
		respond(w, r, http.StatusOK, types.Tags{Repository: repo, Tags: tags}, err)
		return
	}
	// "<name>/details" and bare "<name>" both return the detail view.
	repo, ok := strings.CutSuffix(rest, "/details")
	if !ok || repo == "" {
		repo = rest
	}
	out, err := s.api.GetRepository(r.Context(), repo)
	respond(w, r, http.StatusOK, out, err)
}

func (s *Server) deleteTag(w http.ResponseWriter, r *http.Request) {
	rest, err := wildcard(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	i := strings.LastIndex(rest, "/tags/")
	if i <= 0 || i+len("/tags/") == len(rest) {
		writeError(w, r, fmt.Errorf("route %s: %w", r.URL.Path, errdefs.ErrNotFound))
		return
	}
	out, err := s.api.DeleteTag(r.Context(), rest[:i], rest[i+len("/tags/"):])
	respond(w, r, http.StatusOK, out, err)
}

// --- Helpers ---

func boolQuery(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errdefs.Invalid(key, fmt.Sprintf("%q is not a boolean", raw))
	}
	return v, nil
}

func respond(w http.ResponseWriter, r *http.Request, status int, out any, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, out)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errdefs.Invalid("body", err.Error())
	}
	return nil
}

func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

func wildcard(r *http.Request) (string, error) {
	rest, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		return "", errdefs.Invalid("repository", err.Error())
	}
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", errdefs.Invalid("repository", "is required")
	}
	return rest, nil
}
