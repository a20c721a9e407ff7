// Package server exposes the feature engine over an HTTP JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/featflip/featflip/internal/engine"
	"github.com/featflip/featflip/internal/evalctx"
	"github.com/featflip/featflip/internal/feature"
	"github.com/featflip/featflip/internal/store"
)

const defaultMaxJSONBodyBytes = 1 << 20

var errJSONBodyTooLarge = errors.New("json request body too large")

// HTTPServer routes feature management and check requests to an engine.
type HTTPServer struct {
	engine       *engine.Engine
	maxBodyBytes int64
	metrics      http.Handler
}

// HTTPOption configures optional server parameters.
type HTTPOption func(*HTTPServer)

// WithMaxBodySize overrides the JSON request body size limit in bytes.
func WithMaxBodySize(n int64) HTTPOption {
	return func(s *HTTPServer) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithMetricsHandler mounts handler at GET /metrics.
func WithMetricsHandler(handler http.Handler) HTTPOption {
	return func(s *HTTPServer) { s.metrics = handler }
}

type checkJSONRequest struct {
	Uid     string            `json:"uid,omitempty"`
	Context map[string]any    `json:"context,omitempty"`
	Checks  []checkJSONSingle `json:"checks,omitempty"`
}

type checkJSONSingle struct {
	Uid     string         `json:"uid"`
	Context map[string]any `json:"context,omitempty"`
}

type checkJSONResult struct {
	Uid     string `json:"uid"`
	Enabled bool   `json:"enabled"`
}

type checkJSONResponse struct {
	Results []checkJSONResult `json:"results"`
}

type groupJSONRequest struct {
	Group string `json:"group"`
}

type roleJSONRequest struct {
	Role string `json:"role"`
}

// NewHTTPHandler builds the HTTP API over eng.
func NewHTTPHandler(eng *engine.Engine, opts ...HTTPOption) http.Handler {
	if eng == nil {
		panic("engine is nil")
	}

	server := &HTTPServer{
		engine:       eng,
		maxBodyBytes: defaultMaxJSONBodyBytes,
	}
	for _, o := range opts {
		o(server)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/features", server.handleCreateFeature)
	mux.HandleFunc("GET /v1/features", server.handleListFeatures)
	mux.HandleFunc("GET /v1/features/{uid}", server.handleGetFeature)
	mux.HandleFunc("PUT /v1/features/{uid}", server.handleUpdateFeature)
	mux.HandleFunc("DELETE /v1/features/{uid}", server.handleDeleteFeature)
	mux.HandleFunc("POST /v1/features/{uid}/enable", server.handleEnableFeature)
	mux.HandleFunc("POST /v1/features/{uid}/disable", server.handleDisableFeature)
	mux.HandleFunc("POST /v1/features/{uid}/toggle", server.handleToggleFeature)
	mux.HandleFunc("POST /v1/features/{uid}/grant", server.handleGrantRole)
	mux.HandleFunc("POST /v1/features/{uid}/revoke", server.handleRevokeRole)
	mux.HandleFunc("PUT /v1/features/{uid}/group", server.handleSetGroup)
	mux.HandleFunc("DELETE /v1/features/{uid}/group/{name}", server.handleRemoveFromGroup)
	mux.HandleFunc("GET /v1/groups", server.handleListGroups)
	mux.HandleFunc("GET /v1/groups/{name}", server.handleGetGroup)
	mux.HandleFunc("POST /v1/groups/{name}/enable", server.handleEnableGroup)
	mux.HandleFunc("POST /v1/groups/{name}/disable", server.handleDisableGroup)
	mux.HandleFunc("POST /v1/check", server.handleCheck)
	mux.HandleFunc("GET /healthz", server.handleHealthz)

	if eng.Properties() != nil {
		mux.HandleFunc("POST /v1/properties", server.handleCreateProperty)
		mux.HandleFunc("GET /v1/properties", server.handleListProperties)
		mux.HandleFunc("GET /v1/properties/{name}", server.handleGetProperty)
		mux.HandleFunc("PUT /v1/properties/{name}", server.handleUpdateProperty)
		mux.HandleFunc("DELETE /v1/properties/{name}", server.handleDeleteProperty)
	}

	if server.metrics != nil {
		mux.Handle("GET /metrics", server.metrics)
	}

	return mux
}

func (s *HTTPServer) handleCreateFeature(w http.ResponseWriter, r *http.Request) {
	var f feature.Feature
	if err := s.decodeJSONBody(w, r, &f); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	if err := s.engine.Features().Create(r.Context(), &f); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, &f)
}

func (s *HTTPServer) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	all, err := s.engine.Features().GetAll(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, all)
}

func (s *HTTPServer) handleGetFeature(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(r.PathValue("uid"))
	f, err := s.engine.Features().Require(r.Context(), uid)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, f)
}

func (s *HTTPServer) handleUpdateFeature(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(r.PathValue("uid"))

	var f feature.Feature
	if err := s.decodeJSONBody(w, r, &f); err != nil {
		writeJSONDecodeError(w, err)
		return
	}
	if f.Uid() != uid {
		writeJSONError(w, http.StatusBadRequest, "path uid and body uid must match")
		return
	}

	if err := s.engine.Features().Update(r.Context(), &f); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &f)
}

func (s *HTTPServer) handleDeleteFeature(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(r.PathValue("uid"))
	if err := s.engine.Features().Delete(r.Context(), uid); err != nil {
		writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleEnableFeature(w http.ResponseWriter, r *http.Request) {
	s.mutateFeature(w, r, s.engine.Enable)
}

func (s *HTTPServer) handleDisableFeature(w http.ResponseWriter, r *http.Request) {
	s.mutateFeature(w, r, s.engine.Disable)
}

func (s *HTTPServer) handleToggleFeature(w http.ResponseWriter, r *http.Request) {
	s.mutateFeature(w, r, s.engine.Toggle)
}

func (s *HTTPServer) mutateFeature(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	uid := strings.TrimSpace(r.PathValue("uid"))
	if err := op(r.Context(), uid); err != nil {
		writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	s.mutateRole(w, r, s.engine.Features().GrantRole)
}

func (s *HTTPServer) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	s.mutateRole(w, r, s.engine.Features().RevokeRole)
}

func (s *HTTPServer) mutateRole(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) error) {
	uid := strings.TrimSpace(r.PathValue("uid"))

	var req roleJSONRequest
	if err := s.decodeJSONBody(w, r, &req); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	if err := op(r.Context(), uid, req.Role); err != nil {
		writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSetGroup(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(r.PathValue("uid"))

	var req groupJSONRequest
	if err := s.decodeJSONBody(w, r, &req); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	if err := s.engine.Features().AddToGroup(r.Context(), uid, req.Group); err != nil {
		writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleRemoveFromGroup(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(r.PathValue("uid"))
	group := strings.TrimSpace(r.PathValue("name"))

	if err := s.engine.Features().RemoveFromGroup(r.Context(), uid, group); err != nil {
		writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.engine.Features().GetAllGroups(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if groups == nil {
		groups = []string{}
	}

	writeJSON(w, http.StatusOK, groups)
}

func (s *HTTPServer) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	members, err := s.engine.Features().GetGroup(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if len(members) == 0 {
		writeJSONError(w, http.StatusNotFound, "group not found")
		return
	}

	writeJSON(w, http.StatusOK, members)
}

func (s *HTTPServer) handleEnableGroup(w http.ResponseWriter, r *http.Request) {
	s.mutateGroup(w, r, s.engine.EnableGroup)
}

func (s *HTTPServer) handleDisableGroup(w http.ResponseWriter, r *http.Request) {
	s.mutateGroup(w, r, s.engine.DisableGroup)
}

func (s *HTTPServer) mutateGroup(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error) {
	name := strings.TrimSpace(r.PathValue("name"))
	if err := op(r.Context(), name); err != nil {
		writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	var request checkJSONRequest
	if err := s.decodeJSONBody(w, r, &request); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	var checks []checkJSONSingle
	switch {
	case len(request.Checks) > 0 && strings.TrimSpace(request.Uid) != "":
		writeJSONError(w, http.StatusBadRequest, "use either uid or checks")
		return
	case len(request.Checks) > 0:
		for idx, item := range request.Checks {
			if strings.TrimSpace(item.Uid) == "" {
				writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("checks[%d].uid is required", idx))
				return
			}
		}
		checks = request.Checks
	case strings.TrimSpace(request.Uid) != "":
		checks = []checkJSONSingle{{Uid: request.Uid, Context: request.Context}}
	default:
		writeJSONError(w, http.StatusBadRequest, "uid or checks is required")
		return
	}

	results := make([]checkJSONResult, 0, len(checks))
	for _, item := range checks {
		var (
			enabled bool
			err     error
		)
		if item.Context != nil {
			enabled, err = s.engine.CheckWith(r.Context(), item.Uid, evalctx.FromMap(item.Context))
		} else {
			enabled, err = s.engine.Check(r.Context(), item.Uid)
		}
		if err != nil {
			writeStoreError(w, err)
			return
		}
		results = append(results, checkJSONResult{Uid: item.Uid, Enabled: enabled})
	}

	writeJSON(w, http.StatusOK, checkJSONResponse{Results: results})
}

func (s *HTTPServer) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	var p feature.Property
	if err := s.decodeJSONBody(w, r, &p); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	if err := s.engine.Properties().Create(r.Context(), p); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (s *HTTPServer) handleListProperties(w http.ResponseWriter, r *http.Request) {
	all, err := s.engine.Properties().GetAll(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, all)
}

func (s *HTTPServer) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	p, err := s.engine.Properties().Require(r.Context(), name)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleUpdateProperty(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))

	var p feature.Property
	if err := s.decodeJSONBody(w, r, &p); err != nil {
		writeJSONDecodeError(w, err)
		return
	}
	if p.Name() != name {
		writeJSONError(w, http.StatusBadRequest, "path name and body name must match")
		return
	}

	if err := s.engine.Properties().Update(r.Context(), p); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleDeleteProperty(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if err := s.engine.Properties().Delete(r.Context(), name); err != nil {
		writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrGroupNotFound),
		errors.Is(err, store.ErrPropertyNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrPropertyExists):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, feature.ErrBlankUid),
		errors.Is(err, feature.ErrBlankGroup),
		errors.Is(err, feature.ErrBlankPropertyName),
		errors.Is(err, feature.ErrValueNotAllowed),
		errors.Is(err, feature.ErrReadOnlyProperty),
		errors.Is(err, feature.ErrPropertyType),
		errors.Is(err, feature.ErrUnknownStrategy),
		errors.Is(err, store.ErrBlankRole),
		errors.Is(err, store.ErrUidMismatch):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		writeJSONError(w, http.StatusRequestTimeout, "request canceled")
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSONDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errJSONBodyTooLarge) {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *HTTPServer) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return io.EOF
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))

	if err := decoder.Decode(dst); err != nil {
		return normalizeJSONDecodeError(err)
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("request body must contain a single JSON object")
		}
		return normalizeJSONDecodeError(err)
	}

	return nil
}

func normalizeJSONDecodeError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return errJSONBodyTooLarge
	}
	return err
}
