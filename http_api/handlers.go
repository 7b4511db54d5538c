package http_api

import (
	"encoding/json"
	"net/http"

	"github.com/morler/repomuse/app_errors"
	"github.com/morler/repomuse/code_analyzer/models"
)

type scanRequest struct {
	Root            string `json:"root" validate:"required"`
	Force           bool   `json:"force"`
	Lazy            bool   `json:"lazy"`
	ForceFullRescan bool   `json:"force_full_rescan"`
}

func (r scanRequest) options() models.ScanOptions {
	return models.ScanOptions{Force: r.Force, Lazy: r.Lazy, ForceFullRescan: r.ForceFullRescan}
}

type batchRequest struct {
	Roots           []string `json:"roots" validate:"required,min=1,dive,required"`
	Force           bool     `json:"force"`
	Lazy            bool     `json:"lazy"`
	ForceFullRescan bool     `json:"force_full_rescan"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := app_errors.HTTPStatus(err)
	body := errorBody{Code: app_errors.CodeOf(err).String(), Message: err.Error()}
	if e, ok := app_errors.As(err); ok && status < http.StatusInternalServerError {
		body.Message = e.Message()
	}
	if status >= http.StatusInternalServerError {
		s.log.Error().Stack().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorEnvelope{Error: body})
}

// decode reads and validates a JSON body
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return app_errors.Wrap(err, app_errors.ErrorCodeValidation, "decode", "malformed request body")
	}
	if err := s.validate.Struct(v); err != nil {
		return app_errors.Wrap(err, app_errors.ErrorCodeValidation, "decode", err.Error())
	}
	return nil
}

func requireRoot(r *http.Request) (string, error) {
	root := r.URL.Query().Get("root")
	if root == "" {
		return "", app_errors.New(app_errors.ErrorCodeValidation, "root query parameter is required")
	}
	return root, nil
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	digest, err := s.analyzer.Scan(r.Context(), req.Root, req.options())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, digest)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	opts := models.ScanOptions{Force: req.Force, Lazy: req.Lazy, ForceFullRescan: req.ForceFullRescan}
	writeJSON(w, http.StatusOK, s.analyzer.ScanMany(r.Context(), req.Roots, opts))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	root, err := requireRoot(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.analyzer.Cancel(root); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling", "root": root})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	root, err := requireRoot(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, ok := s.analyzer.Progress(root)
	if !ok {
		s.writeError(w, r, app_errors.ErrNoRunningScan)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	root, err := requireRoot(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.picker == nil {
		s.writeError(w, r, app_errors.New(app_errors.ErrorCodeInternal, "project listing is not configured"))
		return
	}
	projects, err := s.picker.List(r.Context(), root)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.analyzer.GetCacheStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.analyzer.ClearCache(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
