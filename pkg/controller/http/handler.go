package http

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anchorpoint/pkg/domain/model"
	"github.com/secmon-lab/anchorpoint/pkg/domain/types"
	"github.com/secmon-lab/anchorpoint/pkg/usecase"
	"github.com/secmon-lab/anchorpoint/pkg/utils/errutil"
)

type healthResponse struct {
	Status  string         `json:"status"`
	Methods []types.Method `json:"methods"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthResponse{
		Status:  "ok",
		Methods: s.uc.Methods(),
	})
}

func (s *Server) coordinateHandler(w http.ResponseWriter, r *http.Request) {
	concept := chi.URLParam(r, "concept")
	// chi matches against RawPath when the path carries escaped characters
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(concept)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(model.ErrInvalidInput, "invalid concept escape",
				goerr.V(model.ConceptKey, concept)), 0)
			return
		}
		concept = unescaped
	}

	var opts usecase.GenerateOptions
	if v := r.URL.Query().Get("refresh"); v != "" {
		refresh, err := strconv.ParseBool(v)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(model.ErrInvalidInput, "invalid refresh parameter",
				goerr.V("refresh", v)), 0)
			return
		}
		opts.Refresh = refresh
	}

	g, err := s.uc.Generator(types.Method(r.URL.Query().Get("method")))
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, 0)
		return
	}

	entry, err := g.GenerateEntry(r.Context(), concept, opts)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, 0)
		return
	}

	writeJSON(w, r, http.StatusOK, entry.ToRecord())
}

type reportRequest struct {
	Method     types.Method     `json:"method"`
	Categories []model.Category `json:"categories"`
}

func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := s.decode(w, r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, 0)
		return
	}

	report, err := s.uc.BuildReport(r.Context(), &model.Dataset{Categories: req.Categories}, req.Method)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, 0)
		return
	}

	writeJSON(w, r, http.StatusOK, report)
}

type agreementRequest struct {
	MethodA    types.Method     `json:"method_a"`
	MethodB    types.Method     `json:"method_b"`
	Categories []model.Category `json:"categories"`
}

func (s *Server) agreementHandler(w http.ResponseWriter, r *http.Request) {
	var req agreementRequest
	if err := s.decode(w, r, &req); err != nil {
		errutil.HandleHTTP(r.Context(), w, err, 0)
		return
	}
	if req.MethodA == "" {
		req.MethodA = types.MethodHash
	}
	if req.MethodB == "" {
		req.MethodB = types.MethodLLM
	}

	cmp, err := s.uc.CompareMethods(r.Context(), &model.Dataset{Categories: req.Categories}, req.MethodA, req.MethodB)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, 0)
		return
	}

	writeJSON(w, r, http.StatusOK, cmp)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return goerr.Wrap(model.ErrInvalidInput, "invalid request body", goerr.V("cause", err.Error()))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}
