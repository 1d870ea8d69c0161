package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// submitRequest is the body of a public submission.
type submitRequest struct {
	Values map[string]string `json:"values"`
}

func slugParam(r *http.Request) string {
	return chi.URLParam(r, "slug")
}

// handleSubmit stores a submission for a published form.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Values == nil {
		req.Values = map[string]string{}
	}

	ctx := withClient(r.Context(), r)
	sub, err := s.service.Submit(ctx, slugParam(r), req.Values)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, sub)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	formID, err := parseIDParam(r, "formID", "form")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	page, pageSize, err := parsePage(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	subs, err := s.service.ListSubmissions(r.Context(), formID, page, pageSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, subs)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	formID, err := parseIDParam(r, "formID", "form")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	subID, err := parseIDParam(r, "submissionID", "submission")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	sub, err := s.service.GetSubmission(r.Context(), formID, subID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sub)
}
