package web

import (
	"net/http"

	"github.com/JonMunkholm/formsvc/internal/core"
)

// formRequest is the body of create and update.
type formRequest struct {
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// fieldsRequest is the body of PUT /fields.
type fieldsRequest struct {
	Fields []core.FieldInput `json:"fields"`
}

func (s *Server) handleListForms(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := parsePage(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	forms, err := s.service.ListForms(r.Context(), page, pageSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, forms)
}

func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	var req formRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	form, err := s.service.CreateForm(r.Context(), req.Title, req.Slug)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, form)
}

func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "formID", "form")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	form, err := s.service.GetForm(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, form)
}

func (s *Server) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "formID", "form")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req formRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	form, err := s.service.UpdateForm(r.Context(), id, req.Title, req.Slug)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, form)
}

func (s *Server) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "formID", "form")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.service.DeleteForm(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReplaceFields(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "formID", "form")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req fieldsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	form, err := s.service.ReplaceFields(r.Context(), id, req.Fields)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, form)
}

func (s *Server) handlePublishForm(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "formID", "form")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	form, err := s.service.PublishForm(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, form)
}

// handlePublicForm serves a published form by slug.
func (s *Server) handlePublicForm(w http.ResponseWriter, r *http.Request) {
	form, err := s.service.GetPublishedForm(r.Context(), slugParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, form)
}
