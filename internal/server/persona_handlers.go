package server

import (
	"net/http"

	"assessd/internal/app"
	"assessd/pkg/domain"
)

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	limit, skip := pagination(r)
	personas, err := s.app.ListPersonas(r.Context(), p, r.URL.Query().Get("prj_id"), limit, skip)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, http.StatusOK, personas, len(personas))
}

func (s *Server) handleListProjectPersonas(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	limit, skip := pagination(r)
	personas, err := s.app.ListPersonas(r.Context(), p, r.PathValue("id"), limit, skip)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, http.StatusOK, personas, len(personas))
}

func (s *Server) handleCreatePersona(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var in app.PersonaInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	persona, err := s.app.CreatePersona(r.Context(), p, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusCreated, persona)
}

func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request, _ domain.Principal) {
	persona, err := s.app.GetPersonaByRef(r.Context(), r.PathValue("ref"), r.URL.Query().Get("prj_id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, persona)
}

func (s *Server) handleUpdatePersona(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var in app.PersonaInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	persona, err := s.app.UpdatePersona(r.Context(), p, r.PathValue("ref"), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, persona)
}

func (s *Server) handleSetProgress(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var progress domain.Progress
	if err := decodeBody(r, &progress); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := s.app.SetPersonaProgress(r.Context(), p, r.PathValue("id"), r.PathValue("username"), progress)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, updated)
}
