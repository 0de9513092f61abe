package server

import (
	"net/http"

	"assessd/internal/app"
	"assessd/pkg/domain"
)

func (s *Server) handleListEvidences(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	limit, skip := pagination(r)
	evidences, err := s.app.ListEvidences(r.Context(), p, "", limit, skip)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, http.StatusOK, evidences, len(evidences))
}

func (s *Server) handleListProjectEvidences(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	limit, skip := pagination(r)
	evidences, err := s.app.ListEvidences(r.Context(), p, r.PathValue("id"), limit, skip)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, http.StatusOK, evidences, len(evidences))
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var in app.TemplateInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	evidence, err := s.app.CreateGPQTemplate(r.Context(), p, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusCreated, evidence)
}

func (s *Server) handleGetEvidence(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	evidence, err := s.app.GetEvidence(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, evidence)
}

func (s *Server) handleInitEvidence(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	initiated, err := s.app.InitEvidence(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, map[string]int64{"initiated": initiated})
}

func (s *Server) handleStartEvidence(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	started, err := s.app.StartEvidence(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, map[string]int64{"started": started})
}

func (s *Server) handleUpdateEvidence(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var in app.RowInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	touched, err := s.app.UpdateEvidence(r.Context(), p, r.PathValue("id"), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, map[string]int64{"touched": touched})
}
