package server

import (
	"net/http"

	"assessd/internal/app"
	"assessd/pkg/domain"
)

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request, _ domain.Principal) {
	limit, skip := pagination(r)
	companies, err := s.app.ListCompanies(r.Context(), r.URL.Query().Get("created_by"), limit, skip)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, http.StatusOK, companies, len(companies))
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var in app.CompanyInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	company, err := s.app.CreateCompany(r.Context(), p, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusCreated, company)
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request, _ domain.Principal) {
	company, err := s.app.GetCompanyByRef(r.Context(), r.PathValue("ref"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, company)
}

func (s *Server) handleUpdateCompany(w http.ResponseWriter, r *http.Request, _ domain.Principal) {
	var in app.CompanyInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	company, err := s.app.UpdateCompany(r.Context(), r.PathValue("ref"), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, company)
}

func (s *Server) handleAddContacts(w http.ResponseWriter, r *http.Request, _ domain.Principal) {
	var contacts []domain.Contact
	if err := decodeBody(r, &contacts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.app.AddContacts(r.Context(), r.PathValue("ref"), contacts)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, http.StatusOK, result, len(result))
}

func (s *Server) handleRemoveContact(w http.ResponseWriter, r *http.Request, _ domain.Principal) {
	result, err := s.app.RemoveContact(r.Context(), r.PathValue("ref"), r.PathValue("fullname"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, http.StatusOK, result, len(result))
}
