package server

import (
	"context"
	"net/http"

	"assessd/internal/app"
	"assessd/pkg/domain"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Scope    string `json:"scope"`
	Context  string `json:"context"`
}

type loginResponse struct {
	ID          string `json:"id"`
	Scope       string `json:"scope"`
	Context     string `json:"context,omitempty"`
	Username    string `json:"username"`
	Fullname    string `json:"fullname"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.app.Login(r.Context(), req.Scope, req.Username, req.Password, req.Context)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, loginResponse{
		ID:          result.Principal.ID,
		Scope:       string(result.Principal.Scope),
		Context:     result.Principal.Context,
		Username:    result.Principal.Username,
		Fullname:    result.Principal.Fullname,
		AccessToken: result.AccessToken,
		TokenType:   "bearer",
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ domain.Principal) {
	limit, skip := pagination(r)
	users, err := s.app.ListUsers(r.Context(), limit, skip)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, http.StatusOK, users, len(users))
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	s.createAccount(w, r, s.app.CreateUser)
}

func (s *Server) handleCreateLicense(w http.ResponseWriter, r *http.Request) {
	s.createAccount(w, r, s.app.CreateLicense)
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request, create func(context.Context, app.UserInput) (domain.User, error)) {
	var in app.UserInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := create(r.Context(), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusCreated, user)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	writeResponse(w, http.StatusOK, p)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, _ domain.Principal) {
	user, err := s.app.GetUserByRef(r.Context(), r.PathValue("ref"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	ref := r.PathValue("ref")
	if !p.IsSuperuser() && p.Username != ref && p.ID != ref {
		writeError(w, http.StatusForbidden, "operation not permitted")
		return
	}
	var in app.UserInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.UpdateUser(r.Context(), ref, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, user)
}
