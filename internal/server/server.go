package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"assessd/internal/app"
	"assessd/internal/util"
	"assessd/pkg/domain"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
}

// Server exposes the HTTP API.
type Server struct {
	app *app.App
	mux *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app: cfg.App,
		mux: http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler wrapped with request id and
// request log middleware.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /api/v1/login", s.handleLogin)

	// users
	s.mux.Handle("GET /api/v1/users", s.authenticated(s.handleListUsers))
	s.mux.HandleFunc("POST /api/v1/users/create-user", s.handleCreateUser)
	s.mux.HandleFunc("POST /api/v1/users/create-license", s.handleCreateLicense)
	s.mux.Handle("GET /api/v1/users/me", s.authenticated(s.handleMe))
	s.mux.Handle("GET /api/v1/users/{ref}", s.authenticated(s.handleGetUser))
	s.mux.Handle("PUT /api/v1/users/{ref}", s.authenticated(s.handleUpdateUser))

	// companies
	s.mux.Handle("GET /api/v1/companies", s.authenticated(s.handleListCompanies))
	s.mux.Handle("POST /api/v1/companies", s.authenticated(s.handleCreateCompany))
	s.mux.Handle("GET /api/v1/companies/{ref}", s.authenticated(s.handleGetCompany))
	s.mux.Handle("PUT /api/v1/companies/{ref}", s.authenticated(s.handleUpdateCompany))
	s.mux.Handle("POST /api/v1/companies/{ref}/contacts", s.authenticated(s.handleAddContacts))
	s.mux.Handle("DELETE /api/v1/companies/{ref}/contacts/{fullname}", s.authenticated(s.handleRemoveContact))

	// projects
	s.mux.Handle("GET /api/v1/projects", s.authenticated(s.handleListProjects))
	s.mux.Handle("POST /api/v1/projects", s.authenticated(s.handleCreateProject))
	s.mux.Handle("GET /api/v1/projects/{id}", s.authenticated(s.handleGetProject))
	s.mux.Handle("PUT /api/v1/projects/{id}", s.authenticated(s.handleUpdateProject))

	// members: clients and experts share handlers, the member type comes
	// from the path
	for _, kind := range []string{"clients", "experts"} {
		s.mux.Handle("GET /api/v1/projects/{id}/"+kind, s.authenticated(s.handleListMembers))
		s.mux.Handle("POST /api/v1/projects/{id}/"+kind, s.authenticated(s.handleAddMember))
		s.mux.Handle("PUT /api/v1/projects/{id}/"+kind+"/{username}", s.authenticated(s.handleEditMember))
		s.mux.Handle("DELETE /api/v1/projects/{id}/"+kind+"/{username}", s.authenticated(s.handleRemoveMember))
	}

	// modules: workbooks and facetimes share handlers
	s.mux.Handle("GET /api/v1/projects/{id}/modules", s.authenticated(s.handleListModules))
	for _, kind := range []string{"workbooks", "facetimes"} {
		s.mux.Handle("POST /api/v1/projects/{id}/"+kind, s.authenticated(s.handleAddModule))
		s.mux.Handle("PUT /api/v1/projects/{id}/"+kind+"/{type}", s.authenticated(s.handleEditModule))
		s.mux.Handle("DELETE /api/v1/projects/{id}/"+kind+"/{type}", s.authenticated(s.handleDeleteModule))
		s.mux.Handle("POST /api/v1/projects/{id}/"+kind+"/{type}/asset", s.authenticated(s.handleUploadAsset))
		s.mux.Handle("GET /api/v1/projects/{id}/"+kind+"/{type}/asset", s.authenticated(s.handlePresignAsset))
	}

	// batches
	s.mux.Handle("GET /api/v1/projects/{id}/batches", s.authenticated(s.handleListBatches))
	s.mux.Handle("POST /api/v1/projects/{id}/batches", s.authenticated(s.handleCreateBatch))
	s.mux.Handle("POST /api/v1/projects/{id}/batches/{batchID}/workbook-sessions", s.authenticated(s.handleAddWorkbookSession))
	s.mux.Handle("POST /api/v1/projects/{id}/batches/{batchID}/facetime-sessions", s.authenticated(s.handleAddFacetimeSession))
	s.mux.Handle("POST /api/v1/projects/{id}/batches/{batchID}/prepare-batteries", s.authenticated(s.handlePrepareBatteries))
	s.mux.Handle("POST /api/v1/projects/{id}/batches/{batchID}/prepare-evidences", s.authenticated(s.handlePrepareEvidences))

	// personas
	s.mux.Handle("GET /api/v1/personas", s.authenticated(s.handleListPersonas))
	s.mux.Handle("POST /api/v1/personas", s.authenticated(s.handleCreatePersona))
	s.mux.Handle("GET /api/v1/personas/{ref}", s.authenticated(s.handleGetPersona))
	s.mux.Handle("PUT /api/v1/personas/{ref}", s.authenticated(s.handleUpdatePersona))
	s.mux.Handle("GET /api/v1/projects/{id}/personas", s.authenticated(s.handleListProjectPersonas))
	s.mux.Handle("PUT /api/v1/projects/{id}/personas/{username}/progress", s.authenticated(s.handleSetProgress))

	// gpq evidences
	s.mux.Handle("GET /api/v1/gpq", s.authenticated(s.handleListEvidences))
	s.mux.Handle("GET /api/v1/gpq/project/{id}", s.authenticated(s.handleListProjectEvidences))
	s.mux.Handle("POST /api/v1/gpq", s.authenticated(s.handleCreateTemplate))
	s.mux.Handle("GET /api/v1/gpq/{id}", s.authenticated(s.handleGetEvidence))
	s.mux.Handle("POST /api/v1/gpq/{id}/init", s.authenticated(s.handleInitEvidence))
	s.mux.Handle("POST /api/v1/gpq/{id}/start", s.authenticated(s.handleStartEvidence))
	s.mux.Handle("POST /api/v1/gpq/{id}/update", s.authenticated(s.handleUpdateEvidence))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authHandler receives the resolved principal alongside the request.
type authHandler func(http.ResponseWriter, *http.Request, domain.Principal)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		principal, err := s.app.PrincipalFromToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid access token")
			return
		}
		next(w, r, principal)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
}

// pagination reads ?limit= and ?skip= with the same defaults everywhere.
func pagination(r *http.Request) (limit, skip int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			skip = n
		}
	}
	return limit, skip
}

// Every success is wrapped in {"response": ...}; lists also carry a
// count. Errors render as {"error": msg, "response": null}.

type envelope struct {
	Response any  `json:"response"`
	Count    *int `json:"count,omitempty"`
}

func writeResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Response: payload})
}

func writeList(w http.ResponseWriter, status int, payload any, count int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Response: payload, Count: &count})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg, "response": nil})
}

// writeAppError maps application errors onto the status conventions:
// bad credentials 400, bad token 401, forbidden 403, missing 404,
// semantic rejects 422, everything else 500.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrUserDisabled),
		errors.Is(err, app.ErrUsernameTaken), errors.Is(err, app.ErrSymbolTaken),
		errors.Is(err, app.ErrMemberExists), errors.Is(err, app.ErrModuleExists),
		errors.Is(err, app.ErrSessionExists), errors.Is(err, app.ErrPersonaExists):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrValidation), errors.Is(err, app.ErrEmptyBatch),
		errors.Is(err, app.ErrNoParticipants):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
