package server

import (
	"net/http"
	"strings"

	"assessd/internal/app"
	"assessd/pkg/domain"
	"assessd/pkg/store"
)

// memberTypeFromPath maps the /clients|/experts path segment onto the
// member scope.
func memberTypeFromPath(r *http.Request) domain.Scope {
	if strings.Contains(r.URL.Path, "/experts") {
		return domain.ScopeExpert
	}
	return domain.ScopeClient
}

// moduleGroupFromPath maps the /workbooks|/facetimes path segment onto
// the module array.
func moduleGroupFromPath(r *http.Request) store.ModuleGroup {
	if strings.Contains(r.URL.Path, "/facetimes") {
		return store.GroupFacetimes
	}
	return store.GroupWorkbooks
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request, _ domain.Principal) {
	limit, skip := pagination(r)
	projects, err := s.app.ListProjects(r.Context(), r.URL.Query().Get("owner"), limit, skip)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, http.StatusOK, projects, len(projects))
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var in app.ProjectInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	project, err := s.app.CreateProject(r.Context(), p, in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusCreated, project)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	project, err := s.app.GetProject(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, project)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var in app.ProjectInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	project, err := s.app.UpdateProject(r.Context(), p, r.PathValue("id"), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, project)
}

// Members

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	members, err := s.app.ListMembers(r.Context(), p, r.PathValue("id"), memberTypeFromPath(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, http.StatusOK, members, len(members))
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var in app.GuestInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	member, err := s.app.AddMember(r.Context(), p, r.PathValue("id"), memberTypeFromPath(r), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusCreated, member)
}

func (s *Server) handleEditMember(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var in app.GuestInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	member, err := s.app.EditMember(r.Context(), p, r.PathValue("id"), memberTypeFromPath(r), r.PathValue("username"), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, member)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	remaining, err := s.app.RemoveMember(r.Context(), p, r.PathValue("id"), memberTypeFromPath(r), r.PathValue("username"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, http.StatusOK, remaining, len(remaining))
}

// Modules

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	workbooks, facetimes, err := s.app.ListModules(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, map[string]any{
		"workbooks": workbooks,
		"facetimes": facetimes,
	})
}

func (s *Server) handleAddModule(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var in app.ModuleInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	module, err := s.app.AddModule(r.Context(), p, r.PathValue("id"), moduleGroupFromPath(r), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusCreated, module)
}

func (s *Server) handleEditModule(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var in app.ModuleInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	module, err := s.app.EditModule(r.Context(), p, r.PathValue("id"), moduleGroupFromPath(r), r.PathValue("type"), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, module)
}

func (s *Server) handleDeleteModule(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	remaining, err := s.app.DeleteModule(r.Context(), p, r.PathValue("id"), moduleGroupFromPath(r), r.PathValue("type"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, http.StatusOK, remaining, len(remaining))
}

const maxAssetBytes = 64 << 20

func (s *Server) handleUploadAsset(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	if err := r.ParseMultipartForm(maxAssetBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key, err := s.app.UploadModuleAsset(
		r.Context(), p, r.PathValue("id"), moduleGroupFromPath(r), r.PathValue("type"),
		header.Filename, contentType, file, header.Size,
	)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusCreated, map[string]string{"uri": key})
}

func (s *Server) handlePresignAsset(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	url, err := s.app.PresignModuleAsset(r.Context(), p, r.PathValue("id"), moduleGroupFromPath(r), r.PathValue("type"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, map[string]string{"url": url})
}

// Batches

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	batches, err := s.app.ListBatches(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeList(w, http.StatusOK, batches, len(batches))
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var in app.BatchInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	batch, err := s.app.CreateBatch(r.Context(), p, r.PathValue("id"), in)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusCreated, batch)
}

func (s *Server) handleAddWorkbookSession(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var session domain.WorkbookSession
	if err := decodeBody(r, &session); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	added, err := s.app.AddWorkbookSession(r.Context(), p, r.PathValue("id"), r.PathValue("batchID"), session)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusCreated, added)
}

func (s *Server) handleAddFacetimeSession(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	var session domain.FacetimeSession
	if err := decodeBody(r, &session); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	added, err := s.app.AddFacetimeSession(r.Context(), p, r.PathValue("id"), r.PathValue("batchID"), session)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusCreated, added)
}

func (s *Server) handlePrepareBatteries(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	count, err := s.app.PreparePersonaBatteries(r.Context(), p, r.PathValue("id"), r.PathValue("batchID"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, map[string]int64{"updated_personas": count})
}

func (s *Server) handlePrepareEvidences(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	count, err := s.app.PreparePersonaEvidences(r.Context(), p, r.PathValue("id"), r.PathValue("batchID"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeResponse(w, http.StatusOK, map[string]int64{"created_evidences": count})
}
