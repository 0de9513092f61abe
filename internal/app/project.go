package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"assessd/internal/util"
	"assessd/pkg/auth"
	"assessd/pkg/domain"
	"assessd/pkg/events"
	"assessd/pkg/storage"
	"assessd/pkg/store"
)

// ProjectInput carries the fields accepted when creating or editing a
// project.
type ProjectInput struct {
	ClientID       string  `json:"client_id"`
	Year           int     `json:"year"`
	Title          string  `json:"title"`
	Status         string  `json:"status"`
	Description    string  `json:"description"`
	Domain         string  `json:"domain"`
	Type           string  `json:"type"`
	LeadBy         string  `json:"lead_by"`
	Contract       string  `json:"contract"`
	SignedBy       string  `json:"signed_by"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	ExtDate        string  `json:"ext_date"`
	PaymentTerms   string  `json:"payment_terms"`
	PotentialValue float64 `json:"potential_value"`
	ActualValue    float64 `json:"actual_value"`
}

// GuestInput carries the fields accepted when adding or editing a
// project member.
type GuestInput struct {
	Fullname string `json:"fullname"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ModuleInput carries the fields accepted when attaching a workbook or
// facetime module.
type ModuleInput struct {
	Type    string `json:"type"`
	Version string `json:"version"`
	Title   string `json:"title"`
	Items   int    `json:"items"`
	URI     string `json:"uri"`
}

// BatchInput carries the fields accepted when scheduling a batch.
type BatchInput struct {
	LeadBy       string   `json:"lead_by"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	Participants []string `json:"participants"`
}

// CreateProject registers a project. Only project creators and
// superusers may create projects.
func (a *App) CreateProject(ctx context.Context, p domain.Principal, in ProjectInput) (domain.Project, error) {
	if !p.IsSuperuser() && !p.IsProjectCreator() {
		return domain.Project{}, ErrForbidden
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.Project{}, fmt.Errorf("%w: title required", ErrValidation)
	}
	if in.ClientID != "" && !util.IsValidID(in.ClientID) {
		return domain.Project{}, fmt.Errorf("%w: malformed client_id", ErrValidation)
	}
	project := domain.Project{
		ID:             util.NewID(),
		Owner:          p.Username,
		ClientID:       in.ClientID,
		Year:           in.Year,
		Title:          strings.TrimSpace(in.Title),
		Status:         in.Status,
		Description:    in.Description,
		Domain:         in.Domain,
		Type:           in.Type,
		LeadBy:         in.LeadBy,
		Contract:       in.Contract,
		SignedBy:       in.SignedBy,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		ExtDate:        in.ExtDate,
		PaymentTerms:   in.PaymentTerms,
		PotentialValue: in.PotentialValue,
		ActualValue:    in.ActualValue,
		Members:        []domain.Guest{},
		Workbooks:      []domain.Workbook{},
		Facetimes:      []domain.Workbook{},
		Batches:        []domain.Batch{},
	}
	created, err := a.store.CreateProject(ctx, project)
	if err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	return created, nil
}

// ListProjects returns projects, optionally filtered by owner.
func (a *App) ListProjects(ctx context.Context, owner string, limit, offset int) ([]domain.Project, error) {
	if limit <= 0 {
		limit = 50
	}
	return a.store.ListProjects(ctx, owner, limit, offset)
}

// GetProject returns one project if the principal may see it.
func (a *App) GetProject(ctx context.Context, p domain.Principal, id string) (domain.Project, error) {
	if err := a.requireAccess(ctx, p, id); err != nil {
		return domain.Project{}, err
	}
	project, found, err := a.store.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, fmt.Errorf("fetch project: %w", err)
	}
	if !found {
		return domain.Project{}, ErrNotFound
	}
	return project, nil
}

// UpdateProject edits project fields.
func (a *App) UpdateProject(ctx context.Context, p domain.Principal, id string, in ProjectInput) (domain.Project, error) {
	if err := a.requireManage(ctx, p, id); err != nil {
		return domain.Project{}, err
	}
	project, found, err := a.store.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, fmt.Errorf("fetch project: %w", err)
	}
	if !found {
		return domain.Project{}, ErrNotFound
	}
	if in.Title != "" {
		project.Title = strings.TrimSpace(in.Title)
	}
	if in.Year != 0 {
		project.Year = in.Year
	}
	if in.Status != "" {
		project.Status = in.Status
	}
	if in.Description != "" {
		project.Description = in.Description
	}
	if in.Domain != "" {
		project.Domain = in.Domain
	}
	if in.Type != "" {
		project.Type = in.Type
	}
	if in.LeadBy != "" {
		project.LeadBy = in.LeadBy
	}
	if in.Contract != "" {
		project.Contract = in.Contract
	}
	if in.SignedBy != "" {
		project.SignedBy = in.SignedBy
	}
	if in.StartDate != "" {
		project.StartDate = in.StartDate
	}
	if in.EndDate != "" {
		project.EndDate = in.EndDate
	}
	if in.ExtDate != "" {
		project.ExtDate = in.ExtDate
	}
	if in.PaymentTerms != "" {
		project.PaymentTerms = in.PaymentTerms
	}
	if in.PotentialValue != 0 {
		project.PotentialValue = in.PotentialValue
	}
	if in.ActualValue != 0 {
		project.ActualValue = in.ActualValue
	}
	updated, found, err := a.store.UpdateProject(ctx, id, project)
	if err != nil {
		return domain.Project{}, fmt.Errorf("update project: %w", err)
	}
	if !found {
		return domain.Project{}, ErrNotFound
	}
	return updated, nil
}

func (a *App) requireManage(ctx context.Context, p domain.Principal, prjID string) error {
	if !util.IsValidID(prjID) {
		return fmt.Errorf("%w: malformed project id", ErrValidation)
	}
	ok, err := a.canManageProject(ctx, p, prjID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (a *App) requireAccess(ctx context.Context, p domain.Principal, prjID string) error {
	if !util.IsValidID(prjID) {
		return fmt.Errorf("%w: malformed project id", ErrValidation)
	}
	ok, err := a.canAccessProject(ctx, p, prjID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// Members

// ListMembers returns the project's client or expert accounts.
func (a *App) ListMembers(ctx context.Context, p domain.Principal, prjID string, memberType domain.Scope) ([]domain.Guest, error) {
	if err := a.requireAccess(ctx, p, prjID); err != nil {
		return nil, err
	}
	members, err := a.store.ListMembers(ctx, prjID, memberType)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// AddMember embeds a client or expert account in the project. Username
// and email must be free across the whole members array; the check and
// the insert happen atomically in the store.
func (a *App) AddMember(ctx context.Context, p domain.Principal, prjID string, memberType domain.Scope, in GuestInput) (domain.Guest, error) {
	if err := a.requireManage(ctx, p, prjID); err != nil {
		return domain.Guest{}, err
	}
	username, err := domain.NormalizeUsername(in.Username)
	if err != nil {
		return domain.Guest{}, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Guest{}, fmt.Errorf("%w: valid email required", ErrValidation)
	}
	if strings.TrimSpace(in.Password) == "" {
		return domain.Guest{}, fmt.Errorf("%w: password required", ErrValidation)
	}
	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.Guest{}, fmt.Errorf("hash password: %w", err)
	}
	guest := domain.Guest{
		ID:             util.NewID(),
		Type:           memberType,
		Fullname:       in.Fullname,
		Username:       username,
		Email:          email,
		HashedPassword: hashed,
	}
	added, err := a.store.AddMember(ctx, prjID, guest)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return domain.Guest{}, ErrMemberExists
		case errors.Is(err, store.ErrNotFound):
			return domain.Guest{}, ErrNotFound
		}
		return domain.Guest{}, fmt.Errorf("add member: %w", err)
	}
	return added, nil
}

// EditMember updates an embedded member account; the password is
// re-hashed only when supplied.
func (a *App) EditMember(ctx context.Context, p domain.Principal, prjID string, memberType domain.Scope, username string, in GuestInput) (domain.Guest, error) {
	if err := a.requireManage(ctx, p, prjID); err != nil {
		return domain.Guest{}, err
	}
	existing, found, err := a.store.GetProjectMemberByType(ctx, prjID, username, memberType)
	if err != nil {
		return domain.Guest{}, fmt.Errorf("fetch member: %w", err)
	}
	if !found {
		return domain.Guest{}, ErrNotFound
	}
	guest := existing
	if in.Fullname != "" {
		guest.Fullname = in.Fullname
	}
	if in.Email != "" {
		guest.Email = strings.TrimSpace(strings.ToLower(in.Email))
	}
	if strings.TrimSpace(in.Password) != "" {
		hashed, err := auth.HashPassword(in.Password)
		if err != nil {
			return domain.Guest{}, fmt.Errorf("hash password: %w", err)
		}
		guest.HashedPassword = hashed
	}
	edited, err := a.store.EditMember(ctx, prjID, memberType, username, guest)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Guest{}, ErrNotFound
		}
		return domain.Guest{}, fmt.Errorf("edit member: %w", err)
	}
	return edited, nil
}

// RemoveMember drops an embedded member account and returns the
// remaining members of that type.
func (a *App) RemoveMember(ctx context.Context, p domain.Principal, prjID string, memberType domain.Scope, username string) ([]domain.Guest, error) {
	if err := a.requireManage(ctx, p, prjID); err != nil {
		return nil, err
	}
	remaining, err := a.store.RemoveMember(ctx, prjID, memberType, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("remove member: %w", err)
	}
	kept := make([]domain.Guest, 0, len(remaining))
	for _, g := range remaining {
		if g.Type == memberType {
			kept = append(kept, g)
		}
	}
	return kept, nil
}

// Modules

// ListModules returns the project's workbook and facetime modules.
func (a *App) ListModules(ctx context.Context, p domain.Principal, prjID string) ([]domain.Workbook, []domain.Workbook, error) {
	if err := a.requireAccess(ctx, p, prjID); err != nil {
		return nil, nil, err
	}
	workbooks, facetimes, err := a.store.ListModules(ctx, prjID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("list modules: %w", err)
	}
	return workbooks, facetimes, nil
}

// AddModule attaches a module to the project. The type is upper-cased
// and must be unique within its array.
func (a *App) AddModule(ctx context.Context, p domain.Principal, prjID string, group store.ModuleGroup, in ModuleInput) (domain.Workbook, error) {
	if err := a.requireManage(ctx, p, prjID); err != nil {
		return domain.Workbook{}, err
	}
	moduleType := domain.NormalizeModuleType(in.Type)
	if moduleType == "" {
		return domain.Workbook{}, fmt.Errorf("%w: module type required", ErrValidation)
	}
	wb := domain.Workbook{
		Type:    moduleType,
		Version: in.Version,
		Title:   in.Title,
		Items:   in.Items,
		URI:     in.URI,
	}
	added, err := a.store.AddModule(ctx, prjID, group, wb)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return domain.Workbook{}, ErrModuleExists
		case errors.Is(err, store.ErrNotFound):
			return domain.Workbook{}, ErrNotFound
		}
		return domain.Workbook{}, fmt.Errorf("add module: %w", err)
	}
	return added, nil
}

// EditModule updates a module in place, keyed by its type.
func (a *App) EditModule(ctx context.Context, p domain.Principal, prjID string, group store.ModuleGroup, moduleType string, in ModuleInput) (domain.Workbook, error) {
	if err := a.requireManage(ctx, p, prjID); err != nil {
		return domain.Workbook{}, err
	}
	wb := domain.Workbook{
		Type:    domain.NormalizeModuleType(moduleType),
		Version: in.Version,
		Title:   in.Title,
		Items:   in.Items,
		URI:     in.URI,
	}
	edited, err := a.store.EditModule(ctx, prjID, group, wb.Type, wb)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Workbook{}, ErrNotFound
		}
		return domain.Workbook{}, fmt.Errorf("edit module: %w", err)
	}
	return edited, nil
}

// DeleteModule removes a module and returns the remaining ones of its
// group.
func (a *App) DeleteModule(ctx context.Context, p domain.Principal, prjID string, group store.ModuleGroup, moduleType string) ([]domain.Workbook, error) {
	if err := a.requireManage(ctx, p, prjID); err != nil {
		return nil, err
	}
	remaining, err := a.store.DeleteModule(ctx, prjID, group, domain.NormalizeModuleType(moduleType))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete module: %w", err)
	}
	return remaining, nil
}

// UploadModuleAsset stores an asset file for a module and rewrites the
// module's uri to a presigned link key.
func (a *App) UploadModuleAsset(ctx context.Context, p domain.Principal, prjID string, group store.ModuleGroup, moduleType, filename, contentType string, r io.Reader, size int64) (string, error) {
	if err := a.requireManage(ctx, p, prjID); err != nil {
		return "", err
	}
	if a.assets == nil {
		return "", fmt.Errorf("%w: asset storage not configured", ErrValidation)
	}
	moduleType = domain.NormalizeModuleType(moduleType)
	key := storage.AssetKey(prjID, string(group), moduleType, filename)
	if err := a.assets.Put(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("store asset: %w", err)
	}
	workbooks, facetimes, err := a.store.ListModules(ctx, prjID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("list modules: %w", err)
	}
	modules := workbooks
	if group == store.GroupFacetimes {
		modules = facetimes
	}
	for _, m := range modules {
		if m.Type == moduleType {
			m.URI = key
			if _, err := a.store.EditModule(ctx, prjID, group, moduleType, m); err != nil {
				return "", fmt.Errorf("update module uri: %w", err)
			}
			return key, nil
		}
	}
	return "", ErrNotFound
}

// PresignModuleAsset returns a short-lived download URL for a module's
// stored asset.
func (a *App) PresignModuleAsset(ctx context.Context, p domain.Principal, prjID string, group store.ModuleGroup, moduleType string) (string, error) {
	if err := a.requireAccess(ctx, p, prjID); err != nil {
		return "", err
	}
	if a.assets == nil {
		return "", fmt.Errorf("%w: asset storage not configured", ErrValidation)
	}
	workbooks, facetimes, err := a.store.ListModules(ctx, prjID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("list modules: %w", err)
	}
	modules := workbooks
	if group == store.GroupFacetimes {
		modules = facetimes
	}
	moduleType = domain.NormalizeModuleType(moduleType)
	for _, m := range modules {
		if m.Type == moduleType && m.URI != "" {
			return a.assets.PresignGet(ctx, m.URI, 15*time.Minute)
		}
	}
	return "", ErrNotFound
}

// Batches

// ListBatches returns the project's scheduled batches.
func (a *App) ListBatches(ctx context.Context, p domain.Principal, prjID string) ([]domain.Batch, error) {
	if err := a.requireAccess(ctx, p, prjID); err != nil {
		return nil, err
	}
	batches, err := a.store.ListBatches(ctx, prjID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// CreateBatch schedules a batch; the id is generated server-side.
func (a *App) CreateBatch(ctx context.Context, p domain.Principal, prjID string, in BatchInput) (domain.Batch, error) {
	if err := a.requireManage(ctx, p, prjID); err != nil {
		return domain.Batch{}, err
	}
	batch := domain.Batch{
		BatchID:          util.NewID(),
		LeadBy:           in.LeadBy,
		StartTime:        in.StartTime,
		EndTime:          in.EndTime,
		Participants:     emptyIfNil(in.Participants),
		WorkbookSessions: []domain.WorkbookSession{},
		FacetimeSessions: []domain.FacetimeSession{},
	}
	created, err := a.store.CreateBatch(ctx, prjID, batch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Batch{}, ErrNotFound
		}
		return domain.Batch{}, fmt.Errorf("create batch: %w", err)
	}
	return created, nil
}

// AddWorkbookSession schedules a workbook module within a batch. Module
// names are upper-cased and unique per batch across both session kinds.
func (a *App) AddWorkbookSession(ctx context.Context, p domain.Principal, prjID, batchID string, session domain.WorkbookSession) (domain.WorkbookSession, error) {
	if err := a.requireManage(ctx, p, prjID); err != nil {
		return domain.WorkbookSession{}, err
	}
	session.Module = domain.NormalizeModuleType(session.Module)
	if session.Module == "" {
		return domain.WorkbookSession{}, fmt.Errorf("%w: module required", ErrValidation)
	}
	if session.Panel == nil {
		session.Panel = []string{}
	}
	added, err := a.store.AddWorkbookSession(ctx, prjID, batchID, session)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return domain.WorkbookSession{}, ErrSessionExists
		case errors.Is(err, store.ErrNotFound):
			return domain.WorkbookSession{}, ErrNotFound
		}
		return domain.WorkbookSession{}, fmt.Errorf("add workbook session: %w", err)
	}
	return added, nil
}

// AddFacetimeSession schedules a facetime module within a batch.
func (a *App) AddFacetimeSession(ctx context.Context, p domain.Principal, prjID, batchID string, session domain.FacetimeSession) (domain.FacetimeSession, error) {
	if err := a.requireManage(ctx, p, prjID); err != nil {
		return domain.FacetimeSession{}, err
	}
	session.Module = domain.NormalizeModuleType(session.Module)
	if session.Module == "" {
		return domain.FacetimeSession{}, fmt.Errorf("%w: module required", ErrValidation)
	}
	if session.Panel == nil {
		session.Panel = []string{}
	}
	if session.Roster == nil {
		session.Roster = []domain.Turn{}
	}
	added, err := a.store.AddFacetimeSession(ctx, prjID, batchID, session)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return domain.FacetimeSession{}, ErrSessionExists
		case errors.Is(err, store.ErrNotFound):
			return domain.FacetimeSession{}, ErrNotFound
		}
		return domain.FacetimeSession{}, fmt.Errorf("add facetime session: %w", err)
	}
	return added, nil
}

// batchBatteries maps a batch's sessions, workbook first, onto battery
// assignments.
func batchBatteries(b domain.Batch) []domain.Battery {
	batteries := make([]domain.Battery, 0, len(b.WorkbookSessions)+len(b.FacetimeSessions))
	for _, s := range b.WorkbookSessions {
		batteries = append(batteries, domain.Battery{Type: s.Module, Items: s.ModuleItems})
	}
	for _, s := range b.FacetimeSessions {
		batteries = append(batteries, domain.Battery{Type: s.Module, Items: s.ModuleItems})
	}
	return batteries
}

// PreparePersonaBatteries overwrites the batteries and progress of every
// persona participating in the batch to mirror the batch's session
// composition. Returns the number of updated personas.
func (a *App) PreparePersonaBatteries(ctx context.Context, p domain.Principal, prjID, batchID string) (int64, error) {
	if err := a.requireManage(ctx, p, prjID); err != nil {
		return 0, err
	}
	batch, found, err := a.store.GetBatch(ctx, prjID, batchID)
	if err != nil {
		return 0, fmt.Errorf("fetch batch: %w", err)
	}
	if !found {
		return 0, ErrNotFound
	}
	batteries := batchBatteries(batch)
	if len(batteries) == 0 {
		return 0, ErrEmptyBatch
	}
	if len(batch.Participants) == 0 {
		return 0, ErrNoParticipants
	}
	progress := domain.Progress{
		State: domain.ProgressIdle,
		Next:  batteries[0].Type,
	}
	count, err := a.store.SetPersonaBatteries(ctx, prjID, batch.Participants, batteries, progress)
	if err != nil {
		return 0, fmt.Errorf("set batteries: %w", err)
	}
	a.publish(ctx, events.Event{
		Name:    events.BatchPrepared,
		PrjID:   prjID,
		Subject: batchID,
		Metadata: map[string]any{
			"participants": len(batch.Participants),
			"updated":      count,
		},
	})
	return count, nil
}

// PreparePersonaEvidences creates an answer template for every
// participant of the batch, one per evidence-backed session module.
// Returns the number of templates created.
func (a *App) PreparePersonaEvidences(ctx context.Context, p domain.Principal, prjID, batchID string) (int64, error) {
	if err := a.requireManage(ctx, p, prjID); err != nil {
		return 0, err
	}
	batch, found, err := a.store.GetBatch(ctx, prjID, batchID)
	if err != nil {
		return 0, fmt.Errorf("fetch batch: %w", err)
	}
	if !found {
		return 0, ErrNotFound
	}
	if len(batch.Participants) == 0 {
		return 0, ErrNoParticipants
	}
	var created int64
	for _, s := range batch.WorkbookSessions {
		if s.Module != "GPQ" {
			continue
		}
		rows := s.ModuleItems
		if rows <= 0 {
			rows = a.gpqRows
		}
		for _, username := range batch.Participants {
			persona, found, err := a.store.GetPersonaByName(ctx, prjID, username)
			if err != nil {
				return created, fmt.Errorf("fetch persona: %w", err)
			}
			if !found {
				continue
			}
			if _, err := a.createGPQTemplate(ctx, prjID, persona.Username, persona.Fullname, rows); err != nil {
				return created, err
			}
			created++
		}
	}
	a.publish(ctx, events.Event{
		Name:    events.EvidencePrepared,
		PrjID:   prjID,
		Subject: batchID,
		Metadata: map[string]any{
			"created": created,
		},
	})
	return created, nil
}

func (a *App) publish(ctx context.Context, ev events.Event) {
	if a.events == nil {
		return
	}
	if ev.At == 0 {
		ev.At = a.nowMillis()
	}
	if err := a.events.Publish(ctx, ev); err != nil {
		util.LoggerFromContext(ctx).Warn("event publish failed", "event", ev.Name, "error", err)
	}
}
