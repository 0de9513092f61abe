package store

import (
	"context"
	"errors"

	"assessd/pkg/domain"
)

var (
	// ErrNotFound indicates the document (or nested element) does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicate indicates a uniqueness precondition failed: member
	// username/email, module type, session module, company symbol, or
	// persona username within a project.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrOutOfRange indicates an evidence row seq outside 1..len(records).
	ErrOutOfRange = errors.New("row seq out of range")
)

// ModuleGroup selects which module array of a project a mutation targets.
type ModuleGroup string

const (
	GroupWorkbooks ModuleGroup = "workbooks"
	GroupFacetimes ModuleGroup = "facetimes"
)

// Store is the document access layer. Nested-array mutations (members,
// modules, batches, sessions) are atomic per project document: the
// uniqueness precondition and the write happen under the same document
// lock, never as a separate check-then-act pair.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	// GetGaiaUser looks up a gaia-typed user by username (gaia scope login).
	GetGaiaUser(ctx context.Context, username string) (domain.User, bool, error)
	// GetLicenseUser looks up a license-typed user by id and username
	// (license scope login: the token context is the license-holder id).
	GetLicenseUser(ctx context.Context, id, username string) (domain.User, bool, error)
	ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error)
	UpdateUser(ctx context.Context, id string, u domain.User) (domain.User, bool, error)

	// Companies
	CreateCompany(ctx context.Context, c domain.Company) (domain.Company, error)
	GetCompanyByID(ctx context.Context, id string) (domain.Company, bool, error)
	GetCompanyBySymbol(ctx context.Context, symbol string) (domain.Company, bool, error)
	// ListCompanies filters by creator when createdBy is non-empty.
	ListCompanies(ctx context.Context, createdBy string, limit, offset int) ([]domain.Company, error)
	UpdateCompany(ctx context.Context, id string, c domain.Company) (domain.Company, bool, error)
	AddContacts(ctx context.Context, id string, contacts []domain.Contact) ([]domain.Contact, error)
	RemoveContact(ctx context.Context, id, fullname string) ([]domain.Contact, error)

	// Projects
	CreateProject(ctx context.Context, p domain.Project) (domain.Project, error)
	GetProject(ctx context.Context, id string) (domain.Project, bool, error)
	// ListProjects filters by owner when owner is non-empty.
	ListProjects(ctx context.Context, owner string, limit, offset int) ([]domain.Project, error)
	UpdateProject(ctx context.Context, id string, p domain.Project) (domain.Project, bool, error)
	GetProjectLead(ctx context.Context, id string) (string, bool, error)

	// Project members
	GetProjectMember(ctx context.Context, prjID, username string) (domain.Guest, bool, error)
	GetProjectMemberByType(ctx context.Context, prjID, username string, memberType domain.Scope) (domain.Guest, bool, error)
	ListMembers(ctx context.Context, prjID string, memberType domain.Scope) ([]domain.Guest, error)
	AddMember(ctx context.Context, prjID string, g domain.Guest) (domain.Guest, error)
	EditMember(ctx context.Context, prjID string, memberType domain.Scope, username string, g domain.Guest) (domain.Guest, error)
	RemoveMember(ctx context.Context, prjID string, memberType domain.Scope, username string) ([]domain.Guest, error)

	// Project modules
	ListModules(ctx context.Context, prjID string) (workbooks, facetimes []domain.Workbook, err error)
	AddModule(ctx context.Context, prjID string, group ModuleGroup, wb domain.Workbook) (domain.Workbook, error)
	EditModule(ctx context.Context, prjID string, group ModuleGroup, moduleType string, wb domain.Workbook) (domain.Workbook, error)
	DeleteModule(ctx context.Context, prjID string, group ModuleGroup, moduleType string) ([]domain.Workbook, error)

	// Project batches
	ListBatches(ctx context.Context, prjID string) ([]domain.Batch, error)
	GetBatch(ctx context.Context, prjID, batchID string) (domain.Batch, bool, error)
	CreateBatch(ctx context.Context, prjID string, b domain.Batch) (domain.Batch, error)
	AddWorkbookSession(ctx context.Context, prjID, batchID string, s domain.WorkbookSession) (domain.WorkbookSession, error)
	AddFacetimeSession(ctx context.Context, prjID, batchID string, s domain.FacetimeSession) (domain.FacetimeSession, error)

	// Personas
	CreatePersona(ctx context.Context, p domain.Persona) (domain.Persona, error)
	GetPersonaByID(ctx context.Context, id string) (domain.Persona, bool, error)
	GetPersonaByName(ctx context.Context, prjID, username string) (domain.Persona, bool, error)
	// ListPersonas filters by project when prjID is non-empty.
	ListPersonas(ctx context.Context, prjID string, limit, offset int) ([]domain.Persona, error)
	UpdatePersona(ctx context.Context, id string, p domain.Persona) (domain.Persona, bool, error)
	SetPersonaProgress(ctx context.Context, prjID, username string, progress domain.Progress) (domain.Progress, bool, error)
	// SetPersonaBatteries bulk-overwrites batteries and progress of every
	// persona in the project whose username is listed. Returns the number
	// of personas updated.
	SetPersonaBatteries(ctx context.Context, prjID string, usernames []string, batteries []domain.Battery, progress domain.Progress) (int64, error)

	// GPQ evidences
	CreateEvidence(ctx context.Context, ev domain.GPQEvidence) (domain.GPQEvidence, error)
	GetEvidence(ctx context.Context, id string) (domain.GPQEvidence, bool, error)
	// ListEvidences filters by project when prjID is non-empty.
	ListEvidences(ctx context.Context, prjID string, limit, offset int) ([]domain.GPQEvidence, error)
	GetEvidenceTiming(ctx context.Context, id string) (domain.EvidenceTiming, bool, error)
	// MarkEvidenceInitiated sets initiated and touched in one write.
	MarkEvidenceInitiated(ctx context.Context, id string, ts int64) error
	// MarkEvidenceStarted sets started and touched in one write.
	MarkEvidenceStarted(ctx context.Context, id string, ts int64) error
	// TouchEvidence sets touched only.
	TouchEvidence(ctx context.Context, id string, ts int64) error
	// SaveEvidenceRow writes the row at position row.Seq-1 and sets the
	// document's touched to row.Saved in the same write.
	SaveEvidenceRow(ctx context.Context, id string, row domain.GPQRow) error
}
