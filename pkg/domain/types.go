package domain

// Scope identifies the principal class carried in an access token. It
// determines which lookup strategy authenticates the caller and which
// authorization source applies afterwards.
type Scope string

const (
	ScopeGaia    Scope = "gaia"
	ScopeLicense Scope = "license"
	ScopeClient  Scope = "client"
	ScopeExpert  Scope = "expert"
	ScopePersona Scope = "persona"
)

// ParseScope maps a raw scope string to a known Scope.
func ParseScope(s string) (Scope, bool) {
	switch Scope(s) {
	case ScopeGaia, ScopeLicense, ScopeClient, ScopeExpert, ScopePersona:
		return Scope(s), true
	default:
		return "", false
	}
}

// Admin role tags carried by gaia/license users.
const (
	RoleSuperuser        = "superuser"
	RoleLicensePublisher = "license-publisher"
	RoleProjectCreator   = "project-creator"
	RoleProjectManager   = "project-manager"
	RoleProjectMember    = "project-member"
)

// Progress states of a persona working through its batteries.
const (
	ProgressIdle     = "idle"
	ProgressWorking  = "working"
	ProgressPaused   = "paused"
	ProgressFinished = "finished"
)

// User is a global account: gaia staff or a license holder.
type User struct {
	ID             string   `json:"id"`
	Fullname       string   `json:"fullname"`
	Username       string   `json:"username"`
	Email          string   `json:"email"`
	Type           Scope    `json:"type"`
	AdminRoles     []string `json:"admin_roles"`
	HashedPassword string   `json:"-"`
	Disabled       bool     `json:"disabled"`
}

// Contact is an entry in a company's contact list.
type Contact struct {
	Fullname string `json:"fullname"`
	Email    string `json:"email,omitempty"`
	Gender   string `json:"gender,omitempty"`
	Birth    string `json:"birth,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Note     string `json:"note,omitempty"`
}

// Company is a client organization owning assessment projects.
type Company struct {
	ID          string    `json:"id"`
	CreatedBy   string    `json:"created_by"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	OrgType     string    `json:"org_type,omitempty"`
	Industry    []string  `json:"industry"`
	Products    []string  `json:"products"`
	Description string    `json:"description,omitempty"`
	Address     string    `json:"address,omitempty"`
	Homepage    string    `json:"homepage,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Contacts    []Contact `json:"contacts"`
}

// Guest is a project-embedded account: a client or an expert. Guests
// authenticate against the hash embedded in the project document.
type Guest struct {
	ID             string `json:"id"`
	Type           Scope  `json:"type"`
	Fullname       string `json:"fullname"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	HashedPassword string `json:"-"`
}

// Workbook describes one assessment module attached to a project,
// either a self-administered workbook or a facetime module. Type is
// upper-cased and unique within its array.
type Workbook struct {
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
	Title   string `json:"title,omitempty"`
	Items   int    `json:"items"`
	URI     string `json:"uri,omitempty"`
}

// Turn is one participant slot in a facetime roster.
type Turn struct {
	Username  string `json:"username"`
	StartTime string `json:"start_time,omitempty"`
}

// WorkbookSession schedules a workbook module within a batch.
type WorkbookSession struct {
	Module      string   `json:"module"`
	ModuleItems int      `json:"module_items"`
	StartTime   string   `json:"start_time,omitempty"`
	Duration    int      `json:"duration"`
	Panel       []string `json:"panel"`
}

// FacetimeSession schedules an interview/discussion module within a batch.
type FacetimeSession struct {
	Module      string   `json:"module"`
	ModuleItems int      `json:"module_items"`
	Duration    int      `json:"duration"`
	Panel       []string `json:"panel"`
	Roster      []Turn   `json:"roster"`
}

// Batch is a scheduled grouping of participants and sessions.
type Batch struct {
	BatchID          string            `json:"batch_id"`
	LeadBy           string            `json:"lead_by,omitempty"`
	StartTime        string            `json:"start_time,omitempty"`
	EndTime          string            `json:"end_time,omitempty"`
	Participants     []string          `json:"participants"`
	WorkbookSessions []WorkbookSession `json:"workbook_sessions"`
	FacetimeSessions []FacetimeSession `json:"facetime_sessions"`
}

// Project is the aggregate document: members, modules, and batches are
// nested arrays mutated in place.
type Project struct {
	ID             string     `json:"id"`
	Owner          string     `json:"owner"`
	ClientID       string     `json:"client_id"`
	Year           int        `json:"year"`
	Title          string     `json:"title"`
	Status         string     `json:"status"`
	Description    string     `json:"description,omitempty"`
	Domain         string     `json:"domain,omitempty"`
	Type           string     `json:"type,omitempty"`
	LeadBy         string     `json:"lead_by,omitempty"`
	Contract       string     `json:"contract,omitempty"`
	SignedBy       string     `json:"signed_by,omitempty"`
	StartDate      string     `json:"start_date,omitempty"`
	EndDate        string     `json:"end_date,omitempty"`
	ExtDate        string     `json:"ext_date,omitempty"`
	PaymentTerms   string     `json:"payment_terms,omitempty"`
	PotentialValue float64    `json:"potential_value,omitempty"`
	ActualValue    float64    `json:"actual_value,omitempty"`
	Members        []Guest    `json:"members"`
	Workbooks      []Workbook `json:"workbooks"`
	Facetimes      []Workbook `json:"facetimes"`
	Batches        []Batch    `json:"batches"`
}

// Battery is one module assigned to a persona, with an item count and
// touch timestamp (epoch milliseconds, 0 = untouched).
type Battery struct {
	Type    string `json:"type"`
	Items   int    `json:"items"`
	Touched int64  `json:"touched"`
}

// Progress tracks where a persona is within its batteries.
type Progress struct {
	State   string `json:"state"`
	Battery string `json:"battery,omitempty"`
	Touched int64  `json:"touched,omitempty"`
	Next    string `json:"next,omitempty"`
}

// Persona is a project-scoped participant account. Usernames are unique
// within a project, not globally.
type Persona struct {
	ID             string    `json:"id"`
	PrjID          string    `json:"prj_id"`
	License        string    `json:"license"`
	Fullname       string    `json:"fullname"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	Gender         string    `json:"gender,omitempty"`
	BirthDate      string    `json:"birth_date,omitempty"`
	NIP            string    `json:"nip,omitempty"`
	Position       string    `json:"position,omitempty"`
	CurrentLevel   string    `json:"current_level,omitempty"`
	TargetLevel    string    `json:"target_level,omitempty"`
	Batteries      []Battery `json:"batteries"`
	Progress       Progress  `json:"progress"`
}

// GPQRow is one scored item of a GPQ evidence form. Seq is the canonical
// storage order (1..N), WbSeq the randomized presentation order.
// Saved and Elapsed must come from the same time source.
type GPQRow struct {
	Seq       int    `json:"seq"`
	WbSeq     int    `json:"wb_seq"`
	Element   string `json:"element,omitempty"`
	Statement string `json:"statement,omitempty"`
	Saved     int64  `json:"saved,omitempty"`
	Elapsed   int64  `json:"elapsed,omitempty"`
}

// GPQEvidence is the per-participant GPQ answer document. Timestamps are
// epoch milliseconds; 0 means the transition has not happened yet.
type GPQEvidence struct {
	ID        string   `json:"id"`
	PrjID     string   `json:"prj_id"`
	Username  string   `json:"username"`
	Fullname  string   `json:"fullname"`
	Initiated int64    `json:"initiated,omitempty"`
	Started   int64    `json:"started,omitempty"`
	Touched   int64    `json:"touched,omitempty"`
	Records   []GPQRow `json:"records"`
}

// EvidenceTiming is the lifecycle timestamp triple of an evidence
// document, in epoch milliseconds. Zero means the transition has not
// happened yet.
type EvidenceTiming struct {
	Initiated int64 `json:"initiated"`
	Started   int64 `json:"started"`
	Touched   int64 `json:"touched"`
}

// Principal is the resolved caller identity: one of the five scopes,
// normalized to a single shape after the scope-dispatched lookup.
type Principal struct {
	ID         string   `json:"id"`
	Username   string   `json:"username"`
	Fullname   string   `json:"fullname"`
	Scope      Scope    `json:"scope"`
	Context    string   `json:"context,omitempty"`
	AdminRoles []string `json:"admin_roles"`
	Disabled   bool     `json:"disabled"`
}

// HasRole reports whether the principal carries an admin role tag.
// Only gaia/license principals carry roles; the resolver strips them
// for project-scoped principals.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.AdminRoles {
		if r == role {
			return true
		}
	}
	return false
}

// IsSuperuser reports whether the principal is a superuser.
func (p Principal) IsSuperuser() bool {
	return p.HasRole(RoleSuperuser)
}

// IsProjectCreator reports whether the principal may create projects.
func (p Principal) IsProjectCreator() bool {
	return p.HasRole(RoleProjectCreator)
}
