package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"assessd/pkg/domain"
)

// MemoryStore is an in-memory Store used in tests and local runs. It
// mirrors GormStore's semantics, including duplicate detection inside
// the same critical section as the write.
type MemoryStore struct {
	mu        sync.RWMutex
	seq       int
	users     map[string]domain.User
	companies map[string]domain.Company
	projects  map[string]domain.Project
	personas  map[string]domain.Persona
	evidences map[string]domain.GPQEvidence
	order     map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		companies: make(map[string]domain.Company),
		projects:  make(map[string]domain.Project),
		personas:  make(map[string]domain.Persona),
		evidences: make(map[string]domain.GPQEvidence),
		order:     make(map[string]int),
	}
}

func (s *MemoryStore) track(id string) {
	s.seq++
	s.order[id] = s.seq
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Users

func (s *MemoryStore) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return domain.User{}, ErrDuplicate
		}
	}
	s.users[u.ID] = u
	s.track(u.ID)
	return u, nil
}

func (s *MemoryStore) findUser(match func(domain.User) bool) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (domain.User, bool, error) {
	return s.findUser(func(u domain.User) bool { return u.Username == username })
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	return s.findUser(func(u domain.User) bool { return u.Email == email })
}

func (s *MemoryStore) GetGaiaUser(ctx context.Context, username string) (domain.User, bool, error) {
	return s.findUser(func(u domain.User) bool {
		return u.Username == username && u.Type == domain.ScopeGaia
	})
}

func (s *MemoryStore) GetLicenseUser(ctx context.Context, id, username string) (domain.User, bool, error) {
	return s.findUser(func(u domain.User) bool {
		return u.ID == id && u.Username == username && u.Type == domain.ScopeLicense
	})
}

func (s *MemoryStore) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return s.order[users[i].ID] < s.order[users[j].ID] })
	return paginate(users, limit, offset), nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id string, u domain.User) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[id]
	if !ok {
		return domain.User{}, false, nil
	}
	existing.Fullname = u.Fullname
	existing.Email = u.Email
	existing.AdminRoles = u.AdminRoles
	existing.HashedPassword = u.HashedPassword
	existing.Disabled = u.Disabled
	s.users[id] = existing
	return existing, true, nil
}

// Companies

func (s *MemoryStore) CreateCompany(ctx context.Context, c domain.Company) (domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.companies {
		if existing.Symbol == c.Symbol {
			return domain.Company{}, ErrDuplicate
		}
	}
	s.companies[c.ID] = c
	s.track(c.ID)
	return c, nil
}

func (s *MemoryStore) GetCompanyByID(ctx context.Context, id string) (domain.Company, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	return c, ok, nil
}

func (s *MemoryStore) GetCompanyBySymbol(ctx context.Context, symbol string) (domain.Company, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.companies {
		if c.Symbol == symbol {
			return c, true, nil
		}
	}
	return domain.Company{}, false, nil
}

func (s *MemoryStore) ListCompanies(ctx context.Context, createdBy string, limit, offset int) ([]domain.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	companies := make([]domain.Company, 0, len(s.companies))
	for _, c := range s.companies {
		if createdBy == "" || c.CreatedBy == createdBy {
			companies = append(companies, c)
		}
	}
	sort.Slice(companies, func(i, j int) bool { return s.order[companies[i].ID] < s.order[companies[j].ID] })
	return paginate(companies, limit, offset), nil
}

func (s *MemoryStore) UpdateCompany(ctx context.Context, id string, c domain.Company) (domain.Company, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.companies[id]
	if !ok {
		return domain.Company{}, false, nil
	}
	existing.Name = c.Name
	existing.OrgType = c.OrgType
	existing.Industry = c.Industry
	existing.Products = c.Products
	existing.Description = c.Description
	existing.Address = c.Address
	existing.Homepage = c.Homepage
	existing.Email = c.Email
	existing.Phone = c.Phone
	s.companies[id] = existing
	return existing, true, nil
}

func (s *MemoryStore) AddContacts(ctx context.Context, id string, contacts []domain.Contact) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.Contacts = append(c.Contacts, contacts...)
	s.companies[id] = c
	return c.Contacts, nil
}

func (s *MemoryStore) RemoveContact(ctx context.Context, id, fullname string) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	kept := make([]domain.Contact, 0, len(c.Contacts))
	for _, contact := range c.Contacts {
		if contact.Fullname != fullname {
			kept = append(kept, contact)
		}
	}
	c.Contacts = kept
	s.companies[id] = c
	return c.Contacts, nil
}

// Projects

func (s *MemoryStore) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	s.track(p.ID)
	return p, nil
}

func (s *MemoryStore) GetProject(ctx context.Context, id string) (domain.Project, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	return p, ok, nil
}

func (s *MemoryStore) ListProjects(ctx context.Context, owner string, limit, offset int) ([]domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	projects := make([]domain.Project, 0, len(s.projects))
	for _, p := range s.projects {
		if owner == "" || p.Owner == owner {
			projects = append(projects, p)
		}
	}
	sort.Slice(projects, func(i, j int) bool { return s.order[projects[i].ID] < s.order[projects[j].ID] })
	return paginate(projects, limit, offset), nil
}

func (s *MemoryStore) UpdateProject(ctx context.Context, id string, p domain.Project) (domain.Project, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.projects[id]
	if !ok {
		return domain.Project{}, false, nil
	}
	existing.Year = p.Year
	existing.Title = p.Title
	existing.Status = p.Status
	existing.Description = p.Description
	existing.Domain = p.Domain
	existing.Type = p.Type
	existing.LeadBy = p.LeadBy
	existing.Contract = p.Contract
	existing.SignedBy = p.SignedBy
	existing.StartDate = p.StartDate
	existing.EndDate = p.EndDate
	existing.ExtDate = p.ExtDate
	existing.PaymentTerms = p.PaymentTerms
	existing.PotentialValue = p.PotentialValue
	existing.ActualValue = p.ActualValue
	s.projects[id] = existing
	return existing, true, nil
}

func (s *MemoryStore) GetProjectLead(ctx context.Context, id string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return "", false, nil
	}
	return p.LeadBy, true, nil
}

func (s *MemoryStore) withProject(id string, fn func(p *domain.Project) error) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, ErrNotFound
	}
	if err := fn(&p); err != nil {
		return domain.Project{}, err
	}
	s.projects[id] = p
	return p, nil
}

// Project members

func (s *MemoryStore) GetProjectMember(ctx context.Context, prjID, username string) (domain.Guest, bool, error) {
	p, found, err := s.GetProject(ctx, prjID)
	if err != nil || !found {
		return domain.Guest{}, false, err
	}
	return findMember(p.Members, username, "")
}

func (s *MemoryStore) GetProjectMemberByType(ctx context.Context, prjID, username string, memberType domain.Scope) (domain.Guest, bool, error) {
	p, found, err := s.GetProject(ctx, prjID)
	if err != nil || !found {
		return domain.Guest{}, false, err
	}
	return findMember(p.Members, username, memberType)
}

func (s *MemoryStore) ListMembers(ctx context.Context, prjID string, memberType domain.Scope) ([]domain.Guest, error) {
	p, found, err := s.GetProject(ctx, prjID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	guests := make([]domain.Guest, 0, len(p.Members))
	for _, g := range p.Members {
		if memberType == "" || g.Type == memberType {
			guests = append(guests, g)
		}
	}
	return guests, nil
}

func (s *MemoryStore) AddMember(ctx context.Context, prjID string, g domain.Guest) (domain.Guest, error) {
	_, err := s.withProject(prjID, func(p *domain.Project) error {
		for _, m := range p.Members {
			if m.Username == g.Username || m.Email == g.Email {
				return ErrDuplicate
			}
		}
		p.Members = append(p.Members, g)
		return nil
	})
	if err != nil {
		return domain.Guest{}, err
	}
	return g, nil
}

func (s *MemoryStore) EditMember(ctx context.Context, prjID string, memberType domain.Scope, username string, g domain.Guest) (domain.Guest, error) {
	var edited domain.Guest
	_, err := s.withProject(prjID, func(p *domain.Project) error {
		for i, m := range p.Members {
			if m.Username == username && m.Type == memberType {
				g.ID = m.ID
				g.Type = m.Type
				if g.HashedPassword == "" {
					g.HashedPassword = m.HashedPassword
				}
				members := append([]domain.Guest{}, p.Members...)
				members[i] = g
				p.Members = members
				edited = g
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return domain.Guest{}, err
	}
	return edited, nil
}

func (s *MemoryStore) RemoveMember(ctx context.Context, prjID string, memberType domain.Scope, username string) ([]domain.Guest, error) {
	p, err := s.withProject(prjID, func(p *domain.Project) error {
		kept := make([]domain.Guest, 0, len(p.Members))
		removed := false
		for _, m := range p.Members {
			if m.Username == username && m.Type == memberType {
				removed = true
				continue
			}
			kept = append(kept, m)
		}
		if !removed {
			return ErrNotFound
		}
		p.Members = kept
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.Members, nil
}

// Project modules

func (s *MemoryStore) ListModules(ctx context.Context, prjID string) ([]domain.Workbook, []domain.Workbook, error) {
	p, found, err := s.GetProject(ctx, prjID)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, ErrNotFound
	}
	return p.Workbooks, p.Facetimes, nil
}

func (s *MemoryStore) AddModule(ctx context.Context, prjID string, group ModuleGroup, wb domain.Workbook) (domain.Workbook, error) {
	_, err := s.withProject(prjID, func(p *domain.Project) error {
		arr := moduleArray(p, group)
		for _, m := range *arr {
			if m.Type == wb.Type {
				return ErrDuplicate
			}
		}
		*arr = append(*arr, wb)
		return nil
	})
	if err != nil {
		return domain.Workbook{}, err
	}
	return wb, nil
}

func (s *MemoryStore) EditModule(ctx context.Context, prjID string, group ModuleGroup, moduleType string, wb domain.Workbook) (domain.Workbook, error) {
	var edited domain.Workbook
	_, err := s.withProject(prjID, func(p *domain.Project) error {
		arr := moduleArray(p, group)
		for i, m := range *arr {
			if m.Type == moduleType {
				wb.Type = moduleType
				modules := append([]domain.Workbook{}, *arr...)
				modules[i] = wb
				*arr = modules
				edited = wb
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return domain.Workbook{}, err
	}
	return edited, nil
}

func (s *MemoryStore) DeleteModule(ctx context.Context, prjID string, group ModuleGroup, moduleType string) ([]domain.Workbook, error) {
	var remaining []domain.Workbook
	_, err := s.withProject(prjID, func(p *domain.Project) error {
		arr := moduleArray(p, group)
		kept := make([]domain.Workbook, 0, len(*arr))
		removed := false
		for _, m := range *arr {
			if m.Type == moduleType {
				removed = true
				continue
			}
			kept = append(kept, m)
		}
		if !removed {
			return ErrNotFound
		}
		*arr = kept
		remaining = kept
		return nil
	})
	if err != nil {
		return nil, err
	}
	return remaining, nil
}

// Project batches

func (s *MemoryStore) ListBatches(ctx context.Context, prjID string) ([]domain.Batch, error) {
	p, found, err := s.GetProject(ctx, prjID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return p.Batches, nil
}

func (s *MemoryStore) GetBatch(ctx context.Context, prjID, batchID string) (domain.Batch, bool, error) {
	p, found, err := s.GetProject(ctx, prjID)
	if err != nil || !found {
		return domain.Batch{}, false, err
	}
	for _, b := range p.Batches {
		if b.BatchID == batchID {
			return b, true, nil
		}
	}
	return domain.Batch{}, false, nil
}

func (s *MemoryStore) CreateBatch(ctx context.Context, prjID string, b domain.Batch) (domain.Batch, error) {
	_, err := s.withProject(prjID, func(p *domain.Project) error {
		p.Batches = append(p.Batches, b)
		return nil
	})
	if err != nil {
		return domain.Batch{}, err
	}
	return b, nil
}

func (s *MemoryStore) AddWorkbookSession(ctx context.Context, prjID, batchID string, session domain.WorkbookSession) (domain.WorkbookSession, error) {
	_, err := s.withProject(prjID, func(p *domain.Project) error {
		for i := range p.Batches {
			if p.Batches[i].BatchID != batchID {
				continue
			}
			for _, existing := range p.Batches[i].WorkbookSessions {
				if existing.Module == session.Module {
					return ErrDuplicate
				}
			}
			p.Batches[i].WorkbookSessions = append(p.Batches[i].WorkbookSessions, session)
			return nil
		}
		return ErrNotFound
	})
	if err != nil {
		return domain.WorkbookSession{}, err
	}
	return session, nil
}

func (s *MemoryStore) AddFacetimeSession(ctx context.Context, prjID, batchID string, session domain.FacetimeSession) (domain.FacetimeSession, error) {
	_, err := s.withProject(prjID, func(p *domain.Project) error {
		for i := range p.Batches {
			if p.Batches[i].BatchID != batchID {
				continue
			}
			for _, existing := range p.Batches[i].FacetimeSessions {
				if existing.Module == session.Module {
					return ErrDuplicate
				}
			}
			p.Batches[i].FacetimeSessions = append(p.Batches[i].FacetimeSessions, session)
			return nil
		}
		return ErrNotFound
	})
	if err != nil {
		return domain.FacetimeSession{}, err
	}
	return session, nil
}

// Personas

func (s *MemoryStore) CreatePersona(ctx context.Context, p domain.Persona) (domain.Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.personas {
		if existing.PrjID == p.PrjID && existing.Username == p.Username {
			return domain.Persona{}, ErrDuplicate
		}
	}
	s.personas[p.ID] = p
	s.track(p.ID)
	return p, nil
}

func (s *MemoryStore) GetPersonaByID(ctx context.Context, id string) (domain.Persona, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.personas[id]
	return p, ok, nil
}

func (s *MemoryStore) GetPersonaByName(ctx context.Context, prjID, username string) (domain.Persona, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.personas {
		if p.PrjID == prjID && p.Username == username {
			return p, true, nil
		}
	}
	return domain.Persona{}, false, nil
}

func (s *MemoryStore) ListPersonas(ctx context.Context, prjID string, limit, offset int) ([]domain.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	personas := make([]domain.Persona, 0, len(s.personas))
	for _, p := range s.personas {
		if prjID == "" || p.PrjID == prjID {
			personas = append(personas, p)
		}
	}
	sort.Slice(personas, func(i, j int) bool { return s.order[personas[i].ID] < s.order[personas[j].ID] })
	return paginate(personas, limit, offset), nil
}

func (s *MemoryStore) UpdatePersona(ctx context.Context, id string, p domain.Persona) (domain.Persona, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.personas[id]
	if !ok {
		return domain.Persona{}, false, nil
	}
	existing.Fullname = p.Fullname
	existing.Email = p.Email
	existing.Gender = p.Gender
	existing.BirthDate = p.BirthDate
	existing.NIP = p.NIP
	existing.Position = p.Position
	existing.CurrentLevel = p.CurrentLevel
	existing.TargetLevel = p.TargetLevel
	s.personas[id] = existing
	return existing, true, nil
}

func (s *MemoryStore) SetPersonaProgress(ctx context.Context, prjID, username string, progress domain.Progress) (domain.Progress, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.personas {
		if p.PrjID == prjID && p.Username == username {
			p.Progress = progress
			s.personas[id] = p
			return progress, true, nil
		}
	}
	return domain.Progress{}, false, nil
}

func (s *MemoryStore) SetPersonaBatteries(ctx context.Context, prjID string, usernames []string, batteries []domain.Battery, progress domain.Progress) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make(map[string]bool, len(usernames))
	for _, n := range usernames {
		names[n] = true
	}
	var count int64
	for id, p := range s.personas {
		if p.PrjID == prjID && names[p.Username] {
			p.Batteries = append([]domain.Battery{}, batteries...)
			p.Progress = progress
			s.personas[id] = p
			count++
		}
	}
	return count, nil
}

// GPQ evidences

func (s *MemoryStore) CreateEvidence(ctx context.Context, ev domain.GPQEvidence) (domain.GPQEvidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evidences[ev.ID] = ev
	s.track(ev.ID)
	return ev, nil
}

func (s *MemoryStore) GetEvidence(ctx context.Context, id string) (domain.GPQEvidence, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.evidences[id]
	if !ok {
		return domain.GPQEvidence{}, false, nil
	}
	ev.Records = append([]domain.GPQRow{}, ev.Records...)
	return ev, true, nil
}

func (s *MemoryStore) ListEvidences(ctx context.Context, prjID string, limit, offset int) ([]domain.GPQEvidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evidences := make([]domain.GPQEvidence, 0, len(s.evidences))
	for _, ev := range s.evidences {
		if prjID == "" || ev.PrjID == prjID {
			evidences = append(evidences, ev)
		}
	}
	sort.Slice(evidences, func(i, j int) bool { return s.order[evidences[i].ID] < s.order[evidences[j].ID] })
	return paginate(evidences, limit, offset), nil
}

func (s *MemoryStore) GetEvidenceTiming(ctx context.Context, id string) (domain.EvidenceTiming, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.evidences[id]
	if !ok {
		return domain.EvidenceTiming{}, false, nil
	}
	return domain.EvidenceTiming{
		Initiated: ev.Initiated,
		Started:   ev.Started,
		Touched:   ev.Touched,
	}, true, nil
}

func (s *MemoryStore) MarkEvidenceInitiated(ctx context.Context, id string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.evidences[id]
	if !ok {
		return ErrNotFound
	}
	ev.Initiated = ts
	ev.Touched = ts
	s.evidences[id] = ev
	return nil
}

func (s *MemoryStore) MarkEvidenceStarted(ctx context.Context, id string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.evidences[id]
	if !ok {
		return ErrNotFound
	}
	ev.Started = ts
	ev.Touched = ts
	s.evidences[id] = ev
	return nil
}

func (s *MemoryStore) TouchEvidence(ctx context.Context, id string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.evidences[id]
	if !ok {
		return ErrNotFound
	}
	ev.Touched = ts
	s.evidences[id] = ev
	return nil
}

func (s *MemoryStore) SaveEvidenceRow(ctx context.Context, id string, row domain.GPQRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.evidences[id]
	if !ok {
		return ErrNotFound
	}
	if row.Seq < 1 || row.Seq > len(ev.Records) {
		return fmt.Errorf("%w: seq %d, rows %d", ErrOutOfRange, row.Seq, len(ev.Records))
	}
	records := append([]domain.GPQRow{}, ev.Records...)
	records[row.Seq-1] = row
	ev.Records = records
	ev.Touched = row.Saved
	s.evidences[id] = ev
	return nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*GormStore)(nil)
