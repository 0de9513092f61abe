package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"assessd/pkg/domain"
)

// GormStore implements Store using GORM + Postgres. Each document is one
// row; nested arrays are JSONB columns mutated under a row lock so the
// uniqueness precondition and the write are a single atomic step.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{}, &CompanyModel{}, &ProjectModel{}, &PersonaModel{}, &EvidenceModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// Users

func (s *GormStore) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	model := userToModel(u)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, ErrDuplicate
		}
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

func (s *GormStore) getUser(ctx context.Context, conds ...any) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, conds...).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (domain.User, bool, error) {
	return s.getUser(ctx, "username = ?", username)
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	return s.getUser(ctx, "email = ?", email)
}

func (s *GormStore) GetGaiaUser(ctx context.Context, username string) (domain.User, bool, error) {
	return s.getUser(ctx, "username = ? AND type = ?", username, string(domain.ScopeGaia))
}

func (s *GormStore) GetLicenseUser(ctx context.Context, id, username string) (domain.User, bool, error) {
	return s.getUser(ctx, "id = ? AND type = ? AND username = ?", id, string(domain.ScopeLicense), username)
}

func (s *GormStore) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	var models []UserModel
	if err := s.db.WithContext(ctx).Order("created_at ASC").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(models))
	for _, m := range models {
		users = append(users, userFromModel(m))
	}
	return users, nil
}

func (s *GormStore) UpdateUser(ctx context.Context, id string, u domain.User) (domain.User, bool, error) {
	u.ID = id
	model := userToModel(u)
	res := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", id).Updates(map[string]any{
		"fullname":        model.Fullname,
		"email":           model.Email,
		"admin_roles":     model.AdminRoles,
		"hashed_password": model.HashedPassword,
		"disabled":        model.Disabled,
		"updated_at":      time.Now().UTC(),
	})
	if res.Error != nil {
		return domain.User{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.User{}, false, nil
	}
	return s.GetUserByID(ctx, id)
}

// Companies

func (s *GormStore) CreateCompany(ctx context.Context, c domain.Company) (domain.Company, error) {
	model := companyToModel(c)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Company{}, ErrDuplicate
		}
		return domain.Company{}, err
	}
	return companyFromModel(model), nil
}

func (s *GormStore) GetCompanyByID(ctx context.Context, id string) (domain.Company, bool, error) {
	var model CompanyModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Company{}, false, nil
		}
		return domain.Company{}, false, err
	}
	return companyFromModel(model), true, nil
}

func (s *GormStore) GetCompanyBySymbol(ctx context.Context, symbol string) (domain.Company, bool, error) {
	var model CompanyModel
	if err := s.db.WithContext(ctx).First(&model, "symbol = ?", symbol).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Company{}, false, nil
		}
		return domain.Company{}, false, err
	}
	return companyFromModel(model), true, nil
}

func (s *GormStore) ListCompanies(ctx context.Context, createdBy string, limit, offset int) ([]domain.Company, error) {
	tx := s.db.WithContext(ctx).Order("created_at ASC").Limit(limit).Offset(offset)
	if createdBy != "" {
		tx = tx.Where("created_by = ?", createdBy)
	}
	var models []CompanyModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	companies := make([]domain.Company, 0, len(models))
	for _, m := range models {
		companies = append(companies, companyFromModel(m))
	}
	return companies, nil
}

func (s *GormStore) UpdateCompany(ctx context.Context, id string, c domain.Company) (domain.Company, bool, error) {
	model := companyToModel(c)
	res := s.db.WithContext(ctx).Model(&CompanyModel{}).Where("id = ?", id).Updates(map[string]any{
		"name":        model.Name,
		"org_type":    model.OrgType,
		"industry":    model.Industry,
		"products":    model.Products,
		"description": model.Description,
		"address":     model.Address,
		"homepage":    model.Homepage,
		"email":       model.Email,
		"phone":       model.Phone,
		"updated_at":  time.Now().UTC(),
	})
	if res.Error != nil {
		return domain.Company{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Company{}, false, nil
	}
	return s.GetCompanyByID(ctx, id)
}

func (s *GormStore) withCompany(ctx context.Context, id string, fn func(c *domain.Company) error) (domain.Company, error) {
	var out domain.Company
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model CompanyModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		c := companyFromModel(model)
		if err := fn(&c); err != nil {
			return err
		}
		out = c
		return tx.Model(&CompanyModel{}).Where("id = ?", id).Updates(map[string]any{
			"contacts":   toJSON(c.Contacts),
			"updated_at": time.Now().UTC(),
		}).Error
	})
	return out, err
}

func (s *GormStore) AddContacts(ctx context.Context, id string, contacts []domain.Contact) ([]domain.Contact, error) {
	c, err := s.withCompany(ctx, id, func(c *domain.Company) error {
		c.Contacts = append(c.Contacts, contacts...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.Contacts, nil
}

func (s *GormStore) RemoveContact(ctx context.Context, id, fullname string) ([]domain.Contact, error) {
	c, err := s.withCompany(ctx, id, func(c *domain.Company) error {
		kept := c.Contacts[:0]
		for _, contact := range c.Contacts {
			if contact.Fullname != fullname {
				kept = append(kept, contact)
			}
		}
		c.Contacts = kept
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.Contacts, nil
}

// Projects

func (s *GormStore) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	model := projectToModel(p)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Project{}, err
	}
	return projectFromModel(model), nil
}

func (s *GormStore) GetProject(ctx context.Context, id string) (domain.Project, bool, error) {
	var model ProjectModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Project{}, false, nil
		}
		return domain.Project{}, false, err
	}
	return projectFromModel(model), true, nil
}

func (s *GormStore) ListProjects(ctx context.Context, owner string, limit, offset int) ([]domain.Project, error) {
	tx := s.db.WithContext(ctx).Order("created_at ASC").Limit(limit).Offset(offset)
	if owner != "" {
		tx = tx.Where("owner = ?", owner)
	}
	var models []ProjectModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	projects := make([]domain.Project, 0, len(models))
	for _, m := range models {
		projects = append(projects, projectFromModel(m))
	}
	return projects, nil
}

func (s *GormStore) UpdateProject(ctx context.Context, id string, p domain.Project) (domain.Project, bool, error) {
	model := projectToModel(p)
	res := s.db.WithContext(ctx).Model(&ProjectModel{}).Where("id = ?", id).Updates(map[string]any{
		"year":            model.Year,
		"title":           model.Title,
		"status":          model.Status,
		"description":     model.Description,
		"domain":          model.Domain,
		"type":            model.Type,
		"lead_by":         model.LeadBy,
		"contract":        model.Contract,
		"signed_by":       model.SignedBy,
		"start_date":      model.StartDate,
		"end_date":        model.EndDate,
		"ext_date":        model.ExtDate,
		"payment_terms":   model.PaymentTerms,
		"potential_value": model.PotentialValue,
		"actual_value":    model.ActualValue,
		"updated_at":      time.Now().UTC(),
	})
	if res.Error != nil {
		return domain.Project{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Project{}, false, nil
	}
	return s.GetProject(ctx, id)
}

func (s *GormStore) GetProjectLead(ctx context.Context, id string) (string, bool, error) {
	var model ProjectModel
	if err := s.db.WithContext(ctx).Select("lead_by").First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return model.LeadBy, true, nil
}

// withProject runs fn against a row-locked project document and persists
// the nested arrays fn may have mutated.
func (s *GormStore) withProject(ctx context.Context, id string, fn func(p *domain.Project) error) (domain.Project, error) {
	var out domain.Project
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ProjectModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		p := projectFromModel(model)
		if err := fn(&p); err != nil {
			return err
		}
		out = p
		return tx.Model(&ProjectModel{}).Where("id = ?", id).Updates(map[string]any{
			"members":    toJSON(p.Members),
			"workbooks":  toJSON(p.Workbooks),
			"facetimes":  toJSON(p.Facetimes),
			"batches":    toJSON(p.Batches),
			"updated_at": time.Now().UTC(),
		}).Error
	})
	return out, err
}

// Project members

func (s *GormStore) GetProjectMember(ctx context.Context, prjID, username string) (domain.Guest, bool, error) {
	p, found, err := s.GetProject(ctx, prjID)
	if err != nil || !found {
		return domain.Guest{}, false, err
	}
	return findMember(p.Members, username, "")
}

func (s *GormStore) GetProjectMemberByType(ctx context.Context, prjID, username string, memberType domain.Scope) (domain.Guest, bool, error) {
	p, found, err := s.GetProject(ctx, prjID)
	if err != nil || !found {
		return domain.Guest{}, false, err
	}
	return findMember(p.Members, username, memberType)
}

func findMember(members []domain.Guest, username string, memberType domain.Scope) (domain.Guest, bool, error) {
	for _, g := range members {
		if g.Username == username && (memberType == "" || g.Type == memberType) {
			return g, true, nil
		}
	}
	return domain.Guest{}, false, nil
}

func (s *GormStore) ListMembers(ctx context.Context, prjID string, memberType domain.Scope) ([]domain.Guest, error) {
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

func (s *GormStore) AddMember(ctx context.Context, prjID string, g domain.Guest) (domain.Guest, error) {
	_, err := s.withProject(ctx, prjID, func(p *domain.Project) error {
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

func (s *GormStore) EditMember(ctx context.Context, prjID string, memberType domain.Scope, username string, g domain.Guest) (domain.Guest, error) {
	var edited domain.Guest
	_, err := s.withProject(ctx, prjID, func(p *domain.Project) error {
		for i, m := range p.Members {
			if m.Username == username && m.Type == memberType {
				g.ID = m.ID
				g.Type = m.Type
				if g.HashedPassword == "" {
					g.HashedPassword = m.HashedPassword
				}
				p.Members[i] = g
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

func (s *GormStore) RemoveMember(ctx context.Context, prjID string, memberType domain.Scope, username string) ([]domain.Guest, error) {
	p, err := s.withProject(ctx, prjID, func(p *domain.Project) error {
		kept := p.Members[:0]
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

func (s *GormStore) ListModules(ctx context.Context, prjID string) ([]domain.Workbook, []domain.Workbook, error) {
	p, found, err := s.GetProject(ctx, prjID)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, ErrNotFound
	}
	return p.Workbooks, p.Facetimes, nil
}

func moduleArray(p *domain.Project, group ModuleGroup) *[]domain.Workbook {
	if group == GroupFacetimes {
		return &p.Facetimes
	}
	return &p.Workbooks
}

func (s *GormStore) AddModule(ctx context.Context, prjID string, group ModuleGroup, wb domain.Workbook) (domain.Workbook, error) {
	_, err := s.withProject(ctx, prjID, func(p *domain.Project) error {
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

func (s *GormStore) EditModule(ctx context.Context, prjID string, group ModuleGroup, moduleType string, wb domain.Workbook) (domain.Workbook, error) {
	var edited domain.Workbook
	_, err := s.withProject(ctx, prjID, func(p *domain.Project) error {
		arr := moduleArray(p, group)
		for i, m := range *arr {
			if m.Type == moduleType {
				wb.Type = moduleType
				(*arr)[i] = wb
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

func (s *GormStore) DeleteModule(ctx context.Context, prjID string, group ModuleGroup, moduleType string) ([]domain.Workbook, error) {
	var remaining []domain.Workbook
	_, err := s.withProject(ctx, prjID, func(p *domain.Project) error {
		arr := moduleArray(p, group)
		kept := (*arr)[:0]
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
		remaining = append([]domain.Workbook{}, kept...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return remaining, nil
}

// Project batches

func (s *GormStore) ListBatches(ctx context.Context, prjID string) ([]domain.Batch, error) {
	p, found, err := s.GetProject(ctx, prjID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return p.Batches, nil
}

func (s *GormStore) GetBatch(ctx context.Context, prjID, batchID string) (domain.Batch, bool, error) {
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

func (s *GormStore) CreateBatch(ctx context.Context, prjID string, b domain.Batch) (domain.Batch, error) {
	_, err := s.withProject(ctx, prjID, func(p *domain.Project) error {
		p.Batches = append(p.Batches, b)
		return nil
	})
	if err != nil {
		return domain.Batch{}, err
	}
	return b, nil
}

func (s *GormStore) AddWorkbookSession(ctx context.Context, prjID, batchID string, session domain.WorkbookSession) (domain.WorkbookSession, error) {
	_, err := s.withProject(ctx, prjID, func(p *domain.Project) error {
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

func (s *GormStore) AddFacetimeSession(ctx context.Context, prjID, batchID string, session domain.FacetimeSession) (domain.FacetimeSession, error) {
	_, err := s.withProject(ctx, prjID, func(p *domain.Project) error {
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

func (s *GormStore) CreatePersona(ctx context.Context, p domain.Persona) (domain.Persona, error) {
	model := personaToModel(p)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Persona{}, ErrDuplicate
		}
		return domain.Persona{}, err
	}
	return personaFromModel(model), nil
}

func (s *GormStore) GetPersonaByID(ctx context.Context, id string) (domain.Persona, bool, error) {
	var model PersonaModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Persona{}, false, nil
		}
		return domain.Persona{}, false, err
	}
	return personaFromModel(model), true, nil
}

func (s *GormStore) GetPersonaByName(ctx context.Context, prjID, username string) (domain.Persona, bool, error) {
	var model PersonaModel
	if err := s.db.WithContext(ctx).First(&model, "prj_id = ? AND username = ?", prjID, username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Persona{}, false, nil
		}
		return domain.Persona{}, false, err
	}
	return personaFromModel(model), true, nil
}

func (s *GormStore) ListPersonas(ctx context.Context, prjID string, limit, offset int) ([]domain.Persona, error) {
	tx := s.db.WithContext(ctx).Order("created_at ASC").Limit(limit).Offset(offset)
	if prjID != "" {
		tx = tx.Where("prj_id = ?", prjID)
	}
	var models []PersonaModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	personas := make([]domain.Persona, 0, len(models))
	for _, m := range models {
		personas = append(personas, personaFromModel(m))
	}
	return personas, nil
}

func (s *GormStore) UpdatePersona(ctx context.Context, id string, p domain.Persona) (domain.Persona, bool, error) {
	model := personaToModel(p)
	res := s.db.WithContext(ctx).Model(&PersonaModel{}).Where("id = ?", id).Updates(map[string]any{
		"fullname":      model.Fullname,
		"email":         model.Email,
		"gender":        model.Gender,
		"birth_date":    model.BirthDate,
		"nip":           model.NIP,
		"position":      model.Position,
		"current_level": model.CurrentLevel,
		"target_level":  model.TargetLevel,
		"updated_at":    time.Now().UTC(),
	})
	if res.Error != nil {
		return domain.Persona{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Persona{}, false, nil
	}
	return s.GetPersonaByID(ctx, id)
}

func (s *GormStore) SetPersonaProgress(ctx context.Context, prjID, username string, progress domain.Progress) (domain.Progress, bool, error) {
	res := s.db.WithContext(ctx).Model(&PersonaModel{}).
		Where("prj_id = ? AND username = ?", prjID, username).
		Updates(map[string]any{
			"progress":   toJSON(progress),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return domain.Progress{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Progress{}, false, nil
	}
	return progress, true, nil
}

func (s *GormStore) SetPersonaBatteries(ctx context.Context, prjID string, usernames []string, batteries []domain.Battery, progress domain.Progress) (int64, error) {
	res := s.db.WithContext(ctx).Model(&PersonaModel{}).
		Where("prj_id = ? AND username IN ?", prjID, usernames).
		Updates(map[string]any{
			"batteries":  toJSON(batteries),
			"progress":   toJSON(progress),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// GPQ evidences

func (s *GormStore) CreateEvidence(ctx context.Context, ev domain.GPQEvidence) (domain.GPQEvidence, error) {
	model := evidenceToModel(ev)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.GPQEvidence{}, err
	}
	return evidenceFromModel(model), nil
}

func (s *GormStore) GetEvidence(ctx context.Context, id string) (domain.GPQEvidence, bool, error) {
	var model EvidenceModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.GPQEvidence{}, false, nil
		}
		return domain.GPQEvidence{}, false, err
	}
	return evidenceFromModel(model), true, nil
}

func (s *GormStore) ListEvidences(ctx context.Context, prjID string, limit, offset int) ([]domain.GPQEvidence, error) {
	tx := s.db.WithContext(ctx).Order("created_at ASC").Limit(limit).Offset(offset)
	if prjID != "" {
		tx = tx.Where("prj_id = ?", prjID)
	}
	var models []EvidenceModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	evidences := make([]domain.GPQEvidence, 0, len(models))
	for _, m := range models {
		evidences = append(evidences, evidenceFromModel(m))
	}
	return evidences, nil
}

func (s *GormStore) GetEvidenceTiming(ctx context.Context, id string) (domain.EvidenceTiming, bool, error) {
	var model EvidenceModel
	if err := s.db.WithContext(ctx).Select("initiated", "started", "touched").First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.EvidenceTiming{}, false, nil
		}
		return domain.EvidenceTiming{}, false, err
	}
	return domain.EvidenceTiming{
		Initiated: model.Initiated,
		Started:   model.Started,
		Touched:   model.Touched,
	}, true, nil
}

func (s *GormStore) markEvidence(ctx context.Context, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&EvidenceModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) MarkEvidenceInitiated(ctx context.Context, id string, ts int64) error {
	return s.markEvidence(ctx, id, map[string]any{"initiated": ts, "touched": ts})
}

func (s *GormStore) MarkEvidenceStarted(ctx context.Context, id string, ts int64) error {
	return s.markEvidence(ctx, id, map[string]any{"started": ts, "touched": ts})
}

func (s *GormStore) TouchEvidence(ctx context.Context, id string, ts int64) error {
	return s.markEvidence(ctx, id, map[string]any{"touched": ts})
}

func (s *GormStore) SaveEvidenceRow(ctx context.Context, id string, row domain.GPQRow) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model EvidenceModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		ev := evidenceFromModel(model)
		if row.Seq < 1 || row.Seq > len(ev.Records) {
			return fmt.Errorf("%w: seq %d, rows %d", ErrOutOfRange, row.Seq, len(ev.Records))
		}
		ev.Records[row.Seq-1] = row
		return tx.Model(&EvidenceModel{}).Where("id = ?", id).Updates(map[string]any{
			"records":    toJSON(ev.Records),
			"touched":    row.Saved,
			"updated_at": time.Now().UTC(),
		}).Error
	})
}
