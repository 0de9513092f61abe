package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"assessd/pkg/domain"
)

// GORM models used for persistence. Nested arrays live in JSONB columns
// so each document stays a single row and array mutations stay a single
// row update.
type UserModel struct {
	ID             string `gorm:"primaryKey"`
	Fullname       string
	Username       string `gorm:"uniqueIndex;not null"`
	Email          string `gorm:"uniqueIndex;not null"`
	Type           string `gorm:"not null;index"`
	AdminRoles     datatypes.JSON
	HashedPassword string `gorm:"not null"`
	Disabled       bool
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time
}

type CompanyModel struct {
	ID          string `gorm:"primaryKey"`
	CreatedBy   string `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Symbol      string `gorm:"uniqueIndex;not null"`
	OrgType     string
	Industry    datatypes.JSON
	Products    datatypes.JSON
	Description string
	Address     string
	Homepage    string
	Email       string
	Phone       string
	Contacts    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time
}

type ProjectModel struct {
	ID             string `gorm:"primaryKey"`
	Owner          string `gorm:"not null;index"`
	ClientID       string `gorm:"index"`
	Year           int
	Title          string `gorm:"not null"`
	Status         string
	Description    string
	Domain         string
	Type           string
	LeadBy         string
	Contract       string
	SignedBy       string
	StartDate      string
	EndDate        string
	ExtDate        string
	PaymentTerms   string
	PotentialValue float64
	ActualValue    float64
	Members        datatypes.JSON `gorm:"type:jsonb"`
	Workbooks      datatypes.JSON `gorm:"type:jsonb"`
	Facetimes      datatypes.JSON `gorm:"type:jsonb"`
	Batches        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null"`
	UpdatedAt      time.Time
}

type PersonaModel struct {
	ID             string `gorm:"primaryKey"`
	PrjID          string `gorm:"not null;index:idx_persona_prj_username,unique"`
	Username       string `gorm:"not null;index:idx_persona_prj_username,unique"`
	License        string
	Fullname       string
	Email          string
	HashedPassword string
	Gender         string
	BirthDate      string
	NIP            string
	Position       string
	CurrentLevel   string
	TargetLevel    string
	Batteries      datatypes.JSON `gorm:"type:jsonb"`
	Progress       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null"`
	UpdatedAt      time.Time
}

type EvidenceModel struct {
	ID        string `gorm:"primaryKey"`
	PrjID     string `gorm:"not null;index"`
	Username  string `gorm:"not null;index"`
	Fullname  string
	Initiated int64
	Started   int64
	Touched   int64
	Records   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time
}

func toJSON(v any) datatypes.JSON {
	raw, _ := json.Marshal(v)
	return raw
}

func fromJSON[T any](raw datatypes.JSON) T {
	var v T
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &v)
	}
	return v
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:             u.ID,
		Fullname:       u.Fullname,
		Username:       u.Username,
		Email:          u.Email,
		Type:           string(u.Type),
		AdminRoles:     toJSON(u.AdminRoles),
		HashedPassword: u.HashedPassword,
		Disabled:       u.Disabled,
	}
}

func userFromModel(m UserModel) domain.User {
	roles := fromJSON[[]string](m.AdminRoles)
	if roles == nil {
		roles = []string{}
	}
	return domain.User{
		ID:             m.ID,
		Fullname:       m.Fullname,
		Username:       m.Username,
		Email:          m.Email,
		Type:           domain.Scope(m.Type),
		AdminRoles:     roles,
		HashedPassword: m.HashedPassword,
		Disabled:       m.Disabled,
	}
}

func companyToModel(c domain.Company) CompanyModel {
	return CompanyModel{
		ID:          c.ID,
		CreatedBy:   c.CreatedBy,
		Name:        c.Name,
		Symbol:      c.Symbol,
		OrgType:     c.OrgType,
		Industry:    toJSON(c.Industry),
		Products:    toJSON(c.Products),
		Description: c.Description,
		Address:     c.Address,
		Homepage:    c.Homepage,
		Email:       c.Email,
		Phone:       c.Phone,
		Contacts:    toJSON(c.Contacts),
	}
}

func companyFromModel(m CompanyModel) domain.Company {
	c := domain.Company{
		ID:          m.ID,
		CreatedBy:   m.CreatedBy,
		Name:        m.Name,
		Symbol:      m.Symbol,
		OrgType:     m.OrgType,
		Industry:    fromJSON[[]string](m.Industry),
		Products:    fromJSON[[]string](m.Products),
		Description: m.Description,
		Address:     m.Address,
		Homepage:    m.Homepage,
		Email:       m.Email,
		Phone:       m.Phone,
		Contacts:    fromJSON[[]domain.Contact](m.Contacts),
	}
	if c.Industry == nil {
		c.Industry = []string{}
	}
	if c.Products == nil {
		c.Products = []string{}
	}
	if c.Contacts == nil {
		c.Contacts = []domain.Contact{}
	}
	return c
}

func projectToModel(p domain.Project) ProjectModel {
	return ProjectModel{
		ID:             p.ID,
		Owner:          p.Owner,
		ClientID:       p.ClientID,
		Year:           p.Year,
		Title:          p.Title,
		Status:         p.Status,
		Description:    p.Description,
		Domain:         p.Domain,
		Type:           p.Type,
		LeadBy:         p.LeadBy,
		Contract:       p.Contract,
		SignedBy:       p.SignedBy,
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		ExtDate:        p.ExtDate,
		PaymentTerms:   p.PaymentTerms,
		PotentialValue: p.PotentialValue,
		ActualValue:    p.ActualValue,
		Members:        toJSON(p.Members),
		Workbooks:      toJSON(p.Workbooks),
		Facetimes:      toJSON(p.Facetimes),
		Batches:        toJSON(p.Batches),
	}
}

func projectFromModel(m ProjectModel) domain.Project {
	p := domain.Project{
		ID:             m.ID,
		Owner:          m.Owner,
		ClientID:       m.ClientID,
		Year:           m.Year,
		Title:          m.Title,
		Status:         m.Status,
		Description:    m.Description,
		Domain:         m.Domain,
		Type:           m.Type,
		LeadBy:         m.LeadBy,
		Contract:       m.Contract,
		SignedBy:       m.SignedBy,
		StartDate:      m.StartDate,
		EndDate:        m.EndDate,
		ExtDate:        m.ExtDate,
		PaymentTerms:   m.PaymentTerms,
		PotentialValue: m.PotentialValue,
		ActualValue:    m.ActualValue,
		Members:        fromJSON[[]domain.Guest](m.Members),
		Workbooks:      fromJSON[[]domain.Workbook](m.Workbooks),
		Facetimes:      fromJSON[[]domain.Workbook](m.Facetimes),
		Batches:        fromJSON[[]domain.Batch](m.Batches),
	}
	if p.Members == nil {
		p.Members = []domain.Guest{}
	}
	if p.Workbooks == nil {
		p.Workbooks = []domain.Workbook{}
	}
	if p.Facetimes == nil {
		p.Facetimes = []domain.Workbook{}
	}
	if p.Batches == nil {
		p.Batches = []domain.Batch{}
	}
	return p
}

func personaToModel(p domain.Persona) PersonaModel {
	return PersonaModel{
		ID:             p.ID,
		PrjID:          p.PrjID,
		Username:       p.Username,
		License:        p.License,
		Fullname:       p.Fullname,
		Email:          p.Email,
		HashedPassword: p.HashedPassword,
		Gender:         p.Gender,
		BirthDate:      p.BirthDate,
		NIP:            p.NIP,
		Position:       p.Position,
		CurrentLevel:   p.CurrentLevel,
		TargetLevel:    p.TargetLevel,
		Batteries:      toJSON(p.Batteries),
		Progress:       toJSON(p.Progress),
	}
}

func personaFromModel(m PersonaModel) domain.Persona {
	p := domain.Persona{
		ID:             m.ID,
		PrjID:          m.PrjID,
		Username:       m.Username,
		License:        m.License,
		Fullname:       m.Fullname,
		Email:          m.Email,
		HashedPassword: m.HashedPassword,
		Gender:         m.Gender,
		BirthDate:      m.BirthDate,
		NIP:            m.NIP,
		Position:       m.Position,
		CurrentLevel:   m.CurrentLevel,
		TargetLevel:    m.TargetLevel,
		Batteries:      fromJSON[[]domain.Battery](m.Batteries),
		Progress:       fromJSON[domain.Progress](m.Progress),
	}
	if p.Batteries == nil {
		p.Batteries = []domain.Battery{}
	}
	return p
}

func evidenceToModel(ev domain.GPQEvidence) EvidenceModel {
	return EvidenceModel{
		ID:        ev.ID,
		PrjID:     ev.PrjID,
		Username:  ev.Username,
		Fullname:  ev.Fullname,
		Initiated: ev.Initiated,
		Started:   ev.Started,
		Touched:   ev.Touched,
		Records:   toJSON(ev.Records),
	}
}

func evidenceFromModel(m EvidenceModel) domain.GPQEvidence {
	ev := domain.GPQEvidence{
		ID:        m.ID,
		PrjID:     m.PrjID,
		Username:  m.Username,
		Fullname:  m.Fullname,
		Initiated: m.Initiated,
		Started:   m.Started,
		Touched:   m.Touched,
		Records:   fromJSON[[]domain.GPQRow](m.Records),
	}
	if ev.Records == nil {
		ev.Records = []domain.GPQRow{}
	}
	return ev
}
