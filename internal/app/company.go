package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"assessd/internal/util"
	"assessd/pkg/domain"
	"assessd/pkg/store"
)

// CompanyInput carries the fields accepted when creating or editing a
// company.
type CompanyInput struct {
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	OrgType     string   `json:"org_type"`
	Industry    []string `json:"industry"`
	Products    []string `json:"products"`
	Description string   `json:"description"`
	Address     string   `json:"address"`
	Homepage    string   `json:"homepage"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
}

// CreateCompany registers a client organization under the caller's
// ownership context.
func (a *App) CreateCompany(ctx context.Context, p domain.Principal, in CompanyInput) (domain.Company, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Company{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	symbol, err := domain.NormalizeSymbol(in.Symbol)
	if err != nil {
		return domain.Company{}, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	company := domain.Company{
		ID:          util.NewID(),
		CreatedBy:   p.Username,
		Name:        strings.TrimSpace(in.Name),
		Symbol:      symbol,
		OrgType:     in.OrgType,
		Industry:    emptyIfNil(in.Industry),
		Products:    emptyIfNil(in.Products),
		Description: in.Description,
		Address:     in.Address,
		Homepage:    in.Homepage,
		Email:       in.Email,
		Phone:       in.Phone,
		Contacts:    []domain.Contact{},
	}
	created, err := a.store.CreateCompany(ctx, company)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Company{}, ErrSymbolTaken
		}
		return domain.Company{}, fmt.Errorf("create company: %w", err)
	}
	return created, nil
}

// ListCompanies returns companies, optionally filtered by creator.
func (a *App) ListCompanies(ctx context.Context, createdBy string, limit, offset int) ([]domain.Company, error) {
	if limit <= 0 {
		limit = 50
	}
	return a.store.ListCompanies(ctx, createdBy, limit, offset)
}

// GetCompanyByRef resolves a company by id or symbol.
func (a *App) GetCompanyByRef(ctx context.Context, ref string) (domain.Company, error) {
	if util.IsValidID(ref) {
		if c, found, err := a.store.GetCompanyByID(ctx, ref); err != nil {
			return domain.Company{}, fmt.Errorf("fetch company: %w", err)
		} else if found {
			return c, nil
		}
	}
	if symbol, err := domain.NormalizeSymbol(ref); err == nil {
		c, found, err := a.store.GetCompanyBySymbol(ctx, symbol)
		if err != nil {
			return domain.Company{}, fmt.Errorf("fetch company: %w", err)
		}
		if found {
			return c, nil
		}
	}
	return domain.Company{}, ErrNotFound
}

// UpdateCompany edits company fields. The symbol is immutable.
func (a *App) UpdateCompany(ctx context.Context, ref string, in CompanyInput) (domain.Company, error) {
	company, err := a.GetCompanyByRef(ctx, ref)
	if err != nil {
		return domain.Company{}, err
	}
	if in.Name != "" {
		company.Name = strings.TrimSpace(in.Name)
	}
	if in.OrgType != "" {
		company.OrgType = in.OrgType
	}
	if in.Industry != nil {
		company.Industry = in.Industry
	}
	if in.Products != nil {
		company.Products = in.Products
	}
	if in.Description != "" {
		company.Description = in.Description
	}
	if in.Address != "" {
		company.Address = in.Address
	}
	if in.Homepage != "" {
		company.Homepage = in.Homepage
	}
	if in.Email != "" {
		company.Email = in.Email
	}
	if in.Phone != "" {
		company.Phone = in.Phone
	}
	updated, found, err := a.store.UpdateCompany(ctx, company.ID, company)
	if err != nil {
		return domain.Company{}, fmt.Errorf("update company: %w", err)
	}
	if !found {
		return domain.Company{}, ErrNotFound
	}
	return updated, nil
}

// AddContacts appends contacts to a company's contact list.
func (a *App) AddContacts(ctx context.Context, ref string, contacts []domain.Contact) ([]domain.Contact, error) {
	company, err := a.GetCompanyByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	for _, c := range contacts {
		if strings.TrimSpace(c.Fullname) == "" {
			return nil, fmt.Errorf("%w: contact fullname required", ErrValidation)
		}
	}
	result, err := a.store.AddContacts(ctx, company.ID, contacts)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("add contacts: %w", err)
	}
	return result, nil
}

// RemoveContact removes every contact with the given fullname.
func (a *App) RemoveContact(ctx context.Context, ref, fullname string) ([]domain.Contact, error) {
	company, err := a.GetCompanyByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	result, err := a.store.RemoveContact(ctx, company.ID, fullname)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("remove contact: %w", err)
	}
	return result, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
