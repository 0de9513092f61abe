package app

import (
	"context"
	"fmt"

	"assessd/internal/util"
	"assessd/pkg/auth"
	"assessd/pkg/domain"
)

// LoginResult is what a successful authentication yields.
type LoginResult struct {
	Principal   domain.Principal
	AccessToken string
}

// Login authenticates a caller under one of the five scopes and issues
// an access token. Every failure mode collapses into the same error so
// the response does not reveal which check failed.
func (a *App) Login(ctx context.Context, scopeName, username, password, authContext string) (LoginResult, error) {
	scope, ok := domain.ParseScope(scopeName)
	if !ok {
		return LoginResult{}, ErrInvalidCredentials
	}
	normalized, err := domain.NormalizeUsername(username)
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	principal, hashed, err := a.resolvePrincipal(ctx, scope, normalized, authContext)
	if err != nil {
		return LoginResult{}, err
	}
	if !auth.CheckPassword(password, hashed) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if principal.Disabled {
		return LoginResult{}, ErrUserDisabled
	}
	token, err := a.tokens.Issue(principal.Username, string(principal.Scope), principal.Context)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	return LoginResult{Principal: principal, AccessToken: token}, nil
}

// PrincipalFromToken re-resolves the token's identity against current
// state, so revoked memberships and disabled accounts fail immediately.
func (a *App) PrincipalFromToken(ctx context.Context, token string) (domain.Principal, error) {
	claims, err := a.tokens.Parse(token)
	if err != nil {
		return domain.Principal{}, ErrInvalidToken
	}
	scope, ok := domain.ParseScope(claims.Scope)
	if !ok {
		return domain.Principal{}, ErrInvalidToken
	}
	principal, _, err := a.resolvePrincipal(ctx, scope, claims.Username, claims.Context)
	if err != nil {
		return domain.Principal{}, ErrInvalidToken
	}
	if principal.Disabled {
		return domain.Principal{}, ErrInvalidToken
	}
	return principal, nil
}

// resolvePrincipal is the scope dispatch: each scope has its own lookup
// source and its own notion of context. The returned hash is the stored
// bcrypt hash for the caller to verify against.
func (a *App) resolvePrincipal(ctx context.Context, scope domain.Scope, username, authContext string) (domain.Principal, string, error) {
	switch scope {
	case domain.ScopeGaia:
		u, found, err := a.store.GetGaiaUser(ctx, username)
		if err != nil {
			return domain.Principal{}, "", fmt.Errorf("fetch user: %w", err)
		}
		if !found {
			return domain.Principal{}, "", ErrInvalidCredentials
		}
		return userPrincipal(u, ""), u.HashedPassword, nil

	case domain.ScopeLicense:
		// Context is the license holder's own user id.
		if !util.IsValidID(authContext) {
			return domain.Principal{}, "", ErrInvalidCredentials
		}
		u, found, err := a.store.GetLicenseUser(ctx, authContext, username)
		if err != nil {
			return domain.Principal{}, "", fmt.Errorf("fetch user: %w", err)
		}
		if !found {
			return domain.Principal{}, "", ErrInvalidCredentials
		}
		return userPrincipal(u, authContext), u.HashedPassword, nil

	case domain.ScopeClient, domain.ScopeExpert:
		// Context is a project id; the account lives in the project's
		// members array.
		if !util.IsValidID(authContext) {
			return domain.Principal{}, "", ErrInvalidCredentials
		}
		g, found, err := a.store.GetProjectMemberByType(ctx, authContext, username, scope)
		if err != nil {
			return domain.Principal{}, "", fmt.Errorf("fetch member: %w", err)
		}
		if !found {
			return domain.Principal{}, "", ErrInvalidCredentials
		}
		return domain.Principal{
			ID:         g.ID,
			Username:   g.Username,
			Fullname:   g.Fullname,
			Scope:      scope,
			Context:    authContext,
			AdminRoles: []string{},
		}, g.HashedPassword, nil

	case domain.ScopePersona:
		if !util.IsValidID(authContext) {
			return domain.Principal{}, "", ErrInvalidCredentials
		}
		p, found, err := a.store.GetPersonaByName(ctx, authContext, username)
		if err != nil {
			return domain.Principal{}, "", fmt.Errorf("fetch persona: %w", err)
		}
		if !found {
			return domain.Principal{}, "", ErrInvalidCredentials
		}
		return domain.Principal{
			ID:         p.ID,
			Username:   p.Username,
			Fullname:   p.Fullname,
			Scope:      domain.ScopePersona,
			Context:    authContext,
			AdminRoles: []string{},
		}, p.HashedPassword, nil

	default:
		return domain.Principal{}, "", ErrInvalidCredentials
	}
}

func userPrincipal(u domain.User, authContext string) domain.Principal {
	roles := u.AdminRoles
	if roles == nil {
		roles = []string{}
	}
	return domain.Principal{
		ID:         u.ID,
		Username:   u.Username,
		Fullname:   u.Fullname,
		Scope:      u.Type,
		Context:    authContext,
		AdminRoles: roles,
		Disabled:   u.Disabled,
	}
}

// canManageProject reports whether the principal may mutate the project:
// superusers and project managers always, otherwise the project lead.
func (a *App) canManageProject(ctx context.Context, p domain.Principal, prjID string) (bool, error) {
	if p.IsSuperuser() || p.HasRole(domain.RoleProjectManager) {
		return true, nil
	}
	if p.Scope != domain.ScopeGaia && p.Scope != domain.ScopeLicense {
		return false, nil
	}
	lead, found, err := a.store.GetProjectLead(ctx, prjID)
	if err != nil {
		return false, fmt.Errorf("fetch project lead: %w", err)
	}
	if !found {
		return false, ErrNotFound
	}
	return lead == p.Username, nil
}

// canAccessProject reports whether the principal may read the project:
// managers, plus any project-scoped principal whose token context is
// this project.
func (a *App) canAccessProject(ctx context.Context, p domain.Principal, prjID string) (bool, error) {
	switch p.Scope {
	case domain.ScopeClient, domain.ScopeExpert, domain.ScopePersona:
		return p.Context == prjID, nil
	}
	if p.IsSuperuser() || p.HasRole(domain.RoleProjectManager) || p.HasRole(domain.RoleProjectMember) {
		return true, nil
	}
	return a.canManageProject(ctx, p, prjID)
}
