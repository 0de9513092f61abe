package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"assessd/internal/util"
	"assessd/pkg/auth"
	"assessd/pkg/domain"
	"assessd/pkg/store"
)

// UserInput carries the fields accepted when creating a user account.
type UserInput struct {
	Fullname   string   `json:"fullname"`
	Username   string   `json:"username"`
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	AdminRoles []string `json:"admin_roles"`
}

func (in *UserInput) normalize() error {
	username, err := domain.NormalizeUsername(in.Username)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	in.Username = username
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return fmt.Errorf("%w: valid email required", ErrValidation)
	}
	if strings.TrimSpace(in.Password) == "" {
		return fmt.Errorf("%w: password required", ErrValidation)
	}
	return nil
}

// CreateUser registers a gaia staff account.
func (a *App) CreateUser(ctx context.Context, in UserInput) (domain.User, error) {
	return a.createAccount(ctx, in, domain.ScopeGaia)
}

// CreateLicense registers a license-holder account.
func (a *App) CreateLicense(ctx context.Context, in UserInput) (domain.User, error) {
	return a.createAccount(ctx, in, domain.ScopeLicense)
}

func (a *App) createAccount(ctx context.Context, in UserInput, userType domain.Scope) (domain.User, error) {
	if err := in.normalize(); err != nil {
		return domain.User{}, err
	}
	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	roles := in.AdminRoles
	if roles == nil {
		roles = []string{}
	}
	user := domain.User{
		ID:             util.NewID(),
		Fullname:       in.Fullname,
		Username:       in.Username,
		Email:          in.Email,
		Type:           userType,
		AdminRoles:     roles,
		HashedPassword: hashed,
	}
	created, err := a.store.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// ListUsers returns registered accounts, oldest first.
func (a *App) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	if limit <= 0 {
		limit = 50
	}
	return a.store.ListUsers(ctx, limit, offset)
}

// GetUserByRef resolves a user by id, username, or email.
func (a *App) GetUserByRef(ctx context.Context, ref string) (domain.User, error) {
	if util.IsValidID(ref) {
		if u, found, err := a.store.GetUserByID(ctx, ref); err != nil {
			return domain.User{}, fmt.Errorf("fetch user: %w", err)
		} else if found {
			return u, nil
		}
	}
	if strings.Contains(ref, "@") {
		u, found, err := a.store.GetUserByEmail(ctx, strings.ToLower(ref))
		if err != nil {
			return domain.User{}, fmt.Errorf("fetch user: %w", err)
		}
		if found {
			return u, nil
		}
		return domain.User{}, ErrNotFound
	}
	u, found, err := a.store.GetUserByUsername(ctx, strings.ToLower(strings.TrimSpace(ref)))
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !found {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

// UpdateUser edits account fields; empty fields keep their value, a new
// password is re-hashed.
func (a *App) UpdateUser(ctx context.Context, ref string, in UserInput) (domain.User, error) {
	user, err := a.GetUserByRef(ctx, ref)
	if err != nil {
		return domain.User{}, err
	}
	if in.Fullname != "" {
		user.Fullname = in.Fullname
	}
	if in.Email != "" {
		user.Email = strings.TrimSpace(strings.ToLower(in.Email))
	}
	if in.AdminRoles != nil {
		user.AdminRoles = in.AdminRoles
	}
	if strings.TrimSpace(in.Password) != "" {
		hashed, err := auth.HashPassword(in.Password)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.HashedPassword = hashed
	}
	updated, found, err := a.store.UpdateUser(ctx, user.ID, user)
	if err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	if !found {
		return domain.User{}, ErrNotFound
	}
	return updated, nil
}
