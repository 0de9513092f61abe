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

// PersonaInput carries the fields accepted when creating or editing a
// persona.
type PersonaInput struct {
	PrjID        string `json:"prj_id"`
	License      string `json:"license"`
	Fullname     string `json:"fullname"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Gender       string `json:"gender"`
	BirthDate    string `json:"birth_date"`
	NIP          string `json:"nip"`
	Position     string `json:"position"`
	CurrentLevel string `json:"current_level"`
	TargetLevel  string `json:"target_level"`
}

// CreatePersona registers a participant account scoped to a project.
// The username only has to be free within that project.
func (a *App) CreatePersona(ctx context.Context, p domain.Principal, in PersonaInput) (domain.Persona, error) {
	if err := a.requireManage(ctx, p, in.PrjID); err != nil {
		return domain.Persona{}, err
	}
	username, err := domain.NormalizeUsername(in.Username)
	if err != nil {
		return domain.Persona{}, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if strings.TrimSpace(in.Password) == "" {
		return domain.Persona{}, fmt.Errorf("%w: password required", ErrValidation)
	}
	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.Persona{}, fmt.Errorf("hash password: %w", err)
	}
	persona := domain.Persona{
		ID:             util.NewID(),
		PrjID:          in.PrjID,
		License:        in.License,
		Fullname:       in.Fullname,
		Username:       username,
		Email:          strings.TrimSpace(strings.ToLower(in.Email)),
		HashedPassword: hashed,
		Gender:         in.Gender,
		BirthDate:      in.BirthDate,
		NIP:            in.NIP,
		Position:       in.Position,
		CurrentLevel:   in.CurrentLevel,
		TargetLevel:    in.TargetLevel,
		Batteries:      []domain.Battery{},
		Progress:       domain.Progress{State: domain.ProgressIdle},
	}
	created, err := a.store.CreatePersona(ctx, persona)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Persona{}, ErrPersonaExists
		}
		return domain.Persona{}, fmt.Errorf("create persona: %w", err)
	}
	return created, nil
}

// ListPersonas returns personas, optionally filtered by project.
func (a *App) ListPersonas(ctx context.Context, p domain.Principal, prjID string, limit, offset int) ([]domain.Persona, error) {
	if prjID != "" {
		if err := a.requireAccess(ctx, p, prjID); err != nil {
			return nil, err
		}
	}
	if limit <= 0 {
		limit = 50
	}
	return a.store.ListPersonas(ctx, prjID, limit, offset)
}

// GetPersonaByRef resolves a persona by id, or by project-scoped
// username when prjID is supplied.
func (a *App) GetPersonaByRef(ctx context.Context, ref, prjID string) (domain.Persona, error) {
	if util.IsValidID(ref) {
		if p, found, err := a.store.GetPersonaByID(ctx, ref); err != nil {
			return domain.Persona{}, fmt.Errorf("fetch persona: %w", err)
		} else if found {
			return p, nil
		}
	}
	if prjID != "" {
		p, found, err := a.store.GetPersonaByName(ctx, prjID, strings.ToLower(strings.TrimSpace(ref)))
		if err != nil {
			return domain.Persona{}, fmt.Errorf("fetch persona: %w", err)
		}
		if found {
			return p, nil
		}
	}
	return domain.Persona{}, ErrNotFound
}

// UpdatePersona edits profile fields. Username, project, and batteries
// are immutable here.
func (a *App) UpdatePersona(ctx context.Context, p domain.Principal, ref string, in PersonaInput) (domain.Persona, error) {
	persona, err := a.GetPersonaByRef(ctx, ref, in.PrjID)
	if err != nil {
		return domain.Persona{}, err
	}
	if err := a.requireManage(ctx, p, persona.PrjID); err != nil {
		return domain.Persona{}, err
	}
	if in.Fullname != "" {
		persona.Fullname = in.Fullname
	}
	if in.Email != "" {
		persona.Email = strings.TrimSpace(strings.ToLower(in.Email))
	}
	if in.Gender != "" {
		persona.Gender = in.Gender
	}
	if in.BirthDate != "" {
		persona.BirthDate = in.BirthDate
	}
	if in.NIP != "" {
		persona.NIP = in.NIP
	}
	if in.Position != "" {
		persona.Position = in.Position
	}
	if in.CurrentLevel != "" {
		persona.CurrentLevel = in.CurrentLevel
	}
	if in.TargetLevel != "" {
		persona.TargetLevel = in.TargetLevel
	}
	updated, found, err := a.store.UpdatePersona(ctx, persona.ID, persona)
	if err != nil {
		return domain.Persona{}, fmt.Errorf("update persona: %w", err)
	}
	if !found {
		return domain.Persona{}, ErrNotFound
	}
	return updated, nil
}

// SetPersonaProgress moves a persona through its battery sequence. The
// persona itself and project managers may write it.
func (a *App) SetPersonaProgress(ctx context.Context, p domain.Principal, prjID, username string, progress domain.Progress) (domain.Progress, error) {
	allowed := p.Scope == domain.ScopePersona && p.Context == prjID && p.Username == username
	if !allowed {
		if err := a.requireManage(ctx, p, prjID); err != nil {
			return domain.Progress{}, err
		}
	}
	switch progress.State {
	case domain.ProgressIdle, domain.ProgressWorking, domain.ProgressPaused, domain.ProgressFinished:
	default:
		return domain.Progress{}, fmt.Errorf("%w: unknown progress state %q", ErrValidation, progress.State)
	}
	updated, found, err := a.store.SetPersonaProgress(ctx, prjID, username, progress)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("set progress: %w", err)
	}
	if !found {
		return domain.Progress{}, ErrNotFound
	}
	return updated, nil
}
