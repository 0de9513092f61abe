package app

import (
	"context"
	"testing"

	"assessd/pkg/cache"
	"assessd/pkg/domain"
	"assessd/pkg/store"
)

func newTestApp(t *testing.T) (*App, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	a, err := New(Config{
		TokenSecret: "test-secret",
		Store:       st,
		Cache:       cache.NewMemoryTouchCache(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, st
}

// pinClock replaces the timestamp source with a sequence; the last value
// repeats once the sequence is exhausted.
func pinClock(a *App, stamps ...int64) {
	i := 0
	a.nowMillis = func() int64 {
		ts := stamps[i]
		if i < len(stamps)-1 {
			i++
		}
		return ts
	}
}

func superuser() domain.Principal {
	return domain.Principal{
		ID:         "000000000000000000000001",
		Username:   "rootsu",
		Fullname:   "Root Superuser",
		Scope:      domain.ScopeGaia,
		AdminRoles: []string{domain.RoleSuperuser},
	}
}

func seedProject(t *testing.T, a *App) domain.Project {
	t.Helper()
	project, err := a.CreateProject(context.Background(), superuser(), ProjectInput{
		Title: "Leadership Assessment 2026",
		Year:  2026,
	})
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return project
}

func seedPersona(t *testing.T, a *App, prjID, username string) domain.Persona {
	t.Helper()
	persona, err := a.CreatePersona(context.Background(), superuser(), PersonaInput{
		PrjID:    prjID,
		Fullname: "Persona " + username,
		Username: username,
		Email:    username + "@example.com",
		Password: "persona-pass",
	})
	if err != nil {
		t.Fatalf("seed persona %s: %v", username, err)
	}
	return persona
}
