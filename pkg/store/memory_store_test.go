package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"assessd/pkg/domain"
)

func TestMemoryStoreUserUniqueness(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := domain.User{ID: "000000000000000000000001", Username: "alice1", Email: "alice1@example.com", Type: domain.ScopeGaia}
	if _, err := s.CreateUser(ctx, first); err != nil {
		t.Fatalf("create user: %v", err)
	}
	dupName := domain.User{ID: "000000000000000000000002", Username: "alice1", Email: "other@example.com"}
	if _, err := s.CreateUser(ctx, dupName); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for username, got %v", err)
	}
	dupMail := domain.User{ID: "000000000000000000000003", Username: "other2", Email: "alice1@example.com"}
	if _, err := s.CreateUser(ctx, dupMail); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for email, got %v", err)
	}
}

func TestMemoryStoreListUsersPaginates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		u := domain.User{
			ID:       fmt.Sprintf("%024d", i+1),
			Username: fmt.Sprintf("user%02d", i),
			Email:    fmt.Sprintf("user%02d@example.com", i),
		}
		if _, err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user %d: %v", i, err)
		}
	}
	page, err := s.ListUsers(ctx, 2, 2)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(page) != 2 || page[0].Username != "user02" || page[1].Username != "user03" {
		t.Fatalf("page = %+v, want user02 and user03 in insertion order", page)
	}
	tail, err := s.ListUsers(ctx, 10, 4)
	if err != nil {
		t.Fatalf("list tail: %v", err)
	}
	if len(tail) != 1 || tail[0].Username != "user04" {
		t.Fatalf("tail = %+v", tail)
	}
	if empty, _ := s.ListUsers(ctx, 10, 50); len(empty) != 0 {
		t.Fatalf("offset past end returned %+v", empty)
	}
}

func TestMemoryStorePersonaUniquePerProject(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.CreatePersona(ctx, domain.Persona{ID: "000000000000000000000001", PrjID: "p1", Username: "budi01"}); err != nil {
		t.Fatalf("create persona: %v", err)
	}
	if _, err := s.CreatePersona(ctx, domain.Persona{ID: "000000000000000000000002", PrjID: "p1", Username: "budi01"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate in same project, got %v", err)
	}
	// The same username is free in another project.
	if _, err := s.CreatePersona(ctx, domain.Persona{ID: "000000000000000000000003", PrjID: "p2", Username: "budi01"}); err != nil {
		t.Fatalf("create persona in second project: %v", err)
	}
}

func TestMemoryStoreSaveEvidenceRow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ev := domain.GPQEvidence{
		ID:      "000000000000000000000001",
		PrjID:   "p1",
		Records: []domain.GPQRow{{Seq: 1, WbSeq: 2}, {Seq: 2, WbSeq: 1}},
	}
	if _, err := s.CreateEvidence(ctx, ev); err != nil {
		t.Fatalf("create evidence: %v", err)
	}

	row := domain.GPQRow{Seq: 2, WbSeq: 1, Element: "E1", Statement: "ST3", Saved: 1600, Elapsed: 600}
	if err := s.SaveEvidenceRow(ctx, ev.ID, row); err != nil {
		t.Fatalf("save row: %v", err)
	}
	got, found, err := s.GetEvidence(ctx, ev.ID)
	if err != nil || !found {
		t.Fatalf("get evidence: found=%v err=%v", found, err)
	}
	if got.Records[1] != row {
		t.Fatalf("row = %+v, want %+v", got.Records[1], row)
	}
	if got.Touched != 1600 {
		t.Fatalf("touched = %d, want row save timestamp", got.Touched)
	}

	if err := s.SaveEvidenceRow(ctx, ev.ID, domain.GPQRow{Seq: 3}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if err := s.SaveEvidenceRow(ctx, "ffffffffffffffffffffffff", row); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreCompanySymbolUnique(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.CreateCompany(ctx, domain.Company{ID: "000000000000000000000001", Symbol: "ACME01"}); err != nil {
		t.Fatalf("create company: %v", err)
	}
	if _, err := s.CreateCompany(ctx, domain.Company{ID: "000000000000000000000002", Symbol: "ACME01"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}
