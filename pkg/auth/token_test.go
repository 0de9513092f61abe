package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenIssueParseRoundtrip(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Minute, "assessd")
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, err := issuer.Issue("alice1", "client", "64f0c6a2e1b2c3d4e5f60718")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Username != "alice1" || claims.Scope != "client" || claims.Context != "64f0c6a2e1b2c3d4e5f60718" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenParseRejectsWrongSecret(t *testing.T) {
	a, _ := NewTokenIssuer("secret-a", time.Minute, "assessd")
	b, _ := NewTokenIssuer("secret-b", time.Minute, "assessd")
	token, err := a.Issue("alice1", "gaia", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenParseRejectsExpired(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", -time.Minute, "assessd")
	// Negative TTL falls back to the default, so expire manually via a
	// dedicated short-lived issuer instead.
	issuer.ttl = -time.Minute
	token, err := issuer.Issue("alice1", "gaia", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenParseRejectsGarbage(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", time.Minute, "assessd")
	if _, err := issuer.Parse("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer("  ", time.Minute, "assessd"); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestPasswordHashRoundtrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatal("hash equals plaintext")
	}
	if !CheckPassword("s3cret-pass", hash) {
		t.Fatal("correct password rejected")
	}
	if CheckPassword("wrong-pass", hash) {
		t.Fatal("wrong password accepted")
	}
}
