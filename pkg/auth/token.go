package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 60 * time.Minute

// ErrInvalidToken indicates a token that failed signature or claim
// validation, including expiry.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the access-token payload: who the caller is, which scope
// they authenticated under, and the scope-dependent context (a project
// id for client/expert/persona, a license-holder id for license).
type Claims struct {
	Username string `json:"username"`
	Scope    string `json:"scope"`
	Context  string `json:"context,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access tokens with a fixed TTL.
// There is no refresh mechanism: an expired token requires a new login.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewTokenIssuer constructs an issuer. TTL defaults to one hour.
func NewTokenIssuer(secret string, ttl time.Duration, issuer string) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, issuer: issuer}, nil
}

// Issue creates a signed token for the given identity.
func (t *TokenIssuer) Issue(username, scope, context string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Username: username,
		Scope:    scope,
		Context:  context,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its claims.
func (t *TokenIssuer) Parse(tokenString string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Username) == "" || strings.TrimSpace(claims.Scope) == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// TTL returns the configured token lifetime.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}
