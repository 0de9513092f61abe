package domain

import (
	"errors"
	"strings"
)

const (
	UsernameMinLength   = 5
	UsernameMaxLength   = 10
	CompanySymbolLength = 6
)

var (
	ErrInvalidUsername = errors.New("username must be alphanumeric, 5-10 characters")
	ErrInvalidSymbol   = errors.New("symbol must be alphanumeric, exactly 6 characters")
)

func isAlnum(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return s != ""
}

// NormalizeUsername validates and case-folds a username. Usernames are
// 5-10 alphanumeric characters and stored lower-case.
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < UsernameMinLength || len(username) > UsernameMaxLength || !isAlnum(username) {
		return "", ErrInvalidUsername
	}
	return strings.ToLower(username), nil
}

// NormalizeSymbol validates and upper-cases a company symbol.
func NormalizeSymbol(symbol string) (string, error) {
	symbol = strings.TrimSpace(symbol)
	if len(symbol) != CompanySymbolLength || !isAlnum(symbol) {
		return "", ErrInvalidSymbol
	}
	return strings.ToUpper(symbol), nil
}

// NormalizeModuleType upper-cases a workbook/facetime module type.
func NormalizeModuleType(moduleType string) string {
	return strings.ToUpper(strings.TrimSpace(moduleType))
}
