package app

import "errors"

var (
	// ErrInvalidCredentials is returned when login fails for any reason.
	// One message for unknown user, bad password, and bad context, so the
	// response does not enable account enumeration.
	ErrInvalidCredentials = errors.New("incorrect credentials or context")

	// ErrUserDisabled is returned when a disabled account authenticates.
	ErrUserDisabled = errors.New("account disabled")

	// ErrInvalidToken is returned for missing, malformed, or expired tokens.
	ErrInvalidToken = errors.New("invalid access token")

	// ErrForbidden is returned when the principal's scope or roles do not
	// allow the operation.
	ErrForbidden = errors.New("operation not permitted")

	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation wraps request payloads that fail semantic validation.
	ErrValidation = errors.New("validation failed")

	ErrUsernameTaken  = errors.New("username or email already registered")
	ErrSymbolTaken    = errors.New("company symbol already registered")
	ErrMemberExists   = errors.New("member username or email already in project")
	ErrModuleExists   = errors.New("module type already in project")
	ErrSessionExists  = errors.New("session module already in batch")
	ErrPersonaExists  = errors.New("persona username already in project")
	ErrEmptyBatch     = errors.New("batch has no sessions to prepare")
	ErrNoParticipants = errors.New("batch has no participants")
)
