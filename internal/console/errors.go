package console

import "errors"

var (
	ErrValidation     = errors.New("username and password are required")
	ErrAuthentication = errors.New("invalid username or password")
	// ErrAuthLookup is joined with ErrAuthentication when the credential lookup
	// itself failed. Callers that only check ErrAuthentication see a plain
	// rejection.
	ErrAuthLookup  = errors.New("credential lookup failed")
	ErrNotLoggedIn = errors.New("not logged in")
	ErrUnknownPage = errors.New("unknown page")
)
