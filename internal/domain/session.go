package domain

import "errors"

var (
	// ErrNoSession is returned when a session is required but no session cookie is present.
	ErrNoSession = errors.New("no session")
	// ErrInvalidSession is returned when a session token's signature is invalid or it has expired.
	ErrInvalidSession = errors.New("invalid session")
	// ErrInvalidCSRFToken is returned when a mutating request carries a missing or mismatched CSRF token.
	ErrInvalidCSRFToken = errors.New("invalid csrf token")
)

// Session identifies the authenticated user behind a request.
type Session struct {
	UserID    int64  `json:"userId"`    // ID of the authenticated user
	Username  string `json:"username"`  // Username of the authenticated user
	IssuedAt  int64  `json:"issuedAt"`  // Unix timestamp when the session was established
	ExpiresAt int64  `json:"expiresAt"` // Unix timestamp when the session expires
}
