// Package identity supplies the current user's email to the parts of the
// system that record authorship. It only reads session state, never
// manages it.
package identity

import "strings"

// Provider reports who is signed in. An empty string means anonymous.
type Provider interface {
	CurrentEmail() string
}

// Static is a Provider with a fixed email, typically sourced from config
// or a request header.
type Static struct {
	Email string
}

// NewStatic creates a Static provider, trimming whitespace so a sloppily
// quoted config value does not leak into created_by.
func NewStatic(email string) Static {
	return Static{Email: strings.TrimSpace(email)}
}

// CurrentEmail returns the configured email, or "" for anonymous.
func (s Static) CurrentEmail() string { return s.Email }

// Anonymous is a Provider for unauthenticated contexts.
type Anonymous struct{}

func (Anonymous) CurrentEmail() string { return "" }
