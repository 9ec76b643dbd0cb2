// Package identity answers "who am I" for a participant.
package identity

import (
	"context"
	"errors"
	"os"
	"strings"
)

// ErrMissing is returned when no email is available.
var ErrMissing = errors.New("identity: email is required")

// Identity is the display identity announced to the rendezvous service.
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Display prefers the name and falls back to the email.
func (i Identity) Display() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Email
}

// Provider resolves the local identity.
type Provider interface {
	Identity(ctx context.Context) (Identity, error)
}

// Static always returns the same identity.
type Static Identity

func (s Static) Identity(context.Context) (Identity, error) {
	id := Identity(s)
	if strings.TrimSpace(id.Email) == "" {
		return Identity{}, ErrMissing
	}
	return id, nil
}

// Env reads MEDIMATE_EMAIL and MEDIMATE_NAME, defaulting the email to
// $USER@localhost so local experiments need no setup.
type Env struct{}

func (Env) Identity(context.Context) (Identity, error) {
	email := os.Getenv("MEDIMATE_EMAIL")
	if email == "" {
		user := os.Getenv("USER")
		if user == "" {
			return Identity{}, ErrMissing
		}
		email = user + "@localhost"
	}
	return Identity{Email: email, Name: os.Getenv("MEDIMATE_NAME")}, nil
}

// Chain returns the first provider that yields an identity.
type Chain []Provider

func (c Chain) Identity(ctx context.Context) (Identity, error) {
	err := ErrMissing
	for _, p := range c {
		var id Identity
		if id, err = p.Identity(ctx); err == nil {
			return id, nil
		}
	}
	return Identity{}, err
}
