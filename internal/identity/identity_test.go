package identity

import (
	"context"
	"errors"
	"testing"
)

func TestStatic(t *testing.T) {
	id, err := Static{Email: "dr@example.org", Name: "Dr. Who"}.Identity(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id.Display() != "Dr. Who" {
		t.Errorf("Display = %q", id.Display())
	}

	if _, err := (Static{}).Identity(context.Background()); !errors.Is(err, ErrMissing) {
		t.Errorf("expected ErrMissing, got %v", err)
	}
}

func TestChainFallsThrough(t *testing.T) {
	t.Setenv("MEDIMATE_EMAIL", "env@example.org")
	t.Setenv("MEDIMATE_NAME", "")

	id, err := Chain{Static{}, Env{}}.Identity(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id.Email != "env@example.org" || id.Display() != "env@example.org" {
		t.Errorf("unexpected identity %+v", id)
	}
}
